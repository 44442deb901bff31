package coordinator

import (
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"
	"sort"
)

const ConsumerProtocolType = "consumer"

type ClassicMember struct {
	MemberID           string
	InstanceID         string
	ClientID           string
	ClientHost         string
	RebalanceTimeoutMs int32
	SessionTimeoutMs   int32
	// Subscription is the member metadata of the selected protocol.
	Subscription []byte
	Assignment   []byte
}

// ClassicGroup is a group managed by the join/sync protocol. The shard loads
// it from the log and keeps it for offset management.
type ClassicGroup struct {
	groupID               string
	state                 GroupState
	protocolType          string
	protocolName          string
	generationID          int32
	leaderID              string
	currentStateTimestamp int64
	members               map[string]*ClassicMember
	// subscribedTopics is nil when the subscriptions are unknown.
	subscribedTopics map[string]bool
}

func NewClassicGroup(groupID string) *ClassicGroup {
	return &ClassicGroup{
		groupID:               groupID,
		state:                 GroupStateEmpty,
		currentStateTimestamp: -1,
		members:               make(map[string]*ClassicMember),
	}
}

func (g *ClassicGroup) replay(value *model.GroupMetadataValue) {
	g.protocolType = value.ProtocolType
	g.protocolName = value.Protocol
	g.generationID = value.Generation
	g.leaderID = value.Leader
	g.currentStateTimestamp = value.CurrentStateTimestamp
	g.members = make(map[string]*ClassicMember, len(value.Members))
	for _, m := range value.Members {
		g.members[m.MemberID] = &ClassicMember{
			MemberID:           m.MemberID,
			InstanceID:         m.GroupInstanceID,
			ClientID:           m.ClientID,
			ClientHost:         m.ClientHost,
			RebalanceTimeoutMs: m.RebalanceTimeout,
			SessionTimeoutMs:   m.SessionTimeout,
			Subscription:       m.Subscription,
			Assignment:         m.Assignment,
		}
	}
	if len(g.members) == 0 {
		g.state = GroupStateEmpty
	} else {
		g.state = GroupStateStable
	}
	g.subscribedTopics = g.computeSubscribedTopics()
}

func (g *ClassicGroup) computeSubscribedTopics() map[string]bool {
	if g.protocolType != ConsumerProtocolType || g.protocolName == "" || len(g.members) == 0 {
		return nil
	}
	topics := make(map[string]bool)
	for _, member := range g.members {
		var metadata kmsg.ConsumerMemberMetadata
		if err := metadata.ReadFrom(member.Subscription); err != nil {
			return nil
		}
		for _, topic := range metadata.Topics {
			topics[topic] = true
		}
	}
	return topics
}

func (g *ClassicGroup) GroupID() string {
	return g.groupID
}

func (g *ClassicGroup) Type() GroupType {
	return ClassicGroupType
}

func (g *ClassicGroup) State() GroupState {
	return g.state
}

func (g *ClassicGroup) Size() int {
	return len(g.members)
}

func (g *ClassicGroup) IsEmpty() bool {
	return g.state == GroupStateEmpty
}

func (g *ClassicGroup) ProtocolType() string {
	return g.protocolType
}

func (g *ClassicGroup) GenerationID() int32 {
	return g.generationID
}

func (g *ClassicGroup) ValidateDeleteGroup() error {
	switch g.state {
	case GroupStateDead:
		return errors.Wrapf(kerr.GroupIDNotFound, "group %s is dead", g.groupID)
	case GroupStateEmpty:
		return nil
	}
	return errors.Wrapf(kerr.NonEmptyGroup, "group %s is in state %s", g.groupID, g.state)
}

func (g *ClassicGroup) CreateGroupTombstoneRecords(records []model.Record) []model.Record {
	return append(records, NewGroupMetadataTombstoneRecord(g.groupID))
}

func (g *ClassicGroup) IsSubscribedToTopic(topic string) bool {
	return g.subscribedTopics[topic]
}

func (g *ClassicGroup) OffsetExpirationCondition() (OffsetExpirationCondition, bool) {
	if g.protocolType == "" {
		// standalone consumers committing offsets
		return commitTimestampCondition(), true
	}
	if g.state == GroupStateEmpty {
		return OffsetExpirationCondition{BaseTimestamp: func(offset *OffsetAndMetadata) int64 {
			if g.currentStateTimestamp >= 0 {
				return g.currentStateTimestamp
			}
			return offset.CommitTimestampMs
		}}, true
	}
	if g.protocolType == ConsumerProtocolType && g.subscribedTopics != nil && g.state == GroupStateStable {
		return commitTimestampCondition(), true
	}
	return OffsetExpirationCondition{}, false
}

func (g *ClassicGroup) ValidateOffsetCommit(memberID, instanceID string, generationID int32, isTransactional bool) error {
	if g.state == GroupStateDead {
		return errors.Wrapf(kerr.CoordinatorNotAvailable, "group %s is dead", g.groupID)
	}
	if generationID < 0 && g.state == GroupStateEmpty {
		return nil
	}
	if isTransactional && memberID == "" && generationID < 0 {
		return nil
	}
	if g.state == GroupStateCompletingRebalance {
		return errors.Wrapf(kerr.RebalanceInProgress, "group %s is completing a rebalance", g.groupID)
	}
	member, ok := g.members[memberID]
	if !ok {
		return errors.Wrapf(kerr.UnknownMemberID, "member %s is not a member of group %s", memberID, g.groupID)
	}
	if instanceID != "" && member.InstanceID != instanceID {
		return errors.Wrapf(kerr.FencedInstanceID, "member %s does not hold instance id %s", memberID, instanceID)
	}
	if generationID != g.generationID {
		return errors.Wrapf(kerr.IllegalGeneration, "generation %d does not match the group generation %d",
			generationID, g.generationID)
	}
	return nil
}

func (g *ClassicGroup) ValidateOffsetFetch(string, int32) error {
	if g.state == GroupStateDead {
		return errors.Wrapf(kerr.GroupIDNotFound, "group %s is dead", g.groupID)
	}
	return nil
}

func (g *ClassicGroup) ValidateOffsetDelete() error {
	switch g.state {
	case GroupStateDead:
		return errors.Wrapf(kerr.GroupIDNotFound, "group %s is dead", g.groupID)
	case GroupStateStable, GroupStatePreparingRebalance, GroupStateCompletingRebalance:
		if g.protocolType != ConsumerProtocolType {
			return errors.Wrapf(kerr.NonEmptyGroup, "group %s is not empty", g.groupID)
		}
	}
	return nil
}

func (g *ClassicGroup) Describe() DescribedGroup {
	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	members := make([]DescribedMember, 0, len(ids))
	for _, id := range ids {
		m := g.members[id]
		members = append(members, DescribedMember{
			MemberID:    m.MemberID,
			InstanceID:  m.InstanceID,
			ClientID:    m.ClientID,
			ClientHost:  m.ClientHost,
			MemberEpoch: g.generationID,
			State:       MemberStateStable,
		})
	}
	return DescribedGroup{
		GroupID:      g.groupID,
		GroupType:    ClassicGroupType,
		State:        g.state,
		Epoch:        g.generationID,
		ProtocolType: g.protocolType,
		Members:      members,
	}
}
