package coordinator

import (
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/twmb/franz-go/pkg/kerr"
)

// ResolvedRegex is the set of topics matched by a subscription regex against
// a given metadata image version.
type ResolvedRegex struct {
	Topics      []string
	Version     int64
	TimestampMs int64
}

// ConsumerGroup is a group using the consumer heartbeat protocol.
type ConsumerGroup struct {
	modernGroup
	resolvedRegexes map[string]ResolvedRegex
}

func NewConsumerGroup(groupID string) *ConsumerGroup {
	return &ConsumerGroup{
		modernGroup:     newModernGroup(groupID),
		resolvedRegexes: make(map[string]ResolvedRegex),
	}
}

func (g *ConsumerGroup) Type() GroupType {
	return ConsumerGroupType
}

func (g *ConsumerGroup) State() GroupState {
	return g.reconciliationState()
}

func (g *ConsumerGroup) ResolvedRegex(regex string) (ResolvedRegex, bool) {
	resolved, ok := g.resolvedRegexes[regex]
	return resolved, ok
}

func (g *ConsumerGroup) setResolvedRegex(regex string, resolved ResolvedRegex) {
	g.resolvedRegexes[regex] = resolved
}

func (g *ConsumerGroup) removeResolvedRegex(regex string) {
	delete(g.resolvedRegexes, regex)
}

// regexSubscribers counts the members subscribed to the regex, ignoring the
// given member.
func (g *ConsumerGroup) regexSubscribers(regex, ignoredMemberID string) int {
	n := 0
	for id, member := range g.members {
		if id != ignoredMemberID && member.SubscribedTopicRegex == regex {
			n++
		}
	}
	return n
}

// subscribedTopics returns the topics a member reads, through its names and
// its resolved regex.
func (g *ConsumerGroup) subscribedTopics(member *Member, regexes map[string]ResolvedRegex) []string {
	topics := make(map[string]bool)
	for _, topic := range member.SubscribedTopicNames {
		topics[topic] = true
	}
	if member.SubscribedTopicRegex != "" {
		resolved, ok := regexes[member.SubscribedTopicRegex]
		if !ok {
			resolved = g.resolvedRegexes[member.SubscribedTopicRegex]
		}
		for _, topic := range resolved.Topics {
			topics[topic] = true
		}
	}
	return sortedKeys(topics)
}

func (g *ConsumerGroup) IsSubscribedToTopic(topic string) bool {
	for _, member := range g.members {
		for _, t := range g.subscribedTopics(member, nil) {
			if t == topic {
				return true
			}
		}
	}
	return false
}

func (g *ConsumerGroup) ValidateDeleteGroup() error {
	if state := g.State(); state != GroupStateEmpty {
		return errors.Wrapf(kerr.NonEmptyGroup, "group %s is in state %s", g.groupID, state)
	}
	return nil
}

func (g *ConsumerGroup) CreateGroupTombstoneRecords(records []model.Record) []model.Record {
	ids := g.MemberIDs()
	for _, id := range ids {
		records = append(records, NewConsumerGroupCurrentAssignmentTombstoneRecord(g.groupID, id))
	}
	for _, id := range sortedKeys(g.targetAssignment) {
		records = append(records, NewConsumerGroupTargetAssignmentTombstoneRecord(g.groupID, id))
	}
	records = append(records, NewConsumerGroupTargetAssignmentEpochTombstoneRecord(g.groupID))
	for _, id := range ids {
		records = append(records, NewConsumerGroupMemberSubscriptionTombstoneRecord(g.groupID, id))
	}
	for _, regex := range sortedKeys(g.resolvedRegexes) {
		records = append(records, NewConsumerGroupRegularExpressionTombstoneRecord(g.groupID, regex))
	}
	records = append(records, NewConsumerGroupSubscriptionMetadataTombstoneRecord(g.groupID))
	return append(records, NewConsumerGroupEpochTombstoneRecord(g.groupID))
}

func (g *ConsumerGroup) OffsetExpirationCondition() (OffsetExpirationCondition, bool) {
	return commitTimestampCondition(), true
}

func (g *ConsumerGroup) ValidateOffsetCommit(memberID, _ string, memberEpoch int32, _ bool) error {
	// commits from outside the group are only accepted while it is empty
	if memberEpoch < 0 && len(g.members) == 0 {
		return nil
	}
	return g.validateMemberEpoch(memberID, memberEpoch)
}

func (g *ConsumerGroup) ValidateOffsetFetch(memberID string, memberEpoch int32) error {
	if memberEpoch < 0 && memberID == "" {
		return nil
	}
	member, ok := g.members[memberID]
	if !ok {
		return errors.Wrapf(kerr.UnknownMemberID, "member %s is not a member of group %s", memberID, g.groupID)
	}
	if memberEpoch != member.MemberEpoch {
		return errors.Wrapf(kerr.StaleMemberEpoch, "received member epoch %d does not match the current member epoch %d",
			memberEpoch, member.MemberEpoch)
	}
	return nil
}

func (g *ConsumerGroup) ValidateOffsetDelete() error {
	return nil
}

func (g *ConsumerGroup) Describe() DescribedGroup {
	return DescribedGroup{
		GroupID:         g.groupID,
		GroupType:       ConsumerGroupType,
		State:           g.State(),
		Epoch:           g.groupEpoch,
		AssignmentEpoch: g.assignmentEpoch,
		ProtocolType:    ConsumerProtocolType,
		Members:         g.describeMembers(),
	}
}
