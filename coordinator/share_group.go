package coordinator

import (
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/twmb/franz-go/pkg/kerr"
)

// ShareGroup is a group whose members consume the same partitions
// cooperatively. Its offsets live in the share state partitions, not here.
type ShareGroup struct {
	modernGroup
	// initializedTopics are the partitions whose share state exists.
	initializedTopics Assignment
	deletingTopics    map[string]bool
}

func NewShareGroup(groupID string) *ShareGroup {
	return &ShareGroup{
		modernGroup:       newModernGroup(groupID),
		initializedTopics: Assignment{},
		deletingTopics:    make(map[string]bool),
	}
}

func (g *ShareGroup) Type() GroupType {
	return ShareGroupType
}

func (g *ShareGroup) State() GroupState {
	if len(g.members) == 0 {
		return GroupStateEmpty
	}
	return GroupStateStable
}

func (g *ShareGroup) InitializedTopics() Assignment {
	return g.initializedTopics.Clone()
}

func (g *ShareGroup) DeletingTopics() []string {
	return sortedKeys(g.deletingTopics)
}

func (g *ShareGroup) setStatePartitionMetadata(value *model.ShareGroupStatePartitionMetadataValue) {
	g.initializedTopics = AssignmentFromTopicPartitions(value.InitializedTopics)
	g.deletingTopics = make(map[string]bool, len(value.DeletingTopics))
	for _, topic := range value.DeletingTopics {
		g.deletingTopics[topic] = true
	}
}

func (g *ShareGroup) clearStatePartitionMetadata() {
	g.initializedTopics = Assignment{}
	g.deletingTopics = make(map[string]bool)
}

func (g *ShareGroup) IsSubscribedToTopic(topic string) bool {
	for _, member := range g.members {
		for _, t := range member.SubscribedTopicNames {
			if t == topic {
				return true
			}
		}
	}
	return false
}

func (g *ShareGroup) ValidateDeleteGroup() error {
	if state := g.State(); state != GroupStateEmpty {
		return errors.Wrapf(kerr.NonEmptyGroup, "group %s is in state %s", g.groupID, state)
	}
	return nil
}

func (g *ShareGroup) CreateGroupTombstoneRecords(records []model.Record) []model.Record {
	ids := g.MemberIDs()
	for _, id := range ids {
		records = append(records, NewShareGroupCurrentAssignmentTombstoneRecord(g.groupID, id))
	}
	for _, id := range sortedKeys(g.targetAssignment) {
		records = append(records, NewShareGroupTargetAssignmentTombstoneRecord(g.groupID, id))
	}
	records = append(records, NewShareGroupTargetAssignmentEpochTombstoneRecord(g.groupID))
	for _, id := range ids {
		records = append(records, NewShareGroupMemberSubscriptionTombstoneRecord(g.groupID, id))
	}
	records = append(records, NewShareGroupStatePartitionMetadataTombstoneRecord(g.groupID))
	records = append(records, NewShareGroupSubscriptionMetadataTombstoneRecord(g.groupID))
	return append(records, NewShareGroupEpochTombstoneRecord(g.groupID))
}

func (g *ShareGroup) OffsetExpirationCondition() (OffsetExpirationCondition, bool) {
	return OffsetExpirationCondition{}, false
}

func (g *ShareGroup) ValidateOffsetCommit(string, string, int32, bool) error {
	return errors.Wrapf(kerr.GroupIDNotFound, "group %s is a share group", g.groupID)
}

func (g *ShareGroup) ValidateOffsetFetch(string, int32) error {
	return errors.Wrapf(kerr.GroupIDNotFound, "group %s is a share group", g.groupID)
}

func (g *ShareGroup) ValidateOffsetDelete() error {
	return errors.Wrapf(kerr.GroupIDNotFound, "group %s is a share group", g.groupID)
}

func (g *ShareGroup) Describe() DescribedGroup {
	return DescribedGroup{
		GroupID:         g.groupID,
		GroupType:       ShareGroupType,
		State:           g.State(),
		Epoch:           g.groupEpoch,
		AssignmentEpoch: g.assignmentEpoch,
		ProtocolType:    "share",
		Members:         g.describeMembers(),
	}
}
