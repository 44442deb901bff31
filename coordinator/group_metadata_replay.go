package coordinator

import (
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"reflect"
)

// Replay applies a group record. Non tombstone records create their group,
// tombstones of unknown groups are ignored.
func (m *GroupMetadataManager) Replay(key model.RecordKey, value model.RecordValue) error {
	if isNil(key) {
		return errors.Wrap(ErrIllegalState, "group record without key")
	}
	switch k := key.(type) {
	case *model.GroupMetadataKey:
		v, err := castValue[*model.GroupMetadataValue](key, value)
		if err != nil {
			return err
		}
		return m.replayGroupMetadata(k.Group, v)

	case *model.ConsumerGroupMetadataKey:
		v, err := castValue[*model.ConsumerGroupMetadataValue](key, value)
		if err != nil {
			return err
		}
		return m.replayConsumerGroupMetadata(k.GroupID, v)
	case *model.ConsumerGroupPartitionMetadataKey:
		v, err := castValue[*model.ConsumerGroupPartitionMetadataValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewConsumerGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.setSubscriptionMetadata(map[string]int32{})
		} else {
			group.setSubscriptionMetadata(metadataFromTopics(v.Topics))
		}
		return nil
	case *model.ConsumerGroupMemberMetadataKey:
		v, err := castValue[*model.ConsumerGroupMemberMetadataValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewConsumerGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.removeMember(k.MemberID)
			return nil
		}
		member := group.memberOrNew(k.MemberID)
		member.InstanceID = v.InstanceID
		member.RackID = v.RackID
		member.ClientID = v.ClientID
		member.ClientHost = v.ClientHost
		member.SubscribedTopicNames = v.SubscribedTopicNames
		member.SubscribedTopicRegex = v.SubscribedTopicRegex
		member.RebalanceTimeoutMs = v.RebalanceTimeoutMs
		member.ServerAssignor = v.ServerAssignor
		group.updateMember(member)
		return nil
	case *model.ConsumerGroupTargetAssignmentMetadataKey:
		v, err := castValue[*model.ConsumerGroupTargetAssignmentMetadataValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewConsumerGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.setAssignmentEpoch(-1)
		} else {
			group.setAssignmentEpoch(v.AssignmentEpoch)
		}
		return nil
	case *model.ConsumerGroupTargetAssignmentMemberKey:
		v, err := castValue[*model.ConsumerGroupTargetAssignmentMemberValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewConsumerGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.removeTargetAssignment(k.MemberID)
		} else {
			group.setTargetAssignment(k.MemberID, AssignmentFromTopicPartitions(v.TopicPartitions))
		}
		return nil
	case *model.ConsumerGroupCurrentMemberAssignmentKey:
		v, err := castValue[*model.ConsumerGroupCurrentMemberAssignmentValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewConsumerGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.resetMemberAssignment(k.MemberID)
			return nil
		}
		member := group.memberOrNew(k.MemberID)
		member.MemberEpoch = v.MemberEpoch
		member.PreviousMemberEpoch = v.PreviousMemberEpoch
		member.State = MemberState(v.State)
		member.Assigned = AssignmentFromTopicPartitions(v.AssignedPartitions)
		member.PendingRevocation = AssignmentFromTopicPartitions(v.PartitionsPendingRevocation)
		group.updateMember(member)
		return nil
	case *model.ConsumerGroupRegularExpressionKey:
		v, err := castValue[*model.ConsumerGroupRegularExpressionValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewConsumerGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.removeResolvedRegex(k.Regex)
		} else {
			group.setResolvedRegex(k.Regex, ResolvedRegex{Topics: v.Topics, Version: v.Version, TimestampMs: v.TimestampMs})
		}
		return nil

	case *model.ShareGroupMetadataKey:
		v, err := castValue[*model.ShareGroupMetadataValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewShareGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			return m.removeModernGroup(&group.modernGroup)
		}
		group.setGroupEpoch(v.Epoch, v.MetadataHash)
		return nil
	case *model.ShareGroupPartitionMetadataKey:
		v, err := castValue[*model.ShareGroupPartitionMetadataValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewShareGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.setSubscriptionMetadata(map[string]int32{})
		} else {
			group.setSubscriptionMetadata(metadataFromTopics(v.Topics))
		}
		return nil
	case *model.ShareGroupMemberMetadataKey:
		v, err := castValue[*model.ShareGroupMemberMetadataValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewShareGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.removeMember(k.MemberID)
			return nil
		}
		member := group.memberOrNew(k.MemberID)
		member.RackID = v.RackID
		member.ClientID = v.ClientID
		member.ClientHost = v.ClientHost
		member.SubscribedTopicNames = v.SubscribedTopicNames
		group.updateMember(member)
		return nil
	case *model.ShareGroupTargetAssignmentMetadataKey:
		v, err := castValue[*model.ShareGroupTargetAssignmentMetadataValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewShareGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.setAssignmentEpoch(-1)
		} else {
			group.setAssignmentEpoch(v.AssignmentEpoch)
		}
		return nil
	case *model.ShareGroupTargetAssignmentMemberKey:
		v, err := castValue[*model.ShareGroupTargetAssignmentMemberValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewShareGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.removeTargetAssignment(k.MemberID)
		} else {
			group.setTargetAssignment(k.MemberID, AssignmentFromTopicPartitions(v.TopicPartitions))
		}
		return nil
	case *model.ShareGroupCurrentMemberAssignmentKey:
		v, err := castValue[*model.ShareGroupCurrentMemberAssignmentValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewShareGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.resetMemberAssignment(k.MemberID)
			return nil
		}
		member := group.memberOrNew(k.MemberID)
		member.MemberEpoch = v.MemberEpoch
		member.PreviousMemberEpoch = v.PreviousMemberEpoch
		member.State = MemberState(v.State)
		member.Assigned = AssignmentFromTopicPartitions(v.AssignedPartitions)
		group.updateMember(member)
		return nil
	case *model.ShareGroupStatePartitionMetadataKey:
		v, err := castValue[*model.ShareGroupStatePartitionMetadataValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewShareGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.clearStatePartitionMetadata()
		} else {
			group.setStatePartitionMetadata(v)
		}
		return nil

	case *model.StreamsGroupMetadataKey:
		v, err := castValue[*model.StreamsGroupMetadataValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewStreamsGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			return m.removeModernGroup(&group.modernGroup)
		}
		group.setGroupEpoch(v.Epoch, v.MetadataHash)
		return nil
	case *model.StreamsGroupPartitionMetadataKey:
		v, err := castValue[*model.StreamsGroupPartitionMetadataValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewStreamsGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.setSubscriptionMetadata(map[string]int32{})
		} else {
			group.setSubscriptionMetadata(metadataFromTopics(v.Topics))
		}
		return nil
	case *model.StreamsGroupMemberMetadataKey:
		v, err := castValue[*model.StreamsGroupMemberMetadataValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewStreamsGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.removeStreamsMember(k.MemberID)
			return nil
		}
		member := group.memberOrNew(k.MemberID)
		member.InstanceID = v.InstanceID
		member.RackID = v.RackID
		member.ClientID = v.ClientID
		member.ClientHost = v.ClientHost
		member.RebalanceTimeoutMs = v.RebalanceTimeoutMs
		member.TopologyEpoch = v.TopologyEpoch
		member.ProcessID = v.ProcessID
		member.UserEndpoint = v.UserEndpoint
		member.ClientTags = tagsFromKeyValues(v.ClientTags)
		group.updateMember(member)
		return nil
	case *model.StreamsGroupTargetAssignmentMetadataKey:
		v, err := castValue[*model.StreamsGroupTargetAssignmentMetadataValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewStreamsGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.setAssignmentEpoch(-1)
		} else {
			group.setAssignmentEpoch(v.AssignmentEpoch)
		}
		return nil
	case *model.StreamsGroupTargetAssignmentMemberKey:
		v, err := castValue[*model.StreamsGroupTargetAssignmentMemberValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewStreamsGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.removeStreamsTarget(k.MemberID)
			return nil
		}
		group.setStreamsTarget(k.MemberID, StreamsTarget{
			Active:  AssignmentFromTaskIDs(v.ActiveTasks),
			Standby: AssignmentFromTaskIDs(v.StandbyTasks),
			Warmup:  AssignmentFromTaskIDs(v.WarmupTasks),
		})
		return nil
	case *model.StreamsGroupCurrentMemberAssignmentKey:
		v, err := castValue[*model.StreamsGroupCurrentMemberAssignmentValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewStreamsGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.resetMemberAssignment(k.MemberID)
			return nil
		}
		member := group.memberOrNew(k.MemberID)
		member.MemberEpoch = v.MemberEpoch
		member.PreviousMemberEpoch = v.PreviousMemberEpoch
		member.State = MemberState(v.State)
		member.Assigned = AssignmentFromTaskIDs(v.ActiveTasks)
		member.StandbyTasks = AssignmentFromTaskIDs(v.StandbyTasks)
		member.WarmupTasks = AssignmentFromTaskIDs(v.WarmupTasks)
		member.PendingRevocation = AssignmentFromTaskIDs(v.ActiveTasksPendingRevocation)
		group.updateMember(member)
		return nil
	case *model.StreamsGroupTopologyKey:
		v, err := castValue[*model.StreamsGroupTopologyValue](key, value)
		if err != nil {
			return err
		}
		group, ok, err := replayTarget(m, k.GroupID, v != nil, NewStreamsGroup)
		if err != nil || !ok {
			return err
		}
		if v == nil {
			group.setTopology(nil)
		} else {
			group.setTopology(&StreamsTopology{Epoch: v.Epoch, Subtopologies: v.Subtopologies})
		}
		return nil
	}
	return errors.Wrapf(ErrIllegalState, "%s is not a group record", key.RecordType())
}

func (m *GroupMetadataManager) replayGroupMetadata(groupID string, value *model.GroupMetadataValue) error {
	if value == nil {
		group, ok := m.groups[groupID]
		if !ok {
			return nil
		}
		if group.Type() != ClassicGroupType {
			return errors.Wrapf(ErrIllegalState, "group metadata tombstone for %s group %s", group.Type(), groupID)
		}
		delete(m.groups, groupID)
		return nil
	}
	group, _, err := replayTarget(m, groupID, true, NewClassicGroup)
	if err != nil {
		return err
	}
	group.replay(value)
	return nil
}

func (m *GroupMetadataManager) replayConsumerGroupMetadata(groupID string, value *model.ConsumerGroupMetadataValue) error {
	group, ok, err := replayTarget(m, groupID, value != nil, NewConsumerGroup)
	if err != nil || !ok {
		return err
	}
	if value == nil {
		return m.removeModernGroup(&group.modernGroup)
	}
	group.setGroupEpoch(value.Epoch, value.MetadataHash)
	return nil
}

// removeModernGroup applies the epoch tombstone, the last record written when
// a group is deleted.
func (m *GroupMetadataManager) removeModernGroup(group *modernGroup) error {
	if len(group.members) > 0 {
		return errors.Wrapf(ErrIllegalState, "group %s still has %d members", group.groupID, len(group.members))
	}
	delete(m.groups, group.groupID)
	return nil
}

// replayTarget returns the group a record applies to, creating it when
// create is set. An empty classic group holding only offsets is replaced by
// the new variant.
func replayTarget[G Group](m *GroupMetadataManager, groupID string, create bool, newGroup func(string) G) (G, bool, error) {
	var zero G
	group, ok := m.groups[groupID]
	if ok {
		if g, ok := group.(G); ok {
			return g, true, nil
		}
		if !create || !isSimpleClassicGroup(group) {
			return zero, false, errors.Wrapf(ErrIllegalState, "group %s is a %s group", groupID, group.Type())
		}
	} else if !create {
		m.logger.GroupID(groupID).Debugf("tombstone of an unknown group ignored")
		return zero, false, nil
	}
	g := newGroup(groupID)
	m.groups[groupID] = g
	return g, true, nil
}

// castValue treats a nil value, typed or not, as a tombstone.
func castValue[T model.RecordValue](key model.RecordKey, value model.RecordValue) (T, error) {
	var zero T
	if isNil(value) {
		return zero, nil
	}
	v, ok := value.(T)
	if !ok {
		return zero, errors.Wrapf(ErrIllegalState, "%s record carries a %T value", key.RecordType(), value)
	}
	return v, nil
}

// isNil also catches a nil pointer held by a non nil interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
