package coordinator

import (
	"encoding/binary"
	"github.com/cespare/xxhash/v2"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"sort"
)

func NewOffsetCommitRecord(groupID, topic string, partition int32, offset *OffsetAndMetadata) model.Record {
	return model.NewRecord(
		&model.OffsetCommitKey{Group: groupID, Topic: topic, Partition: partition},
		&model.OffsetCommitValue{
			Offset:          offset.CommittedOffset,
			LeaderEpoch:     offset.LeaderEpoch,
			Metadata:        offset.Metadata,
			CommitTimestamp: offset.CommitTimestampMs,
			ExpireTimestamp: offset.ExpireTimestampMs,
		},
	)
}

func NewOffsetCommitTombstoneRecord(groupID, topic string, partition int32) model.Record {
	return model.NewTombstone(&model.OffsetCommitKey{Group: groupID, Topic: topic, Partition: partition})
}

func NewGroupMetadataTombstoneRecord(groupID string) model.Record {
	return model.NewTombstone(&model.GroupMetadataKey{Group: groupID})
}

func NewConsumerGroupEpochRecord(groupID string, epoch int32, metadataHash uint64) model.Record {
	return model.NewRecord(
		&model.ConsumerGroupMetadataKey{GroupID: groupID},
		&model.ConsumerGroupMetadataValue{Epoch: epoch, MetadataHash: metadataHash},
	)
}

func NewConsumerGroupEpochTombstoneRecord(groupID string) model.Record {
	return model.NewTombstone(&model.ConsumerGroupMetadataKey{GroupID: groupID})
}

func NewConsumerGroupSubscriptionMetadataRecord(groupID string, metadata map[string]int32) model.Record {
	return model.NewRecord(
		&model.ConsumerGroupPartitionMetadataKey{GroupID: groupID},
		&model.ConsumerGroupPartitionMetadataValue{Topics: topicMetadata(metadata)},
	)
}

func NewConsumerGroupSubscriptionMetadataTombstoneRecord(groupID string) model.Record {
	return model.NewTombstone(&model.ConsumerGroupPartitionMetadataKey{GroupID: groupID})
}

func NewConsumerGroupMemberSubscriptionRecord(groupID string, member *Member) model.Record {
	return model.NewRecord(
		&model.ConsumerGroupMemberMetadataKey{GroupID: groupID, MemberID: member.MemberID},
		&model.ConsumerGroupMemberMetadataValue{
			InstanceID:           member.InstanceID,
			RackID:               member.RackID,
			ClientID:             member.ClientID,
			ClientHost:           member.ClientHost,
			SubscribedTopicNames: member.SubscribedTopicNames,
			SubscribedTopicRegex: member.SubscribedTopicRegex,
			RebalanceTimeoutMs:   member.RebalanceTimeoutMs,
			ServerAssignor:       member.ServerAssignor,
		},
	)
}

func NewConsumerGroupMemberSubscriptionTombstoneRecord(groupID, memberID string) model.Record {
	return model.NewTombstone(&model.ConsumerGroupMemberMetadataKey{GroupID: groupID, MemberID: memberID})
}

func NewConsumerGroupTargetAssignmentRecord(groupID, memberID string, target Assignment) model.Record {
	return model.NewRecord(
		&model.ConsumerGroupTargetAssignmentMemberKey{GroupID: groupID, MemberID: memberID},
		&model.ConsumerGroupTargetAssignmentMemberValue{TopicPartitions: target.TopicPartitions()},
	)
}

func NewConsumerGroupTargetAssignmentTombstoneRecord(groupID, memberID string) model.Record {
	return model.NewTombstone(&model.ConsumerGroupTargetAssignmentMemberKey{GroupID: groupID, MemberID: memberID})
}

func NewConsumerGroupTargetAssignmentEpochRecord(groupID string, assignmentEpoch int32) model.Record {
	return model.NewRecord(
		&model.ConsumerGroupTargetAssignmentMetadataKey{GroupID: groupID},
		&model.ConsumerGroupTargetAssignmentMetadataValue{AssignmentEpoch: assignmentEpoch},
	)
}

func NewConsumerGroupTargetAssignmentEpochTombstoneRecord(groupID string) model.Record {
	return model.NewTombstone(&model.ConsumerGroupTargetAssignmentMetadataKey{GroupID: groupID})
}

func NewConsumerGroupCurrentAssignmentRecord(groupID string, member *Member) model.Record {
	return model.NewRecord(
		&model.ConsumerGroupCurrentMemberAssignmentKey{GroupID: groupID, MemberID: member.MemberID},
		&model.ConsumerGroupCurrentMemberAssignmentValue{
			MemberEpoch:                 member.MemberEpoch,
			PreviousMemberEpoch:         member.PreviousMemberEpoch,
			State:                       int8(member.State),
			AssignedPartitions:          member.Assigned.TopicPartitions(),
			PartitionsPendingRevocation: member.PendingRevocation.TopicPartitions(),
		},
	)
}

func NewConsumerGroupCurrentAssignmentTombstoneRecord(groupID, memberID string) model.Record {
	return model.NewTombstone(&model.ConsumerGroupCurrentMemberAssignmentKey{GroupID: groupID, MemberID: memberID})
}

func NewConsumerGroupRegularExpressionRecord(groupID, regex string, resolved ResolvedRegex) model.Record {
	return model.NewRecord(
		&model.ConsumerGroupRegularExpressionKey{GroupID: groupID, Regex: regex},
		&model.ConsumerGroupRegularExpressionValue{
			Topics:      resolved.Topics,
			Version:     resolved.Version,
			TimestampMs: resolved.TimestampMs,
		},
	)
}

func NewConsumerGroupRegularExpressionTombstoneRecord(groupID, regex string) model.Record {
	return model.NewTombstone(&model.ConsumerGroupRegularExpressionKey{GroupID: groupID, Regex: regex})
}

func NewShareGroupEpochRecord(groupID string, epoch int32, metadataHash uint64) model.Record {
	return model.NewRecord(
		&model.ShareGroupMetadataKey{GroupID: groupID},
		&model.ShareGroupMetadataValue{Epoch: epoch, MetadataHash: metadataHash},
	)
}

func NewShareGroupEpochTombstoneRecord(groupID string) model.Record {
	return model.NewTombstone(&model.ShareGroupMetadataKey{GroupID: groupID})
}

func NewShareGroupSubscriptionMetadataRecord(groupID string, metadata map[string]int32) model.Record {
	return model.NewRecord(
		&model.ShareGroupPartitionMetadataKey{GroupID: groupID},
		&model.ShareGroupPartitionMetadataValue{Topics: topicMetadata(metadata)},
	)
}

func NewShareGroupSubscriptionMetadataTombstoneRecord(groupID string) model.Record {
	return model.NewTombstone(&model.ShareGroupPartitionMetadataKey{GroupID: groupID})
}

func NewShareGroupMemberSubscriptionRecord(groupID string, member *Member) model.Record {
	return model.NewRecord(
		&model.ShareGroupMemberMetadataKey{GroupID: groupID, MemberID: member.MemberID},
		&model.ShareGroupMemberMetadataValue{
			RackID:               member.RackID,
			ClientID:             member.ClientID,
			ClientHost:           member.ClientHost,
			SubscribedTopicNames: member.SubscribedTopicNames,
		},
	)
}

func NewShareGroupMemberSubscriptionTombstoneRecord(groupID, memberID string) model.Record {
	return model.NewTombstone(&model.ShareGroupMemberMetadataKey{GroupID: groupID, MemberID: memberID})
}

func NewShareGroupTargetAssignmentRecord(groupID, memberID string, target Assignment) model.Record {
	return model.NewRecord(
		&model.ShareGroupTargetAssignmentMemberKey{GroupID: groupID, MemberID: memberID},
		&model.ShareGroupTargetAssignmentMemberValue{TopicPartitions: target.TopicPartitions()},
	)
}

func NewShareGroupTargetAssignmentTombstoneRecord(groupID, memberID string) model.Record {
	return model.NewTombstone(&model.ShareGroupTargetAssignmentMemberKey{GroupID: groupID, MemberID: memberID})
}

func NewShareGroupTargetAssignmentEpochRecord(groupID string, assignmentEpoch int32) model.Record {
	return model.NewRecord(
		&model.ShareGroupTargetAssignmentMetadataKey{GroupID: groupID},
		&model.ShareGroupTargetAssignmentMetadataValue{AssignmentEpoch: assignmentEpoch},
	)
}

func NewShareGroupTargetAssignmentEpochTombstoneRecord(groupID string) model.Record {
	return model.NewTombstone(&model.ShareGroupTargetAssignmentMetadataKey{GroupID: groupID})
}

func NewShareGroupCurrentAssignmentRecord(groupID string, member *Member) model.Record {
	return model.NewRecord(
		&model.ShareGroupCurrentMemberAssignmentKey{GroupID: groupID, MemberID: member.MemberID},
		&model.ShareGroupCurrentMemberAssignmentValue{
			MemberEpoch:         member.MemberEpoch,
			PreviousMemberEpoch: member.PreviousMemberEpoch,
			State:               int8(member.State),
			AssignedPartitions:  member.Assigned.TopicPartitions(),
		},
	)
}

func NewShareGroupCurrentAssignmentTombstoneRecord(groupID, memberID string) model.Record {
	return model.NewTombstone(&model.ShareGroupCurrentMemberAssignmentKey{GroupID: groupID, MemberID: memberID})
}

func NewShareGroupStatePartitionMetadataRecord(groupID string, initialized Assignment, deleting []string) model.Record {
	return model.NewRecord(
		&model.ShareGroupStatePartitionMetadataKey{GroupID: groupID},
		&model.ShareGroupStatePartitionMetadataValue{
			InitializedTopics: initialized.TopicPartitions(),
			DeletingTopics:    sortedStrings(deleting),
		},
	)
}

func NewShareGroupStatePartitionMetadataTombstoneRecord(groupID string) model.Record {
	return model.NewTombstone(&model.ShareGroupStatePartitionMetadataKey{GroupID: groupID})
}

func NewStreamsGroupEpochRecord(groupID string, epoch int32, metadataHash uint64) model.Record {
	return model.NewRecord(
		&model.StreamsGroupMetadataKey{GroupID: groupID},
		&model.StreamsGroupMetadataValue{Epoch: epoch, MetadataHash: metadataHash},
	)
}

func NewStreamsGroupEpochTombstoneRecord(groupID string) model.Record {
	return model.NewTombstone(&model.StreamsGroupMetadataKey{GroupID: groupID})
}

func NewStreamsGroupPartitionMetadataRecord(groupID string, metadata map[string]int32) model.Record {
	return model.NewRecord(
		&model.StreamsGroupPartitionMetadataKey{GroupID: groupID},
		&model.StreamsGroupPartitionMetadataValue{Topics: topicMetadata(metadata)},
	)
}

func NewStreamsGroupPartitionMetadataTombstoneRecord(groupID string) model.Record {
	return model.NewTombstone(&model.StreamsGroupPartitionMetadataKey{GroupID: groupID})
}

func NewStreamsGroupMemberRecord(groupID string, member *Member) model.Record {
	return model.NewRecord(
		&model.StreamsGroupMemberMetadataKey{GroupID: groupID, MemberID: member.MemberID},
		&model.StreamsGroupMemberMetadataValue{
			InstanceID:         member.InstanceID,
			RackID:             member.RackID,
			ClientID:           member.ClientID,
			ClientHost:         member.ClientHost,
			RebalanceTimeoutMs: member.RebalanceTimeoutMs,
			TopologyEpoch:      member.TopologyEpoch,
			ProcessID:          member.ProcessID,
			UserEndpoint:       member.UserEndpoint,
			ClientTags:         keyValuesFromTags(member.ClientTags),
		},
	)
}

func NewStreamsGroupMemberTombstoneRecord(groupID, memberID string) model.Record {
	return model.NewTombstone(&model.StreamsGroupMemberMetadataKey{GroupID: groupID, MemberID: memberID})
}

func NewStreamsGroupTargetAssignmentRecord(groupID, memberID string, target StreamsTarget) model.Record {
	return model.NewRecord(
		&model.StreamsGroupTargetAssignmentMemberKey{GroupID: groupID, MemberID: memberID},
		&model.StreamsGroupTargetAssignmentMemberValue{
			ActiveTasks:  target.Active.TaskIDs(),
			StandbyTasks: target.Standby.TaskIDs(),
			WarmupTasks:  target.Warmup.TaskIDs(),
		},
	)
}

func NewStreamsGroupTargetAssignmentTombstoneRecord(groupID, memberID string) model.Record {
	return model.NewTombstone(&model.StreamsGroupTargetAssignmentMemberKey{GroupID: groupID, MemberID: memberID})
}

func NewStreamsGroupTargetAssignmentEpochRecord(groupID string, assignmentEpoch int32) model.Record {
	return model.NewRecord(
		&model.StreamsGroupTargetAssignmentMetadataKey{GroupID: groupID},
		&model.StreamsGroupTargetAssignmentMetadataValue{AssignmentEpoch: assignmentEpoch},
	)
}

func NewStreamsGroupTargetAssignmentEpochTombstoneRecord(groupID string) model.Record {
	return model.NewTombstone(&model.StreamsGroupTargetAssignmentMetadataKey{GroupID: groupID})
}

func NewStreamsGroupCurrentAssignmentRecord(groupID string, member *Member) model.Record {
	return model.NewRecord(
		&model.StreamsGroupCurrentMemberAssignmentKey{GroupID: groupID, MemberID: member.MemberID},
		&model.StreamsGroupCurrentMemberAssignmentValue{
			MemberEpoch:                  member.MemberEpoch,
			PreviousMemberEpoch:          member.PreviousMemberEpoch,
			State:                        int8(member.State),
			ActiveTasks:                  member.Assigned.TaskIDs(),
			StandbyTasks:                 member.StandbyTasks.TaskIDs(),
			WarmupTasks:                  member.WarmupTasks.TaskIDs(),
			ActiveTasksPendingRevocation: member.PendingRevocation.TaskIDs(),
		},
	)
}

func NewStreamsGroupCurrentAssignmentTombstoneRecord(groupID, memberID string) model.Record {
	return model.NewTombstone(&model.StreamsGroupCurrentMemberAssignmentKey{GroupID: groupID, MemberID: memberID})
}

func NewStreamsGroupTopologyRecord(groupID string, topology *StreamsTopology) model.Record {
	return model.NewRecord(
		&model.StreamsGroupTopologyKey{GroupID: groupID},
		&model.StreamsGroupTopologyValue{Epoch: topology.Epoch, Subtopologies: topology.Subtopologies},
	)
}

func NewStreamsGroupTopologyTombstoneRecord(groupID string) model.Record {
	return model.NewTombstone(&model.StreamsGroupTopologyKey{GroupID: groupID})
}

func topicMetadata(metadata map[string]int32) []model.TopicMetadata {
	topics := make([]model.TopicMetadata, 0, len(metadata))
	for _, name := range sortedKeys(metadata) {
		topics = append(topics, model.TopicMetadata{TopicName: name, NumPartitions: metadata[name]})
	}
	return topics
}

func metadataFromTopics(topics []model.TopicMetadata) map[string]int32 {
	metadata := make(map[string]int32, len(topics))
	for _, topic := range topics {
		metadata[topic.TopicName] = topic.NumPartitions
	}
	return metadata
}

// computeMetadataHash fingerprints the partition counts of the subscribed
// topics. A change of the hash triggers a new group epoch.
func computeMetadataHash(metadata map[string]int32) uint64 {
	if len(metadata) == 0 {
		return 0
	}
	digest := xxhash.New()
	var buf [4]byte
	for _, name := range sortedKeys(metadata) {
		_, _ = digest.WriteString(name)
		binary.BigEndian.PutUint32(buf[:], uint32(metadata[name]))
		_, _ = digest.Write(buf[:])
	}
	return digest.Sum64()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
