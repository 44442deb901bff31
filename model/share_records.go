package model

type ShareGroupMetadataKey struct {
	GroupID string `json:"groupId"`
}

func (*ShareGroupMetadataKey) RecordType() RecordType { return ShareGroupMetadataRecordType }

type ShareGroupMetadataValue struct {
	Epoch        int32  `json:"epoch"`
	MetadataHash uint64 `json:"metadataHash"`
}

func (*ShareGroupMetadataValue) isRecordValue() {}

type ShareGroupPartitionMetadataKey struct {
	GroupID string `json:"groupId"`
}

func (*ShareGroupPartitionMetadataKey) RecordType() RecordType {
	return ShareGroupPartitionMetadataRecordType
}

type ShareGroupPartitionMetadataValue struct {
	Topics []TopicMetadata `json:"topics"`
}

func (*ShareGroupPartitionMetadataValue) isRecordValue() {}

type ShareGroupMemberMetadataKey struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
}

func (*ShareGroupMemberMetadataKey) RecordType() RecordType { return ShareGroupMemberMetadataRecordType }

type ShareGroupMemberMetadataValue struct {
	RackID               string   `json:"rackId"`
	ClientID             string   `json:"clientId"`
	ClientHost           string   `json:"clientHost"`
	SubscribedTopicNames []string `json:"subscribedTopicNames"`
}

func (*ShareGroupMemberMetadataValue) isRecordValue() {}

type ShareGroupTargetAssignmentMetadataKey struct {
	GroupID string `json:"groupId"`
}

func (*ShareGroupTargetAssignmentMetadataKey) RecordType() RecordType {
	return ShareGroupTargetAssignmentMetadataRecordType
}

type ShareGroupTargetAssignmentMetadataValue struct {
	AssignmentEpoch int32 `json:"assignmentEpoch"`
}

func (*ShareGroupTargetAssignmentMetadataValue) isRecordValue() {}

type ShareGroupTargetAssignmentMemberKey struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
}

func (*ShareGroupTargetAssignmentMemberKey) RecordType() RecordType {
	return ShareGroupTargetAssignmentMemberRecordType
}

type ShareGroupTargetAssignmentMemberValue struct {
	TopicPartitions []TopicPartitions `json:"topicPartitions"`
}

func (*ShareGroupTargetAssignmentMemberValue) isRecordValue() {}

type ShareGroupCurrentMemberAssignmentKey struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
}

func (*ShareGroupCurrentMemberAssignmentKey) RecordType() RecordType {
	return ShareGroupCurrentMemberAssignmentRecordType
}

type ShareGroupCurrentMemberAssignmentValue struct {
	MemberEpoch         int32             `json:"memberEpoch"`
	PreviousMemberEpoch int32             `json:"previousMemberEpoch"`
	State               int8              `json:"state"`
	AssignedPartitions  []TopicPartitions `json:"assignedPartitions"`
}

func (*ShareGroupCurrentMemberAssignmentValue) isRecordValue() {}

// ShareGroupStatePartitionMetadataKey tracks which topics have persisted share
// state that must be deleted together with the group.
type ShareGroupStatePartitionMetadataKey struct {
	GroupID string `json:"groupId"`
}

func (*ShareGroupStatePartitionMetadataKey) RecordType() RecordType {
	return ShareGroupStatePartitionMetadataRecordType
}

type ShareGroupStatePartitionMetadataValue struct {
	InitializedTopics []TopicPartitions `json:"initializedTopics"`
	DeletingTopics    []string          `json:"deletingTopics"`
}

func (*ShareGroupStatePartitionMetadataValue) isRecordValue() {}
