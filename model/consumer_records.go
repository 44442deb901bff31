package model

type ConsumerGroupMetadataKey struct {
	GroupID string `json:"groupId"`
}

func (*ConsumerGroupMetadataKey) RecordType() RecordType { return ConsumerGroupMetadataRecordType }

type ConsumerGroupMetadataValue struct {
	Epoch        int32  `json:"epoch"`
	MetadataHash uint64 `json:"metadataHash"`
}

func (*ConsumerGroupMetadataValue) isRecordValue() {}

type ConsumerGroupPartitionMetadataKey struct {
	GroupID string `json:"groupId"`
}

func (*ConsumerGroupPartitionMetadataKey) RecordType() RecordType {
	return ConsumerGroupPartitionMetadataRecordType
}

type ConsumerGroupPartitionMetadataValue struct {
	Topics []TopicMetadata `json:"topics"`
}

func (*ConsumerGroupPartitionMetadataValue) isRecordValue() {}

type ConsumerGroupMemberMetadataKey struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
}

func (*ConsumerGroupMemberMetadataKey) RecordType() RecordType {
	return ConsumerGroupMemberMetadataRecordType
}

type ConsumerGroupMemberMetadataValue struct {
	InstanceID           string   `json:"instanceId"`
	RackID               string   `json:"rackId"`
	ClientID             string   `json:"clientId"`
	ClientHost           string   `json:"clientHost"`
	SubscribedTopicNames []string `json:"subscribedTopicNames"`
	SubscribedTopicRegex string   `json:"subscribedTopicRegex"`
	RebalanceTimeoutMs   int32    `json:"rebalanceTimeoutMs"`
	ServerAssignor       string   `json:"serverAssignor"`
}

func (*ConsumerGroupMemberMetadataValue) isRecordValue() {}

type ConsumerGroupTargetAssignmentMetadataKey struct {
	GroupID string `json:"groupId"`
}

func (*ConsumerGroupTargetAssignmentMetadataKey) RecordType() RecordType {
	return ConsumerGroupTargetAssignmentMetadataRecordType
}

type ConsumerGroupTargetAssignmentMetadataValue struct {
	AssignmentEpoch int32 `json:"assignmentEpoch"`
}

func (*ConsumerGroupTargetAssignmentMetadataValue) isRecordValue() {}

type ConsumerGroupTargetAssignmentMemberKey struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
}

func (*ConsumerGroupTargetAssignmentMemberKey) RecordType() RecordType {
	return ConsumerGroupTargetAssignmentMemberRecordType
}

type ConsumerGroupTargetAssignmentMemberValue struct {
	TopicPartitions []TopicPartitions `json:"topicPartitions"`
}

func (*ConsumerGroupTargetAssignmentMemberValue) isRecordValue() {}

type ConsumerGroupCurrentMemberAssignmentKey struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
}

func (*ConsumerGroupCurrentMemberAssignmentKey) RecordType() RecordType {
	return ConsumerGroupCurrentMemberAssignmentRecordType
}

type ConsumerGroupCurrentMemberAssignmentValue struct {
	MemberEpoch                 int32             `json:"memberEpoch"`
	PreviousMemberEpoch         int32             `json:"previousMemberEpoch"`
	State                       int8              `json:"state"`
	AssignedPartitions          []TopicPartitions `json:"assignedPartitions"`
	PartitionsPendingRevocation []TopicPartitions `json:"partitionsPendingRevocation"`
}

func (*ConsumerGroupCurrentMemberAssignmentValue) isRecordValue() {}

type ConsumerGroupRegularExpressionKey struct {
	GroupID string `json:"groupId"`
	Regex   string `json:"regex"`
}

func (*ConsumerGroupRegularExpressionKey) RecordType() RecordType {
	return ConsumerGroupRegularExpressionRecordType
}

type ConsumerGroupRegularExpressionValue struct {
	Topics      []string `json:"topics"`
	Version     int64    `json:"version"`
	TimestampMs int64    `json:"timestamp"`
}

func (*ConsumerGroupRegularExpressionValue) isRecordValue() {}
