package model

type StreamsGroupMetadataKey struct {
	GroupID string `json:"groupId"`
}

func (*StreamsGroupMetadataKey) RecordType() RecordType { return StreamsGroupMetadataRecordType }

type StreamsGroupMetadataValue struct {
	Epoch        int32  `json:"epoch"`
	MetadataHash uint64 `json:"metadataHash"`
}

func (*StreamsGroupMetadataValue) isRecordValue() {}

type StreamsGroupPartitionMetadataKey struct {
	GroupID string `json:"groupId"`
}

func (*StreamsGroupPartitionMetadataKey) RecordType() RecordType {
	return StreamsGroupPartitionMetadataRecordType
}

type StreamsGroupPartitionMetadataValue struct {
	Topics []TopicMetadata `json:"topics"`
}

func (*StreamsGroupPartitionMetadataValue) isRecordValue() {}

type StreamsGroupMemberMetadataKey struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
}

func (*StreamsGroupMemberMetadataKey) RecordType() RecordType {
	return StreamsGroupMemberMetadataRecordType
}

type StreamsGroupMemberMetadataValue struct {
	InstanceID         string     `json:"instanceId"`
	RackID             string     `json:"rackId"`
	ClientID           string     `json:"clientId"`
	ClientHost         string     `json:"clientHost"`
	RebalanceTimeoutMs int32      `json:"rebalanceTimeoutMs"`
	TopologyEpoch      int32      `json:"topologyEpoch"`
	ProcessID          string     `json:"processId"`
	UserEndpoint       string     `json:"userEndpoint"`
	ClientTags         []KeyValue `json:"clientTags"`
}

func (*StreamsGroupMemberMetadataValue) isRecordValue() {}

type StreamsGroupTargetAssignmentMetadataKey struct {
	GroupID string `json:"groupId"`
}

func (*StreamsGroupTargetAssignmentMetadataKey) RecordType() RecordType {
	return StreamsGroupTargetAssignmentMetadataRecordType
}

type StreamsGroupTargetAssignmentMetadataValue struct {
	AssignmentEpoch int32 `json:"assignmentEpoch"`
}

func (*StreamsGroupTargetAssignmentMetadataValue) isRecordValue() {}

type StreamsGroupTargetAssignmentMemberKey struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
}

func (*StreamsGroupTargetAssignmentMemberKey) RecordType() RecordType {
	return StreamsGroupTargetAssignmentMemberRecordType
}

type StreamsGroupTargetAssignmentMemberValue struct {
	ActiveTasks  []TaskIDs `json:"activeTasks"`
	StandbyTasks []TaskIDs `json:"standbyTasks"`
	WarmupTasks  []TaskIDs `json:"warmupTasks"`
}

func (*StreamsGroupTargetAssignmentMemberValue) isRecordValue() {}

type StreamsGroupCurrentMemberAssignmentKey struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
}

func (*StreamsGroupCurrentMemberAssignmentKey) RecordType() RecordType {
	return StreamsGroupCurrentMemberAssignmentRecordType
}

type StreamsGroupCurrentMemberAssignmentValue struct {
	MemberEpoch                  int32     `json:"memberEpoch"`
	PreviousMemberEpoch          int32     `json:"previousMemberEpoch"`
	State                        int8      `json:"state"`
	ActiveTasks                  []TaskIDs `json:"activeTasks"`
	StandbyTasks                 []TaskIDs `json:"standbyTasks"`
	WarmupTasks                  []TaskIDs `json:"warmupTasks"`
	ActiveTasksPendingRevocation []TaskIDs `json:"activeTasksPendingRevocation"`
}

func (*StreamsGroupCurrentMemberAssignmentValue) isRecordValue() {}

type StreamsGroupTopologyKey struct {
	GroupID string `json:"groupId"`
}

func (*StreamsGroupTopologyKey) RecordType() RecordType { return StreamsGroupTopologyRecordType }

type StreamsGroupTopologyValue struct {
	Epoch         int32         `json:"epoch"`
	Subtopologies []Subtopology `json:"subtopologies"`
}

func (*StreamsGroupTopologyValue) isRecordValue() {}

type Subtopology struct {
	SubtopologyID         string   `json:"subtopologyId"`
	SourceTopics          []string `json:"sourceTopics"`
	RepartitionSinkTopics []string `json:"repartitionSinkTopics"`
	StateChangelogTopics  []string `json:"stateChangelogTopics"`
}
