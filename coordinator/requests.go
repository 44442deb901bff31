package coordinator

import (
	"github.com/protocol-laboratory/group-coordinator-go/model"
)

type ConsumerGroupHeartbeatRequest struct {
	GroupID     string
	MemberID    string
	MemberEpoch int32
	InstanceID  *string
	RackID      *string
	// RebalanceTimeoutMs is -1 when unchanged.
	RebalanceTimeoutMs int32
	// nil fields are unchanged since the previous heartbeat.
	SubscribedTopicNames []string
	SubscribedTopicRegex *string
	ServerAssignor       *string
	TopicPartitions      []model.TopicPartitions
}

type ConsumerGroupHeartbeatResponse struct {
	MemberID            string
	MemberEpoch         int32
	HeartbeatIntervalMs int32
	// Assignment is nil when the member already knows it.
	Assignment []model.TopicPartitions
}

type ShareGroupHeartbeatRequest struct {
	GroupID              string
	MemberID             string
	MemberEpoch          int32
	RackID               *string
	SubscribedTopicNames []string
}

type ShareGroupHeartbeatResponse struct {
	MemberID            string
	MemberEpoch         int32
	HeartbeatIntervalMs int32
	Assignment          []model.TopicPartitions
}

type StreamsGroupHeartbeatRequest struct {
	GroupID            string
	MemberID           string
	MemberEpoch        int32
	InstanceID         *string
	RackID             *string
	RebalanceTimeoutMs int32
	// Topology is sent when joining.
	Topology     *StreamsTopology
	ProcessID    string
	UserEndpoint string
	ClientTags   map[string]string
	ActiveTasks  []model.TaskIDs
	StandbyTasks []model.TaskIDs
	WarmupTasks  []model.TaskIDs
}

const StreamsStatusMissingSourceTopics = "MISSING_SOURCE_TOPICS"

type StreamsGroupStatus struct {
	Code   string
	Detail string
}

type StreamsGroupHeartbeatResponse struct {
	MemberID            string
	MemberEpoch         int32
	HeartbeatIntervalMs int32
	ActiveTasks         []model.TaskIDs
	StandbyTasks        []model.TaskIDs
	WarmupTasks         []model.TaskIDs
	Status              []StreamsGroupStatus
}

type OffsetCommitRequestPartition struct {
	Partition       int32
	CommittedOffset int64
	LeaderEpoch     int32
	Metadata        string
}

type OffsetCommitRequestTopic struct {
	Name       string
	Partitions []OffsetCommitRequestPartition
}

type OffsetCommitRequest struct {
	GroupID string
	// GenerationIDOrMemberEpoch is the generation for classic groups and the
	// member epoch for consumer and streams groups.
	GenerationIDOrMemberEpoch int32
	MemberID                  string
	InstanceID                string
	// RetentionTimeMs is -1 to use the broker retention.
	RetentionTimeMs int64
	Topics          []OffsetCommitRequestTopic
}

type TxnOffsetCommitRequest struct {
	OffsetCommitRequest
	TransactionalID string
	ProducerID      int64
	ProducerEpoch   int16
}

type PartitionResult struct {
	Partition int32
	ErrorCode int16
}

type TopicResult struct {
	Name       string
	Partitions []PartitionResult
}

type OffsetCommitResponse struct {
	Topics []TopicResult
}

type OffsetFetchRequestTopic struct {
	Name       string
	Partitions []int32
}

type OffsetFetchRequest struct {
	GroupID     string
	MemberID    string
	MemberEpoch int32
	// Topics is nil to fetch every committed offset of the group.
	Topics        []OffsetFetchRequestTopic
	RequireStable bool
}

type OffsetFetchPartition struct {
	Partition       int32
	CommittedOffset int64
	LeaderEpoch     int32
	Metadata        string
	ErrorCode       int16
}

type OffsetFetchTopic struct {
	Name       string
	Partitions []OffsetFetchPartition
}

type OffsetFetchResponse struct {
	GroupID   string
	Topics    []OffsetFetchTopic
	ErrorCode int16
}

type OffsetDeleteRequest struct {
	GroupID string
	Topics  []OffsetFetchRequestTopic
}

type OffsetDeleteResponse struct {
	Topics []TopicResult
}

type DeleteGroupsResult struct {
	GroupID   string
	ErrorCode int16
}

type DeleteShareGroupStateParameters struct {
	GroupID string
	Topics  []model.TopicPartitions
}

type SharePartitionDeleteResult struct {
	Parameters *DeleteShareGroupStateParameters
	Err        error
}

// EmptyDeleteShareGroupStateParameters accompanies the per group errors of a
// share partition delete.
func EmptyDeleteShareGroupStateParameters(groupID string) *DeleteShareGroupStateParameters {
	return &DeleteShareGroupStateParameters{GroupID: groupID, Topics: []model.TopicPartitions{}}
}
