package model

// RecordKey is implemented by every key schema of the coordinator log.
type RecordKey interface {
	RecordType() RecordType
}

// RecordValue is implemented by every value schema of the coordinator log.
type RecordValue interface {
	isRecordValue()
}

// Record is one entry of the coordinator log. A nil Value is a tombstone
// that removes whatever was materialized for Key.
type Record struct {
	Key   RecordKey
	Value RecordValue
}

func NewRecord(key RecordKey, value RecordValue) Record {
	return Record{Key: key, Value: value}
}

func NewTombstone(key RecordKey) Record {
	return Record{Key: key}
}

func (r Record) IsTombstone() bool {
	return r.Value == nil
}

// TopicPartitions is a topic with a sorted list of partitions. It is the
// unit used by every assignment schema.
type TopicPartitions struct {
	TopicName  string  `json:"topicName"`
	Partitions []int32 `json:"partitions"`
}

// TopicMetadata is the number of partitions of one subscribed topic.
type TopicMetadata struct {
	TopicName     string `json:"topicName"`
	NumPartitions int32  `json:"numPartitions"`
}

// TaskIDs lists the partitions (tasks) of one streams subtopology.
type TaskIDs struct {
	SubtopologyID string  `json:"subtopologyId"`
	Partitions    []int32 `json:"partitions"`
}

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
