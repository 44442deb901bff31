package constant

import "time"

const (
	DefaultProducerSendTimeout = 1 * time.Second
	DefaultMaxPendingMsg       = 100

	PartitionSuffixFormat = "-partition-%d"
	TopicNameFormat       = "persistent://%s/%s/%s"

	LogReaderName = "GROUP_COORDINATOR_LOG_REPLAY"
)

const (
	DefaultRedisStream    = "__consumer_offsets"
	DefaultRedisReadBatch = int64(100)
)

// message properties and stream fields of a log batch
const (
	BatchBaseOffset = "baseOffset"
	BatchEntryCount = "entryCount"
	BatchPayload    = "payload"
)

const (
	AlreadyExistsErr = "already exists"
)
