package model

import (
	"fmt"
)

const (
	NoProducerID    = int64(-1)
	NoProducerEpoch = int16(-1)
)

type TopicPartition struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}

// TransactionResult is the outcome carried by an end transaction marker.
type TransactionResult int8

const (
	TransactionResultCommit TransactionResult = iota + 1
	TransactionResultAbort
)

func (r TransactionResult) String() string {
	switch r {
	case TransactionResultCommit:
		return "COMMIT"
	case TransactionResultAbort:
		return "ABORT"
	}
	return "NONE"
}
