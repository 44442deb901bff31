package logstore

import (
	"context"
	"github.com/protocol-laboratory/group-coordinator-go/model"
)

// Entry is one record or one end transaction marker of the coordinator log.
type Entry struct {
	Offset        int64
	ProducerID    int64
	ProducerEpoch int16
	// Record is nil for control entries, which carry Marker instead.
	Record *model.Record
	Marker model.TransactionResult
}

func RecordEntry(producerID int64, producerEpoch int16, record model.Record) Entry {
	return Entry{ProducerID: producerID, ProducerEpoch: producerEpoch, Record: &record}
}

func MarkerEntry(producerID int64, producerEpoch int16, result model.TransactionResult) Entry {
	return Entry{ProducerID: producerID, ProducerEpoch: producerEpoch, Marker: result}
}

func (e Entry) IsControl() bool {
	return e.Record == nil
}

// Log is the durable, ordered log of one coordinator partition. Appends and
// replays are driven by a single goroutine.
type Log interface {
	// Append writes the entries as one atomic batch and returns the offset
	// given to the first of them, the others follow contiguously.
	Append(ctx context.Context, entries []Entry) (int64, error)
	// Replay calls fn for every entry in offset order and stops at the first
	// error.
	Replay(ctx context.Context, fn func(Entry) error) error
	Close() error
}
