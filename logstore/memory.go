package logstore

import (
	"context"
	"github.com/pkg/errors"
	"sync"
)

var ErrLogClosed = errors.New("log closed")

// MemoryLog keeps encoded batches in memory. It loses everything with the
// process and is meant for tests and single node trials.
type MemoryLog struct {
	mutex      sync.Mutex
	batches    [][]byte
	nextOffset int64
	closed     bool
	// failures makes the next appends fail, tests use it.
	failures int
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Append(_ context.Context, entries []Entry) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return 0, ErrLogClosed
	}
	if m.failures > 0 {
		m.failures--
		return 0, errors.New("injected append failure")
	}
	base := m.nextOffset
	if len(entries) == 0 {
		return base, nil
	}
	data, err := EncodeBatch(base, entries)
	if err != nil {
		return 0, err
	}
	m.batches = append(m.batches, data)
	m.nextOffset += int64(len(entries))
	return base, nil
}

func (m *MemoryLog) Replay(ctx context.Context, fn func(Entry) error) error {
	m.mutex.Lock()
	if m.closed {
		m.mutex.Unlock()
		return ErrLogClosed
	}
	batches := make([][]byte, len(m.batches))
	copy(batches, m.batches)
	m.mutex.Unlock()
	for _, data := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := DecodeBatch(data)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := fn(entry); err != nil {
				return err
			}
		}
	}
	return nil
}

// FailNextAppends makes the next n appends fail.
func (m *MemoryLog) FailNextAppends(n int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failures = n
}

// Size is the number of entries appended so far.
func (m *MemoryLog) Size() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.nextOffset
}

func (m *MemoryLog) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	return nil
}
