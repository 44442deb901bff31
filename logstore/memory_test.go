package logstore

import (
	"context"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func replayAll(t *testing.T, l Log) []Entry {
	var replayed []Entry
	err := l.Replay(context.Background(), func(entry Entry) error {
		replayed = append(replayed, entry)
		return nil
	})
	require.Nil(t, err)
	return replayed
}

func TestMemoryLogAppendAndReplay(t *testing.T) {
	memoryLog := NewMemoryLog()
	entries := testEntries()

	base, err := memoryLog.Append(context.Background(), entries[:2])
	require.Nil(t, err)
	assert.Equal(t, int64(0), base)
	base, err = memoryLog.Append(context.Background(), entries[2:])
	require.Nil(t, err)
	assert.Equal(t, int64(2), base)
	assert.Equal(t, int64(4), memoryLog.Size())

	base, err = memoryLog.Append(context.Background(), nil)
	require.Nil(t, err)
	assert.Equal(t, int64(4), base)

	replayed := replayAll(t, memoryLog)
	require.Len(t, replayed, 4)
	for i, entry := range replayed {
		assert.Equal(t, int64(i), entry.Offset)
	}
}

func TestMemoryLogReplayStopsAtFirstError(t *testing.T) {
	memoryLog := NewMemoryLog()
	_, err := memoryLog.Append(context.Background(), testEntries())
	require.Nil(t, err)

	stop := errors.New("stop")
	calls := 0
	err = memoryLog.Replay(context.Background(), func(Entry) error {
		calls++
		return stop
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 1, calls)
}

func TestMemoryLogInjectedFailures(t *testing.T) {
	memoryLog := NewMemoryLog()
	memoryLog.FailNextAppends(1)
	_, err := memoryLog.Append(context.Background(), testEntries())
	assert.NotNil(t, err)
	assert.Equal(t, int64(0), memoryLog.Size())

	_, err = memoryLog.Append(context.Background(), testEntries())
	assert.Nil(t, err)
}

func TestMemoryLogClosed(t *testing.T) {
	memoryLog := NewMemoryLog()
	assert.Nil(t, memoryLog.Close())
	_, err := memoryLog.Append(context.Background(), testEntries())
	assert.ErrorIs(t, err, ErrLogClosed)
	err = memoryLog.Replay(context.Background(), func(Entry) error { return nil })
	assert.ErrorIs(t, err, ErrLogClosed)
}
