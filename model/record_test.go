package model

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestNewKeyAndValueCoverEveryRecordType(t *testing.T) {
	for recordType := range recordTypeNames {
		key, err := NewKey(recordType)
		assert.Nil(t, err)
		assert.Equal(t, recordType, key.RecordType())
		value, err := NewValue(recordType)
		assert.Nil(t, err)
		assert.NotNil(t, value)
	}
	_, err := NewKey(RecordType(99))
	assert.NotNil(t, err)
	assert.Equal(t, "RecordType(99)", RecordType(99).String())
}

func TestLegacyOffsetCommitConversion(t *testing.T) {
	key := &LegacyOffsetCommitKey{Group: "group", Topic: "foo", Partition: 1}
	assert.Equal(t, &OffsetCommitKey{Group: "group", Topic: "foo", Partition: 1}, key.ToOffsetCommit())

	value := &LegacyOffsetCommitValue{Offset: 100, Metadata: "Metadata", CommitTimestamp: 12345}
	assert.Equal(t, &OffsetCommitValue{
		Offset:          100,
		LeaderEpoch:     -1,
		Metadata:        "Metadata",
		CommitTimestamp: 12345,
		ExpireTimestamp: -1,
	}, value.ToOffsetCommit())

	var tombstone *LegacyOffsetCommitValue
	assert.Nil(t, tombstone.ToOffsetCommit())
}

func TestTombstone(t *testing.T) {
	record := NewTombstone(&GroupMetadataKey{Group: "group"})
	assert.True(t, record.IsTombstone())
	record = NewRecord(&GroupMetadataKey{Group: "group"}, &GroupMetadataValue{})
	assert.False(t, record.IsTombstone())
}

func TestAppendFuture(t *testing.T) {
	future := NewAppendFuture()
	assert.False(t, future.IsDone())
	assert.Nil(t, future.Err())

	appendErr := errors.New("append failed")
	future.Complete(appendErr)
	future.Complete(nil)
	assert.True(t, future.IsDone())
	assert.Equal(t, appendErr, future.Err())
	assert.Equal(t, appendErr, future.Wait(context.Background()))
}

func TestAppendFutureOnComplete(t *testing.T) {
	future := NewAppendFuture()
	var before []error
	future.OnComplete(func(err error) { before = append(before, err) })
	assert.Empty(t, before)

	appendErr := errors.New("append failed")
	future.Complete(appendErr)
	future.Complete(nil)
	assert.Equal(t, []error{appendErr}, before)

	var after error
	future.OnComplete(func(err error) { after = err })
	assert.Equal(t, appendErr, after)
}

func TestAppendFutureWaitHonorsContext(t *testing.T) {
	future := NewAppendFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, future.Wait(ctx))
}

func TestResultErase(t *testing.T) {
	result := NewResult([]Record{NewTombstone(&GroupMetadataKey{Group: "group"})}, "response")
	erased := result.Erase()
	assert.Equal(t, result.Records, erased.Records)
	assert.Equal(t, "response", erased.Response)
}
