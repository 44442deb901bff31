package runtime

import (
	"context"
	"github.com/google/go-cmp/cmp"
	"github.com/protocol-laboratory/group-coordinator-go/coordinator"
	"github.com/protocol-laboratory/group-coordinator-go/log"
	"github.com/protocol-laboratory/group-coordinator-go/logstore"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/protocol-laboratory/group-coordinator-go/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kerr"
	"testing"
	"time"
)

var testImage = coordinator.NewMetadataImage(1, coordinator.TopicImage{Name: "foo", NumPartitions: 3})

func testConfig() *Config {
	config := DefaultConfig()
	config.PollIntervalMs = 3600000
	config.AppendRetryInitialMs = 1
	config.AppendRetryMaxElapsedMs = 1000
	config.AppendMaxRetries = 2
	return config
}

func newTestRuntime(t *testing.T, clock *timer.MockClock, l logstore.Log) *Runtime {
	shard, err := coordinator.NewShard(coordinator.ShardConfig{Clock: clock, Logger: log.NewDiscardLogger()})
	require.Nil(t, err)
	r, err := New(testConfig(), shard, l, log.NewDiscardLogger(), nil)
	require.Nil(t, err)
	return r
}

func startTestRuntime(t *testing.T, clock *timer.MockClock, l logstore.Log) *Runtime {
	r := newTestRuntime(t, clock, l)
	require.Nil(t, r.Start(context.Background(), testImage))
	assert.Equal(t, StateActive, r.State())
	return r
}

func join(groupID string) *coordinator.ConsumerGroupHeartbeatRequest {
	return &coordinator.ConsumerGroupHeartbeatRequest{
		GroupID:              groupID,
		RebalanceTimeoutMs:   5000,
		SubscribedTopicNames: []string{"foo"},
	}
}

var clientContext = &coordinator.RequestContext{ClientID: "client", ClientHost: "/127.0.0.1"}

func describe(t *testing.T, r *Runtime, groupID string) coordinator.DescribedGroup {
	groups, err := r.DescribeGroups(context.Background(), []string{groupID})
	require.Nil(t, err)
	require.Len(t, groups, 1)
	return groups[0]
}

func timeouts(t *testing.T, r *Runtime) int {
	size := make(chan int, 1)
	require.Nil(t, r.enqueue(context.Background(), "timeouts", func() {
		size <- r.shard.Timer().Size()
	}))
	return <-size
}

func fetchOffset(t *testing.T, r *Runtime, groupID string) int64 {
	response, err := r.FetchOffsets(context.Background(), &coordinator.OffsetFetchRequest{
		GroupID:     groupID,
		MemberEpoch: -1,
		Topics:      []coordinator.OffsetFetchRequestTopic{{Name: "foo", Partitions: []int32{0}}},
	})
	require.Nil(t, err)
	return response.Topics[0].Partitions[0].CommittedOffset
}

func commit(groupID string, offset int64) *coordinator.OffsetCommitRequest {
	return &coordinator.OffsetCommitRequest{
		GroupID:                   groupID,
		GenerationIDOrMemberEpoch: -1,
		RetentionTimeMs:           -1,
		Topics: []coordinator.OffsetCommitRequestTopic{{
			Name:       "foo",
			Partitions: []coordinator.OffsetCommitRequestPartition{{Partition: 0, CommittedOffset: offset, LeaderEpoch: -1}},
		}},
	}
}

func TestWriteBeforeStartFailsWithLoadInProgress(t *testing.T) {
	r := newTestRuntime(t, timer.NewMockClock(time.Unix(1000, 0)), logstore.NewMemoryLog())
	defer r.Stop(context.Background())

	_, err := r.ConsumerGroupHeartbeat(context.Background(), clientContext, join("grp"))
	assert.ErrorIs(t, err, kerr.CoordinatorLoadInProgress)
	_, err = r.DescribeGroups(context.Background(), []string{"grp"})
	assert.ErrorIs(t, err, kerr.CoordinatorLoadInProgress)
	assert.Equal(t, int16(14), coordinator.ErrorCode(err))
}

func TestStartTwiceFails(t *testing.T) {
	r := startTestRuntime(t, timer.NewMockClock(time.Unix(1000, 0)), logstore.NewMemoryLog())
	defer r.Stop(context.Background())
	assert.NotNil(t, r.Start(context.Background(), testImage))
}

func TestHeartbeatIsAppendedThenReplayed(t *testing.T) {
	memoryLog := logstore.NewMemoryLog()
	r := startTestRuntime(t, timer.NewMockClock(time.Unix(1000, 0)), memoryLog)
	defer r.Stop(context.Background())

	response, err := r.ConsumerGroupHeartbeat(context.Background(), clientContext, join("grp"))
	require.Nil(t, err)
	assert.NotEmpty(t, response.MemberID)
	assert.Equal(t, int32(1), response.MemberEpoch)
	assert.Equal(t, []model.TopicPartitions{{TopicName: "foo", Partitions: []int32{0, 1, 2}}}, response.Assignment)
	assert.True(t, memoryLog.Size() > 0)

	group := describe(t, r, "grp")
	assert.Equal(t, coordinator.ConsumerGroupType, group.GroupType)
	assert.Equal(t, int32(1), group.Epoch)
	assert.Len(t, group.Members, 1)
}

func TestRestartRebuildsStateFromLog(t *testing.T) {
	clock := timer.NewMockClock(time.Unix(1000, 0))
	memoryLog := logstore.NewMemoryLog()
	first := startTestRuntime(t, clock, memoryLog)
	_, err := first.ConsumerGroupHeartbeat(context.Background(), clientContext, join("grp"))
	require.Nil(t, err)
	_, err = first.CommitOffset(context.Background(), clientContext, commit("standalone", 42))
	require.Nil(t, err)

	second := startTestRuntime(t, clock, memoryLog)
	defer second.Stop(context.Background())
	for _, groupID := range []string{"grp", "standalone"} {
		if diff := cmp.Diff(describe(t, first, groupID), describe(t, second, groupID)); diff != "" {
			t.Errorf("group %s differs after restart (-first +second):\n%s", groupID, diff)
		}
	}
	assert.Equal(t, int64(42), fetchOffset(t, second, "standalone"))
}

func TestAppendFailureLeavesStateUntouched(t *testing.T) {
	memoryLog := logstore.NewMemoryLog()
	r := startTestRuntime(t, timer.NewMockClock(time.Unix(1000, 0)), memoryLog)
	defer r.Stop(context.Background())

	armed := timeouts(t, r)
	memoryLog.FailNextAppends(100)
	_, err := r.ConsumerGroupHeartbeat(context.Background(), clientContext, join("grp"))
	assert.ErrorIs(t, err, kerr.CoordinatorNotAvailable)
	assert.Equal(t, kerr.GroupIDNotFound.Code, describe(t, r, "grp").ErrorCode)
	assert.Equal(t, int64(0), memoryLog.Size())
	// no session timeout for a member that never made it to the log
	assert.Equal(t, armed, timeouts(t, r))

	memoryLog.FailNextAppends(1)
	response, err := r.ConsumerGroupHeartbeat(context.Background(), clientContext, join("grp"))
	require.Nil(t, err)
	assert.Equal(t, int32(1), response.MemberEpoch)
	assert.Equal(t, int16(0), describe(t, r, "grp").ErrorCode)
	assert.Equal(t, armed+1, timeouts(t, r))
}

func TestSessionTimeoutFiresOnPoll(t *testing.T) {
	clock := timer.NewMockClock(time.Unix(1000, 0))
	r := startTestRuntime(t, clock, logstore.NewMemoryLog())
	defer r.Stop(context.Background())

	_, err := r.ConsumerGroupHeartbeat(context.Background(), clientContext, join("grp"))
	require.Nil(t, err)
	require.Nil(t, r.Poll(context.Background()))
	assert.Len(t, describe(t, r, "grp").Members, 1)

	clock.Advance(46 * time.Second)
	require.Nil(t, r.Poll(context.Background()))
	assert.Empty(t, describe(t, r, "grp").Members)
}

func TestTransactionalOffsetsBecomeVisibleOnCommitMarker(t *testing.T) {
	clock := timer.NewMockClock(time.Unix(1000, 0))
	memoryLog := logstore.NewMemoryLog()
	r := startTestRuntime(t, clock, memoryLog)

	_, err := r.CommitOffset(context.Background(), clientContext, commit("grp", 10))
	require.Nil(t, err)
	_, err = r.CommitTransactionalOffset(context.Background(), clientContext, &coordinator.TxnOffsetCommitRequest{
		OffsetCommitRequest: *commit("grp", 50),
		TransactionalID:     "txn",
		ProducerID:          5,
		ProducerEpoch:       1,
	})
	require.Nil(t, err)
	assert.Equal(t, int64(10), fetchOffset(t, r, "grp"))

	require.Nil(t, r.CompleteTransaction(context.Background(), 5, 1, model.TransactionResultCommit))
	assert.Equal(t, int64(50), fetchOffset(t, r, "grp"))

	restarted := startTestRuntime(t, clock, memoryLog)
	defer restarted.Stop(context.Background())
	assert.Equal(t, int64(50), fetchOffset(t, restarted, "grp"))
}

func TestAbortedTransactionalOffsetsAreDiscarded(t *testing.T) {
	r := startTestRuntime(t, timer.NewMockClock(time.Unix(1000, 0)), logstore.NewMemoryLog())
	defer r.Stop(context.Background())

	_, err := r.CommitOffset(context.Background(), clientContext, commit("grp", 10))
	require.Nil(t, err)
	_, err = r.CommitTransactionalOffset(context.Background(), clientContext, &coordinator.TxnOffsetCommitRequest{
		OffsetCommitRequest: *commit("grp", 50),
		ProducerID:          5,
		ProducerEpoch:       1,
	})
	require.Nil(t, err)
	require.Nil(t, r.CompleteTransaction(context.Background(), 5, 1, model.TransactionResultAbort))
	assert.Equal(t, int64(10), fetchOffset(t, r, "grp"))
}

func TestLoadFailureMarksRuntimeFailed(t *testing.T) {
	memoryLog := logstore.NewMemoryLog()
	_, err := memoryLog.Append(context.Background(), []logstore.Entry{
		logstore.RecordEntry(model.NoProducerID, model.NoProducerEpoch, model.NewRecord(
			&model.ConsumerGroupMetadataKey{GroupID: "grp"}, &model.ConsumerGroupMetadataValue{Epoch: 1})),
		logstore.RecordEntry(model.NoProducerID, model.NoProducerEpoch, model.NewRecord(
			&model.ShareGroupMetadataKey{GroupID: "grp"}, &model.ShareGroupMetadataValue{Epoch: 1})),
	})
	require.Nil(t, err)

	r := newTestRuntime(t, timer.NewMockClock(time.Unix(1000, 0)), memoryLog)
	defer r.Stop(context.Background())
	err = r.Start(context.Background(), testImage)
	assert.ErrorIs(t, err, coordinator.ErrIllegalState)
	assert.Equal(t, StateFailed, r.State())

	_, err = r.DescribeGroups(context.Background(), []string{"grp"})
	assert.ErrorIs(t, err, kerr.NotCoordinator)
}

func TestStopUnloadsAndClosesLog(t *testing.T) {
	memoryLog := logstore.NewMemoryLog()
	r := startTestRuntime(t, timer.NewMockClock(time.Unix(1000, 0)), memoryLog)
	_, err := r.ConsumerGroupHeartbeat(context.Background(), clientContext, join("grp"))
	require.Nil(t, err)

	require.Nil(t, r.Stop(context.Background()))
	assert.Equal(t, StateClosed, r.State())
	assert.Nil(t, r.Stop(context.Background()))

	_, err = r.ConsumerGroupHeartbeat(context.Background(), clientContext, join("grp"))
	assert.ErrorIs(t, err, kerr.NotCoordinator)
	err = r.Poll(context.Background())
	assert.ErrorIs(t, err, kerr.NotCoordinator)
	_, err = memoryLog.Append(context.Background(), nil)
	assert.ErrorIs(t, err, logstore.ErrLogClosed)
}
