package logstore

import (
	"context"
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestRedisLogAppendAndReplay(t *testing.T) {
	client := newMockStreamClient()
	redisLog := newRedisLog(client, RedisConfig{ReadBatch: 2}, 3, testLogger)
	assert.Equal(t, constant.DefaultRedisStream+"-3", redisLog.stream)

	for i := 0; i < 5; i++ {
		base, err := redisLog.Append(context.Background(), testEntries()[:2])
		require.Nil(t, err)
		assert.Equal(t, int64(2*i), base)
	}
	assert.Equal(t, 5, len(client.streams[redisLog.stream]))

	replaying := newRedisLog(client, RedisConfig{ReadBatch: 2}, 3, testLogger)
	replayed := replayAll(t, replaying)
	require.Len(t, replayed, 10)
	for i, entry := range replayed {
		assert.Equal(t, int64(i), entry.Offset)
	}

	base, err := replaying.Append(context.Background(), testEntries()[3:])
	require.Nil(t, err)
	assert.Equal(t, int64(10), base)
}

func TestRedisLogRecoversNextOffsetWithoutReplay(t *testing.T) {
	client := newMockStreamClient()
	writer := newRedisLog(client, RedisConfig{}, 0, testLogger)
	_, err := writer.Append(context.Background(), testEntries())
	require.Nil(t, err)

	restarted := newRedisLog(client, RedisConfig{}, 0, testLogger)
	base, err := restarted.Append(context.Background(), testEntries()[:1])
	require.Nil(t, err)
	assert.Equal(t, int64(4), base)
}

func TestRedisLogAppendFailure(t *testing.T) {
	client := newMockStreamClient()
	client.addErr = errors.New("connection refused")
	redisLog := newRedisLog(client, RedisConfig{}, 0, testLogger)

	_, err := redisLog.Append(context.Background(), testEntries())
	assert.NotNil(t, err)
	assert.Equal(t, int64(0), redisLog.nextOffset)
}

func TestRedisLogReplayRejectsEntryWithoutPayload(t *testing.T) {
	client := newMockStreamClient()
	redisLog := newRedisLog(client, RedisConfig{}, 0, testLogger)
	client.streams[redisLog.stream] = append(client.streams[redisLog.stream], redisMessage("1-0", map[string]interface{}{constant.BatchBaseOffset: "0"}))

	err := redisLog.Replay(context.Background(), func(Entry) error { return nil })
	assert.NotNil(t, err)
	assert.Nil(t, redisLog.Close())
	assert.True(t, client.closed)
}
