package logstore

import (
	"context"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/constant"
	"github.com/protocol-laboratory/group-coordinator-go/log"
	"strconv"
	"sync"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Stream prefixes the stream name, the partition is appended to it
	Stream    string
	ReadBatch int64
}

type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
	Close() error
}

// RedisLog stores every batch as one entry of a redis stream.
type RedisLog struct {
	client    streamClient
	stream    string
	readBatch int64
	logger    log.Logger

	mutex      sync.Mutex
	nextOffset int64
	recovered  bool
}

func NewRedisLog(config RedisConfig, partition int32, logger log.Logger) *RedisLog {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return newRedisLog(client, config, partition, logger)
}

func newRedisLog(client streamClient, config RedisConfig, partition int32, logger log.Logger) *RedisLog {
	if config.Stream == "" {
		config.Stream = constant.DefaultRedisStream
	}
	if config.ReadBatch <= 0 {
		config.ReadBatch = constant.DefaultRedisReadBatch
	}
	stream := config.Stream + "-" + strconv.Itoa(int(partition))
	return &RedisLog{
		client:    client,
		stream:    stream,
		readBatch: config.ReadBatch,
		logger:    logger.Topic(stream),
	}
}

func (r *RedisLog) Append(ctx context.Context, entries []Entry) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err := r.recover(ctx); err != nil {
		return 0, err
	}
	base := r.nextOffset
	if len(entries) == 0 {
		return base, nil
	}
	payload, err := EncodeBatch(base, entries)
	if err != nil {
		return 0, err
	}
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			constant.BatchBaseOffset: base,
			constant.BatchEntryCount: len(entries),
			constant.BatchPayload:    string(payload),
		},
	}).Result()
	if err != nil {
		r.logger.Errorf("append batch failed. baseOffset: %d, entries: %d, err: %s", base, len(entries), err)
		return 0, errors.Wrapf(err, "append to stream %s", r.stream)
	}
	r.nextOffset += int64(len(entries))
	r.logger.Debugf("append batch success. id: %s, baseOffset: %d, entries: %d", id, base, len(entries))
	return base, nil
}

// recover finds the next offset from the last stream entry when nothing was
// replayed before the first append.
func (r *RedisLog) recover(ctx context.Context) error {
	if r.recovered {
		return nil
	}
	messages, err := r.client.XRevRangeN(ctx, r.stream, "+", "-", 1).Result()
	if err != nil {
		return errors.Wrapf(err, "read last entry of stream %s", r.stream)
	}
	if len(messages) > 0 {
		base, count, err := batchBounds(messages[0])
		if err != nil {
			return err
		}
		r.nextOffset = base + count
	}
	r.recovered = true
	return nil
}

func (r *RedisLog) Replay(ctx context.Context, fn func(Entry) error) error {
	start := "-"
	batches := 0
	for {
		messages, err := r.client.XRangeN(ctx, r.stream, start, "+", r.readBatch).Result()
		if err != nil {
			return errors.Wrapf(err, "read stream %s", r.stream)
		}
		for _, message := range messages {
			payload, ok := message.Values[constant.BatchPayload].(string)
			if !ok {
				return errors.Errorf("stream entry %s without payload", message.ID)
			}
			entries, err := DecodeBatch([]byte(payload))
			if err != nil {
				r.logger.Errorf("decode batch failed. id: %s, err: %s", message.ID, err)
				return err
			}
			for _, entry := range entries {
				if err := fn(entry); err != nil {
					return err
				}
				r.advance(entry.Offset + 1)
			}
			batches++
		}
		if int64(len(messages)) < r.readBatch {
			break
		}
		start = "(" + messages[len(messages)-1].ID
	}
	r.mutex.Lock()
	r.recovered = true
	next := r.nextOffset
	r.mutex.Unlock()
	r.logger.Infof("replayed %d batches, next offset %d", batches, next)
	return nil
}

func (r *RedisLog) advance(offset int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if offset > r.nextOffset {
		r.nextOffset = offset
	}
}

func (r *RedisLog) Close() error {
	return r.client.Close()
}

func batchBounds(message redis.XMessage) (int64, int64, error) {
	base, err := streamInt(message, constant.BatchBaseOffset)
	if err != nil {
		return 0, 0, err
	}
	count, err := streamInt(message, constant.BatchEntryCount)
	if err != nil {
		return 0, 0, err
	}
	return base, count, nil
}

func streamInt(message redis.XMessage, field string) (int64, error) {
	raw, ok := message.Values[field].(string)
	if !ok {
		return 0, errors.Errorf("stream entry %s without %s", message.ID, field)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "stream entry %s has malformed %s", message.ID, field)
	}
	return value, nil
}
