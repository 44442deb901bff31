package runtime

import (
	"context"
	"github.com/protocol-laboratory/group-coordinator-go/coordinator"
	"github.com/protocol-laboratory/group-coordinator-go/logstore"
	"github.com/protocol-laboratory/group-coordinator-go/metrics"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"time"
)

type outcome[T any] struct {
	response T
	err      error
}

// Write runs op on the shard and appends the records it returns. The
// response is only handed out once the records are durable and replayed.
func Write[T any](ctx context.Context, r *Runtime, name string, op func(shard *coordinator.Shard) (model.Result[T], error)) (T, error) {
	return WriteTransactional(ctx, r, name, model.NoProducerID, model.NoProducerEpoch, op)
}

// WriteTransactional is Write for records owned by a transactional producer.
func WriteTransactional[T any](ctx context.Context, r *Runtime, name string, producerID int64, producerEpoch int16, op func(shard *coordinator.Shard) (model.Result[T], error)) (T, error) {
	start := time.Now()
	if err := r.checkActive(); err != nil {
		return wait[T](ctx, name, start, nil, err)
	}
	done := make(chan outcome[T], 1)
	err := r.enqueue(ctx, name, func() {
		sp := span(ctx, r.tracer, name)
		defer sp.Finish()
		var zero T
		if err := r.checkActive(); err != nil {
			done <- outcome[T]{response: zero, err: err}
			return
		}
		result, err := op(r.shard)
		if err != nil {
			traceError(sp, err)
			done <- outcome[T]{response: zero, err: err}
			return
		}
		if err := r.appendAndReplay(ctx, producerID, producerEpoch, result.Erase()); err != nil {
			traceError(sp, err)
			done <- outcome[T]{response: zero, err: err}
			return
		}
		done <- outcome[T]{response: result.Response}
	})
	return wait(ctx, name, start, done, err)
}

// Read runs op on the shard without writing anything.
func Read[T any](ctx context.Context, r *Runtime, name string, op func(shard *coordinator.Shard) T) (T, error) {
	start := time.Now()
	if err := r.checkActive(); err != nil {
		return wait[T](ctx, name, start, nil, err)
	}
	done := make(chan outcome[T], 1)
	err := r.enqueue(ctx, name, func() {
		sp := span(ctx, r.tracer, name)
		defer sp.Finish()
		if err := r.checkActive(); err != nil {
			var zero T
			done <- outcome[T]{response: zero, err: err}
			return
		}
		done <- outcome[T]{response: op(r.shard)}
	})
	return wait(ctx, name, start, done, err)
}

func wait[T any](ctx context.Context, name string, start time.Time, done chan outcome[T], enqueueErr error) (T, error) {
	var result outcome[T]
	if enqueueErr != nil {
		result.err = enqueueErr
	} else {
		select {
		case result = <-done:
		case <-ctx.Done():
			result.err = ctx.Err()
		}
	}
	if result.err != nil {
		metrics.CoordinatorOperationFailCount.WithLabelValues(name).Inc()
	} else {
		metrics.CoordinatorOperationSuccessCount.WithLabelValues(name).Inc()
	}
	metrics.CoordinatorOperationLatency.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
	return result.response, result.err
}

// CompleteTransaction appends the end marker of a producer's transaction and
// replays it, which publishes or discards its pending offsets.
func (r *Runtime) CompleteTransaction(ctx context.Context, producerID int64, producerEpoch int16, result model.TransactionResult) error {
	start := time.Now()
	done := make(chan outcome[struct{}], 1)
	err := r.enqueue(ctx, "end-transaction-marker", func() {
		if err := r.checkActive(); err != nil {
			done <- outcome[struct{}]{err: err}
			return
		}
		entry := logstore.MarkerEntry(producerID, producerEpoch, result)
		base, err := r.append(ctx, []logstore.Entry{entry})
		if err != nil {
			done <- outcome[struct{}]{err: err}
			return
		}
		entry.Offset = base
		if err := r.replay(entry); err != nil {
			r.fail(err)
			done <- outcome[struct{}]{err: err}
			return
		}
		done <- outcome[struct{}]{}
	})
	_, err = wait(ctx, "end-transaction-marker", start, done, err)
	return err
}

func (r *Runtime) ConsumerGroupHeartbeat(ctx context.Context, reqCtx *coordinator.RequestContext, req *coordinator.ConsumerGroupHeartbeatRequest) (*coordinator.ConsumerGroupHeartbeatResponse, error) {
	return Write(ctx, r, "consumer-group-heartbeat", func(shard *coordinator.Shard) (model.Result[*coordinator.ConsumerGroupHeartbeatResponse], error) {
		return shard.ConsumerGroupHeartbeat(reqCtx, req)
	})
}

func (r *Runtime) ShareGroupHeartbeat(ctx context.Context, reqCtx *coordinator.RequestContext, req *coordinator.ShareGroupHeartbeatRequest) (*coordinator.ShareGroupHeartbeatResponse, error) {
	return Write(ctx, r, "share-group-heartbeat", func(shard *coordinator.Shard) (model.Result[*coordinator.ShareGroupHeartbeatResponse], error) {
		return shard.ShareGroupHeartbeat(reqCtx, req)
	})
}

func (r *Runtime) StreamsGroupHeartbeat(ctx context.Context, reqCtx *coordinator.RequestContext, req *coordinator.StreamsGroupHeartbeatRequest) (*coordinator.StreamsGroupHeartbeatResponse, error) {
	return Write(ctx, r, "streams-group-heartbeat", func(shard *coordinator.Shard) (model.Result[*coordinator.StreamsGroupHeartbeatResponse], error) {
		return shard.StreamsGroupHeartbeat(reqCtx, req)
	})
}

func (r *Runtime) CommitOffset(ctx context.Context, reqCtx *coordinator.RequestContext, req *coordinator.OffsetCommitRequest) (*coordinator.OffsetCommitResponse, error) {
	return Write(ctx, r, "commit-offset", func(shard *coordinator.Shard) (model.Result[*coordinator.OffsetCommitResponse], error) {
		return shard.CommitOffset(reqCtx, req)
	})
}

func (r *Runtime) CommitTransactionalOffset(ctx context.Context, reqCtx *coordinator.RequestContext, req *coordinator.TxnOffsetCommitRequest) (*coordinator.OffsetCommitResponse, error) {
	return WriteTransactional(ctx, r, "commit-transactional-offset", req.ProducerID, req.ProducerEpoch, func(shard *coordinator.Shard) (model.Result[*coordinator.OffsetCommitResponse], error) {
		return shard.CommitTransactionalOffset(reqCtx, req)
	})
}

func (r *Runtime) DeleteOffsets(ctx context.Context, req *coordinator.OffsetDeleteRequest) (*coordinator.OffsetDeleteResponse, error) {
	return Write(ctx, r, "delete-offsets", func(shard *coordinator.Shard) (model.Result[*coordinator.OffsetDeleteResponse], error) {
		return shard.DeleteOffsets(req)
	})
}

func (r *Runtime) DeleteGroups(ctx context.Context, reqCtx *coordinator.RequestContext, groupIDs []string) ([]coordinator.DeleteGroupsResult, error) {
	return Write(ctx, r, "delete-groups", func(shard *coordinator.Shard) (model.Result[[]coordinator.DeleteGroupsResult], error) {
		return shard.DeleteGroups(reqCtx, groupIDs), nil
	})
}

func (r *Runtime) OnPartitionsDeleted(ctx context.Context, partitions []model.TopicPartition) error {
	_, err := Write(ctx, r, "partitions-deleted", func(shard *coordinator.Shard) (model.Result[any], error) {
		return shard.OnPartitionsDeleted(partitions), nil
	})
	return err
}

func (r *Runtime) FetchOffsets(ctx context.Context, req *coordinator.OffsetFetchRequest) (*coordinator.OffsetFetchResponse, error) {
	return Read(ctx, r, "fetch-offsets", func(shard *coordinator.Shard) *coordinator.OffsetFetchResponse {
		return shard.FetchOffsets(req)
	})
}

func (r *Runtime) FetchAllOffsets(ctx context.Context, req *coordinator.OffsetFetchRequest) (*coordinator.OffsetFetchResponse, error) {
	return Read(ctx, r, "fetch-all-offsets", func(shard *coordinator.Shard) *coordinator.OffsetFetchResponse {
		return shard.FetchAllOffsets(req)
	})
}

func (r *Runtime) DescribeGroups(ctx context.Context, groupIDs []string) ([]coordinator.DescribedGroup, error) {
	return Read(ctx, r, "describe-groups", func(shard *coordinator.Shard) []coordinator.DescribedGroup {
		return shard.DescribeGroups(groupIDs)
	})
}

func (r *Runtime) SharePartitionDeleteRequests(ctx context.Context, groupIDs []string) (map[string]coordinator.SharePartitionDeleteResult, error) {
	return Read(ctx, r, "share-partition-delete-requests", func(shard *coordinator.Shard) map[string]coordinator.SharePartitionDeleteResult {
		return shard.SharePartitionDeleteRequests(groupIDs)
	})
}

func (r *Runtime) OnNewMetadataImage(ctx context.Context, image *coordinator.MetadataImage) error {
	_, err := Read(ctx, r, "new-metadata-image", func(shard *coordinator.Shard) struct{} {
		shard.OnNewMetadataImage(image)
		return struct{}{}
	})
	return err
}

func (r *Runtime) GroupIDs(ctx context.Context) ([]string, error) {
	return Read(ctx, r, "list-groups", func(shard *coordinator.Shard) []string {
		return shard.GroupIDs()
	})
}
