package runtime

import (
	"context"
	"github.com/cenkalti/backoff/v4"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/coordinator"
	"github.com/protocol-laboratory/group-coordinator-go/log"
	"github.com/protocol-laboratory/group-coordinator-go/logstore"
	"github.com/protocol-laboratory/group-coordinator-go/metrics"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/twmb/franz-go/pkg/kerr"
	"sync"
	"sync/atomic"
	"time"
)

type State int32

const (
	StateInitial State = iota
	StateLoading
	StateActive
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateLoading:
		return "Loading"
	case StateActive:
		return "Active"
	case StateFailed:
		return "Failed"
	case StateClosed:
		return "Closed"
	}
	return "Unknown"
}

type event struct {
	name string
	run  func()
}

// Runtime owns one shard and its log. Every shard call runs on the loop
// goroutine, one at a time.
type Runtime struct {
	config *Config
	shard  *coordinator.Shard
	log    logstore.Log
	logger log.Logger
	tracer opentracing.Tracer

	state    atomic.Int32
	events   chan event
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func New(config *Config, shard *coordinator.Shard, l logstore.Log, logger log.Logger, tracer opentracing.Tracer) (*Runtime, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid runtime config")
	}
	if tracer == nil {
		tracer = opentracing.NoopTracer{}
	}
	if logger == nil {
		logger = log.NewDiscardLogger()
	}
	r := &Runtime{
		config:  config,
		shard:   shard,
		log:     l,
		logger:  logger.Partition(config.Partition),
		tracer:  tracer,
		events:  make(chan event, config.EventQueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

func (r *Runtime) State() State {
	return State(r.state.Load())
}

func (r *Runtime) Partition() int32 {
	return r.config.Partition
}

// Start replays the whole log into the shard, then activates it with the
// given metadata image. Commands sent before it returns fail with
// COORDINATOR_LOAD_IN_PROGRESS.
func (r *Runtime) Start(ctx context.Context, image *coordinator.MetadataImage) error {
	if !r.state.CompareAndSwap(int32(StateInitial), int32(StateLoading)) {
		return errors.Errorf("runtime of partition %d already started", r.config.Partition)
	}
	loaded := make(chan error, 1)
	err := r.enqueue(ctx, "load", func() {
		loaded <- r.load(ctx, image)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-loaded:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) load(ctx context.Context, image *coordinator.MetadataImage) error {
	sp := span(ctx, r.tracer, "load")
	defer sp.Finish()
	start := time.Now()
	entries := 0
	err := r.log.Replay(ctx, func(entry logstore.Entry) error {
		entries++
		return r.replay(entry)
	})
	metrics.LogReplayEntryCount.Add(float64(entries))
	if err != nil {
		r.state.Store(int32(StateFailed))
		metrics.CoordinatorLoadFailCount.Inc()
		traceError(sp, err)
		r.logger.Errorf("load failed after %d entries. err: %s", entries, err)
		return errors.Wrapf(err, "load partition %d", r.config.Partition)
	}
	r.shard.OnLoaded(image)
	r.state.Store(int32(StateActive))
	cost := time.Since(start)
	metrics.CoordinatorLoadSuccessCount.Inc()
	metrics.CoordinatorLoadLatency.Observe(float64(cost.Milliseconds()))
	r.logger.Infof("loaded %d entries in %s", entries, cost)
	return nil
}

func (r *Runtime) replay(entry logstore.Entry) error {
	if entry.IsControl() {
		return r.shard.ReplayEndTransactionMarker(entry.ProducerID, entry.ProducerEpoch, entry.Marker)
	}
	return r.shard.Replay(entry.Offset, entry.ProducerID, entry.ProducerEpoch, *entry.Record)
}

func (r *Runtime) loop() {
	defer close(r.stopped)
	ticker := time.NewTicker(time.Duration(r.config.PollIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ev := <-r.events:
			ev.run()
		case <-ticker.C:
			if r.State() == StateActive {
				r.pollTimer()
			}
		case <-r.done:
			return
		}
	}
}

func (r *Runtime) enqueue(ctx context.Context, name string, run func()) error {
	select {
	case <-r.done:
		return errors.Wrapf(kerr.NotCoordinator, "runtime of partition %d is closed", r.config.Partition)
	default:
	}
	select {
	case r.events <- event{name: name, run: run}:
		return nil
	case <-r.done:
		return errors.Wrapf(kerr.NotCoordinator, "runtime of partition %d is closed", r.config.Partition)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) checkActive() error {
	switch r.State() {
	case StateActive:
		return nil
	case StateInitial, StateLoading:
		return errors.Wrapf(kerr.CoordinatorLoadInProgress, "partition %d is loading", r.config.Partition)
	default:
		return errors.Wrapf(kerr.NotCoordinator, "partition %d is %s", r.config.Partition, r.State())
	}
}

// Poll fires the expired timeouts now instead of waiting for the next tick.
func (r *Runtime) Poll(ctx context.Context) error {
	polled := make(chan struct{})
	err := r.enqueue(ctx, "poll", func() {
		defer close(polled)
		if r.State() == StateActive {
			r.pollTimer()
		}
	})
	if err != nil {
		return err
	}
	select {
	case <-polled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) pollTimer() {
	for _, expired := range r.shard.Timer().Poll() {
		metrics.CoordinatorTimeoutFiredCount.Inc()
		if expired.Err != nil {
			r.logger.Errorf("timeout operation failed. key: %s, err: %s", expired.Key, expired.Err)
			if expired.Result.AppendFuture != nil {
				expired.Result.AppendFuture.Complete(expired.Err)
			}
			continue
		}
		err := r.appendAndReplay(context.Background(), model.NoProducerID, model.NoProducerEpoch, expired.Result)
		if err != nil {
			r.logger.Errorf("write of timeout failed. key: %s, err: %s", expired.Key, err)
		}
	}
}

// appendAndReplay makes the records durable, then applies them to the shard.
// The append future of the result, if any, resolves with the outcome.
func (r *Runtime) appendAndReplay(ctx context.Context, producerID int64, producerEpoch int16, result model.Result[any]) (err error) {
	defer func() {
		if result.AppendFuture != nil {
			result.AppendFuture.Complete(err)
		}
	}()
	if len(result.Records) == 0 {
		return nil
	}
	entries := make([]logstore.Entry, 0, len(result.Records))
	for _, record := range result.Records {
		entries = append(entries, logstore.RecordEntry(producerID, producerEpoch, record))
	}
	base, err := r.append(ctx, entries)
	if err != nil {
		return err
	}
	for i, entry := range entries {
		entry.Offset = base + int64(i)
		if err := r.replay(entry); err != nil {
			r.fail(err)
			return errors.Wrapf(err, "replay appended record at offset %d", entry.Offset)
		}
	}
	return nil
}

func (r *Runtime) append(ctx context.Context, entries []logstore.Entry) (int64, error) {
	sp := span(ctx, r.tracer, "append")
	defer sp.Finish()
	sp.SetTag("entries", len(entries))
	start := time.Now()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(r.config.AppendRetryInitialMs) * time.Millisecond
	bo.MaxElapsedTime = time.Duration(r.config.AppendRetryMaxElapsedMs) * time.Millisecond
	var base int64
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		base, err = r.log.Append(ctx, entries)
		if err == nil {
			return nil
		}
		r.logger.Warnf("append failed. attempt: %d, entries: %d, err: %s", attempt, len(entries), err)
		if errors.Is(err, logstore.ErrLogClosed) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.config.AppendMaxRetries)), ctx))
	if err != nil {
		metrics.LogAppendFailCount.Inc()
		traceError(sp, err)
		return 0, errors.Wrapf(kerr.CoordinatorNotAvailable, "append %d entries after %d attempts: %s", len(entries), attempt, err)
	}
	metrics.LogAppendSuccessCount.Inc()
	metrics.LogAppendEntryCount.Add(float64(len(entries)))
	metrics.LogAppendLatency.Observe(float64(time.Since(start).Milliseconds()))
	return base, nil
}

// fail stops serving the shard, its state no longer matches the log.
func (r *Runtime) fail(err error) {
	r.state.Store(int32(StateFailed))
	r.shard.Timer().CancelAll()
	r.logger.Errorf("shard failed, state diverged from the log. err: %s", err)
}

// Stop unloads the shard, stops the loop and closes the log.
func (r *Runtime) Stop(ctx context.Context) error {
	var err error
	r.stopOnce.Do(func() {
		unloaded := make(chan struct{})
		enqueueErr := r.enqueue(ctx, "unload", func() {
			defer close(unloaded)
			if r.State() == StateActive {
				r.shard.OnUnloaded()
			}
			r.shard.Timer().CancelAll()
			r.state.Store(int32(StateClosed))
		})
		if enqueueErr == nil {
			select {
			case <-unloaded:
			case <-ctx.Done():
			}
		}
		close(r.done)
		<-r.stopped
		r.state.Store(int32(StateClosed))
		err = r.log.Close()
		r.logger.Infof("runtime stopped")
	})
	return err
}

func span(ctx context.Context, tracer opentracing.Tracer, op string) opentracing.Span {
	if ctx == nil {
		return tracer.StartSpan("coordinator: " + op)
	}
	parentSpan := opentracing.SpanFromContext(ctx)
	if parentSpan == nil {
		return tracer.StartSpan("coordinator: " + op)
	}
	return tracer.StartSpan("coordinator: "+op, opentracing.ChildOf(parentSpan.Context()))
}

func traceError(sp opentracing.Span, err error) {
	ext.Error.Set(sp, true)
	sp.LogKV("error", err.Error())
}
