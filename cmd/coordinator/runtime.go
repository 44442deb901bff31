package main

import (
	"github.com/opentracing/opentracing-go"
	"github.com/protocol-laboratory/group-coordinator-go/coordinator"
	"github.com/protocol-laboratory/group-coordinator-go/log"
	"github.com/protocol-laboratory/group-coordinator-go/logstore"
	"github.com/protocol-laboratory/group-coordinator-go/metrics"
	"github.com/protocol-laboratory/group-coordinator-go/runtime"
)

func openRuntime(logConfig logstore.Config, runtimeConfig *runtime.Config, config *coordinator.Config, logger log.Logger) (*runtime.Runtime, error) {
	partition := runtimeConfig.Partition
	shard, err := coordinator.NewShard(coordinator.ShardConfig{
		Partition: partition,
		Config:    config,
		Metrics:   metrics.NewPrometheusSink(partition),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	l, err := logstore.Open(logConfig, partition, logger)
	if err != nil {
		logger.Errorf("open log of partition %d failed. err: %s", partition, err)
		return nil, err
	}
	r, err := runtime.New(runtimeConfig, shard, l, logger, opentracing.GlobalTracer())
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	return r, nil
}
