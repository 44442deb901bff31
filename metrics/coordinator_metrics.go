package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CoordinatorOperationSuccessCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "runtime", "operation_success_total")},
		[]string{"operation"},
	)
	CoordinatorOperationFailCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "runtime", "operation_fail_total")},
		[]string{"operation"},
	)
	CoordinatorOperationLatency = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       prometheus.BuildFQName(namespace, "runtime", "operation_latency_ms"),
			Objectives: objectives},
		[]string{"operation"},
	)
	CoordinatorLoadSuccessCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "runtime", "load_success_total")},
	)
	CoordinatorLoadFailCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "runtime", "load_fail_total")},
	)
	CoordinatorLoadLatency = promauto.NewSummary(
		prometheus.SummaryOpts{
			Name:       prometheus.BuildFQName(namespace, "runtime", "load_latency_ms"),
			Objectives: objectives},
	)
	CoordinatorTimeoutFiredCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "runtime", "timeout_fired_total")},
	)
)
