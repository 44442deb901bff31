package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/protocol-laboratory/group-coordinator-go/coordinator"
	"strconv"
)

var (
	GroupCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prometheus.BuildFQName(namespace, "group", "count")},
		[]string{"partition", "group_type", "state"},
	)
	OffsetCommitCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "offset", "commit_total")},
		[]string{"partition"},
	)
	OffsetExpiredCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "offset", "expired_total")},
		[]string{"partition"},
	)
	GroupsDeletedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prometheus.BuildFQName(namespace, "group", "deleted_total")},
		[]string{"partition"},
	)
)

// PrometheusSink publishes the gauges and counters of one shard.
type PrometheusSink struct {
	partition string
}

var _ coordinator.MetricsSink = (*PrometheusSink)(nil)

func NewPrometheusSink(partition int32) *PrometheusSink {
	return &PrometheusSink{partition: strconv.Itoa(int(partition))}
}

func (p *PrometheusSink) RecordGroupCount(groupType coordinator.GroupType, state coordinator.GroupState, count int) {
	GroupCount.WithLabelValues(p.partition, string(groupType), string(state)).Set(float64(count))
}

func (p *PrometheusSink) IncOffsetCommits(count int) {
	OffsetCommitCount.WithLabelValues(p.partition).Add(float64(count))
}

func (p *PrometheusSink) IncOffsetExpired(count int) {
	OffsetExpiredCount.WithLabelValues(p.partition).Add(float64(count))
}

func (p *PrometheusSink) IncGroupsDeleted(count int) {
	GroupsDeletedCount.WithLabelValues(p.partition).Add(float64(count))
}
