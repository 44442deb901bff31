package coordinator

// MetricsSink receives the gauges and counters produced by the shard.
type MetricsSink interface {
	RecordGroupCount(groupType GroupType, state GroupState, count int)
	IncOffsetCommits(count int)
	IncOffsetExpired(count int)
	IncGroupsDeleted(count int)
}

type noopMetricsSink struct{}

func (noopMetricsSink) RecordGroupCount(GroupType, GroupState, int) {}
func (noopMetricsSink) IncOffsetCommits(int)                        {}
func (noopMetricsSink) IncOffsetExpired(int)                        {}
func (noopMetricsSink) IncGroupsDeleted(int)                        {}
