package metrics

import (
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/protocol-laboratory/group-coordinator-go/coordinator"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestPrometheusSink(t *testing.T) {
	sink := NewPrometheusSink(7)

	sink.RecordGroupCount(coordinator.ConsumerGroupType, coordinator.GroupStateStable, 3)
	sink.RecordGroupCount(coordinator.ConsumerGroupType, coordinator.GroupStateStable, 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(GroupCount.WithLabelValues("7", "consumer", "Stable")))

	sink.IncOffsetCommits(2)
	sink.IncOffsetCommits(1)
	assert.Equal(t, float64(3), testutil.ToFloat64(OffsetCommitCount.WithLabelValues("7")))

	sink.IncOffsetExpired(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(OffsetExpiredCount.WithLabelValues("7")))

	sink.IncGroupsDeleted(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(GroupsDeletedCount.WithLabelValues("7")))
}
