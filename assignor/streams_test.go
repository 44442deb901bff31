package assignor

import (
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"testing"
)

type testTopology struct {
	tasks    map[string]int
	stateful map[string]bool
}

func (t testTopology) Subtopologies() []string {
	return sortedMemberIDs(t.tasks)
}

func (t testTopology) MaxNumInputPartitions(subtopologyID string) (int, error) {
	n, ok := t.tasks[subtopologyID]
	if !ok {
		return 0, errors.Errorf("unknown subtopology %s", subtopologyID)
	}
	return n, nil
}

func (t testTopology) IsStateful(subtopologyID string) bool {
	return t.stateful[subtopologyID]
}

func TestStreamsGroupSpec(t *testing.T) {
	member := AssignmentMemberSpec{
		InstanceID:     "instanceId",
		RackID:         "rackId",
		ActiveTasks:    map[string][]int32{"subtopology1": {0, 1}},
		StandbyTasks:   map[string][]int32{},
		WarmupTasks:    map[string][]int32{},
		ProcessID:      "processId",
		ClientTags:     map[string]string{},
		TaskOffsets:    map[TaskID]int64{},
		TaskEndOffsets: map[TaskID]int64{},
	}
	members := map[string]AssignmentMemberSpec{"test-member": member}
	configs := map[string]string{"test-config": "test-value"}
	spec := NewStreamsGroupSpec(members, configs)

	assert.Equal(t, members, spec.Members())
	assert.Equal(t, configs, spec.AssignmentConfigs())
}

func TestStickyTaskAssignorKeepsPreviousOwners(t *testing.T) {
	spec := NewStreamsGroupSpec(map[string]AssignmentMemberSpec{
		"a": {ActiveTasks: map[string][]int32{"0": {1}}},
		"b": {ActiveTasks: map[string][]int32{"0": {0}}},
	}, nil)
	assignment, err := NewStickyTaskAssignor().Assign(spec, testTopology{tasks: map[string]int{"0": 2, "1": 2}})
	assert.Nil(t, err)
	assert.Contains(t, assignment.Members["a"].ActiveTasks["0"], int32(1))
	assert.Contains(t, assignment.Members["b"].ActiveTasks["0"], int32(0))
	total := 0
	for _, member := range assignment.Members {
		for _, tasks := range member.ActiveTasks {
			total += len(tasks)
		}
	}
	assert.Equal(t, 4, total)
}

func TestStickyTaskAssignorPlacesStandbyOnOtherProcess(t *testing.T) {
	spec := NewStreamsGroupSpec(map[string]AssignmentMemberSpec{
		"a": {ProcessID: "p1"},
		"b": {ProcessID: "p1"},
		"c": {ProcessID: "p2"},
	}, map[string]string{NumStandbyReplicasConfig: "1"})
	assignment, err := NewStickyTaskAssignor().Assign(spec, testTopology{
		tasks:    map[string]int{"0": 1},
		stateful: map[string]bool{"0": true},
	})
	assert.Nil(t, err)
	assert.Equal(t, []int32{0}, assignment.Members["a"].ActiveTasks["0"])
	assert.Equal(t, []int32{0}, assignment.Members["c"].StandbyTasks["0"])
	assert.Empty(t, assignment.Members["b"].StandbyTasks)
}

func TestStickyTaskAssignorRejectsBadConfig(t *testing.T) {
	spec := NewStreamsGroupSpec(map[string]AssignmentMemberSpec{"a": {}}, map[string]string{NumStandbyReplicasConfig: "x"})
	_, err := NewStickyTaskAssignor().Assign(spec, testTopology{tasks: map[string]int{}})
	assert.NotNil(t, err)
}
