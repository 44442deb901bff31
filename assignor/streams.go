package assignor

import (
	"github.com/pkg/errors"
	"strconv"
)

const NumStandbyReplicasConfig = "num.standby.replicas"

type TaskID struct {
	SubtopologyID string
	Partition     int32
}

// AssignmentMemberSpec is what a task assignor knows about one streams member.
type AssignmentMemberSpec struct {
	InstanceID     string
	RackID         string
	ActiveTasks    map[string][]int32
	StandbyTasks   map[string][]int32
	WarmupTasks    map[string][]int32
	ProcessID      string
	ClientTags     map[string]string
	TaskOffsets    map[TaskID]int64
	TaskEndOffsets map[TaskID]int64
}

type StreamsGroupSpec struct {
	members           map[string]AssignmentMemberSpec
	assignmentConfigs map[string]string
}

func NewStreamsGroupSpec(members map[string]AssignmentMemberSpec, assignmentConfigs map[string]string) *StreamsGroupSpec {
	return &StreamsGroupSpec{members: members, assignmentConfigs: assignmentConfigs}
}

func (s *StreamsGroupSpec) Members() map[string]AssignmentMemberSpec {
	return s.members
}

func (s *StreamsGroupSpec) AssignmentConfigs() map[string]string {
	return s.assignmentConfigs
}

// TopologyDescriber exposes the subtopologies of a streams group and the
// number of tasks each of them has.
type TopologyDescriber interface {
	Subtopologies() []string
	MaxNumInputPartitions(subtopologyID string) (int, error)
	IsStateful(subtopologyID string) bool
}

type StreamsMemberAssignment struct {
	ActiveTasks  map[string][]int32
	StandbyTasks map[string][]int32
	WarmupTasks  map[string][]int32
}

type StreamsGroupAssignment struct {
	Members map[string]StreamsMemberAssignment
}

type TaskAssignor interface {
	Name() string
	Assign(spec *StreamsGroupSpec, topology TopologyDescriber) (StreamsGroupAssignment, error)
}

type stickyTaskAssignor struct{}

// NewStickyTaskAssignor balances active tasks over members, keeping tasks
// with their previous owner where possible, and places standby replicas of
// stateful tasks on other processes.
func NewStickyTaskAssignor() TaskAssignor {
	return stickyTaskAssignor{}
}

func (stickyTaskAssignor) Name() string {
	return StickyTaskAssignorName
}

func (stickyTaskAssignor) Assign(spec *StreamsGroupSpec, topology TopologyDescriber) (StreamsGroupAssignment, error) {
	members := sortedMemberIDs(spec.Members())
	result := StreamsGroupAssignment{Members: make(map[string]StreamsMemberAssignment, len(members))}
	for _, id := range members {
		result.Members[id] = StreamsMemberAssignment{
			ActiveTasks:  map[string][]int32{},
			StandbyTasks: map[string][]int32{},
			WarmupTasks:  map[string][]int32{},
		}
	}
	numStandby, err := numStandbyReplicas(spec.AssignmentConfigs())
	if err != nil {
		return result, err
	}

	var tasks []slot
	for _, subtopology := range topology.Subtopologies() {
		numTasks, err := topology.MaxNumInputPartitions(subtopology)
		if err != nil {
			return result, errors.Wrapf(err, "describe subtopology %s", subtopology)
		}
		for p := 0; p < numTasks; p++ {
			tasks = append(tasks, slot{topic: subtopology, partition: int32(p)})
		}
	}
	sortSlots(tasks)

	previous := make(map[slot]string)
	for _, id := range members {
		for subtopology, partitions := range spec.Members()[id].ActiveTasks {
			for _, p := range partitions {
				previous[slot{topic: subtopology, partition: p}] = id
			}
		}
	}
	owners := balance(tasks, members, func(string, slot) bool { return true }, previous)
	counts := make(map[string]int, len(members))
	for _, task := range tasks {
		owner, ok := owners[task]
		if !ok {
			continue
		}
		active := result.Members[owner].ActiveTasks
		active[task.topic] = append(active[task.topic], task.partition)
		counts[owner]++
	}

	for _, task := range tasks {
		if numStandby == 0 || !topology.IsStateful(task.topic) {
			continue
		}
		owner, ok := owners[task]
		if !ok {
			continue
		}
		usedProcesses := map[string]bool{processOf(spec, owner): true}
		for replica := 0; replica < numStandby; replica++ {
			best := ""
			for _, id := range members {
				if usedProcesses[processOf(spec, id)] {
					continue
				}
				if best == "" || counts[id] < counts[best] {
					best = id
				}
			}
			if best == "" {
				break
			}
			standby := result.Members[best].StandbyTasks
			standby[task.topic] = append(standby[task.topic], task.partition)
			counts[best]++
			usedProcesses[processOf(spec, best)] = true
		}
	}
	return result, nil
}

func processOf(spec *StreamsGroupSpec, memberID string) string {
	if process := spec.Members()[memberID].ProcessID; process != "" {
		return process
	}
	return memberID
}

func numStandbyReplicas(configs map[string]string) (int, error) {
	value, ok := configs[NumStandbyReplicasConfig]
	if !ok || value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, errors.Errorf("invalid %s: %s", NumStandbyReplicasConfig, value)
	}
	return n, nil
}
