package coordinator

import (
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"sort"
)

// Assignment maps a topic, or a subtopology for streams groups, to a sorted
// set of partitions.
type Assignment map[string][]int32

func AssignmentFromTopicPartitions(tps []model.TopicPartitions) Assignment {
	a := Assignment{}
	for _, tp := range tps {
		for _, p := range tp.Partitions {
			a.add(tp.TopicName, p)
		}
	}
	return a
}

func AssignmentFromTaskIDs(tasks []model.TaskIDs) Assignment {
	a := Assignment{}
	for _, task := range tasks {
		for _, p := range task.Partitions {
			a.add(task.SubtopologyID, p)
		}
	}
	return a
}

func (a Assignment) add(topic string, partition int32) {
	if a.Contains(topic, partition) {
		return
	}
	partitions := append(a[topic], partition)
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
	a[topic] = partitions
}

func (a Assignment) Contains(topic string, partition int32) bool {
	for _, p := range a[topic] {
		if p == partition {
			return true
		}
	}
	return false
}

func (a Assignment) Size() int {
	n := 0
	for _, partitions := range a {
		n += len(partitions)
	}
	return n
}

func (a Assignment) IsEmpty() bool {
	return a.Size() == 0
}

func (a Assignment) Clone() Assignment {
	c := make(Assignment, len(a))
	for topic, partitions := range a {
		if len(partitions) > 0 {
			c[topic] = append([]int32(nil), partitions...)
		}
	}
	return c
}

func (a Assignment) Equal(o Assignment) bool {
	if a.Size() != o.Size() {
		return false
	}
	for topic, partitions := range a {
		for _, p := range partitions {
			if !o.Contains(topic, p) {
				return false
			}
		}
	}
	return true
}

// Intersect returns the partitions present in both assignments.
func (a Assignment) Intersect(o Assignment) Assignment {
	r := Assignment{}
	a.each(func(topic string, p int32) {
		if o.Contains(topic, p) {
			r.add(topic, p)
		}
	})
	return r
}

// Minus returns the partitions of a missing from o.
func (a Assignment) Minus(o Assignment) Assignment {
	r := Assignment{}
	a.each(func(topic string, p int32) {
		if !o.Contains(topic, p) {
			r.add(topic, p)
		}
	})
	return r
}

func (a Assignment) Union(o Assignment) Assignment {
	r := a.Clone()
	o.each(r.add)
	return r
}

func (a Assignment) each(fn func(topic string, partition int32)) {
	for _, topic := range a.Topics() {
		for _, p := range a[topic] {
			fn(topic, p)
		}
	}
}

func (a Assignment) Topics() []string {
	topics := make([]string, 0, len(a))
	for topic, partitions := range a {
		if len(partitions) > 0 {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	return topics
}

func (a Assignment) TopicPartitions() []model.TopicPartitions {
	tps := make([]model.TopicPartitions, 0, len(a))
	for _, topic := range a.Topics() {
		tps = append(tps, model.TopicPartitions{TopicName: topic, Partitions: append([]int32(nil), a[topic]...)})
	}
	return tps
}

func (a Assignment) TaskIDs() []model.TaskIDs {
	tasks := make([]model.TaskIDs, 0, len(a))
	for _, subtopology := range a.Topics() {
		tasks = append(tasks, model.TaskIDs{SubtopologyID: subtopology, Partitions: append([]int32(nil), a[subtopology]...)})
	}
	return tasks
}
