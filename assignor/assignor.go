package assignor

import (
	"github.com/pkg/errors"
	"sort"
)

const (
	RangeAssignorName      = "range"
	RoundRobinAssignorName = "roundrobin"
	UniformAssignorName    = "uniform"
	SimpleAssignorName     = "simple"
	StickyTaskAssignorName = "sticky"
)

var ErrUnknownAssignor = errors.New("unknown assignor")

type SubscriptionType int8

const (
	HomogeneousSubscription SubscriptionType = iota
	HeterogeneousSubscription
)

// MemberSubscriptionSpec is what an assignor knows about one member.
type MemberSubscriptionSpec struct {
	RackID           string
	InstanceID       string
	SubscribedTopics []string
	// Assignment is the member's current target, used for stickiness.
	Assignment map[string][]int32
}

type GroupSpec struct {
	Members          map[string]MemberSubscriptionSpec
	SubscriptionType SubscriptionType
}

// NewGroupSpec derives the subscription type from the members.
func NewGroupSpec(members map[string]MemberSubscriptionSpec) GroupSpec {
	spec := GroupSpec{Members: members, SubscriptionType: HomogeneousSubscription}
	var first []string
	initialized := false
	for _, member := range members {
		if !initialized {
			first = member.SubscribedTopics
			initialized = true
			continue
		}
		if !sameTopics(first, member.SubscribedTopics) {
			spec.SubscriptionType = HeterogeneousSubscription
			break
		}
	}
	return spec
}

// SubscribedTopicDescriber exposes the partition counts of the subscribed
// topics.
type SubscribedTopicDescriber interface {
	// NumPartitions returns -1 when the topic does not exist.
	NumPartitions(topic string) int
	RacksForPartition(topic string, partition int32) []string
}

// TopicPartitionCounts is a SubscribedTopicDescriber without rack information.
type TopicPartitionCounts map[string]int

func (t TopicPartitionCounts) NumPartitions(topic string) int {
	n, ok := t[topic]
	if !ok {
		return -1
	}
	return n
}

func (t TopicPartitionCounts) RacksForPartition(string, int32) []string {
	return nil
}

type MemberAssignment struct {
	Partitions map[string][]int32
}

type GroupAssignment struct {
	Members map[string]MemberAssignment
}

type PartitionAssignor interface {
	Name() string
	Assign(spec GroupSpec, topics SubscribedTopicDescriber) (GroupAssignment, error)
}

// Lookup returns the assignors with the given names, in order.
func Lookup(names ...string) ([]PartitionAssignor, error) {
	assignors := make([]PartitionAssignor, 0, len(names))
	for _, name := range names {
		switch name {
		case RangeAssignorName:
			assignors = append(assignors, NewRangeAssignor())
		case RoundRobinAssignorName:
			assignors = append(assignors, NewRoundRobinAssignor())
		case UniformAssignorName:
			assignors = append(assignors, NewUniformAssignor())
		case SimpleAssignorName:
			assignors = append(assignors, NewSimpleAssignor())
		default:
			return nil, errors.Wrapf(ErrUnknownAssignor, "assignor %s", name)
		}
	}
	return assignors, nil
}

func sameTopics(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a = sortedCopy(a)
	b = sortedCopy(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortedCopy(s []string) []string {
	c := append([]string(nil), s...)
	sort.Strings(c)
	return c
}

func sortedMemberIDs[V any](members map[string]V) []string {
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// emptyAssignment makes sure every member of the group shows up in the result.
func emptyAssignment[V any](members map[string]V) GroupAssignment {
	assignment := GroupAssignment{Members: make(map[string]MemberAssignment, len(members))}
	for id := range members {
		assignment.Members[id] = MemberAssignment{Partitions: map[string][]int32{}}
	}
	return assignment
}

func (g GroupAssignment) add(memberID, topic string, partition int32) {
	member := g.Members[memberID]
	member.Partitions[topic] = append(member.Partitions[topic], partition)
}

func (g GroupAssignment) sort() {
	for _, member := range g.Members {
		for topic := range member.Partitions {
			partitions := member.Partitions[topic]
			sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
		}
	}
}
