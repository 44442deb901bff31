package assignor

import (
	"github.com/segmentio/kafka-go"
)

// balancerAssignor runs a client side kafka-go GroupBalancer on the
// coordinator.
type balancerAssignor struct {
	name     string
	balancer kafka.GroupBalancer
}

func NewRangeAssignor() PartitionAssignor {
	return &balancerAssignor{name: RangeAssignorName, balancer: kafka.RangeGroupBalancer{}}
}

func NewRoundRobinAssignor() PartitionAssignor {
	return &balancerAssignor{name: RoundRobinAssignorName, balancer: kafka.RoundRobinGroupBalancer{}}
}

func (b *balancerAssignor) Name() string {
	return b.name
}

func (b *balancerAssignor) Assign(spec GroupSpec, topics SubscribedTopicDescriber) (GroupAssignment, error) {
	result := emptyAssignment(spec.Members)
	members := make([]kafka.GroupMember, 0, len(spec.Members))
	var partitions []kafka.Partition
	seen := make(map[string]bool)
	for _, id := range sortedMemberIDs(spec.Members) {
		member := spec.Members[id]
		members = append(members, kafka.GroupMember{ID: id, Topics: sortedCopy(member.SubscribedTopics)})
		for _, topic := range member.SubscribedTopics {
			if seen[topic] {
				continue
			}
			seen[topic] = true
			for p := 0; p < topics.NumPartitions(topic); p++ {
				partitions = append(partitions, kafka.Partition{Topic: topic, ID: p})
			}
		}
	}
	for memberID, byTopic := range b.balancer.AssignGroups(members, partitions) {
		if _, ok := result.Members[memberID]; !ok {
			continue
		}
		for topic, ps := range byTopic {
			for _, p := range ps {
				result.add(memberID, topic, int32(p))
			}
		}
	}
	result.sort()
	return result, nil
}
