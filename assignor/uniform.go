package assignor

import (
	"sort"
)

type slot struct {
	topic     string
	partition int32
}

// balance gives every slot to one eligible member. Previous owners keep their
// slots while they stay within the even share; the rest goes to the least
// loaded eligible member, ties broken by member order.
func balance(slots []slot, members []string, eligible func(member string, s slot) bool, previous map[slot]string) map[slot]string {
	owners := make(map[slot]string, len(slots))
	if len(members) == 0 {
		return owners
	}
	quota := (len(slots) + len(members) - 1) / len(members)
	counts := make(map[string]int, len(members))
	var pending []slot
	for _, s := range slots {
		owner, ok := previous[s]
		if ok && eligible(owner, s) && counts[owner] < quota {
			owners[s] = owner
			counts[owner]++
			continue
		}
		pending = append(pending, s)
	}
	for _, s := range pending {
		best := ""
		for _, member := range members {
			if !eligible(member, s) {
				continue
			}
			if best == "" || counts[member] < counts[best] {
				best = member
			}
		}
		if best != "" {
			owners[s] = best
			counts[best]++
		}
	}
	return owners
}

func sortSlots(slots []slot) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].topic != slots[j].topic {
			return slots[i].topic < slots[j].topic
		}
		return slots[i].partition < slots[j].partition
	})
}

type uniformAssignor struct{}

// NewUniformAssignor spreads partitions evenly over the subscribed members
// while keeping as many partitions as possible with their current member.
func NewUniformAssignor() PartitionAssignor {
	return uniformAssignor{}
}

func (uniformAssignor) Name() string {
	return UniformAssignorName
}

func (uniformAssignor) Assign(spec GroupSpec, topics SubscribedTopicDescriber) (GroupAssignment, error) {
	result := emptyAssignment(spec.Members)
	members := sortedMemberIDs(spec.Members)
	subscribed := make(map[string]map[string]bool, len(members))
	previous := make(map[slot]string)
	seen := make(map[string]bool)
	var slots []slot
	for _, id := range members {
		member := spec.Members[id]
		subscribed[id] = make(map[string]bool, len(member.SubscribedTopics))
		for _, topic := range member.SubscribedTopics {
			subscribed[id][topic] = true
			if seen[topic] {
				continue
			}
			seen[topic] = true
			for p := 0; p < topics.NumPartitions(topic); p++ {
				slots = append(slots, slot{topic: topic, partition: int32(p)})
			}
		}
		for topic, partitions := range member.Assignment {
			for _, p := range partitions {
				previous[slot{topic: topic, partition: p}] = id
			}
		}
	}
	sortSlots(slots)
	owners := balance(slots, members, func(member string, s slot) bool {
		return subscribed[member][s.topic]
	}, previous)
	for s, owner := range owners {
		result.add(owner, s.topic, s.partition)
	}
	result.sort()
	return result, nil
}
