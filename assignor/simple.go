package assignor

type simpleAssignor struct{}

// NewSimpleAssignor is the share group assignor. Share group members may
// consume the same partition, so when a topic has fewer partitions than
// subscribers the partitions are handed out more than once.
func NewSimpleAssignor() PartitionAssignor {
	return simpleAssignor{}
}

func (simpleAssignor) Name() string {
	return SimpleAssignorName
}

func (simpleAssignor) Assign(spec GroupSpec, topics SubscribedTopicDescriber) (GroupAssignment, error) {
	result := emptyAssignment(spec.Members)
	membersByTopic := make(map[string][]string)
	for _, id := range sortedMemberIDs(spec.Members) {
		for _, topic := range spec.Members[id].SubscribedTopics {
			membersByTopic[topic] = append(membersByTopic[topic], id)
		}
	}
	for topic, members := range membersByTopic {
		numPartitions := topics.NumPartitions(topic)
		if numPartitions <= 0 {
			continue
		}
		if len(members) <= numPartitions {
			for p := 0; p < numPartitions; p++ {
				result.add(members[p%len(members)], topic, int32(p))
			}
			continue
		}
		for i, member := range members {
			result.add(member, topic, int32(i%numPartitions))
		}
	}
	result.sort()
	return result, nil
}
