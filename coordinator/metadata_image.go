package coordinator

import (
	"sort"
)

type TopicImage struct {
	Name          string
	NumPartitions int32
	// Racks lists the racks hosting replicas of each partition, optional.
	Racks map[int32][]string
}

// MetadataImage is an immutable snapshot of the cluster topics.
type MetadataImage struct {
	Version int64
	topics  map[string]TopicImage
}

func NewMetadataImage(version int64, topics ...TopicImage) *MetadataImage {
	image := &MetadataImage{Version: version, topics: make(map[string]TopicImage, len(topics))}
	for _, topic := range topics {
		image.topics[topic.Name] = topic
	}
	return image
}

func EmptyMetadataImage() *MetadataImage {
	return NewMetadataImage(0)
}

func (m *MetadataImage) Topic(name string) (TopicImage, bool) {
	topic, ok := m.topics[name]
	return topic, ok
}

// NumPartitions returns -1 for unknown topics.
func (m *MetadataImage) NumPartitions(topic string) int {
	t, ok := m.topics[topic]
	if !ok {
		return -1
	}
	return int(t.NumPartitions)
}

func (m *MetadataImage) RacksForPartition(topic string, partition int32) []string {
	return m.topics[topic].Racks[partition]
}

func (m *MetadataImage) TopicNames() []string {
	names := make([]string, 0, len(m.topics))
	for name := range m.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
