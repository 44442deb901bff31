package coordinator

import (
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"sort"
)

type MemberState int8

const (
	MemberStateUnrevokedPartitions  MemberState = 0
	MemberStateUnreleasedPartitions MemberState = 1
	MemberStateStable               MemberState = 2
	MemberStateUnknown              MemberState = 127
)

func (s MemberState) String() string {
	switch s {
	case MemberStateUnrevokedPartitions:
		return "UNREVOKED_PARTITIONS"
	case MemberStateUnreleasedPartitions:
		return "UNRELEASED_PARTITIONS"
	case MemberStateStable:
		return "STABLE"
	}
	return "UNKNOWN"
}

// Member is the member of a consumer, share or streams group. Fields that do
// not apply to a variant stay empty.
type Member struct {
	MemberID           string
	InstanceID         string
	RackID             string
	ClientID           string
	ClientHost         string
	RebalanceTimeoutMs int32

	SubscribedTopicNames []string
	SubscribedTopicRegex string
	ServerAssignor       string

	TopologyEpoch int32
	ProcessID     string
	UserEndpoint  string
	ClientTags    map[string]string

	State               MemberState
	MemberEpoch         int32
	PreviousMemberEpoch int32
	// Assigned holds partitions for consumer and share members and active
	// tasks for streams members.
	Assigned          Assignment
	PendingRevocation Assignment
	StandbyTasks      Assignment
	WarmupTasks       Assignment
}

func newMember(memberID string) *Member {
	return &Member{
		MemberID:          memberID,
		State:             MemberStateStable,
		Assigned:          Assignment{},
		PendingRevocation: Assignment{},
		StandbyTasks:      Assignment{},
		WarmupTasks:       Assignment{},
	}
}

func (m *Member) Clone() *Member {
	c := *m
	c.SubscribedTopicNames = append([]string(nil), m.SubscribedTopicNames...)
	if m.ClientTags != nil {
		c.ClientTags = make(map[string]string, len(m.ClientTags))
		for k, v := range m.ClientTags {
			c.ClientTags[k] = v
		}
	}
	c.Assigned = m.Assigned.Clone()
	c.PendingRevocation = m.PendingRevocation.Clone()
	c.StandbyTasks = m.StandbyTasks.Clone()
	c.WarmupTasks = m.WarmupTasks.Clone()
	return &c
}

func (m *Member) sameSubscription(o *Member) bool {
	return m.SubscribedTopicRegex == o.SubscribedTopicRegex &&
		sameStrings(m.SubscribedTopicNames, o.SubscribedTopicNames)
}

func (m *Member) sameMetadata(o *Member) bool {
	return m.sameSubscription(o) &&
		m.InstanceID == o.InstanceID &&
		m.RackID == o.RackID &&
		m.ClientID == o.ClientID &&
		m.ClientHost == o.ClientHost &&
		m.RebalanceTimeoutMs == o.RebalanceTimeoutMs &&
		m.ServerAssignor == o.ServerAssignor &&
		m.TopologyEpoch == o.TopologyEpoch &&
		m.ProcessID == o.ProcessID &&
		m.UserEndpoint == o.UserEndpoint &&
		sameTags(m.ClientTags, o.ClientTags)
}

func (m *Member) sameAssignment(o *Member) bool {
	return m.State == o.State &&
		m.MemberEpoch == o.MemberEpoch &&
		m.PreviousMemberEpoch == o.PreviousMemberEpoch &&
		m.Assigned.Equal(o.Assigned) &&
		m.PendingRevocation.Equal(o.PendingRevocation) &&
		m.StandbyTasks.Equal(o.StandbyTasks) &&
		m.WarmupTasks.Equal(o.WarmupTasks)
}

func (m *Member) describe(target Assignment) DescribedMember {
	return DescribedMember{
		MemberID:         m.MemberID,
		InstanceID:       m.InstanceID,
		ClientID:         m.ClientID,
		ClientHost:       m.ClientHost,
		MemberEpoch:      m.MemberEpoch,
		State:            m.State,
		Assignment:       m.Assigned.TopicPartitions(),
		TargetAssignment: target.TopicPartitions(),
	}
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameTags(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func sortedStrings(s []string) []string {
	c := append([]string(nil), s...)
	sort.Strings(c)
	return c
}

func tagsFromKeyValues(kvs []model.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	tags := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		tags[kv.Key] = kv.Value
	}
	return tags
}

func keyValuesFromTags(tags map[string]string) []model.KeyValue {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kvs := make([]model.KeyValue, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, model.KeyValue{Key: k, Value: tags[k]})
	}
	return kvs
}
