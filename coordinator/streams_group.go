package coordinator

import (
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/twmb/franz-go/pkg/kerr"
	"sort"
)

type StreamsTopology struct {
	Epoch         int32
	Subtopologies []model.Subtopology
}

func (t *StreamsTopology) SourceTopics() []string {
	topics := make(map[string]bool)
	for _, s := range t.Subtopologies {
		for _, topic := range s.SourceTopics {
			topics[topic] = true
		}
	}
	return sortedKeys(topics)
}

// StreamsTarget is the tasks a streams member should eventually own.
type StreamsTarget struct {
	Active  Assignment
	Standby Assignment
	Warmup  Assignment
}

func emptyStreamsTarget() StreamsTarget {
	return StreamsTarget{Active: Assignment{}, Standby: Assignment{}, Warmup: Assignment{}}
}

func (t StreamsTarget) Equal(o StreamsTarget) bool {
	return t.Active.Equal(o.Active) && t.Standby.Equal(o.Standby) && t.Warmup.Equal(o.Warmup)
}

// StreamsGroup is a group of Kafka Streams clients sharing a topology. Its
// active tasks are tracked in the embedded target assignment.
type StreamsGroup struct {
	modernGroup
	topology       *StreamsTopology
	standbyTargets map[string]Assignment
	warmupTargets  map[string]Assignment
}

func NewStreamsGroup(groupID string) *StreamsGroup {
	return &StreamsGroup{
		modernGroup:    newModernGroup(groupID),
		standbyTargets: make(map[string]Assignment),
		warmupTargets:  make(map[string]Assignment),
	}
}

func (g *StreamsGroup) Type() GroupType {
	return StreamsGroupType
}

func (g *StreamsGroup) Topology() (*StreamsTopology, bool) {
	return g.topology, g.topology != nil
}

func (g *StreamsGroup) setTopology(topology *StreamsTopology) {
	g.topology = topology
}

func (g *StreamsGroup) State() GroupState {
	if len(g.members) == 0 {
		return GroupStateEmpty
	}
	if len(g.missingSourceTopics(g.subscriptionMetadata)) > 0 || g.topology == nil {
		return GroupStateNotReady
	}
	return g.reconciliationState()
}

func (g *StreamsGroup) missingSourceTopics(metadata map[string]int32) []string {
	return missingSourceTopics(g.topology, metadata)
}

func missingSourceTopics(topology *StreamsTopology, metadata map[string]int32) []string {
	if topology == nil {
		return nil
	}
	var missing []string
	for _, topic := range topology.SourceTopics() {
		if _, ok := metadata[topic]; !ok {
			missing = append(missing, topic)
		}
	}
	return missing
}

func (g *StreamsGroup) StreamsTarget(memberID string) StreamsTarget {
	target := emptyStreamsTarget()
	if active, ok := g.targetAssignment[memberID]; ok {
		target.Active = active.Clone()
	}
	if standby, ok := g.standbyTargets[memberID]; ok {
		target.Standby = standby.Clone()
	}
	if warmup, ok := g.warmupTargets[memberID]; ok {
		target.Warmup = warmup.Clone()
	}
	return target
}

func (g *StreamsGroup) setStreamsTarget(memberID string, target StreamsTarget) {
	g.setTargetAssignment(memberID, target.Active)
	g.standbyTargets[memberID] = target.Standby
	g.warmupTargets[memberID] = target.Warmup
}

func (g *StreamsGroup) removeStreamsTarget(memberID string) {
	g.removeTargetAssignment(memberID)
	delete(g.standbyTargets, memberID)
	delete(g.warmupTargets, memberID)
}

func (g *StreamsGroup) removeStreamsMember(memberID string) {
	g.removeMember(memberID)
	delete(g.standbyTargets, memberID)
	delete(g.warmupTargets, memberID)
}

func (g *StreamsGroup) IsSubscribedToTopic(topic string) bool {
	if g.topology == nil || len(g.members) == 0 {
		return false
	}
	for _, t := range g.topology.SourceTopics() {
		if t == topic {
			return true
		}
	}
	return false
}

func (g *StreamsGroup) ValidateDeleteGroup() error {
	if state := g.State(); state != GroupStateEmpty {
		return errors.Wrapf(kerr.NonEmptyGroup, "group %s is in state %s", g.groupID, state)
	}
	return nil
}

func (g *StreamsGroup) CreateGroupTombstoneRecords(records []model.Record) []model.Record {
	ids := g.MemberIDs()
	for _, id := range ids {
		records = append(records, NewStreamsGroupCurrentAssignmentTombstoneRecord(g.groupID, id))
	}
	for _, id := range sortedKeys(g.targetAssignment) {
		records = append(records, NewStreamsGroupTargetAssignmentTombstoneRecord(g.groupID, id))
	}
	records = append(records, NewStreamsGroupTargetAssignmentEpochTombstoneRecord(g.groupID))
	for _, id := range ids {
		records = append(records, NewStreamsGroupMemberTombstoneRecord(g.groupID, id))
	}
	records = append(records, NewStreamsGroupPartitionMetadataTombstoneRecord(g.groupID))
	records = append(records, NewStreamsGroupEpochTombstoneRecord(g.groupID))
	return append(records, NewStreamsGroupTopologyTombstoneRecord(g.groupID))
}

func (g *StreamsGroup) OffsetExpirationCondition() (OffsetExpirationCondition, bool) {
	return commitTimestampCondition(), true
}

func (g *StreamsGroup) ValidateOffsetCommit(memberID, _ string, memberEpoch int32, _ bool) error {
	if memberEpoch < 0 && len(g.members) == 0 {
		return nil
	}
	return g.validateMemberEpoch(memberID, memberEpoch)
}

func (g *StreamsGroup) ValidateOffsetFetch(memberID string, memberEpoch int32) error {
	if memberEpoch < 0 && memberID == "" {
		return nil
	}
	return g.validateMemberEpoch(memberID, memberEpoch)
}

func (g *StreamsGroup) ValidateOffsetDelete() error {
	return nil
}

func (g *StreamsGroup) Describe() DescribedGroup {
	return DescribedGroup{
		GroupID:         g.groupID,
		GroupType:       StreamsGroupType,
		State:           g.State(),
		Epoch:           g.groupEpoch,
		AssignmentEpoch: g.assignmentEpoch,
		ProtocolType:    "streams",
		Members:         g.describeMembers(),
	}
}

// topologyDescriber exposes the topology of a group to the task assignor.
// Subtopologies whose source topics are missing are left out.
type topologyDescriber struct {
	subtopologies map[string]model.Subtopology
	metadata      map[string]int32
}

func newTopologyDescriber(topology *StreamsTopology, metadata map[string]int32) *topologyDescriber {
	d := &topologyDescriber{subtopologies: make(map[string]model.Subtopology), metadata: metadata}
	if topology == nil {
		return d
	}
	for _, s := range topology.Subtopologies {
		ready := len(s.SourceTopics) > 0
		for _, topic := range s.SourceTopics {
			if _, ok := metadata[topic]; !ok {
				ready = false
			}
		}
		if ready {
			d.subtopologies[s.SubtopologyID] = s
		}
	}
	return d
}

func (d *topologyDescriber) Subtopologies() []string {
	ids := make([]string, 0, len(d.subtopologies))
	for id := range d.subtopologies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (d *topologyDescriber) MaxNumInputPartitions(subtopologyID string) (int, error) {
	s, ok := d.subtopologies[subtopologyID]
	if !ok {
		return 0, errors.Errorf("unknown subtopology %s", subtopologyID)
	}
	max := 0
	for _, topic := range s.SourceTopics {
		if n := int(d.metadata[topic]); n > max {
			max = n
		}
	}
	return max, nil
}

func (d *topologyDescriber) IsStateful(subtopologyID string) bool {
	return len(d.subtopologies[subtopologyID].StateChangelogTopics) > 0
}
