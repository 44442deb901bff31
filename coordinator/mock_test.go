package coordinator

import (
	"fmt"
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/twmb/franz-go/pkg/kerr"
)

// mockGroupManager records the calls it receives, its answers are set by the
// test.
type mockGroupManager struct {
	calls []string

	groupIDs            []string
	deleteErrors        map[string]error
	shareGroups         map[string]*ShareGroup
	shareDeleteRequests map[string]*DeleteShareGroupStateParameters
	replayed            []model.Record
	image               *MetadataImage
}

func newMockGroupManager() *mockGroupManager {
	return &mockGroupManager{
		deleteErrors:        map[string]error{},
		shareGroups:         map[string]*ShareGroup{},
		shareDeleteRequests: map[string]*DeleteShareGroupStateParameters{},
	}
}

func (m *mockGroupManager) record(format string, args ...interface{}) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *mockGroupManager) ConsumerGroupHeartbeat(_ *RequestContext, req *ConsumerGroupHeartbeatRequest) (model.Result[*ConsumerGroupHeartbeatResponse], error) {
	m.record("ConsumerGroupHeartbeat %s", req.GroupID)
	return model.NewResult[*ConsumerGroupHeartbeatResponse](nil, &ConsumerGroupHeartbeatResponse{MemberID: req.MemberID}), nil
}

func (m *mockGroupManager) ShareGroupHeartbeat(_ *RequestContext, req *ShareGroupHeartbeatRequest) (model.Result[*ShareGroupHeartbeatResponse], error) {
	m.record("ShareGroupHeartbeat %s", req.GroupID)
	return model.NewResult[*ShareGroupHeartbeatResponse](nil, &ShareGroupHeartbeatResponse{MemberID: req.MemberID}), nil
}

func (m *mockGroupManager) StreamsGroupHeartbeat(_ *RequestContext, req *StreamsGroupHeartbeatRequest) (model.Result[*StreamsGroupHeartbeatResponse], error) {
	m.record("StreamsGroupHeartbeat %s", req.GroupID)
	return model.NewResult[*StreamsGroupHeartbeatResponse](nil, &StreamsGroupHeartbeatResponse{MemberID: req.MemberID}), nil
}

func (m *mockGroupManager) Replay(key model.RecordKey, value model.RecordValue) error {
	m.record("Replay %s", key.RecordType())
	m.replayed = append(m.replayed, model.Record{Key: key, Value: value})
	return nil
}

func (m *mockGroupManager) Group(groupID string) (Group, error) {
	m.record("Group %s", groupID)
	return nil, errors.Wrapf(kerr.GroupIDNotFound, "group %s not found", groupID)
}

func (m *mockGroupManager) GetOrMaybeCreateClassicGroup(groupID string, createIfNotExists bool) (Group, error) {
	m.record("GetOrMaybeCreateClassicGroup %s %t", groupID, createIfNotExists)
	return NewClassicGroup(groupID), nil
}

func (m *mockGroupManager) GroupIDs() []string {
	m.record("GroupIDs")
	return m.groupIDs
}

func (m *mockGroupManager) DescribeGroup(groupID string) (DescribedGroup, error) {
	m.record("DescribeGroup %s", groupID)
	for _, id := range m.groupIDs {
		if id == groupID {
			return DescribedGroup{GroupID: groupID, GroupType: ConsumerGroupType, State: GroupStateEmpty}, nil
		}
	}
	return DescribedGroup{}, errors.Wrapf(kerr.GroupIDNotFound, "group %s not found", groupID)
}

func (m *mockGroupManager) ValidateDeleteGroup(groupID string) error {
	m.record("ValidateDeleteGroup %s", groupID)
	return m.deleteErrors[groupID]
}

func (m *mockGroupManager) CreateGroupTombstoneRecords(groupID string, records []model.Record) ([]model.Record, error) {
	m.record("CreateGroupTombstoneRecords %s", groupID)
	return append(records, NewGroupMetadataTombstoneRecord(groupID)), nil
}

func (m *mockGroupManager) MaybeDeleteGroup(groupID string, records []model.Record) ([]model.Record, bool) {
	m.record("MaybeDeleteGroup %s", groupID)
	return append(records, NewGroupMetadataTombstoneRecord(groupID)), true
}

func (m *mockGroupManager) ShareGroup(groupID string) (*ShareGroup, error) {
	m.record("ShareGroup %s", groupID)
	group, ok := m.shareGroups[groupID]
	if !ok {
		return nil, errors.Wrapf(kerr.GroupIDNotFound, "share group %s not found", groupID)
	}
	return group, nil
}

func (m *mockGroupManager) ShareGroupBuildPartitionDeleteRequest(group *ShareGroup) (*DeleteShareGroupStateParameters, bool) {
	m.record("ShareGroupBuildPartitionDeleteRequest %s", group.GroupID())
	params, ok := m.shareDeleteRequests[group.GroupID()]
	return params, ok
}

func (m *mockGroupManager) OnNewMetadataImage(image *MetadataImage) {
	m.record("OnNewMetadataImage %d", image.Version)
	m.image = image
}

func (m *mockGroupManager) OnLoaded() {
	m.record("OnLoaded")
}

func (m *mockGroupManager) OnUnloaded() {
	m.record("OnUnloaded")
}

func (m *mockGroupManager) UpdateGroupSizeCounter() {
	m.record("UpdateGroupSizeCounter")
}

type replayedOffset struct {
	recordOffset int64
	producerID   int64
	key          *model.OffsetCommitKey
	value        *model.OffsetCommitValue
}

type mockOffsetManager struct {
	calls []string

	// expired tells CleanupExpiredOffsets which groups lost all offsets.
	expired           map[string]bool
	partitionsDeleted []model.Record
	replayed          []replayedOffset
	markers           map[int64]model.TransactionResult
}

func newMockOffsetManager() *mockOffsetManager {
	return &mockOffsetManager{expired: map[string]bool{}, markers: map[int64]model.TransactionResult{}}
}

func (m *mockOffsetManager) record(format string, args ...interface{}) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *mockOffsetManager) CommitOffset(_ *RequestContext, req *OffsetCommitRequest) (model.Result[*OffsetCommitResponse], error) {
	m.record("CommitOffset %s", req.GroupID)
	return model.NewResult[*OffsetCommitResponse](nil, &OffsetCommitResponse{}), nil
}

func (m *mockOffsetManager) CommitTransactionalOffset(_ *RequestContext, req *TxnOffsetCommitRequest) (model.Result[*OffsetCommitResponse], error) {
	m.record("CommitTransactionalOffset %s %d", req.GroupID, req.ProducerID)
	return model.NewResult[*OffsetCommitResponse](nil, &OffsetCommitResponse{}), nil
}

func (m *mockOffsetManager) FetchOffsets(req *OffsetFetchRequest) *OffsetFetchResponse {
	m.record("FetchOffsets %s", req.GroupID)
	return &OffsetFetchResponse{GroupID: req.GroupID}
}

func (m *mockOffsetManager) FetchAllOffsets(req *OffsetFetchRequest) *OffsetFetchResponse {
	m.record("FetchAllOffsets %s", req.GroupID)
	return &OffsetFetchResponse{GroupID: req.GroupID}
}

func (m *mockOffsetManager) DeleteOffsets(req *OffsetDeleteRequest) (model.Result[*OffsetDeleteResponse], error) {
	m.record("DeleteOffsets %s", req.GroupID)
	return model.NewResult[*OffsetDeleteResponse](nil, &OffsetDeleteResponse{}), nil
}

func (m *mockOffsetManager) DeleteAllOffsets(groupID string, records []model.Record) ([]model.Record, int) {
	m.record("DeleteAllOffsets %s", groupID)
	return append(records, NewOffsetCommitTombstoneRecord(groupID, "topic-name", 0)), 1
}

func (m *mockOffsetManager) CleanupExpiredOffsets(groupID string, records []model.Record) ([]model.Record, bool) {
	m.record("CleanupExpiredOffsets %s", groupID)
	if !m.expired[groupID] {
		return records, false
	}
	return append(records, NewOffsetCommitTombstoneRecord(groupID, "topic", 0)), true
}

func (m *mockOffsetManager) OnPartitionsDeleted(partitions []model.TopicPartition) []model.Record {
	m.record("OnPartitionsDeleted %d", len(partitions))
	return m.partitionsDeleted
}

func (m *mockOffsetManager) Replay(recordOffset, producerID int64, key *model.OffsetCommitKey, value *model.OffsetCommitValue) error {
	m.record("Replay %d", recordOffset)
	m.replayed = append(m.replayed, replayedOffset{recordOffset: recordOffset, producerID: producerID, key: key, value: value})
	return nil
}

func (m *mockOffsetManager) ReplayEndTransactionMarker(producerID int64, result model.TransactionResult) error {
	m.record("ReplayEndTransactionMarker %d %s", producerID, result)
	m.markers[producerID] = result
	return nil
}

type recordingMetricsSink struct {
	groupCounts   map[GroupType]map[GroupState]int
	offsetCommits int
	offsetExpired int
	groupsDeleted int
}

func newRecordingMetricsSink() *recordingMetricsSink {
	return &recordingMetricsSink{groupCounts: map[GroupType]map[GroupState]int{}}
}

func (r *recordingMetricsSink) RecordGroupCount(groupType GroupType, state GroupState, count int) {
	if _, ok := r.groupCounts[groupType]; !ok {
		r.groupCounts[groupType] = map[GroupState]int{}
	}
	r.groupCounts[groupType][state] = count
}

func (r *recordingMetricsSink) IncOffsetCommits(count int) {
	r.offsetCommits += count
}

func (r *recordingMetricsSink) IncOffsetExpired(count int) {
	r.offsetExpired += count
}

func (r *recordingMetricsSink) IncGroupsDeleted(count int) {
	r.groupsDeleted += count
}
