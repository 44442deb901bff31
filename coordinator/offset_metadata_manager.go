package coordinator

import (
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/log"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/protocol-laboratory/group-coordinator-go/timer"
	"github.com/twmb/franz-go/pkg/kerr"
	"sort"
)

// OffsetAndMetadata is a committed offset as materialized from the log.
type OffsetAndMetadata struct {
	CommittedOffset   int64
	LeaderEpoch       int32
	Metadata          string
	CommitTimestampMs int64
	ExpireTimestampMs int64
	// RecordOffset is the log offset of the record it was replayed from.
	RecordOffset int64
}

func offsetFromRecord(recordOffset int64, value *model.OffsetCommitValue) *OffsetAndMetadata {
	return &OffsetAndMetadata{
		CommittedOffset:   value.Offset,
		LeaderEpoch:       value.LeaderEpoch,
		Metadata:          value.Metadata,
		CommitTimestampMs: value.CommitTimestamp,
		ExpireTimestampMs: value.ExpireTimestamp,
		RecordOffset:      recordOffset,
	}
}

// offsets indexes offsets by group, topic and partition. Empty levels are
// removed so a group without offsets is absent.
type offsets map[string]map[string]map[int32]*OffsetAndMetadata

func (o offsets) get(groupID, topic string, partition int32) *OffsetAndMetadata {
	return o[groupID][topic][partition]
}

func (o offsets) put(groupID, topic string, partition int32, offset *OffsetAndMetadata) {
	byTopic, ok := o[groupID]
	if !ok {
		byTopic = make(map[string]map[int32]*OffsetAndMetadata)
		o[groupID] = byTopic
	}
	byPartition, ok := byTopic[topic]
	if !ok {
		byPartition = make(map[int32]*OffsetAndMetadata)
		byTopic[topic] = byPartition
	}
	byPartition[partition] = offset
}

func (o offsets) remove(groupID, topic string, partition int32) *OffsetAndMetadata {
	byTopic, ok := o[groupID]
	if !ok {
		return nil
	}
	byPartition, ok := byTopic[topic]
	if !ok {
		return nil
	}
	removed := byPartition[partition]
	delete(byPartition, partition)
	if len(byPartition) == 0 {
		delete(byTopic, topic)
	}
	if len(byTopic) == 0 {
		delete(o, groupID)
	}
	return removed
}

// each visits the offsets of a group ordered by topic and partition.
func (o offsets) each(groupID string, fn func(topic string, partition int32, offset *OffsetAndMetadata)) {
	byTopic := o[groupID]
	for _, topic := range sortedKeys(byTopic) {
		byPartition := byTopic[topic]
		for _, p := range sortedPartitions(byPartition) {
			fn(topic, p, byPartition[p])
		}
	}
}

func sortedPartitions(byPartition map[int32]*OffsetAndMetadata) []int32 {
	partitions := make([]int32, 0, len(byPartition))
	for p := range byPartition {
		partitions = append(partitions, p)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
	return partitions
}

func sortedProducerIDs(producers map[int64]bool) []int64 {
	ids := make([]int64, 0, len(producers))
	for id := range producers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// groupProvider is the part of the group manager offsets depend on.
type groupProvider interface {
	Group(groupID string) (Group, error)
	GetOrMaybeCreateClassicGroup(groupID string, createIfNotExists bool) (Group, error)
}

// OffsetMetadataManager owns the committed and pending transactional offsets
// of one shard. Like the group manager it only mutates state in Replay.
type OffsetMetadataManager struct {
	config  *Config
	clock   timer.Clock
	logger  log.Logger
	metrics MetricsSink
	groups  groupProvider

	committed offsets
	// pending holds the offsets of open transactions by producer id.
	pending map[int64]offsets
	// openTransactions lists the producers with pending offsets per group.
	openTransactions map[string]map[int64]bool
}

func NewOffsetMetadataManager(config *Config, clock timer.Clock, logger log.Logger, metrics MetricsSink, groups groupProvider) *OffsetMetadataManager {
	if metrics == nil {
		metrics = noopMetricsSink{}
	}
	return &OffsetMetadataManager{
		config:           config,
		clock:            clock,
		logger:           logger,
		metrics:          metrics,
		groups:           groups,
		committed:        make(offsets),
		pending:          make(map[int64]offsets),
		openTransactions: make(map[string]map[int64]bool),
	}
}

func (m *OffsetMetadataManager) nowMs() int64 {
	return m.clock.Now().UnixMilli()
}

// validateOffsetCommit finds the group the offsets are committed to. Standalone
// consumers commit with a negative generation to groups that may not exist
// yet, those groups are created when the commit is replayed.
func (m *OffsetMetadataManager) validateOffsetCommit(ctx *RequestContext, req *OffsetCommitRequest, isTransactional bool) error {
	group, err := m.groups.Group(req.GroupID)
	if err != nil {
		if req.GenerationIDOrMemberEpoch >= 0 {
			if ctx.APIVersion >= 9 && !isTransactional {
				return errors.Wrapf(kerr.GroupIDNotFound, "group %s not found", req.GroupID)
			}
			return errors.Wrapf(kerr.IllegalGeneration, "group %s not found for generation %d", req.GroupID, req.GenerationIDOrMemberEpoch)
		}
		group = NewClassicGroup(req.GroupID)
	}
	return group.ValidateOffsetCommit(req.MemberID, req.InstanceID, req.GenerationIDOrMemberEpoch, isTransactional)
}

func (m *OffsetMetadataManager) isMetadataInvalid(metadata string) bool {
	return len(metadata) > m.config.OffsetMetadataMaxSize
}

func (m *OffsetMetadataManager) CommitOffset(ctx *RequestContext, req *OffsetCommitRequest) (model.Result[*OffsetCommitResponse], error) {
	var zero model.Result[*OffsetCommitResponse]
	if err := m.validateOffsetCommit(ctx, req, false); err != nil {
		return zero, err
	}
	nowMs := m.nowMs()
	expireTimestampMs := NoExpireTimestamp
	if req.RetentionTimeMs != -1 {
		expireTimestampMs = nowMs + req.RetentionTimeMs
	}
	records, response := m.offsetCommitRecords(req, nowMs, expireTimestampMs)
	m.metrics.IncOffsetCommits(len(records))
	return model.NewResult(records, response), nil
}

// CommitTransactionalOffset computes the records of a TxnOffsetCommit. They
// are appended under the producer id and stay invisible until the
// transaction commits.
func (m *OffsetMetadataManager) CommitTransactionalOffset(ctx *RequestContext, req *TxnOffsetCommitRequest) (model.Result[*OffsetCommitResponse], error) {
	var zero model.Result[*OffsetCommitResponse]
	if err := m.validateOffsetCommit(ctx, &req.OffsetCommitRequest, true); err != nil {
		return zero, err
	}
	records, response := m.offsetCommitRecords(&req.OffsetCommitRequest, m.nowMs(), NoExpireTimestamp)
	m.logger.GroupID(req.GroupID).ProducerID(req.ProducerID).Debugf("transactional offset commit of %s with %d records",
		req.TransactionalID, len(records))
	return model.NewResult(records, response), nil
}

func (m *OffsetMetadataManager) offsetCommitRecords(req *OffsetCommitRequest, nowMs, expireTimestampMs int64) ([]model.Record, *OffsetCommitResponse) {
	var records []model.Record
	response := &OffsetCommitResponse{Topics: make([]TopicResult, 0, len(req.Topics))}
	for _, topic := range req.Topics {
		result := TopicResult{Name: topic.Name, Partitions: make([]PartitionResult, 0, len(topic.Partitions))}
		for _, p := range topic.Partitions {
			if m.isMetadataInvalid(p.Metadata) {
				result.Partitions = append(result.Partitions, PartitionResult{Partition: p.Partition, ErrorCode: kerr.OffsetMetadataTooLarge.Code})
				continue
			}
			records = append(records, NewOffsetCommitRecord(req.GroupID, topic.Name, p.Partition, &OffsetAndMetadata{
				CommittedOffset:   p.CommittedOffset,
				LeaderEpoch:       p.LeaderEpoch,
				Metadata:          p.Metadata,
				CommitTimestampMs: nowMs,
				ExpireTimestampMs: expireTimestampMs,
			}))
			result.Partitions = append(result.Partitions, PartitionResult{Partition: p.Partition})
		}
		response.Topics = append(response.Topics, result)
	}
	return records, response
}

func (m *OffsetMetadataManager) hasPendingTransactionalOffsets(groupID, topic string, partition int32) bool {
	for producerID := range m.openTransactions[groupID] {
		if m.pending[producerID].get(groupID, topic, partition) != nil {
			return true
		}
	}
	return false
}

// HasOpenTransactions reports whether a producer still has pending offsets
// for the group.
func (m *OffsetMetadataManager) HasOpenTransactions(groupID string) bool {
	return len(m.openTransactions[groupID]) > 0
}

// validateOffsetFetch returns false when the group is unknown and the fetch
// comes from an admin client, the fetch then sees no offset at all.
func (m *OffsetMetadataManager) validateOffsetFetch(req *OffsetFetchRequest) (bool, error) {
	group, err := m.groups.Group(req.GroupID)
	if err != nil {
		if req.MemberID != "" || req.MemberEpoch >= 0 {
			return false, err
		}
		return false, nil
	}
	return true, group.ValidateOffsetFetch(req.MemberID, req.MemberEpoch)
}

func (m *OffsetMetadataManager) fetchPartition(groupID, topic string, partition int32, requireStable bool) OffsetFetchPartition {
	if requireStable && m.hasPendingTransactionalOffsets(groupID, topic, partition) {
		return OffsetFetchPartition{
			Partition:       partition,
			CommittedOffset: -1,
			LeaderEpoch:     UnknownLeaderEpoch,
			ErrorCode:       kerr.UnstableOffsetCommit.Code,
		}
	}
	offset := m.committed.get(groupID, topic, partition)
	if offset == nil {
		return OffsetFetchPartition{Partition: partition, CommittedOffset: -1, LeaderEpoch: UnknownLeaderEpoch}
	}
	return OffsetFetchPartition{
		Partition:       partition,
		CommittedOffset: offset.CommittedOffset,
		LeaderEpoch:     offset.LeaderEpoch,
		Metadata:        offset.Metadata,
	}
}

// FetchOffsets reads the committed offsets of the requested partitions, a
// nil topic list reads all of them.
func (m *OffsetMetadataManager) FetchOffsets(req *OffsetFetchRequest) *OffsetFetchResponse {
	if req.Topics == nil {
		return m.FetchAllOffsets(req)
	}
	response := &OffsetFetchResponse{GroupID: req.GroupID, Topics: make([]OffsetFetchTopic, 0, len(req.Topics))}
	exists, err := m.validateOffsetFetch(req)
	if err != nil {
		response.ErrorCode = ErrorCode(err)
		return response
	}
	for _, topic := range req.Topics {
		result := OffsetFetchTopic{Name: topic.Name, Partitions: make([]OffsetFetchPartition, 0, len(topic.Partitions))}
		for _, p := range topic.Partitions {
			if !exists {
				result.Partitions = append(result.Partitions, OffsetFetchPartition{Partition: p, CommittedOffset: -1, LeaderEpoch: UnknownLeaderEpoch})
				continue
			}
			result.Partitions = append(result.Partitions, m.fetchPartition(req.GroupID, topic.Name, p, req.RequireStable))
		}
		response.Topics = append(response.Topics, result)
	}
	return response
}

func (m *OffsetMetadataManager) FetchAllOffsets(req *OffsetFetchRequest) *OffsetFetchResponse {
	response := &OffsetFetchResponse{GroupID: req.GroupID, Topics: []OffsetFetchTopic{}}
	exists, err := m.validateOffsetFetch(req)
	if err != nil {
		response.ErrorCode = ErrorCode(err)
		return response
	}
	if !exists {
		return response
	}
	m.committed.each(req.GroupID, func(topic string, partition int32, _ *OffsetAndMetadata) {
		if n := len(response.Topics); n == 0 || response.Topics[n-1].Name != topic {
			response.Topics = append(response.Topics, OffsetFetchTopic{Name: topic})
		}
		last := &response.Topics[len(response.Topics)-1]
		last.Partitions = append(last.Partitions, m.fetchPartition(req.GroupID, topic, partition, req.RequireStable))
	})
	return response
}

// DeleteOffsets tombstones the committed offsets of the requested
// partitions. Topics the group is subscribed to are refused.
func (m *OffsetMetadataManager) DeleteOffsets(req *OffsetDeleteRequest) (model.Result[*OffsetDeleteResponse], error) {
	var zero model.Result[*OffsetDeleteResponse]
	group, err := m.groups.Group(req.GroupID)
	if err != nil {
		return zero, err
	}
	if err := group.ValidateOffsetDelete(); err != nil {
		return zero, err
	}
	var records []model.Record
	response := &OffsetDeleteResponse{Topics: make([]TopicResult, 0, len(req.Topics))}
	for _, topic := range req.Topics {
		result := TopicResult{Name: topic.Name, Partitions: make([]PartitionResult, 0, len(topic.Partitions))}
		subscribed := group.IsSubscribedToTopic(topic.Name)
		for _, p := range topic.Partitions {
			if subscribed {
				result.Partitions = append(result.Partitions, PartitionResult{Partition: p, ErrorCode: kerr.GroupSubscribedToTopic.Code})
				continue
			}
			if m.committed.get(req.GroupID, topic.Name, p) != nil {
				records = append(records, NewOffsetCommitTombstoneRecord(req.GroupID, topic.Name, p))
			}
			result.Partitions = append(result.Partitions, PartitionResult{Partition: p})
		}
		response.Topics = append(response.Topics, result)
	}
	return model.NewResult(records, response), nil
}

// DeleteAllOffsets appends the tombstones of every committed and pending
// offset of the group and returns how many were appended.
func (m *OffsetMetadataManager) DeleteAllOffsets(groupID string, records []model.Record) ([]model.Record, int) {
	deleted := make(map[model.TopicPartition]bool)
	m.committed.each(groupID, func(topic string, partition int32, _ *OffsetAndMetadata) {
		records = append(records, NewOffsetCommitTombstoneRecord(groupID, topic, partition))
		deleted[model.TopicPartition{Topic: topic, Partition: partition}] = true
	})
	for _, producerID := range sortedProducerIDs(m.openTransactions[groupID]) {
		m.pending[producerID].each(groupID, func(topic string, partition int32, _ *OffsetAndMetadata) {
			tp := model.TopicPartition{Topic: topic, Partition: partition}
			if deleted[tp] {
				return
			}
			records = append(records, NewOffsetCommitTombstoneRecord(groupID, topic, partition))
			deleted[tp] = true
		})
	}
	return records, len(deleted)
}

// CleanupExpiredOffsets appends the tombstones of the expired offsets of the
// group. It returns true when the group is left without any offset.
func (m *OffsetMetadataManager) CleanupExpiredOffsets(groupID string, records []model.Record) ([]model.Record, bool) {
	if _, ok := m.committed[groupID]; !ok {
		return records, !m.HasOpenTransactions(groupID)
	}
	group, err := m.groups.Group(groupID)
	if err != nil {
		m.logger.GroupID(groupID).Warnf("offsets of an unknown group are kept: %v", err)
		return records, false
	}
	condition, ok := group.OffsetExpirationCondition()
	if !ok {
		return records, false
	}
	nowMs := m.nowMs()
	allExpired := true
	expired := 0
	m.committed.each(groupID, func(topic string, partition int32, offset *OffsetAndMetadata) {
		if group.IsSubscribedToTopic(topic) ||
			m.hasPendingTransactionalOffsets(groupID, topic, partition) ||
			!condition.IsOffsetExpired(offset, nowMs, m.config.OffsetsRetentionMs) {
			allExpired = false
			return
		}
		records = append(records, NewOffsetCommitTombstoneRecord(groupID, topic, partition))
		expired++
	})
	if expired > 0 {
		m.logger.GroupID(groupID).Infof("%d expired offsets removed", expired)
		m.metrics.IncOffsetExpired(expired)
	}
	return records, allExpired && !m.HasOpenTransactions(groupID)
}

// OnPartitionsDeleted tombstones the offsets every group committed for the
// deleted partitions.
func (m *OffsetMetadataManager) OnPartitionsDeleted(partitions []model.TopicPartition) []model.Record {
	var records []model.Record
	for _, groupID := range sortedKeys(m.committed) {
		for _, tp := range partitions {
			if m.committed.get(groupID, tp.Topic, tp.Partition) != nil {
				records = append(records, NewOffsetCommitTombstoneRecord(groupID, tp.Topic, tp.Partition))
			}
		}
	}
	return records
}

// Replay applies an offset commit record. Records written by a producer are
// kept aside until its end transaction marker is replayed.
func (m *OffsetMetadataManager) Replay(recordOffset, producerID int64, key *model.OffsetCommitKey, value *model.OffsetCommitValue) error {
	if key == nil {
		return errors.Wrap(ErrIllegalState, "offset commit record without key")
	}
	groupID, topic, partition := key.Group, key.Topic, key.Partition
	if value == nil {
		m.committed.remove(groupID, topic, partition)
		for producer := range m.openTransactions[groupID] {
			if pending, ok := m.pending[producer]; ok {
				pending.remove(groupID, topic, partition)
			}
		}
		return nil
	}
	if _, err := m.groups.GetOrMaybeCreateClassicGroup(groupID, true); err != nil {
		return err
	}
	offset := offsetFromRecord(recordOffset, value)
	if producerID == model.NoProducerID {
		m.committed.put(groupID, topic, partition, offset)
		return nil
	}
	pending, ok := m.pending[producerID]
	if !ok {
		pending = make(offsets)
		m.pending[producerID] = pending
	}
	pending.put(groupID, topic, partition, offset)
	producers, ok := m.openTransactions[groupID]
	if !ok {
		producers = make(map[int64]bool)
		m.openTransactions[groupID] = producers
	}
	producers[producerID] = true
	return nil
}

// ReplayEndTransactionMarker completes the transaction of a producer. A
// commit keeps the most recent of the pending and committed offsets.
func (m *OffsetMetadataManager) ReplayEndTransactionMarker(producerID int64, result model.TransactionResult) error {
	if result != model.TransactionResultCommit && result != model.TransactionResultAbort {
		return errors.Wrapf(ErrIllegalState, "unknown transaction result %d", result)
	}
	pending, ok := m.pending[producerID]
	if !ok {
		m.logger.ProducerID(producerID).Debugf("%s marker without pending offsets", result)
		return nil
	}
	delete(m.pending, producerID)
	for groupID, producers := range m.openTransactions {
		delete(producers, producerID)
		if len(producers) == 0 {
			delete(m.openTransactions, groupID)
		}
	}
	if result == model.TransactionResultAbort {
		return nil
	}
	for groupID := range pending {
		pending.each(groupID, func(topic string, partition int32, offset *OffsetAndMetadata) {
			existing := m.committed.get(groupID, topic, partition)
			if existing == nil || offset.RecordOffset > existing.RecordOffset {
				m.committed.put(groupID, topic, partition, offset)
			}
		})
	}
	return nil
}

// Offset returns the committed offset of a partition, pending transactional
// offsets are not visible.
func (m *OffsetMetadataManager) Offset(groupID, topic string, partition int32) (*OffsetAndMetadata, bool) {
	offset := m.committed.get(groupID, topic, partition)
	return offset, offset != nil
}

// PendingOffset returns the offset a producer committed in its open
// transaction.
func (m *OffsetMetadataManager) PendingOffset(producerID int64, groupID, topic string, partition int32) (*OffsetAndMetadata, bool) {
	offset := m.pending[producerID].get(groupID, topic, partition)
	return offset, offset != nil
}

// OffsetCount returns the number of committed offsets of a group.
func (m *OffsetMetadataManager) OffsetCount(groupID string) int {
	count := 0
	for _, byPartition := range m.committed[groupID] {
		count += len(byPartition)
	}
	return count
}
