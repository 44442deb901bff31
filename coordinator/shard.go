package coordinator

import (
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/log"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/protocol-laboratory/group-coordinator-go/timer"
	"time"
)

// GroupManager is the group state of a shard.
type GroupManager interface {
	ConsumerGroupHeartbeat(ctx *RequestContext, req *ConsumerGroupHeartbeatRequest) (model.Result[*ConsumerGroupHeartbeatResponse], error)
	ShareGroupHeartbeat(ctx *RequestContext, req *ShareGroupHeartbeatRequest) (model.Result[*ShareGroupHeartbeatResponse], error)
	StreamsGroupHeartbeat(ctx *RequestContext, req *StreamsGroupHeartbeatRequest) (model.Result[*StreamsGroupHeartbeatResponse], error)

	Replay(key model.RecordKey, value model.RecordValue) error

	Group(groupID string) (Group, error)
	GetOrMaybeCreateClassicGroup(groupID string, createIfNotExists bool) (Group, error)
	GroupIDs() []string
	DescribeGroup(groupID string) (DescribedGroup, error)

	ValidateDeleteGroup(groupID string) error
	CreateGroupTombstoneRecords(groupID string, records []model.Record) ([]model.Record, error)
	MaybeDeleteGroup(groupID string, records []model.Record) ([]model.Record, bool)

	ShareGroup(groupID string) (*ShareGroup, error)
	ShareGroupBuildPartitionDeleteRequest(group *ShareGroup) (*DeleteShareGroupStateParameters, bool)

	OnNewMetadataImage(image *MetadataImage)
	OnLoaded()
	OnUnloaded()
	UpdateGroupSizeCounter()
}

// OffsetManager is the offset state of a shard.
type OffsetManager interface {
	CommitOffset(ctx *RequestContext, req *OffsetCommitRequest) (model.Result[*OffsetCommitResponse], error)
	CommitTransactionalOffset(ctx *RequestContext, req *TxnOffsetCommitRequest) (model.Result[*OffsetCommitResponse], error)
	FetchOffsets(req *OffsetFetchRequest) *OffsetFetchResponse
	FetchAllOffsets(req *OffsetFetchRequest) *OffsetFetchResponse
	DeleteOffsets(req *OffsetDeleteRequest) (model.Result[*OffsetDeleteResponse], error)

	DeleteAllOffsets(groupID string, records []model.Record) ([]model.Record, int)
	CleanupExpiredOffsets(groupID string, records []model.Record) ([]model.Record, bool)
	OnPartitionsDeleted(partitions []model.TopicPartition) []model.Record

	Replay(recordOffset, producerID int64, key *model.OffsetCommitKey, value *model.OffsetCommitValue) error
	ReplayEndTransactionMarker(producerID int64, result model.TransactionResult) error
}

var (
	_ GroupManager  = (*GroupMetadataManager)(nil)
	_ OffsetManager = (*OffsetMetadataManager)(nil)
)

type ShardConfig struct {
	Partition int32
	Config    *Config
	Timer     *timer.Timer
	Clock     timer.Clock
	// Groups and Offsets default to the in memory managers.
	Groups  GroupManager
	Offsets OffsetManager
	Metrics MetricsSink
	Logger  log.Logger
}

// Shard is the group coordinator of one partition of the offsets topic. It
// is not safe for concurrent use, the runtime serializes every call.
type Shard struct {
	partition int32
	config    *Config
	timer     *timer.Timer
	clock     timer.Clock
	groups    GroupManager
	offsets   OffsetManager
	metrics   MetricsSink
	logger    log.Logger
}

func NewShard(cfg ShardConfig) (*Shard, error) {
	if cfg.Config == nil {
		cfg.Config = DefaultConfig()
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid coordinator config")
	}
	if cfg.Clock == nil {
		cfg.Clock = timer.SystemClock{}
	}
	if cfg.Timer == nil {
		cfg.Timer = timer.NewTimer(cfg.Clock)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetricsSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewDiscardLogger()
	}
	logger := cfg.Logger.Partition(cfg.Partition)
	if cfg.Groups == nil {
		groups, err := NewGroupMetadataManager(cfg.Config, cfg.Timer, cfg.Clock, logger, cfg.Metrics)
		if err != nil {
			return nil, err
		}
		cfg.Groups = groups
	}
	if cfg.Offsets == nil {
		cfg.Offsets = NewOffsetMetadataManager(cfg.Config, cfg.Clock, logger, cfg.Metrics, cfg.Groups)
	}
	return &Shard{
		partition: cfg.Partition,
		config:    cfg.Config,
		timer:     cfg.Timer,
		clock:     cfg.Clock,
		groups:    cfg.Groups,
		offsets:   cfg.Offsets,
		metrics:   cfg.Metrics,
		logger:    logger,
	}, nil
}

func (s *Shard) Partition() int32 {
	return s.partition
}

func (s *Shard) Timer() *timer.Timer {
	return s.timer
}

func (s *Shard) GroupIDs() []string {
	return s.groups.GroupIDs()
}

func (s *Shard) ConsumerGroupHeartbeat(ctx *RequestContext, req *ConsumerGroupHeartbeatRequest) (model.Result[*ConsumerGroupHeartbeatResponse], error) {
	return s.groups.ConsumerGroupHeartbeat(ctx, req)
}

func (s *Shard) ShareGroupHeartbeat(ctx *RequestContext, req *ShareGroupHeartbeatRequest) (model.Result[*ShareGroupHeartbeatResponse], error) {
	return s.groups.ShareGroupHeartbeat(ctx, req)
}

func (s *Shard) StreamsGroupHeartbeat(ctx *RequestContext, req *StreamsGroupHeartbeatRequest) (model.Result[*StreamsGroupHeartbeatResponse], error) {
	return s.groups.StreamsGroupHeartbeat(ctx, req)
}

func (s *Shard) CommitOffset(ctx *RequestContext, req *OffsetCommitRequest) (model.Result[*OffsetCommitResponse], error) {
	return s.offsets.CommitOffset(ctx, req)
}

func (s *Shard) CommitTransactionalOffset(ctx *RequestContext, req *TxnOffsetCommitRequest) (model.Result[*OffsetCommitResponse], error) {
	return s.offsets.CommitTransactionalOffset(ctx, req)
}

func (s *Shard) FetchOffsets(req *OffsetFetchRequest) *OffsetFetchResponse {
	return s.offsets.FetchOffsets(req)
}

func (s *Shard) FetchAllOffsets(req *OffsetFetchRequest) *OffsetFetchResponse {
	return s.offsets.FetchAllOffsets(req)
}

func (s *Shard) DeleteOffsets(req *OffsetDeleteRequest) (model.Result[*OffsetDeleteResponse], error) {
	return s.offsets.DeleteOffsets(req)
}

// DeleteGroups deletes every group independently. A group failing validation
// gets an error code and contributes no record, results keep the input order.
func (s *Shard) DeleteGroups(ctx *RequestContext, groupIDs []string) model.Result[[]DeleteGroupsResult] {
	results := make([]DeleteGroupsResult, 0, len(groupIDs))
	var records []model.Record
	deletedGroups, deletedOffsets := 0, 0
	for _, groupID := range groupIDs {
		if err := s.groups.ValidateDeleteGroup(groupID); err != nil {
			s.logger.GroupID(groupID).ClientID(ctx.ClientID).Debugf("group not deleted: %v", err)
			results = append(results, DeleteGroupsResult{GroupID: groupID, ErrorCode: ErrorCode(err)})
			continue
		}
		groupRecords, n := s.offsets.DeleteAllOffsets(groupID, nil)
		groupRecords, err := s.groups.CreateGroupTombstoneRecords(groupID, groupRecords)
		if err != nil {
			results = append(results, DeleteGroupsResult{GroupID: groupID, ErrorCode: ErrorCode(err)})
			continue
		}
		records = append(records, groupRecords...)
		results = append(results, DeleteGroupsResult{GroupID: groupID})
		deletedGroups++
		deletedOffsets += n
	}
	if deletedGroups > 0 {
		s.logger.ClientID(ctx.ClientID).Infof("deleting %d groups with %d offsets", deletedGroups, deletedOffsets)
		s.metrics.IncGroupsDeleted(deletedGroups)
	}
	return model.NewResult(records, results)
}

// DescribeGroups reports an unknown group as dead with its error code.
func (s *Shard) DescribeGroups(groupIDs []string) []DescribedGroup {
	described := make([]DescribedGroup, 0, len(groupIDs))
	for _, groupID := range groupIDs {
		group, err := s.groups.DescribeGroup(groupID)
		if err != nil {
			described = append(described, DescribedGroup{GroupID: groupID, State: GroupStateDead, ErrorCode: ErrorCode(err)})
			continue
		}
		described = append(described, group)
	}
	return described
}

// SharePartitionDeleteRequests lists the persisted share partition state to
// delete with the given share groups.
func (s *Shard) SharePartitionDeleteRequests(groupIDs []string) map[string]SharePartitionDeleteResult {
	results := make(map[string]SharePartitionDeleteResult, len(groupIDs))
	if len(groupIDs) == 0 {
		return results
	}
	for _, groupID := range groupIDs {
		group, err := s.groups.ShareGroup(groupID)
		if err != nil {
			results[groupID] = SharePartitionDeleteResult{Parameters: EmptyDeleteShareGroupStateParameters(groupID), Err: err}
			continue
		}
		if err := group.ValidateDeleteGroup(); err != nil {
			results[groupID] = SharePartitionDeleteResult{Parameters: EmptyDeleteShareGroupStateParameters(groupID), Err: err}
			continue
		}
		if params, ok := s.groups.ShareGroupBuildPartitionDeleteRequest(group); ok {
			results[groupID] = SharePartitionDeleteResult{Parameters: params}
		}
	}
	return results
}

// Replay applies a record read from or appended to the log. Offset commits
// go to the offset manager, everything else to the group manager.
func (s *Shard) Replay(offset, producerID int64, producerEpoch int16, record model.Record) error {
	if isNil(record.Key) {
		return errors.Wrapf(ErrIllegalState, "record at offset %d without key", offset)
	}
	switch key := record.Key.(type) {
	case *model.LegacyOffsetCommitKey:
		value, err := castValue[*model.LegacyOffsetCommitValue](key, record.Value)
		if err != nil {
			return err
		}
		return s.offsets.Replay(offset, producerID, key.ToOffsetCommit(), value.ToOffsetCommit())
	case *model.OffsetCommitKey:
		value, err := castValue[*model.OffsetCommitValue](key, record.Value)
		if err != nil {
			return err
		}
		return s.offsets.Replay(offset, producerID, key, value)
	default:
		return s.groups.Replay(record.Key, record.Value)
	}
}

func (s *Shard) ReplayEndTransactionMarker(producerID int64, producerEpoch int16, result model.TransactionResult) error {
	s.logger.ProducerID(producerID).Debugf("replaying %s marker of epoch %d", result, producerEpoch)
	return s.offsets.ReplayEndTransactionMarker(producerID, result)
}

func (s *Shard) OnPartitionsDeleted(partitions []model.TopicPartition) model.Result[any] {
	records := s.offsets.OnPartitionsDeleted(partitions)
	if len(records) > 0 {
		s.logger.Infof("removing %d offsets of %d deleted partitions", len(records), len(partitions))
	}
	return model.NewRecordsResult(records)
}

func (s *Shard) OnNewMetadataImage(image *MetadataImage) {
	s.groups.OnNewMetadataImage(image)
}

// OnLoaded is called once the log is replayed. It arms the periodic
// expiration and gauge updates.
func (s *Shard) OnLoaded(image *MetadataImage) {
	s.groups.OnNewMetadataImage(image)
	s.groups.OnLoaded()
	s.scheduleGroupMetadataExpiration()
	s.scheduleGroupSizeCounter()
	s.logger.Infof("shard loaded with metadata image version %d", image.Version)
}

func (s *Shard) OnUnloaded() {
	s.timer.Cancel(GroupExpirationKey)
	s.timer.Cancel(GroupSizeCounterKey)
	s.groups.OnUnloaded()
	s.logger.Infof("shard unloaded")
}

// CleanupGroupMetadata removes expired offsets and the groups left empty by
// them. It reschedules itself whatever happens.
func (s *Shard) CleanupGroupMetadata() model.Result[any] {
	defer s.scheduleGroupMetadataExpiration()
	start := s.clock.Now()
	var records []model.Record
	deleted := 0
	for _, groupID := range s.groups.GroupIDs() {
		var allExpired, ok bool
		records, allExpired = s.offsets.CleanupExpiredOffsets(groupID, records)
		if !allExpired {
			continue
		}
		if records, ok = s.groups.MaybeDeleteGroup(groupID, records); ok {
			deleted++
		}
	}
	if deleted > 0 {
		s.metrics.IncGroupsDeleted(deleted)
	}
	s.logger.Infof("generated %d tombstones and %d group deletions in %s", len(records), deleted, s.clock.Now().Sub(start))
	return model.NewRecordsResult(records)
}

func (s *Shard) scheduleGroupMetadataExpiration() {
	interval := time.Duration(s.config.OffsetsRetentionCheckIntervalMs) * time.Millisecond
	s.timer.Schedule(GroupExpirationKey, interval, func() (model.Result[any], error) {
		return s.CleanupGroupMetadata(), nil
	})
}

func (s *Shard) scheduleGroupSizeCounter() {
	interval := time.Duration(s.config.GroupGaugesUpdateIntervalMs) * time.Millisecond
	s.timer.Schedule(GroupSizeCounterKey, interval, func() (model.Result[any], error) {
		defer s.scheduleGroupSizeCounter()
		s.groups.UpdateGroupSizeCounter()
		return model.NewRecordsResult(nil), nil
	})
}
