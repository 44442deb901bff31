package coordinator

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/assignor"
	"github.com/protocol-laboratory/group-coordinator-go/log"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/protocol-laboratory/group-coordinator-go/timer"
	"github.com/protocol-laboratory/group-coordinator-go/utils"
	"github.com/twmb/franz-go/pkg/kerr"
	"time"
)

// GroupMetadataManager owns the groups of one shard. Mutations only happen
// through Replay, the request handlers compute records against the current
// state and leave the state untouched.
type GroupMetadataManager struct {
	config  *Config
	timer   *timer.Timer
	clock   timer.Clock
	logger  log.Logger
	metrics MetricsSink
	image   *MetadataImage

	groups map[string]Group

	consumerAssignors       map[string]assignor.PartitionAssignor
	defaultConsumerAssignor assignor.PartitionAssignor
	shareAssignor           assignor.PartitionAssignor
	streamsAssignor         assignor.TaskAssignor

	// warnLimiter throttles warnings repeated for every heartbeat of a group.
	warnLimiter *utils.KeyBasedRateLimiter

	// deferTimers is set while an operation computes records, its timer
	// updates wait in pendingTimers until the records are appended.
	deferTimers   bool
	pendingTimers []func()
}

func NewGroupMetadataManager(config *Config, t *timer.Timer, clock timer.Clock, logger log.Logger, metrics MetricsSink) (*GroupMetadataManager, error) {
	assignors, err := assignor.Lookup(config.ConsumerGroupAssignors...)
	if err != nil {
		return nil, err
	}
	if len(assignors) == 0 {
		return nil, errors.New("no consumer group assignor configured")
	}
	if metrics == nil {
		metrics = noopMetricsSink{}
	}
	m := &GroupMetadataManager{
		config:                  config,
		timer:                   t,
		clock:                   clock,
		logger:                  logger,
		metrics:                 metrics,
		image:                   EmptyMetadataImage(),
		groups:                  make(map[string]Group),
		consumerAssignors:       make(map[string]assignor.PartitionAssignor, len(assignors)),
		defaultConsumerAssignor: assignors[0],
		shareAssignor:           assignor.NewSimpleAssignor(),
		streamsAssignor:         assignor.NewStickyTaskAssignor(),
		warnLimiter:             utils.NewKeyBasedRateLimiter(60, 1),
	}
	for _, a := range assignors {
		m.consumerAssignors[a.Name()] = a
	}
	return m, nil
}

// Group returns GROUP_ID_NOT_FOUND for unknown groups.
func (m *GroupMetadataManager) Group(groupID string) (Group, error) {
	group, ok := m.groups[groupID]
	if !ok {
		return nil, errors.Wrapf(kerr.GroupIDNotFound, "group %s not found", groupID)
	}
	return group, nil
}

func (m *GroupMetadataManager) GroupIDs() []string {
	return sortedKeys(m.groups)
}

func (m *GroupMetadataManager) Image() *MetadataImage {
	return m.image
}

func (m *GroupMetadataManager) DescribeGroup(groupID string) (DescribedGroup, error) {
	group, err := m.Group(groupID)
	if err != nil {
		return DescribedGroup{}, err
	}
	return group.Describe(), nil
}

// GetOrMaybeCreateClassicGroup returns the group offsets are committed to,
// creating an empty classic group when none exists.
func (m *GroupMetadataManager) GetOrMaybeCreateClassicGroup(groupID string, createIfNotExists bool) (Group, error) {
	group, ok := m.groups[groupID]
	if ok {
		return group, nil
	}
	if !createIfNotExists {
		return nil, errors.Wrapf(kerr.GroupIDNotFound, "group %s not found", groupID)
	}
	classic := NewClassicGroup(groupID)
	m.groups[groupID] = classic
	return classic, nil
}

func isSimpleClassicGroup(group Group) bool {
	classic, ok := group.(*ClassicGroup)
	return ok && classic.State() == GroupStateEmpty && classic.ProtocolType() == ""
}

// lookupGroup finds the group a request targets. A missing group, or one
// only holding offsets of standalone consumers, yields a new group that is
// stored once its records are replayed.
func lookupGroup[G Group](m *GroupMetadataManager, groupID string, groupType GroupType, createIfNotExists bool, newGroup func(string) G) (G, error) {
	var zero G
	group, ok := m.groups[groupID]
	if !ok || isSimpleClassicGroup(group) {
		if !createIfNotExists {
			return zero, errors.Wrapf(kerr.GroupIDNotFound, "group %s not found", groupID)
		}
		return newGroup(groupID), nil
	}
	g, ok := group.(G)
	if !ok {
		return zero, errors.Wrapf(kerr.GroupIDNotFound, "group %s is a %s group, not a %s group", groupID, group.Type(), groupType)
	}
	return g, nil
}

func (m *GroupMetadataManager) consumerGroup(groupID string, createIfNotExists bool) (*ConsumerGroup, error) {
	return lookupGroup(m, groupID, ConsumerGroupType, createIfNotExists, NewConsumerGroup)
}

func (m *GroupMetadataManager) streamsGroup(groupID string, createIfNotExists bool) (*StreamsGroup, error) {
	return lookupGroup(m, groupID, StreamsGroupType, createIfNotExists, NewStreamsGroup)
}

// ShareGroup returns GROUP_ID_NOT_FOUND when the group is missing or is not
// a share group.
func (m *GroupMetadataManager) ShareGroup(groupID string) (*ShareGroup, error) {
	return lookupGroup(m, groupID, ShareGroupType, false, NewShareGroup)
}

// ShareGroupBuildPartitionDeleteRequest lists the share partitions whose
// persisted state must be deleted with the group.
func (m *GroupMetadataManager) ShareGroupBuildPartitionDeleteRequest(group *ShareGroup) (*DeleteShareGroupStateParameters, bool) {
	initialized := group.InitializedTopics()
	if initialized.IsEmpty() {
		return nil, false
	}
	return &DeleteShareGroupStateParameters{
		GroupID: group.GroupID(),
		Topics:  initialized.TopicPartitions(),
	}, true
}

func (m *GroupMetadataManager) ValidateDeleteGroup(groupID string) error {
	group, err := m.Group(groupID)
	if err != nil {
		return err
	}
	return group.ValidateDeleteGroup()
}

func (m *GroupMetadataManager) CreateGroupTombstoneRecords(groupID string, records []model.Record) ([]model.Record, error) {
	group, err := m.Group(groupID)
	if err != nil {
		return records, err
	}
	return group.CreateGroupTombstoneRecords(records), nil
}

// MaybeDeleteGroup appends the tombstones of the group when it is empty.
func (m *GroupMetadataManager) MaybeDeleteGroup(groupID string, records []model.Record) ([]model.Record, bool) {
	group, ok := m.groups[groupID]
	if !ok || !group.IsEmpty() {
		return records, false
	}
	return group.CreateGroupTombstoneRecords(records), true
}

func (m *GroupMetadataManager) OnNewMetadataImage(image *MetadataImage) {
	m.image = image
}

// OnLoaded arms the session timeouts of the members found in the log.
func (m *GroupMetadataManager) OnLoaded() {
	members := 0
	for _, groupID := range m.GroupIDs() {
		var group *modernGroup
		var groupType GroupType
		switch g := m.groups[groupID].(type) {
		case *ConsumerGroup:
			group, groupType = &g.modernGroup, ConsumerGroupType
		case *ShareGroup:
			group, groupType = &g.modernGroup, ShareGroupType
		case *StreamsGroup:
			group, groupType = &g.modernGroup, StreamsGroupType
		default:
			continue
		}
		for _, memberID := range group.MemberIDs() {
			member := group.members[memberID]
			m.scheduleSessionTimeout(groupType, groupID, memberID)
			if member.State == MemberStateUnrevokedPartitions {
				m.scheduleRebalanceTimeout(groupID, member)
			}
			members++
		}
	}
	m.logger.Infof("loaded %d groups with %d members", len(m.groups), members)
}

func (m *GroupMetadataManager) OnUnloaded() {
	for groupID, group := range m.groups {
		var members map[string]*Member
		switch g := group.(type) {
		case *ConsumerGroup:
			members = g.members
		case *ShareGroup:
			members = g.members
		case *StreamsGroup:
			members = g.members
		}
		for memberID := range members {
			m.cancelMemberTimeouts(groupID, memberID)
		}
	}
	m.logger.Infof("unloaded %d groups", len(m.groups))
	m.groups = make(map[string]Group)
}

func (m *GroupMetadataManager) UpdateGroupSizeCounter() {
	counts := make(map[GroupType]map[GroupState]int, len(groupTypes))
	for _, group := range m.groups {
		byState, ok := counts[group.Type()]
		if !ok {
			byState = make(map[GroupState]int)
			counts[group.Type()] = byState
		}
		byState[group.State()]++
	}
	for _, groupType := range groupTypes {
		for _, state := range groupStates {
			m.metrics.RecordGroupCount(groupType, state, counts[groupType][state])
		}
	}
}

func (m *GroupMetadataManager) sessionTimeout(groupType GroupType) time.Duration {
	switch groupType {
	case ShareGroupType:
		return time.Duration(m.config.ShareGroupSessionTimeoutMs) * time.Millisecond
	case StreamsGroupType:
		return time.Duration(m.config.StreamsGroupSessionTimeoutMs) * time.Millisecond
	}
	return time.Duration(m.config.ConsumerGroupSessionTimeoutMs) * time.Millisecond
}

// afterAppend runs fn once the records of the operation in progress are
// appended and replayed, outside of an operation it runs fn right away.
func (m *GroupMetadataManager) afterAppend(fn func()) {
	if !m.deferTimers {
		fn()
		return
	}
	m.pendingTimers = append(m.pendingTimers, fn)
}

// withDeferredTimers runs op and attaches its timer updates to the append
// future of its result. A failed operation or append drops them.
func withDeferredTimers[T any](m *GroupMetadataManager, op func() (model.Result[T], error)) (model.Result[T], error) {
	m.deferTimers, m.pendingTimers = true, nil
	result, err := op()
	pending := m.pendingTimers
	m.deferTimers, m.pendingTimers = false, nil
	if err != nil || len(pending) == 0 {
		return result, err
	}
	if result.AppendFuture == nil {
		result.AppendFuture = model.NewAppendFuture()
	}
	result.AppendFuture.OnComplete(func(err error) {
		if err != nil {
			return
		}
		for _, fn := range pending {
			fn()
		}
	})
	return result, nil
}

func (m *GroupMetadataManager) scheduleSessionTimeout(groupType GroupType, groupID, memberID string) {
	delay := m.sessionTimeout(groupType)
	m.afterAppend(func() {
		m.timer.Schedule(sessionTimeoutKey(groupID, memberID), delay, func() (model.Result[any], error) {
			return withDeferredTimers(m, func() (model.Result[any], error) {
				return m.fenceExpiredMember(groupID, memberID, "session timeout"), nil
			})
		})
	})
}

// scheduleRebalanceTimeout fences a member which does not revoke its
// partitions in time.
func (m *GroupMetadataManager) scheduleRebalanceTimeout(groupID string, member *Member) {
	if member.RebalanceTimeoutMs <= 0 {
		return
	}
	memberID, memberEpoch := member.MemberID, member.MemberEpoch
	delay := time.Duration(member.RebalanceTimeoutMs) * time.Millisecond
	m.afterAppend(func() {
		m.timer.Schedule(rebalanceTimeoutKey(groupID, memberID), delay, func() (model.Result[any], error) {
			var current *Member
			switch g := m.groups[groupID].(type) {
			case *ConsumerGroup:
				current, _ = g.Member(memberID)
			case *StreamsGroup:
				current, _ = g.Member(memberID)
			}
			if current == nil || current.State != MemberStateUnrevokedPartitions || current.MemberEpoch != memberEpoch {
				return model.NewRecordsResult(nil), nil
			}
			return withDeferredTimers(m, func() (model.Result[any], error) {
				return m.fenceExpiredMember(groupID, memberID, "rebalance timeout"), nil
			})
		})
	})
}

func (m *GroupMetadataManager) cancelRebalanceTimeout(groupID, memberID string) {
	m.afterAppend(func() {
		m.timer.Cancel(rebalanceTimeoutKey(groupID, memberID))
	})
}

func (m *GroupMetadataManager) cancelMemberTimeouts(groupID, memberID string) {
	m.afterAppend(func() {
		m.timer.Cancel(sessionTimeoutKey(groupID, memberID))
		m.timer.Cancel(rebalanceTimeoutKey(groupID, memberID))
	})
}

func (m *GroupMetadataManager) fenceExpiredMember(groupID, memberID, reason string) model.Result[any] {
	var records []model.Record
	switch group := m.groups[groupID].(type) {
	case *ConsumerGroup:
		if member, ok := group.Member(memberID); ok {
			records = m.consumerGroupFenceMember(group, member)
		}
	case *ShareGroup:
		if member, ok := group.Member(memberID); ok {
			records = m.shareGroupFenceMember(group, member)
		}
	case *StreamsGroup:
		if member, ok := group.Member(memberID); ok {
			records = m.streamsGroupFenceMember(group, member)
		}
	}
	if len(records) == 0 {
		m.logger.GroupID(groupID).MemberID(memberID).Debugf("%s of an unknown member ignored", reason)
	} else {
		m.logger.GroupID(groupID).MemberID(memberID).Infof("member fenced after %s", reason)
	}
	return model.NewRecordsResult(records)
}

// subscriptionMetadata returns the partition count of the subscribed topics
// present in the metadata image.
func (m *GroupMetadataManager) subscriptionMetadata(topics map[string]bool) map[string]int32 {
	metadata := make(map[string]int32, len(topics))
	for topic := range topics {
		if t, ok := m.image.Topic(topic); ok {
			metadata[topic] = t.NumPartitions
		}
	}
	return metadata
}

func (m *GroupMetadataManager) warn(groupID, format string, args ...interface{}) {
	if m.warnLimiter.Acquire(groupID) {
		m.logger.GroupID(groupID).Warnf(format, args...)
	}
}

func sameMetadata(a, b map[string]int32) bool {
	if len(a) != len(b) {
		return false
	}
	for topic, n := range a {
		if o, ok := b[topic]; !ok || o != n {
			return false
		}
	}
	return true
}

func newMemberID(clientID string) string {
	if clientID == "" {
		return uuid.NewString()
	}
	return clientID + "-" + uuid.NewString()
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
