package coordinator

import (
	"github.com/protocol-laboratory/group-coordinator-go/model"
)

type GroupType string

const (
	ClassicGroupType  GroupType = "classic"
	ConsumerGroupType GroupType = "consumer"
	ShareGroupType    GroupType = "share"
	StreamsGroupType  GroupType = "streams"
)

var groupTypes = []GroupType{ClassicGroupType, ConsumerGroupType, ShareGroupType, StreamsGroupType}

type GroupState string

const (
	GroupStateEmpty               GroupState = "Empty"
	GroupStatePreparingRebalance  GroupState = "PreparingRebalance"
	GroupStateCompletingRebalance GroupState = "CompletingRebalance"
	GroupStateAssigning           GroupState = "Assigning"
	GroupStateReconciling         GroupState = "Reconciling"
	GroupStateNotReady            GroupState = "NotReady"
	GroupStateStable              GroupState = "Stable"
	GroupStateDead                GroupState = "Dead"
)

var groupStates = []GroupState{
	GroupStateEmpty, GroupStatePreparingRebalance, GroupStateCompletingRebalance, GroupStateAssigning,
	GroupStateReconciling, GroupStateNotReady, GroupStateStable, GroupStateDead,
}

// Group is implemented by the four group variants. A group id keeps the
// variant it was created with until the group is deleted.
type Group interface {
	GroupID() string
	Type() GroupType
	State() GroupState
	Size() int
	IsEmpty() bool

	ValidateDeleteGroup() error
	// CreateGroupTombstoneRecords appends the records deleting every trace
	// of the group.
	CreateGroupTombstoneRecords(records []model.Record) []model.Record

	IsSubscribedToTopic(topic string) bool
	OffsetExpirationCondition() (OffsetExpirationCondition, bool)
	ValidateOffsetCommit(memberID, instanceID string, generationIDOrMemberEpoch int32, isTransactional bool) error
	ValidateOffsetFetch(memberID string, memberEpoch int32) error
	ValidateOffsetDelete() error

	Describe() DescribedGroup
}

// OffsetExpirationCondition decides from which timestamp the retention of an
// offset is counted.
type OffsetExpirationCondition struct {
	BaseTimestamp func(offset *OffsetAndMetadata) int64
}

func (c OffsetExpirationCondition) IsOffsetExpired(offset *OffsetAndMetadata, nowMs, retentionMs int64) bool {
	if offset.ExpireTimestampMs != NoExpireTimestamp {
		return nowMs >= offset.ExpireTimestampMs
	}
	return nowMs-c.BaseTimestamp(offset) >= retentionMs
}

func commitTimestampCondition() OffsetExpirationCondition {
	return OffsetExpirationCondition{BaseTimestamp: func(offset *OffsetAndMetadata) int64 {
		return offset.CommitTimestampMs
	}}
}

type DescribedGroup struct {
	GroupID         string
	GroupType       GroupType
	State           GroupState
	Epoch           int32
	AssignmentEpoch int32
	ProtocolType    string
	Members         []DescribedMember
	ErrorCode       int16
}

type DescribedMember struct {
	MemberID         string
	InstanceID       string
	ClientID         string
	ClientHost       string
	MemberEpoch      int32
	State            MemberState
	Assignment       []model.TopicPartitions
	TargetAssignment []model.TopicPartitions
}
