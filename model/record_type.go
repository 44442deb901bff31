package model

import (
	"fmt"
	"github.com/pkg/errors"
)

// RecordType identifies the key schema of a log record. The numbering matches
// the version field written in front of every key on the coordinator log.
type RecordType int16

const (
	LegacyOffsetCommitRecordType                    RecordType = 0
	OffsetCommitRecordType                          RecordType = 1
	GroupMetadataRecordType                         RecordType = 2
	ConsumerGroupMetadataRecordType                 RecordType = 3
	ConsumerGroupPartitionMetadataRecordType        RecordType = 4
	ConsumerGroupMemberMetadataRecordType           RecordType = 5
	ConsumerGroupTargetAssignmentMetadataRecordType RecordType = 6
	ConsumerGroupTargetAssignmentMemberRecordType   RecordType = 7
	ConsumerGroupCurrentMemberAssignmentRecordType  RecordType = 8
	ShareGroupPartitionMetadataRecordType           RecordType = 9
	ShareGroupMemberMetadataRecordType              RecordType = 10
	ShareGroupMetadataRecordType                    RecordType = 11
	ShareGroupTargetAssignmentMetadataRecordType    RecordType = 12
	ShareGroupTargetAssignmentMemberRecordType      RecordType = 13
	ShareGroupCurrentMemberAssignmentRecordType     RecordType = 14
	ShareGroupStatePartitionMetadataRecordType      RecordType = 15
	ConsumerGroupRegularExpressionRecordType        RecordType = 16
	StreamsGroupMetadataRecordType                  RecordType = 17
	StreamsGroupPartitionMetadataRecordType         RecordType = 18
	StreamsGroupMemberMetadataRecordType            RecordType = 19
	StreamsGroupTargetAssignmentMetadataRecordType  RecordType = 20
	StreamsGroupTargetAssignmentMemberRecordType    RecordType = 21
	StreamsGroupCurrentMemberAssignmentRecordType   RecordType = 22
	StreamsGroupTopologyRecordType                  RecordType = 23
)

var recordTypeNames = map[RecordType]string{
	LegacyOffsetCommitRecordType:                    "LegacyOffsetCommit",
	OffsetCommitRecordType:                          "OffsetCommit",
	GroupMetadataRecordType:                         "GroupMetadata",
	ConsumerGroupMetadataRecordType:                 "ConsumerGroupMetadata",
	ConsumerGroupPartitionMetadataRecordType:        "ConsumerGroupPartitionMetadata",
	ConsumerGroupMemberMetadataRecordType:           "ConsumerGroupMemberMetadata",
	ConsumerGroupTargetAssignmentMetadataRecordType: "ConsumerGroupTargetAssignmentMetadata",
	ConsumerGroupTargetAssignmentMemberRecordType:   "ConsumerGroupTargetAssignmentMember",
	ConsumerGroupCurrentMemberAssignmentRecordType:  "ConsumerGroupCurrentMemberAssignment",
	ShareGroupPartitionMetadataRecordType:           "ShareGroupPartitionMetadata",
	ShareGroupMemberMetadataRecordType:              "ShareGroupMemberMetadata",
	ShareGroupMetadataRecordType:                    "ShareGroupMetadata",
	ShareGroupTargetAssignmentMetadataRecordType:    "ShareGroupTargetAssignmentMetadata",
	ShareGroupTargetAssignmentMemberRecordType:      "ShareGroupTargetAssignmentMember",
	ShareGroupCurrentMemberAssignmentRecordType:     "ShareGroupCurrentMemberAssignment",
	ShareGroupStatePartitionMetadataRecordType:      "ShareGroupStatePartitionMetadata",
	ConsumerGroupRegularExpressionRecordType:        "ConsumerGroupRegularExpression",
	StreamsGroupMetadataRecordType:                  "StreamsGroupMetadata",
	StreamsGroupPartitionMetadataRecordType:         "StreamsGroupPartitionMetadata",
	StreamsGroupMemberMetadataRecordType:            "StreamsGroupMemberMetadata",
	StreamsGroupTargetAssignmentMetadataRecordType:  "StreamsGroupTargetAssignmentMetadata",
	StreamsGroupTargetAssignmentMemberRecordType:    "StreamsGroupTargetAssignmentMember",
	StreamsGroupCurrentMemberAssignmentRecordType:   "StreamsGroupCurrentMemberAssignment",
	StreamsGroupTopologyRecordType:                  "StreamsGroupTopology",
}

func (t RecordType) String() string {
	if name, ok := recordTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("RecordType(%d)", int16(t))
}

// NewKey allocates an empty key of the given type, used when decoding records.
func NewKey(t RecordType) (RecordKey, error) {
	switch t {
	case LegacyOffsetCommitRecordType:
		return &LegacyOffsetCommitKey{}, nil
	case OffsetCommitRecordType:
		return &OffsetCommitKey{}, nil
	case GroupMetadataRecordType:
		return &GroupMetadataKey{}, nil
	case ConsumerGroupMetadataRecordType:
		return &ConsumerGroupMetadataKey{}, nil
	case ConsumerGroupPartitionMetadataRecordType:
		return &ConsumerGroupPartitionMetadataKey{}, nil
	case ConsumerGroupMemberMetadataRecordType:
		return &ConsumerGroupMemberMetadataKey{}, nil
	case ConsumerGroupTargetAssignmentMetadataRecordType:
		return &ConsumerGroupTargetAssignmentMetadataKey{}, nil
	case ConsumerGroupTargetAssignmentMemberRecordType:
		return &ConsumerGroupTargetAssignmentMemberKey{}, nil
	case ConsumerGroupCurrentMemberAssignmentRecordType:
		return &ConsumerGroupCurrentMemberAssignmentKey{}, nil
	case ConsumerGroupRegularExpressionRecordType:
		return &ConsumerGroupRegularExpressionKey{}, nil
	case ShareGroupPartitionMetadataRecordType:
		return &ShareGroupPartitionMetadataKey{}, nil
	case ShareGroupMemberMetadataRecordType:
		return &ShareGroupMemberMetadataKey{}, nil
	case ShareGroupMetadataRecordType:
		return &ShareGroupMetadataKey{}, nil
	case ShareGroupTargetAssignmentMetadataRecordType:
		return &ShareGroupTargetAssignmentMetadataKey{}, nil
	case ShareGroupTargetAssignmentMemberRecordType:
		return &ShareGroupTargetAssignmentMemberKey{}, nil
	case ShareGroupCurrentMemberAssignmentRecordType:
		return &ShareGroupCurrentMemberAssignmentKey{}, nil
	case ShareGroupStatePartitionMetadataRecordType:
		return &ShareGroupStatePartitionMetadataKey{}, nil
	case StreamsGroupMetadataRecordType:
		return &StreamsGroupMetadataKey{}, nil
	case StreamsGroupPartitionMetadataRecordType:
		return &StreamsGroupPartitionMetadataKey{}, nil
	case StreamsGroupMemberMetadataRecordType:
		return &StreamsGroupMemberMetadataKey{}, nil
	case StreamsGroupTargetAssignmentMetadataRecordType:
		return &StreamsGroupTargetAssignmentMetadataKey{}, nil
	case StreamsGroupTargetAssignmentMemberRecordType:
		return &StreamsGroupTargetAssignmentMemberKey{}, nil
	case StreamsGroupCurrentMemberAssignmentRecordType:
		return &StreamsGroupCurrentMemberAssignmentKey{}, nil
	case StreamsGroupTopologyRecordType:
		return &StreamsGroupTopologyKey{}, nil
	}
	return nil, errors.Errorf("unknown record type %d", int16(t))
}

// NewValue allocates an empty value for the given key type.
func NewValue(t RecordType) (RecordValue, error) {
	switch t {
	case LegacyOffsetCommitRecordType:
		return &LegacyOffsetCommitValue{}, nil
	case OffsetCommitRecordType:
		return &OffsetCommitValue{}, nil
	case GroupMetadataRecordType:
		return &GroupMetadataValue{}, nil
	case ConsumerGroupMetadataRecordType:
		return &ConsumerGroupMetadataValue{}, nil
	case ConsumerGroupPartitionMetadataRecordType:
		return &ConsumerGroupPartitionMetadataValue{}, nil
	case ConsumerGroupMemberMetadataRecordType:
		return &ConsumerGroupMemberMetadataValue{}, nil
	case ConsumerGroupTargetAssignmentMetadataRecordType:
		return &ConsumerGroupTargetAssignmentMetadataValue{}, nil
	case ConsumerGroupTargetAssignmentMemberRecordType:
		return &ConsumerGroupTargetAssignmentMemberValue{}, nil
	case ConsumerGroupCurrentMemberAssignmentRecordType:
		return &ConsumerGroupCurrentMemberAssignmentValue{}, nil
	case ConsumerGroupRegularExpressionRecordType:
		return &ConsumerGroupRegularExpressionValue{}, nil
	case ShareGroupPartitionMetadataRecordType:
		return &ShareGroupPartitionMetadataValue{}, nil
	case ShareGroupMemberMetadataRecordType:
		return &ShareGroupMemberMetadataValue{}, nil
	case ShareGroupMetadataRecordType:
		return &ShareGroupMetadataValue{}, nil
	case ShareGroupTargetAssignmentMetadataRecordType:
		return &ShareGroupTargetAssignmentMetadataValue{}, nil
	case ShareGroupTargetAssignmentMemberRecordType:
		return &ShareGroupTargetAssignmentMemberValue{}, nil
	case ShareGroupCurrentMemberAssignmentRecordType:
		return &ShareGroupCurrentMemberAssignmentValue{}, nil
	case ShareGroupStatePartitionMetadataRecordType:
		return &ShareGroupStatePartitionMetadataValue{}, nil
	case StreamsGroupMetadataRecordType:
		return &StreamsGroupMetadataValue{}, nil
	case StreamsGroupPartitionMetadataRecordType:
		return &StreamsGroupPartitionMetadataValue{}, nil
	case StreamsGroupMemberMetadataRecordType:
		return &StreamsGroupMemberMetadataValue{}, nil
	case StreamsGroupTargetAssignmentMetadataRecordType:
		return &StreamsGroupTargetAssignmentMetadataValue{}, nil
	case StreamsGroupTargetAssignmentMemberRecordType:
		return &StreamsGroupTargetAssignmentMemberValue{}, nil
	case StreamsGroupCurrentMemberAssignmentRecordType:
		return &StreamsGroupCurrentMemberAssignmentValue{}, nil
	case StreamsGroupTopologyRecordType:
		return &StreamsGroupTopologyValue{}, nil
	}
	return nil, errors.Errorf("unknown record type %d", int16(t))
}
