package model

type LegacyOffsetCommitKey struct {
	Group     string `json:"group"`
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
}

func (*LegacyOffsetCommitKey) RecordType() RecordType { return LegacyOffsetCommitRecordType }

type LegacyOffsetCommitValue struct {
	Offset          int64  `json:"offset"`
	Metadata        string `json:"metadata"`
	CommitTimestamp int64  `json:"commitTimestamp"`
}

func (*LegacyOffsetCommitValue) isRecordValue() {}

type OffsetCommitKey struct {
	Group     string `json:"group"`
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
}

func (*OffsetCommitKey) RecordType() RecordType { return OffsetCommitRecordType }

type OffsetCommitValue struct {
	Offset          int64  `json:"offset"`
	LeaderEpoch     int32  `json:"leaderEpoch"`
	Metadata        string `json:"metadata"`
	CommitTimestamp int64  `json:"commitTimestamp"`
	// ExpireTimestamp is -1 unless the committer asked for an explicit retention.
	ExpireTimestamp int64 `json:"expireTimestamp"`
}

func (*OffsetCommitValue) isRecordValue() {}

// ToOffsetCommit converts a legacy key to the current schema.
func (k *LegacyOffsetCommitKey) ToOffsetCommit() *OffsetCommitKey {
	return &OffsetCommitKey{Group: k.Group, Topic: k.Topic, Partition: k.Partition}
}

// ToOffsetCommit converts a legacy value to the current schema, a nil value
// stays nil.
func (v *LegacyOffsetCommitValue) ToOffsetCommit() *OffsetCommitValue {
	if v == nil {
		return nil
	}
	return &OffsetCommitValue{
		Offset:          v.Offset,
		LeaderEpoch:     -1,
		Metadata:        v.Metadata,
		CommitTimestamp: v.CommitTimestamp,
		ExpireTimestamp: -1,
	}
}
