package coordinator

const (
	GroupExpirationKey  = "expire-group-metadata"
	GroupSizeCounterKey = "group-size-counter"

	DefaultGroupGaugesUpdateIntervalMs = 60 * 1000

	// LeaveGroupMemberEpoch is sent by a member leaving the group for good.
	LeaveGroupMemberEpoch = int32(-1)
	// LeaveGroupStaticMemberEpoch is sent by a static member leaving
	// temporarily, its assignment is kept for its return.
	LeaveGroupStaticMemberEpoch = int32(-2)

	UnknownLeaderEpoch = int32(-1)
	NoExpireTimestamp  = int64(-1)
)

func sessionTimeoutKey(groupID, memberID string) string {
	return "session-timeout-" + groupID + "-" + memberID
}

func rebalanceTimeoutKey(groupID, memberID string) string {
	return "rebalance-timeout-" + groupID + "-" + memberID
}
