package coordinator

import (
	"github.com/google/go-cmp/cmp"
	"github.com/protocol-laboratory/group-coordinator-go/log"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/protocol-laboratory/group-coordinator-go/timer"
	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kerr"
	"testing"
	"time"
)

type groupFixture struct {
	manager *GroupMetadataManager
	clock   *timer.MockClock
	timer   *timer.Timer
	metrics *recordingMetricsSink
}

func newGroupFixture(t *testing.T, topics ...TopicImage) *groupFixture {
	clock := timer.NewMockClock(time.Unix(1000, 0))
	tm := timer.NewTimer(clock)
	metrics := newRecordingMetricsSink()
	manager, err := NewGroupMetadataManager(DefaultConfig(), tm, clock, log.NewDiscardLogger(), metrics)
	assert.Nil(t, err)
	manager.OnNewMetadataImage(NewMetadataImage(1, topics...))
	return &groupFixture{manager: manager, clock: clock, timer: tm, metrics: metrics}
}

func (f *groupFixture) replay(t *testing.T, records []model.Record) {
	for _, record := range records {
		assert.Nil(t, f.manager.Replay(record.Key, record.Value))
	}
}

func (f *groupFixture) consumerHeartbeat(t *testing.T, req *ConsumerGroupHeartbeatRequest) *ConsumerGroupHeartbeatResponse {
	result, err := f.manager.ConsumerGroupHeartbeat(&RequestContext{ClientID: "client", ClientHost: "/127.0.0.1"}, req)
	assert.Nil(t, err)
	f.commit(t, result.Records, result.AppendFuture)
	return result.Response
}

func (f *groupFixture) consumerGroup(t *testing.T, groupID string) *ConsumerGroup {
	group, err := f.manager.consumerGroup(groupID, false)
	assert.Nil(t, err)
	return group
}

func joinRequest(groupID, memberID string, topics ...string) *ConsumerGroupHeartbeatRequest {
	return &ConsumerGroupHeartbeatRequest{
		GroupID:              groupID,
		MemberID:             memberID,
		MemberEpoch:          0,
		RebalanceTimeoutMs:   5000,
		SubscribedTopicNames: topics,
	}
}

func recordTypes(records []model.Record) []model.RecordType {
	types := make([]model.RecordType, 0, len(records))
	for _, record := range records {
		types = append(types, record.Key.RecordType())
	}
	return types
}

func strPtr(s string) *string {
	return &s
}

var fooBarTopics = []TopicImage{{Name: "foo", NumPartitions: 6}, {Name: "bar", NumPartitions: 3}}

func TestConsumerGroupHeartbeatFirstMemberGetsEveryPartition(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	result, err := f.manager.ConsumerGroupHeartbeat(&RequestContext{ClientID: "client"}, joinRequest("grp", "", "foo", "bar"))
	assert.Nil(t, err)
	assert.Equal(t, []model.RecordType{
		model.ConsumerGroupMemberMetadataRecordType,
		model.ConsumerGroupPartitionMetadataRecordType,
		model.ConsumerGroupMetadataRecordType,
		model.ConsumerGroupTargetAssignmentMemberRecordType,
		model.ConsumerGroupTargetAssignmentMetadataRecordType,
		model.ConsumerGroupCurrentMemberAssignmentRecordType,
	}, recordTypes(result.Records))

	response := result.Response
	assert.Regexp(t, "^client-", response.MemberID)
	assert.Equal(t, int32(1), response.MemberEpoch)
	assert.Equal(t, int32(5000), response.HeartbeatIntervalMs)
	assert.Equal(t, []model.TopicPartitions{
		{TopicName: "bar", Partitions: []int32{0, 1, 2}},
		{TopicName: "foo", Partitions: []int32{0, 1, 2, 3, 4, 5}},
	}, response.Assignment)

	// nothing is materialized before the records are replayed
	_, err = f.manager.Group("grp")
	assert.Equal(t, kerr.GroupIDNotFound.Code, ErrorCode(err))
	assert.NotNil(t, result.AppendFuture)
	assert.False(t, f.timer.Contains(sessionTimeoutKey("grp", response.MemberID)))

	f.commit(t, result.Records, result.AppendFuture)
	group := f.consumerGroup(t, "grp")
	assert.Equal(t, GroupStateStable, group.State())
	assert.Equal(t, int32(1), group.GroupEpoch())
	assert.Equal(t, int32(1), group.AssignmentEpoch())
	assert.Equal(t, map[string]int32{"foo": 6, "bar": 3}, group.SubscriptionMetadata())
	assert.True(t, f.timer.Contains(sessionTimeoutKey("grp", response.MemberID)))
	assert.False(t, f.timer.Contains(rebalanceTimeoutKey("grp", response.MemberID)))
}

func TestConsumerGroupHeartbeatValidation(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	cases := []struct {
		name string
		req  *ConsumerGroupHeartbeatRequest
		code int16
	}{
		{"empty group id", joinRequest("", "m1", "foo"), kerr.InvalidRequest.Code},
		{"empty instance id", &ConsumerGroupHeartbeatRequest{GroupID: "grp", InstanceID: strPtr(""), SubscribedTopicNames: []string{"foo"}}, kerr.InvalidRequest.Code},
		{"empty rack id", &ConsumerGroupHeartbeatRequest{GroupID: "grp", RackID: strPtr(""), SubscribedTopicNames: []string{"foo"}}, kerr.InvalidRequest.Code},
		{"join without rebalance timeout", &ConsumerGroupHeartbeatRequest{GroupID: "grp", RebalanceTimeoutMs: -1, SubscribedTopicNames: []string{"foo"}}, kerr.InvalidRequest.Code},
		{"join without subscription", &ConsumerGroupHeartbeatRequest{GroupID: "grp", RebalanceTimeoutMs: 5000}, kerr.InvalidRequest.Code},
		{"join with owned partitions", &ConsumerGroupHeartbeatRequest{
			GroupID: "grp", RebalanceTimeoutMs: 5000, SubscribedTopicNames: []string{"foo"},
			TopicPartitions: []model.TopicPartitions{{TopicName: "foo", Partitions: []int32{0}}},
		}, kerr.InvalidRequest.Code},
		{"heartbeat without member id", &ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberEpoch: 1}, kerr.InvalidRequest.Code},
		{"leave without member id", &ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberEpoch: LeaveGroupMemberEpoch}, kerr.InvalidRequest.Code},
		{"static leave without instance id", &ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberID: "m1", MemberEpoch: LeaveGroupStaticMemberEpoch}, kerr.InvalidRequest.Code},
		{"invalid epoch", &ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberID: "m1", MemberEpoch: -3}, kerr.InvalidRequest.Code},
		{"unknown assignor", &ConsumerGroupHeartbeatRequest{
			GroupID: "grp", RebalanceTimeoutMs: 5000, SubscribedTopicNames: []string{"foo"}, ServerAssignor: strPtr("sticky"),
		}, kerr.UnsupportedAssignor.Code},
		{"invalid regex", &ConsumerGroupHeartbeatRequest{GroupID: "grp", RebalanceTimeoutMs: 5000, SubscribedTopicRegex: strPtr("foo[")}, int16(128)},
		{"unknown group", &ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberID: "m1", MemberEpoch: 1}, kerr.GroupIDNotFound.Code},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := f.manager.ConsumerGroupHeartbeat(&RequestContext{}, c.req)
			assert.Equal(t, c.code, ErrorCode(err))
		})
	}
}

func TestConsumerGroupHeartbeatFencesMemberEpochs(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	f.consumerHeartbeat(t, joinRequest("grp", "m1", "foo"))

	_, err := f.manager.ConsumerGroupHeartbeat(&RequestContext{}, &ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberID: "m1", MemberEpoch: 5, RebalanceTimeoutMs: -1})
	assert.Equal(t, kerr.FencedMemberEpoch.Code, ErrorCode(err))
	_, err = f.manager.ConsumerGroupHeartbeat(&RequestContext{}, &ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberID: "m2", MemberEpoch: 1, RebalanceTimeoutMs: -1})
	assert.Equal(t, kerr.UnknownMemberID.Code, ErrorCode(err))

	result, err := f.manager.ConsumerGroupHeartbeat(&RequestContext{ClientID: "client", ClientHost: "/127.0.0.1"},
		&ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberID: "m1", MemberEpoch: 1, RebalanceTimeoutMs: -1})
	assert.Nil(t, err)
	assert.Empty(t, result.Records)
	assert.Equal(t, int32(1), result.Response.MemberEpoch)
	assert.Nil(t, result.Response.Assignment)
}

func TestConsumerGroupRebalanceRevokesBeforeAssigning(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	f.consumerHeartbeat(t, joinRequest("grp", "m1", "foo", "bar"))

	second := f.consumerHeartbeat(t, joinRequest("grp", "m2", "foo", "bar"))
	assert.Equal(t, int32(2), second.MemberEpoch)
	// every partition is still owned by m1
	assert.Empty(t, second.Assignment)
	group := f.consumerGroup(t, "grp")
	assert.Equal(t, GroupStateReconciling, group.State())
	m2, _ := group.Member("m2")
	assert.Equal(t, MemberStateUnreleasedPartitions, m2.State)

	all := Assignment{"foo": {0, 1, 2, 3, 4, 5}, "bar": {0, 1, 2}}
	revoking := f.consumerHeartbeat(t, &ConsumerGroupHeartbeatRequest{
		GroupID: "grp", MemberID: "m1", MemberEpoch: 1, RebalanceTimeoutMs: -1,
		TopicPartitions: all.TopicPartitions(),
	})
	assert.Equal(t, int32(1), revoking.MemberEpoch)
	kept := AssignmentFromTopicPartitions(revoking.Assignment)
	assert.True(t, kept.Size() < all.Size())
	m1, _ := f.consumerGroup(t, "grp").Member("m1")
	assert.Equal(t, MemberStateUnrevokedPartitions, m1.State)
	assert.True(t, f.timer.Contains(rebalanceTimeoutKey("grp", "m1")))

	revoked := f.consumerHeartbeat(t, &ConsumerGroupHeartbeatRequest{
		GroupID: "grp", MemberID: "m1", MemberEpoch: 1, RebalanceTimeoutMs: -1,
		TopicPartitions: kept.TopicPartitions(),
	})
	assert.Equal(t, int32(2), revoked.MemberEpoch)
	assert.False(t, f.timer.Contains(rebalanceTimeoutKey("grp", "m1")))

	released := f.consumerHeartbeat(t, &ConsumerGroupHeartbeatRequest{
		GroupID: "grp", MemberID: "m2", MemberEpoch: 2, RebalanceTimeoutMs: -1,
		TopicPartitions: []model.TopicPartitions{},
	})
	assert.Equal(t, int32(2), released.MemberEpoch)
	got := AssignmentFromTopicPartitions(released.Assignment)
	assert.True(t, got.Intersect(kept).IsEmpty())
	assert.True(t, got.Union(kept).Equal(all))
	assert.Equal(t, GroupStateStable, f.consumerGroup(t, "grp").State())
}

func TestConsumerGroupSessionTimeoutFencesMember(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	f.consumerHeartbeat(t, joinRequest("grp", "m1", "foo"))

	f.clock.Advance(44 * time.Second)
	assert.Empty(t, f.timer.Poll())
	f.clock.Advance(time.Second)
	expired := f.timer.Poll()
	assert.Len(t, expired, 1)
	assert.Equal(t, sessionTimeoutKey("grp", "m1"), expired[0].Key)
	assert.Nil(t, expired[0].Err)
	f.commit(t, expired[0].Result.Records, expired[0].Result.AppendFuture)

	group := f.consumerGroup(t, "grp")
	assert.Equal(t, GroupStateEmpty, group.State())
	assert.Equal(t, int32(2), group.GroupEpoch())
	assert.Empty(t, group.SubscriptionMetadata())
}

func TestConsumerGroupRebalanceTimeoutFencesUnrevokedMember(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	f.consumerHeartbeat(t, joinRequest("grp", "m1", "foo", "bar"))
	f.consumerHeartbeat(t, joinRequest("grp", "m2", "foo", "bar"))
	f.consumerHeartbeat(t, &ConsumerGroupHeartbeatRequest{
		GroupID: "grp", MemberID: "m1", MemberEpoch: 1, RebalanceTimeoutMs: -1,
		TopicPartitions: Assignment{"foo": {0, 1, 2, 3, 4, 5}, "bar": {0, 1, 2}}.TopicPartitions(),
	})

	f.clock.Advance(5 * time.Second)
	expired := f.timer.Poll()
	assert.Len(t, expired, 1)
	assert.Equal(t, rebalanceTimeoutKey("grp", "m1"), expired[0].Key)
	f.commit(t, expired[0].Result.Records, expired[0].Result.AppendFuture)

	group := f.consumerGroup(t, "grp")
	_, ok := group.Member("m1")
	assert.False(t, ok)
	assert.Equal(t, []string{"m2"}, group.MemberIDs())
	assert.False(t, f.timer.Contains(sessionTimeoutKey("grp", "m1")))
}

func TestConsumerGroupTimersWaitForAppend(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	result, err := f.manager.ConsumerGroupHeartbeat(&RequestContext{}, joinRequest("grp", "m1", "foo"))
	assert.Nil(t, err)
	f.replay(t, result.Records)
	assert.Equal(t, 0, f.timer.Size())

	result.AppendFuture.Complete(nil)
	assert.True(t, f.timer.Contains(sessionTimeoutKey("grp", "m1")))
}

func TestConsumerGroupFailedAppendArmsNoTimer(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	result, err := f.manager.ConsumerGroupHeartbeat(&RequestContext{}, joinRequest("grp", "m1", "foo"))
	assert.Nil(t, err)
	result.AppendFuture.Complete(kerr.NotCoordinator)
	assert.Equal(t, 0, f.timer.Size())
	_, err = f.manager.Group("grp")
	assert.Equal(t, kerr.GroupIDNotFound.Code, ErrorCode(err))
}

func TestConsumerGroupFailedLeaveKeepsSessionTimeout(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	f.consumerHeartbeat(t, joinRequest("grp", "m1", "foo"))

	result, err := f.manager.ConsumerGroupHeartbeat(&RequestContext{}, &ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberID: "m1", MemberEpoch: LeaveGroupMemberEpoch})
	assert.Nil(t, err)
	assert.NotEmpty(t, result.Records)
	result.AppendFuture.Complete(kerr.NotCoordinator)
	assert.True(t, f.timer.Contains(sessionTimeoutKey("grp", "m1")))
	_, ok := f.consumerGroup(t, "grp").Member("m1")
	assert.True(t, ok)
}

func TestConsumerGroupLeave(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	f.consumerHeartbeat(t, joinRequest("grp", "m1", "foo"))

	response := f.consumerHeartbeat(t, &ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberID: "m1", MemberEpoch: LeaveGroupMemberEpoch})
	assert.Equal(t, LeaveGroupMemberEpoch, response.MemberEpoch)
	group := f.consumerGroup(t, "grp")
	assert.Equal(t, GroupStateEmpty, group.State())
	assert.Equal(t, int32(2), group.GroupEpoch())
	assert.False(t, f.timer.Contains(sessionTimeoutKey("grp", "m1")))
	assert.Nil(t, f.manager.ValidateDeleteGroup("grp"))
}

func TestConsumerGroupStaticMemberRejoins(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	join := joinRequest("grp", "m1", "foo")
	join.InstanceID = strPtr("instance")
	f.consumerHeartbeat(t, join)

	_, err := f.manager.ConsumerGroupHeartbeat(&RequestContext{}, &ConsumerGroupHeartbeatRequest{
		GroupID: "grp", MemberID: "m2", InstanceID: strPtr("instance"), RebalanceTimeoutMs: 5000, SubscribedTopicNames: []string{"foo"},
	})
	assert.Equal(t, kerr.UnreleasedInstanceID.Code, ErrorCode(err))

	left := f.consumerHeartbeat(t, &ConsumerGroupHeartbeatRequest{
		GroupID: "grp", MemberID: "m1", InstanceID: strPtr("instance"), MemberEpoch: LeaveGroupStaticMemberEpoch,
	})
	assert.Equal(t, LeaveGroupStaticMemberEpoch, left.MemberEpoch)
	m1, _ := f.consumerGroup(t, "grp").Member("m1")
	assert.Equal(t, LeaveGroupStaticMemberEpoch, m1.MemberEpoch)

	rejoined := f.consumerHeartbeat(t, &ConsumerGroupHeartbeatRequest{
		GroupID: "grp", MemberID: "m2", InstanceID: strPtr("instance"), RebalanceTimeoutMs: 5000, SubscribedTopicNames: []string{"foo"},
	})
	assert.Equal(t, int32(1), rejoined.MemberEpoch)
	assert.Equal(t, []model.TopicPartitions{{TopicName: "foo", Partitions: []int32{0, 1, 2, 3, 4, 5}}}, rejoined.Assignment)

	group := f.consumerGroup(t, "grp")
	assert.Equal(t, []string{"m2"}, group.MemberIDs())
	holder, _ := group.StaticMemberID("instance")
	assert.Equal(t, "m2", holder)
	assert.Equal(t, int32(1), group.GroupEpoch())
	assert.False(t, f.timer.Contains(sessionTimeoutKey("grp", "m1")))
}

func TestConsumerGroupRegexSubscription(t *testing.T) {
	f := newGroupFixture(t,
		TopicImage{Name: "orders-eu", NumPartitions: 2},
		TopicImage{Name: "orders-us", NumPartitions: 1},
		TopicImage{Name: "payments", NumPartitions: 4},
	)
	response := f.consumerHeartbeat(t, &ConsumerGroupHeartbeatRequest{
		GroupID: "grp", MemberID: "m1", RebalanceTimeoutMs: 5000, SubscribedTopicRegex: strPtr("orders-.*"),
	})
	assert.Equal(t, []model.TopicPartitions{
		{TopicName: "orders-eu", Partitions: []int32{0, 1}},
		{TopicName: "orders-us", Partitions: []int32{0}},
	}, response.Assignment)

	group := f.consumerGroup(t, "grp")
	resolved, ok := group.ResolvedRegex("orders-.*")
	assert.True(t, ok)
	assert.Equal(t, []string{"orders-eu", "orders-us"}, resolved.Topics)
	assert.Equal(t, int64(1), resolved.Version)
	assert.True(t, group.IsSubscribedToTopic("orders-eu"))
	assert.False(t, group.IsSubscribedToTopic("payments"))

	// the regex is dropped with its last subscriber
	result, err := f.manager.ConsumerGroupHeartbeat(&RequestContext{}, &ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberID: "m1", MemberEpoch: LeaveGroupMemberEpoch})
	assert.Nil(t, err)
	assert.Contains(t, result.Records, NewConsumerGroupRegularExpressionTombstoneRecord("grp", "orders-.*"))
}

func TestConsumerGroupReplacesSimpleClassicGroup(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	_, err := f.manager.GetOrMaybeCreateClassicGroup("grp", true)
	assert.Nil(t, err)

	f.consumerHeartbeat(t, joinRequest("grp", "m1", "foo"))
	group, err := f.manager.Group("grp")
	assert.Nil(t, err)
	assert.Equal(t, ConsumerGroupType, group.Type())
}

func TestShareGroupHeartbeat(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	ctx := &RequestContext{ClientID: "client"}

	result, err := f.manager.ShareGroupHeartbeat(ctx, &ShareGroupHeartbeatRequest{GroupID: "share", MemberID: "s1", SubscribedTopicNames: []string{"bar"}})
	assert.Nil(t, err)
	assert.Equal(t, int32(1), result.Response.MemberEpoch)
	assert.Equal(t, []model.TopicPartitions{{TopicName: "bar", Partitions: []int32{0, 1, 2}}}, result.Response.Assignment)
	assert.Contains(t, recordTypes(result.Records), model.ShareGroupStatePartitionMetadataRecordType)
	f.commit(t, result.Records, result.AppendFuture)

	group, err := f.manager.ShareGroup("share")
	assert.Nil(t, err)
	assert.Equal(t, GroupStateStable, group.State())
	assert.True(t, group.InitializedTopics().Equal(Assignment{"bar": {0, 1, 2}}))
	params, ok := f.manager.ShareGroupBuildPartitionDeleteRequest(group)
	assert.True(t, ok)
	assert.Equal(t, &DeleteShareGroupStateParameters{
		GroupID: "share",
		Topics:  []model.TopicPartitions{{TopicName: "bar", Partitions: []int32{0, 1, 2}}},
	}, params)

	_, err = f.manager.ShareGroupHeartbeat(ctx, &ShareGroupHeartbeatRequest{GroupID: "share", MemberID: "s2", MemberEpoch: 3})
	assert.Equal(t, kerr.UnknownMemberID.Code, ErrorCode(err))
	_, err = f.manager.ShareGroupHeartbeat(ctx, &ShareGroupHeartbeatRequest{GroupID: "share"})
	assert.Equal(t, kerr.InvalidRequest.Code, ErrorCode(err))

	result, err = f.manager.ShareGroupHeartbeat(ctx, &ShareGroupHeartbeatRequest{GroupID: "share", MemberID: "s1", MemberEpoch: LeaveGroupMemberEpoch})
	assert.Nil(t, err)
	f.commit(t, result.Records, result.AppendFuture)
	assert.Equal(t, GroupStateEmpty, group.State())
	assert.Equal(t, int32(2), group.GroupEpoch())
}

func TestShareGroupIsNotAConsumerGroup(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	result, err := f.manager.ShareGroupHeartbeat(&RequestContext{}, &ShareGroupHeartbeatRequest{GroupID: "grp", MemberID: "s1", SubscribedTopicNames: []string{"foo"}})
	assert.Nil(t, err)
	f.commit(t, result.Records, result.AppendFuture)

	_, err = f.manager.ConsumerGroupHeartbeat(&RequestContext{}, joinRequest("grp", "m1", "foo"))
	assert.Equal(t, kerr.GroupIDNotFound.Code, ErrorCode(err))
}

func streamsJoinRequest(groupID, memberID string, sources ...string) *StreamsGroupHeartbeatRequest {
	return &StreamsGroupHeartbeatRequest{
		GroupID:            groupID,
		MemberID:           memberID,
		RebalanceTimeoutMs: 5000,
		ProcessID:          "process-" + memberID,
		Topology: &StreamsTopology{
			Epoch:         0,
			Subtopologies: []model.Subtopology{{SubtopologyID: "0", SourceTopics: sources}},
		},
	}
}

func TestStreamsGroupHeartbeat(t *testing.T) {
	f := newGroupFixture(t, TopicImage{Name: "input", NumPartitions: 4})
	ctx := &RequestContext{ClientID: "client"}

	result, err := f.manager.StreamsGroupHeartbeat(ctx, streamsJoinRequest("app", "s1", "input"))
	assert.Nil(t, err)
	assert.Equal(t, int32(1), result.Response.MemberEpoch)
	assert.Equal(t, []model.TaskIDs{{SubtopologyID: "0", Partitions: []int32{0, 1, 2, 3}}}, result.Response.ActiveTasks)
	assert.Empty(t, result.Response.Status)
	assert.Contains(t, recordTypes(result.Records), model.StreamsGroupTopologyRecordType)
	f.commit(t, result.Records, result.AppendFuture)

	group, err := f.manager.streamsGroup("app", false)
	assert.Nil(t, err)
	assert.Equal(t, GroupStateStable, group.State())
	topology, ok := group.Topology()
	assert.True(t, ok)
	assert.Equal(t, []string{"input"}, topology.SourceTopics())

	result, err = f.manager.StreamsGroupHeartbeat(ctx, &StreamsGroupHeartbeatRequest{GroupID: "app", MemberID: "s1", MemberEpoch: LeaveGroupMemberEpoch})
	assert.Nil(t, err)
	f.commit(t, result.Records, result.AppendFuture)
	assert.Equal(t, GroupStateEmpty, group.State())
}

func TestStreamsGroupHeartbeatReportsMissingSourceTopics(t *testing.T) {
	f := newGroupFixture(t, TopicImage{Name: "input", NumPartitions: 4})
	result, err := f.manager.StreamsGroupHeartbeat(&RequestContext{}, streamsJoinRequest("app", "s1", "input", "missing"))
	assert.Nil(t, err)
	assert.Empty(t, result.Response.ActiveTasks)
	assert.Len(t, result.Response.Status, 1)
	assert.Equal(t, StreamsStatusMissingSourceTopics, result.Response.Status[0].Code)
	assert.Contains(t, result.Response.Status[0].Detail, "missing")
}

func TestStreamsGroupHeartbeatValidation(t *testing.T) {
	f := newGroupFixture(t)
	_, err := f.manager.StreamsGroupHeartbeat(&RequestContext{}, &StreamsGroupHeartbeatRequest{GroupID: "app", RebalanceTimeoutMs: 5000})
	assert.Equal(t, kerr.InvalidRequest.Code, ErrorCode(err))
	_, err = f.manager.StreamsGroupHeartbeat(&RequestContext{}, streamsJoinRequest("app", "s1"))
	assert.Equal(t, kerr.InvalidRequest.Code, ErrorCode(err))
}

func TestReplayTombstoneOfUnknownGroupIsIgnored(t *testing.T) {
	f := newGroupFixture(t)
	assert.Nil(t, f.manager.Replay(&model.ConsumerGroupMemberMetadataKey{GroupID: "grp", MemberID: "m1"}, nil))
	assert.Nil(t, f.manager.Replay(&model.GroupMetadataKey{Group: "grp"}, nil))
	assert.Empty(t, f.manager.GroupIDs())
}

func TestReplayRejectsNilPointerKey(t *testing.T) {
	f := newGroupFixture(t)
	err := f.manager.Replay((*model.ConsumerGroupMetadataKey)(nil), &model.ConsumerGroupMetadataValue{Epoch: 1})
	assert.ErrorIs(t, err, ErrIllegalState)
	// a nil pointer value is a tombstone
	assert.Nil(t, f.manager.Replay(&model.GroupMetadataKey{Group: "grp"}, (*model.GroupMetadataValue)(nil)))
	assert.Empty(t, f.manager.GroupIDs())
}

func TestReplayRejectsRecordsOfAnotherVariant(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	f.consumerHeartbeat(t, joinRequest("grp", "m1", "foo"))

	err := f.manager.Replay(&model.StreamsGroupMetadataKey{GroupID: "grp"}, &model.StreamsGroupMetadataValue{Epoch: 1})
	assert.ErrorIs(t, err, ErrIllegalState)
	err = f.manager.Replay(&model.ConsumerGroupMetadataKey{GroupID: "grp"}, &model.ShareGroupMetadataValue{Epoch: 1})
	assert.ErrorIs(t, err, ErrIllegalState)
	// members must be removed before the epoch tombstone
	err = f.manager.Replay(&model.ConsumerGroupMetadataKey{GroupID: "grp"}, nil)
	assert.ErrorIs(t, err, ErrIllegalState)
}

func TestDeleteConsumerGroup(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	f.consumerHeartbeat(t, joinRequest("grp", "m1", "foo"))
	assert.Equal(t, kerr.NonEmptyGroup.Code, ErrorCode(f.manager.ValidateDeleteGroup("grp")))
	assert.Equal(t, kerr.GroupIDNotFound.Code, ErrorCode(f.manager.ValidateDeleteGroup("unknown")))

	f.consumerHeartbeat(t, &ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberID: "m1", MemberEpoch: LeaveGroupMemberEpoch})
	records, err := f.manager.CreateGroupTombstoneRecords("grp", nil)
	assert.Nil(t, err)
	assert.Equal(t, NewConsumerGroupEpochTombstoneRecord("grp"), records[len(records)-1])
	f.replay(t, records)
	assert.Empty(t, f.manager.GroupIDs())
}

func TestMaybeDeleteGroup(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	_, ok := f.manager.MaybeDeleteGroup("unknown", nil)
	assert.False(t, ok)

	f.consumerHeartbeat(t, joinRequest("grp", "m1", "foo"))
	_, ok = f.manager.MaybeDeleteGroup("grp", nil)
	assert.False(t, ok)
}

func TestDescribeGroup(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	f.consumerHeartbeat(t, joinRequest("grp", "m1", "bar"))

	described, err := f.manager.DescribeGroup("grp")
	assert.Nil(t, err)
	assert.Equal(t, ConsumerGroupType, described.GroupType)
	assert.Equal(t, GroupStateStable, described.State)
	assert.Equal(t, int32(1), described.Epoch)
	assert.Len(t, described.Members, 1)
	assert.Equal(t, "m1", described.Members[0].MemberID)
	assert.Equal(t, "client", described.Members[0].ClientID)
	assert.Equal(t, []model.TopicPartitions{{TopicName: "bar", Partitions: []int32{0, 1, 2}}}, described.Members[0].Assignment)
}

func TestUpdateGroupSizeCounter(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	f.consumerHeartbeat(t, joinRequest("grp", "m1", "foo"))
	_, err := f.manager.GetOrMaybeCreateClassicGroup("offsets-only", true)
	assert.Nil(t, err)

	f.manager.UpdateGroupSizeCounter()
	assert.Equal(t, 1, f.metrics.groupCounts[ConsumerGroupType][GroupStateStable])
	assert.Equal(t, 1, f.metrics.groupCounts[ClassicGroupType][GroupStateEmpty])
	assert.Equal(t, 0, f.metrics.groupCounts[ShareGroupType][GroupStateStable])
}

func TestOnLoadedArmsSessionTimeouts(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	result, err := f.manager.ConsumerGroupHeartbeat(&RequestContext{}, joinRequest("grp", "m1", "foo"))
	assert.Nil(t, err)

	loaded := newGroupFixture(t, fooBarTopics...)
	loaded.replay(t, result.Records)
	assert.Equal(t, 0, loaded.timer.Size())
	loaded.manager.OnLoaded()
	assert.True(t, loaded.timer.Contains(sessionTimeoutKey("grp", "m1")))

	loaded.manager.OnUnloaded()
	assert.Equal(t, 0, loaded.timer.Size())
	assert.Empty(t, loaded.manager.GroupIDs())
}

func TestReplayIsDeterministic(t *testing.T) {
	f := newGroupFixture(t, fooBarTopics...)
	var appended []model.Record
	heartbeat := func(req *ConsumerGroupHeartbeatRequest) {
		result, err := f.manager.ConsumerGroupHeartbeat(&RequestContext{ClientID: "client"}, req)
		assert.Nil(t, err)
		f.commit(t, result.Records, result.AppendFuture)
		appended = append(appended, result.Records...)
	}
	heartbeat(joinRequest("grp", "m1", "foo", "bar"))
	heartbeat(joinRequest("grp", "m2", "foo"))
	heartbeat(&ConsumerGroupHeartbeatRequest{GroupID: "grp", MemberID: "m1", MemberEpoch: LeaveGroupMemberEpoch})

	replayed := newGroupFixture(t, fooBarTopics...)
	replayed.replay(t, appended)

	want, err := f.manager.DescribeGroup("grp")
	assert.Nil(t, err)
	got, err := replayed.manager.DescribeGroup("grp")
	assert.Nil(t, err)
	assert.Empty(t, cmp.Diff(want, got))
	assert.Equal(t, f.consumerGroup(t, "grp").SubscriptionMetadata(), replayed.consumerGroup(t, "grp").SubscriptionMetadata())
}
