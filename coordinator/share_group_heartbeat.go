package coordinator

import (
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/assignor"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/twmb/franz-go/pkg/kerr"
)

func (m *GroupMetadataManager) ShareGroupHeartbeat(ctx *RequestContext, req *ShareGroupHeartbeatRequest) (model.Result[*ShareGroupHeartbeatResponse], error) {
	return withDeferredTimers(m, func() (model.Result[*ShareGroupHeartbeatResponse], error) {
		return m.handleShareGroupHeartbeat(ctx, req)
	})
}

func (m *GroupMetadataManager) handleShareGroupHeartbeat(ctx *RequestContext, req *ShareGroupHeartbeatRequest) (model.Result[*ShareGroupHeartbeatResponse], error) {
	var zero model.Result[*ShareGroupHeartbeatResponse]
	if err := validateShareGroupHeartbeat(req); err != nil {
		return zero, err
	}
	if req.MemberEpoch == LeaveGroupMemberEpoch {
		group, err := lookupGroup(m, req.GroupID, ShareGroupType, false, NewShareGroup)
		if err != nil {
			return zero, err
		}
		member, err := group.memberForLeave(req.MemberID, "")
		if err != nil {
			return zero, err
		}
		m.logger.GroupID(req.GroupID).MemberID(req.MemberID).Infof("share member left the group")
		response := &ShareGroupHeartbeatResponse{MemberID: req.MemberID, MemberEpoch: LeaveGroupMemberEpoch}
		return model.NewResult(m.shareGroupFenceMember(group, member), response), nil
	}
	return m.shareGroupHeartbeat(ctx, req)
}

func validateShareGroupHeartbeat(req *ShareGroupHeartbeatRequest) error {
	if req.GroupID == "" {
		return errors.Wrap(kerr.InvalidRequest, "group id can't be empty")
	}
	if req.RackID != nil && *req.RackID == "" {
		return errors.Wrap(kerr.InvalidRequest, "rack id can't be empty")
	}
	switch {
	case req.MemberEpoch == 0:
		if len(req.SubscribedTopicNames) == 0 {
			return errors.Wrap(kerr.InvalidRequest, "subscribed topic names must be set when joining")
		}
	case req.MemberEpoch > 0 || req.MemberEpoch == LeaveGroupMemberEpoch:
		if req.MemberID == "" {
			return errors.Wrap(kerr.InvalidRequest, "member id can't be empty")
		}
	default:
		return errors.Wrapf(kerr.InvalidRequest, "member epoch %d is invalid", req.MemberEpoch)
	}
	return nil
}

func (m *GroupMetadataManager) shareGroupHeartbeat(ctx *RequestContext, req *ShareGroupHeartbeatRequest) (model.Result[*ShareGroupHeartbeatResponse], error) {
	var zero model.Result[*ShareGroupHeartbeatResponse]
	groupID := req.GroupID
	group, err := lookupGroup(m, groupID, ShareGroupType, req.MemberEpoch == 0, NewShareGroup)
	if err != nil {
		return zero, err
	}
	memberID := req.MemberID
	if memberID == "" {
		memberID = newMemberID(ctx.ClientID)
	}
	var member *Member
	isNew := false
	if existing, ok := group.Member(memberID); ok {
		if req.MemberEpoch != 0 {
			// share members own no partitions exclusively, the previous epoch is always acceptable
			if err := validateHeartbeatEpoch(existing, req.MemberEpoch, existing.Assigned); err != nil {
				return zero, err
			}
		}
		member = existing.Clone()
	} else {
		if req.MemberEpoch != 0 {
			return zero, errors.Wrapf(kerr.UnknownMemberID, "member %s is not a member of group %s", memberID, groupID)
		}
		if group.Size() >= m.config.ShareGroupMaxSize {
			return zero, errors.Wrapf(kerr.GroupMaxSizeReached, "group %s has reached its maximum size %d", groupID, m.config.ShareGroupMaxSize)
		}
		member = newMember(memberID)
		isNew = true
	}

	updated := member.Clone()
	updated.ClientID = ctx.ClientID
	updated.ClientHost = ctx.ClientHost
	if req.RackID != nil {
		updated.RackID = *req.RackID
	}
	if req.SubscribedTopicNames != nil {
		updated.SubscribedTopicNames = sortedStrings(req.SubscribedTopicNames)
	}

	var records []model.Record
	bumpGroupEpoch := isNew
	if isNew || !updated.sameMetadata(member) {
		records = append(records, NewShareGroupMemberSubscriptionRecord(groupID, updated))
		if !updated.sameSubscription(member) {
			bumpGroupEpoch = true
		}
	}

	members := group.membersWith(updated)
	metadata := m.subscriptionMetadata(namedSubscribedTopics(members))
	metadataHash := computeMetadataHash(metadata)
	if !sameMetadata(metadata, group.subscriptionMetadata) {
		records = append(records, NewShareGroupSubscriptionMetadataRecord(groupID, metadata))
		bumpGroupEpoch = true
	}
	groupEpoch := group.GroupEpoch()
	if bumpGroupEpoch {
		groupEpoch++
		records = append(records, NewShareGroupEpochRecord(groupID, groupEpoch, metadataHash))
	}

	target := group.TargetAssignment(memberID)
	assignmentEpoch := group.AssignmentEpoch()
	if groupEpoch > assignmentEpoch {
		specs := make(map[string]assignor.MemberSubscriptionSpec, len(members))
		for id, mem := range members {
			specs[id] = assignor.MemberSubscriptionSpec{
				RackID:           mem.RackID,
				SubscribedTopics: mem.SubscribedTopicNames,
				Assignment:       group.TargetAssignment(id),
			}
		}
		topics := make(assignor.TopicPartitionCounts, len(metadata))
		for topic, n := range metadata {
			topics[topic] = int(n)
		}
		result, err := m.shareAssignor.Assign(assignor.NewGroupSpec(specs), topics)
		if err != nil {
			return zero, errors.Wrapf(kerr.UnknownServerError, "compute target assignment of share group %s: %v", groupID, err)
		}
		assigned := Assignment{}
		for _, id := range sortedKeys(members) {
			next := Assignment(result.Members[id].Partitions).Clone()
			if !next.Equal(group.TargetAssignment(id)) || (isNew && id == memberID) {
				records = append(records, NewShareGroupTargetAssignmentRecord(groupID, id, next))
			}
			assigned = assigned.Union(next)
			if id == memberID {
				target = next
			}
		}
		records = append(records, NewShareGroupTargetAssignmentEpochRecord(groupID, groupEpoch))
		assignmentEpoch = groupEpoch

		// share state must exist before the partitions are consumed
		if uninitialized := assigned.Minus(group.initializedTopics); !uninitialized.IsEmpty() {
			records = append(records, NewShareGroupStatePartitionMetadataRecord(groupID,
				group.initializedTopics.Union(uninitialized), group.DeletingTopics()))
		}
	}

	next := updated.Clone()
	next.Assigned = target
	next.State = MemberStateStable
	if next.MemberEpoch != assignmentEpoch {
		next.PreviousMemberEpoch = next.MemberEpoch
		next.MemberEpoch = assignmentEpoch
	}
	if isNew || !next.sameAssignment(member) {
		records = append(records, NewShareGroupCurrentAssignmentRecord(groupID, next))
	}
	m.scheduleSessionTimeout(ShareGroupType, groupID, memberID)

	response := &ShareGroupHeartbeatResponse{
		MemberID:            memberID,
		MemberEpoch:         next.MemberEpoch,
		HeartbeatIntervalMs: int32(m.config.ShareGroupHeartbeatIntervalMs),
	}
	if req.MemberEpoch == 0 || !next.Assigned.Equal(member.Assigned) {
		response.Assignment = next.Assigned.TopicPartitions()
	}
	if isNew {
		m.logger.GroupID(groupID).MemberID(memberID).Infof("share member joined with epoch %d", next.MemberEpoch)
	}
	return model.NewResult(records, response), nil
}

func (m *GroupMetadataManager) shareGroupFenceMember(group *ShareGroup, member *Member) []model.Record {
	groupID := group.GroupID()
	records := []model.Record{
		NewShareGroupCurrentAssignmentTombstoneRecord(groupID, member.MemberID),
		NewShareGroupTargetAssignmentTombstoneRecord(groupID, member.MemberID),
		NewShareGroupMemberSubscriptionTombstoneRecord(groupID, member.MemberID),
	}
	metadata := m.subscriptionMetadata(namedSubscribedTopics(group.membersWith(nil, member.MemberID)))
	if !sameMetadata(metadata, group.subscriptionMetadata) {
		records = append(records, NewShareGroupSubscriptionMetadataRecord(groupID, metadata))
	}
	records = append(records, NewShareGroupEpochRecord(groupID, group.GroupEpoch()+1, computeMetadataHash(metadata)))
	m.cancelMemberTimeouts(groupID, member.MemberID)
	return records
}

func namedSubscribedTopics(members map[string]*Member) map[string]bool {
	topics := make(map[string]bool)
	for _, member := range members {
		for _, topic := range member.SubscribedTopicNames {
			topics[topic] = true
		}
	}
	return topics
}
