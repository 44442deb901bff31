package coordinator

import (
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/assignor"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/twmb/franz-go/pkg/kerr"
	"strconv"
	"strings"
)

func (m *GroupMetadataManager) StreamsGroupHeartbeat(ctx *RequestContext, req *StreamsGroupHeartbeatRequest) (model.Result[*StreamsGroupHeartbeatResponse], error) {
	return withDeferredTimers(m, func() (model.Result[*StreamsGroupHeartbeatResponse], error) {
		return m.handleStreamsGroupHeartbeat(ctx, req)
	})
}

func (m *GroupMetadataManager) handleStreamsGroupHeartbeat(ctx *RequestContext, req *StreamsGroupHeartbeatRequest) (model.Result[*StreamsGroupHeartbeatResponse], error) {
	var zero model.Result[*StreamsGroupHeartbeatResponse]
	if err := validateStreamsGroupHeartbeat(req); err != nil {
		return zero, err
	}
	if req.MemberEpoch == LeaveGroupMemberEpoch || req.MemberEpoch == LeaveGroupStaticMemberEpoch {
		return m.streamsGroupLeave(req.GroupID, stringValue(req.InstanceID), req.MemberID, req.MemberEpoch)
	}
	return m.streamsGroupHeartbeat(ctx, req)
}

func validateStreamsGroupHeartbeat(req *StreamsGroupHeartbeatRequest) error {
	if req.GroupID == "" {
		return errors.Wrap(kerr.InvalidRequest, "group id can't be empty")
	}
	if req.InstanceID != nil && *req.InstanceID == "" {
		return errors.Wrap(kerr.InvalidRequest, "instance id can't be empty")
	}
	if req.RackID != nil && *req.RackID == "" {
		return errors.Wrap(kerr.InvalidRequest, "rack id can't be empty")
	}
	switch {
	case req.MemberEpoch == 0:
		if req.RebalanceTimeoutMs == -1 {
			return errors.Wrap(kerr.InvalidRequest, "rebalance timeout must be provided when joining")
		}
		if req.Topology == nil {
			return errors.Wrap(kerr.InvalidRequest, "topology must be provided when joining")
		}
		if len(req.ActiveTasks) > 0 || len(req.StandbyTasks) > 0 || len(req.WarmupTasks) > 0 {
			return errors.Wrap(kerr.InvalidRequest, "owned tasks must be empty when joining")
		}
	case req.MemberEpoch > 0 || req.MemberEpoch == LeaveGroupMemberEpoch:
		if req.MemberID == "" {
			return errors.Wrap(kerr.InvalidRequest, "member id can't be empty")
		}
	case req.MemberEpoch == LeaveGroupStaticMemberEpoch:
		if req.MemberID == "" {
			return errors.Wrap(kerr.InvalidRequest, "member id can't be empty")
		}
		if req.InstanceID == nil {
			return errors.Wrap(kerr.InvalidRequest, "instance id is required to leave temporarily")
		}
	default:
		return errors.Wrapf(kerr.InvalidRequest, "member epoch %d is invalid", req.MemberEpoch)
	}
	if req.Topology != nil {
		for _, s := range req.Topology.Subtopologies {
			if s.SubtopologyID == "" {
				return errors.Wrap(kerr.InvalidRequest, "subtopology id can't be empty")
			}
			if len(s.SourceTopics) == 0 {
				return errors.Wrapf(kerr.InvalidRequest, "subtopology %s has no source topic", s.SubtopologyID)
			}
		}
	}
	return nil
}

func (m *GroupMetadataManager) streamsGroupHeartbeat(ctx *RequestContext, req *StreamsGroupHeartbeatRequest) (model.Result[*StreamsGroupHeartbeatResponse], error) {
	var zero model.Result[*StreamsGroupHeartbeatResponse]
	groupID := req.GroupID
	group, err := m.streamsGroup(groupID, req.MemberEpoch == 0)
	if err != nil {
		return zero, err
	}
	memberID := req.MemberID
	if memberID == "" {
		memberID = newMemberID(ctx.ClientID)
	}
	var owned Assignment
	if req.ActiveTasks != nil {
		owned = AssignmentFromTaskIDs(req.ActiveTasks)
	}
	member, replaced, isNew, err := group.resolveMember(memberID, stringValue(req.InstanceID), req.MemberEpoch, owned, m.config.StreamsGroupMaxSize)
	if err != nil {
		return zero, err
	}

	var records []model.Record
	target := group.StreamsTarget(member.MemberID)
	if replaced != nil {
		target = group.StreamsTarget(replaced.MemberID)
		records = append(records,
			NewStreamsGroupCurrentAssignmentTombstoneRecord(groupID, replaced.MemberID),
			NewStreamsGroupTargetAssignmentTombstoneRecord(groupID, replaced.MemberID),
			NewStreamsGroupMemberTombstoneRecord(groupID, replaced.MemberID),
			NewStreamsGroupMemberRecord(groupID, member),
			NewStreamsGroupTargetAssignmentRecord(groupID, member.MemberID, target),
			NewStreamsGroupCurrentAssignmentRecord(groupID, member),
		)
		m.cancelMemberTimeouts(groupID, replaced.MemberID)
	}

	updated := member.Clone()
	updated.ClientID = ctx.ClientID
	updated.ClientHost = ctx.ClientHost
	if req.InstanceID != nil {
		updated.InstanceID = *req.InstanceID
	}
	if req.RackID != nil {
		updated.RackID = *req.RackID
	}
	if req.RebalanceTimeoutMs != -1 {
		updated.RebalanceTimeoutMs = req.RebalanceTimeoutMs
	}
	if req.ProcessID != "" {
		updated.ProcessID = req.ProcessID
	}
	if req.UserEndpoint != "" {
		updated.UserEndpoint = req.UserEndpoint
	}
	if req.ClientTags != nil {
		updated.ClientTags = req.ClientTags
	}
	if req.Topology != nil {
		updated.TopologyEpoch = req.Topology.Epoch
	}

	bumpGroupEpoch := isNew
	if isNew || !updated.sameMetadata(member) {
		records = append(records, NewStreamsGroupMemberRecord(groupID, updated))
	}

	topology, hasTopology := group.Topology()
	if req.Topology != nil {
		if !hasTopology {
			topology = req.Topology
			records = append(records, NewStreamsGroupTopologyRecord(groupID, topology))
			bumpGroupEpoch = true
		} else if req.Topology.Epoch != topology.Epoch {
			m.warn(groupID, "topology epoch %d ignored, group keeps topology epoch %d", req.Topology.Epoch, topology.Epoch)
		}
	}

	sources := make(map[string]bool)
	if topology != nil {
		for _, topic := range topology.SourceTopics() {
			sources[topic] = true
		}
	}
	metadata := m.subscriptionMetadata(sources)
	metadataHash := computeMetadataHash(metadata)
	if !sameMetadata(metadata, group.subscriptionMetadata) {
		records = append(records, NewStreamsGroupPartitionMetadataRecord(groupID, metadata))
		bumpGroupEpoch = true
	}
	groupEpoch := group.GroupEpoch()
	if bumpGroupEpoch {
		groupEpoch++
		records = append(records, NewStreamsGroupEpochRecord(groupID, groupEpoch, metadataHash))
	}

	assignmentEpoch := group.AssignmentEpoch()
	if groupEpoch > assignmentEpoch {
		var removed []string
		if replaced != nil {
			removed = append(removed, replaced.MemberID)
		}
		members := group.membersWith(updated, removed...)
		targets := make(map[string]StreamsTarget, len(members))
		for id := range members {
			targets[id] = group.StreamsTarget(id)
		}
		targets[updated.MemberID] = target
		assignments, err := m.computeStreamsTargetAssignment(groupID, topology, members, metadata, targets)
		if err != nil {
			return zero, err
		}
		for _, id := range sortedKeys(assignments) {
			if !assignments[id].Equal(targets[id]) || (isNew && id == updated.MemberID) {
				records = append(records, NewStreamsGroupTargetAssignmentRecord(groupID, id, assignments[id]))
			}
		}
		records = append(records, NewStreamsGroupTargetAssignmentEpochRecord(groupID, groupEpoch))
		target = assignments[updated.MemberID]
		assignmentEpoch = groupEpoch
	}

	next := reconcile(updated, target.Active, assignmentEpoch, owned, func(subtopology string, p int32) (string, bool) {
		owner, ok := group.ownerOf(subtopology, p)
		if ok && replaced != nil && owner == replaced.MemberID {
			return updated.MemberID, true
		}
		return owner, ok
	})
	next.StandbyTasks = target.Standby.Minus(next.Assigned)
	next.WarmupTasks = target.Warmup.Minus(next.Assigned)
	if isNew || !next.sameAssignment(member) {
		records = append(records, NewStreamsGroupCurrentAssignmentRecord(groupID, next))
	}

	m.scheduleSessionTimeout(StreamsGroupType, groupID, next.MemberID)
	if next.State == MemberStateUnrevokedPartitions {
		if member.State != MemberStateUnrevokedPartitions {
			m.scheduleRebalanceTimeout(groupID, next)
		}
	} else {
		m.cancelRebalanceTimeout(groupID, next.MemberID)
	}

	response := &StreamsGroupHeartbeatResponse{
		MemberID:            next.MemberID,
		MemberEpoch:         next.MemberEpoch,
		HeartbeatIntervalMs: int32(m.config.StreamsGroupHeartbeatIntervalMs),
	}
	if req.MemberEpoch == 0 || !next.sameAssignment(member) {
		response.ActiveTasks = next.Assigned.TaskIDs()
		response.StandbyTasks = next.StandbyTasks.TaskIDs()
		response.WarmupTasks = next.WarmupTasks.TaskIDs()
	}
	if missing := missingSourceTopics(topology, metadata); len(missing) > 0 {
		response.Status = append(response.Status, StreamsGroupStatus{
			Code:   StreamsStatusMissingSourceTopics,
			Detail: "Source topics " + strings.Join(missing, ", ") + " are missing.",
		})
	}
	if isNew {
		m.logger.GroupID(groupID).MemberID(next.MemberID).Infof("streams member joined with epoch %d", next.MemberEpoch)
	}
	return model.NewResult(records, response), nil
}

func (m *GroupMetadataManager) computeStreamsTargetAssignment(groupID string, topology *StreamsTopology, members map[string]*Member, metadata map[string]int32, targets map[string]StreamsTarget) (map[string]StreamsTarget, error) {
	specs := make(map[string]assignor.AssignmentMemberSpec, len(members))
	for id, member := range members {
		specs[id] = assignor.AssignmentMemberSpec{
			InstanceID:   member.InstanceID,
			RackID:       member.RackID,
			ActiveTasks:  targets[id].Active,
			StandbyTasks: targets[id].Standby,
			WarmupTasks:  targets[id].Warmup,
			ProcessID:    member.ProcessID,
			ClientTags:   member.ClientTags,
		}
	}
	configs := map[string]string{
		assignor.NumStandbyReplicasConfig: strconv.Itoa(m.config.StreamsGroupNumStandbyReplicas),
	}
	result, err := m.streamsAssignor.Assign(assignor.NewStreamsGroupSpec(specs, configs), newTopologyDescriber(topology, metadata))
	if err != nil {
		return nil, errors.Wrapf(kerr.UnknownServerError, "compute target assignment of streams group %s: %v", groupID, err)
	}
	assignments := make(map[string]StreamsTarget, len(members))
	for id := range members {
		tasks := result.Members[id]
		assignments[id] = StreamsTarget{
			Active:  Assignment(tasks.ActiveTasks).Clone(),
			Standby: Assignment(tasks.StandbyTasks).Clone(),
			Warmup:  Assignment(tasks.WarmupTasks).Clone(),
		}
	}
	return assignments, nil
}

func (m *GroupMetadataManager) streamsGroupLeave(groupID, instanceID, memberID string, memberEpoch int32) (model.Result[*StreamsGroupHeartbeatResponse], error) {
	var zero model.Result[*StreamsGroupHeartbeatResponse]
	group, err := m.streamsGroup(groupID, false)
	if err != nil {
		return zero, err
	}
	member, err := group.memberForLeave(memberID, instanceID)
	if err != nil {
		return zero, err
	}
	response := &StreamsGroupHeartbeatResponse{MemberID: memberID, MemberEpoch: memberEpoch}
	if memberEpoch == LeaveGroupStaticMemberEpoch {
		left := member.Clone()
		left.PreviousMemberEpoch = member.MemberEpoch
		left.MemberEpoch = LeaveGroupStaticMemberEpoch
		m.scheduleSessionTimeout(StreamsGroupType, groupID, memberID)
		return model.NewResult([]model.Record{NewStreamsGroupCurrentAssignmentRecord(groupID, left)}, response), nil
	}
	m.logger.GroupID(groupID).MemberID(memberID).Infof("streams member left the group")
	return model.NewResult(m.streamsGroupFenceMember(group, member), response), nil
}

func (m *GroupMetadataManager) streamsGroupFenceMember(group *StreamsGroup, member *Member) []model.Record {
	groupID := group.GroupID()
	records := []model.Record{
		NewStreamsGroupCurrentAssignmentTombstoneRecord(groupID, member.MemberID),
		NewStreamsGroupTargetAssignmentTombstoneRecord(groupID, member.MemberID),
		NewStreamsGroupMemberTombstoneRecord(groupID, member.MemberID),
		NewStreamsGroupEpochRecord(groupID, group.GroupEpoch()+1, group.MetadataHash()),
	}
	m.cancelMemberTimeouts(groupID, member.MemberID)
	return records
}
