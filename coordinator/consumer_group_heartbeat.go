package coordinator

import (
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/assignor"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"github.com/twmb/franz-go/pkg/kerr"
	"regexp"
)

// ConsumerGroupHeartbeat arms member timeouts only once the returned
// records are appended.
func (m *GroupMetadataManager) ConsumerGroupHeartbeat(ctx *RequestContext, req *ConsumerGroupHeartbeatRequest) (model.Result[*ConsumerGroupHeartbeatResponse], error) {
	return withDeferredTimers(m, func() (model.Result[*ConsumerGroupHeartbeatResponse], error) {
		return m.handleConsumerGroupHeartbeat(ctx, req)
	})
}

func (m *GroupMetadataManager) handleConsumerGroupHeartbeat(ctx *RequestContext, req *ConsumerGroupHeartbeatRequest) (model.Result[*ConsumerGroupHeartbeatResponse], error) {
	if err := m.validateConsumerGroupHeartbeat(req); err != nil {
		return model.Result[*ConsumerGroupHeartbeatResponse]{}, err
	}
	if req.MemberEpoch == LeaveGroupMemberEpoch || req.MemberEpoch == LeaveGroupStaticMemberEpoch {
		return m.consumerGroupLeave(req.GroupID, stringValue(req.InstanceID), req.MemberID, req.MemberEpoch)
	}
	return m.consumerGroupHeartbeat(ctx, req)
}

func (m *GroupMetadataManager) validateConsumerGroupHeartbeat(req *ConsumerGroupHeartbeatRequest) error {
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
	case req.MemberEpoch > 0 || req.MemberEpoch == LeaveGroupMemberEpoch:
		if req.MemberID == "" {
			return errors.Wrap(kerr.InvalidRequest, "member id can't be empty")
		}
	case req.MemberEpoch == 0:
		if req.RebalanceTimeoutMs == -1 {
			return errors.Wrap(kerr.InvalidRequest, "rebalance timeout must be provided when joining")
		}
		if len(req.TopicPartitions) > 0 {
			return errors.Wrap(kerr.InvalidRequest, "owned partitions must be empty when joining")
		}
		if req.SubscribedTopicNames == nil && req.SubscribedTopicRegex == nil {
			return errors.Wrap(kerr.InvalidRequest, "subscribed topic names or regex must be set when joining")
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
	if req.ServerAssignor != nil {
		if _, ok := m.consumerAssignors[*req.ServerAssignor]; !ok {
			return errors.Wrapf(kerr.UnsupportedAssignor, "assignor %s is not supported, supported assignors: %v",
				*req.ServerAssignor, sortedKeys(m.consumerAssignors))
		}
	}
	if req.SubscribedTopicRegex != nil && *req.SubscribedTopicRegex != "" {
		if _, err := compileSubscriptionRegex(*req.SubscribedTopicRegex); err != nil {
			return errors.Wrapf(ErrInvalidRegularExpression, "regex %s: %v", *req.SubscribedTopicRegex, err)
		}
	}
	return nil
}

func (m *GroupMetadataManager) consumerGroupHeartbeat(ctx *RequestContext, req *ConsumerGroupHeartbeatRequest) (model.Result[*ConsumerGroupHeartbeatResponse], error) {
	var zero model.Result[*ConsumerGroupHeartbeatResponse]
	groupID := req.GroupID
	group, err := m.consumerGroup(groupID, req.MemberEpoch == 0)
	if err != nil {
		return zero, err
	}

	memberID := req.MemberID
	if memberID == "" {
		memberID = newMemberID(ctx.ClientID)
	}
	var owned Assignment
	if req.TopicPartitions != nil {
		owned = AssignmentFromTopicPartitions(req.TopicPartitions)
	}
	member, replaced, isNew, err := group.resolveMember(memberID, stringValue(req.InstanceID), req.MemberEpoch, owned, m.config.ConsumerGroupMaxSize)
	if err != nil {
		return zero, err
	}

	var records []model.Record
	target := group.TargetAssignment(member.MemberID)
	if replaced != nil {
		target = group.TargetAssignment(replaced.MemberID)
		records = append(records,
			NewConsumerGroupCurrentAssignmentTombstoneRecord(groupID, replaced.MemberID),
			NewConsumerGroupTargetAssignmentTombstoneRecord(groupID, replaced.MemberID),
			NewConsumerGroupMemberSubscriptionTombstoneRecord(groupID, replaced.MemberID),
			NewConsumerGroupMemberSubscriptionRecord(groupID, member),
			NewConsumerGroupTargetAssignmentRecord(groupID, member.MemberID, target),
			NewConsumerGroupCurrentAssignmentRecord(groupID, member),
		)
		m.cancelMemberTimeouts(groupID, replaced.MemberID)
		m.logger.GroupID(groupID).MemberID(member.MemberID).Infof("static member %s replaced member %s",
			member.InstanceID, replaced.MemberID)
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
	if req.ServerAssignor != nil {
		updated.ServerAssignor = *req.ServerAssignor
	}
	if req.SubscribedTopicNames != nil {
		updated.SubscribedTopicNames = sortedStrings(req.SubscribedTopicNames)
	}
	if req.SubscribedTopicRegex != nil {
		updated.SubscribedTopicRegex = *req.SubscribedTopicRegex
	}

	bumpGroupEpoch := isNew
	if isNew || !updated.sameMetadata(member) {
		records = append(records, NewConsumerGroupMemberSubscriptionRecord(groupID, updated))
		if !updated.sameSubscription(member) || updated.ServerAssignor != member.ServerAssignor {
			bumpGroupEpoch = true
		}
	}

	nowMs := m.clock.Now().UnixMilli()
	var removed []string
	if replaced != nil {
		removed = append(removed, replaced.MemberID)
	}
	members := group.membersWith(updated, removed...)
	regexes, records := m.updateRegexes(group, members, nowMs, records)
	metadata := m.subscriptionMetadata(consumerSubscribedTopics(group, members, regexes))
	metadataHash := computeMetadataHash(metadata)
	if !sameMetadata(metadata, group.subscriptionMetadata) {
		records = append(records, NewConsumerGroupSubscriptionMetadataRecord(groupID, metadata))
		bumpGroupEpoch = true
	}

	groupEpoch := group.GroupEpoch()
	if bumpGroupEpoch {
		groupEpoch++
		records = append(records, NewConsumerGroupEpochRecord(groupID, groupEpoch, metadataHash))
		m.logger.GroupID(groupID).Infof("bumped group epoch to %d", groupEpoch)
	}

	assignmentEpoch := group.AssignmentEpoch()
	if groupEpoch > assignmentEpoch {
		targets := make(map[string]Assignment, len(members))
		for id := range members {
			targets[id] = group.TargetAssignment(id)
		}
		targets[updated.MemberID] = target
		assignments, err := m.computeConsumerTargetAssignment(group, members, regexes, metadata, targets)
		if err != nil {
			return zero, err
		}
		for _, id := range sortedKeys(assignments) {
			if !assignments[id].Equal(targets[id]) || (isNew && id == updated.MemberID) {
				records = append(records, NewConsumerGroupTargetAssignmentRecord(groupID, id, assignments[id]))
			}
		}
		records = append(records, NewConsumerGroupTargetAssignmentEpochRecord(groupID, groupEpoch))
		target = assignments[updated.MemberID]
		assignmentEpoch = groupEpoch
	}

	next := reconcile(updated, target, assignmentEpoch, owned, func(topic string, p int32) (string, bool) {
		owner, ok := group.ownerOf(topic, p)
		if ok && replaced != nil && owner == replaced.MemberID {
			return updated.MemberID, true
		}
		return owner, ok
	})
	if isNew || !next.sameAssignment(member) {
		records = append(records, NewConsumerGroupCurrentAssignmentRecord(groupID, next))
	}

	m.scheduleSessionTimeout(ConsumerGroupType, groupID, next.MemberID)
	if next.State == MemberStateUnrevokedPartitions {
		if member.State != MemberStateUnrevokedPartitions {
			m.scheduleRebalanceTimeout(groupID, next)
		}
	} else {
		m.cancelRebalanceTimeout(groupID, next.MemberID)
	}

	response := &ConsumerGroupHeartbeatResponse{
		MemberID:            next.MemberID,
		MemberEpoch:         next.MemberEpoch,
		HeartbeatIntervalMs: int32(m.config.ConsumerGroupHeartbeatIntervalMs),
	}
	if req.MemberEpoch == 0 || !next.Assigned.Equal(member.Assigned) || (owned != nil && !owned.Equal(next.Assigned)) {
		response.Assignment = next.Assigned.TopicPartitions()
	}
	if isNew {
		m.logger.GroupID(groupID).MemberID(next.MemberID).Infof("member joined with epoch %d", next.MemberEpoch)
	}
	return model.NewResult(records, response), nil
}

func (m *GroupMetadataManager) consumerGroupLeave(groupID, instanceID, memberID string, memberEpoch int32) (model.Result[*ConsumerGroupHeartbeatResponse], error) {
	var zero model.Result[*ConsumerGroupHeartbeatResponse]
	group, err := m.consumerGroup(groupID, false)
	if err != nil {
		return zero, err
	}
	member, err := group.memberForLeave(memberID, instanceID)
	if err != nil {
		return zero, err
	}
	response := &ConsumerGroupHeartbeatResponse{MemberID: memberID, MemberEpoch: memberEpoch}
	if memberEpoch == LeaveGroupStaticMemberEpoch {
		left := member.Clone()
		left.PreviousMemberEpoch = member.MemberEpoch
		left.MemberEpoch = LeaveGroupStaticMemberEpoch
		// the member is fenced if it does not come back in time
		m.scheduleSessionTimeout(ConsumerGroupType, groupID, memberID)
		m.logger.GroupID(groupID).MemberID(memberID).Infof("static member %s left temporarily", instanceID)
		return model.NewResult([]model.Record{NewConsumerGroupCurrentAssignmentRecord(groupID, left)}, response), nil
	}
	m.logger.GroupID(groupID).MemberID(memberID).Infof("member left the group")
	return model.NewResult(m.consumerGroupFenceMember(group, member), response), nil
}

// consumerGroupFenceMember removes a member and bumps the group epoch so the
// remaining members get its partitions.
func (m *GroupMetadataManager) consumerGroupFenceMember(group *ConsumerGroup, member *Member) []model.Record {
	groupID := group.GroupID()
	records := []model.Record{
		NewConsumerGroupCurrentAssignmentTombstoneRecord(groupID, member.MemberID),
		NewConsumerGroupTargetAssignmentTombstoneRecord(groupID, member.MemberID),
		NewConsumerGroupMemberSubscriptionTombstoneRecord(groupID, member.MemberID),
	}
	members := group.membersWith(nil, member.MemberID)
	regexes, records := m.updateRegexes(group, members, m.clock.Now().UnixMilli(), records)
	metadata := m.subscriptionMetadata(consumerSubscribedTopics(group, members, regexes))
	if !sameMetadata(metadata, group.subscriptionMetadata) {
		records = append(records, NewConsumerGroupSubscriptionMetadataRecord(groupID, metadata))
	}
	records = append(records, NewConsumerGroupEpochRecord(groupID, group.GroupEpoch()+1, computeMetadataHash(metadata)))
	m.cancelMemberTimeouts(groupID, member.MemberID)
	return records
}

// updateRegexes resolves the regexes subscribed by the given members against
// the current image and drops the ones nobody subscribes anymore.
func (m *GroupMetadataManager) updateRegexes(group *ConsumerGroup, members map[string]*Member, nowMs int64, records []model.Record) (map[string]ResolvedRegex, []model.Record) {
	subscribed := make(map[string]bool)
	for _, member := range members {
		if member.SubscribedTopicRegex != "" {
			subscribed[member.SubscribedTopicRegex] = true
		}
	}
	resolved := make(map[string]ResolvedRegex, len(subscribed))
	for _, regex := range sortedKeys(subscribed) {
		current, ok := group.ResolvedRegex(regex)
		if ok && current.Version == m.image.Version {
			resolved[regex] = current
			continue
		}
		topics, err := m.resolveRegex(regex)
		if err != nil {
			m.warn(group.GroupID(), "failed to resolve regex %s: %v", regex, err)
			continue
		}
		next := ResolvedRegex{Topics: topics, Version: m.image.Version, TimestampMs: nowMs}
		resolved[regex] = next
		records = append(records, NewConsumerGroupRegularExpressionRecord(group.GroupID(), regex, next))
	}
	for _, regex := range sortedKeys(group.resolvedRegexes) {
		if !subscribed[regex] {
			records = append(records, NewConsumerGroupRegularExpressionTombstoneRecord(group.GroupID(), regex))
		}
	}
	return resolved, records
}

func (m *GroupMetadataManager) resolveRegex(regex string) ([]string, error) {
	re, err := compileSubscriptionRegex(regex)
	if err != nil {
		return nil, err
	}
	topics := make([]string, 0)
	for _, name := range m.image.TopicNames() {
		if re.MatchString(name) {
			topics = append(topics, name)
		}
	}
	return topics, nil
}

// compileSubscriptionRegex compiles a regex matching whole topic names.
func compileSubscriptionRegex(regex string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + regex + ")$")
}

func consumerSubscribedTopics(group *ConsumerGroup, members map[string]*Member, regexes map[string]ResolvedRegex) map[string]bool {
	topics := make(map[string]bool)
	for _, member := range members {
		for _, topic := range group.subscribedTopics(member, regexes) {
			topics[topic] = true
		}
	}
	return topics
}

func (m *GroupMetadataManager) computeConsumerTargetAssignment(group *ConsumerGroup, members map[string]*Member, regexes map[string]ResolvedRegex, metadata map[string]int32, targets map[string]Assignment) (map[string]Assignment, error) {
	specs := make(map[string]assignor.MemberSubscriptionSpec, len(members))
	for id, member := range members {
		specs[id] = assignor.MemberSubscriptionSpec{
			RackID:           member.RackID,
			InstanceID:       member.InstanceID,
			SubscribedTopics: group.subscribedTopics(member, regexes),
			Assignment:       targets[id],
		}
	}
	topics := make(assignor.TopicPartitionCounts, len(metadata))
	for topic, n := range metadata {
		topics[topic] = int(n)
	}
	a := m.consumerGroupAssignor(members)
	result, err := a.Assign(assignor.NewGroupSpec(specs), topics)
	if err != nil {
		return nil, errors.Wrapf(kerr.UnknownServerError, "compute target assignment of group %s with %s: %v",
			group.GroupID(), a.Name(), err)
	}
	assignments := make(map[string]Assignment, len(members))
	for id := range members {
		assignments[id] = Assignment(result.Members[id].Partitions).Clone()
	}
	return assignments, nil
}

// consumerGroupAssignor picks the server assignor preferred by most members,
// the configured default otherwise.
func (m *GroupMetadataManager) consumerGroupAssignor(members map[string]*Member) assignor.PartitionAssignor {
	votes := make(map[string]int)
	for _, member := range members {
		if member.ServerAssignor != "" {
			votes[member.ServerAssignor]++
		}
	}
	best := ""
	for _, name := range sortedKeys(votes) {
		if best == "" || votes[name] > votes[best] {
			best = name
		}
	}
	if a, ok := m.consumerAssignors[best]; ok {
		return a
	}
	return m.defaultConsumerAssignor
}
