package coordinator

import (
	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kerr"
)

// modernGroup holds the state shared by the consumer, share and streams
// groups: the members, their target assignment and the epochs driving the
// reconciliation.
type modernGroup struct {
	groupID         string
	groupEpoch      int32
	assignmentEpoch int32
	metadataHash    uint64

	members map[string]*Member
	// staticMembers maps an instance id to the member currently holding it.
	staticMembers        map[string]string
	targetAssignment     map[string]Assignment
	subscriptionMetadata map[string]int32
	// owners maps a partition to the member owning it, including the
	// partitions pending revocation.
	owners map[string]map[int32]string
}

func newModernGroup(groupID string) modernGroup {
	return modernGroup{
		groupID:              groupID,
		members:              make(map[string]*Member),
		staticMembers:        make(map[string]string),
		targetAssignment:     make(map[string]Assignment),
		subscriptionMetadata: make(map[string]int32),
		owners:               make(map[string]map[int32]string),
	}
}

func (g *modernGroup) GroupID() string {
	return g.groupID
}

func (g *modernGroup) GroupEpoch() int32 {
	return g.groupEpoch
}

func (g *modernGroup) AssignmentEpoch() int32 {
	return g.assignmentEpoch
}

func (g *modernGroup) MetadataHash() uint64 {
	return g.metadataHash
}

func (g *modernGroup) Size() int {
	return len(g.members)
}

func (g *modernGroup) IsEmpty() bool {
	return len(g.members) == 0
}

func (g *modernGroup) Member(memberID string) (*Member, bool) {
	member, ok := g.members[memberID]
	return member, ok
}

func (g *modernGroup) StaticMemberID(instanceID string) (string, bool) {
	memberID, ok := g.staticMembers[instanceID]
	return memberID, ok
}

func (g *modernGroup) MemberIDs() []string {
	return sortedKeys(g.members)
}

// TargetAssignment never returns nil.
func (g *modernGroup) TargetAssignment(memberID string) Assignment {
	target, ok := g.targetAssignment[memberID]
	if !ok {
		return Assignment{}
	}
	return target.Clone()
}

func (g *modernGroup) SubscriptionMetadata() map[string]int32 {
	metadata := make(map[string]int32, len(g.subscriptionMetadata))
	for topic, n := range g.subscriptionMetadata {
		metadata[topic] = n
	}
	return metadata
}

func (g *modernGroup) ownerOf(topic string, partition int32) (string, bool) {
	owner, ok := g.owners[topic][partition]
	return owner, ok
}

func (g *modernGroup) setGroupEpoch(epoch int32, metadataHash uint64) {
	g.groupEpoch = epoch
	g.metadataHash = metadataHash
}

func (g *modernGroup) setAssignmentEpoch(epoch int32) {
	g.assignmentEpoch = epoch
}

func (g *modernGroup) setSubscriptionMetadata(metadata map[string]int32) {
	g.subscriptionMetadata = metadata
}

// memberOrNew returns a copy of the member, or a new member.
func (g *modernGroup) memberOrNew(memberID string) *Member {
	if member, ok := g.members[memberID]; ok {
		return member.Clone()
	}
	return newMember(memberID)
}

// membersWith returns the members as they would be after replacing or adding
// updated and removing the given ids.
func (g *modernGroup) membersWith(updated *Member, removed ...string) map[string]*Member {
	members := make(map[string]*Member, len(g.members)+1)
	for id, member := range g.members {
		members[id] = member
	}
	for _, id := range removed {
		delete(members, id)
	}
	if updated != nil {
		members[updated.MemberID] = updated
	}
	return members
}

// updateMember replaces the member and keeps the static member and owner
// indexes in sync.
func (g *modernGroup) updateMember(member *Member) {
	if old, ok := g.members[member.MemberID]; ok {
		g.unindex(old)
	}
	g.members[member.MemberID] = member
	if member.InstanceID != "" {
		g.staticMembers[member.InstanceID] = member.MemberID
	}
	member.Assigned.each(func(topic string, p int32) { g.setOwner(topic, p, member.MemberID) })
	member.PendingRevocation.each(func(topic string, p int32) { g.setOwner(topic, p, member.MemberID) })
}

func (g *modernGroup) removeMember(memberID string) {
	member, ok := g.members[memberID]
	if !ok {
		return
	}
	g.unindex(member)
	delete(g.members, memberID)
	delete(g.targetAssignment, memberID)
}

func (g *modernGroup) unindex(member *Member) {
	if member.InstanceID != "" && g.staticMembers[member.InstanceID] == member.MemberID {
		delete(g.staticMembers, member.InstanceID)
	}
	release := func(topic string, p int32) {
		if g.owners[topic][p] == member.MemberID {
			delete(g.owners[topic], p)
			if len(g.owners[topic]) == 0 {
				delete(g.owners, topic)
			}
		}
	}
	member.Assigned.each(release)
	member.PendingRevocation.each(release)
}

func (g *modernGroup) setOwner(topic string, partition int32, memberID string) {
	partitions, ok := g.owners[topic]
	if !ok {
		partitions = make(map[int32]string)
		g.owners[topic] = partitions
	}
	partitions[partition] = memberID
}

// resetMemberAssignment applies a current assignment tombstone, the member
// keeps its metadata until the member tombstone arrives.
func (g *modernGroup) resetMemberAssignment(memberID string) {
	member, ok := g.members[memberID]
	if !ok {
		return
	}
	updated := member.Clone()
	updated.State = MemberStateStable
	updated.MemberEpoch = LeaveGroupMemberEpoch
	updated.PreviousMemberEpoch = LeaveGroupMemberEpoch
	updated.Assigned = Assignment{}
	updated.PendingRevocation = Assignment{}
	updated.StandbyTasks = Assignment{}
	updated.WarmupTasks = Assignment{}
	g.updateMember(updated)
}

func (g *modernGroup) setTargetAssignment(memberID string, target Assignment) {
	g.targetAssignment[memberID] = target
}

func (g *modernGroup) removeTargetAssignment(memberID string) {
	delete(g.targetAssignment, memberID)
}

// reconciliationState is the state of a group whose members converge to a
// target assignment.
func (g *modernGroup) reconciliationState() GroupState {
	if len(g.members) == 0 {
		return GroupStateEmpty
	}
	if g.groupEpoch > g.assignmentEpoch {
		return GroupStateAssigning
	}
	for _, member := range g.members {
		if member.MemberEpoch != g.assignmentEpoch || member.State != MemberStateStable {
			return GroupStateReconciling
		}
	}
	return GroupStateStable
}

// validateMemberEpoch checks the member epoch attached to offset requests.
func (g *modernGroup) validateMemberEpoch(memberID string, memberEpoch int32) error {
	member, ok := g.members[memberID]
	if !ok {
		return errors.Wrapf(kerr.UnknownMemberID, "member %s is not a member of group %s", memberID, g.groupID)
	}
	if memberEpoch > member.MemberEpoch {
		return errors.Wrapf(kerr.FencedMemberEpoch, "received member epoch %d is larger than the current member epoch %d",
			memberEpoch, member.MemberEpoch)
	}
	if memberEpoch < member.MemberEpoch {
		return errors.Wrapf(kerr.StaleMemberEpoch, "received member epoch %d is smaller than the current member epoch %d",
			memberEpoch, member.MemberEpoch)
	}
	return nil
}

// resolveMember returns a copy of the member a heartbeat is about. Joining
// members are created, a static member rejoining under a new member id takes
// over the state of its previous incarnation which is returned as replaced.
func (g *modernGroup) resolveMember(memberID, instanceID string, memberEpoch int32, owned Assignment, maxSize int) (member *Member, replaced *Member, isNew bool, err error) {
	if instanceID == "" {
		existing, ok := g.members[memberID]
		if memberEpoch == 0 {
			if ok {
				return existing.Clone(), nil, false, nil
			}
			if len(g.members) >= maxSize {
				return nil, nil, false, errors.Wrapf(kerr.GroupMaxSizeReached, "group %s has reached its maximum size %d", g.groupID, maxSize)
			}
			return newMember(memberID), nil, true, nil
		}
		if !ok {
			return nil, nil, false, errors.Wrapf(kerr.UnknownMemberID, "member %s is not a member of group %s", memberID, g.groupID)
		}
		if err := validateHeartbeatEpoch(existing, memberEpoch, owned); err != nil {
			return nil, nil, false, err
		}
		return existing.Clone(), nil, false, nil
	}

	holderID, held := g.staticMembers[instanceID]
	if memberEpoch == 0 {
		if !held {
			if existing, ok := g.members[memberID]; ok {
				return existing.Clone(), nil, false, nil
			}
			if len(g.members) >= maxSize {
				return nil, nil, false, errors.Wrapf(kerr.GroupMaxSizeReached, "group %s has reached its maximum size %d", g.groupID, maxSize)
			}
			return newMember(memberID), nil, true, nil
		}
		holder := g.members[holderID]
		if holderID == memberID {
			return holder.Clone(), nil, false, nil
		}
		if holder.MemberEpoch != LeaveGroupStaticMemberEpoch {
			return nil, nil, false, errors.Wrapf(kerr.UnreleasedInstanceID, "static member %s with instance id %s is still active",
				holderID, instanceID)
		}
		successor := holder.Clone()
		successor.MemberID = memberID
		successor.MemberEpoch = 0
		successor.PreviousMemberEpoch = 0
		return successor, holder, false, nil
	}

	if !held {
		return nil, nil, false, errors.Wrapf(kerr.UnknownMemberID, "instance id %s is unknown in group %s", instanceID, g.groupID)
	}
	if holderID != memberID {
		return nil, nil, false, errors.Wrapf(kerr.FencedInstanceID, "instance id %s is held by member %s, not %s",
			instanceID, holderID, memberID)
	}
	existing := g.members[holderID]
	if err := validateHeartbeatEpoch(existing, memberEpoch, owned); err != nil {
		return nil, nil, false, err
	}
	return existing.Clone(), nil, false, nil
}

// memberForLeave finds the member sending a leave heartbeat.
func (g *modernGroup) memberForLeave(memberID, instanceID string) (*Member, error) {
	if instanceID == "" {
		member, ok := g.members[memberID]
		if !ok {
			return nil, errors.Wrapf(kerr.UnknownMemberID, "member %s is not a member of group %s", memberID, g.groupID)
		}
		return member, nil
	}
	holderID, ok := g.staticMembers[instanceID]
	if !ok {
		return nil, errors.Wrapf(kerr.UnknownMemberID, "instance id %s is unknown in group %s", instanceID, g.groupID)
	}
	if holderID != memberID {
		return nil, errors.Wrapf(kerr.FencedInstanceID, "instance id %s is held by member %s, not %s",
			instanceID, holderID, memberID)
	}
	return g.members[holderID], nil
}

// validateHeartbeatEpoch fences members whose epoch diverged. A member may
// still send its previous epoch as long as it only owns partitions of its
// current assignment.
func validateHeartbeatEpoch(member *Member, receivedEpoch int32, owned Assignment) error {
	if receivedEpoch > member.MemberEpoch {
		return errors.Wrapf(kerr.FencedMemberEpoch, "member %s sent epoch %d greater than the known epoch %d",
			member.MemberID, receivedEpoch, member.MemberEpoch)
	}
	if receivedEpoch < member.MemberEpoch {
		if receivedEpoch != member.PreviousMemberEpoch || owned == nil || !owned.Minus(member.Assigned).IsEmpty() {
			return errors.Wrapf(kerr.FencedMemberEpoch, "member %s sent epoch %d smaller than the known epoch %d",
				member.MemberID, receivedEpoch, member.MemberEpoch)
		}
	}
	return nil
}

func (g *modernGroup) describeMembers() []DescribedMember {
	members := make([]DescribedMember, 0, len(g.members))
	for _, id := range g.MemberIDs() {
		members = append(members, g.members[id].describe(g.TargetAssignment(id)))
	}
	return members
}
