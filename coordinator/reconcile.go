package coordinator

// reconcile moves the current assignment of a member one step toward its
// target. Partitions leaving the member are revoked first and the member
// keeps its epoch until it acknowledges the revocation. Partitions still
// owned by another member are handed over once released.
func reconcile(member *Member, target Assignment, targetEpoch int32, owned Assignment, ownerOf func(topic string, partition int32) (string, bool)) *Member {
	next := member.Clone()
	switch {
	case member.State == MemberStateUnrevokedPartitions:
		if owned == nil || !owned.Intersect(member.PendingRevocation).IsEmpty() {
			return next
		}
		next.PendingRevocation = Assignment{}
	case member.MemberEpoch == targetEpoch && member.State == MemberStateStable:
		return next
	}

	kept := next.Assigned.Intersect(target)
	revoked := next.Assigned.Minus(target)
	if !revoked.IsEmpty() {
		next.Assigned = kept
		next.PendingRevocation = revoked
		next.State = MemberStateUnrevokedPartitions
		return next
	}

	assigned := kept
	unreleased := false
	target.Minus(kept).each(func(topic string, p int32) {
		if owner, ok := ownerOf(topic, p); ok && owner != member.MemberID {
			unreleased = true
			return
		}
		assigned.add(topic, p)
	})
	next.Assigned = assigned
	next.PendingRevocation = Assignment{}
	if member.MemberEpoch != targetEpoch {
		next.PreviousMemberEpoch = member.MemberEpoch
		next.MemberEpoch = targetEpoch
	}
	if unreleased {
		next.State = MemberStateUnreleasedPartitions
	} else {
		next.State = MemberStateStable
	}
	return next
}
