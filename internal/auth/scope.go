package auth

// IsOwnData reports whether the target belongs to the given user: its
// creator, its direct user reference, or its linked member's user. The
// checks run in that order; any present and matching reference grants.
func IsOwnData(target TargetRef, userID string) bool {
	if userID == "" {
		return false
	}
	if target.OwnerID != "" && target.OwnerID == userID {
		return true
	}
	if target.UserID != "" && target.UserID == userID {
		return true
	}
	if target.MemberUserID != "" && target.MemberUserID == userID {
		return true
	}
	return false
}

// IsInOwnGroup reports whether the target falls inside one of the role's
// target groups: directly, through the object's own group memberships, or
// through the linked member's group memberships. A role with no target
// groups never grants own_group access.
func IsInOwnGroup(role VolunteerRole, target TargetRef) bool {
	if len(role.TargetGroupIDs) == 0 {
		return false
	}
	managed := make(map[string]struct{}, len(role.TargetGroupIDs))
	for _, id := range role.TargetGroupIDs {
		managed[id] = struct{}{}
	}
	if target.GroupID != "" {
		if _, ok := managed[target.GroupID]; ok {
			return true
		}
	}
	for _, id := range target.GroupIDs {
		if _, ok := managed[id]; ok {
			return true
		}
	}
	for _, id := range target.MemberGroupIDs {
		if _, ok := managed[id]; ok {
			return true
		}
	}
	return false
}
