package auth

import "time"

// CoarseRole is the broad privilege tier a membership carries inside one church.
type CoarseRole string

const (
	RoleSuperAdmin  CoarseRole = "super_admin"
	RoleChurchAdmin CoarseRole = "church_admin"
	RoleChurchStaff CoarseRole = "church_staff"
	RoleMember      CoarseRole = "member"
)

// Valid reports whether the role is one of the known tiers.
func (r CoarseRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleChurchAdmin, RoleChurchStaff, RoleMember:
		return true
	}
	return false
}

// Church is the tenant boundary; every other record belongs to exactly one church.
type Church struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Code      string            `json:"code"`
	Timezone  string            `json:"timezone,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// User is a global, tenant-independent account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsSuperuser  bool      `json:"is_superuser"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Membership binds a user to a church with a coarse role. Memberships are
// deactivated rather than deleted so the audit trail stays intact.
type Membership struct {
	ID       string     `json:"id"`
	UserID   string     `json:"user_id"`
	ChurchID string     `json:"church_id"`
	Role     CoarseRole `json:"role"`
	Name     string     `json:"name"`
	Phone    string     `json:"phone,omitempty"`
	IsActive bool       `json:"is_active"`
	JoinedAt time.Time  `json:"joined_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the membership holds administrator privileges.
func (m Membership) IsAdmin() bool {
	return m.Role == RoleSuperAdmin || m.Role == RoleChurchAdmin
}

// IsStaff reports whether the membership holds at least staff privileges.
func (m Membership) IsStaff() bool {
	return m.IsAdmin() || m.Role == RoleChurchStaff
}

// VolunteerRole is a church-defined ministry role template: a default
// permission set plus the groups the role is responsible for.
type VolunteerRole struct {
	ID                 string    `json:"id"`
	ChurchID           string    `json:"church_id"`
	Name               string    `json:"name"`
	Code               string    `json:"code"`
	Category           string    `json:"category"`
	Description        string    `json:"description,omitempty"`
	RequiredLevel      int       `json:"required_level"`
	RequiresTraining   bool      `json:"requires_training"`
	DefaultPermissions []string  `json:"default_permissions"`
	TargetGroupIDs     []string  `json:"target_group_ids"`
	IsActive           bool      `json:"is_active"`
	CreatedBy          string    `json:"created_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// VolunteerAssignment binds a membership to a volunteer role. Custom
// permissions are additive to the role's defaults.
type VolunteerAssignment struct {
	ID                string     `json:"id"`
	MembershipID      string     `json:"membership_id"`
	RoleID            string     `json:"role_id"`
	CustomPermissions []string   `json:"custom_permissions"`
	StartsOn          *time.Time `json:"starts_on,omitempty"`
	EndsOn            *time.Time `json:"ends_on,omitempty"`
	IsActive          bool       `json:"is_active"`
	ApprovedBy        string     `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ActiveOn reports whether the assignment is in force on the given day.
// Unset bounds are open-ended.
func (a VolunteerAssignment) ActiveOn(day time.Time) bool {
	if !a.IsActive {
		return false
	}
	day = day.Truncate(24 * time.Hour)
	if a.StartsOn != nil && day.Before(a.StartsOn.Truncate(24*time.Hour)) {
		return false
	}
	if a.EndsOn != nil && day.After(a.EndsOn.Truncate(24*time.Hour)) {
		return false
	}
	return true
}

// Group is the minimal group entity the authorization path needs for
// own_group scope checks.
type Group struct {
	ID        string    `json:"id"`
	ChurchID  string    `json:"church_id"`
	Name      string    `json:"name"`
	GroupType string    `json:"group_type,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResolvedAssignment is an assignment joined with its role and the flattened
// effective permission set (role defaults united with assignment customs).
type ResolvedAssignment struct {
	Assignment  VolunteerAssignment
	Role        VolunteerRole
	Permissions []string
}

// HasPermission reports whether the effective permission set contains code.
func (ra ResolvedAssignment) HasPermission(code string) bool {
	for _, p := range ra.Permissions {
		if p == code {
			return true
		}
	}
	return false
}

// Snapshot is the cached view of one user's standing inside one church.
type Snapshot struct {
	Membership  Membership
	Assignments []ResolvedAssignment
	ResolvedAt  time.Time
}

// PrincipalRef identifies the caller for an authorization decision.
type PrincipalRef struct {
	ID        string
	Superuser bool
}

// TargetRef is the structural view of a target object the caller populates
// from whatever concrete domain record it holds. The engine never sees
// concrete domain types.
type TargetRef struct {
	ChurchID       string   `json:"church_id,omitempty"`
	OwnerID        string   `json:"owner_id,omitempty"`        // created_by-equivalent user id
	UserID         string   `json:"user_id,omitempty"`         // direct user reference
	MemberID       string   `json:"member_id,omitempty"`       // linked member record
	MemberUserID   string   `json:"member_user_id,omitempty"`  // the linked member's user id
	GroupID        string   `json:"group_id,omitempty"`        // direct group reference
	GroupIDs       []string `json:"group_ids,omitempty"`       // group memberships of the object itself
	MemberGroupIDs []string `json:"member_group_ids,omitempty"` // group memberships of the linked member
}
