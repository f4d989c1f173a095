package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the authorization core.
type Store interface {
	Churches(ctx context.Context) ChurchStore
	Users(ctx context.Context) UserStore
	Memberships(ctx context.Context) MembershipStore
	VolunteerRoles(ctx context.Context) VolunteerRoleStore
	Assignments(ctx context.Context) AssignmentStore
	Groups(ctx context.Context) GroupStore
	Permissions(ctx context.Context) PermissionStore
}

// ChurchStore manages tenants.
type ChurchStore interface {
	Create(ctx context.Context, church *Church) error
	Find(ctx context.Context, id string) (*Church, error)
	FindByCode(ctx context.Context, code string) (*Church, error)
	List(ctx context.Context) ([]*Church, error)
}

// UserStore manages global accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// MembershipStore manages church memberships.
type MembershipStore interface {
	Create(ctx context.Context, m *Membership) error
	Find(ctx context.Context, id string) (*Membership, error)
	FindByUserAndChurch(ctx context.Context, userID, churchID string) (*Membership, error)
	ListByChurch(ctx context.Context, churchID string) ([]*Membership, error)
	SetRole(ctx context.Context, id string, role CoarseRole) error
	SetActive(ctx context.Context, id string, active bool) error
}

// VolunteerRoleStore manages ministry role templates and their target groups.
type VolunteerRoleStore interface {
	Create(ctx context.Context, role *VolunteerRole) error
	Find(ctx context.Context, id string) (*VolunteerRole, error)
	ListByChurch(ctx context.Context, churchID string) ([]*VolunteerRole, error)
	Update(ctx context.Context, role *VolunteerRole) error
	SetActive(ctx context.Context, id string, active bool) error
	SetTargetGroups(ctx context.Context, roleID string, groupIDs []string) error
	TargetGroups(ctx context.Context, roleID string) ([]string, error)
}

// AssignmentStore manages volunteer assignments.
type AssignmentStore interface {
	Create(ctx context.Context, a *VolunteerAssignment) error
	Find(ctx context.Context, id string) (*VolunteerAssignment, error)
	ListByMembership(ctx context.Context, membershipID string) ([]VolunteerAssignment, error)
	ListActiveByMembership(ctx context.Context, membershipID string, day time.Time) ([]VolunteerAssignment, error)
	ListByRole(ctx context.Context, roleID string) ([]VolunteerAssignment, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// GroupStore manages the minimal group entities scope checks need.
type GroupStore interface {
	Create(ctx context.Context, g *Group) error
	Find(ctx context.Context, id string) (*Group, error)
	ListByChurch(ctx context.Context, churchID string) ([]*Group, error)
}

// PermissionStore persists the permission catalog.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []PermissionMeta) error
	List(ctx context.Context) ([]PermissionMeta, error)
}
