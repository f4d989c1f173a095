package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service provides the mutation side of the authorization data model:
// churches, users, memberships, volunteer roles and assignments. Every
// permission list is validated against the catalog before it is persisted,
// and every write that can change a user's effective permissions evicts the
// affected snapshot cache entries before the call returns.
type Service struct {
	store   Store
	catalog *Catalog
	cache   *SnapshotCache
	now     func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceCache attaches the snapshot cache the engine reads through, so
// writes can invalidate it.
func WithServiceCache(cache *SnapshotCache) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, catalog *Catalog, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: service store is required")
	}
	if catalog == nil {
		return nil, errors.New("auth: service catalog is required")
	}
	s := &Service{store: store, catalog: catalog, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureBuiltins seeds the permission catalog into the store. Safe to run on
// every startup.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.Permissions(ctx).Ensure(ctx, BuiltinPermissions())
}

// Catalog exposes the in-memory permission registry.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// RegisterChurch creates a tenant.
func (s *Service) RegisterChurch(ctx context.Context, name, code, timezone string) (*Church, error) {
	name = strings.TrimSpace(name)
	code = strings.TrimSpace(strings.ToUpper(code))
	if name == "" || code == "" {
		return nil, fmt.Errorf("%w: church name and code are required", ErrInvalidInput)
	}
	church := &Church{Name: name, Code: code, Timezone: strings.TrimSpace(timezone)}
	if err := s.store.Churches(ctx).Create(ctx, church); err != nil {
		return nil, err
	}
	return church, nil
}

// CreateUser registers a global account with a hashed password.
func (s *Service) CreateUser(ctx context.Context, email, password string, superuser bool) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	u := &User{Email: email, PasswordHash: hash, IsSuperuser: superuser, Status: UserStatusActive}
	if err := s.store.Users(ctx).Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// AddMembership binds a user to a church with a coarse role. A user holds at
// most one membership per church.
func (s *Service) AddMembership(ctx context.Context, userID, churchID string, role CoarseRole, name string) (*Membership, error) {
	userID = strings.TrimSpace(userID)
	churchID = strings.TrimSpace(churchID)
	if userID == "" || churchID == "" {
		return nil, fmt.Errorf("%w: user_id and church_id are required", ErrInvalidInput)
	}
	if role == "" {
		role = RoleMember
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	m := &Membership{
		UserID:   userID,
		ChurchID: churchID,
		Role:     role,
		Name:     strings.TrimSpace(name),
		IsActive: true,
	}
	if err := s.store.Memberships(ctx).Create(ctx, m); err != nil {
		return nil, err
	}
	s.cache.Invalidate(userID, churchID)
	return m, nil
}

// SetMembershipRole changes a membership's coarse role.
func (s *Service) SetMembershipRole(ctx context.Context, membershipID string, role CoarseRole) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	m, err := s.store.Memberships(ctx).Find(ctx, membershipID)
	if err != nil {
		return err
	}
	if err := s.store.Memberships(ctx).SetRole(ctx, membershipID, role); err != nil {
		return err
	}
	s.cache.Invalidate(m.UserID, m.ChurchID)
	return nil
}

// DeactivateMembership retires a membership without deleting it. The cached
// snapshot for the pair is evicted before the call returns so the revocation
// is immediately authoritative.
func (s *Service) DeactivateMembership(ctx context.Context, membershipID string) error {
	m, err := s.store.Memberships(ctx).Find(ctx, membershipID)
	if err != nil {
		return err
	}
	if err := s.store.Memberships(ctx).SetActive(ctx, membershipID, false); err != nil {
		return err
	}
	s.cache.Invalidate(m.UserID, m.ChurchID)
	return nil
}

// RoleInput carries the writable fields of a volunteer role.
type RoleInput struct {
	Name               string
	Code               string
	Category           string
	Description        string
	RequiredLevel      int
	RequiresTraining   bool
	DefaultPermissions []string
	TargetGroupIDs     []string
	CreatedBy          string
}

// CreateVolunteerRole defines a ministry role for a church. All permission
// codes must exist in the catalog; unknown codes are rejected before
// anything is stored.
func (s *Service) CreateVolunteerRole(ctx context.Context, churchID string, in RoleInput) (*VolunteerRole, error) {
	churchID = strings.TrimSpace(churchID)
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.TrimSpace(strings.ToLower(in.Code))
	if churchID == "" || in.Name == "" || in.Code == "" {
		return nil, fmt.Errorf("%w: church_id, name and code are required", ErrInvalidInput)
	}
	perms := dedupeCodes(in.DefaultPermissions)
	if err := s.catalog.ValidateCodes(perms); err != nil {
		return nil, err
	}
	role := &VolunteerRole{
		ChurchID:           churchID,
		Name:               in.Name,
		Code:               in.Code,
		Category:           strings.TrimSpace(in.Category),
		Description:        strings.TrimSpace(in.Description),
		RequiredLevel:      in.RequiredLevel,
		RequiresTraining:   in.RequiresTraining,
		DefaultPermissions: perms,
		IsActive:           true,
		CreatedBy:          in.CreatedBy,
	}
	if err := s.store.VolunteerRoles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	if len(in.TargetGroupIDs) > 0 {
		if err := s.store.VolunteerRoles(ctx).SetTargetGroups(ctx, role.ID, in.TargetGroupIDs); err != nil {
			return nil, err
		}
		role.TargetGroupIDs = in.TargetGroupIDs
	}
	return role, nil
}

// UpdateVolunteerRole rewrites a role's definition and evicts every cached
// snapshot that could carry its permissions.
func (s *Service) UpdateVolunteerRole(ctx context.Context, roleID string, in RoleInput) (*VolunteerRole, error) {
	role, err := s.store.VolunteerRoles(ctx).Find(ctx, roleID)
	if err != nil {
		return nil, err
	}
	perms := dedupeCodes(in.DefaultPermissions)
	if err := s.catalog.ValidateCodes(perms); err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		role.Name = name
	}
	if cat := strings.TrimSpace(in.Category); cat != "" {
		role.Category = cat
	}
	role.Description = strings.TrimSpace(in.Description)
	role.RequiredLevel = in.RequiredLevel
	role.RequiresTraining = in.RequiresTraining
	role.DefaultPermissions = perms
	if err := s.store.VolunteerRoles(ctx).Update(ctx, role); err != nil {
		return nil, err
	}
	if err := s.invalidateRoleHolders(ctx, roleID); err != nil {
		return nil, err
	}
	return role, nil
}

// SetRoleTargetGroups replaces the set of groups a role manages.
func (s *Service) SetRoleTargetGroups(ctx context.Context, roleID string, groupIDs []string) error {
	if _, err := s.store.VolunteerRoles(ctx).Find(ctx, roleID); err != nil {
		return err
	}
	if err := s.store.VolunteerRoles(ctx).SetTargetGroups(ctx, roleID, groupIDs); err != nil {
		return err
	}
	return s.invalidateRoleHolders(ctx, roleID)
}

// DeactivateVolunteerRole retires a role; its assignments stop granting.
func (s *Service) DeactivateVolunteerRole(ctx context.Context, roleID string) error {
	if err := s.store.VolunteerRoles(ctx).SetActive(ctx, roleID, false); err != nil {
		return err
	}
	return s.invalidateRoleHolders(ctx, roleID)
}

// AssignmentInput carries the writable fields of a volunteer assignment.
type AssignmentInput struct {
	CustomPermissions []string
	StartsOn          *time.Time
	EndsOn            *time.Time
	ApprovedBy        string
}

// AssignVolunteer binds a membership to a volunteer role. Custom permission
// codes are validated against the catalog; a membership holds at most one
// assignment per role.
func (s *Service) AssignVolunteer(ctx context.Context, membershipID, roleID string, in AssignmentInput) (*VolunteerAssignment, error) {
	membershipID = strings.TrimSpace(membershipID)
	roleID = strings.TrimSpace(roleID)
	if membershipID == "" || roleID == "" {
		return nil, fmt.Errorf("%w: membership_id and role_id are required", ErrInvalidInput)
	}
	perms := dedupeCodes(in.CustomPermissions)
	if err := s.catalog.ValidateCodes(perms); err != nil {
		return nil, err
	}
	if in.StartsOn != nil && in.EndsOn != nil && in.EndsOn.Before(*in.StartsOn) {
		return nil, fmt.Errorf("%w: assignment ends before it starts", ErrInvalidInput)
	}
	m, err := s.store.Memberships(ctx).Find(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	role, err := s.store.VolunteerRoles(ctx).Find(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.ChurchID != m.ChurchID {
		return nil, fmt.Errorf("%w: role belongs to another church", ErrInvalidInput)
	}
	a := &VolunteerAssignment{
		MembershipID:      membershipID,
		RoleID:            roleID,
		CustomPermissions: perms,
		StartsOn:          in.StartsOn,
		EndsOn:            in.EndsOn,
		IsActive:          true,
		ApprovedBy:        in.ApprovedBy,
	}
	if in.ApprovedBy != "" {
		now := s.now().UTC()
		a.ApprovedAt = &now
	}
	if err := s.store.Assignments(ctx).Create(ctx, a); err != nil {
		return nil, err
	}
	s.cache.Invalidate(m.UserID, m.ChurchID)
	return a, nil
}

// RevokeAssignment deactivates an assignment. The membership is resolved
// before anything is written: if the (user, church) pair cannot be
// determined the revoke fails outright, so a success return always means
// the cache entry was evicted and the stale grant cannot be served.
func (s *Service) RevokeAssignment(ctx context.Context, assignmentID string) error {
	a, err := s.store.Assignments(ctx).Find(ctx, assignmentID)
	if err != nil {
		return err
	}
	m, err := s.store.Memberships(ctx).Find(ctx, a.MembershipID)
	if err != nil {
		return err
	}
	if err := s.store.Assignments(ctx).SetActive(ctx, assignmentID, false); err != nil {
		return err
	}
	s.cache.Invalidate(m.UserID, m.ChurchID)
	return nil
}

// CreateGroup registers a group for own_group scope targeting.
func (s *Service) CreateGroup(ctx context.Context, churchID, name, groupType string) (*Group, error) {
	churchID = strings.TrimSpace(churchID)
	name = strings.TrimSpace(name)
	if churchID == "" || name == "" {
		return nil, fmt.Errorf("%w: church_id and group name are required", ErrInvalidInput)
	}
	g := &Group{ChurchID: churchID, Name: name, GroupType: strings.TrimSpace(groupType), IsActive: true}
	if err := s.store.Groups(ctx).Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// SeedDefaultRoles creates the stock volunteer roles for a church, skipping
// codes that already exist.
func (s *Service) SeedDefaultRoles(ctx context.Context, churchID string) (int, error) {
	existing, err := s.store.VolunteerRoles(ctx).ListByChurch(ctx, churchID)
	if err != nil {
		return 0, err
	}
	taken := make(map[string]struct{}, len(existing))
	for _, role := range existing {
		taken[role.Code] = struct{}{}
	}
	created := 0
	for _, tpl := range DefaultVolunteerRoles {
		if _, ok := taken[tpl.Code]; ok {
			continue
		}
		_, err := s.CreateVolunteerRole(ctx, churchID, RoleInput{
			Name:               tpl.Name,
			Code:               tpl.Code,
			Category:           tpl.Category,
			Description:        tpl.Description,
			RequiredLevel:      tpl.RequiredLevel,
			RequiresTraining:   tpl.RequiresTraining,
			DefaultPermissions: tpl.DefaultPermissions,
		})
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// Authenticate verifies email/password and returns the account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}
	u, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if u.Status != UserStatusActive {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	return u, nil
}

// FindUser loads a global account by id.
func (s *Service) FindUser(ctx context.Context, userID string) (*User, error) {
	return s.store.Users(ctx).Find(ctx, userID)
}

// Membership loads the membership binding a user to a church.
func (s *Service) Membership(ctx context.Context, userID, churchID string) (*Membership, error) {
	return s.store.Memberships(ctx).FindByUserAndChurch(ctx, userID, churchID)
}

// FindMembership loads a membership by id.
func (s *Service) FindMembership(ctx context.Context, membershipID string) (*Membership, error) {
	return s.store.Memberships(ctx).Find(ctx, membershipID)
}

// ListMemberships lists a church's memberships.
func (s *Service) ListMemberships(ctx context.Context, churchID string) ([]*Membership, error) {
	return s.store.Memberships(ctx).ListByChurch(ctx, churchID)
}

// ListGroups lists a church's groups.
func (s *Service) ListGroups(ctx context.Context, churchID string) ([]*Group, error) {
	return s.store.Groups(ctx).ListByChurch(ctx, churchID)
}

// FindVolunteerRole loads a role by id.
func (s *Service) FindVolunteerRole(ctx context.Context, roleID string) (*VolunteerRole, error) {
	return s.store.VolunteerRoles(ctx).Find(ctx, roleID)
}

// MembershipForAssignment resolves the membership an assignment hangs off.
func (s *Service) MembershipForAssignment(ctx context.Context, assignmentID string) (*Membership, error) {
	a, err := s.store.Assignments(ctx).Find(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return s.store.Memberships(ctx).Find(ctx, a.MembershipID)
}

// ListVolunteerRoles lists a church's roles with their target groups.
func (s *Service) ListVolunteerRoles(ctx context.Context, churchID string) ([]*VolunteerRole, error) {
	return s.store.VolunteerRoles(ctx).ListByChurch(ctx, churchID)
}

// invalidateRoleHolders evicts cached snapshots for every membership that
// holds an assignment on the role.
func (s *Service) invalidateRoleHolders(ctx context.Context, roleID string) error {
	if s.cache == nil {
		return nil
	}
	assignments, err := s.store.Assignments(ctx).ListByRole(ctx, roleID)
	if err != nil {
		return err
	}
	memberships := s.store.Memberships(ctx)
	for _, a := range assignments {
		m, err := memberships.Find(ctx, a.MembershipID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		s.cache.Invalidate(m.UserID, m.ChurchID)
	}
	return nil
}
