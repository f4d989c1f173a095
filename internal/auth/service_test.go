package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type serviceFixture struct {
	store   *MemStore
	cache   *SnapshotCache
	service *Service
	engine  *Engine

	churchID string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store := NewMemStore()
	cache := NewSnapshotCache(SnapshotTTL)
	catalog := NewCatalog()
	if err := SeedCatalog(catalog); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	svc, err := NewService(store, catalog, WithServiceCache(cache))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	engine, err := NewEngine(store, WithCache(cache))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	f := &serviceFixture{store: store, cache: cache, service: svc, engine: engine}

	church, err := svc.RegisterChurch(context.Background(), "Grace Chapel", "grace", "UTC")
	if err != nil {
		t.Fatalf("RegisterChurch: %v", err)
	}
	f.churchID = church.ID
	return f
}

func (f *serviceFixture) member(t *testing.T, email string, role CoarseRole) (*User, *Membership) {
	t.Helper()
	ctx := context.Background()
	u, err := f.service.CreateUser(ctx, email, "hunter2!", false)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	m, err := f.service.AddMembership(ctx, u.ID, f.churchID, role, "Test Member")
	if err != nil {
		t.Fatalf("AddMembership: %v", err)
	}
	return u, m
}

func TestServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(nil, NewCatalog()); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewService(NewMemStore(), nil); err == nil {
		t.Fatal("expected error without catalog")
	}
}

func TestRegisterChurchNormalizes(t *testing.T) {
	f := newServiceFixture(t)
	church, err := f.service.RegisterChurch(context.Background(), "  Hope Center  ", "hope", "")
	if err != nil {
		t.Fatalf("RegisterChurch: %v", err)
	}
	if church.Name != "Hope Center" || church.Code != "HOPE" {
		t.Fatalf("got %q/%q, want normalized name and upper-cased code", church.Name, church.Code)
	}
	if _, err := f.service.RegisterChurch(context.Background(), "", "x", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u, err := f.service.CreateUser(ctx, " Pastor@Example.org ", "s3cret-pw", false)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "pastor@example.org" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if u.PasswordHash == "s3cret-pw" || u.PasswordHash == "" {
		t.Fatal("password stored unhashed")
	}

	if _, err := f.service.Authenticate(ctx, "pastor@example.org", "s3cret-pw"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := f.service.Authenticate(ctx, "pastor@example.org", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password: error = %v, want ErrUnauthorized", err)
	}
	if _, err := f.service.Authenticate(ctx, "nobody@example.org", "s3cret-pw"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown user: error = %v, want ErrUnauthorized", err)
	}
}

func TestAddMembershipDefaultsToMember(t *testing.T) {
	f := newServiceFixture(t)
	u, err := f.service.CreateUser(context.Background(), "m@example.org", "passw0rd!", false)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	m, err := f.service.AddMembership(context.Background(), u.ID, f.churchID, "", "")
	if err != nil {
		t.Fatalf("AddMembership: %v", err)
	}
	if m.Role != RoleMember {
		t.Fatalf("role = %q, want member", m.Role)
	}
	if !m.IsActive {
		t.Fatal("new membership not active")
	}
	if _, err := f.service.AddMembership(context.Background(), u.ID, f.churchID, "bishop", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown role: error = %v, want ErrInvalidInput", err)
	}
}

func TestCreateVolunteerRoleValidatesCodes(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.CreateVolunteerRole(context.Background(), f.churchID, RoleInput{
		Name: "Usher", Code: "usher",
		DefaultPermissions: []string{"member.view.all", "building.unlock.all"},
	})
	if !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("error = %v, want ErrUnknownPermission", err)
	}

	role, err := f.service.CreateVolunteerRole(context.Background(), f.churchID, RoleInput{
		Name: "Usher", Code: "USHER",
		DefaultPermissions: []string{"member.view.all", "member.view.all"},
	})
	if err != nil {
		t.Fatalf("CreateVolunteerRole: %v", err)
	}
	if role.Code != "usher" {
		t.Fatalf("code not lower-cased: %q", role.Code)
	}
	if len(role.DefaultPermissions) != 1 {
		t.Fatalf("duplicates not collapsed: %v", role.DefaultPermissions)
	}
}

func TestAssignVolunteerValidation(t *testing.T) {
	f := newServiceFixture(t)
	_, m := f.member(t, "v@example.org", RoleMember)
	role, err := f.service.CreateVolunteerRole(context.Background(), f.churchID, RoleInput{
		Name: "Greeter", Code: "greeter", DefaultPermissions: []string{"member.view.own_group"},
	})
	if err != nil {
		t.Fatalf("CreateVolunteerRole: %v", err)
	}

	// Window that ends before it starts is rejected.
	start := time.Now()
	end := start.AddDate(0, 0, -7)
	_, err = f.service.AssignVolunteer(context.Background(), m.ID, role.ID, AssignmentInput{StartsOn: &start, EndsOn: &end})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("inverted window: error = %v, want ErrInvalidInput", err)
	}

	// Roles cannot be assigned across churches.
	other, err := f.service.RegisterChurch(context.Background(), "Other", "other", "")
	if err != nil {
		t.Fatalf("RegisterChurch: %v", err)
	}
	foreign, err := f.service.CreateVolunteerRole(context.Background(), other.ID, RoleInput{
		Name: "Greeter", Code: "greeter", DefaultPermissions: []string{"member.view.own_group"},
	})
	if err != nil {
		t.Fatalf("CreateVolunteerRole: %v", err)
	}
	if _, err := f.service.AssignVolunteer(context.Background(), m.ID, foreign.ID, AssignmentInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("cross-church: error = %v, want ErrInvalidInput", err)
	}

	a, err := f.service.AssignVolunteer(context.Background(), m.ID, role.ID, AssignmentInput{ApprovedBy: "pastor"})
	if err != nil {
		t.Fatalf("AssignVolunteer: %v", err)
	}
	if a.ApprovedAt == nil {
		t.Fatal("approval timestamp not set")
	}
}

func TestAssignVolunteerOneActiveAssignmentPerPair(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, m := f.member(t, "v@example.org", RoleMember)
	role, err := f.service.CreateVolunteerRole(ctx, f.churchID, RoleInput{
		Name: "Greeter", Code: "greeter", DefaultPermissions: []string{"member.view.own_group"},
	})
	if err != nil {
		t.Fatalf("CreateVolunteerRole: %v", err)
	}

	a, err := f.service.AssignVolunteer(ctx, m.ID, role.ID, AssignmentInput{})
	if err != nil {
		t.Fatalf("AssignVolunteer: %v", err)
	}
	if _, err := f.service.AssignVolunteer(ctx, m.ID, role.ID, AssignmentInput{}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate active pair: error = %v, want ErrConflict", err)
	}

	// A revoked pair can be assigned again.
	if err := f.service.RevokeAssignment(ctx, a.ID); err != nil {
		t.Fatalf("RevokeAssignment: %v", err)
	}
	if _, err := f.service.AssignVolunteer(ctx, m.ID, role.ID, AssignmentInput{}); err != nil {
		t.Fatalf("re-assign after revoke: %v", err)
	}
}

func TestRevokeAssignmentFailsWhenMembershipUnresolvable(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u, m := f.member(t, "sub@example.org", RoleMember)
	role, err := f.service.CreateVolunteerRole(ctx, f.churchID, RoleInput{
		Name: "Sub", Code: "sub", DefaultPermissions: []string{"attendance.view.all"},
	})
	if err != nil {
		t.Fatalf("CreateVolunteerRole: %v", err)
	}
	a, err := f.service.AssignVolunteer(ctx, m.ID, role.ID, AssignmentInput{})
	if err != nil {
		t.Fatalf("AssignVolunteer: %v", err)
	}
	principal := PrincipalRef{ID: u.ID}
	if d, err := f.engine.Authorize(ctx, principal, f.churchID, "attendance.view", nil); err != nil || !d.Allowed {
		t.Fatalf("before revoke: %+v, %v", d, err)
	}

	// With the membership lookup failing, the revoke must not report
	// success: the write never happens and nothing is half-applied.
	f.store.SetFailing(true)
	if err := f.service.RevokeAssignment(ctx, a.ID); err == nil {
		t.Fatal("expected error when the membership cannot be resolved")
	}
	f.store.SetFailing(false)

	// The assignment is untouched and the cache agrees with the store.
	if d, err := f.engine.Authorize(ctx, principal, f.churchID, "attendance.view", nil); err != nil || !d.Allowed {
		t.Fatalf("failed revoke mutated state: %+v, %v", d, err)
	}

	// Once the store answers again the revoke lands and is immediately
	// visible.
	if err := f.service.RevokeAssignment(ctx, a.ID); err != nil {
		t.Fatalf("RevokeAssignment: %v", err)
	}
	if d, _ := f.engine.Authorize(ctx, principal, f.churchID, "attendance.view", nil); d.Allowed {
		t.Fatalf("revoked grant still allowed: %+v", d)
	}
}

func TestRevokeAssignmentInvalidatesCache(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u, m := f.member(t, "teacher@example.org", RoleMember)
	role, err := f.service.CreateVolunteerRole(ctx, f.churchID, RoleInput{
		Name: "Teacher", Code: "teacher", DefaultPermissions: []string{"attendance.view.all"},
	})
	if err != nil {
		t.Fatalf("CreateVolunteerRole: %v", err)
	}
	a, err := f.service.AssignVolunteer(ctx, m.ID, role.ID, AssignmentInput{})
	if err != nil {
		t.Fatalf("AssignVolunteer: %v", err)
	}

	principal := PrincipalRef{ID: u.ID}
	d, err := f.engine.Authorize(ctx, principal, f.churchID, "attendance.view", nil)
	if err != nil || !d.Allowed {
		t.Fatalf("before revoke: %+v, %v", d, err)
	}

	if err := f.service.RevokeAssignment(ctx, a.ID); err != nil {
		t.Fatalf("RevokeAssignment: %v", err)
	}
	// The eviction happens before RevokeAssignment returns, so the very
	// next check reloads from the store and sees the revocation.
	d, err = f.engine.Authorize(ctx, principal, f.churchID, "attendance.view", nil)
	if err != nil {
		t.Fatalf("after revoke: %v", err)
	}
	if d.Allowed {
		t.Fatalf("revoked grant still allowed: %+v", d)
	}
}

func TestUpdateVolunteerRoleInvalidatesHolders(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u, m := f.member(t, "leader@example.org", RoleMember)
	role, err := f.service.CreateVolunteerRole(ctx, f.churchID, RoleInput{
		Name: "Leader", Code: "leader", DefaultPermissions: []string{"group.view.all"},
	})
	if err != nil {
		t.Fatalf("CreateVolunteerRole: %v", err)
	}
	if _, err := f.service.AssignVolunteer(ctx, m.ID, role.ID, AssignmentInput{}); err != nil {
		t.Fatalf("AssignVolunteer: %v", err)
	}

	principal := PrincipalRef{ID: u.ID}
	if d, err := f.engine.Authorize(ctx, principal, f.churchID, "group.view", nil); err != nil || !d.Allowed {
		t.Fatalf("before update: %+v, %v", d, err)
	}

	_, err = f.service.UpdateVolunteerRole(ctx, role.ID, RoleInput{
		Name: "Leader", DefaultPermissions: []string{"prayer.view.all"},
	})
	if err != nil {
		t.Fatalf("UpdateVolunteerRole: %v", err)
	}
	if d, _ := f.engine.Authorize(ctx, principal, f.churchID, "group.view", nil); d.Allowed {
		t.Fatalf("removed default still granted: %+v", d)
	}
	if d, _ := f.engine.Authorize(ctx, principal, f.churchID, "prayer.view", nil); !d.Allowed {
		t.Fatalf("new default not granted: %+v", d)
	}
}

func TestDeactivateMembershipInvalidatesCache(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u, m := f.member(t, "staff@example.org", RoleChurchStaff)

	principal := PrincipalRef{ID: u.ID}
	if d, err := f.engine.Authorize(ctx, principal, f.churchID, "member.view", nil); err != nil || !d.Allowed {
		t.Fatalf("before deactivate: %+v, %v", d, err)
	}

	if err := f.service.DeactivateMembership(ctx, m.ID); err != nil {
		t.Fatalf("DeactivateMembership: %v", err)
	}
	if d, _ := f.engine.Authorize(ctx, principal, f.churchID, "member.view", nil); d.Allowed {
		t.Fatalf("deactivated membership still allowed: %+v", d)
	}
}

func TestSeedDefaultRoles(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.service.SeedDefaultRoles(ctx, f.churchID)
	if err != nil {
		t.Fatalf("SeedDefaultRoles: %v", err)
	}
	if created != len(DefaultVolunteerRoles) {
		t.Fatalf("created %d roles, want %d", created, len(DefaultVolunteerRoles))
	}

	// Reseeding skips existing codes.
	created, err = f.service.SeedDefaultRoles(ctx, f.churchID)
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if created != 0 {
		t.Fatalf("reseed created %d roles, want 0", created)
	}

	roles, err := f.service.ListVolunteerRoles(ctx, f.churchID)
	if err != nil {
		t.Fatalf("ListVolunteerRoles: %v", err)
	}
	if len(roles) != len(DefaultVolunteerRoles) {
		t.Fatalf("listed %d roles, want %d", len(roles), len(DefaultVolunteerRoles))
	}
}

func TestEnsureBuiltinsPersistsCatalog(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	if err := f.service.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	stored, err := f.store.Permissions(ctx).List(ctx)
	if err != nil {
		t.Fatalf("list permissions: %v", err)
	}
	if len(stored) != len(BuiltinPermissions()) {
		t.Fatalf("stored %d permissions, want %d", len(stored), len(BuiltinPermissions()))
	}
}
