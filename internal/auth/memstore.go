package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and local development. It is
// safe for concurrent use and can be flipped into a failing mode to exercise
// fail-closed paths.
type MemStore struct {
	mu          sync.Mutex
	seq         int
	churches    map[string]*Church
	users       map[string]*User
	memberships map[string]*Membership
	roles       map[string]*VolunteerRole
	roleGroups  map[string][]string
	assignments map[string]*VolunteerAssignment
	groups      map[string]*Group
	perms       map[string]PermissionMeta
	failing     bool
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		churches:    make(map[string]*Church),
		users:       make(map[string]*User),
		memberships: make(map[string]*Membership),
		roles:       make(map[string]*VolunteerRole),
		roleGroups:  make(map[string][]string),
		assignments: make(map[string]*VolunteerAssignment),
		groups:      make(map[string]*Group),
		perms:       make(map[string]PermissionMeta),
	}
}

func (s *MemStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func (s *MemStore) fail() error {
	if s.failing {
		return fmt.Errorf("store offline")
	}
	return nil
}

// SetFailing switches every subsequent store call into returning an error.
func (s *MemStore) SetFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func (s *MemStore) Churches(ctx context.Context) ChurchStore             { return memChurches{s} }
func (s *MemStore) Users(ctx context.Context) UserStore                  { return memUsers{s} }
func (s *MemStore) Memberships(ctx context.Context) MembershipStore      { return memMemberships{s} }
func (s *MemStore) VolunteerRoles(ctx context.Context) VolunteerRoleStore { return memRoles{s} }
func (s *MemStore) Assignments(ctx context.Context) AssignmentStore      { return memAssignments{s} }
func (s *MemStore) Groups(ctx context.Context) GroupStore                { return memGroups{s} }
func (s *MemStore) Permissions(ctx context.Context) PermissionStore      { return memPerms{s} }

type memChurches struct{ s *MemStore }

func (m memChurches) Create(_ context.Context, c *Church) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = m.s.nextID("ch")
	}
	c.CreatedAt = time.Now().UTC()
	cp := *c
	m.s.churches[c.ID] = &cp
	return nil
}

func (m memChurches) Find(_ context.Context, id string) (*Church, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail(); err != nil {
		return nil, err
	}
	c, ok := m.s.churches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m memChurches) FindByCode(_ context.Context, code string) (*Church, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range m.s.churches {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memChurches) List(_ context.Context) ([]*Church, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]*Church, 0, len(m.s.churches))
	for _, c := range m.s.churches {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memUsers struct{ s *MemStore }

func (m memUsers) Create(_ context.Context, u *User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail(); err != nil {
		return err
	}
	for _, existing := range m.s.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = m.s.nextID("usr")
	}
	cp := *u
	m.s.users[u.ID] = &cp
	return nil
}

func (m memUsers) Find(_ context.Context, id string) (*User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memUsers) UpdatePassword(_ context.Context, userID, hash string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

type memMemberships struct{ s *MemStore }

func (m memMemberships) Create(_ context.Context, ms *Membership) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail(); err != nil {
		return err
	}
	for _, existing := range m.s.memberships {
		if existing.UserID == ms.UserID && existing.ChurchID == ms.ChurchID {
			return ErrConflict
		}
	}
	if ms.ID == "" {
		ms.ID = m.s.nextID("mem")
	}
	ms.JoinedAt = time.Now().UTC()
	cp := *ms
	m.s.memberships[ms.ID] = &cp
	return nil
}

func (m memMemberships) Find(_ context.Context, id string) (*Membership, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail(); err != nil {
		return nil, err
	}
	ms, ok := m.s.memberships[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ms
	return &cp, nil
}

func (m memMemberships) FindByUserAndChurch(_ context.Context, userID, churchID string) (*Membership, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail(); err != nil {
		return nil, err
	}
	for _, ms := range m.s.memberships {
		if ms.UserID == userID && ms.ChurchID == churchID {
			cp := *ms
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memMemberships) ListByChurch(_ context.Context, churchID string) ([]*Membership, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*Membership
	for _, ms := range m.s.memberships {
		if ms.ChurchID == churchID {
			cp := *ms
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memMemberships) SetRole(_ context.Context, id string, role CoarseRole) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ms, ok := m.s.memberships[id]
	if !ok {
		return ErrNotFound
	}
	ms.Role = role
	return nil
}

func (m memMemberships) SetActive(_ context.Context, id string, active bool) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ms, ok := m.s.memberships[id]
	if !ok {
		return ErrNotFound
	}
	ms.IsActive = active
	return nil
}

type memRoles struct{ s *MemStore }

func (m memRoles) Create(_ context.Context, role *VolunteerRole) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail(); err != nil {
		return err
	}
	for _, existing := range m.s.roles {
		if existing.ChurchID == role.ChurchID && existing.Code == role.Code {
			return ErrConflict
		}
	}
	if role.ID == "" {
		role.ID = m.s.nextID("role")
	}
	cp := *role
	m.s.roles[role.ID] = &cp
	return nil
}

func (m memRoles) Find(_ context.Context, id string) (*VolunteerRole, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail(); err != nil {
		return nil, err
	}
	role, ok := m.s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	cp.TargetGroupIDs = append([]string(nil), m.s.roleGroups[id]...)
	return &cp, nil
}

func (m memRoles) ListByChurch(_ context.Context, churchID string) ([]*VolunteerRole, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*VolunteerRole
	for id, role := range m.s.roles {
		if role.ChurchID == churchID {
			cp := *role
			cp.TargetGroupIDs = append([]string(nil), m.s.roleGroups[id]...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memRoles) Update(_ context.Context, role *VolunteerRole) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.roles[role.ID]; !ok {
		return ErrNotFound
	}
	cp := *role
	m.s.roles[role.ID] = &cp
	return nil
}

func (m memRoles) SetActive(_ context.Context, id string, active bool) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	role, ok := m.s.roles[id]
	if !ok {
		return ErrNotFound
	}
	role.IsActive = active
	return nil
}

func (m memRoles) SetTargetGroups(_ context.Context, roleID string, groupIDs []string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.roles[roleID]; !ok {
		return ErrNotFound
	}
	m.s.roleGroups[roleID] = append([]string(nil), groupIDs...)
	return nil
}

func (m memRoles) TargetGroups(_ context.Context, roleID string) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return append([]string(nil), m.s.roleGroups[roleID]...), nil
}

type memAssignments struct{ s *MemStore }

func (m memAssignments) Create(_ context.Context, a *VolunteerAssignment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail(); err != nil {
		return err
	}
	for _, existing := range m.s.assignments {
		if existing.MembershipID == a.MembershipID && existing.RoleID == a.RoleID && existing.IsActive {
			return ErrConflict
		}
	}
	if a.ID == "" {
		a.ID = m.s.nextID("asg")
	}
	cp := *a
	m.s.assignments[a.ID] = &cp
	return nil
}

func (m memAssignments) Find(_ context.Context, id string) (*VolunteerAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.assignments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m memAssignments) ListByMembership(_ context.Context, membershipID string) ([]VolunteerAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []VolunteerAssignment
	for _, a := range m.s.assignments {
		if a.MembershipID == membershipID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memAssignments) ListActiveByMembership(_ context.Context, membershipID string, day time.Time) ([]VolunteerAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.fail(); err != nil {
		return nil, err
	}
	var out []VolunteerAssignment
	for _, a := range m.s.assignments {
		if a.MembershipID == membershipID && a.ActiveOn(day) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memAssignments) ListByRole(_ context.Context, roleID string) ([]VolunteerAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []VolunteerAssignment
	for _, a := range m.s.assignments {
		if a.RoleID == roleID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memAssignments) SetActive(_ context.Context, id string, active bool) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.assignments[id]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = active
	return nil
}

type memGroups struct{ s *MemStore }

func (m memGroups) Create(_ context.Context, g *Group) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if g.ID == "" {
		g.ID = m.s.nextID("grp")
	}
	cp := *g
	m.s.groups[g.ID] = &cp
	return nil
}

func (m memGroups) Find(_ context.Context, id string) (*Group, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	g, ok := m.s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m memGroups) ListByChurch(_ context.Context, churchID string) ([]*Group, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*Group
	for _, g := range m.s.groups {
		if g.ChurchID == churchID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memPerms struct{ s *MemStore }

func (m memPerms) Ensure(_ context.Context, perms []PermissionMeta) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, p := range perms {
		if _, ok := m.s.perms[p.Code]; !ok {
			m.s.perms[p.Code] = p
		}
	}
	return nil
}

func (m memPerms) List(_ context.Context) ([]PermissionMeta, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]PermissionMeta, 0, len(m.s.perms))
	for _, p := range m.s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
