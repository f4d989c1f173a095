package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"faithbase.org/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Churches(context.Context) ChurchStore   { return &churchStore{db: s.db} }
func (s *PGStore) Users(context.Context) UserStore        { return &userStore{db: s.db} }
func (s *PGStore) Memberships(context.Context) MembershipStore {
	return &membershipStore{db: s.db}
}
func (s *PGStore) VolunteerRoles(context.Context) VolunteerRoleStore {
	return &volunteerRoleStore{db: s.db}
}
func (s *PGStore) Assignments(context.Context) AssignmentStore {
	return &assignmentStore{db: s.db}
}
func (s *PGStore) Groups(context.Context) GroupStore { return &groupStore{db: s.db} }
func (s *PGStore) Permissions(context.Context) PermissionStore {
	return &permissionStore{db: s.db}
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return ErrConflict
		case pgErrForeignKeyViolation:
			return ErrNotFound
		}
	}
	return err
}

// Church store -------------------------------------------------------------

type churchStore struct{ db *sql.DB }

func (s *churchStore) Create(ctx context.Context, church *Church) error {
	if church.ID == "" {
		church.ID = ids.New()
	}
	meta, _ := json.Marshal(church.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into churches(id, name, code, timezone, metadata) values($1,$2,$3,$4,$5)`,
		church.ID, church.Name, church.Code, church.Timezone, meta,
	)
	return mapWriteErr(err)
}

func (s *churchStore) Find(ctx context.Context, id string) (*Church, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, name, code, timezone, metadata, created_at, updated_at from churches where id=$1`, id))
}

func (s *churchStore) FindByCode(ctx context.Context, code string) (*Church, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, name, code, timezone, metadata, created_at, updated_at from churches where code=$1`, code))
}

func (s *churchStore) scanOne(row *sql.Row) (*Church, error) {
	var (
		church Church
		meta   []byte
	)
	if err := row.Scan(&church.ID, &church.Name, &church.Code, &church.Timezone, &meta, &church.CreatedAt, &church.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(meta, &church.Metadata)
	return &church, nil
}

func (s *churchStore) List(ctx context.Context) ([]*Church, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, code, timezone, metadata, created_at, updated_at from churches order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Church
	for rows.Next() {
		var (
			church Church
			meta   []byte
		)
		if err := rows.Scan(&church.ID, &church.Name, &church.Code, &church.Timezone, &meta, &church.CreatedAt, &church.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(meta, &church.Metadata)
		res = append(res, &church)
	}
	return res, rows.Err()
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, is_superuser, status) values($1,$2,$3,$4,$5)`,
		u.ID, u.Email, u.PasswordHash, u.IsSuperuser, u.Status,
	)
	return mapWriteErr(err)
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, is_superuser, status, created_at, updated_at from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, is_superuser, status, created_at, updated_at from users where email=$1`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsSuperuser, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, userID, passwordHash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Membership store ---------------------------------------------------------

type membershipStore struct{ db *sql.DB }

const membershipColumns = `id, user_id, church_id, role, name, phone, is_active, joined_at, updated_at`

func (s *membershipStore) Create(ctx context.Context, m *Membership) error {
	if m.ID == "" {
		m.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into church_users(id, user_id, church_id, role, name, phone, is_active)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.UserID, m.ChurchID, string(m.Role), m.Name, m.Phone, m.IsActive,
	)
	return mapWriteErr(err)
}

func (s *membershipStore) Find(ctx context.Context, id string) (*Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+membershipColumns+` from church_users where id=$1`, id)
	return scanMembership(row)
}

func (s *membershipStore) FindByUserAndChurch(ctx context.Context, userID, churchID string) (*Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+membershipColumns+` from church_users where user_id=$1 and church_id=$2`, userID, churchID)
	return scanMembership(row)
}

func scanMembership(row *sql.Row) (*Membership, error) {
	var (
		m    Membership
		role string
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.ChurchID, &role, &m.Name, &m.Phone, &m.IsActive, &m.JoinedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m.Role = CoarseRole(role)
	return &m, nil
}

func (s *membershipStore) ListByChurch(ctx context.Context, churchID string) ([]*Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+membershipColumns+` from church_users where church_id=$1 order by joined_at`, churchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Membership
	for rows.Next() {
		var (
			m    Membership
			role string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.ChurchID, &role, &m.Name, &m.Phone, &m.IsActive, &m.JoinedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Role = CoarseRole(role)
		res = append(res, &m)
	}
	return res, rows.Err()
}

func (s *membershipStore) SetRole(ctx context.Context, id string, role CoarseRole) error {
	res, err := s.db.ExecContext(ctx,
		`update church_users set role=$2, updated_at=now() where id=$1`, id, string(role))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *membershipStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update church_users set is_active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Volunteer role store ------------------------------------------------------

type volunteerRoleStore struct{ db *sql.DB }

const volunteerRoleColumns = `id, church_id, name, code, category, description, required_level,
	 requires_training, default_permissions, is_active, created_by, created_at, updated_at`

func (s *volunteerRoleStore) Create(ctx context.Context, role *VolunteerRole) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	perms, _ := json.Marshal(role.DefaultPermissions)
	_, err := s.db.ExecContext(ctx,
		`insert into volunteer_roles(id, church_id, name, code, category, description,
		 required_level, requires_training, default_permissions, is_active, created_by)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		role.ID, role.ChurchID, role.Name, role.Code, role.Category, role.Description,
		role.RequiredLevel, role.RequiresTraining, perms, role.IsActive, nullable(role.CreatedBy),
	)
	return mapWriteErr(err)
}

func (s *volunteerRoleStore) Find(ctx context.Context, id string) (*VolunteerRole, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+volunteerRoleColumns+` from volunteer_roles where id=$1`, id)
	role, err := scanVolunteerRole(row)
	if err != nil {
		return nil, err
	}
	groups, err := s.TargetGroups(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.TargetGroupIDs = groups
	return role, nil
}

func scanVolunteerRole(row *sql.Row) (*VolunteerRole, error) {
	var (
		role      VolunteerRole
		perms     []byte
		createdBy sql.NullString
	)
	if err := row.Scan(&role.ID, &role.ChurchID, &role.Name, &role.Code, &role.Category,
		&role.Description, &role.RequiredLevel, &role.RequiresTraining, &perms,
		&role.IsActive, &createdBy, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(perms, &role.DefaultPermissions)
	role.CreatedBy = createdBy.String
	return &role, nil
}

func (s *volunteerRoleStore) ListByChurch(ctx context.Context, churchID string) ([]*VolunteerRole, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+volunteerRoleColumns+` from volunteer_roles where church_id=$1 order by name`, churchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*VolunteerRole
	for rows.Next() {
		var (
			role      VolunteerRole
			perms     []byte
			createdBy sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.ChurchID, &role.Name, &role.Code, &role.Category,
			&role.Description, &role.RequiredLevel, &role.RequiresTraining, &perms,
			&role.IsActive, &createdBy, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(perms, &role.DefaultPermissions)
		role.CreatedBy = createdBy.String
		res = append(res, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, role := range res {
		groups, err := s.TargetGroups(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		role.TargetGroupIDs = groups
	}
	return res, nil
}

func (s *volunteerRoleStore) Update(ctx context.Context, role *VolunteerRole) error {
	perms, _ := json.Marshal(role.DefaultPermissions)
	res, err := s.db.ExecContext(ctx,
		`update volunteer_roles set name=$2, category=$3, description=$4, required_level=$5,
		 requires_training=$6, default_permissions=$7, updated_at=now() where id=$1`,
		role.ID, role.Name, role.Category, role.Description, role.RequiredLevel,
		role.RequiresTraining, perms,
	)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *volunteerRoleStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update volunteer_roles set is_active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *volunteerRoleStore) SetTargetGroups(ctx context.Context, roleID string, groupIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from volunteer_role_groups where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, groupID := range groupIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into volunteer_role_groups(role_id, group_id) values($1,$2)`, roleID, groupID); err != nil {
			return mapWriteErr(err)
		}
	}
	return tx.Commit()
}

func (s *volunteerRoleStore) TargetGroups(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select group_id from volunteer_role_groups where role_id=$1 order by group_id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

// Assignment store ----------------------------------------------------------

type assignmentStore struct{ db *sql.DB }

const assignmentColumns = `id, church_user_id, role_id, custom_permissions, starts_on, ends_on,
	 is_active, approved_by, approved_at, created_at, updated_at`

func (s *assignmentStore) Create(ctx context.Context, a *VolunteerAssignment) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	perms, _ := json.Marshal(a.CustomPermissions)
	_, err := s.db.ExecContext(ctx,
		`insert into volunteer_assignments(id, church_user_id, role_id, custom_permissions,
		 starts_on, ends_on, is_active, approved_by, approved_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.MembershipID, a.RoleID, perms, a.StartsOn, a.EndsOn, a.IsActive,
		nullable(a.ApprovedBy), a.ApprovedAt,
	)
	return mapWriteErr(err)
}

func (s *assignmentStore) Find(ctx context.Context, id string) (*VolunteerAssignment, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+assignmentColumns+` from volunteer_assignments where id=$1`, id)
	var a VolunteerAssignment
	if err := scanAssignment(row.Scan, &a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanAssignment(scan func(dest ...any) error, a *VolunteerAssignment) error {
	var (
		perms      []byte
		approvedBy sql.NullString
		startsOn   sql.NullTime
		endsOn     sql.NullTime
		approvedAt sql.NullTime
	)
	if err := scan(&a.ID, &a.MembershipID, &a.RoleID, &perms, &startsOn, &endsOn,
		&a.IsActive, &approvedBy, &approvedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return err
	}
	_ = json.Unmarshal(perms, &a.CustomPermissions)
	a.ApprovedBy = approvedBy.String
	if startsOn.Valid {
		t := startsOn.Time
		a.StartsOn = &t
	}
	if endsOn.Valid {
		t := endsOn.Time
		a.EndsOn = &t
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		a.ApprovedAt = &t
	}
	return nil
}

func (s *assignmentStore) list(ctx context.Context, query string, args ...any) ([]VolunteerAssignment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []VolunteerAssignment
	for rows.Next() {
		var a VolunteerAssignment
		if err := scanAssignment(rows.Scan, &a); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *assignmentStore) ListByMembership(ctx context.Context, membershipID string) ([]VolunteerAssignment, error) {
	return s.list(ctx,
		`select `+assignmentColumns+` from volunteer_assignments where church_user_id=$1`, membershipID)
}

func (s *assignmentStore) ListActiveByMembership(ctx context.Context, membershipID string, day time.Time) ([]VolunteerAssignment, error) {
	return s.list(ctx,
		`select `+assignmentColumns+` from volunteer_assignments
		 where church_user_id=$1 and is_active=true
		   and (starts_on is null or starts_on <= $2)
		   and (ends_on is null or ends_on >= $2)`,
		membershipID, day)
}

func (s *assignmentStore) ListByRole(ctx context.Context, roleID string) ([]VolunteerAssignment, error) {
	return s.list(ctx,
		`select `+assignmentColumns+` from volunteer_assignments where role_id=$1`, roleID)
}

func (s *assignmentStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update volunteer_assignments set is_active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Group store ---------------------------------------------------------------

type groupStore struct{ db *sql.DB }

func (s *groupStore) Create(ctx context.Context, g *Group) error {
	if g.ID == "" {
		g.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into groups(id, church_id, name, group_type, is_active) values($1,$2,$3,$4,$5)`,
		g.ID, g.ChurchID, g.Name, g.GroupType, g.IsActive,
	)
	return mapWriteErr(err)
}

func (s *groupStore) Find(ctx context.Context, id string) (*Group, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, church_id, name, group_type, is_active, created_at, updated_at from groups where id=$1`, id)
	var g Group
	if err := row.Scan(&g.ID, &g.ChurchID, &g.Name, &g.GroupType, &g.IsActive, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *groupStore) ListByChurch(ctx context.Context, churchID string) ([]*Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, church_id, name, group_type, is_active, created_at, updated_at from groups where church_id=$1 order by name`, churchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.ChurchID, &g.Name, &g.GroupType, &g.IsActive, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &g)
	}
	return res, rows.Err()
}

// Permission store ----------------------------------------------------------

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Ensure(ctx context.Context, perms []PermissionMeta) error {
	for _, p := range perms {
		_, err := s.db.ExecContext(ctx,
			`insert into detailed_permissions(id, code, label, category, min_level)
			 values($1,$2,$3,$4,$5) on conflict (code) do nothing`,
			ids.New(), p.Code, p.Label, p.Category, p.MinLevel,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *permissionStore) List(ctx context.Context) ([]PermissionMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`select code, label, category, min_level, created_at from detailed_permissions order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []PermissionMeta
	for rows.Next() {
		var p PermissionMeta
		if err := rows.Scan(&p.Code, &p.Label, &p.Category, &p.MinLevel, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
