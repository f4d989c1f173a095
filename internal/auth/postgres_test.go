package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewPGStore(db), mock
}

func TestPGChurchCreateAssignsID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into churches").
		WithArgs(sqlmock.AnyArg(), "Grace", "GRACE", "UTC", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	church := &Church{Name: "Grace", Code: "GRACE", Timezone: "UTC"}
	if err := store.Churches(context.Background()).Create(context.Background(), church); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if church.ID == "" {
		t.Fatal("id not assigned")
	}
}

func TestPGChurchCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into churches").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Churches(context.Background()).Create(context.Background(), &Church{Name: "Grace", Code: "GRACE"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestPGChurchFindNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select id, name, code, timezone, metadata, created_at, updated_at from churches").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Churches(context.Background()).Find(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestPGMembershipFindByUserAndChurch(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "church_id", "role", "name", "phone", "is_active", "joined_at", "updated_at"}).
		AddRow("m1", "u1", "ch1", "church_staff", "Jo", "", true, now, now)
	mock.ExpectQuery("select (.+) from church_users where user_id=").
		WithArgs("u1", "ch1").
		WillReturnRows(rows)

	m, err := store.Memberships(context.Background()).FindByUserAndChurch(context.Background(), "u1", "ch1")
	if err != nil {
		t.Fatalf("FindByUserAndChurch: %v", err)
	}
	if m.Role != RoleChurchStaff || !m.IsActive {
		t.Fatalf("unexpected membership: %+v", m)
	}
	if !m.IsStaff() || m.IsAdmin() {
		t.Fatalf("coarse role helpers wrong for %q", m.Role)
	}
}

func TestPGMembershipSetActiveNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update church_users set is_active").
		WithArgs("missing", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Memberships(context.Background()).SetActive(context.Background(), "missing", false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestPGVolunteerRoleFindLoadsTargetGroups(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	roleRows := sqlmock.NewRows([]string{
		"id", "church_id", "name", "code", "category", "description", "required_level",
		"requires_training", "default_permissions", "is_active", "created_by", "created_at", "updated_at",
	}).AddRow("r1", "ch1", "Teacher", "teacher", "education", "", 2, true,
		[]byte(`["member.view.own_group","attendance.create.own_group"]`), true, nil, now, now)
	mock.ExpectQuery("from volunteer_roles where id=").
		WithArgs("r1").
		WillReturnRows(roleRows)
	mock.ExpectQuery("select group_id from volunteer_role_groups").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow("g1").AddRow("g2"))

	role, err := store.VolunteerRoles(context.Background()).Find(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(role.DefaultPermissions) != 2 {
		t.Fatalf("permissions not decoded: %v", role.DefaultPermissions)
	}
	if len(role.TargetGroupIDs) != 2 || role.TargetGroupIDs[0] != "g1" {
		t.Fatalf("target groups not loaded: %v", role.TargetGroupIDs)
	}
}

func TestPGSetTargetGroupsReplacesInTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("delete from volunteer_role_groups").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into volunteer_role_groups").
		WithArgs("r1", "g9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.VolunteerRoles(context.Background()).SetTargetGroups(context.Background(), "r1", []string{"g9"})
	if err != nil {
		t.Fatalf("SetTargetGroups: %v", err)
	}
}

func TestPGAssignmentListActiveDecodesNullableFields(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	ends := now.AddDate(0, 3, 0)
	rows := sqlmock.NewRows([]string{
		"id", "church_user_id", "role_id", "custom_permissions", "starts_on", "ends_on",
		"is_active", "approved_by", "approved_at", "created_at", "updated_at",
	}).
		AddRow("a1", "m1", "r1", []byte(`["report.view.all"]`), nil, ends, true, "pastor", now, now, now).
		AddRow("a2", "m1", "r2", []byte(`[]`), nil, nil, true, nil, nil, now, now)
	mock.ExpectQuery("from volunteer_assignments").
		WithArgs("m1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	list, err := store.Assignments(context.Background()).ListActiveByMembership(context.Background(), "m1", now)
	if err != nil {
		t.Fatalf("ListActiveByMembership: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d assignments, want 2", len(list))
	}
	if list[0].EndsOn == nil || list[0].ApprovedAt == nil || list[0].ApprovedBy != "pastor" {
		t.Fatalf("nullable fields lost: %+v", list[0])
	}
	if list[1].StartsOn != nil || list[1].EndsOn != nil || list[1].ApprovedBy != "" {
		t.Fatalf("null columns decoded as values: %+v", list[1])
	}
	if len(list[0].CustomPermissions) != 1 {
		t.Fatalf("custom permissions not decoded: %v", list[0].CustomPermissions)
	}
}

func TestPGAssignmentCreateMapsDuplicateActivePair(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into volunteer_assignments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "volunteer_assignments_active_pair_key"})

	err := store.Assignments(context.Background()).Create(context.Background(), &VolunteerAssignment{
		MembershipID: "m1", RoleID: "r1", IsActive: true,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestPGAssignmentCreateMapsForeignKeyViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into volunteer_assignments").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := store.Assignments(context.Background()).Create(context.Background(), &VolunteerAssignment{
		MembershipID: "missing", RoleID: "r1", IsActive: true,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestPGPermissionEnsureUpserts(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into detailed_permissions").
		WithArgs(sqlmock.AnyArg(), "member.view.all", "view members", "members", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Permissions(context.Background()).Ensure(context.Background(), []PermissionMeta{
		{Code: "member.view.all", Label: "view members", Category: "members", MinLevel: 1},
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
}
