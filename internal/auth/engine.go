package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"faithbase.org/internal/obs"
)

// Reason explains which rule produced a decision. Reasons feed metrics and
// audit lines; they are never shown to end users.
type Reason string

const (
	ReasonSuperuser       Reason = "superuser"
	ReasonNoChurchContext Reason = "no_church_context"
	ReasonNoMembership    Reason = "no_membership"
	ReasonCoarseRole      Reason = "coarse_role"
	ReasonNoRequirement   Reason = "no_required_permission"
	ReasonViewGrant       Reason = "view_grant"
	ReasonScopeAll        Reason = "scope_all"
	ReasonScopeOwnGroup   Reason = "scope_own_group"
	ReasonScopeOwn        Reason = "scope_own"
	ReasonNoGrant         Reason = "no_matching_grant"
	ReasonChurchMismatch  Reason = "church_mismatch"
	ReasonStoreError      Reason = "store_error"
)

// Decision is the outcome of an authorization check. Denials are values,
// not errors.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

func allow(reason Reason) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason Reason) Decision  { return Decision{Allowed: false, Reason: reason} }

// Engine resolves "may this principal perform this action on this object"
// by walking superuser -> coarse church role -> volunteer-assignment scope
// -> object ownership, consulting the snapshot cache along the way.
type Engine struct {
	store Store
	cache *SnapshotCache
	now   func() time.Time
}

// EngineOption configures Engine behavior.
type EngineOption func(*Engine)

// WithCache attaches a snapshot cache. Without one every check hits the store.
func WithCache(cache *SnapshotCache) EngineOption {
	return func(e *Engine) { e.cache = cache }
}

// WithEngineClock overrides the time source (useful for tests).
func WithEngineClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine constructs an Engine backed by the given store.
func NewEngine(store Store, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("auth: engine store is required")
	}
	e := &Engine{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Authorize decides whether principal may perform the action named by
// required (a `resource.action` base, normally derived via
// RequiredPermission) inside churchID, optionally against target.
//
// Denial is returned as a Decision, never as an error. An error is returned
// only when the backing store cannot be reached (ErrStoreUnavailable);
// callers must treat any error as a denial.
func (e *Engine) Authorize(ctx context.Context, principal PrincipalRef, churchID, required string, target *TargetRef) (Decision, error) {
	d, err := e.authorize(ctx, principal, churchID, required, target)
	if err != nil {
		obs.AuthzDecision(false, string(ReasonStoreError))
		return deny(ReasonStoreError), err
	}
	obs.AuthzDecision(d.Allowed, string(d.Reason))
	return d, nil
}

func (e *Engine) authorize(ctx context.Context, principal PrincipalRef, churchID, required string, target *TargetRef) (Decision, error) {
	if principal.Superuser {
		return allow(ReasonSuperuser), nil
	}
	// No church context: the endpoint is church-independent and the caller
	// does its own gating.
	if churchID == "" {
		return allow(ReasonNoChurchContext), nil
	}

	snap, err := e.snapshot(ctx, principal.ID, churchID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return deny(ReasonNoMembership), nil
		}
		return Decision{}, err
	}
	if !snap.Membership.IsActive {
		return deny(ReasonNoMembership), nil
	}

	// Coarse-role short circuit. At the view level staff is trusted; at the
	// object level only admins bypass fine-grained checks.
	if target == nil {
		if snap.Membership.IsStaff() {
			return allow(ReasonCoarseRole), nil
		}
	} else if snap.Membership.IsAdmin() {
		return allow(ReasonCoarseRole), nil
	}

	if required == "" {
		return allow(ReasonNoRequirement), nil
	}
	base, err := ParsePermission(required)
	if err != nil {
		return Decision{}, err
	}

	if target == nil {
		return e.viewDecision(snap, base), nil
	}
	return e.objectDecision(snap, base, churchID, *target), nil
}

// viewDecision passes when any active assignment carries the required
// resource+action at any scope; scope enforcement happens at object level.
func (e *Engine) viewDecision(snap Snapshot, required PermissionCode) Decision {
	prefix := required.Base()
	for _, ra := range snap.Assignments {
		for _, code := range ra.Permissions {
			if code == prefix || len(code) > len(prefix) && code[:len(prefix)] == prefix && code[len(prefix)] == '.' {
				return allow(ReasonViewGrant)
			}
		}
	}
	return deny(ReasonNoGrant)
}

// objectDecision enforces scopes. An unscoped grant (bare resource.action)
// deliberately never matches here, matching the long-standing behavior of
// the permission system this replaces.
func (e *Engine) objectDecision(snap Snapshot, required PermissionCode, churchID string, target TargetRef) Decision {
	if target.ChurchID != "" && target.ChurchID != churchID {
		return deny(ReasonChurchMismatch)
	}

	base := required.Base()
	manageBase := required.Resource + "." + ActionManage

	for _, ra := range snap.Assignments {
		if ra.HasPermission(base+"."+ScopeAll) || ra.HasPermission(manageBase+"."+ScopeAll) {
			return allow(ReasonScopeAll)
		}
		if ra.HasPermission(base+"."+ScopeOwnGroup) || ra.HasPermission(manageBase+"."+ScopeOwnGroup) {
			if IsInOwnGroup(ra.Role, target) {
				return allow(ReasonScopeOwnGroup)
			}
		}
		if ra.HasPermission(base + "." + ScopeOwn) {
			if IsOwnData(target, snap.Membership.UserID) {
				return allow(ReasonScopeOwn)
			}
		}
	}
	return deny(ReasonNoGrant)
}

// snapshot returns the cached membership view for the pair, falling back to
// a direct store load on miss. Store failures (including context
// cancellation) surface as ErrStoreUnavailable; ErrNotFound passes through.
func (e *Engine) snapshot(ctx context.Context, userID, churchID string) (Snapshot, error) {
	if snap, ok := e.cache.Get(userID, churchID); ok {
		return snap, nil
	}
	snap, err := e.loadSnapshot(ctx, userID, churchID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.cache.Put(userID, churchID, snap)
	return snap, nil
}

func (e *Engine) loadSnapshot(ctx context.Context, userID, churchID string) (Snapshot, error) {
	start := e.now()
	defer func() { obs.ObserveSnapshotLoad(time.Since(start)) }()

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	membership, err := e.store.Memberships(ctx).FindByUserAndChurch(ctx, userID, churchID)
	if err != nil {
		return Snapshot{}, err
	}

	assignments, err := e.store.Assignments(ctx).ListActiveByMembership(ctx, membership.ID, e.now().UTC())
	if err != nil {
		return Snapshot{}, err
	}

	roles := e.store.VolunteerRoles(ctx)
	resolved := make([]ResolvedAssignment, 0, len(assignments))
	for _, a := range assignments {
		role, err := roles.Find(ctx, a.RoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // role deleted underneath the assignment
			}
			return Snapshot{}, err
		}
		if !role.IsActive {
			continue
		}
		resolved = append(resolved, ResolvedAssignment{
			Assignment:  a,
			Role:        *role,
			Permissions: unionCodes(role.DefaultPermissions, a.CustomPermissions),
		})
	}

	return Snapshot{
		Membership:  *membership,
		Assignments: resolved,
		ResolvedAt:  e.now().UTC(),
	}, nil
}
