package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"faithbase.org/internal/audit"
	"faithbase.org/internal/auth"
)

type createChurchRequest struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Timezone string `json:"timezone"`
}

type createUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Superuser bool   `json:"superuser"`
}

type createMembershipRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Name   string `json:"name"`
}

type updateMembershipRequest struct {
	Role string `json:"role"`
}

type createGroupRequest struct {
	Name      string `json:"name"`
	GroupType string `json:"group_type"`
}

type roleRequest struct {
	Name               string   `json:"name"`
	Code               string   `json:"code"`
	Category           string   `json:"category"`
	Description        string   `json:"description"`
	RequiredLevel      int      `json:"required_level"`
	RequiresTraining   bool     `json:"requires_training"`
	DefaultPermissions []string `json:"default_permissions"`
	TargetGroupIDs     []string `json:"target_group_ids"`
}

type targetGroupsRequest struct {
	GroupIDs []string `json:"group_ids"`
}

type createAssignmentRequest struct {
	RoleID            string     `json:"role_id"`
	CustomPermissions []string   `json:"custom_permissions"`
	StartsOn          *time.Time `json:"starts_on"`
	EndsOn            *time.Time `json:"ends_on"`
}

// requireSuperuser gates the endpoints with no church context of their own.
func (a *API) requireSuperuser(w http.ResponseWriter, r *http.Request) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !principal.Superuser {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

func (a *API) handleChurches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireSuperuser(w, r) {
		return
	}
	var req createChurchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	church, err := a.service.RegisterChurch(r.Context(), req.Name, req.Code, req.Timezone)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "church.create", map[string]any{"church_id": church.ID, "code": church.Code})
	w.Header().Set("Location", fmt.Sprintf("/v1/churches/%s", church.ID))
	writeJSON(w, http.StatusCreated, church)
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireSuperuser(w, r) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.service.CreateUser(r.Context(), req.Email, req.Password, req.Superuser)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.create", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusCreated, user)
}

// handleChurchScoped routes /v1/churches/{id}/<collection>.
func (a *API) handleChurchScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/churches/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	churchID := parts[0]
	switch parts[1] {
	case "memberships":
		a.handleChurchMemberships(w, r, churchID)
	case "groups":
		a.handleChurchGroups(w, r, churchID)
	case "volunteer-roles":
		a.handleChurchRoles(w, r, churchID)
	case "seed-roles":
		a.handleSeedRoles(w, r, churchID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleChurchMemberships(w http.ResponseWriter, r *http.Request, churchID string) {
	switch r.Method {
	case http.MethodPost:
		// Adding members changes who can act in the tenant; admin territory.
		if !a.ensureAuthorized(w, r, churchID, "member.update", &auth.TargetRef{ChurchID: churchID}) {
			return
		}
		var req createMembershipRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		m, err := a.service.AddMembership(r.Context(), req.UserID, churchID, auth.CoarseRole(req.Role), req.Name)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "membership.create", map[string]any{
			"membership_id": m.ID, "user_id": m.UserID, "role": string(m.Role),
		})
		writeJSON(w, http.StatusCreated, m)
	case http.MethodGet:
		if !a.ensureAuthorized(w, r, churchID, "member.view", nil) {
			return
		}
		list, err := a.service.ListMemberships(r.Context(), churchID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"memberships": list})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleChurchGroups(w http.ResponseWriter, r *http.Request, churchID string) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensureAuthorized(w, r, churchID, "group.create", &auth.TargetRef{ChurchID: churchID}) {
			return
		}
		var req createGroupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		g, err := a.service.CreateGroup(r.Context(), churchID, req.Name, req.GroupType)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "group.create", map[string]any{"group_id": g.ID})
		writeJSON(w, http.StatusCreated, g)
	case http.MethodGet:
		if !a.ensureAuthorized(w, r, churchID, "group.view", nil) {
			return
		}
		list, err := a.service.ListGroups(r.Context(), churchID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": list})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleChurchRoles(w http.ResponseWriter, r *http.Request, churchID string) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensureAuthorized(w, r, churchID, "group.manage", &auth.TargetRef{ChurchID: churchID}) {
			return
		}
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		principal, _ := auth.PrincipalFromContext(r.Context())
		role, err := a.service.CreateVolunteerRole(r.Context(), churchID, auth.RoleInput{
			Name:               req.Name,
			Code:               req.Code,
			Category:           req.Category,
			Description:        req.Description,
			RequiredLevel:      req.RequiredLevel,
			RequiresTraining:   req.RequiresTraining,
			DefaultPermissions: req.DefaultPermissions,
			TargetGroupIDs:     req.TargetGroupIDs,
			CreatedBy:          principal.ID,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "volunteer_role.create", map[string]any{"role_id": role.ID, "code": role.Code})
		w.Header().Set("Location", fmt.Sprintf("/v1/volunteer-roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	case http.MethodGet:
		if !a.ensureAuthorized(w, r, churchID, "group.view", nil) {
			return
		}
		roles, err := a.service.ListVolunteerRoles(r.Context(), churchID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleSeedRoles(w http.ResponseWriter, r *http.Request, churchID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureAuthorized(w, r, churchID, "group.manage", &auth.TargetRef{ChurchID: churchID}) {
		return
	}
	created, err := a.service.SeedDefaultRoles(r.Context(), churchID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "volunteer_role.seed", map[string]any{"created": created})
	writeJSON(w, http.StatusOK, map[string]any{"created": created})
}

// handleMembershipResource routes /v1/memberships/{id}[/assignments].
func (a *API) handleMembershipResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/memberships/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) > 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	membershipID := parts[0]

	m, err := a.service.FindMembership(r.Context(), membershipID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	target := &auth.TargetRef{ChurchID: m.ChurchID, UserID: m.UserID}

	if len(parts) == 2 {
		if parts[1] != "assignments" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleMembershipAssignments(w, r, m)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		if !a.ensureAuthorized(w, r, m.ChurchID, "member.update", target) {
			return
		}
		var req updateMembershipRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.service.SetMembershipRole(r.Context(), membershipID, auth.CoarseRole(req.Role)); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "membership.role.update", map[string]any{
			"membership_id": membershipID, "role": req.Role,
		})
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if !a.ensureAuthorized(w, r, m.ChurchID, "member.delete", target) {
			return
		}
		if err := a.service.DeactivateMembership(r.Context(), membershipID); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "membership.deactivate", map[string]any{"membership_id": membershipID})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleMembershipAssignments(w http.ResponseWriter, r *http.Request, m *auth.Membership) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureAuthorized(w, r, m.ChurchID, "member.update", &auth.TargetRef{ChurchID: m.ChurchID}) {
		return
	}
	var req createAssignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	assignment, err := a.service.AssignVolunteer(r.Context(), m.ID, req.RoleID, auth.AssignmentInput{
		CustomPermissions: req.CustomPermissions,
		StartsOn:          req.StartsOn,
		EndsOn:            req.EndsOn,
		ApprovedBy:        principal.ID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "assignment.create", map[string]any{
		"assignment_id": assignment.ID, "membership_id": m.ID, "role_id": req.RoleID,
	})
	writeJSON(w, http.StatusCreated, assignment)
}

// handleRoleResource routes /v1/volunteer-roles/{id}[/target-groups].
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/volunteer-roles/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) > 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleID := parts[0]
	role, err := a.service.FindVolunteerRole(r.Context(), roleID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	target := &auth.TargetRef{ChurchID: role.ChurchID}

	if len(parts) == 2 {
		if parts[1] != "target-groups" || r.Method != http.MethodPut {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if !a.ensureAuthorized(w, r, role.ChurchID, "group.manage", target) {
			return
		}
		var req targetGroupsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.service.SetRoleTargetGroups(r.Context(), roleID, req.GroupIDs); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "volunteer_role.target_groups.update", map[string]any{
			"role_id": roleID, "count": len(req.GroupIDs),
		})
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch r.Method {
	case http.MethodPut:
		if !a.ensureAuthorized(w, r, role.ChurchID, "group.manage", target) {
			return
		}
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.service.UpdateVolunteerRole(r.Context(), roleID, auth.RoleInput{
			Name:               req.Name,
			Category:           req.Category,
			Description:        req.Description,
			RequiredLevel:      req.RequiredLevel,
			RequiresTraining:   req.RequiresTraining,
			DefaultPermissions: req.DefaultPermissions,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "volunteer_role.update", map[string]any{"role_id": roleID})
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if !a.ensureAuthorized(w, r, role.ChurchID, "group.manage", target) {
			return
		}
		if err := a.service.DeactivateVolunteerRole(r.Context(), roleID); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "volunteer_role.deactivate", map[string]any{"role_id": roleID})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

// handleAssignmentResource routes /v1/assignments/{id}.
func (a *API) handleAssignmentResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/assignments/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	m, err := a.service.MembershipForAssignment(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !a.ensureAuthorized(w, r, m.ChurchID, "member.update", &auth.TargetRef{ChurchID: m.ChurchID}) {
		return
	}
	if err := a.service.RevokeAssignment(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "assignment.revoke", map[string]any{"assignment_id": id})
	w.WriteHeader(http.StatusNoContent)
}
