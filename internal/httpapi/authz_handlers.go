package httpapi

import (
	"net/http"
	"strings"
	"time"

	"faithbase.org/internal/audit"
	"faithbase.org/internal/auth"
)

const tokenTTL = 12 * time.Hour

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	ChurchID string `json:"church_id"`
}

type loginResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	ExpiresIn int64  `json:"expires_in"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"email": req.Email})
		handleServiceError(w, r, err)
		return
	}
	token, err := auth.GenerateToken(user.ID, strings.TrimSpace(req.ChurchID), user.IsSuperuser, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		UserID:    user.ID,
		ExpiresIn: int64(tokenTTL.Seconds()),
	})
}

type authorizeRequest struct {
	ChurchID string          `json:"church_id"`
	Required string          `json:"required"`
	Resource string          `json:"resource"`
	Method   string          `json:"method"`
	Target   *auth.TargetRef `json:"target"`
}

// handleAuthorize answers "may the calling principal perform this action".
// The requirement is either given directly as `required` or derived from
// `resource` + `method`. Denials come back as 200 with allowed=false; only
// infrastructure failures surface as errors.
func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req authorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	churchID := strings.TrimSpace(req.ChurchID)
	if churchID == "" {
		churchID, _ = auth.ChurchFromContext(r.Context())
	}
	required := strings.TrimSpace(req.Required)
	if required == "" && req.Resource != "" {
		required = auth.RequiredPermission(req.Resource, req.Method)
	}

	decision, err := a.engine.Authorize(r.Context(), principal, churchID, required, req.Target)
	if err != nil {
		audit.Decision(r.Context(), required, false, string(decision.Reason))
		writeError(w, r, http.StatusServiceUnavailable, "authorization unavailable")
		return
	}
	if !decision.Allowed {
		audit.Decision(r.Context(), required, false, string(decision.Reason))
	}
	writeJSON(w, http.StatusOK, decision)
}

// handlePermissions lists the permission catalog.
func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": a.service.Catalog().List(),
	})
}

// ensureAuthorized runs an engine check for a mutating admin endpoint and
// writes the failure response itself. Any engine error is a denial.
func (a *API) ensureAuthorized(w http.ResponseWriter, r *http.Request, churchID, required string, target *auth.TargetRef) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	decision, err := a.engine.Authorize(r.Context(), principal, churchID, required, target)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "authorization unavailable")
		return false
	}
	if !decision.Allowed {
		audit.Decision(r.Context(), required, false, string(decision.Reason))
		writeError(w, r, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}
