package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"faithbase.org/internal/auth"
)

const (
	authHeader   = "Authorization"
	bearer       = "Bearer "
	churchHeader = "X-Church-ID"
)

var publicPaths = []string{
	"/v1/login",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// withAuth authenticates bearer tokens and stores the principal and active
// church in the request context. The church comes from the token claim when
// present, otherwise from the X-Church-ID header.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			respondError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				respondError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			respondError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), auth.PrincipalRef{
			ID:        claims.Subject,
			Superuser: claims.Superuser,
		})
		churchID := claims.ChurchID
		if churchID == "" {
			churchID = strings.TrimSpace(r.Header.Get(churchHeader))
		}
		ctx = auth.ContextWithChurch(ctx, churchID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
