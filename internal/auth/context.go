package auth

import (
	"context"
	"strings"
)

type ctxKey string

const (
	principalKey ctxKey = "auth_principal"
	churchKey    ctxKey = "auth_church_id"
)

// ContextWithPrincipal stores the authenticated principal in the context.
func ContextWithPrincipal(ctx context.Context, p PrincipalRef) context.Context {
	p.ID = strings.TrimSpace(p.ID)
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated principal from context.
func PrincipalFromContext(ctx context.Context) (PrincipalRef, bool) {
	p, ok := ctx.Value(principalKey).(PrincipalRef)
	if !ok || p.ID == "" {
		return PrincipalRef{}, false
	}
	return p, true
}

// ContextWithChurch stores the active church (tenant) in the context.
func ContextWithChurch(ctx context.Context, churchID string) context.Context {
	churchID = strings.TrimSpace(churchID)
	if churchID == "" {
		return ctx
	}
	return context.WithValue(ctx, churchKey, churchID)
}

// ChurchFromContext returns the active church stored in context.
func ChurchFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(churchKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
