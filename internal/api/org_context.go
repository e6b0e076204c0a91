package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/ignite/outreach-relay/internal/pkg/httputil"
)

// TenantContextKey is the key for storing the resolved tenant id.
type TenantContextKey struct{}

var (
	errNoTenant       = errors.New("organization ID not found in request")
	errTenantMismatch = errors.New("tenant does not match organization")
)

// ExtractTenantID resolves the caller's tenant.
// Priority: 1. Context (set by middleware), 2. X-Organization-ID header, 3. org_id query param.
// Tenant ids are organization UUIDs in canonical form.
func ExtractTenantID(r *http.Request) (string, error) {
	if id, ok := r.Context().Value(TenantContextKey{}).(string); ok && id != "" {
		return id, nil
	}
	if raw := r.Header.Get("X-Organization-ID"); raw != "" {
		if id, err := uuid.Parse(strings.TrimSpace(raw)); err == nil {
			return id.String(), nil
		}
	}
	if raw := r.URL.Query().Get("org_id"); raw != "" {
		if id, err := uuid.Parse(strings.TrimSpace(raw)); err == nil {
			return id.String(), nil
		}
	}
	return "", errNoTenant
}

// canonicalTenant normalizes a tenant id supplied in a body or query.
func canonicalTenant(raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// RequireTenant rejects requests without a resolvable tenant and stores it in
// the request context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := ExtractTenantID(r)
		if err != nil {
			httputil.Unauthorized(w, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), TenantContextKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorizeTenant checks that a declared tenant belongs to the caller's
// organization. It backs both the SSE tenant_id parameter and POST /realtime/join.
func authorizeTenant(r *http.Request, declared string) (string, error) {
	tenant, ok := canonicalTenant(declared)
	if !ok {
		return "", errTenantMismatch
	}
	caller, err := ExtractTenantID(r)
	if err != nil {
		return "", err
	}
	if caller != tenant {
		return "", errTenantMismatch
	}
	return tenant, nil
}

// sessionKey identifies the dashboard session owning a notification checkpoint.
func sessionKey(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get("X-Session-ID")); s != "" {
		return s
	}
	for _, name := range []string{"session_id", "session"} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// forwardedHeaders copies the caller credentials the engine needs.
func forwardedHeaders(r *http.Request) http.Header {
	h := http.Header{}
	for _, name := range []string{"Authorization", "Cookie", "X-Organization-ID"} {
		if v := r.Header.Values(name); len(v) > 0 {
			h[name] = append([]string(nil), v...)
		}
	}
	return h
}
