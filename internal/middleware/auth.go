package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/curtistech/unlock-server/internal/audit"
	apperrors "github.com/curtistech/unlock-server/internal/errors"
	"github.com/curtistech/unlock-server/internal/util"
)

// AdminAuthMiddleware guards the admin routes with a shared password sent as
// a bearer token and checked against a bcrypt hash. Repeated failures from
// one client are throttled.
type AdminAuthMiddleware struct {
	passwordHash string
	failures     *FailureLimiter
}

func NewAdminAuthMiddleware(passwordHash string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		passwordHash: passwordHash,
		failures:     NewFailureLimiter(),
	}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.passwordHash == "" {
			writeError(w, apperrors.NotConfigured("Admin access"))
			return
		}

		ip := audit.ClientIP(r)
		if m.failures.Blocked(ip) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]any{"scope": "admin_auth"},
			})
			w.Header().Set("Retry-After", "60")
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		password := extractToken(r)
		if password == "" {
			writeError(w, apperrors.Unauthorized("Missing admin credentials"))
			return
		}

		if !util.CheckPasswordHash(password, m.passwordHash) {
			m.failures.Record(ip)
			log.Warn().Str("path", r.URL.Path).Msg("admin auth: invalid password")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]any{"path": r.URL.Path},
			})
			writeError(w, apperrors.Unauthorized("Invalid admin credentials"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}
