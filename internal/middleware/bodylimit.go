package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/curtistech/unlock-server/internal/errors"
	"github.com/curtistech/unlock-server/internal/httputil"
)

const DefaultMaxBodySize = 1 << 20

// BodyLimitMiddleware refuses bodies that declare more than maxSize bytes
// and caps the rest, so handlers reading past the cap get *http.MaxBytesError.
type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > m.maxSize {
			log.Warn().
				Str("path", r.URL.Path).
				Int64("contentLength", r.ContentLength).
				Int64("limit", m.maxSize).
				Msg("request body too large")
			writeTooLarge(w, m.maxSize)
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		}
		next.ServeHTTP(w, r)
	})
}

func writeTooLarge(w http.ResponseWriter, limit int64) {
	httputil.WriteErrorWithStatus(w, http.StatusRequestEntityTooLarge,
		apperrors.InvalidInput("body", "request body too large").
			WithDetails(map[string]int64{"maxBytes": limit}))
}
