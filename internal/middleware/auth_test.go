package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func adminRequest(token string) *http.Request {
	req := httptest.NewRequest("GET", "/admin/codes", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAdminAuthMiddleware(t *testing.T) {
	hash := testHash(t, "hunter2")

	tests := []struct {
		name       string
		hash       string
		token      string
		wantStatus int
		wantCode   string
	}{
		{"valid password", hash, "hunter2", http.StatusOK, ""},
		{"missing token", hash, "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong password", hash, "letmein", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"admin not configured", "", "hunter2", http.StatusServiceUnavailable, "NOT_CONFIGURED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAdminAuthMiddleware(tt.hash).Handler(okHandler())

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, adminRequest(tt.token))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Contains(t, rec.Body.String(), tt.wantCode)
			}
		})
	}
}

func TestAdminAuthMiddleware_ThrottlesFailures(t *testing.T) {
	hash := testHash(t, "hunter2")
	handler := NewAdminAuthMiddleware(hash).Handler(okHandler())

	for i := 0; i < authMaxFailures; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, adminRequest("wrong"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, adminRequest("hunter2"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestFailureLimiter(t *testing.T) {
	now := time.Now()
	l := NewFailureLimiter()
	l.now = func() time.Time { return now }

	for i := 0; i < authMaxFailures-1; i++ {
		l.Record("ip")
	}
	assert.False(t, l.Blocked("ip"))

	l.Record("ip")
	assert.True(t, l.Blocked("ip"))
	assert.False(t, l.Blocked("other-ip"))

	now = now.Add(authWindowDuration + time.Second)
	assert.False(t, l.Blocked("ip"), "window expired")
}

func TestExtractToken(t *testing.T) {
	assert.Equal(t, "abc", extractToken(adminRequest("abc")))
	assert.Equal(t, "", extractToken(adminRequest("")))

	req := adminRequest("")
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	assert.Equal(t, "", extractToken(req))
}
