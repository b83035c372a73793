package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/curtistech/unlock-server/internal/middleware"
	"github.com/curtistech/unlock-server/internal/notify"
	"github.com/curtistech/unlock-server/internal/repository"
	"github.com/curtistech/unlock-server/internal/service"
)

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Enqueue(msg notify.Message) bool {
	args := m.Called(msg)
	return args.Bool(0)
}

type testServer struct {
	router http.Handler
	ledger *service.Ledger
	queue  *mockQueue
}

func passThrough(next http.Handler) http.Handler { return next }

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ledger := service.NewLedger(repository.NewMemoryStore())
	queue := &mockQueue{}
	ingestor := service.NewIngestor(ledger, queue)

	r := chi.NewRouter()
	r.With(middleware.NewStripeSignatureMiddleware("").Handler).
		Post("/webhook", NewWebhookHandler(ingestor).Handle)
	r.Mount("/admin", NewAdminHandler(ledger, passThrough).Routes())
	r.Mount("/", NewRedeemHandler(ledger).Routes())

	return &testServer{router: r, ledger: ledger, queue: queue}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }
