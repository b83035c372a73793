package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

var checkoutPayload = []byte(`{
	"id": "evt_123",
	"object": "event",
	"type": "checkout.session.completed",
	"data": {"object": {"id": "cs_test_ABCDEFGHIJKL", "object": "checkout.session"}}
}`)

func signedRequest(t *testing.T, payload []byte, secret string, ts time.Time) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	})
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func capturingHandler(got **stripe.Event) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = GetStripeEvent(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestStripeSignatureMiddleware(t *testing.T) {
	t.Run("valid signature passes the event on", func(t *testing.T) {
		var got *stripe.Event
		handler := NewStripeSignatureMiddleware(testWebhookSecret).Handler(capturingHandler(&got))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(t, checkoutPayload, testWebhookSecret, time.Now()))

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got)
		assert.Equal(t, "evt_123", got.ID)
		assert.Equal(t, stripe.EventType("checkout.session.completed"), got.Type)
	})

	t.Run("missing signature is rejected", func(t *testing.T) {
		var got *stripe.Event
		handler := NewStripeSignatureMiddleware(testWebhookSecret).Handler(capturingHandler(&got))

		req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(checkoutPayload))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_SIGNATURE")
		assert.Nil(t, got)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		var got *stripe.Event
		handler := NewStripeSignatureMiddleware(testWebhookSecret).Handler(capturingHandler(&got))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(t, checkoutPayload, "whsec_other", time.Now()))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, got)
	})

	t.Run("stale timestamp is rejected", func(t *testing.T) {
		var got *stripe.Event
		handler := NewStripeSignatureMiddleware(testWebhookSecret).Handler(capturingHandler(&got))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(t, checkoutPayload, testWebhookSecret, time.Now().Add(-time.Hour)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, got)
	})

	t.Run("authentic but unparseable body is acknowledged", func(t *testing.T) {
		var got *stripe.Event
		handler := NewStripeSignatureMiddleware(testWebhookSecret).Handler(capturingHandler(&got))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(t, []byte(`{not json`), testWebhookSecret, time.Now()))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received": true}`, rec.Body.String())
		assert.Nil(t, got)
	})

	t.Run("no secret skips verification", func(t *testing.T) {
		var got *stripe.Event
		handler := NewStripeSignatureMiddleware("").Handler(capturingHandler(&got))

		req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(checkoutPayload))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got)
		assert.Equal(t, "evt_123", got.ID)
	})

	t.Run("body over limit", func(t *testing.T) {
		var got *stripe.Event
		handler := NewBodyLimitMiddleware(16).Handler(
			NewStripeSignatureMiddleware("").Handler(capturingHandler(&got)))

		req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(checkoutPayload))
		req.ContentLength = -1
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Nil(t, got)
	})
}

func TestGetStripeEvent_Empty(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhook", nil)
	assert.Nil(t, GetStripeEvent(req.Context()))
}
