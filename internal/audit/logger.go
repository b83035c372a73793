package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/curtistech/unlock-server/internal/util"
)

type EventType string

const (
	EventCodeIssue          EventType = "code_issue"
	EventCodeRedeem         EventType = "code_redeem"
	EventCodeRedeemRejected EventType = "code_redeem_rejected"
	EventCodeLookup         EventType = "code_lookup"
	EventWebhookIngest      EventType = "webhook_ingest"
	EventAuthFailure        EventType = "auth_failure"
	EventRateLimitExceed    EventType = "rate_limit_exceeded"
)

type Event struct {
	Type      EventType
	Code      string
	Product   string
	IP        string
	UserAgent string
	Details   map[string]any
}

// Log writes one security audit line. Codes are always masked; Details
// are attached as top-level fields.
func Log(ctx context.Context, event Event) {
	e := log.Info().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now())

	optional := map[string]string{
		"product":    event.Product,
		"ip":         event.IP,
		"user_agent": event.UserAgent,
	}
	if event.Code != "" {
		optional["code"] = util.MaskCode(event.Code)
	}
	for k, v := range optional {
		if v != "" {
			e = e.Str(k, v)
		}
	}

	if len(event.Details) > 0 {
		e = e.Fields(event.Details)
	}
	e.Msg("security audit event")
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP returns the caller's address without a port: the first
// X-Forwarded-For hop when present, else RemoteAddr (which chi's RealIP
// middleware may already have rewritten).
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
