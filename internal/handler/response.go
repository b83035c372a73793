package handler

import (
	"net/http"
	"time"

	"github.com/curtistech/unlock-server/internal/httputil"
	"github.com/curtistech/unlock-server/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func formatRedemption(rec model.Redemption) map[string]any {
	return map[string]any{
		"code":            rec.Code,
		"product":         rec.Product,
		"sourceSessionId": deref(rec.SourceSessionID),
		"purchaserEmail":  deref(rec.PurchaserEmail),
		"purchaserName":   deref(rec.PurchaserName),
		"manual":          rec.Manual,
		"state":           rec.State,
		"createdAt":       rec.CreatedAt.Format(time.RFC3339),
		"usedAt":          formatTime(rec.UsedAt),
	}
}
