package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/curtistech/unlock-server/internal/audit"
	apperrors "github.com/curtistech/unlock-server/internal/errors"
	"github.com/curtistech/unlock-server/internal/metrics"
	"github.com/curtistech/unlock-server/internal/service"
)

type AdminHandler struct {
	ledger         *service.Ledger
	authMiddleware func(http.Handler) http.Handler
}

func NewAdminHandler(ledger *service.Ledger, authMiddleware func(http.Handler) http.Handler) *AdminHandler {
	return &AdminHandler{
		ledger:         ledger,
		authMiddleware: authMiddleware,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.authMiddleware)

	r.Post("/create-code", h.CreateCode)
	r.Get("/codes", h.ListCodes)
	r.Get("/stats", h.Stats)

	return r
}

type createCodeRequest struct {
	Code    string `json:"code"`
	Product string `json:"product"`
}

func (h *AdminHandler) CreateCode(w http.ResponseWriter, r *http.Request) {
	var req createCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperrors.InvalidInput("body", "expected JSON"))
		return
	}

	rec, err := h.ledger.Issue(r.Context(), req.Code, req.Product)
	if err != nil {
		if !apperrors.IsAppError(err) {
			err = apperrors.Storage(err)
		}
		log.Warn().Err(err).Msg("create code failed")
		writeError(w, err)
		return
	}

	metrics.IncIssue("admin")
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventCodeIssue,
		Code:    rec.Code,
		Product: rec.Product,
		Details: map[string]any{"manual": true},
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"code":    rec.Code,
		"product": rec.Product,
	})
}

// ListCodes returns the ledger oldest first; limit and offset are optional.
func (h *AdminHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	recs, err := h.ledger.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list codes")
		writeError(w, apperrors.Storage(err))
		return
	}

	page := ParsePagination(r)
	start, end := page.Window(len(recs))

	codes := make([]map[string]any, 0, end-start)
	for _, rec := range recs[start:end] {
		codes = append(codes, formatRedemption(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"codes":  codes,
		"total":  len(recs),
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get stats")
		writeError(w, apperrors.Storage(err))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
