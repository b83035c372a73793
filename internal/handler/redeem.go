package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/curtistech/unlock-server/internal/audit"
	apperrors "github.com/curtistech/unlock-server/internal/errors"
	"github.com/curtistech/unlock-server/internal/metrics"
	"github.com/curtistech/unlock-server/internal/model"
	"github.com/curtistech/unlock-server/internal/service"
)

type RedeemHandler struct {
	ledger *service.Ledger
}

func NewRedeemHandler(ledger *service.Ledger) *RedeemHandler {
	return &RedeemHandler{ledger: ledger}
}

func (h *RedeemHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/validate", h.Validate)
	r.Get("/get-code", h.GetCode)
	return r
}

type validateRequest struct {
	Code    string `json:"code"`
	Product string `json:"product"`
}

// Validate redeems a code. Rejections are 200 responses with valid=false
// and a reason; only storage failures produce an error status.
func (h *RedeemHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "expected JSON with a code field"))
		return
	}

	res, err := h.ledger.Redeem(r.Context(), req.Code, req.Product)
	if err != nil {
		log.Error().Err(err).Msg("redeem failed")
		writeError(w, apperrors.Storage(err))
		return
	}

	event := audit.Event{Type: audit.EventCodeRedeem, Product: req.Product}
	if res.Record != nil {
		event.Code = res.Record.Code
	}

	if !res.Valid {
		metrics.IncRedeem(string(res.Reason))
		event.Type = audit.EventCodeRedeemRejected
		event.Details = map[string]any{"reason": string(res.Reason)}
		audit.LogFromRequest(r, event)

		writeJSON(w, http.StatusOK, map[string]any{
			"valid":   false,
			"reason":  res.Reason,
			"message": rejectionError(res.Reason, req.Product).Message,
		})
		return
	}

	metrics.IncRedeem("ok")
	audit.LogFromRequest(r, event)

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   true,
		"code":    res.Record.Code,
		"product": res.Record.Product,
	})
}

func rejectionError(reason model.RedeemReason, product string) *apperrors.AppError {
	switch reason {
	case model.RedeemReasonAlreadyUsed:
		return apperrors.AlreadyUsed()
	case model.RedeemReasonProductMismatch:
		return apperrors.ProductMismatch(product)
	case model.RedeemReasonMalformedInput:
		return apperrors.MalformedInput("code")
	default:
		return apperrors.NotFound("Code")
	}
}

// GetCode lets a purchaser's post-checkout page recover their code.
func (h *RedeemHandler) GetCode(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		writeError(w, apperrors.MissingRequired("session"))
		return
	}
	product := r.URL.Query().Get("product")

	rec, err := h.ledger.LookupBySession(r.Context(), session, product)
	if err != nil {
		log.Error().Err(err).Msg("session lookup failed")
		writeError(w, apperrors.Storage(err))
		return
	}

	event := audit.Event{
		Type:    audit.EventCodeLookup,
		Product: product,
		Details: map[string]any{"found": rec != nil},
	}
	if rec != nil {
		event.Code = rec.Code
	}
	audit.LogFromRequest(r, event)

	if rec == nil {
		writeError(w, apperrors.NotFound("Code"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code":    rec.Code,
		"product": rec.Product,
		"email":   deref(rec.PurchaserEmail),
		"used":    rec.IsUsed(),
	})
}
