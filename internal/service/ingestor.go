package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/curtistech/unlock-server/internal/metrics"
	"github.com/curtistech/unlock-server/internal/model"
	"github.com/curtistech/unlock-server/internal/notify"
	"github.com/curtistech/unlock-server/internal/util"
)

// NotificationQueue accepts purchaser notifications without blocking.
type NotificationQueue interface {
	Enqueue(msg notify.Message) bool
}

// Ingestor turns authenticated payment events into ledger records.
type Ingestor struct {
	ledger *Ledger
	queue  NotificationQueue
}

func NewIngestor(ledger *Ledger, queue NotificationQueue) *Ingestor {
	return &Ingestor{ledger: ledger, queue: queue}
}

// Ingest never returns an error: every outcome is acknowledged to the sender
// so that permanently unprocessable events are not retried forever.
func (i *Ingestor) Ingest(ctx context.Context, event model.PaymentEvent) model.IngestOutcome {
	outcome, rec := i.ingest(ctx, event)
	metrics.IncIngest(string(outcome))

	logger := log.With().
		Str("eventId", event.ID).
		Str("eventType", event.Type).
		Str("outcome", string(outcome)).
		Logger()
	if rec != nil {
		logger = logger.With().Str("code", util.MaskCode(rec.Code)).Str("product", rec.Product).Logger()
	}
	logger.Info().Msg("payment event ingested")

	return outcome
}

func (i *Ingestor) ingest(ctx context.Context, event model.PaymentEvent) (model.IngestOutcome, *model.Redemption) {
	if event.Type != model.EventTypeCheckoutCompleted {
		return model.IngestOutcomeIgnored, nil
	}

	sessionID := strings.TrimSpace(event.SessionID)
	code, err := DeriveCode(sessionID)
	if err != nil {
		log.Warn().Err(err).Str("eventId", event.ID).Msg("cannot derive code from session id")
		return model.IngestOutcomeRejected, nil
	}

	product := strings.TrimSpace(event.Product)
	if product == "" {
		product = model.ProductUnscoped
	}

	rec := &model.Redemption{
		Code:            code,
		Product:         product,
		SourceSessionID: model.StringPtr(sessionID),
		PurchaserEmail:  model.StringPtr(strings.TrimSpace(event.Email)),
		PurchaserName:   model.StringPtr(strings.TrimSpace(event.Name)),
	}

	stored, created, err := i.ledger.Create(ctx, rec)
	if errors.Is(err, ErrCodeCollision) {
		log.Warn().
			Str("code", util.MaskCode(code)).
			Msg("derived code already taken, issuing a random code for this session")
		stored, created, err = i.ledger.CreateForSession(ctx, rec)
	}
	if err != nil {
		log.Error().Err(err).Str("eventId", event.ID).Msg("failed to store redemption")
		return model.IngestOutcomeFailed, nil
	}

	if !created {
		return model.IngestOutcomeDuplicate, stored
	}

	metrics.IncIssue("webhook")
	i.notify(stored)
	return model.IngestOutcomeCreated, stored
}

func (i *Ingestor) notify(rec *model.Redemption) {
	if rec.PurchaserEmail == nil {
		log.Warn().Str("code", util.MaskCode(rec.Code)).Msg("no purchaser email, skipping notification")
		return
	}
	if i.queue == nil {
		return
	}

	msg := notify.Message{
		Email:   *rec.PurchaserEmail,
		Code:    rec.Code,
		Product: rec.Product,
	}
	if rec.PurchaserName != nil {
		msg.Name = *rec.PurchaserName
	}
	i.queue.Enqueue(msg)
}
