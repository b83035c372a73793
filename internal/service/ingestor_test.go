package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curtistech/unlock-server/internal/model"
	"github.com/curtistech/unlock-server/internal/notify"
	"github.com/curtistech/unlock-server/internal/repository"
)

type fakeQueue struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (q *fakeQueue) Enqueue(msg notify.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return true
}

func (q *fakeQueue) sent() []notify.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]notify.Message(nil), q.messages...)
}

func newTestIngestor(t *testing.T) (*Ingestor, *Ledger, *fakeQueue) {
	t.Helper()
	ledger := newTestLedger(t)
	queue := &fakeQueue{}
	return NewIngestor(ledger, queue), ledger, queue
}

func checkoutEvent(sessionID string) model.PaymentEvent {
	return model.PaymentEvent{
		ID:        "evt_" + sessionID,
		Type:      model.EventTypeCheckoutCompleted,
		SessionID: sessionID,
		Email:     "buyer@example.com",
		Name:      "Ada",
	}
}

func TestIngestor_Ingest(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an unscoped record and notifies", func(t *testing.T) {
		ingestor, ledger, queue := newTestIngestor(t)

		outcome := ingestor.Ingest(ctx, checkoutEvent("cs_test_ABCDEFGHIJKL"))
		assert.Equal(t, model.IngestOutcomeCreated, outcome)

		rec, err := ledger.LookupByCode(ctx, "ABCDEFGH")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, model.ProductUnscoped, rec.Product)
		assert.Equal(t, "cs_test_ABCDEFGHIJKL", rec.SessionID())
		assert.Equal(t, "buyer@example.com", *rec.PurchaserEmail)
		assert.Equal(t, model.RedemptionStateUnused, rec.State)

		sent := queue.sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "ABCDEFGH", sent[0].Code)
		assert.Equal(t, "Ada", sent[0].Name)
	})

	t.Run("product comes from event metadata", func(t *testing.T) {
		ingestor, ledger, _ := newTestIngestor(t)

		event := checkoutEvent("cs_live_1234567890XY")
		event.Product = "menu-maker"
		require.Equal(t, model.IngestOutcomeCreated, ingestor.Ingest(ctx, event))

		rec, err := ledger.LookupByCode(ctx, "12345678")
		require.NoError(t, err)
		assert.Equal(t, "menu-maker", rec.Product)
	})

	t.Run("replay is idempotent", func(t *testing.T) {
		ingestor, ledger, queue := newTestIngestor(t)
		event := checkoutEvent("cs_test_ABCDEFGHIJKL")

		assert.Equal(t, model.IngestOutcomeCreated, ingestor.Ingest(ctx, event))
		assert.Equal(t, model.IngestOutcomeDuplicate, ingestor.Ingest(ctx, event))

		recs, err := ledger.List(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.False(t, recs[0].IsUsed())
		assert.Len(t, queue.sent(), 1, "replay must not re-notify")
	})

	t.Run("replay after redemption keeps the code used", func(t *testing.T) {
		ingestor, ledger, _ := newTestIngestor(t)
		event := checkoutEvent("cs_test_ABCDEFGHIJKL")

		ingestor.Ingest(ctx, event)
		res, err := ledger.Redeem(ctx, "ABCDEFGH", "")
		require.NoError(t, err)
		require.True(t, res.Valid)

		assert.Equal(t, model.IngestOutcomeDuplicate, ingestor.Ingest(ctx, event))

		res, err = ledger.Redeem(ctx, "ABCDEFGH", "")
		require.NoError(t, err)
		assert.Equal(t, model.RedeemReasonAlreadyUsed, res.Reason)
	})

	t.Run("concurrent replays create one record", func(t *testing.T) {
		ingestor, ledger, queue := newTestIngestor(t)
		event := checkoutEvent("cs_test_ABCDEFGHIJKL")

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ingestor.Ingest(ctx, event)
			}()
		}
		wg.Wait()

		recs, err := ledger.List(ctx)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
		assert.Len(t, queue.sent(), 1)
	})

	t.Run("colliding sessions get distinct codes", func(t *testing.T) {
		ingestor, ledger, queue := newTestIngestor(t)

		require.Equal(t, model.IngestOutcomeCreated, ingestor.Ingest(ctx, checkoutEvent("cs_test_SAMEHEADaaaa")))
		require.Equal(t, model.IngestOutcomeCreated, ingestor.Ingest(ctx, checkoutEvent("cs_test_SAMEHEADbbbb")))
		require.Equal(t, model.IngestOutcomeDuplicate, ingestor.Ingest(ctx, checkoutEvent("cs_test_SAMEHEADbbbb")))

		recs, err := ledger.List(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.NotEqual(t, recs[0].Code, recs[1].Code)

		sent := queue.sent()
		require.Len(t, sent, 2)
		assert.Equal(t, "SAMEHEAD", sent[0].Code)
		assert.NotEqual(t, "SAMEHEAD", sent[1].Code)
	})

	t.Run("other event types are ignored", func(t *testing.T) {
		ingestor, ledger, queue := newTestIngestor(t)

		event := checkoutEvent("cs_test_ABCDEFGHIJKL")
		event.Type = "payment_intent.succeeded"
		assert.Equal(t, model.IngestOutcomeIgnored, ingestor.Ingest(ctx, event))

		recs, err := ledger.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, recs)
		assert.Empty(t, queue.sent())
	})

	t.Run("unusable session id is rejected", func(t *testing.T) {
		ingestor, ledger, _ := newTestIngestor(t)

		assert.Equal(t, model.IngestOutcomeRejected, ingestor.Ingest(ctx, checkoutEvent("cs_test_abc")))
		assert.Equal(t, model.IngestOutcomeRejected, ingestor.Ingest(ctx, checkoutEvent("")))

		recs, err := ledger.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("missing email still creates the record", func(t *testing.T) {
		ingestor, ledger, queue := newTestIngestor(t)

		event := checkoutEvent("cs_test_NOEMAIL12345")
		event.Email = ""
		assert.Equal(t, model.IngestOutcomeCreated, ingestor.Ingest(ctx, event))

		rec, err := ledger.LookupByCode(ctx, "NOEMAIL1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Nil(t, rec.PurchaserEmail)
		assert.Empty(t, queue.sent())
	})

	t.Run("storage failure is reported as failed", func(t *testing.T) {
		ingestor := NewIngestor(NewLedger(brokenSaveStore{repository.NewMemoryStore()}), &fakeQueue{})
		assert.Equal(t, model.IngestOutcomeFailed, ingestor.Ingest(ctx, checkoutEvent("cs_test_ABCDEFGHIJKL")))
	})

	t.Run("nil queue is tolerated", func(t *testing.T) {
		ingestor := NewIngestor(newTestLedger(t), nil)
		assert.Equal(t, model.IngestOutcomeCreated, ingestor.Ingest(ctx, checkoutEvent("cs_test_ABCDEFGHIJKL")))
	})
}

type brokenSaveStore struct {
	repository.RedemptionStore
}

func (brokenSaveStore) Save(ctx context.Context, rec *model.Redemption) error {
	return errors.New("read-only file system")
}
