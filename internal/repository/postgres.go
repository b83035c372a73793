package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/curtistech/unlock-server/internal/model"
)

type postgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore stores the ledger in the redemptions table.
func NewPostgresStore(db *sqlx.DB) RedemptionStore {
	return &postgresStore{db: db}
}

const redemptionColumns = `code, product, source_session_id, purchaser_email, purchaser_name,
	manual, state, created_at, used_at`

func (r *postgresStore) FindByCode(ctx context.Context, code string) (*model.Redemption, error) {
	return getRedemption(ctx, r.db, `
		SELECT `+redemptionColumns+` FROM redemptions
		WHERE code = $1
	`, code)
}

func (r *postgresStore) FindBySessionID(ctx context.Context, sessionID string) (*model.Redemption, error) {
	return getRedemption(ctx, r.db, `
		SELECT `+redemptionColumns+` FROM redemptions
		WHERE source_session_id = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, sessionID)
}

func (r *postgresStore) List(ctx context.Context) ([]model.Redemption, error) {
	var recs []model.Redemption
	err := r.db.SelectContext(ctx, &recs, `
		SELECT `+redemptionColumns+` FROM redemptions
		ORDER BY created_at ASC
	`)
	return recs, err
}

// Save never touches state, used_at or created_at of an existing row.
func (r *postgresStore) Save(ctx context.Context, rec *model.Redemption) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO redemptions (`+redemptionColumns+`)
		VALUES (:code, :product, :source_session_id, :purchaser_email, :purchaser_name,
			:manual, :state, :created_at, :used_at)
		ON CONFLICT (code) DO UPDATE SET
			product = EXCLUDED.product,
			source_session_id = EXCLUDED.source_session_id,
			purchaser_email = EXCLUDED.purchaser_email,
			purchaser_name = EXCLUDED.purchaser_name,
			manual = EXCLUDED.manual
	`, rec)
	return err
}

func (r *postgresStore) MarkUsed(ctx context.Context, code string, usedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE redemptions SET state = $2, used_at = $3
		WHERE code = $1 AND used_at IS NULL
	`, code, model.RedemptionStateUsed, usedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *postgresStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
