package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/curtistech/unlock-server/internal/model"
)

// getRedemption runs a single-row query. No row is reported as a nil
// record, matching the in-process stores.
func getRedemption(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*model.Redemption, error) {
	var rec model.Redemption
	err := sqlx.GetContext(ctx, q, &rec, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query redemption: %w", err)
	}
	return &rec, nil
}
