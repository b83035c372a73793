package repository

import (
	"context"
	"time"

	"github.com/curtistech/unlock-server/internal/model"
)

// RedemptionStore is the persistence boundary for unlock codes. Callers
// serialize mutations; MarkUsed is additionally atomic per code so that a
// shared backend never redeems a code twice.
type RedemptionStore interface {
	// FindByCode returns nil without error when the code is unknown.
	FindByCode(ctx context.Context, code string) (*model.Redemption, error)
	// FindBySessionID returns the oldest record issued for the session, or nil.
	FindBySessionID(ctx context.Context, sessionID string) (*model.Redemption, error)
	List(ctx context.Context) ([]model.Redemption, error)
	// Save inserts a record, or updates the metadata of an existing one.
	// State, usedAt and createdAt of an existing record are never changed.
	Save(ctx context.Context, rec *model.Redemption) error
	// MarkUsed flips an unused record to used. It reports false when the
	// code is unknown or was already used.
	MarkUsed(ctx context.Context, code string, usedAt time.Time) (bool, error)
	Ping(ctx context.Context) error
}

// recordMap holds records by code with the Save/MarkUsed semantics shared by
// the in-process stores. It is not safe for concurrent use.
type recordMap map[string]*model.Redemption

func (m recordMap) save(rec *model.Redemption) {
	existing, ok := m[rec.Code]
	if !ok {
		m[rec.Code] = rec.Clone()
		return
	}

	updated := rec.Clone()
	updated.State = existing.State
	updated.UsedAt = existing.UsedAt
	updated.CreatedAt = existing.CreatedAt
	m[rec.Code] = updated
}

func (m recordMap) markUsed(code string, usedAt time.Time) bool {
	rec, ok := m[code]
	if !ok || rec.IsUsed() {
		return false
	}
	t := usedAt
	rec.State = model.RedemptionStateUsed
	rec.UsedAt = &t
	return true
}

func (m recordMap) findBySessionID(sessionID string) *model.Redemption {
	var found *model.Redemption
	for _, rec := range m {
		if rec.SourceSessionID == nil || *rec.SourceSessionID != sessionID {
			continue
		}
		if found == nil || rec.CreatedAt.Before(found.CreatedAt) {
			found = rec
		}
	}
	if found == nil {
		return nil
	}
	return found.Clone()
}

func (m recordMap) list() []model.Redemption {
	out := make([]model.Redemption, 0, len(m))
	for _, rec := range m {
		out = append(out, *rec.Clone())
	}
	return out
}
