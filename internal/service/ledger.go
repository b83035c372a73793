package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/curtistech/unlock-server/internal/errors"
	"github.com/curtistech/unlock-server/internal/model"
	"github.com/curtistech/unlock-server/internal/repository"
	"github.com/curtistech/unlock-server/internal/util"
)

const (
	maxGenerateAttempts = 10
	minSessionQueryLen  = 8
)

// ErrCodeCollision is returned by Create when the code already belongs to a
// different payment session or to a manually issued record.
var ErrCodeCollision = errors.New("code belongs to another session")

type RedeemResult struct {
	Valid  bool               `json:"valid"`
	Reason model.RedeemReason `json:"reason,omitempty"`
	Record *model.Redemption  `json:"-"`
}

func rejected(reason model.RedeemReason, rec *model.Redemption) RedeemResult {
	return RedeemResult{Valid: false, Reason: reason, Record: rec}
}

// Ledger is the authoritative set of issued codes. Every read-check-write
// sequence runs under one mutex.
type Ledger struct {
	mu       sync.Mutex
	store    repository.RedemptionStore
	now      func() time.Time
	generate func() (string, error)
}

func NewLedger(store repository.RedemptionStore) *Ledger {
	return &Ledger{
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
		generate: GenerateCode,
	}
}

// Create upserts rec by code. It returns the stored record and whether a new
// record was written. A record already issued for rec's session absorbs the
// update even if its code differs, so replayed deliveries never fork.
func (l *Ledger) Create(ctx context.Context, rec *model.Redemption) (*model.Redemption, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.createLocked(ctx, rec)
}

func (l *Ledger) createLocked(ctx context.Context, rec *model.Redemption) (*model.Redemption, bool, error) {
	rec = rec.Clone()
	rec.Code = NormalizeCode(rec.Code)
	if rec.Code == "" {
		return nil, false, ErrMalformedInput
	}

	if sessionID := rec.SessionID(); sessionID != "" {
		existing, err := l.store.FindBySessionID(ctx, sessionID)
		if err != nil {
			return nil, false, fmt.Errorf("find by session: %w", err)
		}
		if existing != nil {
			merged, err := l.mergeLocked(ctx, existing, rec)
			return merged, false, err
		}
	}

	existing, err := l.store.FindByCode(ctx, rec.Code)
	if err != nil {
		return nil, false, fmt.Errorf("find by code: %w", err)
	}

	if existing != nil {
		if existing.Manual || (existing.SessionID() != "" && existing.SessionID() != rec.SessionID()) {
			return nil, false, ErrCodeCollision
		}
		merged, err := l.mergeLocked(ctx, existing, rec)
		return merged, false, err
	}

	if rec.Product == "" {
		rec.Product = model.ProductUnscoped
	}
	rec.State = model.RedemptionStateUnused
	rec.UsedAt = nil
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now()
	}

	if err := l.store.Save(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("save redemption: %w", err)
	}

	log.Info().
		Str("code", util.MaskCode(rec.Code)).
		Str("product", rec.Product).
		Bool("manual", rec.Manual).
		Msg("redemption created")

	return rec, true, nil
}

// mergeLocked applies metadata from update onto existing. State, usedAt,
// createdAt and the code itself are kept.
func (l *Ledger) mergeLocked(ctx context.Context, existing, update *model.Redemption) (*model.Redemption, error) {
	merged := existing.Clone()

	if update.PurchaserEmail != nil && *update.PurchaserEmail != "" {
		merged.PurchaserEmail = update.PurchaserEmail
	}
	if update.PurchaserName != nil && *update.PurchaserName != "" {
		merged.PurchaserName = update.PurchaserName
	}
	if !update.IsUnscoped() {
		merged.Product = update.Product
	}
	if merged.SourceSessionID == nil {
		merged.SourceSessionID = update.SourceSessionID
	}

	if err := l.store.Save(ctx, merged); err != nil {
		return nil, fmt.Errorf("save redemption: %w", err)
	}

	log.Debug().
		Str("code", util.MaskCode(merged.Code)).
		Msg("redemption metadata merged")

	return merged, nil
}

// Issue creates a manual code. An empty code is generated; a supplied one
// must pass ValidateCode and be unused by any record.
func (l *Ledger) Issue(ctx context.Context, code, product string) (*model.Redemption, error) {
	product = strings.TrimSpace(product)
	if product == "" {
		product = model.ProductUnscoped
	}
	if product != model.ProductUnscoped && !util.IsValidProduct(product) {
		return nil, apperrors.InvalidInput("product", "must be a lower-case slug")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	code = NormalizeCode(code)
	if code != "" {
		switch err := ValidateCode(code); {
		case errors.Is(err, ErrSessionMarker):
			return nil, apperrors.InvalidInput("code", "must not start with TEST-, LIVE- or a session prefix")
		case err != nil:
			return nil, apperrors.InvalidInput("code", "must be 4-32 characters of A-Z, 0-9 or -")
		}
		existing, err := l.store.FindByCode(ctx, code)
		if err != nil {
			return nil, apperrors.Storage(err)
		}
		if existing != nil {
			return nil, apperrors.AlreadyExists("code")
		}
	} else {
		generated, err := l.generateUniqueLocked(ctx)
		if err != nil {
			return nil, err
		}
		code = generated
	}

	rec := &model.Redemption{
		Code:      code,
		Product:   product,
		Manual:    true,
		State:     model.RedemptionStateUnused,
		CreatedAt: l.now(),
	}
	if err := l.store.Save(ctx, rec); err != nil {
		return nil, apperrors.Storage(err)
	}

	log.Info().
		Str("code", util.MaskCode(code)).
		Str("product", product).
		Msg("manual code issued")

	return rec, nil
}

// CreateForSession stores rec under a freshly generated code. The ingestor
// uses it when the derived code is already taken. Generation and the write
// share one critical section, so the code cannot be taken in between.
func (l *Ledger) CreateForSession(ctx context.Context, rec *model.Redemption) (*model.Redemption, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	code, err := l.generateUniqueLocked(ctx)
	if err != nil {
		return nil, false, err
	}

	rec = rec.Clone()
	rec.Code = code
	return l.createLocked(ctx, rec)
}

func (l *Ledger) generateUniqueLocked(ctx context.Context) (string, error) {
	for attempts := 0; attempts < maxGenerateAttempts; attempts++ {
		code, err := l.generate()
		if err != nil {
			return "", apperrors.Internal("failed to generate code").WithCause(err)
		}
		existing, err := l.store.FindByCode(ctx, code)
		if err != nil {
			return "", apperrors.Storage(err)
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", apperrors.Internal(fmt.Sprintf("no free code after %d attempts", maxGenerateAttempts))
}

// LookupByCode returns nil when the code is unknown.
func (l *Ledger) LookupByCode(ctx context.Context, code string) (*model.Redemption, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, nil
	}
	return l.store.FindByCode(ctx, code)
}

// LookupBySession finds the record issued for sessionID. An exact match is
// preferred; otherwise records whose session contains the query
// (case-insensitive, at least eight characters) are considered, prefix
// matches first. Records scoped to a product other than product are skipped.
func (l *Ledger) LookupBySession(ctx context.Context, sessionID, product string) (*model.Redemption, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil
	}

	rec, err := l.store.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.Matches(product) {
		return rec, nil
	}

	return l.scanSessions(ctx, sessionID, product)
}

func (l *Ledger) scanSessions(ctx context.Context, query, product string) (*model.Redemption, error) {
	if len(query) < minSessionQueryLen {
		return nil, nil
	}

	recs, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToUpper(query)
	var best *model.Redemption
	bestPrefix := false
	for i := range recs {
		rec := &recs[i]
		session := strings.ToUpper(rec.SessionID())
		if session == "" || !rec.Matches(product) || !strings.Contains(session, q) {
			continue
		}
		prefix := strings.HasPrefix(session, q)
		switch {
		case best == nil,
			prefix && !bestPrefix,
			prefix == bestPrefix && rec.CreatedAt.Before(best.CreatedAt):
			best = rec
			bestPrefix = prefix
		}
	}

	if best == nil {
		return nil, nil
	}
	return best.Clone(), nil
}

// Redeem marks the code identified by input as used. input is either a code
// or a payment session id; session ids are mapped back to their code the
// same way the ingestor derived it. Unknown input is never accepted.
//
// Rejections are reported in the result. The error is reserved for storage
// failures.
func (l *Ledger) Redeem(ctx context.Context, input, product string) (RedeemResult, error) {
	raw := strings.TrimSpace(input)
	normalized := NormalizeCode(raw)
	if normalized == "" {
		return rejected(model.RedeemReasonMalformedInput, nil), nil
	}
	product = strings.TrimSpace(product)

	l.mu.Lock()
	defer l.mu.Unlock()

	var rec *model.Redemption
	var err error
	if HasSessionMarker(normalized) {
		rec, err = l.resolveSessionLocked(ctx, raw)
	} else {
		rec, err = l.store.FindByCode(ctx, normalized)
	}
	if err != nil {
		return RedeemResult{}, fmt.Errorf("resolve code: %w", err)
	}

	if rec == nil {
		return rejected(model.RedeemReasonNotFound, nil), nil
	}
	if !rec.Matches(product) {
		return rejected(model.RedeemReasonProductMismatch, rec), nil
	}
	if rec.IsUsed() {
		return rejected(model.RedeemReasonAlreadyUsed, rec), nil
	}

	usedAt := l.now()
	ok, err := l.store.MarkUsed(ctx, rec.Code, usedAt)
	if err != nil {
		return RedeemResult{}, fmt.Errorf("mark used: %w", err)
	}
	if !ok {
		// Another instance sharing the store got there first.
		return rejected(model.RedeemReasonAlreadyUsed, rec), nil
	}

	rec.State = model.RedemptionStateUsed
	rec.UsedAt = &usedAt

	log.Info().
		Str("code", util.MaskCode(rec.Code)).
		Str("product", rec.Product).
		Msg("code redeemed")

	return RedeemResult{Valid: true, Record: rec}, nil
}

// resolveSessionLocked maps a session id typed by a purchaser to its record.
// The derived code is tried first; if that code belongs to a different
// session the session itself is searched.
func (l *Ledger) resolveSessionLocked(ctx context.Context, sessionID string) (*model.Redemption, error) {
	code, err := DeriveCode(sessionID)
	if err == nil {
		rec, err := l.store.FindByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if rec != nil && sessionConsistent(rec, sessionID) {
			return rec, nil
		}
	}

	rec, err := l.store.FindBySessionID(ctx, sessionID)
	if err != nil || rec != nil {
		return rec, err
	}
	return l.scanSessions(ctx, sessionID, "")
}

// sessionConsistent reports whether input could have come from the session
// rec was issued for. Truncated session ids are accepted.
func sessionConsistent(rec *model.Redemption, input string) bool {
	session := strings.ToUpper(rec.SessionID())
	if session == "" {
		return true
	}
	in := strings.ToUpper(input)
	return strings.HasPrefix(session, in) || strings.HasPrefix(in, session)
}

// List returns every record, oldest first.
func (l *Ledger) List(ctx context.Context) ([]model.Redemption, error) {
	recs, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].Code < recs[j].Code
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs, nil
}

func (l *Ledger) Stats(ctx context.Context) (*model.RedemptionStats, error) {
	recs, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.RedemptionStats{
		Total:     len(recs),
		ByProduct: make(map[string]int),
	}
	for i := range recs {
		if recs[i].IsUsed() {
			stats.Used++
		} else {
			stats.Unused++
		}
		stats.ByProduct[recs[i].Product]++
	}
	return stats, nil
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}
