package model

import (
	"time"
)

// Redemption is one issued unlock code and its redemption state.
type Redemption struct {
	Code            string          `db:"code" json:"code"`
	Product         string          `db:"product" json:"product"`
	SourceSessionID *string         `db:"source_session_id" json:"sourceSessionId,omitempty"`
	PurchaserEmail  *string         `db:"purchaser_email" json:"purchaserEmail,omitempty"`
	PurchaserName   *string         `db:"purchaser_name" json:"purchaserName,omitempty"`
	Manual          bool            `db:"manual" json:"manual,omitempty"`
	State           RedemptionState `db:"state" json:"state"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UsedAt          *time.Time      `db:"used_at" json:"usedAt,omitempty"`
}

// IsUsed reports whether the code has been redeemed.
func (r *Redemption) IsUsed() bool {
	return r.State == RedemptionStateUsed
}

// IsUnscoped reports whether the code is valid for every product.
func (r *Redemption) IsUnscoped() bool {
	return r.Product == "" || r.Product == ProductUnscoped
}

// Matches reports whether the code may be redeemed for product.
// An empty product matches every code.
func (r *Redemption) Matches(product string) bool {
	if product == "" || r.IsUnscoped() {
		return true
	}
	return r.Product == product
}

func (r *Redemption) SessionID() string {
	if r.SourceSessionID == nil {
		return ""
	}
	return *r.SourceSessionID
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (r *Redemption) Clone() *Redemption {
	c := *r
	c.SourceSessionID = cloneString(r.SourceSessionID)
	c.PurchaserEmail = cloneString(r.PurchaserEmail)
	c.PurchaserName = cloneString(r.PurchaserName)
	if r.UsedAt != nil {
		t := *r.UsedAt
		c.UsedAt = &t
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type RedemptionStats struct {
	Total     int            `json:"total"`
	Unused    int            `json:"unused"`
	Used      int            `json:"used"`
	ByProduct map[string]int `json:"byProduct"`
}
