package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order. It never changes after creation.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Status is the order state machine position.
//
//	NEW ──accept──▶ ACCEPTED ──match (qty→0)──▶ FILLED
//	 │
//	 └──reject──▶ REJECTED
//
// Expired is tracked separately (see Order.Expired).
type Status string

const (
	StatusNew      Status = "NEW"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
	StatusFilled   Status = "FILLED"
)

// Terminal reports whether no further status transition is possible.
func (s Status) Terminal() bool { return s == StatusRejected || s == StatusFilled }

// Order is the central entity. Price and Quantity are decimals so that a
// fill down to exactly zero is detectable.
type Order struct {
	ID         string          `json:"id"`
	Asset      string          `json:"asset"`
	Side       Side            `json:"type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Expiration time.Time       `json:"expiration"`
	// Duration holds the relative form ("3 hours") when the order was
	// submitted with one; the effective boundary is then CreatedAt+Duration.
	Duration   string         `json:"duration,omitempty"`
	Status     Status         `json:"status"`
	Expired    bool           `json:"expired"`
	UserID     string         `json:"userId"`
	CreatedAt  time.Time      `json:"createdAt"`
	ModifiedAt *time.Time     `json:"modifiedAt,omitempty"`
	History    []HistoryEntry `json:"modificationHistory,omitempty"`
}

// ExpiresAt returns the absolute expiration boundary.
func (o *Order) ExpiresAt() time.Time {
	if o.Duration != "" {
		if d, err := ParseDuration(o.Duration); err == nil {
			return o.CreatedAt.Add(d)
		}
	}
	return o.Expiration
}

// DueAt reports whether the expiration boundary has been reached at now.
func (o *Order) DueAt(now time.Time) bool {
	return !o.ExpiresAt().After(now)
}

// Open reports whether the order is unresolved and unexpired.
func (o *Order) Open() bool {
	return (o.Status == StatusNew || o.Status == StatusAccepted) && !o.Expired
}

// Matchable reports whether the order is a matching candidate.
func (o *Order) Matchable() bool {
	return o.Status == StatusAccepted && !o.Expired
}

// LastChange is ModifiedAt when set, CreatedAt otherwise.
func (o *Order) LastChange() time.Time {
	if o.ModifiedAt != nil {
		return *o.ModifiedAt
	}
	return o.CreatedAt
}

// Touch stamps the order as modified at now.
func (o *Order) Touch(now time.Time) {
	t := now
	o.ModifiedAt = &t
}

// Clone returns a deep copy; callers mutate clones and persist them so a
// failed write never leaves a half-updated value behind.
func (o *Order) Clone() *Order {
	c := *o
	if o.ModifiedAt != nil {
		t := *o.ModifiedAt
		c.ModifiedAt = &t
	}
	if o.History != nil {
		c.History = make([]HistoryEntry, len(o.History))
		copy(c.History, o.History)
	}
	return &c
}

// Trade records one executed match.
type Trade struct {
	ID          string          `json:"id"`
	BuyOrderID  string          `json:"buyOrderId"`
	SellOrderID string          `json:"sellOrderId"`
	Asset       string          `json:"asset"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	ExecutedAt  time.Time       `json:"executedAt"`
}
