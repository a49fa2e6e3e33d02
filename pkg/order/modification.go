package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field names a modifiable order attribute.
type Field string

const (
	FieldPrice      Field = "price"
	FieldQuantity   Field = "quantity"
	FieldExpiration Field = "expiration"
)

// HistoryEntry is one append-only modification record.
type HistoryEntry struct {
	Field     Field     `json:"field"`
	OldValue  string    `json:"oldValue"`
	NewValue  string    `json:"newValue"`
	Timestamp time.Time `json:"timestamp"`
}

// Modification is the closed set of order changes: PriceChange,
// QuantityChange and ExpirationChange.
type Modification interface {
	Field() Field
	isModification()
}

type PriceChange struct{ Price decimal.Decimal }

type QuantityChange struct{ Quantity decimal.Decimal }

type ExpirationChange struct{ Expiration time.Time }

func (PriceChange) Field() Field      { return FieldPrice }
func (QuantityChange) Field() Field   { return FieldQuantity }
func (ExpirationChange) Field() Field { return FieldExpiration }

func (PriceChange) isModification()      {}
func (QuantityChange) isModification()   {}
func (ExpirationChange) isModification() {}

// ParseModification builds a Modification from a field name and its textual
// value (decimal for price/quantity, RFC3339 for expiration).
func ParseModification(field, value string) (Modification, error) {
	switch Field(field) {
	case FieldPrice:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, Errorf(KindValidation, "modify", "", "price %q: %v", value, err)
		}
		return PriceChange{Price: d}, nil
	case FieldQuantity:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, Errorf(KindValidation, "modify", "", "quantity %q: %v", value, err)
		}
		return QuantityChange{Quantity: d}, nil
	case FieldExpiration:
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, Errorf(KindValidation, "modify", "", "expiration %q: %v", value, err)
		}
		return ExpirationChange{Expiration: t}, nil
	default:
		return nil, Errorf(KindValidation, "modify", "", "field %q is not modifiable", field)
	}
}

// Apply validates m against o, records the previous value in o.History and
// applies the change. o is left untouched on error.
func Apply(o *Order, m Modification, now time.Time) error {
	var entry HistoryEntry
	switch c := m.(type) {
	case PriceChange:
		if reason := checkAmount(c.Price); reason != "" {
			return Errorf(KindValidation, "modify", o.ID, "price %s", reason)
		}
		entry = HistoryEntry{Field: FieldPrice, OldValue: o.Price.String(), NewValue: c.Price.String()}
		o.Price = c.Price
	case QuantityChange:
		if reason := checkAmount(c.Quantity); reason != "" {
			return Errorf(KindValidation, "modify", o.ID, "quantity %s", reason)
		}
		if c.Quantity.GreaterThan(o.Quantity) {
			return Errorf(KindValidation, "modify", o.ID, "quantity may only decrease (have %s, want %s)", o.Quantity, c.Quantity)
		}
		entry = HistoryEntry{Field: FieldQuantity, OldValue: o.Quantity.String(), NewValue: c.Quantity.String()}
		o.Quantity = c.Quantity
	case ExpirationChange:
		if c.Expiration.Before(now) {
			return Errorf(KindValidation, "modify", o.ID, "expiration %s is in the past", c.Expiration.Format(time.RFC3339))
		}
		entry = HistoryEntry{
			Field:    FieldExpiration,
			OldValue: o.ExpiresAt().Format(time.RFC3339Nano),
			NewValue: c.Expiration.Format(time.RFC3339Nano),
		}
		o.Expiration = c.Expiration
		o.Duration = ""
	default:
		return Errorf(KindValidation, "modify", o.ID, "unsupported modification %T", m)
	}
	entry.Timestamp = now
	o.History = append(o.History, entry)
	o.Touch(now)
	return nil
}
