package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Prices and quantities are positive, at most MaxAmount and carry at most
// MaxDecimalPlaces fractional digits.
const MaxDecimalPlaces = 18

var MaxAmount = decimal.New(1, 15)

// checkAmount returns a reason when d is not a usable price or quantity.
// The reason never echoes d, which may be arbitrarily large.
func checkAmount(d decimal.Decimal) string {
	exp := d.Exponent()
	if exp < -MaxDecimalPlaces {
		return fmt.Sprintf("must have at most %d decimal places", MaxDecimalPlaces)
	}
	if !d.IsPositive() {
		return "must be positive"
	}
	if exp > 15 || d.GreaterThan(MaxAmount) {
		return "must not exceed " + MaxAmount.String()
	}
	return ""
}

// SubmitRequest carries a new order before the store assigns its ID.
// Exactly one of Expiration or Duration must be set.
type SubmitRequest struct {
	Asset      string
	Side       Side
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Expiration time.Time
	Duration   string
	UserID     string
}

// New validates req and returns a NEW order created at now. ID is left
// empty for the store to assign.
func New(req SubmitRequest, now time.Time) (*Order, error) {
	fail := func(format string, args ...any) error {
		return Errorf(KindValidation, "submit", "", format, args...)
	}

	asset := strings.TrimSpace(req.Asset)
	if asset == "" {
		return nil, fail("asset is required")
	}
	if !req.Side.Valid() {
		return nil, fail("side must be BUY or SELL, got %q", req.Side)
	}
	if reason := checkAmount(req.Quantity); reason != "" {
		return nil, fail("quantity %s", reason)
	}
	if reason := checkAmount(req.Price); reason != "" {
		return nil, fail("price %s", reason)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fail("userId is required")
	}

	o := &Order{
		Asset:     asset,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Status:    StatusNew,
		UserID:    req.UserID,
		CreatedAt: now,
	}

	switch {
	case req.Duration != "" && !req.Expiration.IsZero():
		return nil, fail("set either expiration or duration, not both")
	case req.Duration != "":
		d, err := ParseDuration(req.Duration)
		if err != nil {
			return nil, fail("%v", err)
		}
		o.Duration = req.Duration
		o.Expiration = now.Add(d)
	case !req.Expiration.IsZero():
		if !req.Expiration.After(now) {
			return nil, fail("expiration must be in the future")
		}
		o.Expiration = req.Expiration
	default:
		return nil, fail("expiration or duration is required")
	}
	return o, nil
}
