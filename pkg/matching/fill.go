package matching

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/orderdesk/pkg/order"
)

// FillResult is the outcome of matching one buy against one sell. Buy and
// Sell are updated copies; the inputs are not modified.
type FillResult struct {
	Buy      *order.Order
	Sell     *order.Order
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Fill checks the matching preconditions and computes the post-match state
// of both orders. The execution price is the sell price.
func Fill(buy, sell *order.Order, now time.Time) (*FillResult, error) {
	if err := eligible(buy, order.Buy); err != nil {
		return nil, err
	}
	if err := eligible(sell, order.Sell); err != nil {
		return nil, err
	}
	if buy.Asset != sell.Asset {
		return nil, order.Errorf(order.KindInvalidOrder, "match", buy.ID,
			"asset %s does not match sell order %s asset %s", buy.Asset, sell.ID, sell.Asset)
	}
	if buy.Price.LessThan(sell.Price) {
		return nil, order.Errorf(order.KindPriceMismatch, "match", buy.ID,
			"buy price %s is below sell price %s", buy.Price, sell.Price)
	}

	qty := decimal.Min(buy.Quantity, sell.Quantity)
	res := &FillResult{
		Buy:      debit(buy, qty, now),
		Sell:     debit(sell, qty, now),
		Quantity: qty,
		Price:    sell.Price,
	}
	return res, nil
}

func eligible(o *order.Order, side order.Side) error {
	switch {
	case o.Side != side:
		return order.Errorf(order.KindInvalidOrder, "match", o.ID, "expected a %s order, got %s", side, o.Side)
	case o.Expired:
		return order.Errorf(order.KindInvalidOrder, "match", o.ID, "order has expired")
	case o.Status != order.StatusAccepted:
		return order.Errorf(order.KindInvalidOrder, "match", o.ID, "order is %s, not ACCEPTED", o.Status)
	}
	return nil
}

func debit(o *order.Order, qty decimal.Decimal, now time.Time) *order.Order {
	out := o.Clone()
	out.Quantity = o.Quantity.Sub(qty)
	if out.Quantity.IsZero() {
		out.Status = order.StatusFilled
	}
	out.Touch(now)
	return out
}
