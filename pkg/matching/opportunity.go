// Package matching holds the pure parts of operator-driven matching: finding
// compatible buy/sell pairs and computing the result of filling one pair.
// Nothing here touches storage or mutates its inputs.
package matching

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/orderdesk/pkg/order"
)

// Opportunity is a candidate pairing; it is derived, never stored.
type Opportunity struct {
	BuyOrder        *order.Order    `json:"buyOrder"`
	SellOrder       *order.Order    `json:"sellOrder"`
	PotentialProfit decimal.Decimal `json:"potentialProfit"`
}

// Opportunities pairs every matchable buy with every matchable sell of the
// same asset whose price it meets, most profitable first. Equal profits keep
// input order (buy-major, then sell).
//
// Cost is O(|buys|·|sells|); fine for an operator-sized book.
func Opportunities(orders []*order.Order) []Opportunity {
	var buys, sells []*order.Order
	for _, o := range orders {
		if !o.Matchable() {
			continue
		}
		switch o.Side {
		case order.Buy:
			buys = append(buys, o)
		case order.Sell:
			sells = append(sells, o)
		}
	}

	var out []Opportunity
	for _, b := range buys {
		for _, s := range sells {
			if b.Asset != s.Asset || b.Price.LessThan(s.Price) {
				continue
			}
			out = append(out, Opportunity{
				BuyOrder:        b,
				SellOrder:       s,
				PotentialProfit: b.Price.Sub(s.Price).Mul(decimal.Min(b.Quantity, s.Quantity)),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PotentialProfit.GreaterThan(out[j].PotentialProfit)
	})
	return out
}
