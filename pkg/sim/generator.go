package sim

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/orderdesk/pkg/order"
)

const SimulatorUserID = "simulator"

type GeneratorConfig struct {
	Asset        string
	MinSize      decimal.Decimal
	MaxSize      decimal.Decimal
	Spread       decimal.Decimal // fraction of price, e.g. 0.002
	DurationRate float64         // share of orders with a relative expiration
}

func DefaultGeneratorConfig(asset string) GeneratorConfig {
	return GeneratorConfig{
		Asset:        asset,
		MinSize:      decimal.RequireFromString("0.001"),
		MaxSize:      decimal.NewFromInt(1),
		Spread:       decimal.RequireFromString("0.002"),
		DurationRate: 0.5,
	}
}

// OrderGenerator builds synthetic submissions priced off a PriceFeed: buys
// sit below the feed price by the spread, sells above it.
type OrderGenerator struct {
	cfg  GeneratorConfig
	feed *PriceFeed
}

func NewOrderGenerator(cfg GeneratorConfig, feed *PriceFeed) *OrderGenerator {
	return &OrderGenerator{cfg: cfg, feed: feed}
}

var durationUnits = []string{"minutes", "hours", "days"}

func (g *OrderGenerator) Generate(now time.Time) order.SubmitRequest {
	mid := g.feed.Step()

	side := order.Buy
	if g.feed.float() >= 0.5 {
		side = order.Sell
	}

	span := g.cfg.MaxSize.Sub(g.cfg.MinSize)
	qty := g.cfg.MinSize.Add(span.Mul(decimal.NewFromFloat(g.feed.float()))).Round(6)
	if !qty.IsPositive() {
		qty = g.cfg.MinSize
	}

	spread := mid.Mul(g.cfg.Spread)
	price := mid.Add(spread)
	if side == order.Buy {
		price = mid.Sub(spread)
	}

	req := order.SubmitRequest{
		Asset:    g.cfg.Asset,
		Side:     side,
		Quantity: qty,
		Price:    price.Round(2),
		UserID:   SimulatorUserID,
	}
	if g.feed.float() < g.cfg.DurationRate {
		unit := durationUnits[g.feed.intn(len(durationUnits))]
		req.Duration = order.FormatDuration(g.feed.intn(10)+1, unit)
	} else {
		req.Expiration = now.Add(time.Duration(g.feed.intn(24)+1) * time.Hour)
	}
	return req
}
