package sim

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/orderdesk/pkg/order"
	"github.com/uhyunpark/orderdesk/pkg/util"
	"github.com/uhyunpark/orderdesk/pkg/wire"
)

// PricePublisher receives every price tick.
type PricePublisher interface {
	PublishPrice(update wire.PriceUpdate)
}

// Submitter accepts generated orders.
type Submitter interface {
	Submit(ctx context.Context, req order.SubmitRequest) (*order.Order, error)
}

type Config struct {
	PriceInterval time.Duration
	OrderInterval time.Duration
}

type Simulator struct {
	cfg       Config
	feed      *PriceFeed
	gen       *OrderGenerator
	prices    PricePublisher
	submitter Submitter

	Logger *zap.SugaredLogger
	Clock  util.Clock
}

func New(cfg Config, feed *PriceFeed, gen *OrderGenerator, prices PricePublisher, submitter Submitter) *Simulator {
	return &Simulator{
		cfg:       cfg,
		feed:      feed,
		gen:       gen,
		prices:    prices,
		submitter: submitter,
		Logger:    zap.NewNop().Sugar(),
		Clock:     util.RealClock{},
	}
}

// Run publishes a price every PriceInterval and submits an order every
// OrderInterval until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	priceTicker := time.NewTicker(s.cfg.PriceInterval)
	defer priceTicker.Stop()
	orderTicker := time.NewTicker(s.cfg.OrderInterval)
	defer orderTicker.Stop()

	startTime := time.Now()
	submitted := 0
	s.Logger.Infow("simulation_started",
		"price_interval_ms", s.cfg.PriceInterval.Milliseconds(),
		"order_interval_ms", s.cfg.OrderInterval.Milliseconds(),
		"initial_price", s.feed.Current().String())

	for {
		select {
		case <-ctx.Done():
			s.Logger.Infow("simulation_stopped",
				"orders_submitted", submitted,
				"elapsed", time.Since(startTime).Round(time.Second).String())
			return nil

		case <-priceTicker.C:
			s.prices.PublishPrice(s.feed.Tick(s.Clock.Now()))

		case <-orderTicker.C:
			if s.SubmitOne(ctx) {
				submitted++
			}
		}
	}
}

// SubmitOne generates and submits a single order.
func (s *Simulator) SubmitOne(ctx context.Context) bool {
	req := s.gen.Generate(s.Clock.Now())
	o, err := s.submitter.Submit(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			s.Logger.Warnw("simulated_order_failed", "side", req.Side, "err", err)
		}
		return false
	}
	s.Logger.Debugw("simulated_order", "order_id", o.ID, "side", o.Side, "price", o.Price.String())
	return true
}
