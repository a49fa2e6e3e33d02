package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/orderdesk/pkg/matching"
	"github.com/uhyunpark/orderdesk/pkg/metrics"
	"github.com/uhyunpark/orderdesk/pkg/order"
)

const sinkTimeout = 5 * time.Second

// Match fills a buy order against a sell order at the sell price and returns
// the matched quantity. Both order updates and the trade record are
// committed together; on any failure neither order changes.
func (m *Manager) Match(ctx context.Context, buyID, sellID string) (decimal.Decimal, error) {
	trade, err := m.match(ctx, buyID, sellID)
	if err != nil {
		return decimal.Zero, err
	}

	metrics.TradesExecuted.Inc()
	metrics.MatchedQuantity.Add(trade.Quantity.InexactFloat64())
	m.Logger.Infow("orders_matched",
		"trade_id", trade.ID,
		"buy_order_id", buyID,
		"sell_order_id", sellID,
		"quantity", trade.Quantity.String(),
		"price", trade.Price.String(),
	)

	m.pub.PublishTrade(trade)
	if m.Sink != nil {
		go m.sinkTrade(trade)
	}
	m.refresh(ctx)
	return trade.Quantity, nil
}

func (m *Manager) match(ctx context.Context, buyID, sellID string) (*order.Trade, error) {
	if buyID == sellID {
		return nil, order.Errorf(order.KindInvalidOrder, "match", buyID, "cannot match an order with itself")
	}

	unlock := m.locks.lockPair(buyID, sellID)
	defer unlock()

	buy, err := m.loadForMatch(ctx, buyID)
	if err != nil {
		return nil, err
	}
	sell, err := m.loadForMatch(ctx, sellID)
	if err != nil {
		return nil, err
	}

	now := m.Clock.Now()
	res, err := matching.Fill(buy, sell, now)
	if err != nil {
		return nil, err
	}

	trade := &order.Trade{
		ID:          uuid.NewString(),
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		Asset:       buy.Asset,
		Quantity:    res.Quantity,
		Price:       res.Price,
		ExecutedAt:  now,
	}
	if err := m.commitMatch(ctx, res, trade); err != nil {
		m.Logger.Errorw("match_commit_failed", "buy_order_id", buyID, "sell_order_id", sellID, "err", err)
		return nil, err
	}

	for _, o := range []*order.Order{res.Buy, res.Sell} {
		if o.Status == order.StatusFilled {
			metrics.Transitions.WithLabelValues("fill").Inc()
		}
	}
	m.journalTrade(trade)
	return trade, nil
}

// loadForMatch maps an unknown id onto InvalidOrder: a match names two
// orders, and a missing one makes the pair invalid.
func (m *Manager) loadForMatch(ctx context.Context, id string) (*order.Order, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	o, err := m.store.Get(sctx, id)
	if errors.Is(err, order.ErrNotFound) {
		return nil, order.Errorf(order.KindInvalidOrder, "match", id, "order not found")
	}
	return o, err
}

// commitMatch retries transient store failures with exponential backoff.
// Every attempt writes the same all-or-nothing batch, so a retry after a
// failed attempt cannot double-apply.
func (m *Manager) commitMatch(ctx context.Context, res *matching.FillResult, trade *order.Trade) error {
	attempt := 0
	op := func() error {
		if attempt > 0 {
			metrics.MatchCommitRetries.Inc()
		}
		attempt++

		sctx, cancel := m.storeCtx(ctx)
		defer cancel()
		err := m.store.CommitMatch(sctx, res.Buy, res.Sell, trade)
		if err == nil {
			return nil
		}
		if !errors.Is(err, order.ErrStoreUnavailable) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		m.Logger.Warnw("match_commit_retry", "trade_id", trade.ID, "attempt", attempt, "err", err)
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = m.cfg.RetryInterval
	expBackoff.MaxInterval = 20 * m.cfg.RetryInterval
	expBackoff.Reset()
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(expBackoff, m.cfg.MatchRetries), ctx))
}

func (m *Manager) sinkTrade(trade *order.Trade) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := m.Sink.PublishTrade(ctx, trade); err != nil {
		m.Logger.Warnw("trade_sink_failed", "trade_id", trade.ID, "err", err)
	}
}

func (m *Manager) journalTrade(t *order.Trade) {
	err := m.Journal.Append("ORDER_MATCH", map[string]any{
		"trade_id":      t.ID,
		"buy_order_id":  t.BuyOrderID,
		"sell_order_id": t.SellOrderID,
		"quantity":      t.Quantity.String(),
		"price":         t.Price.String(),
	})
	if err != nil {
		m.Logger.Warnw("journal_append_failed", "event", "ORDER_MATCH", "trade_id", t.ID, "err", err)
	}
}
