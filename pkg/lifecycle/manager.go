// Package lifecycle owns every order mutation: submission, operator
// decisions, modification, matching and expiration. Each mutation is
// persisted before the refreshed book is broadcast.
package lifecycle

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/orderdesk/pkg/matching"
	"github.com/uhyunpark/orderdesk/pkg/metrics"
	"github.com/uhyunpark/orderdesk/pkg/order"
	"github.com/uhyunpark/orderdesk/pkg/storage"
	"github.com/uhyunpark/orderdesk/pkg/util"
	"github.com/uhyunpark/orderdesk/pkg/wire"
)

// Config tunes store access and match retries.
type Config struct {
	// StoreTimeout bounds each individual store call.
	StoreTimeout time.Duration
	// HistoryLimit caps the history list returned and broadcast.
	HistoryLimit int
	// MatchRetries is how many times a failed match commit is retried.
	MatchRetries uint64
	// RetryInterval is the initial backoff between match commit attempts.
	RetryInterval time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		StoreTimeout:  3 * time.Second,
		HistoryLimit:  50,
		MatchRetries:  3,
		RetryInterval: 50 * time.Millisecond,
	}
}

// Manager serializes mutations per order and broadcasts the refreshed book
// after each one.
type Manager struct {
	store storage.Store
	pub   Publisher
	cfg   Config
	locks *lockTable
	// bookMu serializes snapshot+publish so the last ORDER_UPDATE sent is
	// never older than the last persisted change.
	bookMu sync.Mutex

	Logger  *zap.SugaredLogger
	Clock   util.Clock
	Journal storage.Journal
	// Sink is optional; nil disables external trade publication.
	Sink TradeSink
}

// NewManager fills zero Config fields from DefaultConfig. A nil pub
// discards broadcasts.
func NewManager(store storage.Store, pub Publisher, cfg Config) *Manager {
	if pub == nil {
		pub = nopPublisher{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultConfig().StoreTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultConfig().RetryInterval
	}
	return &Manager{
		store:   store,
		pub:     pub,
		cfg:     cfg,
		locks:   newLockTable(),
		Logger:  zap.NewNop().Sugar(),
		Clock:   util.RealClock{},
		Journal: storage.NewNopJournal(),
	}
}

func (m *Manager) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.StoreTimeout)
}

// Submit validates and persists a new order, then tells operators about it.
func (m *Manager) Submit(ctx context.Context, req order.SubmitRequest) (*order.Order, error) {
	o, err := order.New(req, m.Clock.Now())
	if err != nil {
		return nil, err
	}

	sctx, cancel := m.storeCtx(ctx)
	created, err := m.store.Create(sctx, o)
	cancel()
	if err != nil {
		m.Logger.Errorw("order_submit_failed", "asset", o.Asset, "side", o.Side, "err", err)
		return nil, err
	}

	metrics.OrdersSubmitted.WithLabelValues(string(created.Side)).Inc()
	m.journal("ORDER_SUBMIT", created)
	m.Logger.Infow("order_submitted",
		"order_id", created.ID,
		"asset", created.Asset,
		"side", created.Side,
		"price", created.Price.String(),
		"quantity", created.Quantity.String(),
		"user_id", created.UserID,
	)

	m.pub.NotifyOperators(wire.NewOrder(created))
	m.refresh(ctx)
	return created, nil
}

// Accept moves a NEW, unexpired order to ACCEPTED.
func (m *Manager) Accept(ctx context.Context, id string) (*order.Order, error) {
	o, err := m.transition(ctx, "accept", id, func(o *order.Order, now time.Time) error {
		if o.Status != order.StatusNew {
			return order.Errorf(order.KindInvalidTransition, "accept", o.ID, "order is %s", o.Status)
		}
		if o.Expired {
			return order.Errorf(order.KindInvalidTransition, "accept", o.ID, "order has expired")
		}
		o.Status = order.StatusAccepted
		o.Touch(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.refresh(ctx)
	return o, nil
}

// Reject moves a NEW order to REJECTED and notifies its submitter.
func (m *Manager) Reject(ctx context.Context, id string) (*order.Order, error) {
	o, err := m.transition(ctx, "reject", id, func(o *order.Order, now time.Time) error {
		if o.Status != order.StatusNew {
			return order.Errorf(order.KindInvalidTransition, "reject", o.ID, "order is %s", o.Status)
		}
		o.Status = order.StatusRejected
		o.Touch(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.pub.NotifyUser(o.UserID, wire.OrderRejected(o))
	m.refresh(ctx)
	return o, nil
}

// Modify applies one field change to an open order and records it in the
// order's history.
func (m *Manager) Modify(ctx context.Context, id string, mod order.Modification) (*order.Order, error) {
	o, err := m.transition(ctx, "modify", id, func(o *order.Order, now time.Time) error {
		if !o.Open() {
			return order.Errorf(order.KindInvalidTransition, "modify", o.ID,
				"order is %s (expired=%t)", o.Status, o.Expired)
		}
		return order.Apply(o, mod, now)
	})
	if err != nil {
		return nil, err
	}
	m.refresh(ctx)
	return o, nil
}

// transition loads id under its lock, lets fn mutate a copy and persists the
// copy. Nothing is written when fn fails.
func (m *Manager) transition(ctx context.Context, op, id string, fn func(*order.Order, time.Time) error) (*order.Order, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	current, err := m.store.Get(sctx, id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := fn(next, m.Clock.Now()); err != nil {
		m.Logger.Debugw("order_transition_refused", "op", op, "order_id", id, "err", err)
		return nil, err
	}
	if err := m.store.Update(sctx, next); err != nil {
		m.Logger.Errorw("order_transition_failed", "op", op, "order_id", id, "err", err)
		return nil, err
	}

	metrics.Transitions.WithLabelValues(op).Inc()
	m.journal("ORDER_"+strings.ToUpper(op), next)
	m.Logger.Infow("order_"+op, "order_id", id, "status", next.Status)
	return next, nil
}

// ExpireDue marks every open order whose boundary has passed as expired and
// returns how many it marked. One refreshed book is broadcast when n > 0.
func (m *Manager) ExpireDue(ctx context.Context) (int, error) {
	sctx, cancel := m.storeCtx(ctx)
	candidates, err := m.store.Query(sctx, storage.Filter{
		Statuses: []order.Status{order.StatusNew, order.StatusAccepted},
		Expired:  storage.Bool(false),
	})
	cancel()
	if err != nil {
		return 0, err
	}

	now := m.Clock.Now()
	n := 0
	var firstErr error
	for _, c := range candidates {
		if !c.DueAt(now) {
			continue
		}
		marked, err := m.expire(ctx, c.ID, now)
		if err != nil {
			m.Logger.Warnw("order_expire_failed", "order_id", c.ID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if marked {
			n++
		}
	}

	if n > 0 {
		m.Logger.Infow("orders_expired", "count", n)
		m.refresh(ctx)
	}
	return n, firstErr
}

func (m *Manager) expire(ctx context.Context, id string, now time.Time) (bool, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	o, err := m.store.Get(sctx, id)
	if err != nil {
		return false, err
	}
	// Re-check under the lock: a concurrent match or reject may have
	// resolved the order since the query.
	if !o.Open() || !o.DueAt(now) {
		return false, nil
	}
	o.Expired = true
	o.Touch(now)
	if err := m.store.Update(sctx, o); err != nil {
		return false, err
	}
	metrics.Transitions.WithLabelValues("expire").Inc()
	m.journal("ORDER_EXPIRE", o)
	return true, nil
}

// Get returns one order by id.
func (m *Manager) Get(ctx context.Context, id string) (*order.Order, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.store.Get(sctx, id)
}

// Active returns NEW, unexpired orders, oldest first.
func (m *Manager) Active(ctx context.Context) ([]*order.Order, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.store.Query(sctx, storage.Filter{
		Statuses: []order.Status{order.StatusNew},
		Expired:  storage.Bool(false),
	})
}

// History returns orders that left the active set (resolved or expired),
// most recently changed first, capped at the configured limit.
func (m *Manager) History(ctx context.Context) ([]*order.Order, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	all, err := m.store.Query(sctx, storage.Filter{})
	if err != nil {
		return nil, err
	}

	history := make([]*order.Order, 0, len(all))
	for _, o := range all {
		if o.Status != order.StatusNew || o.Expired {
			history = append(history, o)
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].LastChange().After(history[j].LastChange())
	})
	if len(history) > m.cfg.HistoryLimit {
		history = history[:m.cfg.HistoryLimit]
	}
	return history, nil
}

// Opportunities lists compatible accepted pairs, most profitable first.
func (m *Manager) Opportunities(ctx context.Context) ([]matching.Opportunity, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	accepted, err := m.store.Query(sctx, storage.Filter{
		Statuses: []order.Status{order.StatusAccepted},
		Expired:  storage.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	return matching.Opportunities(accepted), nil
}

// Trades returns recently executed trades, newest first.
func (m *Manager) Trades(ctx context.Context, limit int) ([]*order.Trade, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.store.RecentTrades(sctx, limit)
}

// refresh broadcasts the current active and history lists. It runs after
// the mutation is durable, so a cancelled request still gets its broadcast.
func (m *Manager) refresh(ctx context.Context) {
	m.bookMu.Lock()
	defer m.bookMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	active, err := m.Active(ctx)
	if err != nil {
		m.Logger.Warnw("order_book_refresh_failed", "err", err)
		return
	}
	history, err := m.History(ctx)
	if err != nil {
		m.Logger.Warnw("order_book_refresh_failed", "err", err)
		return
	}
	m.pub.PublishOrderBook(active, history)
}

func (m *Manager) journal(event string, o *order.Order) {
	err := m.Journal.Append(event, map[string]any{
		"order_id": o.ID,
		"status":   o.Status,
		"expired":  o.Expired,
		"quantity": o.Quantity.String(),
		"price":    o.Price.String(),
	})
	if err != nil {
		m.Logger.Warnw("journal_append_failed", "event", event, "order_id", o.ID, "err", err)
	}
}
