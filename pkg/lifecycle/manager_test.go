package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/orderdesk/pkg/order"
	"github.com/uhyunpark/orderdesk/pkg/storage"
	"github.com/uhyunpark/orderdesk/pkg/util"
	"github.com/uhyunpark/orderdesk/pkg/wire"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu        sync.Mutex
	books     int
	lastBook  [2][]*order.Order
	trades    []*order.Trade
	userMsgs  map[string][]any
	operators []any
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{userMsgs: make(map[string][]any)}
}

func (p *recordingPublisher) PublishOrderBook(active, history []*order.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.books++
	p.lastBook = [2][]*order.Order{active, history}
}

func (p *recordingPublisher) PublishTrade(t *order.Trade) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, t)
}

func (p *recordingPublisher) NotifyUser(userID string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userMsgs[userID] = append(p.userMsgs[userID], payload)
}

func (p *recordingPublisher) NotifyOperators(payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.operators = append(p.operators, payload)
}

func (p *recordingPublisher) book() [2][]*order.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastBook
}

func (p *recordingPublisher) bookCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.books
}

// flakyStore fails the first n CommitMatch calls with a transient error.
type flakyStore struct {
	*storage.InMemoryStore
	failures atomic.Int32
	calls    atomic.Int32
}

func (s *flakyStore) CommitMatch(ctx context.Context, buy, sell *order.Order, trade *order.Trade) error {
	s.calls.Add(1)
	if s.failures.Add(-1) >= 0 {
		return order.Unavailable("commit match", errors.New("disk busy"))
	}
	return s.InMemoryStore.CommitMatch(ctx, buy, sell, trade)
}

type fixture struct {
	m     *Manager
	pub   *recordingPublisher
	clock *util.ManualClock
}

func newFixture(t *testing.T, store storage.Store) *fixture {
	t.Helper()
	if store == nil {
		store = storage.NewInMemoryStore()
	}
	pub := newRecordingPublisher()
	cfg := DefaultConfig()
	cfg.RetryInterval = time.Millisecond
	m := NewManager(store, pub, cfg)
	m.Logger = zaptest.NewLogger(t).Sugar()
	clock := util.NewManualClock(t0)
	m.Clock = clock
	return &fixture{m: m, pub: pub, clock: clock}
}

func (f *fixture) submit(t *testing.T, side order.Side, price, qty string) *order.Order {
	t.Helper()
	o, err := f.m.Submit(context.Background(), order.SubmitRequest{
		Asset:    "BTC-USDT",
		Side:     side,
		Quantity: decimal.RequireFromString(qty),
		Price:    decimal.RequireFromString(price),
		Duration: "1 hour",
		UserID:   "alice",
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) accepted(t *testing.T, side order.Side, price, qty string) *order.Order {
	t.Helper()
	o := f.submit(t, side, price, qty)
	o, err := f.m.Accept(context.Background(), o.ID)
	require.NoError(t, err)
	return o
}

func TestSubmitBroadcastsAndNotifiesOperators(t *testing.T) {
	f := newFixture(t, nil)
	o := f.submit(t, order.Buy, "100", "1")

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, order.StatusNew, o.Status)
	assert.Equal(t, t0.Add(time.Hour), o.ExpiresAt())

	require.Len(t, f.pub.operators, 1)
	notice, ok := f.pub.operators[0].(wire.OrderNotice)
	require.True(t, ok)
	assert.Equal(t, wire.TypeNewOrder, notice.Type)
	assert.Equal(t, o.ID, notice.Order.ID)

	assert.Equal(t, 1, f.pub.bookCount())
	require.Len(t, f.pub.lastBook[0], 1)
	assert.Empty(t, f.pub.lastBook[1])
}

func TestSubmitValidationWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.m.Submit(context.Background(), order.SubmitRequest{
		Asset:    "BTC-USDT",
		Side:     order.Buy,
		Quantity: decimal.Zero,
		Price:    decimal.NewFromInt(1),
		Duration: "1 hour",
		UserID:   "alice",
	})
	require.ErrorIs(t, err, order.ErrValidation)

	active, err := f.m.Active(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Zero(t, f.pub.bookCount())
}

func TestAcceptAndRejectTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	a := f.submit(t, order.Buy, "100", "1")
	accepted, err := f.m.Accept(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.ModifiedAt)

	_, err = f.m.Accept(ctx, a.ID)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
	_, err = f.m.Reject(ctx, a.ID)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)

	r := f.submit(t, order.Sell, "100", "1")
	rejected, err := f.m.Reject(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRejected, rejected.Status)

	require.Len(t, f.pub.userMsgs["alice"], 1)
	notice := f.pub.userMsgs["alice"][0].(wire.OrderNotice)
	assert.Equal(t, wire.TypeOrderRejected, notice.Type)
	assert.Equal(t, r.ID, notice.Order.ID)

	_, err = f.m.Accept(ctx, r.ID)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)

	_, err = f.m.Accept(ctx, "missing")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestAcceptExpiredOrderIsRefused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	o := f.submit(t, order.Buy, "100", "1")

	f.clock.Advance(2 * time.Hour)
	n, err := f.m.ExpireDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = f.m.Accept(ctx, o.ID)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
	_, err = f.m.Modify(ctx, o.ID, order.PriceChange{Price: decimal.NewFromInt(90)})
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestModifyRecordsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	o := f.submit(t, order.Buy, "100", "5")

	f.clock.Advance(time.Minute)
	got, err := f.m.Modify(ctx, o.ID, order.PriceChange{Price: decimal.NewFromInt(105)})
	require.NoError(t, err)
	got, err = f.m.Modify(ctx, got.ID, order.QuantityChange{Quantity: decimal.NewFromInt(4)})
	require.NoError(t, err)

	stored, err := f.m.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(decimal.NewFromInt(105)))
	assert.True(t, stored.Quantity.Equal(decimal.NewFromInt(4)))
	require.Len(t, stored.History, 2)
	assert.Equal(t, order.FieldPrice, stored.History[0].Field)
	assert.Equal(t, "100", stored.History[0].OldValue)
	assert.Equal(t, "105", stored.History[0].NewValue)
	assert.Equal(t, order.FieldQuantity, stored.History[1].Field)

	_, err = f.m.Modify(ctx, o.ID, order.PriceChange{Price: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, order.ErrValidation)
	stored, err = f.m.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, stored.History, 2)
}

func TestMatchPartialFill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	buy := f.accepted(t, order.Buy, "110", "3")
	sell := f.accepted(t, order.Sell, "100", "5")

	qty, err := f.m.Match(ctx, buy.ID, sell.ID)
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.NewFromInt(3)))

	gotBuy, err := f.m.Get(ctx, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFilled, gotBuy.Status)
	assert.True(t, gotBuy.Quantity.IsZero())

	gotSell, err := f.m.Get(ctx, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusAccepted, gotSell.Status)
	assert.True(t, gotSell.Quantity.Equal(decimal.NewFromInt(2)))

	require.Len(t, f.pub.trades, 1)
	assert.True(t, f.pub.trades[0].Price.Equal(decimal.NewFromInt(100)))

	trades, err := f.m.Trades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, buy.ID, trades[0].BuyOrderID)

	opps, err := f.m.Opportunities(ctx)
	require.NoError(t, err)
	assert.Empty(t, opps)

	history, err := f.m.History(ctx)
	require.NoError(t, err)
	assert.Contains(t, orderIDs(history), buy.ID)
	active, err := f.m.Active(ctx)
	require.NoError(t, err)
	assert.NotContains(t, orderIDs(active), buy.ID)

	last := f.pub.book()
	assert.NotContains(t, orderIDs(last[0]), buy.ID)
	for _, o := range last[1] {
		if o.ID == buy.ID {
			assert.Equal(t, order.StatusFilled, o.Status)
		}
	}
	assert.Contains(t, orderIDs(last[1]), buy.ID)
}

func orderIDs(orders []*order.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

func TestMatchPriceMismatchLeavesOrdersUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	buy := f.accepted(t, order.Buy, "90", "1")
	sell := f.accepted(t, order.Sell, "100", "1")
	books := f.pub.bookCount()

	_, err := f.m.Match(ctx, buy.ID, sell.ID)
	require.ErrorIs(t, err, order.ErrPriceMismatch)

	gotBuy, _ := f.m.Get(ctx, buy.ID)
	gotSell, _ := f.m.Get(ctx, sell.ID)
	assert.Equal(t, buy, gotBuy)
	assert.Equal(t, sell, gotSell)
	assert.Empty(t, f.pub.trades)
	assert.Equal(t, books, f.pub.bookCount())
}

func TestMatchInvalidPairs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	buy := f.accepted(t, order.Buy, "100", "1")
	pending := f.submit(t, order.Sell, "100", "1")

	_, err := f.m.Match(ctx, buy.ID, "missing")
	assert.ErrorIs(t, err, order.ErrInvalidOrder)
	_, err = f.m.Match(ctx, buy.ID, buy.ID)
	assert.ErrorIs(t, err, order.ErrInvalidOrder)
	_, err = f.m.Match(ctx, buy.ID, pending.ID)
	assert.ErrorIs(t, err, order.ErrInvalidOrder)
}

func TestConcurrentMatchesNeverOverfill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sell := f.accepted(t, order.Sell, "100", "5")

	buys := make([]*order.Order, 10)
	for i := range buys {
		buys[i] = f.accepted(t, order.Buy, "100", "1")
	}

	var wg sync.WaitGroup
	var filled atomic.Int32
	for _, b := range buys {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.m.Match(ctx, id, sell.ID); err == nil {
				filled.Add(1)
			} else {
				assert.ErrorIs(t, err, order.ErrInvalidOrder)
			}
		}(b.ID)
	}
	wg.Wait()

	assert.EqualValues(t, 5, filled.Load())
	got, err := f.m.Get(ctx, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusFilled, got.Status)
	assert.True(t, got.Quantity.IsZero())
	assert.Zero(t, f.m.locks.size())
}

func TestMatchRetriesTransientCommitFailures(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{InMemoryStore: storage.NewInMemoryStore()}
	f := newFixture(t, store)
	buy := f.accepted(t, order.Buy, "100", "1")
	sell := f.accepted(t, order.Sell, "100", "1")

	store.failures.Store(2)
	qty, err := f.m.Match(ctx, buy.ID, sell.ID)
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.NewFromInt(1)))
	assert.EqualValues(t, 3, store.calls.Load())
}

func TestMatchGivesUpWithoutPartialEffect(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{InMemoryStore: storage.NewInMemoryStore()}
	f := newFixture(t, store)
	buy := f.accepted(t, order.Buy, "100", "1")
	sell := f.accepted(t, order.Sell, "100", "1")

	store.failures.Store(100)
	_, err := f.m.Match(ctx, buy.ID, sell.ID)
	require.ErrorIs(t, err, order.ErrStoreUnavailable)
	assert.EqualValues(t, 4, store.calls.Load())

	gotBuy, _ := f.m.Get(ctx, buy.ID)
	gotSell, _ := f.m.Get(ctx, sell.ID)
	assert.Equal(t, order.StatusAccepted, gotBuy.Status)
	assert.Equal(t, order.StatusAccepted, gotSell.Status)
	trades, err := f.m.Trades(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestExpireDueBroadcastsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.submit(t, order.Buy, "100", "1")
	f.accepted(t, order.Sell, "100", "1")
	before := f.pub.bookCount()

	n, err := f.m.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, before, f.pub.bookCount())

	f.clock.Advance(time.Hour)
	n, err = f.m.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, before+1, f.pub.bookCount())

	n, err = f.m.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, before+1, f.pub.bookCount())

	active, err := f.m.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	history, err := f.m.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, o := range history {
		assert.True(t, o.Expired)
	}
}

func TestLastBroadcastMatchesStoreUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = f.submit(t, order.Buy, "100", "1").ID
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.m.Accept(ctx, id)
			} else {
				_, err = f.m.Reject(ctx, id)
			}
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active, err := f.m.Active(ctx)
	require.NoError(t, err)
	history, err := f.m.History(ctx)
	require.NoError(t, err)

	last := f.pub.book()
	assert.Equal(t, orderIDs(active), orderIDs(last[0]))
	assert.ElementsMatch(t, orderIDs(history), orderIDs(last[1]))
	assert.Len(t, last[1], 20)
}

func TestHistoryNewestFirstAndCapped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.m.cfg.HistoryLimit = 2

	var ids []string
	for i := 0; i < 3; i++ {
		o := f.submit(t, order.Buy, "100", "1")
		f.clock.Advance(time.Second)
		_, err := f.m.Reject(ctx, o.ID)
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}

	history, err := f.m.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ids[2], history[0].ID)
	assert.Equal(t, ids[1], history[1].ID)
}

func TestLockPairOrdering(t *testing.T) {
	lt := newLockTable()
	unlock := lt.lockPair("b", "a")
	assert.Equal(t, 2, lt.size())
	unlock()
	assert.Zero(t, lt.size())

	unlock = lt.lockPair("a", "a")
	assert.Equal(t, 1, lt.size())
	unlock()
}
