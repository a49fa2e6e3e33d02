package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/uhyunpark/orderdesk/pkg/order"
)

// InMemoryStore is a Store backed by maps. Used for STORE=memory and tests.
type InMemoryStore struct {
	mu     sync.Mutex
	orders map[string]*order.Order
	seq    []string // ids in creation order
	trades []*order.Trade
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{orders: make(map[string]*order.Order)}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Create(ctx context.Context, o *order.Order) (*order.Order, error) {
	if err := checkCtx(ctx, "create"); err != nil {
		return nil, err
	}
	created := o.Clone()
	created.ID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[created.ID] = created.Clone()
	s.seq = append(s.seq, created.ID)
	return created, nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*order.Order, error) {
	if err := checkCtx(ctx, "get"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.Errorf(order.KindNotFound, "get", id, "order not found")
	}
	return o.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, o *order.Order) error {
	if err := checkCtx(ctx, "update"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return order.Errorf(order.KindNotFound, "update", o.ID, "order not found")
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *InMemoryStore) CommitMatch(ctx context.Context, buy, sell *order.Order, trade *order.Trade) error {
	if err := checkCtx(ctx, "commit match"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range []*order.Order{buy, sell} {
		if _, ok := s.orders[o.ID]; !ok {
			return order.Errorf(order.KindNotFound, "commit match", o.ID, "order not found")
		}
	}
	s.orders[buy.ID] = buy.Clone()
	s.orders[sell.ID] = sell.Clone()
	t := *trade
	s.trades = append(s.trades, &t)
	return nil
}

func (s *InMemoryStore) Query(ctx context.Context, f Filter) ([]*order.Order, error) {
	if err := checkCtx(ctx, "query"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*order.Order
	for _, id := range s.seq {
		o := s.orders[id]
		if f.match(o) {
			out = append(out, o.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *InMemoryStore) RecentTrades(ctx context.Context, limit int) ([]*order.Trade, error) {
	if err := checkCtx(ctx, "recent trades"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*order.Trade
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		t := *s.trades[i]
		out = append(out, &t)
	}
	return out, nil
}

var _ Store = (*InMemoryStore)(nil)
