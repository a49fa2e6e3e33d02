package storage

import (
	"context"
	"sort"

	"github.com/uhyunpark/orderdesk/pkg/order"
)

// Store is the durable order repository the lifecycle manager writes
// through. Implementations return *order.Error values: KindNotFound for
// unknown ids and KindStoreUnavailable for I/O or context failures.
type Store interface {
	// Create assigns a fresh ID to o and persists it.
	Create(ctx context.Context, o *order.Order) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	// Update overwrites an existing order.
	Update(ctx context.Context, o *order.Order) error
	// CommitMatch persists both orders and the trade as one atomic unit:
	// either all three writes land or none does.
	CommitMatch(ctx context.Context, buy, sell *order.Order, trade *order.Trade) error
	// Query returns matching orders in creation order.
	Query(ctx context.Context, f Filter) ([]*order.Order, error)
	// RecentTrades returns up to limit trades, newest first.
	RecentTrades(ctx context.Context, limit int) ([]*order.Trade, error)
	Close() error
}

// Filter selects orders; zero-valued fields match everything.
type Filter struct {
	Statuses []order.Status
	Expired  *bool
	Side     order.Side
	Asset    string
}

// Bool is a helper for Filter.Expired.
func Bool(b bool) *bool { return &b }

func (f Filter) match(o *order.Order) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if o.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Expired != nil && o.Expired != *f.Expired {
		return false
	}
	if f.Side != "" && o.Side != f.Side {
		return false
	}
	if f.Asset != "" && o.Asset != f.Asset {
		return false
	}
	return true
}

func sortByCreation(orders []*order.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}

func checkCtx(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return order.Unavailable(op, err)
	}
	return nil
}
