package lifecycle

import (
	"context"

	"github.com/uhyunpark/orderdesk/pkg/order"
)

// Publisher fans state changes out to connected clients. Calls must not
// block on slow receivers.
type Publisher interface {
	PublishOrderBook(active, history []*order.Order)
	PublishTrade(trade *order.Trade)
	NotifyUser(userID string, payload any)
	NotifyOperators(payload any)
}

// TradeSink receives every committed trade for downstream consumers.
type TradeSink interface {
	PublishTrade(ctx context.Context, trade *order.Trade) error
}

type nopPublisher struct{}

func (nopPublisher) PublishOrderBook(_, _ []*order.Order) {}
func (nopPublisher) PublishTrade(_ *order.Trade)         {}
func (nopPublisher) NotifyUser(_ string, _ any)          {}
func (nopPublisher) NotifyOperators(_ any)               {}
