// Package wire defines the JSON envelopes exchanged over the real-time
// connection.
package wire

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/orderdesk/pkg/order"
)

// Message types
const (
	TypeIdentify      = "IDENTIFY"
	TypeOrderUpdate   = "ORDER_UPDATE"
	TypeTrade         = "TRADE"
	TypeOrderRejected = "ORDER_REJECTED"
	TypeNewOrder      = "NEW_ORDER"
	TypePriceUpdate   = "PRICE_UPDATE"
)

// Roles a connection can identify as.
const (
	RoleSubmitter = "submitter"
	RoleOperator  = "operator"
)

// NormalizeRole maps legacy role names (client, manager) onto the current
// ones. Unknown roles return "".
func NormalizeRole(role string) string {
	switch role {
	case RoleSubmitter, "client":
		return RoleSubmitter
	case RoleOperator, "manager", "admin":
		return RoleOperator
	default:
		return ""
	}
}

// Inbound is the shape of any client frame; only IDENTIFY is acted on.
type Inbound struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// OrderUpdate is the ORDER_UPDATE broadcast: the full active and history
// lists.
type OrderUpdate struct {
	Type         string         `json:"type"`
	Orders       []*order.Order `json:"orders"`
	OrderHistory []*order.Order `json:"orderHistory"`
}

type TradeData struct {
	BuyOrderID  string          `json:"buyOrderId"`
	SellOrderID string          `json:"sellOrderId"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// TradeMessage is the TRADE broadcast sent after a match commits.
type TradeMessage struct {
	Type string    `json:"type"`
	Data TradeData `json:"data"`
}

// OrderNotice carries a single order (ORDER_REJECTED, NEW_ORDER).
type OrderNotice struct {
	Type  string       `json:"type"`
	Order *order.Order `json:"order"`
}

// PriceUpdate is one simulated price tick.
type PriceUpdate struct {
	Type      string          `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewOrderUpdate never leaves a list nil, so both encode as arrays.
func NewOrderUpdate(active, history []*order.Order) OrderUpdate {
	if active == nil {
		active = []*order.Order{}
	}
	if history == nil {
		history = []*order.Order{}
	}
	return OrderUpdate{Type: TypeOrderUpdate, Orders: active, OrderHistory: history}
}

// NewTradeMessage wraps t for broadcast.
func NewTradeMessage(t *order.Trade) TradeMessage {
	return TradeMessage{
		Type: TypeTrade,
		Data: TradeData{
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			Quantity:    t.Quantity,
			Price:       t.Price,
		},
	}
}

// OrderRejected is the notice sent to the submitter of a rejected order.
func OrderRejected(o *order.Order) OrderNotice {
	return OrderNotice{Type: TypeOrderRejected, Order: o}
}

// NewOrder is the notice sent to operators when an order is submitted.
func NewOrder(o *order.Order) OrderNotice {
	return OrderNotice{Type: TypeNewOrder, Order: o}
}
