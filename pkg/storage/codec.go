package storage

import (
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/orderdesk/pkg/order"
)

func encodeOrder(o *order.Order) ([]byte, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal order %s: %w", o.ID, err)
	}
	return b, nil
}

func decodeOrder(b []byte) (*order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

func encodeTrade(t *order.Trade) ([]byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal trade %s: %w", t.ID, err)
	}
	return b, nil
}

func decodeTrade(b []byte) (*order.Trade, error) {
	var t order.Trade
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("unmarshal trade: %w", err)
	}
	return &t, nil
}
