// Package events publishes executed trades to Kafka for downstream
// consumers (settlement, analytics).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/uhyunpark/orderdesk/pkg/order"
)

const EventTradeExecuted = "trade.executed"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TradeEvent is the Kafka message value.
type TradeEvent struct {
	Event string       `json:"event"`
	Trade *order.Trade `json:"trade"`
}

// KafkaTradeSink writes one message per trade, keyed by trade id.
type KafkaTradeSink struct {
	writer messageWriter
}

// NewKafkaTradeSink writes to topic on brokers, waiting for all in-sync
// replicas on each write.
func NewKafkaTradeSink(brokers []string, topic string) *KafkaTradeSink {
	return &KafkaTradeSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// PublishTrade writes one trade.executed event keyed by trade ID.
func (s *KafkaTradeSink) PublishTrade(ctx context.Context, trade *order.Trade) error {
	value, err := json.Marshal(TradeEvent{Event: EventTradeExecuted, Trade: trade})
	if err != nil {
		return fmt.Errorf("marshal trade %s: %w", trade.ID, err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(trade.ID),
		Value: value,
		Time:  trade.ExecutedAt,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(EventTradeExecuted)},
			{Key: "asset", Value: []byte(trade.Asset)},
		},
	})
	if err != nil {
		return fmt.Errorf("write trade %s: %w", trade.ID, err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (s *KafkaTradeSink) Close() error {
	return s.writer.Close()
}
