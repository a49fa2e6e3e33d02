package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersSubmitted counts accepted submissions by side (BUY/SELL).
var OrdersSubmitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orderdesk_orders_submitted_total",
		Help: "Total number of orders created",
	},
	[]string{"side"},
)

// Transitions counts lifecycle transitions by kind (accept, reject, modify, fill, expire).
var Transitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orderdesk_order_transitions_total",
		Help: "Order state transitions applied",
	},
	[]string{"kind"},
)

var (
	TradesExecuted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orderdesk_trades_executed_total",
			Help: "Matches committed",
		},
	)

	MatchedQuantity = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orderdesk_matched_quantity_total",
			Help: "Sum of matched quantity across all trades",
		},
	)

	MatchCommitRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orderdesk_match_commit_retries_total",
			Help: "Retried atomic match commits after a transient store failure",
		},
	)
)

// UnreadableRecords counts stored records skipped because they no longer
// decode, by kind (order, trade).
var UnreadableRecords = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orderdesk_store_unreadable_records_total",
		Help: "Stored records that failed to decode and were skipped",
	},
	[]string{"kind"},
)

// Connection and delivery metrics
var (
	Connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orderdesk_ws_connections",
			Help: "Live websocket connections",
		},
	)

	DroppedDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdesk_ws_dropped_deliveries_total",
			Help: "Messages not delivered to a connection, by reason",
		},
		[]string{"reason"},
	)

	Broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdesk_ws_broadcasts_total",
			Help: "Outbound messages fanned out, by message type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(OrdersSubmitted, Transitions, TradesExecuted, MatchedQuantity, MatchCommitRetries, UnreadableRecords)
	prometheus.MustRegister(Connections, DroppedDeliveries, Broadcasts)
}
