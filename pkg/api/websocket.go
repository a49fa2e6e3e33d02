package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderdesk/pkg/metrics"
	"github.com/uhyunpark/orderdesk/pkg/order"
	"github.com/uhyunpark/orderdesk/pkg/wire"
)

const sendQueueSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced on the REST routes
		return true
	},
}

var (
	errClosed    = &order.Error{Kind: order.KindTransport, Op: "send", Msg: "connection closed"}
	errQueueFull = &order.Error{Kind: order.KindTransport, Op: "send", Msg: "send queue full"}
)

// Hub delivers server-side events to websocket clients. It implements
// lifecycle.Publisher.
type Hub struct {
	Registry *Registry
	Logger   *zap.SugaredLogger

	PingInterval time.Duration
	WriteTimeout time.Duration
}

// NewHub creates a hub with an empty registry and default timings.
func NewHub() *Hub {
	return &Hub{
		Registry:     NewRegistry(),
		Logger:       zap.NewNop().Sugar(),
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// PublishOrderBook sends ORDER_UPDATE to every connection. Nothing is sent
// when both lists are empty.
func (h *Hub) PublishOrderBook(active, history []*order.Order) {
	if len(active) == 0 && len(history) == 0 {
		return
	}
	h.broadcast(wire.TypeOrderUpdate, wire.NewOrderUpdate(active, history))
}

// PublishTrade broadcasts an executed trade to every connection.
func (h *Hub) PublishTrade(trade *order.Trade) {
	h.broadcast(wire.TypeTrade, wire.NewTradeMessage(trade))
}

func (h *Hub) PublishPrice(update wire.PriceUpdate) {
	update.Type = wire.TypePriceUpdate
	h.broadcast(wire.TypePriceUpdate, update)
}

// NotifyUser delivers payload to userID if it is connected as a submitter.
func (h *Hub) NotifyUser(userID string, payload any) {
	t, ok := h.Registry.Submitter(userID)
	if !ok {
		h.Logger.Debugw("ws_notify_skipped", "user_id", userID)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.Logger.Errorw("ws_marshal_failed", "err", err)
		return
	}
	h.deliver(t, data)
}

// NotifyOperators sends payload to every operator connection.
func (h *Hub) NotifyOperators(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.Logger.Errorw("ws_marshal_failed", "err", err)
		return
	}
	for _, t := range h.Registry.Operators() {
		h.deliver(t, data)
	}
}

func (h *Hub) broadcast(msgType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.Logger.Errorw("ws_marshal_failed", "type", msgType, "err", err)
		return
	}
	metrics.Broadcasts.WithLabelValues(msgType).Inc()
	for _, t := range h.Registry.All() {
		h.deliver(t, data)
	}
}

// deliver sends to one transport. A failure only affects that transport: it
// is closed and purged from the registry.
func (h *Hub) deliver(t Transport, data []byte) {
	if !t.Open() {
		metrics.DroppedDeliveries.WithLabelValues("closed").Inc()
		h.Registry.Unregister(t)
		return
	}
	if err := t.Send(data); err != nil {
		reason := "closed"
		if err == errQueueFull {
			reason = "queue_full"
		}
		metrics.DroppedDeliveries.WithLabelValues(reason).Inc()
		h.Logger.Warnw("ws_delivery_failed", "reason", reason, "err", err)
		t.Close()
		h.Registry.Unregister(t)
	}
}

// Run pings every connection each PingInterval and closes those that did
// not answer the previous ping.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, t := range h.Registry.All() {
				t.Close()
			}
			return nil
		case <-ticker.C:
			h.checkLiveness()
		}
	}
}

func (h *Hub) checkLiveness() {
	for _, t := range h.Registry.All() {
		c, ok := t.(*Client)
		if !ok {
			continue
		}
		if !c.alive.Swap(false) {
			h.Logger.Infow("ws_client_unresponsive", "client", c.id)
			c.Close()
			continue
		}
		deadline := time.Now().Add(h.WriteTimeout)
		if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			c.Close()
		}
	}
}

// ServeWS upgrades the request and starts the client's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warnw("ws_upgrade_failed", "err", err)
		return
	}

	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
		id:   conn.RemoteAddr().String(),
	}
	c.alive.Store(true)
	h.Registry.Add(c)
	metrics.Connections.Inc()
	h.Logger.Infow("ws_client_connected", "client", c.id, "total", h.Registry.Len())

	go c.writePump()
	go c.readPump()
}

// Client is a websocket Transport.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	alive     atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClosed
	default:
		return errQueueFull
	}
}

func (c *Client) Open() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.Registry.Unregister(c)
		metrics.Connections.Dec()
		c.hub.Logger.Infow("ws_client_disconnected", "client", c.id, "total", c.hub.Registry.Len())
	})
	return nil
}

// readPump handles inbound frames. Only IDENTIFY is acted on; anything else
// is logged and ignored.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Debugw("ws_read_failed", "client", c.id, "err", err)
			}
			return
		}

		var in wire.Inbound
		if err := json.Unmarshal(message, &in); err != nil {
			c.hub.Logger.Debugw("ws_invalid_message", "client", c.id, "err", err)
			continue
		}

		switch in.Type {
		case wire.TypeIdentify:
			if err := c.hub.Registry.Identify(in.UserID, in.Role, c); err != nil {
				c.hub.Logger.Debugw("ws_identify_refused", "client", c.id, "err", err)
				continue
			}
			c.hub.Logger.Infow("ws_client_identified", "client", c.id, "user_id", in.UserID, "role", wire.NormalizeRole(in.Role))
		default:
			c.hub.Logger.Debugw("ws_unknown_message", "client", c.id, "type", in.Type)
		}
	}
}

// writePump drains the send queue. Each message is its own text frame.
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}
