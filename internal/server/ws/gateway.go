// Package ws streams per-order status events to WebSocket clients.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/swapstream/internal/domain"
	"github.com/alanyoungcy/swapstream/internal/registry"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing events per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// Gateway upgrades status requests to WebSocket connections and attaches each
// one to the subscription registry for its order.
type Gateway struct {
	registry *registry.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewGateway creates a WebSocket gateway backed by the given registry.
func NewGateway(reg *registry.Registry, logger *slog.Logger) *Gateway {
	return &Gateway{
		registry: reg,
		logger:   logger.With(slog.String("component", "ws_gateway")),
		clients:  make(map[*client]struct{}),
	}
}

// client is one WebSocket connection following a single order.
type client struct {
	gateway *Gateway
	conn    *websocket.Conn
	orderID string
	send    chan []byte
	sub     *registry.Subscription
	once    sync.Once
}

// Handle upgrades the request and streams status events for orderID until the
// order terminates or the client disconnects. The caller has already verified
// the order exists.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request, orderID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("ws: upgrade failed",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
		return
	}

	c := &client{
		gateway: g,
		conn:    conn,
		orderID: orderID,
		send:    make(chan []byte, sendBufferSize),
	}

	// Queue the connection acks before subscribing so they always precede
	// any order event, even one published concurrently with the attach.
	c.enqueue(domain.NewConnectionEvent(orderID))
	c.enqueue(domain.NewSubscribedEvent(orderID))

	c.sub = g.registry.Subscribe(orderID, c)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		c.close()
		conn.Close()
		return
	}
	g.clients[c] = struct{}{}
	total := len(g.clients)
	g.mu.Unlock()

	g.logger.Info("ws: client connected",
		slog.String("order_id", orderID),
		slog.Int("total_clients", total),
	)

	go c.writePump()
	go c.readPump()
}

// CloseAll detaches and closes every connected client. Used on shutdown.
func (g *Gateway) CloseAll() {
	g.mu.Lock()
	g.closed = true
	clients := make([]*client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// ClientCount returns the number of currently connected clients.
func (g *Gateway) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

func (g *Gateway) drop(c *client) {
	g.mu.Lock()
	_, ok := g.clients[c]
	if ok {
		delete(g.clients, c)
	}
	total := len(g.clients)
	g.mu.Unlock()

	if ok {
		g.logger.Info("ws: client disconnected",
			slog.String("order_id", c.orderID),
			slog.Int("total_clients", total),
		)
	}
}

// Send delivers a status event to this client. It is called by the registry
// under the channel lock, so it must never block: when the client cannot
// keep up the event is dropped.
func (c *client) Send(evt domain.StatusEvent) {
	c.enqueue(evt)
}

func (c *client) enqueue(evt domain.StatusEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.gateway.logger.Warn("ws: dropping event for slow client",
			slog.String("order_id", c.orderID),
			slog.String("type", string(evt.Type)),
		)
	}
}

// close detaches the client from the registry and closes the connection.
// Safe to call more than once.
func (c *client) close() {
	c.once.Do(func() {
		c.gateway.registry.Unsubscribe(c.sub)
		c.gateway.drop(c)
		close(c.send)
	})
}

// readPump consumes incoming frames. Clients do not send application
// messages; reading only serves to detect disconnects and process pongs.
func (c *client) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gateway.logger.Warn("ws: unexpected close error",
					slog.String("order_id", c.orderID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump pumps queued events to the connection as JSON text frames and
// sends periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The gateway closed this client.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Compile-time interface check.
var _ registry.Handle = (*client)(nil)
