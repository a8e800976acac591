package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapstream/internal/domain"
	"github.com/alanyoungcy/swapstream/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStream(t *testing.T) (*registry.Registry, *Gateway, *httptest.Server) {
	t.Helper()

	reg := registry.New(testLogger())
	gw := NewGateway(reg, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{id}", func(w http.ResponseWriter, r *http.Request) {
		gw.Handle(w, r, r.PathValue("id"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return reg, gw, srv
}

func dial(t *testing.T, srv *httptest.Server, orderID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + orderID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.StatusEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt domain.StatusEvent
	require.NoError(t, json.Unmarshal(payload, &evt))
	return evt
}

func waitForSubscriber(t *testing.T, reg *registry.Registry, orderID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return reg.SubscriberCount(orderID) == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestGatewayAcksBeforeOrderEvents(t *testing.T) {
	reg, _, srv := newTestStream(t)
	conn := dial(t, srv, "order-1")
	waitForSubscriber(t, reg, "order-1", 1)

	reg.Publish(domain.NewRoutingEvent("order-1", 10, "Fetching quotes from multiple DEXs..."))

	first := readEvent(t, conn)
	second := readEvent(t, conn)
	third := readEvent(t, conn)

	assert.Equal(t, domain.EventConnection, first.Type)
	assert.Equal(t, "order-1", first.OrderID)
	assert.Equal(t, domain.EventSubscribed, second.Type)
	assert.Equal(t, domain.EventRouting, third.Type)
	require.NotNil(t, third.Progress)
	assert.Equal(t, 10, *third.Progress)
}

func TestGatewayForwardsEventsInOrder(t *testing.T) {
	reg, _, srv := newTestStream(t)
	conn := dial(t, srv, "order-1")
	waitForSubscriber(t, reg, "order-1", 1)

	reg.Publish(domain.NewRoutingEvent("order-1", 10, "Fetching quotes from multiple DEXs..."))
	reg.Publish(domain.NewRoutingEvent("order-1", 30, "Received 2 quotes"))
	reg.Publish(domain.NewBuildingEvent("order-1", 50, "meteora", "Building transaction on meteora..."))
	reg.Publish(domain.NewConfirmedEvent("order-1", "meteora", "METEORA-1-abc", 1))

	// Skip the connection acks.
	readEvent(t, conn)
	readEvent(t, conn)

	want := []domain.EventType{
		domain.EventRouting, domain.EventRouting,
		domain.EventBuilding, domain.EventConfirmed,
	}
	for _, typ := range want {
		evt := readEvent(t, conn)
		assert.Equal(t, typ, evt.Type)
		assert.Equal(t, "order-1", evt.OrderID)
	}
}

func TestGatewayFansOutToMultipleClients(t *testing.T) {
	reg, gw, srv := newTestStream(t)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, srv, "order-1")
	}
	waitForSubscriber(t, reg, "order-1", 3)
	assert.Equal(t, 3, gw.ClientCount())

	reg.Publish(domain.NewRoutingEvent("order-1", 10, "Fetching quotes from multiple DEXs..."))

	for _, conn := range conns {
		readEvent(t, conn) // connection
		readEvent(t, conn) // subscribed
		evt := readEvent(t, conn)
		assert.Equal(t, domain.EventRouting, evt.Type)
	}
}

func TestGatewayIsolatesOrders(t *testing.T) {
	reg, _, srv := newTestStream(t)
	conn := dial(t, srv, "order-1")
	waitForSubscriber(t, reg, "order-1", 1)

	reg.Publish(domain.NewRoutingEvent("order-2", 10, "Fetching quotes from multiple DEXs..."))
	reg.Publish(domain.NewRoutingEvent("order-1", 10, "Fetching quotes from multiple DEXs..."))

	readEvent(t, conn) // connection
	readEvent(t, conn) // subscribed
	evt := readEvent(t, conn)
	assert.Equal(t, "order-1", evt.OrderID)
}

func TestGatewayDetachesOnClientClose(t *testing.T) {
	reg, gw, srv := newTestStream(t)
	conn := dial(t, srv, "order-1")
	waitForSubscriber(t, reg, "order-1", 1)

	conn.Close()

	waitForSubscriber(t, reg, "order-1", 0)
	require.Eventually(t, func() bool {
		return gw.ClientCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestGatewayCloseAllDisconnectsClients(t *testing.T) {
	reg, gw, srv := newTestStream(t)
	conn := dial(t, srv, "order-1")
	waitForSubscriber(t, reg, "order-1", 1)

	gw.CloseAll()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 0, gw.ClientCount())
	assert.Equal(t, 0, reg.SubscriberCount("order-1"))
}
