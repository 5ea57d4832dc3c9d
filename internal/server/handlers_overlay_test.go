package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/donationpulse/internal/broadcast"
	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/pscheid92/donationpulse/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newOverlayServer(t *testing.T, maxConnections int) (*Server, string) {
	t.Helper()
	hub := broadcast.NewBroadcaster(clockwork.NewRealClock(), 0)
	t.Cleanup(hub.Stop)

	cfg := testConfig(t)
	if maxConnections > 0 {
		cfg.MaxWebSocketConnections = maxConnections
	}
	srv := NewServer(cfg, &mockState{}, hub, nil, clockwork.NewRealClock())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialWS(t *testing.T, url string, cookies []*http.Cookie) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	for _, c := range cookies {
		header.Add("Cookie", c.Name+"="+c.Value)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil skips messages (client counts, mostly) until event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) wsMessage {
	t.Helper()
	for range 20 {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg wsMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		if msg.Event == event {
			return msg
		}
	}
	t.Fatalf("event %q not received", event)
	return wsMessage{}
}

func TestWebSocket_AdminMessageIsRelayed(t *testing.T) {
	srv, url := newOverlayServer(t, 0)
	admin := login(t, srv, domain.RoleSuperAdmin)

	viewerConn := dialWS(t, url, nil)
	adminConn := dialWS(t, url, admin)
	readUntil(t, viewerConn, domain.EventClientCount)

	require.NoError(t, adminConn.WriteMessage(websocket.TextMessage, []byte(`{"event":"celebrate","data":{"donor":"Bob"}}`)))

	msg := readUntil(t, viewerConn, "celebrate")
	assert.JSONEq(t, `{"donor":"Bob"}`, string(msg.Data))
}

func TestWebSocket_AnonymousMessageIsIgnored(t *testing.T) {
	_, url := newOverlayServer(t, 0)
	ignored := metrics.WebSocketInboundMessagesTotal.WithLabelValues("ignored")
	before := testutil.ToFloat64(ignored)

	conn := dialWS(t, url, nil)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"celebrate","data":{}}`)))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(ignored) >= before+1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_ReservedEventFromAdminIsNotRelayed(t *testing.T) {
	srv, url := newOverlayServer(t, 0)
	admin := login(t, srv, domain.RoleSuperAdmin)
	invalid := metrics.WebSocketInboundMessagesTotal.WithLabelValues("invalid")
	before := testutil.ToFloat64(invalid)

	conn := dialWS(t, url, admin)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"dataUpdate","data":{}}`)))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(invalid) >= before+1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_ConnectionLimit(t *testing.T) {
	_, url := newOverlayServer(t, 1)

	first := dialWS(t, url, nil)
	readUntil(t, first, domain.EventClientCount)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
