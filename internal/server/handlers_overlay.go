package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/pscheid92/donationpulse/internal/metrics"
)

const maxInboundMessageSize = 64 * 1024

// inboundMessage is what an admin client sends to trigger an ephemeral broadcast.
type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *Server) registerOverlayRoutes() {
	s.echo.GET("/ws", s.handleWebSocket)
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()
	ip := c.RealIP()

	ok, reason := s.connLimits.Acquire(ip)
	if !ok {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		slog.WarnContext(ctx, "WebSocket connection rejected", "reason", reason, "remote_ip", ip)
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many connections")
	}
	defer s.releaseConnection(ip)
	s.recordConnectionGauges()

	// The role is fixed at upgrade time; it decides whether inbound messages are relayed.
	auth, authenticated := s.currentAuth(c)
	isAdmin := authenticated && auth.Role.Satisfies(domain.RoleSuperAdmin)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		metrics.WebSocketConnectionsTotal.WithLabelValues("upgrade_failed").Inc()
		slog.DebugContext(ctx, "WebSocket upgrade failed", "error", err)
		return nil
	}
	conn.SetReadLimit(maxInboundMessageSize)

	if err := s.hub.Register(conn); err != nil {
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		slog.WarnContext(ctx, "Failed to register client", "error", err)
		_ = conn.Close()
		return nil
	}
	metrics.WebSocketConnectionsTotal.WithLabelValues("success").Inc()
	metrics.WebSocketConnectionsCurrent.Inc()
	defer metrics.WebSocketConnectionsCurrent.Dec()

	s.readLoop(conn, isAdmin)
	s.hub.Unregister(conn)

	return nil
}

// readLoop blocks until the connection closes.
func (s *Server) readLoop(conn *websocket.Conn, isAdmin bool) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket closed unexpectedly", "error", err)
			}
			return
		}
		s.handleInbound(payload, isAdmin)
	}
}

func (s *Server) handleInbound(payload []byte, isAdmin bool) {
	if !isAdmin {
		metrics.WebSocketInboundMessagesTotal.WithLabelValues("ignored").Inc()
		return
	}

	var msg inboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		metrics.WebSocketInboundMessagesTotal.WithLabelValues("invalid").Inc()
		return
	}

	if err := s.hub.Ephemeral(msg.Event, msg.Data); err != nil {
		outcome := "failed"
		if errors.Is(err, domain.ErrValidation) {
			outcome = "invalid"
		}
		metrics.WebSocketInboundMessagesTotal.WithLabelValues(outcome).Inc()
		slog.Debug("Inbound broadcast rejected", "event", msg.Event, "error", err)
		return
	}
	metrics.WebSocketInboundMessagesTotal.WithLabelValues("relayed").Inc()
}

func (s *Server) releaseConnection(ip string) {
	s.connLimits.Release(ip)
	s.recordConnectionGauges()
}

func (s *Server) recordConnectionGauges() {
	metrics.WebSocketConnectionCapacity.Set(s.connLimits.Global().CapacityPct())
	metrics.WebSocketUniqueIPs.Set(float64(s.connLimits.PerIP().UniqueIPs()))
}
