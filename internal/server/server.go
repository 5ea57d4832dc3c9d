package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/donationpulse/internal/config"
	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/pscheid92/donationpulse/internal/ledger"
	"golang.org/x/sync/singleflight"
)

type stateService interface {
	Snapshot(ctx context.Context) (*domain.State, error)
	AddDonation(ctx context.Context, in ledger.DonationInput) (domain.Donation, error)
	DeleteDonation(ctx context.Context, timestamp string) error
	ReplaceDonations(ctx context.Context, donations []domain.Donation) error
	AddStreamer(ctx context.Context, name, emoji string) (string, error)
	RemoveStreamer(ctx context.Context, name string) (string, error)
	CreateMission(ctx context.Context, in ledger.MissionInput) (domain.Mission, error)
	CompleteMission(ctx context.Context, id string) (domain.Mission, error)
	DeleteMission(ctx context.Context, id string) error
	AddMissionAdjustment(ctx context.Context, missionID string, in ledger.AdjustmentInput) (domain.MissionAdjustment, error)
	MissionProgress(ctx context.Context, id string) (domain.MissionProgress, error)
	MergeSettings(ctx context.Context, partial domain.Settings) (domain.Settings, bool, error)
	FixSettingsNesting(ctx context.Context) (domain.Settings, bool, error)
	ForceReset(ctx context.Context) (map[string]string, error)
}

type clientHub interface {
	Register(conn *websocket.Conn) error
	Unregister(conn *websocket.Conn)
	Ephemeral(event string, data json.RawMessage) error
	GetClientCount() int
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	state stateService
	hub   clientHub

	sessionStore *sessions.CookieStore
	passwords    map[domain.Role]string
	upgrader     websocket.Upgrader
	connLimits   *ConnectionLimits

	healthChecks []HealthCheck
	readiness    singleflight.Group
	startTime    time.Time
}

func NewServer(cfg *config.Config, state stateService, hub clientHub, healthChecks []HealthCheck, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		clock:        clock,
		state:        state,
		hub:          hub,
		sessionStore: setupSessionStore(cfg),
		passwords: map[domain.Role]string{
			domain.RoleViewer:     cfg.ViewerPassword,
			domain.RoleSuperAdmin: cfg.AdminPassword,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newCheckOrigin(cfg.AllowOrigins(), !cfg.IsProduction()),
		},
		connLimits: NewConnectionLimits(
			int64(cfg.MaxWebSocketConnections),
			cfg.MaxWebSocketConnectionsPerIP,
			cfg.WebSocketConnectRate,
			cfg.WebSocketConnectBurst,
			clock,
		),
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	sessionStore.MaxAge(int(cfg.SessionMaxAge.Seconds()))
	return sessionStore
}
