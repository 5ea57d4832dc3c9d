package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/donationpulse/internal/app"
	"github.com/pscheid92/donationpulse/internal/broadcast"
	"github.com/pscheid92/donationpulse/internal/config"
	"github.com/pscheid92/donationpulse/internal/database"
	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/pscheid92/donationpulse/internal/logging"
	"github.com/pscheid92/donationpulse/internal/redis"
	"github.com/pscheid92/donationpulse/internal/server"
	"github.com/pscheid92/donationpulse/internal/snapshot"
	"github.com/pscheid92/donationpulse/internal/store"
	"github.com/pscheid92/donationpulse/internal/version"
	"github.com/sony/gobreaker/v2"
)

// remote bundles the selected remote backend with its health checks and cleanup.
type remote struct {
	backend store.Backend
	checks  []server.HealthCheck
	close   func()
}

func runGracefulShutdown(srv *server.Server, appSvc *app.Service, broadcaster *broadcast.Broadcaster) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Drains queued commands, so their saves finish before exit.
		appSvc.Stop()
		broadcaster.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.ConnectWithRetry(ctx, cfg.DatabaseURL, 5, time.Second)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, db); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return db
}

func setupRedis(cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}

	// An unreachable Redis is not fatal: the local snapshot keeps the overlay running.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		slog.Warn("Redis not reachable at startup", "error", err)
	}
	return client
}

func setupRemote(cfg *config.Config) remote {
	switch cfg.RemoteBackend {
	case config.BackendRedis:
		client := setupRedis(cfg)
		return remote{
			backend: redis.NewDocumentStore(client, cfg.RedisStateKey),
			checks: []server.HealthCheck{
				{Name: "redis", Check: client.Ping},
				{Name: "redis_breaker", Check: func(context.Context) error {
					if client.Breaker().State() == circuitbreaker.OpenState {
						return fmt.Errorf("circuit breaker open")
					}
					return nil
				}},
			},
			close: func() { _ = client.Close() },
		}
	case config.BackendPostgres:
		pool := setupDB(cfg)
		docs := database.NewDocumentStore(pool, "")
		return remote{
			backend: docs,
			checks: []server.HealthCheck{
				{Name: "postgres", Check: pool.Ping},
				{Name: "postgres_breaker", Check: func(context.Context) error {
					if docs.BreakerState() == gobreaker.StateOpen {
						return fmt.Errorf("circuit breaker open")
					}
					return nil
				}},
			},
			close: pool.Close,
		}
	default:
		slog.Info("No remote backend configured, using local snapshot only")
		return remote{close: func() {}}
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	version.Publish()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port,
		"version", version.Get().Version, "backend", cfg.RemoteBackend)

	rem := setupRemote(cfg)
	defer rem.close()

	defaults := domain.NewDefaults(cfg.DefaultEmojis)
	local := snapshot.NewFile(cfg.SnapshotPath)

	adapter := store.New(local, rem.backend, defaults)

	loadCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	initial, source := adapter.Load(loadCtx)
	cancel()
	slog.Info("Overlay state ready", "source", source)

	broadcaster := broadcast.NewBroadcaster(clock, cfg.MaxWebSocketConnections)
	// Primes the cached document so the first client receives initialData.
	broadcaster.Publish(domain.EventDataUpdate, initial.Clone())

	appSvc := app.NewService(initial, adapter, broadcaster, defaults, clock)

	checks := append(rem.checks, server.HealthCheck{
		Name: "state",
		Check: func(ctx context.Context) error {
			_, err := appSvc.Snapshot(ctx)
			return err
		},
	})

	srv := server.NewServer(cfg, appSvc, broadcaster, checks, clock)

	done := runGracefulShutdown(srv, appSvc, broadcaster)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
