// Command repair-state rewrites a stored overlay document in canonical form.
// It unwraps legacy nested settings, backfills missing defaults, accepts the
// old donation "time" field and reconciles running missions, then saves the
// result back to the same backend.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/pscheid92/donationpulse/internal/database"
	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/pscheid92/donationpulse/internal/logging"
	"github.com/pscheid92/donationpulse/internal/redis"
	"github.com/pscheid92/donationpulse/internal/snapshot"
	"github.com/pscheid92/donationpulse/internal/store"
)

// repairSummary describes what a repair run found.
type repairSummary struct {
	Found     bool
	Changed   bool
	Donations int
	Running   int
}

func main() {
	var (
		backend  = flag.String("backend", "file", "Backend to repair: file, redis or postgres")
		path     = flag.String("snapshot", snapshot.DefaultPath, "Snapshot file path (file backend)")
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		redisKey = flag.String("redis-key", "donationpulse:state", "Redis key holding the document")
		dbURL    = flag.String("database", os.Getenv("DATABASE_URL"), "PostgreSQL URL (or set DATABASE_URL env)")
		emojis   = flag.String("default-emojis", os.Getenv("DEFAULT_EMOJIS"), "Default emoji map (name:glyph,...)")
		dryRun   = flag.Bool("dry-run", false, "Dry run mode (don't write the repaired document)")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	logLevel := "info"
	if *verbose {
		logLevel = "debug"
	}
	logging.InitLogger(logLevel, "text")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	target, closeFn, err := openBackend(ctx, *backend, *path, *redisURL, *redisKey, *dbURL)
	if err != nil {
		log.Fatalf("Failed to open backend: %v", err)
	}
	defer closeFn()

	summary, err := repair(ctx, target, domain.NewDefaults(*emojis), *dryRun)
	if err != nil {
		log.Fatalf("Repair failed: %v", err)
	}

	slog.Info("Repair complete",
		"backend", target.Name(),
		"found", summary.Found,
		"changed", summary.Changed,
		"donations", summary.Donations,
		"running_missions", summary.Running,
		"dry_run", *dryRun)
}

func openBackend(ctx context.Context, kind, path, redisURL, redisKey, dbURL string) (store.Backend, func(), error) {
	switch kind {
	case "file":
		return snapshot.NewFile(path), func() {}, nil
	case "redis":
		if redisURL == "" {
			return nil, nil, errors.New("redis URL required (--redis or REDIS_URL env)")
		}
		client, err := redis.NewClient(redisURL)
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		slog.Info("Connected to Redis", "url", sanitizeURL(redisURL))
		return redis.NewDocumentStore(client, redisKey), func() { _ = client.Close() }, nil
	case "postgres":
		if dbURL == "" {
			return nil, nil, errors.New("database URL required (--database or DATABASE_URL env)")
		}
		pool, err := database.Connect(ctx, dbURL)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Connected to PostgreSQL", "url", sanitizeURL(dbURL))
		return database.NewDocumentStore(pool, ""), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", kind)
	}
}

// repair loads the document from backend, normalizes it and writes it back
// when the canonical form differs from what is stored.
func repair(ctx context.Context, backend store.Backend, defaults domain.Defaults, dryRun bool) (repairSummary, error) {
	doc, err := backend.Load(ctx)
	if errors.Is(err, domain.ErrNoDocument) {
		slog.Info("No document stored, nothing to repair", "backend", backend.Name())
		return repairSummary{}, nil
	}
	if err != nil {
		return repairSummary{}, fmt.Errorf("load failed: %w", err)
	}

	st, ok, err := store.Decode(doc, defaults)
	if err != nil {
		return repairSummary{}, fmt.Errorf("decode failed: %w", err)
	}
	if !ok {
		slog.Info("Stored document is empty, nothing to repair", "backend", backend.Name())
		return repairSummary{}, nil
	}

	repaired, err := store.Encode(st)
	if err != nil {
		return repairSummary{}, fmt.Errorf("encode failed: %w", err)
	}

	summary := repairSummary{
		Found:     true,
		Changed:   !bytes.Equal(bytes.TrimSpace(doc), bytes.TrimSpace(repaired)),
		Donations: len(st.Donations),
		Running:   len(st.RunningMissions),
	}
	if !summary.Changed {
		slog.Debug("Document already canonical")
		return summary, nil
	}

	if dryRun {
		slog.Info("Dry run, not writing repaired document", "bytes_before", len(doc), "bytes_after", len(repaired))
		return summary, nil
	}
	if err := backend.Save(ctx, repaired); err != nil {
		return summary, fmt.Errorf("save failed: %w", err)
	}
	return summary, nil
}

// sanitizeURL hides the password of a connection URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
