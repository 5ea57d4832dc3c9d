package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/pscheid92/donationpulse/internal/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

// DefaultDocumentName is the row holding the overlay document.
const DefaultDocumentName = "overlay"

const (
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
)

// ErrCircuitOpen is returned while the breaker rejects database calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// DocumentStore keeps the overlay document in the overlay_documents table.
type DocumentStore struct {
	pool    *pgxpool.Pool
	name    string
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewDocumentStore(pool *pgxpool.Pool, name string) *DocumentStore {
	if name == "" {
		name = DefaultDocumentName
	}
	return &DocumentStore{pool: pool, name: name, breaker: newBreaker(breakerOpenTimeout)}
}

func newBreaker(timeout time.Duration) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "postgres",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNoDocument)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerStateChanges.WithLabelValues(name, to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (s *DocumentStore) Name() string { return "postgres" }

// Load returns the stored document or domain.ErrNoDocument when no row exists.
func (s *DocumentStore) Load(ctx context.Context) ([]byte, error) {
	return s.breaker.Execute(func() ([]byte, error) {
		var doc []byte
		err := s.pool.QueryRow(ctx,
			`SELECT document FROM overlay_documents WHERE name = $1`, s.name,
		).Scan(&doc)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoDocument
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load document %s: %w", s.name, err)
		}
		return doc, nil
	})
}

// Save upserts the document row.
func (s *DocumentStore) Save(ctx context.Context, doc []byte) error {
	_, err := s.breaker.Execute(func() ([]byte, error) {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO overlay_documents (name, document, updated_at)
			VALUES ($1, $2::jsonb, now())
			ON CONFLICT (name) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
			s.name, string(doc),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to save document %s: %w", s.name, err)
		}
		return nil, nil
	})
	return err
}

// BreakerState reports the circuit breaker state for health checks.
func (s *DocumentStore) BreakerState() gobreaker.State {
	return s.breaker.State()
}
