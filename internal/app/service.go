package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/pscheid92/donationpulse/internal/metrics"
)

// ErrStopped is returned for commands issued after Stop.
var ErrStopped = errors.New("state service stopped")

const commandBufferSize = 64

// Persister saves a state snapshot. Implemented by store.Adapter.
type Persister interface {
	Save(ctx context.Context, st *domain.State) error
}

type command interface{ isCommand() }

type baseCommand struct{}

func (baseCommand) isCommand() {}

// mutateCmd applies a change. apply reports whether the state changed; it must
// validate before touching the state so a rejected command leaves it intact.
type mutateCmd struct {
	baseCommand
	name          string
	event         string
	keepTimestamp bool
	apply         func(st *domain.State, now time.Time) (bool, error)
	reply         chan mutateResult
}

type mutateResult struct {
	state *domain.State // nil when nothing changed
	err   error
}

type readCmd struct {
	baseCommand
	read  func(st *domain.State) error
	reply chan error
}

type stopCmd struct {
	baseCommand
}

// Service is the single owner of the overlay document.
type Service struct {
	cmdCh     chan command
	done      chan struct{}
	state     *domain.State
	persist   Persister
	publisher domain.StatePublisher
	defaults  domain.Defaults
	clock     clockwork.Clock
	newID     func() string
}

// NewService takes ownership of initial and starts the command loop.
func NewService(initial *domain.State, persist Persister, publisher domain.StatePublisher, defaults domain.Defaults, clock clockwork.Clock) *Service {
	initial.Normalize()
	s := &Service{
		cmdCh:     make(chan command, commandBufferSize),
		done:      make(chan struct{}),
		state:     initial,
		persist:   persist,
		publisher: publisher,
		defaults:  defaults,
		clock:     clock,
		newID:     uuid.NewString,
	}
	metrics.StateRevision.Set(float64(initial.Revision))
	metrics.DonationsCurrent.Set(float64(len(initial.Donations)))
	go s.run()
	return s
}

// Stop processes every command queued so far, then ends the loop.
func (s *Service) Stop() {
	select {
	case s.cmdCh <- stopCmd{}:
		<-s.done
	case <-s.done:
	}
}

func (s *Service) run() {
	defer close(s.done)
	for cmd := range s.cmdCh {
		switch c := cmd.(type) {
		case mutateCmd:
			c.reply <- s.handleMutate(c)
		case readCmd:
			c.reply <- c.read(s.state)
		case stopCmd:
			slog.Info("State service stopped", "revision", s.state.Revision)
			return
		default:
			slog.Warn("State service received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (s *Service) handleMutate(c mutateCmd) mutateResult {
	now := s.clock.Now()
	defer func() {
		metrics.CommandDuration.WithLabelValues(c.name).Observe(s.clock.Since(now).Seconds())
	}()

	changed, err := c.apply(s.state, now)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues(c.name, "rejected").Inc()
		return mutateResult{err: err}
	}
	if !changed {
		metrics.CommandsTotal.WithLabelValues(c.name, "noop").Inc()
		return mutateResult{}
	}

	s.state.Revision++
	if !c.keepTimestamp {
		s.state.LastUpdated = domain.FormatTimestamp(now)
	}
	metrics.CommandsTotal.WithLabelValues(c.name, "applied").Inc()
	metrics.StateRevision.Set(float64(s.state.Revision))
	metrics.DonationsCurrent.Set(float64(len(s.state.Donations)))

	return mutateResult{state: s.state.Clone()}
}

// mutate runs c on the owner goroutine, then saves and publishes the new
// snapshot from the calling goroutine. Once accepted a command always
// completes; ctx only bounds the wait for a queue slot.
func (s *Service) mutate(ctx context.Context, c mutateCmd) error {
	c.reply = make(chan mutateResult, 1)
	if err := s.send(ctx, c); err != nil {
		return err
	}

	var res mutateResult
	select {
	case res = <-c.reply:
	case <-s.done:
		select {
		case res = <-c.reply:
		default:
			return ErrStopped
		}
	}
	if res.err != nil || res.state == nil {
		return res.err
	}

	s.commit(context.WithoutCancel(ctx), c.event, res.state)
	return nil
}

func (s *Service) commit(ctx context.Context, event string, st *domain.State) {
	if err := s.persist.Save(ctx, st); err != nil {
		slog.Error("Failed to persist overlay document", "revision", st.Revision, "error", err)
	}
	s.publisher.Publish(event, st)
}

// read runs fn against the live state on the owner goroutine. fn must copy
// anything it hands out.
func (s *Service) read(ctx context.Context, fn func(st *domain.State) error) error {
	c := readCmd{read: fn, reply: make(chan error, 1)}
	if err := s.send(ctx, c); err != nil {
		return err
	}
	select {
	case err := <-c.reply:
		return err
	case <-s.done:
		select {
		case err := <-c.reply:
			return err
		default:
			return ErrStopped
		}
	}
}

func (s *Service) send(ctx context.Context, c command) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.cmdCh <- c:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
