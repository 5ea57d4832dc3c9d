package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pscheid92/donationpulse/internal/domain"
	"github.com/pscheid92/donationpulse/internal/metrics"
)

// Backend persists the serialized document. Load returns domain.ErrNoDocument
// when nothing has been stored yet.
type Backend interface {
	Name() string
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, doc []byte) error
}

// Source tells where a loaded document came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceLocal    Source = "local"
	SourceDefaults Source = "defaults"
)

// StorageError is a failed backend operation. It never reaches API callers.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Adapter loads from and saves to the configured backends.
type Adapter struct {
	remote   Backend
	local    Backend
	defaults domain.Defaults

	mu        sync.Mutex
	saved     bool
	lastSaved uint64
	written   map[Backend]*writeState
}

// writeState tracks the newest document handed to one backend.
type writeState struct {
	revision uint64
	doc      []byte
	landed   bool
}

// New creates an adapter. remote may be nil when only the local snapshot is used.
func New(local, remote Backend, defaults domain.Defaults) *Adapter {
	return &Adapter{remote: remote, local: local, defaults: defaults, written: map[Backend]*writeState{}}
}

// Load returns the first usable document (remote, then local), merged onto the
// defaults. Backend failures are logged and fall through to the next source;
// Load never fails, because a fresh default state is always available.
func (a *Adapter) Load(ctx context.Context) (*domain.State, Source) {
	candidates := []struct {
		backend Backend
		source  Source
	}{
		{a.remote, SourceRemote},
		{a.local, SourceLocal},
	}

	for _, c := range candidates {
		if c.backend == nil {
			continue
		}
		st, ok := a.loadFrom(ctx, c.backend)
		if !ok {
			continue
		}
		slog.Info("Loaded overlay document", "source", c.source, "backend", c.backend.Name(),
			"donations", len(st.Donations), "streamers", len(st.Streamers))
		metrics.StoreLoadsTotal.WithLabelValues(string(c.source)).Inc()
		return st, c.source
	}

	slog.Info("No stored overlay document, starting from defaults")
	metrics.StoreLoadsTotal.WithLabelValues(string(SourceDefaults)).Inc()
	return a.defaults.State(), SourceDefaults
}

func (a *Adapter) loadFrom(ctx context.Context, backend Backend) (*domain.State, bool) {
	doc, err := backend.Load(ctx)
	if errors.Is(err, domain.ErrNoDocument) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Failed to read overlay document", "backend", backend.Name(), "error", err)
		return nil, false
	}

	st, ok, err := Decode(doc, a.defaults)
	if err != nil {
		slog.Warn("Ignoring unreadable overlay document", "backend", backend.Name(), "error", err)
		return nil, false
	}
	return st, ok
}

// Save writes st to the remote backend and, independently, to the local file.
// A snapshot older than one already handed to the backends is skipped. The
// lock only orders revisions; backend I/O runs outside it, so a hung write
// stalls only its own caller. The returned error joins one StorageError per
// failed backend; memory is never rolled back.
func (a *Adapter) Save(ctx context.Context, st *domain.State) error {
	doc, err := Encode(st)
	if err != nil {
		return &StorageError{Backend: "encoder", Op: "encode", Err: err}
	}

	a.mu.Lock()
	if a.saved && st.Revision < a.lastSaved {
		a.mu.Unlock()
		slog.Debug("Skipping stale save", "revision", st.Revision, "last_saved", a.lastSaved)
		for _, b := range a.backends() {
			metrics.StoreSavesTotal.WithLabelValues(b.Name(), "skipped").Inc()
		}
		return nil
	}
	a.saved = true
	a.lastSaved = st.Revision
	for _, b := range a.backends() {
		a.written[b] = &writeState{revision: st.Revision, doc: doc}
	}
	a.mu.Unlock()

	var errs []error
	for _, b := range a.backends() {
		if err := a.write(ctx, b, st.Revision, doc); err != nil {
			errs = append(errs, &StorageError{Backend: b.Name(), Op: "save", Err: err})
		}
	}
	return errors.Join(errs...)
}

// write saves doc to b. Writes to one backend may overlap; when an older
// write lands after a newer one, the newest document is written again so the
// backend never ends on a stale revision.
func (a *Adapter) write(ctx context.Context, b Backend, revision uint64, doc []byte) error {
	for {
		start := time.Now()
		err := b.Save(ctx, doc)
		metrics.StoreSaveDuration.WithLabelValues(b.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.StoreSavesTotal.WithLabelValues(b.Name(), "error").Inc()
		} else {
			metrics.StoreSavesTotal.WithLabelValues(b.Name(), "success").Inc()
		}

		a.mu.Lock()
		ws := a.written[b]
		if ws.revision == revision {
			ws.landed = true
			a.mu.Unlock()
			return err
		}
		if err != nil || !ws.landed {
			// The newer write is still in flight and lands after this one.
			a.mu.Unlock()
			return err
		}
		slog.Debug("Older write landed last, rewriting newest document",
			"backend", b.Name(), "revision", revision, "newest", ws.revision)
		revision, doc = ws.revision, ws.doc
		a.mu.Unlock()
	}
}

func (a *Adapter) backends() []Backend {
	out := make([]Backend, 0, 2)
	if a.remote != nil {
		out = append(out, a.remote)
	}
	if a.local != nil {
		out = append(out, a.local)
	}
	return out
}
