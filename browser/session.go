package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/placafipe/models"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of the warm engine.
type State int32

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	// ErrShutdown is returned by Acquire once Shutdown has begun.
	ErrShutdown = errors.New("browser: session manager is shut down")

	// ErrNoBrowser means a context was requested from an engine that was
	// never started.
	ErrNoBrowser = errors.New("browser: engine not initialized")
)

// Options configures a Manager.
type Options struct {
	// Warm keeps one engine for the whole process. When false every lease
	// launches its own engine and tears it down on Release.
	Warm bool

	// MaxContexts bounds concurrently open browsing contexts.
	MaxContexts int // default: 4

	// LaunchTimeout bounds a single engine launch.
	LaunchTimeout time.Duration // default: 30s

	Logger *slog.Logger
}

// Manager owns the browser engine lifecycle and issues request-scoped
// browsing contexts. It is safe for concurrent use.
type Manager struct {
	launcher Launcher
	opts     Options
	logger   *slog.Logger

	gate   *semaphore.Weighted
	starts singleflight.Group

	mu      sync.Mutex
	state   State
	browser Browser
	leases  map[*Lease]struct{}

	launches        atomic.Int64
	launchFailures  atomic.Int64
	contextFailures atomic.Int64 // consecutive; reset by the next success
}

// NewManager creates a Manager. No engine is started until the first Acquire
// (or Start).
func NewManager(l Launcher, opts Options) *Manager {
	if opts.MaxContexts < 1 {
		opts.MaxContexts = 4
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		launcher: l,
		opts:     opts,
		logger:   logger.With("component", "session"),
		gate:     semaphore.NewWeighted(int64(opts.MaxContexts)),
		leases:   make(map[*Lease]struct{}),
	}
}

// Start eagerly launches the warm engine. It is a no-op in cold mode.
func (m *Manager) Start(ctx context.Context) error {
	if !m.opts.Warm {
		return nil
	}
	_, err := m.warmBrowser(ctx)
	return err
}

// Acquire returns a fresh browsing context. The caller must call
// Lease.Release on every exit path.
//
// Acquire blocks while MaxContexts leases are outstanding. In warm mode the
// first callers wait on a single in-flight launch rather than starting their
// own engines.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	if err := m.gate.Acquire(ctx, 1); err != nil {
		return nil, models.NewLookupError(models.KindTimeout, "timed out waiting for a free browser context", err)
	}
	lease, err := m.acquire(ctx)
	if err != nil {
		m.gate.Release(1)
		return nil, err
	}
	return lease, nil
}

func (m *Manager) acquire(ctx context.Context) (*Lease, error) {
	var (
		b     Browser
		owned Browser
		err   error
	)
	if m.opts.Warm {
		b, err = m.warmBrowser(ctx)
	} else {
		if m.closing() {
			return nil, shutdownError()
		}
		b, err = m.launch(ctx)
		owned = b
	}
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, models.NewLookupError(models.KindFatal, "browser engine unavailable", ErrNoBrowser)
	}

	bctx, err := b.NewContext(ctx)
	if err != nil {
		if owned != nil {
			_ = owned.Close()
		}
		failures := m.contextFailures.Add(1)
		m.logger.Warn("failed to create browsing context", "consecutiveFailures", failures, "error", err)
		return nil, models.NewLookupError(models.KindTransient, "failed to create browsing context", err)
	}
	m.contextFailures.Store(0)

	lease := &Lease{m: m, bctx: bctx, owned: owned}

	m.mu.Lock()
	if m.state == StateClosing || m.state == StateClosed {
		m.mu.Unlock()
		lease.close()
		return nil, shutdownError()
	}
	m.leases[lease] = struct{}{}
	m.mu.Unlock()

	return lease, nil
}

// warmBrowser returns the shared engine, starting it if needed. Concurrent
// callers share one launch through the singleflight group; the launch
// itself re-checks the state so a caller that raced a finished launch never
// starts a second engine.
func (m *Manager) warmBrowser(ctx context.Context) (Browser, error) {
	m.mu.Lock()
	switch m.state {
	case StateReady:
		b := m.browser
		m.mu.Unlock()
		return b, nil
	case StateClosing, StateClosed:
		m.mu.Unlock()
		return nil, shutdownError()
	}
	m.mu.Unlock()

	ch := m.starts.DoChan("engine", func() (any, error) {
		return m.startWarm()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Browser), nil
	case <-ctx.Done():
		return nil, models.NewLookupError(models.KindTimeout, "timed out waiting for browser start", ctx.Err())
	}
}

func (m *Manager) startWarm() (Browser, error) {
	m.mu.Lock()
	switch m.state {
	case StateReady:
		b := m.browser
		m.mu.Unlock()
		return b, nil
	case StateClosing, StateClosed:
		m.mu.Unlock()
		return nil, shutdownError()
	}
	m.state = StateStarting
	m.mu.Unlock()

	// The launch outlives whichever request triggered it.
	b, err := m.launch(context.Background())

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if m.state == StateStarting {
			m.state = StateUninitialized
		}
		return nil, err
	}
	if m.state != StateStarting {
		_ = b.Close()
		return nil, shutdownError()
	}
	m.browser = b
	m.state = StateReady
	return b, nil
}

func (m *Manager) launch(ctx context.Context) (Browser, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.LaunchTimeout)
	defer cancel()

	start := time.Now()
	b, err := m.launcher.Launch(ctx)
	m.launches.Add(1)
	if err == nil && b == nil {
		err = ErrNoBrowser
	}
	if err != nil {
		m.launchFailures.Add(1)
		m.logger.Error("browser launch failed", "warm", m.opts.Warm, "error", err)
		return nil, models.NewLookupError(models.KindResourceInit, "failed to launch browser", err)
	}
	m.logger.Info("browser launched", "warm", m.opts.Warm, "elapsed", time.Since(start))
	return b, nil
}

// Shutdown closes every outstanding context, then the engine. It is
// idempotent; later Acquire calls fail with ErrShutdown.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.state == StateClosing || m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosing
	leases := make([]*Lease, 0, len(m.leases))
	for l := range m.leases {
		leases = append(leases, l)
	}
	m.leases = make(map[*Lease]struct{})
	b := m.browser
	m.browser = nil
	m.mu.Unlock()

	m.logger.Info("session manager shutting down", "openContexts", len(leases))
	for _, l := range leases {
		l.close()
	}

	var err error
	if b != nil {
		err = b.Close()
	}

	m.mu.Lock()
	m.state = StateClosed
	m.mu.Unlock()
	m.logger.Info("session manager shutdown complete")
	return err
}

// State returns the current engine state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OpenContexts returns the number of leases not yet released.
func (m *Manager) OpenContexts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leases)
}

// Stats returns a snapshot for health reporting.
func (m *Manager) Stats() models.SessionStats {
	return models.SessionStats{
		State:          m.State().String(),
		Warm:           m.opts.Warm,
		OpenContexts:   m.OpenContexts(),
		MaxContexts:    m.opts.MaxContexts,
		Launches:       m.launches.Load(),
		LaunchFailures: m.launchFailures.Load(),

		ContextFailures: m.contextFailures.Load(),
	}
}

func (m *Manager) closing() bool {
	s := m.State()
	return s == StateClosing || s == StateClosed
}

func shutdownError() error {
	return models.NewLookupError(models.KindFatal, "browser session manager is shut down", ErrShutdown)
}

// Lease is one request's browsing context. Release it exactly once; extra
// calls are no-ops.
type Lease struct {
	m     *Manager
	bctx  Context
	owned Browser // cold mode: the engine launched for this lease

	closeOnce   sync.Once
	releaseOnce sync.Once
	closeErr    error
}

// Page returns the context's page.
func (l *Lease) Page() Page { return l.bctx.Page() }

// Release closes the context (and, in cold mode, its engine) and frees the
// admission slot.
func (l *Lease) Release() error {
	l.releaseOnce.Do(func() {
		l.close()
		l.m.mu.Lock()
		delete(l.m.leases, l)
		l.m.mu.Unlock()
		l.m.gate.Release(1)
	})
	return l.closeErr
}

func (l *Lease) close() {
	l.closeOnce.Do(func() {
		err := l.bctx.Close()
		if l.owned != nil {
			err = errors.Join(err, l.owned.Close())
		}
		if err != nil {
			l.m.logger.Warn("failed to close browsing context", "error", err)
		}
		l.closeErr = err
	})
}
