// Package session owns the inference session of one task context. A Manager
// holds at most one Ready session; replacing it always destroys the old one
// before the new one is created.
package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"zimflow/internal/apperr"
	"zimflow/internal/backend"
)

// State is the lifecycle state of a manager's session.
type State int32

const (
	Uninitialized State = iota
	Creating
	Ready
	Destroyed
)

func (s State) String() string {
	switch s {
	case Creating:
		return "creating"
	case Ready:
		return "ready"
	case Destroyed:
		return "destroyed"
	default:
		return "uninitialized"
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithProgress registers an observer for download progress, in percent.
// Values are clamped to [0,100] and are not guaranteed to increase.
func WithProgress(fn func(name string, percent int)) Option {
	return func(m *Manager) { m.onProgress = fn }
}

// WithoutDownloadWait makes Ensure fail with DownloadRequired instead of
// blocking while the backend fetches the model.
func WithoutDownloadWait() Option {
	return func(m *Manager) { m.waitForDownload = false }
}

// Manager owns the exclusive session handle for one task context.
type Manager struct {
	name            string
	backend         backend.Backend
	log             *slog.Logger
	waitForDownload bool
	onProgress      func(string, int)

	mu       sync.Mutex
	current  *Session
	state    atomic.Int32
	progress atomic.Int32
}

// NewManager builds a manager for the named context.
func NewManager(name string, b backend.Backend, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		name:            name,
		backend:         b,
		log:             log.With("context", name),
		waitForDownload: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the context name.
func (m *Manager) Name() string { return m.name }

// State returns the lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Progress returns the latest download progress in percent.
func (m *Manager) Progress() int { return int(m.progress.Load()) }

// Ensure returns the Ready session when its configuration equals cfg,
// otherwise destroys it and creates a replacement.
func (m *Manager) Ensure(ctx context.Context, cfg Config) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.Valid() && m.current.cfg == cfg {
		return m.current, nil
	}
	return m.replaceLocked(ctx, cfg)
}

// Recreate always destroys the current session and creates a new one, giving
// the caller a clean conversation context.
func (m *Manager) Recreate(ctx context.Context, cfg Config) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaceLocked(ctx, cfg)
}

// Destroy releases the current session. Safe to call any number of times.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyLocked()
}

// Discard destroys s only if it is still the current session.
func (m *Manager) Discard(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == s {
		m.destroyLocked()
	}
}

func (m *Manager) replaceLocked(ctx context.Context, cfg Config) (*Session, error) {
	m.destroyLocked()

	availability, err := m.backend.Availability(ctx)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	switch availability {
	case backend.Unavailable:
		return nil, apperr.New(apperr.KindBackendUnavailable, "inference backend reports no model capability")
	case backend.Downloadable, backend.Downloading:
		if !m.waitForDownload {
			return nil, apperr.New(apperr.KindDownloadRequired, "model must be downloaded before a session can start")
		}
		m.log.Info("model download required, waiting", "availability", availability)
		m.setProgress(0)
	}

	m.state.Store(int32(Creating))
	handle, err := m.backend.Create(ctx, backend.Options{
		SystemPrompt: cfg.SystemPrompt,
		TopK:         cfg.TopK,
		Temperature:  cfg.Temperature,
		Monitor:      m.report,
	})
	if err != nil {
		m.state.Store(int32(Uninitialized))
		if errors.Is(err, backend.ErrUnavailable) {
			return nil, apperr.Wrap(apperr.KindBackendUnavailable, "inference backend reports no model capability", err)
		}
		return nil, apperr.Backend(err)
	}

	m.current = newSession(cfg, handle)
	m.state.Store(int32(Ready))
	m.setProgress(100)
	m.log.Debug("session ready", "session_id", m.current.ID, "top_k", cfg.TopK, "temperature", cfg.Temperature)
	return m.current, nil
}

func (m *Manager) destroyLocked() {
	if m.current == nil {
		return
	}
	m.log.Debug("destroying session", "session_id", m.current.ID)
	m.current.destroy()
	m.current = nil
	m.state.Store(int32(Destroyed))
}

func (m *Manager) report(p backend.Progress) {
	var pct float64
	if p.Total > 0 {
		pct = p.Loaded / p.Total * 100
	} else {
		pct = p.Loaded * 100
	}
	m.setProgress(clampPercent(pct))
}

func (m *Manager) setProgress(pct int) {
	m.progress.Store(int32(pct))
	if m.onProgress != nil {
		m.onProgress(m.name, pct)
	}
}

func clampPercent(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(math.Round(v))
}
