// Package manager owns the zero-or-one live provider connection and the
// durable session records, and serializes account switches.
package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/wpdl/internal/bus"
	"github.com/matheus3301/wpdl/internal/config"
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/normalize"
	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/session"
	"github.com/matheus3301/wpdl/internal/status"
	"github.com/matheus3301/wpdl/internal/store"
)

var (
	// ErrNoActiveSession is returned for commands that need a bound session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrUnknownSession is returned when removing a session that does not exist.
	ErrUnknownSession = errors.New("unknown session")
	// ErrInvalidInput is returned for rejected command arguments.
	ErrInvalidInput = errors.New("invalid input")
)

const profileTimeout = 30 * time.Second

// Options configures a Manager.
type Options struct {
	Layout session.Layout
	Config *config.Config
	// ConfigPath is where setting changes are persisted; empty disables saving.
	ConfigPath string
	Factory    provider.Factory
	Registry   *store.Registry
	Bus        bus.Publisher
	// Exists overrides the file system check used by scans.
	Exists normalize.ExistsFunc
	Now    func() time.Time
}

// Manager is the Session Manager.
type Manager struct {
	layout     session.Layout
	configPath string
	factory    provider.Factory
	registry   *store.Registry
	pub        bus.Publisher
	gate       *bus.Gate
	exists     normalize.ExistsFunc
	now        func() time.Time
	logger     *zap.Logger

	// switchMu serializes select, create, remove and close.
	switchMu sync.Mutex

	mu      sync.Mutex
	cfg     config.Config
	current *SessionContext
}

// New creates a manager with no active session.
func New(opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cfg := config.Default()
	if opts.Config != nil {
		cfg = opts.Config
	}
	return &Manager{
		layout:     opts.Layout,
		configPath: opts.ConfigPath,
		factory:    opts.Factory,
		registry:   opts.Registry,
		pub:        opts.Bus,
		// One gate for the process keeps epochs increasing across switches.
		gate:   bus.NewGate(opts.Bus),
		exists: opts.Exists,
		now:    opts.Now,
		logger: logger,
		cfg:    *cfg,
	}
}

// Config returns a snapshot of the live configuration.
func (m *Manager) Config() config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Active returns the active session context, or ErrNoActiveSession.
func (m *Manager) Active() (*SessionContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoActiveSession
	}
	return m.current, nil
}

func (m *Manager) isCurrent(sc *SessionContext) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current == sc
}

// Current returns the active session record.
func (m *Manager) Current() (model.Session, bool) {
	sc, err := m.Active()
	if err != nil {
		return model.Session{}, false
	}
	s := model.Session{ID: sc.ID, Active: true, State: sc.Machine.Current()}
	if m.registry != nil {
		if rec, err := m.registry.GetSession(sc.ID); err == nil && rec != nil {
			s = *rec
			s.Active = true
			s.State = sc.Machine.Current()
		}
	}
	return s, true
}

// SelectOrCreate makes id the active session, creating its storage if new.
// Any active connection is closed first and its scans and downloads are
// discarded. Connection failures are reported on the connectivity channel,
// not returned. Selecting the already active session is a no-op unless its
// connection failed, in which case it is reopened.
func (m *Manager) SelectOrCreate(ctx context.Context, id string) error {
	if err := session.ValidateID(id); err != nil {
		return err
	}
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	if sc, err := m.Active(); err == nil && sc.ID == id && sc.Connectivity() != model.ConnFailed {
		return nil
	}
	m.deactivate()
	return m.activate(ctx, id)
}

// CreateSession creates and selects a session with a fresh id.
func (m *Manager) CreateSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := m.SelectOrCreate(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// Remove deletes a session. The active session is logged out (best effort)
// and closed first; a dormant one is deleted without contacting the provider.
func (m *Manager) Remove(ctx context.Context, id string) error {
	if err := session.ValidateID(id); err != nil {
		return err
	}
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	if sc, err := m.Active(); err == nil && sc.ID == id {
		if err := sc.Gateway.Logout(ctx); err != nil {
			m.logger.Warn("logout before remove failed", zap.String("session", id), zap.Error(err))
		}
		m.deactivate()
	} else if !m.known(id) {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	if err := m.layout.RemoveDir(id); err != nil {
		return err
	}
	if m.registry != nil {
		if err := m.registry.DeleteSession(id); err != nil {
			return fmt.Errorf("delete session record: %w", err)
		}
	}
	m.logger.Info("session removed", zap.String("session", id))
	m.PublishSessions()
	return nil
}

// Close tears down the active session, if any.
func (m *Manager) Close() {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()
	m.deactivate()
}

func (m *Manager) known(id string) bool {
	if _, err := os.Stat(m.layout.Dir(id)); err == nil {
		return true
	}
	if m.registry == nil {
		return false
	}
	rec, err := m.registry.GetSession(id)
	return err == nil && rec != nil
}

// deactivate unbinds and tears down the current context. Caller holds switchMu.
func (m *Manager) deactivate() {
	m.mu.Lock()
	sc := m.current
	m.current = nil
	m.mu.Unlock()
	if sc == nil {
		return
	}
	m.logger.Info("closing session", zap.String("session", sc.ID))
	sc.teardown(m.logger)
}

// activate opens and connects id. Caller holds switchMu.
func (m *Manager) activate(ctx context.Context, id string) error {
	if err := m.layout.EnsureDir(id); err != nil {
		return fmt.Errorf("prepare session dir: %w", err)
	}
	cfg := m.Config()

	logger := m.logger.With(zap.String("session", id))
	gw, err := m.factory(ctx, id, m.layout.Dir(id))
	if err != nil {
		logger.Warn("failed to open provider gateway", zap.Error(err))
		m.pub.Publish(bus.ConnectivityState{SessionID: id, State: model.ConnFailed, Error: err.Error()})
		return nil
	}

	sc := newSessionContext(id, gw, m.pub, m.gate, &cfg, m.exists, m.logger)
	if cfg.Proxy.Enabled {
		if err := gw.SetProxy(cfg.Proxy); err != nil {
			logger.Warn("failed to apply proxy", zap.Error(err))
		}
	}
	// Hooks are registered before Connect so no early push is lost.
	gw.OnAuthStateChange(func(u provider.AuthUpdate) { m.handleAuth(sc, u) })
	gw.OnConnectivityChange(func(u provider.ConnectivityUpdate) { m.handleConnectivity(sc, u) })
	gw.OnFileUpdate(func(fi provider.FileInfo) {
		if m.isCurrent(sc) {
			sc.Tracker.HandleFileUpdate(fi)
		}
	})
	gw.OnMessageUpdate(func(u provider.MessageUpdate) {
		if m.isCurrent(sc) {
			m.pub.Publish(bus.ChatsChanged{ChatID: u.ChatID})
		}
	})

	m.mu.Lock()
	m.current = sc
	m.mu.Unlock()

	_ = sc.Machine.Transition(model.Connecting)
	if m.registry != nil {
		if err := m.registry.TouchSession(id, m.now()); err != nil {
			logger.Debug("failed to touch session", zap.Error(err))
		}
	}
	logger.Info("session selected")
	m.PublishSessions()

	if err := gw.Connect(ctx); err != nil {
		logger.Warn("provider connect failed", zap.Error(err))
		sc.setConn(model.ConnFailed)
		m.pub.Publish(bus.ConnectivityState{SessionID: id, State: model.ConnFailed, Error: err.Error()})
	}
	return nil
}

func (m *Manager) handleAuth(sc *SessionContext, u provider.AuthUpdate) {
	if !m.isCurrent(sc) {
		return
	}
	sc.setAuth(u.State, u.Payload)
	if err := sc.Machine.Transition(status.ForAuth(u.State)); err != nil {
		m.logger.Debug("ignored lifecycle transition", zap.Error(err))
	}
	m.pub.Publish(bus.AuthState{SessionID: sc.ID, State: u.State, Payload: u.Payload})
	if u.State == model.AuthReady {
		sc.goBackground(func() { m.recordProfile(sc) })
	}
}

func (m *Manager) handleConnectivity(sc *SessionContext, u provider.ConnectivityUpdate) {
	if !m.isCurrent(sc) {
		return
	}
	sc.setConn(u.State)
	if u.State == model.ConnConnecting && sc.Machine.Current() == model.Ready {
		_ = sc.Machine.Transition(model.Connecting)
	}
	evt := bus.ConnectivityState{SessionID: sc.ID, State: u.State}
	if u.Err != nil {
		evt.Error = u.Err.Error()
	}
	m.pub.Publish(evt)
}

// recordProfile persists the account profile once auth is ready.
func (m *Manager) recordProfile(sc *SessionContext) {
	ctx, cancel := context.WithTimeout(context.Background(), profileTimeout)
	defer cancel()

	s := model.Session{ID: sc.ID}
	p, err := sc.Gateway.Profile(ctx)
	if err != nil {
		m.logger.Warn("failed to fetch profile", zap.String("session", sc.ID), zap.Error(err))
	} else {
		s.FirstName, s.LastName = p.FirstName, p.LastName
		s.Username, s.Phone, s.Avatar = p.Username, p.Phone, p.Avatar
	}
	if !m.isCurrent(sc) {
		return
	}
	if m.registry != nil {
		if err := m.registry.SaveSession(s, m.now()); err != nil {
			m.logger.Error("failed to save session", zap.String("session", sc.ID), zap.Error(err))
			return
		}
	}
	m.PublishSessions()
}

// ListSessions returns known sessions, most recently active first. Sessions
// with storage but no profile yet are listed after recorded ones.
func (m *Manager) ListSessions() ([]model.Session, error) {
	var out []model.Session
	seen := make(map[string]bool)
	if m.registry != nil {
		recs, err := m.registry.ListSessions()
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		for _, s := range recs {
			seen[s.ID] = true
			out = append(out, s)
		}
	}

	entries, err := os.ReadDir(m.layout.SessionsDir())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || seen[e.Name()] || session.ValidateID(e.Name()) != nil {
			continue
		}
		s := model.Session{ID: e.Name()}
		if info, err := e.Info(); err == nil {
			s.LastActive = info.ModTime()
		}
		seen[s.ID] = true
		out = append(out, s)
	}

	if sc, err := m.Active(); err == nil {
		if !seen[sc.ID] {
			out = append([]model.Session{{ID: sc.ID}}, out...)
		}
		for i := range out {
			if out[i].ID == sc.ID {
				out[i].Active = true
				out[i].State = sc.Machine.Current()
			}
		}
	}
	return out, nil
}

// PublishSessions pushes the current session list.
func (m *Manager) PublishSessions() {
	list, err := m.ListSessions()
	if err != nil {
		m.logger.Warn("failed to list sessions", zap.Error(err))
		return
	}
	m.pub.Publish(bus.SessionsList{Sessions: list})
}
