package manager

import (
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/wpdl/internal/bus"
	"github.com/matheus3301/wpdl/internal/config"
	"github.com/matheus3301/wpdl/internal/download"
	"github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/normalize"
	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/scan"
	"github.com/matheus3301/wpdl/internal/status"
)

// SessionContext is everything bound to the active session. It is built on
// activation and discarded as a whole on switch or close, so no state leaks
// from one account into the next.
type SessionContext struct {
	ID      string
	Gateway provider.Gateway
	Tracker *download.Tracker
	Scans   *scan.Coordinator
	Machine *status.Machine

	mu          sync.Mutex
	auth        model.AuthState
	authPayload string
	conn        model.Connectivity
	closed      bool
	wg          sync.WaitGroup
}

func newSessionContext(id string, gw provider.Gateway, pub bus.Publisher, gate *bus.Gate, cfg *config.Config, exists normalize.ExistsFunc, logger *zap.Logger) *SessionContext {
	logger = logger.With(zap.String("session", id))
	sc := &SessionContext{
		ID:      id,
		Gateway: gw,
		auth:    model.AuthLoggedOut,
		conn:    model.ConnConnecting,
	}
	sc.Tracker = download.New(gw, pub, download.Options{
		Dir:            cfg.DownloadDir,
		SampleInterval: cfg.Download.SampleInterval(),
	}, logger)
	sc.Scans = scan.New(gw, gate, exists, scan.OptionsFrom(cfg.Scan), logger)
	sc.Machine = status.NewMachine(func(from, to model.Lifecycle) {
		logger.Debug("session state changed", zap.String("from", string(from)), zap.String("to", string(to)))
	})
	return sc
}

// Auth returns the latest auth state and its payload.
func (sc *SessionContext) Auth() (model.AuthState, string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.auth, sc.authPayload
}

// Connectivity returns the latest connection state.
func (sc *SessionContext) Connectivity() model.Connectivity {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conn
}

func (sc *SessionContext) setAuth(s model.AuthState, payload string) {
	sc.mu.Lock()
	sc.auth, sc.authPayload = s, payload
	sc.mu.Unlock()
}

func (sc *SessionContext) setConn(c model.Connectivity) {
	sc.mu.Lock()
	sc.conn = c
	sc.mu.Unlock()
}

// goBackground runs fn unless the context is already closed.
func (sc *SessionContext) goBackground(fn func()) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		fn()
	}()
}

// teardown discards scans and downloads, then closes the gateway. The scan
// epoch is invalidated before Close so a page served or failed while the
// connection shuts down cannot emit. Gateway errors are logged, never
// returned.
func (sc *SessionContext) teardown(logger *zap.Logger) {
	sc.mu.Lock()
	sc.closed = true
	sc.mu.Unlock()

	sc.Scans.Stop()
	sc.Tracker.Discard()
	if err := sc.Gateway.Close(); err != nil {
		logger.Debug("gateway close failed", zap.String("session", sc.ID), zap.Error(err))
	}
	_ = sc.Machine.Transition(model.Closed)
	sc.wg.Wait()
}
