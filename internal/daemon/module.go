package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matheus3301/wpdl/internal/api"
	"github.com/matheus3301/wpdl/internal/bus"
	"github.com/matheus3301/wpdl/internal/config"
	"github.com/matheus3301/wpdl/internal/lock"
	"github.com/matheus3301/wpdl/internal/logging"
	"github.com/matheus3301/wpdl/internal/manager"
	"github.com/matheus3301/wpdl/internal/provider"
	"github.com/matheus3301/wpdl/internal/session"
	"github.com/matheus3301/wpdl/internal/socketio"
	"github.com/matheus3301/wpdl/internal/store"
	"github.com/matheus3301/wpdl/internal/wa"
)

// Params holds the resolved startup options passed to the fx module.
type Params struct {
	Layout session.Layout
	// ConfigPath defaults to the layout's config.toml.
	ConfigPath string
	// Session overrides default_session from the config.
	Session string
	// ListenAddr overrides listen_addr from the config.
	ListenAddr string
	SocketPath string // optional override for testing; empty = use default
	Debug      bool

	// Factory and Logger replace the WhatsApp gateway and the file logger in tests.
	Factory provider.Factory
	Logger  *zap.Logger
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideLock,
			provideBus,
			provideRegistry,
			provideManager,
			api.NewSessionService,
			api.NewScanService,
			api.NewDownloadService,
			api.NewEventService,
			NewServer,
			socketio.NewServer,
			NewHTTPServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func (p Params) configPath() string {
	if p.ConfigPath != "" {
		return p.ConfigPath
	}
	return p.Layout.ConfigPath()
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	level := zapcore.InfoLevel
	if p.Debug {
		level = zapcore.DebugLevel
	}
	return logging.New(p.Layout.LogPath(), level)
}

func provideConfig(p Params, logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(p.configPath())
	if err != nil {
		return nil, err
	}
	if p.ListenAddr != "" {
		cfg.ListenAddr = p.ListenAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Info("config loaded", zap.String("path", p.configPath()), zap.String("download_dir", cfg.DownloadDir))
	return cfg, nil
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring daemon lock", zap.String("dir", p.Layout.Root))
	l, err := lock.Acquire(p.Layout.Root)
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

// provideRegistry takes the lock so the registry is only opened by its owner.
func provideRegistry(p Params, _ *lock.Lock, logger *zap.Logger) (*store.Registry, error) {
	path := p.Layout.RegistryDBPath()
	reg, err := store.OpenRegistry(path)
	if err != nil {
		return nil, err
	}
	logger.Info("registry initialized", zap.String("path", path))
	return reg, nil
}

func provideManager(p Params, cfg *config.Config, reg *store.Registry, b *bus.Bus, logger *zap.Logger) *manager.Manager {
	factory := p.Factory
	if factory == nil {
		factory = wa.NewFactory(logger)
	}
	return manager.New(manager.Options{
		Layout:     p.Layout,
		Config:     cfg,
		ConfigPath: p.configPath(),
		Factory:    factory,
		Registry:   reg,
		Bus:        b,
	}, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, cfg *config.Config, srv *Server, httpSrv *HTTPServer, sio *socketio.Server, m *manager.Manager, reg *store.Registry, lk *lock.Lock, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go sio.Run(runCtx)

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			go func() {
				if err := httpSrv.Start(); err != nil {
					logger.Error("ui server error", zap.Error(err))
				}
			}()

			// Bind the startup session, if any. Connection progress is
			// reported through the bus.
			if id := session.Resolve(p.Session, cfg); id != "" {
				go func() {
					if err := m.SelectOrCreate(runCtx, id); err != nil {
						logger.Error("failed to select startup session", zap.String("session", id), zap.Error(err))
					}
				}()
			} else {
				logger.Info("no startup session, waiting for the ui")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			sio.Close()
			httpSrv.Stop(ctx)
			srv.Stop(ctx)
			m.Close()
			if err := reg.Close(); err != nil {
				logger.Warn("error closing registry", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
