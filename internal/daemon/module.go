package daemon

import (
	"context"
	"net/http"
	"os"

	"github.com/matheus3301/wabiz/internal/api"
	"github.com/matheus3301/wabiz/internal/bus"
	"github.com/matheus3301/wabiz/internal/config"
	"github.com/matheus3301/wabiz/internal/eventlog"
	"github.com/matheus3301/wabiz/internal/graph"
	"github.com/matheus3301/wabiz/internal/httpapi"
	"github.com/matheus3301/wabiz/internal/ingest"
	"github.com/matheus3301/wabiz/internal/instance"
	"github.com/matheus3301/wabiz/internal/live"
	"github.com/matheus3301/wabiz/internal/lock"
	"github.com/matheus3301/wabiz/internal/logging"
	"github.com/matheus3301/wabiz/internal/messaging"
	"github.com/matheus3301/wabiz/internal/metrics"
	"github.com/matheus3301/wabiz/internal/notify"
	"github.com/matheus3301/wabiz/internal/outbox"
	"github.com/matheus3301/wabiz/internal/registry"
	"github.com/matheus3301/wabiz/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved instance settings passed to the fx module.
type Params struct {
	Instance   string
	ConfigPath string // optional; empty = instance default
	SocketPath string // optional override for testing; empty = use default
	ListenAddr string // optional; overrides listen_addr
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideLock,
			provideStore,
			bus.New,
			metrics.New,
			registry.New,
			provideEventLog,
			provideHub,
			provideNotifier,
			provideGraph,
			providePipeline,
			provideMessaging,
			provideSender,
			provideRouter,
			provideHTTPServer,
			provideAdminService,
			provideAdminServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = instance.ConfigPath(p.Instance)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	if p.ListenAddr != "" {
		cfg.ListenAddr = p.ListenAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(instance.LogPath(p.Instance), p.Instance, cfg.LogLevel)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := instance.EnsureDir(p.Instance); err != nil {
		return nil, err
	}
	logger.Info("acquiring instance lock", zap.String("instance", p.Instance))
	l, err := lock.Acquire(instance.Dir(p.Instance))
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// provideStore depends on the lock so two daemons never migrate the same file.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := instance.DBPath(p.Instance)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideEventLog(cfg *config.Config) *eventlog.Log {
	return eventlog.New(cfg.EventLogCapacity)
}

func provideHub(reg *registry.Registry, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *live.Hub {
	return live.NewHub(reg, b, m, logger)
}

func provideNotifier(reg *registry.Registry, hub *live.Hub, m *metrics.Metrics, logger *zap.Logger) *notify.Notifier {
	return notify.New(reg, hub, m, logger)
}

func provideGraph(cfg *config.Config, logger *zap.Logger) *graph.Client {
	return graph.New(graph.Options{
		BaseURL:       cfg.Graph.BaseURL,
		APIVersion:    cfg.Graph.APIVersion,
		AccessToken:   cfg.Graph.AccessToken,
		PhoneNumberID: cfg.Graph.PhoneNumberID,
		Timeout:       cfg.Graph.Timeout.Duration,
	}, logger)
}

func providePipeline(cfg *config.Config, db *store.DB, events *eventlog.Log, n *notify.Notifier, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *ingest.Pipeline {
	return ingest.New(db, events, n, b, m, logger, cfg.Graph.PhoneNumberID)
}

func provideMessaging(db *store.DB, gc *graph.Client, n *notify.Notifier, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *messaging.Service {
	return messaging.New(db, gc, n, b, m, logger)
}

func provideSender(cfg *config.Config, db *store.DB, gc *graph.Client, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, gc, b, m, logger, cfg.Broadcast.Interval.Duration)
}

type routerDeps struct {
	fx.In

	Config     *config.Config
	Pipeline   *ingest.Pipeline
	Events     *eventlog.Log
	DB         *store.DB
	Messaging  *messaging.Service
	Broadcasts *outbox.Sender
	Hub        *live.Hub
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

func provideRouter(d routerDeps) http.Handler {
	return httpapi.NewRouter(httpapi.Deps{
		VerifyToken: d.Config.VerifyToken,
		JWTSecret:   []byte(d.Config.Auth.JWTSecret),
		Pipeline:    d.Pipeline,
		Events:      d.Events,
		DB:          d.DB,
		Messaging:   d.Messaging,
		Broadcasts:  d.Broadcasts,
		Live:        d.Hub,
		Metrics:     d.Metrics,
		Logger:      d.Logger,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(cfg.ListenAddr, h, logger)
}

type adminDeps struct {
	fx.In

	Params    Params
	Config    *config.Config
	Events    *eventlog.Log
	Registry  *registry.Registry
	Hub       *live.Hub
	DB        *store.DB
	Messaging *messaging.Service
	Bus       *bus.Bus
	Logger    *zap.Logger
}

func provideAdminService(d adminDeps) *api.Service {
	info := api.Info{
		Instance:      d.Params.Instance,
		ListenAddr:    d.Config.ListenAddr,
		PhoneNumberID: d.Config.Graph.PhoneNumberID,
		DisplayPhone:  d.Config.Graph.DisplayPhone,
	}
	return api.NewService(info, d.Events, d.Registry, d.Hub, d.DB, d.Messaging, d.Bus, d.Logger)
}

func provideAdminServer(p Params, svc *api.Service, logger *zap.Logger) (*AdminServer, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = instance.SocketPath(p.Instance)
	}
	return NewAdminServer(socketPath, svc, logger)
}

type lifecycleDeps struct {
	fx.In

	Lock   *lock.Lock
	DB     *store.DB
	HTTP   *httpapi.Server
	Admin  *AdminServer
	Hub    *live.Hub
	Sender *outbox.Sender
	Logger *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := d.HTTP.Start(); err != nil {
				return err
			}

			go func() {
				if err := d.Admin.Start(); err != nil {
					d.Logger.Error("admin server error", zap.Error(err))
				}
			}()

			d.Sender.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Sockets are hijacked connections; Shutdown does not wait for them.
			d.Hub.Close()
			if err := d.HTTP.Stop(ctx); err != nil {
				d.Logger.Warn("http shutdown", zap.Error(err))
			}
			d.Sender.Stop()
			d.Admin.Stop(ctx)
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			_ = d.Logger.Sync()
			return nil
		},
	})
}
