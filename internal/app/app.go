// Package app wires the worlddb service: engine session, dataset load,
// repositories, cache and the HTTP and gRPC servers.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	grpcapi "github.com/arkilian/worlddb/internal/api/grpc"
	httpapi "github.com/arkilian/worlddb/internal/api/http"
	"github.com/arkilian/worlddb/internal/cache"
	"github.com/arkilian/worlddb/internal/config"
	"github.com/arkilian/worlddb/internal/dataset"
	"github.com/arkilian/worlddb/internal/engine"
	"github.com/arkilian/worlddb/internal/notify"
	"github.com/arkilian/worlddb/internal/observability"
	"github.com/arkilian/worlddb/internal/partition"
	"github.com/arkilian/worlddb/internal/repository"
	"github.com/arkilian/worlddb/internal/repository/gormrepo"
	"github.com/arkilian/worlddb/internal/server"
	"github.com/arkilian/worlddb/internal/storage"
	"github.com/arkilian/worlddb/internal/world"
)

// App manages the worlddb service lifecycle.
type App struct {
	cfg *config.Config

	session     *engine.Session
	cache       cache.ResultCache
	service     *world.Service
	diagnostics *world.Diagnostics
	shutdown    *server.ShutdownManager
	notifier    *notify.Notifier

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcHealth   *health.Server
	grpcListener net.Listener
	errCh        chan error

	mu      sync.Mutex
	running bool
}

// New creates an App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg, errCh: make(chan error, 2)}, nil
}

// Start connects to the engine, loads the dataset when configured, logs
// the startup diagnostics and starts the servers.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())
	a.notifier = notify.New(16)

	if err := a.initSharedResources(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}
	if err := a.diagnostics.LogStartup(ctx); err != nil {
		log.Printf("Startup diagnostics failed: %v", err)
	}

	if err := a.startHTTP(); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to start http server: %w", err)
	}
	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start grpc server: %w", err)
		}
	}

	log.Printf("worlddb started: engine=%s repository=%s", a.cfg.Engine.Driver, a.cfg.Repository.Kind)
	return nil
}

func (a *App) initSharedResources(ctx context.Context) error {
	var err error

	a.session, err = OpenSession(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.shutdown.RegisterCloser(a.session)
	log.Printf("Engine session opened: driver=%s node=%s", a.cfg.Engine.Driver, a.session.Cluster().Active().Address)

	if a.cfg.Dataset.LoadOnStart {
		stats, err := LoadDataset(ctx, a.cfg, a.session, nil)
		if err != nil {
			return err
		}
		log.Printf("Dataset loaded: %d objects, %d statements in %v", stats.Objects, stats.Statements, stats.Duration)
	}

	cities, countries, err := a.repositories()
	if err != nil {
		return err
	}

	a.cache, err = OpenCache(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.shutdown.RegisterCloser(a.cache)

	affinity, err := partition.NewAffinity(a.cfg.Partitions)
	if err != nil {
		return err
	}
	a.service = world.NewService(cities, countries, a.cache)
	a.diagnostics = world.NewDiagnostics(a.session, affinity)
	if a.cfg.Dataset.LoadOnStart {
		if err := a.service.Invalidate(ctx); err != nil {
			return fmt.Errorf("failed to invalidate cached results: %w", err)
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	sub := a.notifier.Subscribe()
	go a.service.Watch(watchCtx, sub)
	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		cancel()
		a.notifier.Unsubscribe(sub)
		return nil
	}))
	return nil
}

// Reload loads the configured dataset again. Cached rankings are dropped
// once the load commits.
func (a *App) Reload(ctx context.Context) (dataset.Stats, error) {
	stats, err := LoadDataset(ctx, a.cfg, a.session, a.notifier)
	if err != nil {
		return stats, fmt.Errorf("reload failed: %w", err)
	}
	log.Printf("Dataset reloaded: %d objects, %d statements in %v", stats.Objects, stats.Statements, stats.Duration)
	return stats, nil
}

// repositories builds the configured repository implementation.
func (a *App) repositories() (world.CityStore, world.CountryStore, error) {
	if a.cfg.Repository.Kind == config.RepositoryGorm {
		db, err := gormrepo.Open(a.session, a.cfg.Repository.LogLevel)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Repositories: gorm (log level %s)", a.cfg.Repository.LogLevel)
		return gormrepo.NewCityRepository(db), gormrepo.NewCountryRepository(db), nil
	}

	cities, err := repository.NewCityRepository(a.session)
	if err != nil {
		return nil, nil, err
	}
	countries, err := repository.NewCountryRepository(a.session)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Repositories: native")
	return cities, countries, nil
}

func (a *App) startHTTP() error {
	health := httpapi.NewHealthHandler("worlddb", func(r *http.Request) error {
		return a.session.Ping(r.Context())
	})
	mux := httpapi.NewRouter(httpapi.RouterConfig{
		Service:      a.service,
		DefaultLimit: a.cfg.API.DefaultLimit,
		Health:       health,
		Gatherer:     observability.Registry,
		Reload:       a.Reload,
		Middleware:   []func(http.Handler) http.Handler{server.ShutdownMiddleware(a.shutdown)},
	})

	lis, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	a.httpListener = lis
	a.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.ServeHTTP(a.httpServer, lis, a.errCh)
	log.Printf("HTTP server listening on %s", lis.Addr())
	return nil
}

func (a *App) startGRPC() error {
	lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return err
	}
	a.grpcListener = lis
	a.grpcServer, a.grpcHealth = grpcapi.NewGRPCServer(grpcapi.NewServer(a.service, a.cfg.API.DefaultLimit))
	a.shutdown.ServeGRPC(a.grpcServer, lis, a.errCh)
	// Closers run in reverse, so health reports NOT_SERVING before the
	// graceful stop begins.
	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		a.grpcHealth.Shutdown()
		return nil
	}))
	log.Printf("gRPC server listening on %s", lis.Addr())
	return nil
}

// Service returns the world service. It is nil before Start.
func (a *App) Service() *world.Service {
	return a.service
}

// Diagnostics returns the engine diagnostics. It is nil before Start.
func (a *App) Diagnostics() *world.Diagnostics {
	return a.diagnostics
}

// HTTPAddr returns the address the HTTP server listens on.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the address the gRPC server listens on, or "" when
// gRPC is disabled.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// Errors reports server failures after Start.
func (a *App) Errors() <-chan error {
	return a.errCh
}

// Stop shuts the servers down and releases every resource.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("Stopping worlddb...")
	err := a.shutdown.Shutdown(ctx, "stop requested")
	log.Printf("worlddb stopped")
	return err
}

// cleanup releases whatever Start managed to acquire.
func (a *App) cleanup() {
	if err := a.shutdown.Shutdown(context.Background(), "startup failed"); err != nil {
		log.Printf("Cleanup error: %v", err)
	}
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

// OpenSession connects to the configured engine.
func OpenSession(ctx context.Context, cfg *config.Config) (*engine.Session, error) {
	return engine.Open(ctx, engine.Config{
		Driver:          cfg.Engine.Driver,
		Addresses:       cfg.Engine.Addresses,
		Database:        cfg.Engine.Database,
		User:            cfg.Engine.User,
		Password:        cfg.Engine.Password,
		Params:          cfg.Engine.Params,
		ConnectTimeout:  cfg.Engine.ConnectTimeout,
		MaxOpenConns:    cfg.Engine.MaxOpenConns,
		MaxIdleConns:    cfg.Engine.MaxIdleConns,
		ConnMaxLifetime: cfg.Engine.ConnMaxLifetime,
	})
}

// OpenCache connects to the configured result cache, or returns the no-op
// cache when caching is disabled.
func OpenCache(ctx context.Context, cfg *config.Config) (cache.ResultCache, error) {
	if !cfg.Cache.Enabled {
		return cache.Noop{}, nil
	}
	rc, err := cache.NewRedis(ctx, cache.Config{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		Prefix:   cfg.Cache.Prefix,
		TTL:      cfg.Cache.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}
	log.Printf("Result cache enabled: addr=%s ttl=%v", cfg.Cache.Addr, cfg.Cache.TTL)
	return rc, nil
}

// OpenStore creates the configured dataset object store.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	sc := cfg.Dataset.Storage
	store, err := storage.New(ctx, storage.Config{
		Type:   sc.Type,
		Path:   sc.Path,
		Bucket: sc.S3.Bucket,
		S3: storage.S3Config{
			Region:       sc.S3.Region,
			Endpoint:     sc.S3.Endpoint,
			UsePathStyle: sc.S3.UsePathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("Storage initialized: type=%s", sc.Type)
	return store, nil
}

// LoadDataset loads the configured dataset: the embedded sample, the
// listed objects, or every object under the prefix. A non-nil notifier
// hears about the committed load.
func LoadDataset(ctx context.Context, cfg *config.Config, s *engine.Session, n *notify.Notifier) (dataset.Stats, error) {
	if cfg.Dataset.Sample {
		return dataset.NewLoader(nil, s).WithNotifier(n).LoadScript(ctx, "sample/world.sql", dataset.SampleWorld)
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return dataset.Stats{}, err
	}
	loader := dataset.NewLoader(store, s).WithConcurrency(cfg.Dataset.Concurrency).WithNotifier(n)
	if len(cfg.Dataset.Objects) > 0 {
		return loader.Load(ctx, cfg.Dataset.Objects...)
	}
	return loader.LoadPrefix(ctx, cfg.Dataset.Prefix)
}
