// Package app provides the main application lifecycle management for the
// publication engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/gopost/engine/internal/api"
	"github.com/gopost/engine/internal/config"
	"github.com/gopost/engine/internal/credentials"
	"github.com/gopost/engine/internal/crypto"
	"github.com/gopost/engine/internal/database"
	"github.com/gopost/engine/internal/dedup"
	"github.com/gopost/engine/internal/dispatch"
	"github.com/gopost/engine/internal/logger"
	"github.com/gopost/engine/internal/metrics"
	"github.com/gopost/engine/internal/redis"
	"github.com/gopost/engine/internal/scheduler"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second
	// CacheWarmTimeout bounds the startup credential cache load
	CacheWarmTimeout = 30 * time.Second
)

// App represents the engine application with all its dependencies
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *goredis.Client
	cache       *credentials.Cache
	notifier    *credentials.Notifier
	scheduler   *scheduler.Scheduler
	httpServer  *http.Server
	version     string
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string
}

// New creates a new App instance with all dependencies initialized
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "publication-engine"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(database.Config{
		Host:     cfg.Database.Host,
		Port:     strconv.Itoa(cfg.Database.Port),
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		_ = appLogger.Sync()
		return nil, err
	}

	redisClient, err := redis.NewClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, err
	}

	key, err := cfg.Credentials.EncryptionKeyBytes()
	if err != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, err
	}
	cipher, err := crypto.NewCipher(key)
	if err != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	engineMetrics := metrics.New(promRegistry)

	jobRepo := database.NewJobRepository(db)
	credRepo := database.NewCredentialRepository(db)
	auditRepo := database.NewAuditRepository(db)

	cache := credentials.NewCache(credRepo, cipher, credentials.Config{
		TenantScopedPlatforms: cfg.Credentials.TenantScopedPlatforms,
		StoreTimeout:          cfg.Credentials.StoreTimeout,
		Metrics:               engineMetrics,
	}, appLogger)

	notifier := credentials.NewNotifier(redisClient, cfg.Credentials.ChangeChannel, cache, auditRepo, appLogger)

	adapterRegistry := dispatch.NewRegistry(
		dispatch.NewWordPressAdapter("", cfg.Scheduler.DispatchTimeout, appLogger),
		dispatch.NewTwitterAdapter("", "", cfg.Scheduler.DispatchTimeout, appLogger),
		dispatch.NewWebhookAdapter(dispatch.PlatformMake, cfg.Scheduler.DispatchTimeout, appLogger),
	)

	schedDeps := scheduler.Deps{
		Jobs:     jobRepo,
		Creds:    cache,
		Registry: adapterRegistry,
		Audit:    auditRepo,
		Metrics:  engineMetrics,
		Logger:   appLogger,
	}
	if cfg.Dedup.Enabled {
		schedDeps.Dedup = dedup.NewTracker(redisClient, cfg.Dedup.TTL, appLogger)
	}
	sched := scheduler.New(schedDeps, scheduler.Config{
		TickInterval:    cfg.Scheduler.TickInterval,
		BatchSize:       cfg.Scheduler.BatchSize,
		WorkerCount:     cfg.Scheduler.WorkerCount,
		StoreTimeout:    cfg.Scheduler.StoreTimeout,
		DispatchTimeout: cfg.Scheduler.DispatchTimeout,
	})

	router := api.NewRouter(jobRepo, db, redisClient, cache, sched, promRegistry, cfg.Debug, appLogger)
	httpServer := router.NewServer(cfg.Server.Address, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	return &App{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		cache:       cache,
		notifier:    notifier,
		scheduler:   sched,
		httpServer:  httpServer,
		version:     opts.Version,
	}, nil
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	a.warmCache(ctx)

	a.notifier.Start(ctx)
	a.scheduler.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting operational API",
			logger.String("address", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	return a.waitForShutdown(serverErr)
}

// warmCache loads all credentials before the first tick. A failure here is
// not fatal: the cache serves per-key fall-through until the next reload.
func (a *App) warmCache(ctx context.Context) {
	warmCtx, cancel := context.WithTimeout(ctx, CacheWarmTimeout)
	defer cancel()

	if err := a.cache.Reload(warmCtx); err != nil {
		a.logger.Warn("Credential cache warm-up failed, starting cold", logger.Error(err))
		return
	}

	global, tenant := a.cache.Sizes()
	a.logger.Info("Credential cache warmed",
		logger.Int("global_entries", global),
		logger.Int("tenant_entries", tenant))
}

// waitForShutdown handles graceful shutdown
func (a *App) waitForShutdown(serverErr chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var shutdownErr error

	select {
	case sig := <-sigChan:
		a.logger.Info("Shutting down gracefully",
			logger.String("signal", sig.String()))

	case err := <-serverErr:
		if err != nil {
			a.logger.Error("Server error", logger.Error(err))
			shutdownErr = err
		}
	}

	a.shutdown()
	a.logger.Info("Service stopped")
	return shutdownErr
}

// shutdown stops components in dependency order: no new ticks, no more
// reloads, then the HTTP surface.
func (a *App) shutdown() {
	a.scheduler.Stop()
	a.notifier.Stop()
	a.shutdownHTTPServer()
}

// shutdownHTTPServer gracefully shuts down the HTTP server
func (a *App) shutdownHTTPServer() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("Server shutdown error", logger.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}
}

// Close cleans up resources
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close database", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}
