package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/tierlearn/internal/adapters/docstore"
	"github.com/okian/tierlearn/internal/adapters/http/api"
	"github.com/okian/tierlearn/internal/adapters/http/site"
	"github.com/okian/tierlearn/internal/adapters/http/swagger"
	app "github.com/okian/tierlearn/internal/app"
	"github.com/okian/tierlearn/internal/config"
	"github.com/okian/tierlearn/pkg/logger"
	"github.com/okian/tierlearn/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1) //nolint:gocritic // exitAfterDefer: nothing to release yet
	}

	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "tierlearn exited with error", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

// run starts the service and the HTTP server and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(context.Background(), "closing document store", logger.Error(err))
		}
	}()

	svc := app.New(
		app.WithStore(store),
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithDefaultTier(cfg.DefaultTier),
		app.WithMaxTier(cfg.MaxTier),
		app.WithMinContentTotal(cfg.MinContentTotal),
		app.WithCourseTierMigration(cfg.MigrateCourseTiers),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, api.WithMaxTier(cfg.MaxTier)),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
	return nil
}

// openStore opens the configured backend behind a timeout and a circuit breaker.
func openStore(ctx context.Context, cfg *config.Config) (*docstore.Guarded, error) {
	var inner docstore.Store
	switch cfg.StoreBackend {
	case config.BackendBadger:
		db, err := docstore.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("open badger store at %s: %w", cfg.BadgerPath, err)
		}
		inner = db
	default:
		inner = docstore.NewMemoryStore()
	}
	logger.Get().Info(ctx, "document store ready", logger.String("backend", cfg.StoreBackend))

	return docstore.NewGuarded(inner,
		docstore.WithTimeout(cfg.StoreTimeout()),
		docstore.WithFailureThreshold(cfg.BreakerFailureThreshold),
		docstore.WithOpenTimeout(cfg.BreakerOpenTimeout()),
		docstore.WithBreakerName("docstore-"+cfg.StoreBackend),
	), nil
}

// newMux registers every HTTP route.
func newMux(ctx context.Context, svc *app.Service, opts ...api.ServerOption) *http.ServeMux {
	mux := http.NewServeMux()
	site.Register(ctx, mux)
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, opts...).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater refreshes process gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	updateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
