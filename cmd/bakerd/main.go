package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/contentpress/bakerd/internal/api"
	"github.com/contentpress/bakerd/internal/bake"
	"github.com/contentpress/bakerd/internal/config"
	"github.com/contentpress/bakerd/internal/db"
	"github.com/contentpress/bakerd/internal/dispatcher"
	"github.com/contentpress/bakerd/internal/event"
	"github.com/contentpress/bakerd/internal/executor"
	"github.com/contentpress/bakerd/internal/listener"
	"github.com/contentpress/bakerd/internal/metrics"
	"github.com/contentpress/bakerd/internal/provider"
	"github.com/contentpress/bakerd/internal/ratelimiter"
	"github.com/contentpress/bakerd/internal/repository"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// The listener owns this connection exclusively; it is never shared
	// with bake-task execution.
	listenConn, err := db.ListenerConn(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open listener connection", zap.Error(err))
	}
	defer listenConn.Close(ctx) //nolint:errcheck

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store := repository.NewPgBakeStore(pool)
	docs := provider.NewArchiveClient(cfg.ArchiveBaseURL, cfg.ProviderTimeout)
	baker := provider.NewHTTPBaker(cfg.BakerBaseURL, cfg.ProviderTimeout)
	limiter := ratelimiter.New(cfg.BakeRateLimit)

	// ---- task executor ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	pool2 := executor.NewPool(cfg.BakeWorkers, cfg.TaskQueueCapacity, cfg.ResultHistoryLimit, logger, m.ExecutorHooks())
	pool2.Start(workerCtx)

	// ---- orchestrator + dispatch table ----
	orch := bake.New(store, pool2, docs, baker, limiter, logger,
		bake.MetricHooks{OnBaked: m.BakeHooks()}, cfg.StateMessageLimit)

	disp := dispatcher.New(logger)
	disp.Register(event.KindPublished, orch.HandlePublished)
	disp.Register(event.KindStartupScan, orch.HandleStartupScan)

	// ---- notification listener ----
	onReceived, onDecodeFailure := m.ListenerHooks()
	l := listener.New(listenConn, disp, cfg.Channels, cfg.PollInterval, logger, listener.MetricHooks{
		OnReceived:      onReceived,
		OnDecodeFailure: onDecodeFailure,
	})
	if err := l.Start(workerCtx); err != nil {
		logger.Fatal("failed to subscribe to notification channels", zap.Error(err))
	}

	listenErr := make(chan error, 1)
	go func() { listenErr <- l.Run(workerCtx) }()

	// ---- operational HTTP server ----
	router := api.NewRouter(pool2, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-listenErr:
		// Run returns nil only on cancellation; anything else means the
		// notification connection is gone and the process must restart.
		if err != nil {
			logger.Error("listener terminated", zap.Error(err))
			exitCode = 1
		}
	}

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal the listener and all workers to stop.
	cancelWorkers()

	// 3. Wait for in-flight bake tasks to finish.
	pool2.Wait()

	logger.Info("server stopped cleanly")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
