package main

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/http/api"
	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/placement"
	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/repository"
	"github.com/anthill-platform/anthill-leaderboard/internal/adapters/social"
	service "github.com/anthill-platform/anthill-leaderboard/internal/app"
	"github.com/anthill-platform/anthill-leaderboard/internal/config"
	"github.com/anthill-platform/anthill-leaderboard/internal/observability"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
	"github.com/anthill-platform/anthill-leaderboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	shutdownTracer, err := observability.InitTracer(cfg.OtelEnabled, cfg.OtelEndpoint, logger.Named("otel"))
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn(ctx, "tracer shutdown failed", logger.Error(err))
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := newService(cfg, store)
	if err := svc.Start(ctx); err != nil {
		return err
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	apiServer := api.NewServer(svc,
		api.WithLimits(cfg.DefaultLimit, cfg.MaxLimit),
		api.WithLogger(logger.Named("api")))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
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

	var listenErr error
	select {
	case <-ctx.Done():
	case listenErr = <-serveErr:
		if listenErr != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(listenErr))
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	// Workers drain the purge queue after the listener stops accepting events.
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return listenErr
}

func newService(cfg *config.Config, store *repository.Store) *service.Service {
	opts := []service.Option{
		service.WithConfig(cfg),
		service.WithLogger(logger.Named("service")),
	}
	if cfg.SocialURL != "" {
		opts = append(opts, service.WithFriends(social.NewClient(cfg.SocialURL, cfg.SocialTimeout())))
	}
	return service.New(store, placement.NewSQL(store, logger.Named("placement")), opts...)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater keeps the purge queue gauge current between events.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdatePurgeQueueSize(svc.Stats().PurgeQueueLength)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
