// cmd/feedserver hosts the mock telemetry feed: it seeds a bounded series,
// ticks it on a timer and serves the live samples over WebSocket and REST,
// with Prometheus metrics and a health check on a separate port.
//
// Usage:
//
//	LIVEFEED_CONFIG=livefeed.yaml go run ./cmd/feedserver
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"energy-livefeed/config"
	"energy-livefeed/internal/bus"
	"energy-livefeed/internal/gateway"
	"energy-livefeed/internal/logger"
	"energy-livefeed/internal/metrics"
	"energy-livefeed/internal/model"
	"energy-livefeed/internal/telemetry"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	log, closer := logger.Init("feedserver", logger.ParseLevel(cfg.LogLevel), logger.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer closer.Close()
	log.Info("starting",
		slog.Duration("tick_interval", cfg.TickInterval),
		slog.Int("capacity", cfg.Capacity),
		slog.String("listen_addr", cfg.ListenAddr))

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus(cfg.TickInterval)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, prometheus.DefaultGatherer, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Feed ----
	series := telemetry.NewSeries(telemetry.Config{
		Capacity:  cfg.Capacity,
		SeedCount: cfg.SeedCount,
	})
	feed := telemetry.NewFeed(series, cfg.TickInterval, log)
	feed.OnTick = func(ti telemetry.TickInfo) {
		prom.ObserveTick(ti)
		health.ObserveTick(ti)
	}
	feed.OnTickError = prom.TickError

	// ---- Bus: feed -> hub ----
	fanout := bus.New(cfg.BusBufferSize)
	fanout.OnDrop = prom.FanoutDrop
	hubIn := fanout.Subscribe()
	feed.Subscribe(model.Observer(fanout.Publish))
	prom.StartSaturationReporter(ctx, fanout, 5*time.Second)

	hub := gateway.NewHub(feed, gateway.HubOptions{
		Window:         cfg.WindowSize,
		ReplayCapacity: cfg.ReplayCapacity,
		Metrics:        prom,
		Logger:         log,
	})
	hub.OnClientCount = health.SetWSClients
	go hub.Run(ctx, hubIn)

	// ---- HTTP ----
	router := mux.NewRouter()
	gateway.RegisterRoutes(router, hub, feed, gateway.RouteOptions{
		Window:  cfg.WindowSize,
		CanvasW: cfg.CanvasWidth,
		CanvasH: cfg.CanvasHeight,
		Start:   time.Now(),
		Metrics: prom,
		Health:  health,

		AllowedOrigins: cfg.AllowedOrigins,
	})
	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: gateway.NewHandler(router, gateway.HandlerOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			AccessLog:      os.Stdout,
			Logger:         log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	feed.Start(ctx)
	health.SetFeedRunning(true)

	go func() {
		log.Info("http server listening", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", slog.Any("error", err))
			sigCh <- syscall.SIGTERM
		}
	}()

	// ---- Wait for shutdown signal ----
	sig := <-sigCh
	log.Info("shutdown signal received", slog.String("signal", sig.String()))

	feed.Stop()
	health.SetFeedRunning(false)
	fanout.Close()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", slog.Any("error", err))
	}
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		log.Warn("metrics shutdown", slog.Any("error", err))
	}

	log.Info("shutdown complete", slog.Int("series_len", feed.Len()))
}
