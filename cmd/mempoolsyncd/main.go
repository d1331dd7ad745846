// Package main is the entry point for the mempool sync daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	apihttp "github.com/branched-services/go-mempoolsync/internal/api/http"
	"github.com/branched-services/go-mempoolsync/internal/broadcaster"
	"github.com/branched-services/go-mempoolsync/internal/config"
	"github.com/branched-services/go-mempoolsync/internal/observability"
	"github.com/branched-services/go-mempoolsync/pkg/health"
	"github.com/branched-services/go-mempoolsync/pkg/mempool"
	"github.com/branched-services/go-mempoolsync/pkg/upstream"
)

func main() {
	// Root context canceled on SIGTERM/SIGINT (12-factor: disposability)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	code := 0
	if err := run(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		code = 1
	}

	os.Exit(code)
}

func run(ctx context.Context) error {
	// Load configuration from environment (12-factor: config)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Initialize structured logging (12-factor: logs as streams)
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("starting mempool sync daemon",
		"http_addr", cfg.HTTPAddr,
		"ws_addr", cfg.WSAddr,
		"refresh_rate", cfg.RefreshRate,
		"rate_window_seconds", cfg.RateWindowSeconds,
		"flush_min_before_size", cfg.FlushMinBeforeSize,
		"flush_ratio_threshold", cfg.FlushRatioThreshold,
	)

	// Build dependency graph (dependency inversion)

	// 1. Upstream RPC client (node's JSON-RPC interface)
	client := upstream.NewClient(cfg.NodeRPCURL, cfg.NodeRPCUser, cfg.NodeRPCPass)
	defer client.Close()

	// 2. Metrics recorder
	metrics := observability.NewMetrics()

	// 3. Engine (orchestrates reconciliation passes)
	engine, err := mempool.New(
		client,
		mempool.WithRefreshRate(cfg.RefreshRate),
		mempool.WithRateWindow(cfg.RateWindowSeconds),
		mempool.WithFlushProtection(cfg.FlushMinBeforeSize, cfg.FlushRatioThreshold, cfg.FlushCooldown),
		mempool.WithLatestCapacity(cfg.LatestCapacity),
		mempool.WithLogger(logger),
		mempool.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("constructing engine: %w", err)
	}

	// 4. Fan-out broadcaster for websocket subscribers, registered as the
	// engine's single change-event observer.
	hub := broadcaster.NewHub(logger)
	engine.SetObserver(hub.Observer())

	wsMux := http.NewServeMux()
	wsMux.Handle("/ws", hub)
	wsServer := &http.Server{Addr: cfg.WSAddr, Handler: wsMux}

	// 5. Read API server
	apiServer := apihttp.NewServer(cfg.HTTPAddr, engine, logger)

	// 6. Health server, with Prometheus metrics mounted alongside
	healthServer := health.NewServer(cfg.HealthAddr, engine, logger)
	healthServer.RegisterHandler("/metrics", observability.Handler())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := engine.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("engine: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := apiServer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	go func() {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		wsServer.Shutdown(shutdownCtx)
	}()

	g.Go(func() error {
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("websocket server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := healthServer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	waitErr := g.Wait()
	if waitErr != nil {
		slog.Error("component failed", "error", waitErr)
	} else {
		slog.Info("received shutdown signal")
	}

	// Graceful shutdown with timeout
	slog.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api server shutdown error", "error", err)
	}

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("health server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return waitErr
}
