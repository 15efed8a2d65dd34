package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"scan-gate/config"
	"scan-gate/internal/client"
	"scan-gate/internal/connectivity"
	"scan-gate/internal/handlers"
	"scan-gate/internal/scanner"
	"scan-gate/internal/store"
	"scan-gate/internal/syncer"
	"scan-gate/monitoring"
)

// StartAgent runs the gate device agent: the dual-mode scan engine, the
// local durable store, and the background sync machinery, fronted by a
// local HTTP API for the scanner UI.
func StartAgent() error {
	cfg := config.LoadConfig()

	st := store.Open(cfg.DataDir)
	defer st.Close()
	if !st.Available() {
		// Keep running: scans degrade to server-only validation and the
		// operator sees the degraded store in /health.
		slog.Warn("local store unavailable, offline mode will reject scans")
	}

	monitor := connectivity.NewMonitor()
	apiClient := client.New(cfg.ServerURL, cfg.RequestTimeout, monitor)

	engine := scanner.NewEngine(st, apiClient, monitor, deviceInfo(cfg))
	reconciler := syncer.NewReconciler(st, apiClient, cfg.CacheMaxAge, cfg.RefreshLimit)
	scheduler := syncer.NewScheduler(reconciler, monitor, cfg.SyncInterval, cfg.ReconnectSettle)

	monitoring.NewMonitor(st)
	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort)
	}

	scheduler.Start()
	defer scheduler.Stop()

	// Warm the replica on startup; this doubles as the first reachability
	// probe.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		if err := reconciler.RefreshCache(ctx); err != nil {
			slog.Warn("initial cache refresh failed, starting with existing replica", "error", err)
		}
	}()

	e := echo.New()
	handlers.NewAgentHandler(engine, st, monitor, reconciler, scheduler).Register(e)

	srv := &http.Server{
		Addr:    ":" + cfg.AgentPort,
		Handler: e,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("agent API listening", "port", cfg.AgentPort, "server", cfg.ServerURL)
		errCh <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
		slog.Info("shutdown signal received, draining")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func deviceInfo(cfg *config.Config) string {
	name := cfg.DeviceName
	if name == "" {
		if host, err := os.Hostname(); err == nil {
			name = host
		} else {
			name = "gate"
		}
	}
	// Session suffix distinguishes restarts of the same gate in scan logs.
	return fmt.Sprintf("%s/%.8s", name, uuid.NewString())
}
