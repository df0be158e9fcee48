package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/j-veylop/codexbar-monitor/internal/logger"
	"github.com/j-veylop/codexbar-monitor/internal/metrics"
	"github.com/j-veylop/codexbar-monitor/internal/models"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(logLevel *string) *cobra.Command {
	var (
		addr   string
		notify bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Refresh usage in the background and expose Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*logLevel)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.MetricsAddr = addr
			}
			d, err := openDeps(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			return runServe(cmd.Context(), d, notify)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address; overrides METRICS_ADDR")
	cmd.Flags().BoolVar(&notify, "notify", true, "send desktop notifications")
	return cmd
}

// latestSource is the part of the monitor the HTTP handlers read.
type latestSource interface {
	Latest() map[string]models.UsageData
	IsRefreshing() bool
}

func newServeMux(src latestSource) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /usage", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Providers  map[string]models.UsageData `json:"providers"`
			Refreshing bool                        `json:"refreshing"`
		}{
			Providers:  src.Latest(),
			Refreshing: src.IsRefreshing(),
		})
	})
	return mux
}

func runServe(ctx context.Context, d *deps, notify bool) error {
	mon := d.newMonitor(notify)
	defer func() { _ = mon.Close() }()

	srv := &http.Server{
		Addr:              d.cfg.MetricsAddr,
		Handler:           newServeMux(mon),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go d.followSettings(ctx, mon)
	mon.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve metrics: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}
	return nil
}
