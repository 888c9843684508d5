package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"data-chopper/internal/app"
	"data-chopper/internal/pkg/config"
	"data-chopper/internal/pkg/logger"
)

func newWorkerCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the task queue workers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	return cmd
}

func runWorker(metricsAddr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if cfg.StoreDriver == config.StoreDriverMemory {
		return fmt.Errorf("worker needs a shared queue, STORE_DRIVER=%s is process-local", cfg.StoreDriver)
	}

	l, err := logger.NewLogger(cfg.IsDevelopment(), cfg.Settings.LogLevel)
	if err != nil {
		return err
	}
	defer l.Sync()
	log := l.Named("worker")

	registry := prometheus.NewRegistry()
	application, err := app.New(ctx, cfg, registry, l)
	if err != nil {
		return err
	}
	defer application.Close()

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	return application.Pool.Run(ctx)
}
