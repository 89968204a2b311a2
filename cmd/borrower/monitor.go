package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fyBorrow/internal/chain"
	"fyBorrow/internal/contracts"
	"fyBorrow/internal/metrics"
	"fyBorrow/internal/monitor"
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch pool consistency and serve metrics",
		RunE:  runMonitor,
	}
	cmd.Flags().Duration("monitor-interval", 30*time.Second, "pool check interval")
	cmd.Flags().StringSlice("monitor-pools", nil, "additional pools to watch (comma-separated)")
	cmd.Flags().String("metrics-addr", "", "listen address for /metrics, empty disables")
	return cmd
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	extra, err := chain.ParseAddresses(a.cfg.MonitorPools)
	if err != nil {
		return fmt.Errorf("monitor pools: %w", err)
	}

	observer := metrics.Borrower()
	stops := []func(){monitor.New(a.poolReader, a.pool.Hex(), a.cfg.MonitorInterval, observer, a.logger).Start(ctx)}
	for _, pool := range extra {
		reader := contracts.NewPoolReader(a.client, pool)
		stops = append(stops, monitor.New(reader, pool.Hex(), a.cfg.MonitorInterval, observer, a.logger).Start(ctx))
	}
	defer func() {
		for _, s := range stops {
			s()
		}
	}()

	a.logger.Info("monitor start",
		zap.String("pool", a.pool.Hex()),
		zap.Int("extra_pools", len(extra)),
		zap.Duration("interval", a.cfg.MonitorInterval),
		zap.String("metrics_addr", a.cfg.MetricsAddr),
	)

	if a.cfg.MetricsAddr == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
