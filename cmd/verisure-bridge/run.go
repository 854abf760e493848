package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"verisurebridge/internal/api"
	"verisurebridge/internal/bridge"
	"verisurebridge/internal/clock"
	"verisurebridge/internal/host"
	"verisurebridge/internal/verisure"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge until interrupted",
	RunE:  runBridge,
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	client := verisure.NewClient(cfg.Verisure.BaseURL, cfg.Timeout(), logger)
	registry := host.NewMemoryRegistry()

	b := bridge.New(bridge.Options{
		Username:        cfg.Verisure.Username,
		Password:        cfg.Verisure.Password,
		PollingInterval: cfg.PollingInterval(),
	}, client, registry, clock.NewRealClock(), logger)

	h := host.New(b, cfg.HeartbeatInterval(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var server *api.Server
	if cfg.API.Enabled {
		metrics := prometheus.NewRegistry()
		metrics.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics.MustRegister(b.Collectors()...)

		server = api.NewServer(registry, h, b, metrics, logger, cfg.API.Port)
		if err := server.Start(); err != nil {
			return err
		}
	}

	logger.Info("Bridge running. Press Ctrl+C to exit.")
	h.Run(ctx)

	logger.Info("Shutting down gracefully...")
	if server != nil {
		if err := server.Stop(); err != nil {
			logger.Error("Failed to stop API server", zap.Error(err))
		}
	}
	return nil
}
