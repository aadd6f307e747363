package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-allocator/internal/config"
	"wisefido-allocator/internal/logger"
	"wisefido-allocator/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "wisefido-allocator"

var configFile string

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Emergency department resource allocator",
	Long: `Scores emergency department patients by clinical priority and assigns
available beds, ventilators, monitors and other resources to them.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the allocator service (HTTP API + periodic reallocation)",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML file overriding scoring and allocator settings (or set CONFIG_FILE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(scoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup 加载配置并创建 logger
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return nil, nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid config file %s: %w", configFile, err)
		}
	}

	var fields []zap.Field
	if cfg.TenantID != "" {
		fields = append(fields, zap.String("tenant_id", cfg.TenantID))
	}
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName, fields...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting wisefido-allocator service",
		zap.String("seed_source", cfg.SeedSource),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Duration("interval", cfg.Allocator.Interval),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := service.NewAllocatorService(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create service", zap.Error(err))
		return err
	}

	if err := svc.Start(ctx, true); err != nil {
		log.Error("Failed to start service", zap.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case serveErr = <-svc.Errors():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
	}

	log.Info("Service stopped")
	return serveErr
}
