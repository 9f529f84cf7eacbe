// Package main is the operator entry point for the darkmon aggregation
// service: it registers the configured connectors, runs the health-check
// loop, and shuts everything down cleanly on signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"darkmon/config"
	"darkmon/connector"
	"darkmon/core"
	"darkmon/credentials"
	"darkmon/health"
	"darkmon/registry"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "darkmon",
		Short: "Dark-web monitoring aggregation service",
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("darkmon", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Register configured sources and run the health-check loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Config file path (default darkmon.yaml in . or ./config)")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	log := logger.Sugar()

	vault, err := credentials.NewSecretVault(cfg.Secrets.Provider,
		credentials.VaultConfig{
			Address: cfg.Secrets.Vault.Address,
			Token:   cfg.Secrets.Vault.Token,
			Path:    cfg.Secrets.Vault.Path,
		},
		credentials.AWSConfig{
			Region:    cfg.Secrets.AWS.Region,
			AccessKey: cfg.Secrets.AWS.AccessKey,
			SecretKey: cfg.Secrets.AWS.SecretKey,
			Prefix:    cfg.Secrets.AWS.Prefix,
		})
	if err != nil {
		return err
	}

	store := credentials.NewStore(vault, log)
	defer store.Close()

	monitor := health.NewMonitor(cfg.Thresholds(), log)
	defer monitor.Close()

	reg := registry.New(monitor, log)
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	registered := 0
	for _, sc := range cfg.Sources {
		if !sc.Enabled {
			continue
		}
		source := sc.Source()

		conn, err := buildConnector(source, store, log)
		if err != nil {
			log.Errorw("Skipping source", "source", source.ID, "error", err)
			continue
		}
		if err := reg.Register(ctx, conn); err != nil {
			log.Errorw("Failed to register source", "source", source.ID, "error", err)
			continue
		}
		if sc.RotationHours > 0 {
			store.EnableRotation(source.ID, time.Duration(sc.RotationHours)*time.Hour)
		}
		registered++
	}
	cancel()

	if registered == 0 {
		return fmt.Errorf("no sources registered; check configuration and credentials")
	}

	reg.StartHealthCheckLoop(cfg.CheckInterval())
	log.Infow("darkmon running", "sources", registered, "check_interval", cfg.CheckInterval())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	return nil
}

// buildConnector selects the implementation for the source's provider type
func buildConnector(source core.Source, store *credentials.Store, log *zap.SugaredLogger) (connector.Connector, error) {
	switch source.Provider {
	case core.ProviderTypeCredentialDB:
		return connector.NewLeakWatch(source, store, log)
	case core.ProviderTypeBreachRepo:
		return connector.NewBreachDB(source, store, log)
	case core.ProviderTypeMarketplace:
		return connector.NewDarkMarket(source, store, log)
	default:
		return nil, fmt.Errorf("no connector for provider type %q", source.Provider)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
