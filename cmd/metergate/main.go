// Package main is the entry point for metergate, a usage accounting
// and subscription quota service for AI chat workloads.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	mghttp "github.com/artpar/metergate/adapters/http"
	"github.com/artpar/metergate/bootstrap"
	"github.com/artpar/metergate/config"
)

func main() {
	configPath := flag.String("config", "metergate.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	hotReload := flag.Bool("hot-reload", true, "Enable hot reload of configuration")
	flag.Parse()

	if *showVersion {
		fmt.Printf("metergate %s\n", mghttp.BuildVersion)
		os.Exit(0)
	}

	// Local development convenience; missing .env is fine.
	godotenv.Load()

	if *validate {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration valid\n")
		fmt.Printf("  Storage driver: %s\n", cfg.Storage.Driver)
		fmt.Printf("  Expiry policy: %s\n", cfg.Quota.ExpiryPolicy)
		fmt.Printf("  Plan overrides: %d\n", len(cfg.Plans))
		os.Exit(0)
	}

	if err := run(*configPath, *hotReload); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, hotReload bool) error {
	hasConfigFile := false
	if _, err := os.Stat(configPath); err == nil {
		hasConfigFile = true
	}

	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := bootstrap.SetupLogger(cfg.Logging)
	if !hasConfigFile {
		logger.Info().Msg("no config file found, running from environment variables")
	}

	app, err := bootstrap.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	// Hot reload only works with a config file.
	if hasConfigFile && hotReload {
		holder, err := config.NewHolder(configPath, logger)
		if err != nil {
			return fmt.Errorf("config holder: %w", err)
		}
		holder.OnChange(app.ApplyConfig)
		if err := holder.WatchFile(); err != nil {
			logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		holder.WatchSignals()
		defer holder.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}
