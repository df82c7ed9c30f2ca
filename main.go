package main

import (
	"embed"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"parley/internal/config"
	"parley/internal/logging"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("sentry init failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	app := NewApp(cfg, logger)
	err = wails.Run(&options.App{
		Title:     "Parley",
		Width:     520,
		Height:    680,
		MinWidth:  400,
		MinHeight: 520,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("run window: %w", err)
	}
	return nil
}
