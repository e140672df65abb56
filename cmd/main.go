package main

import (
	"errors"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/landreg/housesync/internal/app"
	"github.com/landreg/housesync/internal/config"
	"github.com/landreg/housesync/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Initialize logger first (for configuration loading)
	initialLogger, err := logger.NewLogger("production", "info")
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer func() {
		_ = initialLogger.Sync()
	}()

	// Load configuration
	cfg, err := config.Load(initialLogger)
	if err != nil {
		if errors.Is(err, config.ErrMissing) {
			initialLogger.Error("missing required configuration", zap.Error(err))
			os.Exit(1)
		}
		initialLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Create application logger with proper configuration
	appLogger, err := logger.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		initialLogger.Fatal("failed to create application logger", zap.Error(err))
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	// Log build info
	appLogger.Info("Build info",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	application, err := app.NewApp(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := application.Run(); err != nil {
		appLogger.Fatal("application exited with error", zap.Error(err))
	}
}
