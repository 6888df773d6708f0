// Command refresh runs one batch refresh of the catalog and exits. It is meant
// for a scheduler (cron, k8s CronJob).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/winemarket/backend/config"
	"github.com/winemarket/backend/internal/app"
	"github.com/winemarket/backend/internal/logging"
)

func main() {
	limit := flag.Int("limit", -1, "max wines to refresh (0 = all, default refresh.batch_size)")
	wineID := flag.String("wine", "", "refresh a single wine instead of the catalog")
	sourceID := flag.String("source", "", "with -wine, restrict the refresh to one source")
	seed := flag.String("seed", "", "YAML seed file with sources (overrides storage.seed_file)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *seed != "" {
		cfg.Storage.SeedFile = *seed
	}
	if *limit < 0 {
		*limit = cfg.Refresh.BatchSize
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise application", zap.Error(err))
	}
	defer func() { _ = application.Close() }()

	var result any
	if *wineID != "" {
		result = application.Refresh.RefreshWine(ctx, *wineID, *sourceID)
	} else {
		result = application.Refresh.RefreshAll(ctx, *limit)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("write result", zap.Error(err))
	}
}
