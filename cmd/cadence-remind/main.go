// Command cadence-remind runs a single reminder pass and prints the report
// as JSON. It is meant for cron or a platform scheduler; the exit status is
// 1 when the pass could not run at all.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/cadence/internal/app"
	"github.com/dukerupert/cadence/internal/config"
	"github.com/dukerupert/cadence/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.DBDriver, "error", err)
		return 1
	}
	defer stores.Close()

	runner := app.NewRunner(cfg, stores, app.NewSender(cfg, logger), nil, nil, logger)
	report, err := runner.RunOnce(ctx, time.Now().UTC(), cfg.SchedulerEnabled)
	if err != nil {
		logger.Error("reminder run failed", "error", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("write report", "error", err)
		return 1
	}
	return 0
}
