package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/cadence/internal/app"
	"github.com/dukerupert/cadence/internal/config"
	"github.com/dukerupert/cadence/internal/logging"
	"github.com/dukerupert/cadence/internal/metrics"
	"github.com/dukerupert/cadence/internal/server"
	"github.com/dukerupert/cadence/internal/service"
	ws "github.com/dukerupert/cadence/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	m := metrics.New(prometheus.NewRegistry())
	hub := ws.NewHub(logger.With("component", "websocket"))
	sender := app.NewSender(cfg, logger)

	svc := service.NewChallengeService(stores.Challenges, stores.Uploads, stores.Users, hub, m, logger.With("component", "service"))
	runner := app.NewRunner(cfg, stores, sender, hub, m, logger)

	schedulerEnabled := func() bool { return cfg.SchedulerEnabled }
	srv := server.New(svc, runner, hub, m, stores.Health, server.Options{
		JWTSecret:        []byte(cfg.JWTSecret),
		TriggerToken:     cfg.TriggerToken,
		CORSOrigins:      cfg.CORSOrigins,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
		SchedulerEnabled: schedulerEnabled,
	}, logger)

	if cfg.SchedulerEnabled {
		runner.Start(ctx, cfg.SchedulerTick, schedulerEnabled)
		defer runner.Stop()
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup(10 * time.Minute)
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("cadence listening", "port", cfg.Port, "db_driver", cfg.DBDriver, "email_provider", cfg.EmailProvider, "scheduler", cfg.SchedulerEnabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
