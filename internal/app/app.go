// Package app assembles storage, email delivery and the reminder engine from
// a Config. Both the server and the one-shot reminder binary start here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/cadence/internal/config"
	"github.com/dukerupert/cadence/internal/database"
	"github.com/dukerupert/cadence/internal/email"
	"github.com/dukerupert/cadence/internal/metrics"
	"github.com/dukerupert/cadence/internal/notify"
	"github.com/dukerupert/cadence/internal/pgstore"
	"github.com/dukerupert/cadence/internal/service"
	"github.com/dukerupert/cadence/internal/store"
)

// ChallengeStore is satisfied by both the SQLite and Postgres stores.
type ChallengeStore interface {
	service.ChallengeStore
	notify.Claimer
	notify.ChallengeLister
}

type Stores struct {
	Challenges ChallengeStore
	Uploads    service.UploadStore
	Users      service.UserStore

	// Health pings the database.
	Health func(context.Context) error
	Close  func()
}

// OpenStores connects to the configured database and runs migrations.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.DBDriver {
	case "postgres":
		pool, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Challenges: pgstore.NewChallengeStore(pool),
			Uploads:    pgstore.NewUploadStore(pool),
			Users:      pgstore.NewUserStore(pool),
			Health:     pool.Ping,
			Close:      pool.Close,
		}, nil
	case "sqlite", "":
		db, err := database.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Challenges: store.NewChallengeStore(db),
			Uploads:    store.NewUploadStore(db),
			Users:      store.NewUserStore(db),
			Health:     db.PingContext,
			Close:      func() { db.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown db_driver %q", cfg.DBDriver)
}

// NewSender returns the configured email transport.
func NewSender(cfg *config.Config, logger *slog.Logger) email.Sender {
	switch cfg.EmailProvider {
	case "postmark":
		return email.NewPostmarkClient(cfg.PostmarkToken, cfg.FromEmail,
			email.WithHTTPClient(&http.Client{Timeout: cfg.SendTimeout}))
	case "sendgrid":
		return email.NewSendGridClient(cfg.SendGridAPIKey, cfg.FromName, cfg.FromEmail)
	}
	return email.NewLogSender(logger.With("component", "email"))
}

// NewRunner builds the reminder runner. events may be nil when no live
// connections are served.
func NewRunner(cfg *config.Config, stores *Stores, sender email.Sender, events notify.Broadcaster, m *metrics.Metrics, logger *slog.Logger) *notify.Runner {
	opts := []notify.Option{
		notify.WithSendTimeout(cfg.SendTimeout),
		notify.WithBaseURL(cfg.BaseURL),
		notify.WithMetrics(m),
	}
	if events != nil {
		opts = append(opts, notify.WithBroadcaster(events))
	}
	sched := notify.NewScheduler(stores.Challenges, sender, logger.With("component", "notify"), opts...)
	return notify.NewRunner(stores.Challenges, stores.Uploads, stores.Users, sched,
		logger.With("component", "runner"), cfg.SchedulerConcurrency, m)
}
