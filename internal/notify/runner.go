package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/cadence/internal/metrics"
	"github.com/dukerupert/cadence/internal/model"
)

const DefaultConcurrency = 8

type ChallengeLister interface {
	ListActive(ctx context.Context) ([]model.Challenge, error)
}

type UploadLister interface {
	ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]model.Upload, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Runner evaluates every active challenge once per invocation. It can be
// driven by an external trigger through RunOnce, or by its own ticker
// through Start and Stop.
type Runner struct {
	challenges  ChallengeLister
	uploads     UploadLister
	users       UserLookup
	scheduler   *Scheduler
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu     sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(challenges ChallengeLister, uploads UploadLister, users UserLookup, scheduler *Scheduler, logger *slog.Logger, concurrency int, m *metrics.Metrics) *Runner {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Runner{
		challenges:  challenges,
		uploads:     uploads,
		users:       users,
		scheduler:   scheduler,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger,
	}
}

// RunOnce evaluates all active challenges at now. Per-challenge problems
// show up as failed attempts in the report. Only a failure to list the
// active challenges is returned as an error. When enabled is false nothing
// is read or sent.
func (r *Runner) RunOnce(ctx context.Context, now time.Time, enabled bool) (model.Report, error) {
	report := model.Report{StartedAt: now, Attempts: []model.NotificationAttempt{}}
	if !enabled {
		report.Disabled = true
		r.metrics.ObserveRun("disabled", 0)
		return report, nil
	}

	start := time.Now()
	challenges, err := r.challenges.ListActive(ctx)
	if err != nil {
		r.metrics.ObserveRun("error", time.Since(start))
		return report, fmt.Errorf("%w: list active challenges: %v", model.ErrInfrastructure, err)
	}

	attempts := make([]model.NotificationAttempt, len(challenges))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, c := range challenges {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					attempts[i] = r.loadFailed(c, now, fmt.Errorf("%w: evaluate panicked: %v", model.ErrInfrastructure, p))
				}
			}()
			attempts[i] = r.evaluate(ctx, c, now)
			return nil
		})
	}
	g.Wait()

	for _, a := range attempts {
		report.Add(a)
	}
	report.Duration = time.Since(start)
	r.metrics.ObserveRun("ok", report.Duration)

	r.logger.Info("scheduler run",
		"attempted", report.Attempted,
		"sent", report.Sent,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, nil
}

func (r *Runner) evaluate(ctx context.Context, c model.Challenge, now time.Time) model.NotificationAttempt {
	uploads, err := r.uploads.ListByChallenge(ctx, c.ID)
	if err != nil {
		return r.loadFailed(c, now, fmt.Errorf("%w: load uploads: %v", model.ErrInfrastructure, err))
	}

	var recipient string
	user, err := r.users.GetByID(ctx, c.OwnerID)
	if err != nil {
		return r.loadFailed(c, now, fmt.Errorf("%w: load owner: %v", model.ErrInfrastructure, err))
	}
	if user != nil {
		recipient = user.Email
	}

	return r.scheduler.EvaluateAndSend(ctx, Candidate{
		Challenge: c,
		Uploads:   uploads,
		Recipient: recipient,
	}, now)
}

func (r *Runner) loadFailed(c model.Challenge, now time.Time, err error) model.NotificationAttempt {
	r.logger.Warn("scheduler candidate", "challenge_id", c.ID, "error", err)
	r.metrics.ObserveAttempt(string(model.OutcomeFailed))
	return failed(model.NotificationAttempt{
		ChallengeID: c.ID,
		OwnerID:     c.OwnerID,
		At:          now,
	}, err)
}

// Start runs RunOnce every interval until Stop is called or ctx ends.
// enabled is consulted before each run.
func (r *Runner) Start(ctx context.Context, interval time.Duration, enabled func() bool) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx, time.Now().UTC(), enabled()); err != nil {
					r.logger.Error("scheduler run", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (r *Runner) Stop() {
	r.mu.RLock()
	cancel := r.cancel
	done := r.done
	r.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
