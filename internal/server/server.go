package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/dukerupert/cadence/internal/auth"
	"github.com/dukerupert/cadence/internal/handler"
	"github.com/dukerupert/cadence/internal/metrics"
	"github.com/dukerupert/cadence/internal/middleware"
	"github.com/dukerupert/cadence/internal/service"
	ws "github.com/dukerupert/cadence/internal/websocket"
)

// Options carries the HTTP-facing settings.
type Options struct {
	JWTSecret        []byte
	TriggerToken     string
	CORSOrigins      []string
	RateLimitRPS     float64
	RateLimitBurst   int
	SchedulerEnabled func() bool
}

type Server struct {
	hub         *ws.Hub
	challengeH  *handler.ChallengeHandler
	meH         *handler.MeHandler
	schedulerH  *handler.SchedulerHandler
	rateLimiter *middleware.RateLimiter
	metrics     *metrics.Metrics
	health      func(context.Context) error
	opts        Options
	logger      *slog.Logger
}

// New wires the HTTP surface. health is called by GET /health and should
// ping the backing database.
func New(svc *service.ChallengeService, runner handler.OnceRunner, hub *ws.Hub, m *metrics.Metrics, health func(context.Context) error, opts Options, logger *slog.Logger) *Server {
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 5
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 30
	}
	return &Server{
		hub:         hub,
		challengeH:  handler.NewChallengeHandler(svc, logger.With("component", "challenge")),
		meH:         handler.NewMeHandler(svc, logger.With("component", "me")),
		schedulerH:  handler.NewSchedulerHandler(runner, opts.SchedulerEnabled, logger.With("component", "scheduler_trigger")),
		rateLimiter: middleware.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		metrics:     m,
		health:      health,
		opts:        opts,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(s.metrics))

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	requireAuth := middleware.RequireAuth(s.opts.JWTSecret)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(requireAuth)
	api.Use(middleware.RateLimit(s.rateLimiter, rateLimitKey, s.metrics))
	s.registerAPIRoutes(api)

	internal := r.PathPrefix("/internal").Subrouter()
	internal.Use(middleware.RequireTriggerToken(s.opts.TriggerToken))
	internal.HandleFunc("/scheduler/run", s.schedulerH.Run).Methods(http.MethodPost)

	r.Handle("/ws", requireAuth(ws.HandleWebSocket(s.hub, s.opts.CORSOrigins, s.logger.With("component", "websocket")))).Methods(http.MethodGet)

	var h http.Handler = middleware.RequestLogger(s.logger.With("component", "http"))(r)
	if len(s.opts.CORSOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.opts.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		)(h)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(true),
	)(h)
}

func (s *Server) registerAPIRoutes(api *mux.Router) {
	api.HandleFunc("/me", s.meH.Get).Methods(http.MethodGet)
	api.HandleFunc("/me", s.meH.Update).Methods(http.MethodPut)

	api.HandleFunc("/challenges", s.challengeH.Create).Methods(http.MethodPost)
	api.HandleFunc("/challenges", s.challengeH.List).Methods(http.MethodGet)
	api.HandleFunc("/challenges/{id}", s.challengeH.Get).Methods(http.MethodGet)
	api.HandleFunc("/challenges/{id}/today", s.challengeH.Today).Methods(http.MethodGet)
	api.HandleFunc("/challenges/{id}/stats", s.challengeH.Stats).Methods(http.MethodGet)
	api.HandleFunc("/challenges/{id}/deadline", s.challengeH.RecomputeDeadline).Methods(http.MethodPost)
	api.HandleFunc("/challenges/{id}/uploads", s.challengeH.RecordUpload).Methods(http.MethodPost)
	api.HandleFunc("/challenges/{id}/notifications", s.challengeH.UpdateNotifications).Methods(http.MethodPut)
	api.HandleFunc("/challenges/{id}/status", s.challengeH.UpdateStatus).Methods(http.MethodPut)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.logger.Error("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"unavailable"}`)
			return
		}
	}
	fmt.Fprint(w, `{"status":"ok"}`)
}

// rateLimitKey buckets authenticated callers by user and falls back to the
// client address.
func rateLimitKey(r *http.Request) string {
	if id := auth.UserID(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + middleware.RealIP(r)
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("panic recovered", "detail", fmt.Sprint(v...))
}
