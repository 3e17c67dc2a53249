// Package metrics defines the Prometheus collectors for the reminder job
// and the HTTP API. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	ReminderAttempts  *prometheus.CounterVec
	ReminderSendTime  prometheus.Histogram
	SchedulerRuns     *prometheus.CounterVec
	SchedulerDuration prometheus.Histogram
	UploadsRecorded   *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitRejections prometheus.Counter
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in
// tests so collectors do not collide across test cases.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		ReminderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_reminder_attempts_total",
			Help: "Reminder evaluations by outcome",
		}, []string{"outcome"}),
		ReminderSendTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cadence_reminder_send_duration_seconds",
			Help:    "Time spent handing a reminder to the email provider",
			Buckets: prometheus.DefBuckets,
		}),
		SchedulerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_scheduler_runs_total",
			Help: "Scheduler invocations by result",
		}, []string{"result"}),
		SchedulerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cadence_scheduler_run_duration_seconds",
			Help:    "Wall time of one scheduler pass",
			Buckets: prometheus.DefBuckets,
		}),
		UploadsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_uploads_recorded_total",
			Help: "Uploads recorded, split by on-time",
		}, []string{"on_time"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests received",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		RateLimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_rate_limit_rejections_total",
			Help: "Total number of HTTP requests rejected due to rate limiting",
		}),
	}

	reg.MustRegister(
		m.ReminderAttempts,
		m.ReminderSendTime,
		m.SchedulerRuns,
		m.SchedulerDuration,
		m.UploadsRecorded,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitRejections,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.ReminderAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSend(d time.Duration) {
	if m == nil {
		return
	}
	m.ReminderSendTime.Observe(d.Seconds())
}

// ObserveRun records one scheduler pass. result is "ok", "disabled" or "error".
func (m *Metrics) ObserveRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.SchedulerRuns.WithLabelValues(result).Inc()
	if result != "disabled" {
		m.SchedulerDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveUpload(onTime bool) {
	if m == nil {
		return
	}
	label := "false"
	if onTime {
		label = "true"
	}
	m.UploadsRecorded.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitRejections.Inc()
}
