// Package jobmetrics instruments the background worker.
package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for job runs.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	// OutcomeSkipped marks runs that gave up without retry, such as a
	// malformed payload.
	OutcomeSkipped = "skipped"
)

// Metrics holds the worker collectors. A nil *Metrics is a no-op.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	purged   *prometheus.CounterVec
	mail     *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the default
// registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbacadmin_job_runs_total",
			Help: "Worker task runs by task type and outcome.",
		}, []string{"task", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rbacadmin_job_duration_seconds",
			Help:    "Worker task duration in seconds.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"task"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbacadmin_verification_tokens_purged_total",
			Help: "Expired verification tokens removed by the purge job, by purpose.",
		}, []string{"purpose"}),
		mail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbacadmin_mail_delivered_total",
			Help: "Transactional mail handed to the sender, by kind.",
		}, []string{"kind"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.purged, m.mail)
	return m
}

// Run times one task execution.
type Run struct {
	metrics *Metrics
	task    string
	start   time.Time
}

// Track starts timing a run of task.
func (m *Metrics) Track(task string) *Run {
	return &Run{metrics: m, task: task, start: time.Now()}
}

// End records the outcome and returns err unchanged.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	r.metrics.runs.WithLabelValues(r.task, outcome(err)).Inc()
	r.metrics.duration.WithLabelValues(r.task).Observe(time.Since(r.start).Seconds())
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, asynq.SkipRetry):
		return OutcomeSkipped
	default:
		return OutcomeFailure
	}
}

// AddPurged records how many expired verification tokens a sweep removed.
func (m *Metrics) AddPurged(purpose string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.purged.WithLabelValues(purpose).Add(float64(count))
}

// MailDelivered counts one message accepted by the sender.
func (m *Metrics) MailDelivered(kind string) {
	if m == nil {
		return
	}
	m.mail.WithLabelValues(kind).Inc()
}
