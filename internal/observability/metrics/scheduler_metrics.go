package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/mentorhive/mentorhive/internal/fault"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	JobPayoutSweep        = "payout_sweep"
	JobBusinessHoursSweep = "business_hours_sweep"
	JobAutoCancel         = "auto_cancel"
	JobRefundRetry        = "refund_retry"
	JobColdMessagePayout  = "cold_message_payout"
)

// Config carries the constant labels applied to every scheduler metric.
type Config struct {
	ServiceName string
	Environment string
}

// SchedulerMetrics captures settlement scheduler health signals.
type SchedulerMetrics struct {
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobTimeouts     *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	jobSkipped      *prometheus.CounterVec
	batchProcessed  *prometheus.CounterVec
	payoutOutcomes  *prometheus.CounterVec
	transferCalls   *prometheus.CounterVec
	runLoopLag      prometheus.Histogram
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton using config labels on first use.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "mentorhive"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &SchedulerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mentorhive_scheduler_job_runs_total",
			Help:        "Scheduler job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "mentorhive_scheduler_job_duration_seconds",
			Help:        "Scheduler job duration by name.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mentorhive_scheduler_job_timeouts_total",
			Help:        "Scheduler jobs cut short by their deadline.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mentorhive_scheduler_job_errors_total",
			Help:        "Scheduler job errors by name and fault class.",
			ConstLabels: constLabels,
		}, []string{"job", "class"}),
		jobSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mentorhive_scheduler_job_skipped_total",
			Help:        "Scheduler job passes skipped because a previous pass holds the lock.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		batchProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mentorhive_scheduler_batch_processed_total",
			Help:        "Entities processed per job.",
			ConstLabels: constLabels,
		}, []string{"job", "entity"}),
		payoutOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mentorhive_payout_outcomes_total",
			Help:        "Terminal payout outcomes by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		transferCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mentorhive_transfer_calls_total",
			Help:        "External transfer gateway calls by operation and result.",
			ConstLabels: constLabels,
		}, []string{"operation", "result"}),
		runLoopLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "mentorhive_scheduler_run_loop_lag_seconds",
			Help:        "How far behind schedule the run loop started.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}

	for _, collector := range []prometheus.Collector{
		m.jobRuns, m.jobDuration, m.jobTimeouts, m.jobErrors, m.jobSkipped,
		m.batchProcessed, m.payoutOutcomes, m.transferCalls, m.runLoopLag,
	} {
		if err := registerer.Register(collector); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				_ = are
				continue
			}
		}
	}

	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, string(fault.ClassOf(err))).Inc()
}

func (m *SchedulerMetrics) IncJobSkipped(job string) {
	if m == nil {
		return
	}
	m.jobSkipped.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) AddBatchProcessed(job, entity string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job, entity).Add(float64(count))
}

func (m *SchedulerMetrics) IncPayoutOutcome(status string) {
	if m == nil {
		return
	}
	m.payoutOutcomes.WithLabelValues(status).Inc()
}

func (m *SchedulerMetrics) IncTransferCall(operation, result string) {
	if m == nil {
		return
	}
	m.transferCalls.WithLabelValues(operation, result).Inc()
}

func (m *SchedulerMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m == nil || lag <= 0 {
		return
	}
	m.runLoopLag.Observe(lag.Seconds())
}
