package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "receipt_stt"

// Run outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeTranscodeError  = "transcode_error"
	OutcomeTranscribeError = "transcribe_error"
	OutcomeCanceled        = "canceled"
)

// Metrics holds the pipeline collectors. A Metrics value satisfies
// transcode.Observer so the same instance can count strategy attempts.
type Metrics struct {
	transcodeAttempts *prometheus.CounterVec
	formatRetries     *prometheus.CounterVec
	runs              *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transcodeAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transcode_attempts_total",
				Help:      "Total number of transcode strategy attempts",
			},
			[]string{"strategy", "outcome"}, // outcome: success, failure, skipped
		),
		formatRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "format_retries_total",
				Help:      "Total number of canonicalization retries under an alternate format",
			},
			[]string{"format", "outcome"}, // outcome: success, failure
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Total number of pipeline runs",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_duration_seconds",
				Help:      "Histogram of total pipeline run duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.transcodeAttempts, m.formatRetries, m.runs, m.runDuration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ObserveAttempt counts one transcode strategy attempt.
func (m *Metrics) ObserveAttempt(strategy, outcome string) {
	if m == nil {
		return
	}
	m.transcodeAttempts.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) observeRetry(format, outcome string) {
	if m == nil {
		return
	}
	m.formatRetries.WithLabelValues(format, outcome).Inc()
}

func (m *Metrics) observeRun(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(took.Seconds())
}
