package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/fiberlab/otdr-persist/internal/models"
)

const (
	// OutcomePersisted labels sessions committed to storage.
	OutcomePersisted = "persisted"
	// OutcomeSkipped labels sessions without a primary sample identifier.
	OutcomeSkipped = "skipped"
	// OutcomeError labels sessions that failed before or during commit.
	OutcomeError = "error"
)

var (
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otdr_persist",
			Name:      "sessions_total",
			Help:      "Total number of persist invocations, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	persistDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "otdr_persist",
			Name:      "duration_seconds",
			Help:      "Persist invocation latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	resultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otdr_persist",
			Name:      "results_total",
			Help:      "Total number of results committed, partitioned by kind.",
		},
		[]string{"kind"},
	)
)

// Register attaches otdr-persist collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		sessionsTotal,
		persistDurationSeconds,
		resultsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSession records an invocation duration and outcome label.
func ObserveSession(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeSkipped && label != OutcomeError {
		label = OutcomePersisted
	}
	sessionsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	persistDurationSeconds.Observe(duration.Seconds())
}

// ObserveResults adds committed result counts per kind.
func ObserveResults(counts map[models.ResultKind]int) {
	for kind, n := range counts {
		resultsTotal.WithLabelValues(string(kind)).Add(float64(n))
	}
}

// Push sends everything gathered by g to a Prometheus Pushgateway. An empty
// url disables pushing.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = "otdr_persist"
	}
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
