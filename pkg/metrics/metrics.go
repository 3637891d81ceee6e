// Package metrics records provisioning outcomes and step durations.
// Provisioning runs are short-lived processes, so metrics are pushed to a
// Prometheus Pushgateway on completion instead of being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/sandboxkit/sandboxctl/internal/logger"
)

// Recorder owns the provisioning metrics for one run.
type Recorder struct {
	registry *prometheus.Registry

	provisionTotal *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with its own registry, keeping push
// payloads free of Go runtime collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		provisionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sandboxctl",
			Name:      "provision_total",
			Help:      "Provisioning attempts by outcome.",
		}, []string{"status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sandboxctl",
			Name:      "provision_step_duration_seconds",
			Help:      "Duration of provisioning steps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"step"}),
	}
	r.registry.MustRegister(r.provisionTotal, r.stepDuration)
	return r
}

// ObserveOutcome counts a provisioning attempt. Status is one of success,
// warning, failure.
func (r *Recorder) ObserveOutcome(status string) {
	r.provisionTotal.WithLabelValues(status).Inc()
}

// ObserveStep records the duration of one orchestrator step.
func (r *Recorder) ObserveStep(step string, d time.Duration) {
	r.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// Timer returns a function that records the elapsed time for step when
// called. Usage: defer r.Timer("seed")().
func (r *Recorder) Timer(step string) func() {
	start := time.Now()
	return func() {
		r.ObserveStep(step, time.Since(start))
	}
}

// Push sends the collected metrics to a Pushgateway, grouped by tenant.
// A failed push is reported to the caller; provisioning outcomes do not
// depend on it.
func (r *Recorder) Push(gatewayURL, job, tenantName string) error {
	if gatewayURL == "" {
		return nil
	}

	err := push.New(gatewayURL, job).
		Gatherer(r.registry).
		Grouping("tenant", tenantName).
		Push()
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}

	logger.Debug("metrics pushed", "gateway", gatewayURL, logger.KeyTenant, tenantName)
	return nil
}
