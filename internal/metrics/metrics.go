// Package metrics records step and operation outcomes for node_exporter's
// textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Bibi40k/podnet-primitives/internal/orchestrator"
	"github.com/Bibi40k/podnet-primitives/internal/plan"
	"github.com/Bibi40k/podnet-primitives/internal/report"
)

// Recorder implements orchestrator.Observer on a private registry.
type Recorder struct {
	registry    *prometheus.Registry
	steps       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	lastRun     *prometheus.GaugeVec
}

var _ orchestrator.Observer = (*Recorder)(nil)

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "podnet",
				Name:      "step_total",
				Help:      "Remote steps by primitive, operation, node role and outcome",
			},
			[]string{"primitive", "operation", "role", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "podnet",
				Name:      "operation_duration_seconds",
				Help:      "Duration of primitive operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"primitive", "operation"},
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "podnet",
				Name:      "last_operation_success",
				Help:      "1 if the last operation succeeded, 0 otherwise",
			},
			[]string{"primitive", "operation"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "podnet",
				Name:      "last_operation_timestamp_seconds",
				Help:      "Unix time the last operation finished",
			},
			[]string{"primitive", "operation"},
		),
	}
	r.registry.MustRegister(r.steps, r.duration, r.lastSuccess, r.lastRun)
	return r
}

func (r *Recorder) StepFinished(p plan.Plan, role report.Role, _ string, oc orchestrator.Outcome) {
	r.steps.WithLabelValues(p.Primitive, string(p.Operation), string(role), string(oc.Kind)).Inc()
}

func (r *Recorder) OperationFinished(p plan.Plan, success bool, elapsed time.Duration) {
	r.duration.WithLabelValues(p.Primitive, string(p.Operation)).Observe(elapsed.Seconds())
	v := 0.0
	if success {
		v = 1
	}
	r.lastSuccess.WithLabelValues(p.Primitive, string(p.Operation)).Set(v)
	r.lastRun.WithLabelValues(p.Primitive, string(p.Operation)).SetToCurrentTime()
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile writes the registry atomically for the textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
