package provisioning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/prohmpiriya/safeguard-membership/pkg/telemetry"
)

type workflowMetrics struct {
	runs         *telemetry.Counter
	stepFailures *telemetry.Counter
	pollAttempts *telemetry.Histogram
	duration     *telemetry.Histogram
}

// newWorkflowMetrics registers the workflow instruments; a failed registration leaves a nil no-op instrument
func newWorkflowMetrics() *workflowMetrics {
	m := &workflowMetrics{}
	m.runs, _ = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "provisioning_runs_total",
		Description: "Provisioning runs by trigger and final state",
		Unit:        "1",
	})
	m.stepFailures, _ = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "provisioning_step_failures_total",
		Description: "Best-effort provisioning steps that failed",
		Unit:        "1",
	})
	m.pollAttempts, _ = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "provisioning_poll_attempts",
		Description: "Profile polls needed before membership became active",
		Unit:        "1",
	}, []float64{1, 2, 3, 5, 8, 10, 15})
	m.duration, _ = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "provisioning_duration_seconds",
		Description: "Wall time of a provisioning run",
		Unit:        "s",
	})
	return m
}

func (m *workflowMetrics) stepFailed(ctx context.Context, step string) {
	m.stepFailures.Inc(ctx, telemetry.StepAttr(step))
}

func (m *workflowMetrics) runFinished(ctx context.Context, run *Run, elapsed time.Duration) {
	attrs := []attribute.KeyValue{
		telemetry.TriggerAttr(string(run.Trigger)),
		telemetry.StepOutcomeAttr(string(run.State)),
	}
	m.runs.Inc(ctx, attrs...)
	m.duration.Record(ctx, elapsed.Seconds(), attrs...)
	if run.PollAttempts > 0 {
		m.pollAttempts.Record(ctx, float64(run.PollAttempts), telemetry.TriggerAttr(string(run.Trigger)))
	}
}
