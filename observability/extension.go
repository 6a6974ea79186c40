package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/hook"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
	"github.com/recipeflow/recipeflow/schedule"
)

// meterName is the instrumentation scope name for the extension.
const meterName = "github.com/recipeflow/recipeflow/observability"

// Compile-time interface checks.
var (
	_ hook.Extension          = (*MetricsExtension)(nil)
	_ hook.ExecutionStarted   = (*MetricsExtension)(nil)
	_ hook.ExecutionCompleted = (*MetricsExtension)(nil)
	_ hook.ExecutionFailed    = (*MetricsExtension)(nil)
	_ hook.StepCompleted      = (*MetricsExtension)(nil)
	_ hook.StepFailed         = (*MetricsExtension)(nil)
	_ hook.StepRetrying       = (*MetricsExtension)(nil)
	_ hook.ScheduleFired      = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters. Register it
// with engine.WithHook to automatically track execution starts,
// completions, failures, step outcomes, retries, and schedule firings.
type MetricsExtension struct {
	executionStarted   metric.Int64Counter
	executionCompleted metric.Int64Counter
	executionFailed    metric.Int64Counter
	stepCompleted      metric.Int64Counter
	stepFailed         metric.Int64Counter
	stepRetried        metric.Int64Counter
	scheduleFired      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. Without a configured provider the instruments are
// noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Instrument creation errors fall back to noop
// instruments per the OTel API contract.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	m.executionStarted, _ = meter.Int64Counter("recipeflow.execution.started",
		metric.WithDescription("Total number of executions started"),
		metric.WithUnit("{execution}"))
	m.executionCompleted, _ = meter.Int64Counter("recipeflow.execution.completed",
		metric.WithDescription("Total number of executions completed"),
		metric.WithUnit("{execution}"))
	m.executionFailed, _ = meter.Int64Counter("recipeflow.execution.failed",
		metric.WithDescription("Total number of executions failed"),
		metric.WithUnit("{execution}"))
	m.stepCompleted, _ = meter.Int64Counter("recipeflow.step.completed",
		metric.WithDescription("Total number of steps completed"),
		metric.WithUnit("{step}"))
	m.stepFailed, _ = meter.Int64Counter("recipeflow.step.failed",
		metric.WithDescription("Total number of steps failed terminally"),
		metric.WithUnit("{step}"))
	m.stepRetried, _ = meter.Int64Counter("recipeflow.step.retried",
		metric.WithDescription("Total number of step retry attempts"),
		metric.WithUnit("{retry}"))
	m.scheduleFired, _ = meter.Int64Counter("recipeflow.schedule.fired",
		metric.WithDescription("Total number of schedule firings"),
		metric.WithUnit("{firing}"))
	return m
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Execution lifecycle hooks ───────────────────────

// OnExecutionStarted implements hook.ExecutionStarted.
func (m *MetricsExtension) OnExecutionStarted(ctx context.Context, _ *execution.Execution) error {
	m.executionStarted.Add(ctx, 1)
	return nil
}

// OnExecutionCompleted implements hook.ExecutionCompleted.
func (m *MetricsExtension) OnExecutionCompleted(ctx context.Context, _ *execution.Execution, _ time.Duration) error {
	m.executionCompleted.Add(ctx, 1)
	return nil
}

// OnExecutionFailed implements hook.ExecutionFailed.
func (m *MetricsExtension) OnExecutionFailed(ctx context.Context, _ *execution.Execution, _ error) error {
	m.executionFailed.Add(ctx, 1)
	return nil
}

// ── Step lifecycle hooks ────────────────────────────

// OnStepCompleted implements hook.StepCompleted.
func (m *MetricsExtension) OnStepCompleted(ctx context.Context, _ *execution.Execution, _ *recipe.Step, _ time.Duration) error {
	m.stepCompleted.Add(ctx, 1)
	return nil
}

// OnStepFailed implements hook.StepFailed.
func (m *MetricsExtension) OnStepFailed(ctx context.Context, _ *execution.Execution, _ *recipe.Step, _ error) error {
	m.stepFailed.Add(ctx, 1)
	return nil
}

// OnStepRetrying implements hook.StepRetrying.
func (m *MetricsExtension) OnStepRetrying(ctx context.Context, _ *execution.Execution, _ *recipe.Step, _ int, _ time.Duration) error {
	m.stepRetried.Add(ctx, 1)
	return nil
}

// ── Schedule lifecycle hooks ────────────────────────

// OnScheduleFired implements hook.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(ctx context.Context, _ *schedule.Schedule, _ id.ExecutionID) error {
	m.scheduleFired.Add(ctx, 1)
	return nil
}
