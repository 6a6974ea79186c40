package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/hook"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
	"github.com/recipeflow/recipeflow/schedule"
)

// Compile-time interface checks.
var (
	_ hook.Extension          = (*Extension)(nil)
	_ hook.ExecutionStarted   = (*Extension)(nil)
	_ hook.ExecutionCompleted = (*Extension)(nil)
	_ hook.ExecutionFailed    = (*Extension)(nil)
	_ hook.ExecutionPaused    = (*Extension)(nil)
	_ hook.ExecutionResumed   = (*Extension)(nil)
	_ hook.StepCompleted      = (*Extension)(nil)
	_ hook.StepFailed         = (*Extension)(nil)
	_ hook.StepRetrying       = (*Extension)(nil)
	_ hook.ScheduleFired      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so the audit_hook package carries no backend
// dependency — callers inject the concrete trail at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges recipeflow lifecycle events to an audit trail
// backend. Each lifecycle hook emits a structured audit event through
// the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Execution lifecycle hooks ───────────────────────

// OnExecutionStarted implements hook.ExecutionStarted.
func (e *Extension) OnExecutionStarted(ctx context.Context, exec *execution.Execution) error {
	return e.record(ctx, ActionExecutionStarted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, exec.ID.String(), CategoryExecution, nil,
		"recipe_id", exec.RecipeID.String(),
	)
}

// OnExecutionCompleted implements hook.ExecutionCompleted.
func (e *Extension) OnExecutionCompleted(ctx context.Context, exec *execution.Execution, elapsed time.Duration) error {
	return e.record(ctx, ActionExecutionCompleted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, exec.ID.String(), CategoryExecution, nil,
		"recipe_id", exec.RecipeID.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnExecutionFailed implements hook.ExecutionFailed.
func (e *Extension) OnExecutionFailed(ctx context.Context, exec *execution.Execution, execErr error) error {
	return e.record(ctx, ActionExecutionFailed, SeverityCritical, OutcomeFailure,
		ResourceExecution, exec.ID.String(), CategoryExecution, execErr,
		"recipe_id", exec.RecipeID.String(),
	)
}

// OnExecutionPaused implements hook.ExecutionPaused.
func (e *Extension) OnExecutionPaused(ctx context.Context, exec *execution.Execution) error {
	return e.record(ctx, ActionExecutionPaused, SeverityInfo, OutcomeSuccess,
		ResourceExecution, exec.ID.String(), CategoryExecution, nil,
		"recipe_id", exec.RecipeID.String(),
		"status", string(exec.Status),
	)
}

// OnExecutionResumed implements hook.ExecutionResumed.
func (e *Extension) OnExecutionResumed(ctx context.Context, exec *execution.Execution) error {
	return e.record(ctx, ActionExecutionResumed, SeverityInfo, OutcomeSuccess,
		ResourceExecution, exec.ID.String(), CategoryExecution, nil,
		"recipe_id", exec.RecipeID.String(),
	)
}

// ── Step lifecycle hooks ────────────────────────────

// OnStepCompleted implements hook.StepCompleted.
func (e *Extension) OnStepCompleted(ctx context.Context, exec *execution.Execution, step *recipe.Step, elapsed time.Duration) error {
	return e.record(ctx, ActionStepCompleted, SeverityInfo, OutcomeSuccess,
		ResourceStep, step.ID.String(), CategoryStep, nil,
		"execution_id", exec.ID.String(),
		"step_name", step.Name,
		"step_type", string(step.Type),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnStepFailed implements hook.StepFailed.
func (e *Extension) OnStepFailed(ctx context.Context, exec *execution.Execution, step *recipe.Step, stepErr error) error {
	return e.record(ctx, ActionStepFailed, SeverityWarning, OutcomeFailure,
		ResourceStep, step.ID.String(), CategoryStep, stepErr,
		"execution_id", exec.ID.String(),
		"step_name", step.Name,
		"step_type", string(step.Type),
	)
}

// OnStepRetrying implements hook.StepRetrying.
func (e *Extension) OnStepRetrying(ctx context.Context, exec *execution.Execution, step *recipe.Step, attempt int, delay time.Duration) error {
	return e.record(ctx, ActionStepRetrying, SeverityWarning, OutcomeFailure,
		ResourceStep, step.ID.String(), CategoryStep, nil,
		"execution_id", exec.ID.String(),
		"step_name", step.Name,
		"attempt", attempt,
		"delay_ms", delay.Milliseconds(),
	)
}

// ── Schedule lifecycle hooks ────────────────────────

// OnScheduleFired implements hook.ScheduleFired.
func (e *Extension) OnScheduleFired(ctx context.Context, s *schedule.Schedule, executionID id.ExecutionID) error {
	return e.record(ctx, ActionScheduleFired, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, s.ID.String(), CategorySchedule, nil,
		"schedule_name", s.Name,
		"recipe_id", s.RecipeID.String(),
		"execution_id", executionID.String(),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
