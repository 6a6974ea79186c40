// Package hook defines the extension system for RecipeFlow.
// Extensions are notified of lifecycle events (execution started, step
// completed, schedule fired, etc.) and can react to them — logging,
// metrics, audit trails, webhooks.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
	"github.com/recipeflow/recipeflow/schedule"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Execution lifecycle hooks
// ──────────────────────────────────────────────────

// ExecutionStarted is called when an execution begins running.
type ExecutionStarted interface {
	OnExecutionStarted(ctx context.Context, e *execution.Execution) error
}

// StepCompleted is called after a step finishes successfully.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, e *execution.Execution, step *recipe.Step, elapsed time.Duration) error
}

// StepFailed is called when a step fails terminally (its on-error
// policy is exhausted or set to fail).
type StepFailed interface {
	OnStepFailed(ctx context.Context, e *execution.Execution, step *recipe.Step, err error) error
}

// StepRetrying is called when a step fails but will be retried.
type StepRetrying interface {
	OnStepRetrying(ctx context.Context, e *execution.Execution, step *recipe.Step, attempt int, delay time.Duration) error
}

// ExecutionCompleted is called after an execution finishes successfully.
type ExecutionCompleted interface {
	OnExecutionCompleted(ctx context.Context, e *execution.Execution, elapsed time.Duration) error
}

// ExecutionFailed is called when an execution fails terminally.
type ExecutionFailed interface {
	OnExecutionFailed(ctx context.Context, e *execution.Execution, err error) error
}

// ExecutionPaused is called when an execution is paused, either by an
// operator or by a human_approval step parking it.
type ExecutionPaused interface {
	OnExecutionPaused(ctx context.Context, e *execution.Execution) error
}

// ExecutionResumed is called when a paused or awaiting execution
// resumes running.
type ExecutionResumed interface {
	OnExecutionResumed(ctx context.Context, e *execution.Execution) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// ScheduleFired is called when a schedule fires and starts an execution.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, s *schedule.Schedule, executionID id.ExecutionID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
