package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
	"github.com/recipeflow/recipeflow/schedule"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type executionStartedEntry struct {
	name string
	hook ExecutionStarted
}

type stepCompletedEntry struct {
	name string
	hook StepCompleted
}

type stepFailedEntry struct {
	name string
	hook StepFailed
}

type stepRetryingEntry struct {
	name string
	hook StepRetrying
}

type executionCompletedEntry struct {
	name string
	hook ExecutionCompleted
}

type executionFailedEntry struct {
	name string
	hook ExecutionFailed
}

type executionPausedEntry struct {
	name string
	hook ExecutionPaused
}

type executionResumedEntry struct {
	name string
	hook ExecutionResumed
}

type scheduleFiredEntry struct {
	name string
	hook ScheduleFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	executionStarted   []executionStartedEntry
	stepCompleted      []stepCompletedEntry
	stepFailed         []stepFailedEntry
	stepRetrying       []stepRetryingEntry
	executionCompleted []executionCompletedEntry
	executionFailed    []executionFailedEntry
	executionPaused    []executionPausedEntry
	executionResumed   []executionResumedEntry
	scheduleFired      []scheduleFiredEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(ExecutionStarted); ok {
		r.executionStarted = append(r.executionStarted, executionStartedEntry{name, h})
	}
	if h, ok := e.(StepCompleted); ok {
		r.stepCompleted = append(r.stepCompleted, stepCompletedEntry{name, h})
	}
	if h, ok := e.(StepFailed); ok {
		r.stepFailed = append(r.stepFailed, stepFailedEntry{name, h})
	}
	if h, ok := e.(StepRetrying); ok {
		r.stepRetrying = append(r.stepRetrying, stepRetryingEntry{name, h})
	}
	if h, ok := e.(ExecutionCompleted); ok {
		r.executionCompleted = append(r.executionCompleted, executionCompletedEntry{name, h})
	}
	if h, ok := e.(ExecutionFailed); ok {
		r.executionFailed = append(r.executionFailed, executionFailedEntry{name, h})
	}
	if h, ok := e.(ExecutionPaused); ok {
		r.executionPaused = append(r.executionPaused, executionPausedEntry{name, h})
	}
	if h, ok := e.(ExecutionResumed); ok {
		r.executionResumed = append(r.executionResumed, executionResumedEntry{name, h})
	}
	if h, ok := e.(ScheduleFired); ok {
		r.scheduleFired = append(r.scheduleFired, scheduleFiredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Execution event emitters
// ──────────────────────────────────────────────────

// EmitExecutionStarted notifies all extensions that implement ExecutionStarted.
func (r *Registry) EmitExecutionStarted(ctx context.Context, e *execution.Execution) {
	for _, entry := range r.executionStarted {
		if err := entry.hook.OnExecutionStarted(ctx, e); err != nil {
			r.logHookError("OnExecutionStarted", entry.name, err)
		}
	}
}

// EmitStepCompleted notifies all extensions that implement StepCompleted.
func (r *Registry) EmitStepCompleted(ctx context.Context, e *execution.Execution, step *recipe.Step, elapsed time.Duration) {
	for _, entry := range r.stepCompleted {
		if err := entry.hook.OnStepCompleted(ctx, e, step, elapsed); err != nil {
			r.logHookError("OnStepCompleted", entry.name, err)
		}
	}
}

// EmitStepFailed notifies all extensions that implement StepFailed.
func (r *Registry) EmitStepFailed(ctx context.Context, e *execution.Execution, step *recipe.Step, stepErr error) {
	for _, entry := range r.stepFailed {
		if err := entry.hook.OnStepFailed(ctx, e, step, stepErr); err != nil {
			r.logHookError("OnStepFailed", entry.name, err)
		}
	}
}

// EmitStepRetrying notifies all extensions that implement StepRetrying.
func (r *Registry) EmitStepRetrying(ctx context.Context, e *execution.Execution, step *recipe.Step, attempt int, delay time.Duration) {
	for _, entry := range r.stepRetrying {
		if err := entry.hook.OnStepRetrying(ctx, e, step, attempt, delay); err != nil {
			r.logHookError("OnStepRetrying", entry.name, err)
		}
	}
}

// EmitExecutionCompleted notifies all extensions that implement ExecutionCompleted.
func (r *Registry) EmitExecutionCompleted(ctx context.Context, e *execution.Execution, elapsed time.Duration) {
	for _, entry := range r.executionCompleted {
		if err := entry.hook.OnExecutionCompleted(ctx, e, elapsed); err != nil {
			r.logHookError("OnExecutionCompleted", entry.name, err)
		}
	}
}

// EmitExecutionFailed notifies all extensions that implement ExecutionFailed.
func (r *Registry) EmitExecutionFailed(ctx context.Context, e *execution.Execution, execErr error) {
	for _, entry := range r.executionFailed {
		if err := entry.hook.OnExecutionFailed(ctx, e, execErr); err != nil {
			r.logHookError("OnExecutionFailed", entry.name, err)
		}
	}
}

// EmitExecutionPaused notifies all extensions that implement ExecutionPaused.
func (r *Registry) EmitExecutionPaused(ctx context.Context, e *execution.Execution) {
	for _, entry := range r.executionPaused {
		if err := entry.hook.OnExecutionPaused(ctx, e); err != nil {
			r.logHookError("OnExecutionPaused", entry.name, err)
		}
	}
}

// EmitExecutionResumed notifies all extensions that implement ExecutionResumed.
func (r *Registry) EmitExecutionResumed(ctx context.Context, e *execution.Execution) {
	for _, entry := range r.executionResumed {
		if err := entry.hook.OnExecutionResumed(ctx, e); err != nil {
			r.logHookError("OnExecutionResumed", entry.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitScheduleFired notifies all extensions that implement ScheduleFired.
func (r *Registry) EmitScheduleFired(ctx context.Context, s *schedule.Schedule, executionID id.ExecutionID) {
	for _, entry := range r.scheduleFired {
		if err := entry.hook.OnScheduleFired(ctx, s, executionID); err != nil {
			r.logHookError("OnScheduleFired", entry.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, entry := range r.shutdown {
		if err := entry.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", entry.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the engine.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
