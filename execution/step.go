package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/recipeflow/recipeflow/recipe"
)

// Result is the outcome of executing one step.
type Result struct {
	// Output is the step's success output, merged into the execution
	// context and recorded as an output artifact.
	Output map[string]any

	// Label is a branch step's outcome label. The engine selects the
	// successor from the step's branch targets by this label.
	Label string

	// Await asks the engine to park the execution in awaiting_approval
	// until an external approve or reject signal arrives.
	Await bool
}

// Executor runs one step by type. Implementations receive the step
// definition and a copy of the execution context; a non-nil error means
// the step failed and the step's on-error policy applies.
type Executor interface {
	Execute(ctx context.Context, step *recipe.Step, execContext map[string]any) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, step *recipe.Step, execContext map[string]any) (Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, step *recipe.Step, execContext map[string]any) (Result, error) {
	return f(ctx, step, execContext)
}

// ExecutorRegistry maps step types to executors. Safe for concurrent
// use; registration normally happens once at wiring time.
type ExecutorRegistry struct {
	mu        sync.RWMutex
	executors map[recipe.StepType]Executor
}

// NewExecutorRegistry creates an empty registry.
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{executors: make(map[recipe.StepType]Executor)}
}

// Register binds an executor to a step type, replacing any previous
// binding.
func (r *ExecutorRegistry) Register(t recipe.StepType, ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[t] = ex
}

// Get returns the executor for a step type.
func (r *ExecutorRegistry) Get(t recipe.StepType) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.executors[t]
	return ex, ok
}

// Execute dispatches a step to its registered executor.
func (r *ExecutorRegistry) Execute(ctx context.Context, step *recipe.Step, execContext map[string]any) (Result, error) {
	ex, ok := r.Get(step.Type)
	if !ok {
		return Result{}, fmt.Errorf("no executor registered for step type %q", step.Type)
	}
	return ex.Execute(ctx, step, execContext)
}
