package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/recipeflow/recipeflow/recipe"
)

// AgentRunner is the external collaborator that performs run_agent
// steps. The engine only awaits its success/output contract; what the
// agent actually does is out of scope here.
type AgentRunner interface {
	RunAgent(ctx context.Context, step *recipe.Step, execContext map[string]any) (map[string]any, error)
}

// Notifier is the external collaborator that delivers notify steps.
// Dispatch is fire-and-forget: a returned error means the dispatch
// itself failed and surfaces to the step's on-error policy; there is no
// silent retry inside the step.
type Notifier interface {
	Notify(ctx context.Context, step *recipe.Step, execContext map[string]any) error
}

// NewAgentExecutor returns the executor for run_agent steps.
func NewAgentExecutor(runner AgentRunner) Executor {
	return ExecutorFunc(func(ctx context.Context, step *recipe.Step, execContext map[string]any) (Result, error) {
		if runner == nil {
			return Result{}, fmt.Errorf("run_agent step %q: no agent runner configured", step.Name)
		}
		output, err := runner.RunAgent(ctx, step, execContext)
		if err != nil {
			return Result{}, fmt.Errorf("run_agent step %q: %w", step.Name, err)
		}
		return Result{Output: output}, nil
	})
}

// NewNotifyExecutor returns the executor for notify steps.
func NewNotifyExecutor(notifier Notifier) Executor {
	return ExecutorFunc(func(ctx context.Context, step *recipe.Step, execContext map[string]any) (Result, error) {
		if notifier == nil {
			return Result{}, fmt.Errorf("notify step %q: no notifier configured", step.Name)
		}
		if err := notifier.Notify(ctx, step, execContext); err != nil {
			return Result{}, fmt.Errorf("notify step %q: %w", step.Name, err)
		}
		return Result{}, nil
	})
}

// NewWaitExecutor returns the executor for wait steps. The configured
// duration_ms is clamped to ceiling so a recipe cannot park an engine
// goroutine indefinitely; the effective wait is min(configured,
// ceiling). The sleep is cancellable via context.
func NewWaitExecutor(ceiling time.Duration) Executor {
	return ExecutorFunc(func(ctx context.Context, step *recipe.Step, _ map[string]any) (Result, error) {
		d, err := durationFromConfig(step.Config, "duration_ms")
		if err != nil {
			return Result{}, fmt.Errorf("wait step %q: %w", step.Name, err)
		}
		if d > ceiling {
			d = ceiling
		}

		if d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}

		return Result{Output: map[string]any{"waited_ms": d.Milliseconds()}}, nil
	})
}

// durationFromConfig reads a millisecond duration from a step config
// map, tolerating the numeric types JSON decoding produces.
func durationFromConfig(config map[string]any, key string) (time.Duration, error) {
	raw, ok := config[key]
	if !ok {
		return 0, nil
	}
	switch v := raw.(type) {
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v) * time.Millisecond, nil
	default:
		return 0, fmt.Errorf("config %q must be a number, got %T", key, raw)
	}
}

// NewBranchExecutor returns the executor for branch steps. The step
// config declares a condition over the execution context:
//
//	key:   context key to inspect (required)
//	op:    "eq" (default), "exists", or "gt"
//	value: comparison operand for eq/gt
//
// The result label is "true" or "false"; the engine selects the
// successor from the step's branch targets by that label.
func NewBranchExecutor() Executor {
	return ExecutorFunc(func(_ context.Context, step *recipe.Step, execContext map[string]any) (Result, error) {
		key, _ := step.Config["key"].(string)
		if key == "" {
			return Result{}, fmt.Errorf("branch step %q: config key is required", step.Name)
		}
		op, _ := step.Config["op"].(string)
		if op == "" {
			op = "eq"
		}

		actual, present := execContext[key]

		var outcome bool
		switch op {
		case "exists":
			outcome = present
		case "eq":
			outcome = present && equalValues(actual, step.Config["value"])
		case "gt":
			a, aok := toFloat(actual)
			b, bok := toFloat(step.Config["value"])
			outcome = present && aok && bok && a > b
		default:
			return Result{}, fmt.Errorf("branch step %q: unknown op %q", step.Name, op)
		}

		return Result{Label: fmt.Sprintf("%t", outcome)}, nil
	})
}

// equalValues compares context and config values, treating all numeric
// types as float64 the way JSON decoding does.
func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// NewApprovalExecutor returns the executor for human_approval steps.
// By default it asks the engine to park the execution in
// awaiting_approval until Approve or Reject is called. A step with
// config auto_approve=true succeeds immediately instead, for recipes
// that want the gate only in some environments.
func NewApprovalExecutor() Executor {
	return ExecutorFunc(func(_ context.Context, step *recipe.Step, _ map[string]any) (Result, error) {
		if auto, _ := step.Config["auto_approve"].(bool); auto {
			return Result{Output: map[string]any{"approved": true, "auto": true}}, nil
		}
		return Result{Await: true}, nil
	})
}
