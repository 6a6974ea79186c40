package hook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/hook"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
	"github.com/recipeflow/recipeflow/schedule"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnExecutionStarted(_ context.Context, _ *execution.Execution) error {
	e.calls = append(e.calls, "OnExecutionStarted")
	return nil
}

func (e *allHooksExt) OnStepCompleted(_ context.Context, _ *execution.Execution, _ *recipe.Step, _ time.Duration) error {
	e.calls = append(e.calls, "OnStepCompleted")
	return nil
}

func (e *allHooksExt) OnStepFailed(_ context.Context, _ *execution.Execution, _ *recipe.Step, _ error) error {
	e.calls = append(e.calls, "OnStepFailed")
	return nil
}

func (e *allHooksExt) OnStepRetrying(_ context.Context, _ *execution.Execution, _ *recipe.Step, _ int, _ time.Duration) error {
	e.calls = append(e.calls, "OnStepRetrying")
	return nil
}

func (e *allHooksExt) OnExecutionCompleted(_ context.Context, _ *execution.Execution, _ time.Duration) error {
	e.calls = append(e.calls, "OnExecutionCompleted")
	return nil
}

func (e *allHooksExt) OnExecutionFailed(_ context.Context, _ *execution.Execution, _ error) error {
	e.calls = append(e.calls, "OnExecutionFailed")
	return nil
}

func (e *allHooksExt) OnExecutionPaused(_ context.Context, _ *execution.Execution) error {
	e.calls = append(e.calls, "OnExecutionPaused")
	return nil
}

func (e *allHooksExt) OnExecutionResumed(_ context.Context, _ *execution.Execution) error {
	e.calls = append(e.calls, "OnExecutionResumed")
	return nil
}

func (e *allHooksExt) OnScheduleFired(_ context.Context, _ *schedule.Schedule, _ id.ExecutionID) error {
	e.calls = append(e.calls, "OnScheduleFired")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// stepOnlyExt only implements step-related hooks.
type stepOnlyExt struct {
	calls []string
}

func (e *stepOnlyExt) Name() string { return "step-only" }

func (e *stepOnlyExt) OnStepCompleted(_ context.Context, _ *execution.Execution, _ *recipe.Step, _ time.Duration) error {
	e.calls = append(e.calls, "OnStepCompleted")
	return nil
}

func (e *stepOnlyExt) OnStepFailed(_ context.Context, _ *execution.Execution, _ *recipe.Step, _ error) error {
	e.calls = append(e.calls, "OnStepFailed")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnExecutionStarted(_ context.Context, _ *execution.Execution) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func newTestExecution() *execution.Execution {
	return &execution.Execution{
		ID:       id.NewExecutionID(),
		RecipeID: id.NewRecipeID(),
		Status:   execution.StatusRunning,
	}
}

func newTestStep() *recipe.Step {
	return &recipe.Step{ID: id.NewStepID(), Type: recipe.StepRunAgent, Name: "test-step"}
}

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksExt{}
	so := &stepOnlyExt{}
	r.Register(all)
	r.Register(so)

	ctx := context.Background()
	e := newTestExecution()
	step := newTestStep()

	// Both implement OnStepCompleted → both called.
	r.EmitStepCompleted(ctx, e, step, time.Second)
	if len(all.calls) != 1 || all.calls[0] != "OnStepCompleted" {
		t.Fatalf("all: expected [OnStepCompleted], got %v", all.calls)
	}
	if len(so.calls) != 1 || so.calls[0] != "OnStepCompleted" {
		t.Fatalf("so: expected [OnStepCompleted], got %v", so.calls)
	}

	// Only all implements OnExecutionStarted → so not called.
	r.EmitExecutionStarted(ctx, e)
	if len(all.calls) != 2 || all.calls[1] != "OnExecutionStarted" {
		t.Fatalf("all: expected OnExecutionStarted as 2nd, got %v", all.calls)
	}
	if len(so.calls) != 1 {
		t.Fatalf("so: should still have 1 call, got %v", so.calls)
	}
}

func TestRegistry_AllExecutionHooksFire(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	e := newTestExecution()
	step := newTestStep()

	r.EmitExecutionStarted(ctx, e)
	r.EmitStepCompleted(ctx, e, step, time.Second)
	r.EmitStepFailed(ctx, e, step, errors.New("step fail"))
	r.EmitStepRetrying(ctx, e, step, 1, time.Second)
	r.EmitExecutionCompleted(ctx, e, 2*time.Second)
	r.EmitExecutionFailed(ctx, e, errors.New("exec fail"))
	r.EmitExecutionPaused(ctx, e)
	r.EmitExecutionResumed(ctx, e)

	expected := []string{
		"OnExecutionStarted", "OnStepCompleted", "OnStepFailed",
		"OnStepRetrying", "OnExecutionCompleted", "OnExecutionFailed",
		"OnExecutionPaused", "OnExecutionResumed",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_ScheduleAndShutdownHooksFire(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	s := &schedule.Schedule{ID: id.NewScheduleID(), Name: "daily-report"}
	r.EmitScheduleFired(ctx, s, id.NewExecutionID())
	r.EmitShutdown(ctx)

	if len(all.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d: %v", len(all.calls), all.calls)
	}
	if all.calls[0] != "OnScheduleFired" {
		t.Errorf("call[0] = %q, want OnScheduleFired", all.calls[0])
	}
	if all.calls[1] != "OnShutdown" {
		t.Errorf("call[1] = %q, want OnShutdown", all.calls[1])
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	failing := &failingExt{}
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(failing)
	r.Register(all)

	ctx := context.Background()

	// No panic, no error propagation. allHooksExt should still fire.
	r.EmitExecutionStarted(ctx, newTestExecution())

	if len(all.calls) != 1 || all.calls[0] != "OnExecutionStarted" {
		t.Fatalf("all: expected [OnExecutionStarted] despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := hook.NewRegistry(slog.Default())
	ctx := context.Background()
	e := newTestExecution()
	step := newTestStep()

	// None of these should panic or error.
	r.EmitExecutionStarted(ctx, e)
	r.EmitStepCompleted(ctx, e, step, time.Second)
	r.EmitStepFailed(ctx, e, step, errors.New("x"))
	r.EmitStepRetrying(ctx, e, step, 1, time.Second)
	r.EmitExecutionCompleted(ctx, e, time.Second)
	r.EmitExecutionFailed(ctx, e, errors.New("x"))
	r.EmitExecutionPaused(ctx, e)
	r.EmitExecutionResumed(ctx, e)
	r.EmitScheduleFired(ctx, &schedule.Schedule{}, id.NewExecutionID())
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	ext1 := &allHooksExt{}
	ext2 := &allHooksExt{}
	r.Register(ext1)
	r.Register(ext2)

	ctx := context.Background()
	r.EmitExecutionStarted(ctx, newTestExecution())

	// Both should be called.
	if len(ext1.calls) != 1 {
		t.Errorf("ext1: expected 1 call, got %d", len(ext1.calls))
	}
	if len(ext2.calls) != 1 {
		t.Errorf("ext2: expected 1 call, got %d", len(ext2.calls))
	}
}
