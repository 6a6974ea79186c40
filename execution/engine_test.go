package execution_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/access"
	"github.com/recipeflow/recipeflow/backoff"
	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
	"github.com/recipeflow/recipeflow/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, opts ...execution.EngineOption) (*execution.Engine, *memory.Store, *execution.ExecutorRegistry) {
	t.Helper()
	s := memory.New()
	reg := execution.NewExecutorRegistry()
	all := append([]execution.EngineOption{execution.WithLogger(discardLogger())}, opts...)
	eng := execution.NewEngine(s, s, reg, all...)
	return eng, s, reg
}

// chainSteps links steps sequentially via NextStepID and assigns IDs.
func chainSteps(steps ...recipe.Step) []recipe.Step {
	for i := range steps {
		if steps[i].ID.IsNil() {
			steps[i].ID = id.NewStepID()
		}
	}
	for i := 0; i < len(steps)-1; i++ {
		next := steps[i+1].ID
		steps[i].NextStepID = &next
	}
	return steps
}

func seedRecipe(t *testing.T, s *memory.Store, steps []recipe.Step) *recipe.Recipe {
	t.Helper()
	r := &recipe.Recipe{
		Entity: recipeflow.NewEntity(),
		ID:     id.NewRecipeID(),
		Name:   "nightly-report",
		Steps:  steps,
	}
	if err := s.CreateRecipe(context.Background(), r); err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}
	return r
}

// seedRunningExecution persists an execution parked in the running state
// at the recipe's first step, as if the run loop had not started yet.
func seedRunningExecution(t *testing.T, s *memory.Store, r *recipe.Recipe) *execution.Execution {
	t.Helper()
	exec := &execution.Execution{
		Entity:    recipeflow.NewEntity(),
		ID:        id.NewExecutionID(),
		RecipeID:  r.ID,
		Status:    execution.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if first := r.FirstStep(); first != nil {
		sid := first.ID
		exec.CurrentStepID = &sid
	}
	if err := s.CreateExecution(context.Background(), exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	return exec
}

// recordingExecutor tracks step names in execution order.
type recordingExecutor struct {
	mu    sync.Mutex
	names []string
	fn    func(step *recipe.Step, execContext map[string]any) (execution.Result, error)
}

func (r *recordingExecutor) Execute(_ context.Context, step *recipe.Step, execContext map[string]any) (execution.Result, error) {
	r.mu.Lock()
	r.names = append(r.names, step.Name)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(step, execContext)
	}
	return execution.Result{}, nil
}

func (r *recordingExecutor) executed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// spyEmitter records which lifecycle events fired.
type spyEmitter struct {
	mu     sync.Mutex
	events []string
}

func (s *spyEmitter) record(name string) {
	s.mu.Lock()
	s.events = append(s.events, name)
	s.mu.Unlock()
}

func (s *spyEmitter) seen(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == name {
			n++
		}
	}
	return n
}

func (s *spyEmitter) EmitExecutionStarted(context.Context, *execution.Execution) {
	s.record("started")
}
func (s *spyEmitter) EmitStepCompleted(_ context.Context, _ *execution.Execution, _ *recipe.Step, _ time.Duration) {
	s.record("step_completed")
}
func (s *spyEmitter) EmitStepFailed(_ context.Context, _ *execution.Execution, _ *recipe.Step, _ error) {
	s.record("step_failed")
}
func (s *spyEmitter) EmitStepRetrying(_ context.Context, _ *execution.Execution, _ *recipe.Step, _ int, _ time.Duration) {
	s.record("step_retrying")
}
func (s *spyEmitter) EmitExecutionCompleted(_ context.Context, _ *execution.Execution, _ time.Duration) {
	s.record("completed")
}
func (s *spyEmitter) EmitExecutionFailed(_ context.Context, _ *execution.Execution, _ error) {
	s.record("failed")
}
func (s *spyEmitter) EmitExecutionPaused(context.Context, *execution.Execution) {
	s.record("paused")
}
func (s *spyEmitter) EmitExecutionResumed(context.Context, *execution.Execution) {
	s.record("resumed")
}

// ──────────────────────────────────────────────────
// Start and linear flow
// ──────────────────────────────────────────────────

func TestEngine_StartRunsToCompletion(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	rec := &recordingExecutor{
		fn: func(step *recipe.Step, _ map[string]any) (execution.Result, error) {
			return execution.Result{Output: map[string]any{step.Name: "done"}}, nil
		},
	}
	reg.Register(recipe.StepRunAgent, rec)

	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepRunAgent, Name: "fetch-data"},
		recipe.Step{Type: recipe.StepRunAgent, Name: "write-summary"},
	))

	exec, err := eng.Start(context.Background(), "alice", r.ID, map[string]any{"seed": 1})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if exec.Status != execution.StatusCompleted {
		t.Fatalf("status = %q, want %q", exec.Status, execution.StatusCompleted)
	}
	if exec.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if exec.CurrentStepID != nil {
		t.Errorf("CurrentStepID = %v, want nil", exec.CurrentStepID)
	}

	got := rec.executed()
	want := []string{"fetch-data", "write-summary"}
	if len(got) != len(want) {
		t.Fatalf("executed steps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Outputs merged into the context alongside the initial keys.
	if exec.Context["seed"] != 1 {
		t.Errorf("context[seed] = %v, want 1", exec.Context["seed"])
	}
	if exec.Context["fetch-data"] != "done" || exec.Context["write-summary"] != "done" {
		t.Errorf("context missing step outputs: %v", exec.Context)
	}

	// One output artifact per step.
	artifacts, err := s.ListArtifacts(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(artifacts))
	}
	for _, a := range artifacts {
		if a.Type != execution.ArtifactOutput {
			t.Errorf("artifact type = %q, want %q", a.Type, execution.ArtifactOutput)
		}
	}
}

func TestEngine_StartUnknownRecipe(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), "alice", id.NewRecipeID(), nil)
	if !errors.Is(err, recipeflow.ErrRecipeNotFound) {
		t.Errorf("err = %v, want ErrRecipeNotFound", err)
	}
}

func TestEngine_EmptyRecipeCompletesImmediately(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	r := seedRecipe(t, s, nil)

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if exec.Status != execution.StatusCompleted {
		t.Errorf("status = %q, want %q", exec.Status, execution.StatusCompleted)
	}
}

func TestEngine_UnregisteredStepTypeFails(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepRunAgent, Name: "orphan"},
	))

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if exec.Status != execution.StatusFailed {
		t.Fatalf("status = %q, want %q", exec.Status, execution.StatusFailed)
	}
	if !strings.Contains(exec.Error, "no executor registered") {
		t.Errorf("error = %q, want executor registration failure", exec.Error)
	}
}

// ──────────────────────────────────────────────────
// Branching
// ──────────────────────────────────────────────────

func TestEngine_BranchRouting(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	rec := &recordingExecutor{}
	reg.Register(recipe.StepRunAgent, rec)
	reg.Register(recipe.StepBranch, execution.NewBranchExecutor())

	highStep := recipe.Step{ID: id.NewStepID(), Type: recipe.StepRunAgent, Name: "escalate"}
	lowStep := recipe.Step{ID: id.NewStepID(), Type: recipe.StepRunAgent, Name: "archive"}
	branch := recipe.Step{
		ID:   id.NewStepID(),
		Type: recipe.StepBranch,
		Name: "check-severity",
		Config: map[string]any{
			"key":   "severity",
			"op":    "gt",
			"value": 5,
		},
		BranchTargets: map[string]id.StepID{
			"true":  highStep.ID,
			"false": lowStep.ID,
		},
	}
	r := seedRecipe(t, s, []recipe.Step{branch, highStep, lowStep})

	exec, err := eng.Start(context.Background(), "alice", r.ID, map[string]any{"severity": 8})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if exec.Status != execution.StatusCompleted {
		t.Fatalf("status = %q, want %q", exec.Status, execution.StatusCompleted)
	}

	got := rec.executed()
	if len(got) != 1 || got[0] != "escalate" {
		t.Errorf("executed = %v, want [escalate]", got)
	}
}

func TestEngine_BranchMissingLabelFails(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	reg.Register(recipe.StepBranch, execution.NewBranchExecutor())

	target := recipe.Step{ID: id.NewStepID(), Type: recipe.StepBranch, Name: "unreached", Config: map[string]any{"key": "x"}}
	branch := recipe.Step{
		ID:     id.NewStepID(),
		Type:   recipe.StepBranch,
		Name:   "half-wired",
		Config: map[string]any{"key": "flag", "op": "exists"},
		BranchTargets: map[string]id.StepID{
			"true": target.ID,
		},
	}
	r := seedRecipe(t, s, []recipe.Step{branch, target})

	// flag absent: the branch resolves to "false", which has no target.
	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if exec.Status != execution.StatusFailed {
		t.Fatalf("status = %q, want %q", exec.Status, execution.StatusFailed)
	}
	if !strings.Contains(exec.Error, `no target for label "false"`) {
		t.Errorf("error = %q, want missing branch target", exec.Error)
	}
}

// ──────────────────────────────────────────────────
// Error policies
// ──────────────────────────────────────────────────

func TestEngine_SkipPolicyAdvances(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	rec := &recordingExecutor{
		fn: func(step *recipe.Step, _ map[string]any) (execution.Result, error) {
			if step.Name == "flaky" {
				return execution.Result{}, errors.New("upstream unavailable")
			}
			return execution.Result{Output: map[string]any{"ok": true}}, nil
		},
	}
	reg.Register(recipe.StepRunAgent, rec)

	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepRunAgent, Name: "flaky", OnError: recipe.OnErrorSkip},
		recipe.Step{Type: recipe.StepRunAgent, Name: "final"},
	))

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if exec.Status != execution.StatusCompleted {
		t.Fatalf("status = %q, want %q", exec.Status, execution.StatusCompleted)
	}
	got := rec.executed()
	if len(got) != 2 {
		t.Fatalf("executed = %v, want both steps", got)
	}

	// The skipped step contributes no output artifact.
	artifacts, err := s.ListArtifacts(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(artifacts) != 1 {
		t.Errorf("artifacts = %d, want 1", len(artifacts))
	}
}

func TestEngine_SkipPolicyOnBranchStep(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	rec := &recordingExecutor{
		fn: func(step *recipe.Step, _ map[string]any) (execution.Result, error) {
			if step.Name == "gate" {
				return execution.Result{}, errors.New("condition service down")
			}
			return execution.Result{}, nil
		},
	}
	reg.Register(recipe.StepBranch, rec)
	reg.Register(recipe.StepRunAgent, rec)

	fallback := recipe.Step{ID: id.NewStepID(), Type: recipe.StepRunAgent, Name: "fallback"}
	arm := recipe.Step{ID: id.NewStepID(), Type: recipe.StepRunAgent, Name: "arm"}
	fallbackID := fallback.ID
	branch := recipe.Step{
		ID:     id.NewStepID(),
		Type:   recipe.StepBranch,
		Name:   "gate",
		Config: map[string]any{"key": "flag", "op": "exists"},
		BranchTargets: map[string]id.StepID{
			"true":  arm.ID,
			"false": arm.ID,
		},
		NextStepID: &fallbackID,
		OnError:    recipe.OnErrorSkip,
	}
	r := seedRecipe(t, s, []recipe.Step{branch, arm, fallback})

	// A skipped branch has no label to route on; it advances along
	// NextStepID instead of failing on the missing-target lookup.
	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if exec.Status != execution.StatusCompleted {
		t.Fatalf("status = %q (error %q), want %q", exec.Status, exec.Error, execution.StatusCompleted)
	}
	got := rec.executed()
	want := []string{"gate", "fallback"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("executed = %v, want %v", got, want)
	}
}

func TestEngine_FailPolicyStops(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	rec := &recordingExecutor{
		fn: func(step *recipe.Step, _ map[string]any) (execution.Result, error) {
			if step.Name == "doomed" {
				return execution.Result{}, errors.New("boom")
			}
			return execution.Result{}, nil
		},
	}
	reg.Register(recipe.StepRunAgent, rec)

	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepRunAgent, Name: "doomed", OnError: recipe.OnErrorFail},
		recipe.Step{Type: recipe.StepRunAgent, Name: "unreached"},
	))

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if exec.Status != execution.StatusFailed {
		t.Fatalf("status = %q, want %q", exec.Status, execution.StatusFailed)
	}
	if exec.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if got := rec.executed(); len(got) != 1 {
		t.Errorf("executed = %v, want only the failing step", got)
	}
}

func TestEngine_RetryExhaustion(t *testing.T) {
	emitter := &spyEmitter{}
	eng, s, reg := newTestEngine(t,
		execution.WithRetryBackoff(backoff.NewConstant(0)),
		execution.WithMaxStepRetries(2),
		execution.WithEmitter(emitter),
	)

	var attempts int
	var mu sync.Mutex
	reg.Register(recipe.StepRunAgent, execution.ExecutorFunc(
		func(_ context.Context, _ *recipe.Step, _ map[string]any) (execution.Result, error) {
			mu.Lock()
			attempts++
			mu.Unlock()
			return execution.Result{}, errors.New("still broken")
		}))

	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepRunAgent, Name: "stubborn", OnError: recipe.OnErrorRetry},
	))

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if exec.Status != execution.StatusFailed {
		t.Fatalf("status = %q, want %q", exec.Status, execution.StatusFailed)
	}
	if !strings.Contains(exec.Error, "retries exhausted after 2 attempts") {
		t.Errorf("error = %q, want retry exhaustion", exec.Error)
	}

	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != 3 { // initial try + 2 retries
		t.Errorf("attempts = %d, want 3", got)
	}
	if n := emitter.seen("step_retrying"); n != 2 {
		t.Errorf("step_retrying events = %d, want 2", n)
	}
}

func TestEngine_RetrySucceedsAfterFailure(t *testing.T) {
	emitter := &spyEmitter{}
	eng, s, reg := newTestEngine(t,
		execution.WithRetryBackoff(backoff.NewConstant(0)),
		execution.WithEmitter(emitter),
	)

	var attempts int
	var mu sync.Mutex
	reg.Register(recipe.StepRunAgent, execution.ExecutorFunc(
		func(_ context.Context, _ *recipe.Step, _ map[string]any) (execution.Result, error) {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n == 1 {
				return execution.Result{}, errors.New("transient")
			}
			return execution.Result{Output: map[string]any{"recovered": true}}, nil
		}))

	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepRunAgent, Name: "eventually-fine", OnError: recipe.OnErrorRetry},
	))

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if exec.Status != execution.StatusCompleted {
		t.Fatalf("status = %q, want %q", exec.Status, execution.StatusCompleted)
	}
	if exec.Context["recovered"] != true {
		t.Errorf("context = %v, want recovered output", exec.Context)
	}
	if n := emitter.seen("step_retrying"); n != 1 {
		t.Errorf("step_retrying events = %d, want 1", n)
	}
}

// ──────────────────────────────────────────────────
// Approval gates
// ──────────────────────────────────────────────────

func TestEngine_ApprovalParksAndApproveContinues(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	rec := &recordingExecutor{}
	reg.Register(recipe.StepRunAgent, rec)
	reg.Register(recipe.StepHumanApproval, execution.NewApprovalExecutor())

	steps := chainSteps(
		recipe.Step{Type: recipe.StepHumanApproval, Name: "sign-off"},
		recipe.Step{Type: recipe.StepRunAgent, Name: "publish"},
	)
	r := seedRecipe(t, s, steps)

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if exec.Status != execution.StatusAwaitingApproval {
		t.Fatalf("status = %q, want %q", exec.Status, execution.StatusAwaitingApproval)
	}
	if exec.CurrentStepID == nil || exec.CurrentStepID.String() != steps[0].ID.String() {
		t.Fatalf("CurrentStepID = %v, want approval step", exec.CurrentStepID)
	}
	if got := rec.executed(); len(got) != 0 {
		t.Fatalf("executed = %v, want none before approval", got)
	}

	exec, err = eng.Approve(context.Background(), "bob", exec.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if exec.Status != execution.StatusCompleted {
		t.Fatalf("status after approve = %q, want %q", exec.Status, execution.StatusCompleted)
	}
	if got := rec.executed(); len(got) != 1 || got[0] != "publish" {
		t.Errorf("executed = %v, want [publish]", got)
	}

	// The decision is recorded in the artifact trail.
	artifacts, err := s.ListArtifacts(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	var decision *execution.Artifact
	for _, a := range artifacts {
		if a.Name == "approved" {
			decision = a
		}
	}
	if decision == nil {
		t.Fatal("expected an approval decision artifact")
	}
	if decision.Type != execution.ArtifactSummary {
		t.Errorf("decision type = %q, want %q", decision.Type, execution.ArtifactSummary)
	}
	if !strings.Contains(decision.Content, "bob") {
		t.Errorf("decision content = %q, want approver identity", decision.Content)
	}
}

func TestEngine_RejectFailsExecution(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	reg.Register(recipe.StepHumanApproval, execution.NewApprovalExecutor())

	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepHumanApproval, Name: "sign-off"},
	))

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	exec, err = eng.Reject(context.Background(), "bob", exec.ID, "budget not cleared")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if exec.Status != execution.StatusFailed {
		t.Fatalf("status = %q, want %q", exec.Status, execution.StatusFailed)
	}
	if exec.Error != "budget not cleared" {
		t.Errorf("error = %q, want rejection reason", exec.Error)
	}
	if exec.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
}

func TestEngine_RejectDefaultReason(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	reg.Register(recipe.StepHumanApproval, execution.NewApprovalExecutor())

	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepHumanApproval, Name: "sign-off"},
	))

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	exec, err = eng.Reject(context.Background(), "bob", exec.ID, "")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if exec.Error != "approval rejected" {
		t.Errorf("error = %q, want default rejection reason", exec.Error)
	}
}

func TestEngine_AutoApproveSkipsGate(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	reg.Register(recipe.StepHumanApproval, execution.NewApprovalExecutor())

	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepHumanApproval, Name: "sign-off", Config: map[string]any{"auto_approve": true}},
	))

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if exec.Status != execution.StatusCompleted {
		t.Errorf("status = %q, want %q", exec.Status, execution.StatusCompleted)
	}
}

func TestEngine_ApproveRequiresAwaitingState(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	r := seedRecipe(t, s, nil)

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = eng.Approve(context.Background(), "bob", exec.ID)
	if !errors.Is(err, recipeflow.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	var te *execution.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %T, want *TransitionError", err)
	}
	if te.Current != execution.StatusCompleted || te.Required != execution.StatusAwaitingApproval {
		t.Errorf("transition error = %v, want completed/awaiting_approval", te)
	}
}

// ──────────────────────────────────────────────────
// Pause, resume, cancel
// ──────────────────────────────────────────────────

func TestEngine_PauseAndResume(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	rec := &recordingExecutor{}
	reg.Register(recipe.StepRunAgent, rec)

	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepRunAgent, Name: "only-step"},
	))
	exec := seedRunningExecution(t, s, r)

	paused, err := eng.Pause(context.Background(), "alice", exec.ID)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.Status != execution.StatusPaused {
		t.Fatalf("status = %q, want %q", paused.Status, execution.StatusPaused)
	}
	if got := rec.executed(); len(got) != 0 {
		t.Fatalf("executed = %v, want none while paused", got)
	}

	resumed, err := eng.Resume(context.Background(), "alice", exec.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != execution.StatusCompleted {
		t.Fatalf("status = %q, want %q", resumed.Status, execution.StatusCompleted)
	}
	if got := rec.executed(); len(got) != 1 || got[0] != "only-step" {
		t.Errorf("executed = %v, want [only-step]", got)
	}
}

func TestEngine_PauseRequiresRunning(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	r := seedRecipe(t, s, nil)

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = eng.Pause(context.Background(), "alice", exec.ID)
	if !errors.Is(err, recipeflow.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestEngine_Cancel(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepRunAgent, Name: "never-runs"},
	))
	exec := seedRunningExecution(t, s, r)

	cancelled, err := eng.Cancel(context.Background(), "alice", exec.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != execution.StatusFailed {
		t.Fatalf("status = %q, want %q", cancelled.Status, execution.StatusFailed)
	}
	if cancelled.Error != "cancelled" {
		t.Errorf("error = %q, want cancelled", cancelled.Error)
	}
	if cancelled.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	// A second cancel conflicts with the terminal state.
	_, err = eng.Cancel(context.Background(), "alice", exec.ID)
	if !errors.Is(err, recipeflow.ErrInvalidTransition) {
		t.Errorf("second cancel err = %v, want ErrInvalidTransition", err)
	}
}

func TestEngine_CancelAwaitingApproval(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	reg.Register(recipe.StepHumanApproval, execution.NewApprovalExecutor())

	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepHumanApproval, Name: "sign-off"},
	))

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	cancelled, err := eng.Cancel(context.Background(), "alice", exec.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != execution.StatusFailed {
		t.Errorf("status = %q, want %q", cancelled.Status, execution.StatusFailed)
	}
}

// ──────────────────────────────────────────────────
// Reads and artifacts
// ──────────────────────────────────────────────────

func TestEngine_GetSnapshot(t *testing.T) {
	eng, s, reg := newTestEngine(t)
	reg.Register(recipe.StepRunAgent, execution.ExecutorFunc(
		func(_ context.Context, step *recipe.Step, _ map[string]any) (execution.Result, error) {
			return execution.Result{Output: map[string]any{"n": 1}}, nil
		}))

	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepRunAgent, Name: "produce"},
	))

	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap, err := eng.Get(context.Background(), "alice", exec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Execution.Status != execution.StatusCompleted {
		t.Errorf("snapshot status = %q, want completed", snap.Execution.Status)
	}
	if len(snap.Artifacts) != 1 {
		t.Errorf("snapshot artifacts = %d, want 1", len(snap.Artifacts))
	}

	_, err = eng.Get(context.Background(), "alice", id.NewExecutionID())
	if !errors.Is(err, recipeflow.ErrExecutionNotFound) {
		t.Errorf("missing execution err = %v, want ErrExecutionNotFound", err)
	}
}

func TestEngine_AddArtifact(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepRunAgent, Name: "agent"},
	))
	exec := seedRunningExecution(t, s, r)

	a, err := eng.AddArtifact(context.Background(), "alice", exec.ID, r.Steps[0].ID, execution.ArtifactLog, "agent.log", "line 1")
	if err != nil {
		t.Fatalf("AddArtifact: %v", err)
	}
	if a.ID.IsNil() {
		t.Error("expected a generated artifact ID")
	}

	_, err = eng.AddArtifact(context.Background(), "alice", exec.ID, r.Steps[0].ID, "tarball", "x", "y")
	if !errors.Is(err, recipeflow.ErrValidation) {
		t.Errorf("unknown type err = %v, want ErrValidation", err)
	}
}

// ──────────────────────────────────────────────────
// Authorization
// ──────────────────────────────────────────────────

func TestEngine_AccessDenialReadsAsNotFound(t *testing.T) {
	checker := access.NewStatic()
	eng, s, reg := newTestEngine(t, execution.WithAccessChecker(checker))
	reg.Register(recipe.StepRunAgent, &recordingExecutor{})

	r := seedRecipe(t, s, chainSteps(
		recipe.Step{Type: recipe.StepRunAgent, Name: "private"},
	))

	// No grant: the recipe is invisible.
	_, err := eng.Start(context.Background(), "mallory", r.ID, nil)
	if !errors.Is(err, recipeflow.ErrRecipeNotFound) {
		t.Fatalf("err = %v, want ErrRecipeNotFound", err)
	}

	checker.Grant(r.ID, "alice", access.RoleViewer)
	exec, err := eng.Start(context.Background(), "alice", r.ID, nil)
	if err != nil {
		t.Fatalf("Start as alice: %v", err)
	}

	// The execution is equally invisible to the unauthorized user.
	_, err = eng.Get(context.Background(), "mallory", exec.ID)
	if !errors.Is(err, recipeflow.ErrExecutionNotFound) {
		t.Errorf("Get err = %v, want ErrExecutionNotFound", err)
	}
	_, err = eng.Cancel(context.Background(), "mallory", exec.ID)
	if !errors.Is(err, recipeflow.ErrExecutionNotFound) {
		t.Errorf("Cancel err = %v, want ErrExecutionNotFound", err)
	}
}

func TestEngine_ListFiltersByVisibility(t *testing.T) {
	checker := access.NewStatic()
	eng, s, _ := newTestEngine(t, execution.WithAccessChecker(checker))

	visible := seedRecipe(t, s, nil)
	hidden := seedRecipe(t, s, nil)
	checker.Grant(visible.ID, "alice", access.RoleViewer)
	checker.Grant(visible.ID, "admin", access.RoleOwner)
	checker.Grant(hidden.ID, "admin", access.RoleOwner)

	if _, err := eng.Start(context.Background(), "admin", visible.ID, nil); err != nil {
		t.Fatalf("Start visible: %v", err)
	}
	if _, err := eng.Start(context.Background(), "admin", hidden.ID, nil); err != nil {
		t.Fatalf("Start hidden: %v", err)
	}

	execs, err := eng.List(context.Background(), "alice", execution.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("visible executions = %d, want 1", len(execs))
	}
	if execs[0].RecipeID.String() != visible.ID.String() {
		t.Errorf("visible execution recipe = %s, want %s", execs[0].RecipeID, visible.ID)
	}
}

func TestEngine_CompleteForcesTerminalState(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	r := seedRecipe(t, s, chainSteps(recipe.Step{Type: recipe.StepWait, Name: "settle"}))
	exec := seedRunningExecution(t, s, r)

	got, err := eng.Complete(context.Background(), "alice", exec.ID, "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Status != execution.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be stamped")
	}

	// A terminal execution cannot be completed again.
	if _, err = eng.Complete(context.Background(), "alice", exec.ID, ""); !errors.Is(err, recipeflow.ErrInvalidTransition) {
		t.Errorf("second complete err = %v, want ErrInvalidTransition", err)
	}
}

func TestEngine_CompleteWithErrorFails(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	r := seedRecipe(t, s, chainSteps(recipe.Step{Type: recipe.StepWait, Name: "settle"}))
	exec := seedRunningExecution(t, s, r)

	got, err := eng.Complete(context.Background(), "alice", exec.ID, "external runner crashed")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Status != execution.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.Error != "external runner crashed" {
		t.Errorf("error = %q, want the reported message preserved", got.Error)
	}
}
