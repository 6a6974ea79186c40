package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/access"
	"github.com/recipeflow/recipeflow/backoff"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/middleware"
	"github.com/recipeflow/recipeflow/recipe"
)

// Emitter emits execution-level lifecycle events.
// This interface is satisfied by hook.Registry (wired in the engine
// package) to break the import cycle between execution and hook.
type Emitter interface {
	EmitExecutionStarted(ctx context.Context, e *Execution)
	EmitStepCompleted(ctx context.Context, e *Execution, step *recipe.Step, elapsed time.Duration)
	EmitStepFailed(ctx context.Context, e *Execution, step *recipe.Step, err error)
	EmitStepRetrying(ctx context.Context, e *Execution, step *recipe.Step, attempt int, delay time.Duration)
	EmitExecutionCompleted(ctx context.Context, e *Execution, elapsed time.Duration)
	EmitExecutionFailed(ctx context.Context, e *Execution, err error)
	EmitExecutionPaused(ctx context.Context, e *Execution)
	EmitExecutionResumed(ctx context.Context, e *Execution)
}

// NopEmitter is an Emitter that does nothing.
type NopEmitter struct{}

func (NopEmitter) EmitExecutionStarted(context.Context, *Execution)                        {}
func (NopEmitter) EmitStepCompleted(context.Context, *Execution, *recipe.Step, time.Duration) {
}
func (NopEmitter) EmitStepFailed(context.Context, *Execution, *recipe.Step, error) {}
func (NopEmitter) EmitStepRetrying(context.Context, *Execution, *recipe.Step, int, time.Duration) {
}
func (NopEmitter) EmitExecutionCompleted(context.Context, *Execution, time.Duration) {}
func (NopEmitter) EmitExecutionFailed(context.Context, *Execution, error)            {}
func (NopEmitter) EmitExecutionPaused(context.Context, *Execution)                   {}
func (NopEmitter) EmitExecutionResumed(context.Context, *Execution)                  {}

// lockEntry is one per-execution mutex with a reference count so the
// table can drop entries once no goroutine holds or awaits them.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lockTable hands out per-execution mutexes. All state transitions for
// one execution serialize through its entry, so concurrent control
// calls and the run loop never interleave their read-modify-write
// cycles.
type lockTable struct {
	mu      sync.Mutex
	entries map[id.ExecutionID]*lockEntry
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[id.ExecutionID]*lockEntry)}
}

// acquire locks the entry for executionID and returns its release func.
func (t *lockTable) acquire(executionID id.ExecutionID) func() {
	t.mu.Lock()
	e, ok := t.entries[executionID]
	if !ok {
		e = &lockEntry{}
		t.entries[executionID] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		t.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(t.entries, executionID)
		}
		t.mu.Unlock()
	}
}

// Engine drives executions through their lifecycle: it starts them,
// runs their steps in order, applies per-step error policy, and
// serializes control operations (pause, resume, approve, cancel)
// against the run loop.
type Engine struct {
	store    Store
	recipes  recipe.Store
	checker  access.Checker
	registry *ExecutorRegistry
	emitter  Emitter
	chain    middleware.Middleware
	retry    backoff.Strategy
	logger   *slog.Logger

	maxRetries int
	locks      *lockTable
	wg         sync.WaitGroup
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) EngineOption {
	return func(eng *Engine) { eng.emitter = e }
}

// WithMiddleware sets the middleware chain wrapped around every step.
func WithMiddleware(mw middleware.Middleware) EngineOption {
	return func(eng *Engine) { eng.chain = mw }
}

// WithRetryBackoff sets the delay strategy between step retries.
func WithRetryBackoff(s backoff.Strategy) EngineOption {
	return func(eng *Engine) { eng.retry = s }
}

// WithMaxStepRetries bounds how many times a step with the retry policy
// is re-attempted after its first failure.
func WithMaxStepRetries(n int) EngineOption {
	return func(eng *Engine) { eng.maxRetries = n }
}

// WithAccessChecker sets the authorization collaborator.
func WithAccessChecker(c access.Checker) EngineOption {
	return func(eng *Engine) { eng.checker = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(eng *Engine) { eng.logger = l }
}

// NewEngine creates an execution engine. The executor registry decides
// which step types the engine can run; unregistered types fail the
// execution when reached.
func NewEngine(store Store, recipes recipe.Store, registry *ExecutorRegistry, opts ...EngineOption) *Engine {
	e := &Engine{
		store:      store,
		recipes:    recipes,
		checker:    access.AllowAll{},
		registry:   registry,
		emitter:    NopEmitter{},
		retry:      backoff.DefaultStrategy(),
		logger:     slog.Default(),
		maxRetries: 3,
		locks:      newLockTable(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Wait blocks until all in-flight run loops have exited. Intended for
// graceful shutdown and tests.
func (e *Engine) Wait() { e.wg.Wait() }

// ──────────────────────────────────────────────────
// Starting executions
// ──────────────────────────────────────────────────

// Start begins a new execution of a recipe on behalf of a user and
// drives it synchronously until it completes, fails, pauses, or parks
// for approval. The returned execution reflects the state at return
// time.
func (e *Engine) Start(ctx context.Context, userID string, recipeID id.RecipeID, execContext map[string]any) (*Execution, error) {
	if err := e.authorize(ctx, userID, recipeID, access.RoleViewer); err != nil {
		return nil, err
	}
	return e.StartInternal(ctx, recipeID, execContext)
}

// StartInternal begins an execution without an authorization check.
// The scheduler sweeper uses it: a firing schedule acts with the
// authority of whoever registered it, not of any request principal.
func (e *Engine) StartInternal(ctx context.Context, recipeID id.RecipeID, execContext map[string]any) (*Execution, error) {
	r, err := e.recipes.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}

	execCtx := make(map[string]any, len(execContext))
	for k, v := range execContext {
		execCtx[k] = v
	}

	exec := &Execution{
		Entity:    recipeflow.NewEntity(),
		ID:        id.NewExecutionID(),
		RecipeID:  recipeID,
		Status:    StatusPending,
		Context:   execCtx,
		StartedAt: time.Now().UTC(),
	}
	if first := r.FirstStep(); first != nil {
		sid := first.ID
		exec.CurrentStepID = &sid
	}
	exec.Status = StatusRunning

	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution for recipe %s: %w", recipeID, err)
	}

	e.logger.Info("execution started",
		slog.String("execution_id", exec.ID.String()),
		slog.String("recipe_id", recipeID.String()),
	)
	e.emitter.EmitExecutionStarted(ctx, exec)

	e.run(ctx, exec.ID)

	return e.reload(ctx, exec.ID)
}

// StartAsync is Start with the run loop detached into a background
// goroutine. The returned execution is the freshly persisted running
// state; use Get to observe progress.
func (e *Engine) StartAsync(ctx context.Context, userID string, recipeID id.RecipeID, execContext map[string]any) (*Execution, error) {
	if err := e.authorize(ctx, userID, recipeID, access.RoleViewer); err != nil {
		return nil, err
	}

	r, err := e.recipes.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}

	execCtx := make(map[string]any, len(execContext))
	for k, v := range execContext {
		execCtx[k] = v
	}

	exec := &Execution{
		Entity:    recipeflow.NewEntity(),
		ID:        id.NewExecutionID(),
		RecipeID:  recipeID,
		Status:    StatusRunning,
		Context:   execCtx,
		StartedAt: time.Now().UTC(),
	}
	if first := r.FirstStep(); first != nil {
		sid := first.ID
		exec.CurrentStepID = &sid
	}

	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution for recipe %s: %w", recipeID, err)
	}
	e.emitter.EmitExecutionStarted(ctx, exec)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(context.WithoutCancel(ctx), exec.ID)
	}()

	return exec.Clone(), nil
}

// ──────────────────────────────────────────────────
// Run loop
// ──────────────────────────────────────────────────

// run advances an execution step by step until it reaches a state the
// loop cannot progress (terminal, paused, or awaiting approval).
func (e *Engine) run(ctx context.Context, executionID id.ExecutionID) {
	for e.runStep(ctx, executionID) {
	}
}

// runStep executes the execution's current step and applies the
// outcome. It returns true if the loop should continue with the next
// step.
//
// The per-execution lock is held for state reads and writes but
// released while the step itself executes, so control operations stay
// responsive during long-running steps. After the step finishes the
// execution is reloaded: a pause or cancel that landed mid-step wins,
// and the step's advancement is recorded without resuming the loop.
func (e *Engine) runStep(ctx context.Context, executionID id.ExecutionID) bool {
	release := e.locks.acquire(executionID)

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		release()
		e.logger.Error("load execution for run loop",
			slog.String("execution_id", executionID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	if exec.Status != StatusRunning {
		release()
		return false
	}
	if exec.CurrentStepID == nil {
		e.finish(ctx, exec)
		release()
		return false
	}

	r, err := e.recipes.GetRecipe(ctx, exec.RecipeID)
	if err != nil {
		e.failLocked(ctx, exec, fmt.Errorf("load recipe %s: %w", exec.RecipeID, err))
		release()
		return false
	}
	step := r.StepByID(*exec.CurrentStepID)
	if step == nil {
		e.failLocked(ctx, exec, fmt.Errorf("%w: step %s not in recipe %s", recipeflow.ErrStepNotFound, exec.CurrentStepID, exec.RecipeID))
		release()
		return false
	}
	step = step.Clone()
	snapshot := exec.Clone()
	release()

	stepStart := time.Now()
	result, stepErr := e.executeWithRetry(ctx, snapshot, step)
	elapsed := time.Since(stepStart)

	release = e.locks.acquire(executionID)
	defer release()

	exec, err = e.store.GetExecution(ctx, executionID)
	if err != nil {
		e.logger.Error("reload execution after step",
			slog.String("execution_id", executionID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	if exec.Status.Terminal() {
		// Cancelled while the step was in flight. The outcome is dropped.
		return false
	}

	if stepErr != nil {
		e.emitter.EmitStepFailed(ctx, exec, step, stepErr)
		if step.OnError != recipe.OnErrorSkip {
			e.failLocked(ctx, exec, fmt.Errorf("step %q: %w", step.Name, stepErr))
			return false
		}
		e.logger.Warn("step failed, skipping",
			slog.String("execution_id", exec.ID.String()),
			slog.String("step_name", step.Name),
			slog.String("error", stepErr.Error()),
		)
	} else {
		if len(result.Output) > 0 {
			for k, v := range result.Output {
				if exec.Context == nil {
					exec.Context = make(map[string]any)
				}
				exec.Context[k] = v
			}
			e.recordOutput(ctx, exec, step, result.Output)
		}
		e.emitter.EmitStepCompleted(ctx, exec, step, elapsed)
	}

	if stepErr == nil && result.Await {
		// Park at the approval step; Approve advances past it.
		exec.Status = StatusAwaitingApproval
		if err := e.store.UpdateExecution(ctx, exec); err != nil {
			e.logger.Error("persist awaiting execution",
				slog.String("execution_id", exec.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		e.logger.Info("execution awaiting approval",
			slog.String("execution_id", exec.ID.String()),
			slog.String("step_name", step.Name),
		)
		e.emitter.EmitExecutionPaused(ctx, exec)
		return false
	}

	var next *id.StepID
	if stepErr != nil {
		// Skipped step: there is no result label to select a branch arm
		// with, so advancement follows NextStepID regardless of type.
		next = step.NextStepID
	} else {
		var nextErr error
		next, nextErr = successor(step, result)
		if nextErr != nil {
			e.failLocked(ctx, exec, nextErr)
			return false
		}
	}
	exec.CurrentStepID = next

	if exec.Status == StatusPaused {
		// Paused mid-step: record the advancement, stay paused. Resume
		// continues from the next step.
		if err := e.store.UpdateExecution(ctx, exec); err != nil {
			e.logger.Error("persist paused execution",
				slog.String("execution_id", exec.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		return false
	}

	if next == nil {
		e.finish(ctx, exec)
		return false
	}

	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		e.logger.Error("persist execution progress",
			slog.String("execution_id", exec.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// successor resolves the step the execution advances to. Branch steps
// select by the result label; everything else follows NextStepID. A
// branch label with no target is a recipe defect and fails loudly
// rather than silently completing the execution.
func successor(step *recipe.Step, result Result) (*id.StepID, error) {
	if step.Type == recipe.StepBranch {
		target, ok := step.BranchTargets[result.Label]
		if !ok {
			return nil, fmt.Errorf("%w: branch step %q has no target for label %q", recipeflow.ErrValidation, step.Name, result.Label)
		}
		return &target, nil
	}
	return step.NextStepID, nil
}

// executeWithRetry runs one step through the middleware chain, applying
// the step's retry policy on failure. Retries stop as soon as the
// execution leaves the running state.
func (e *Engine) executeWithRetry(ctx context.Context, exec *Execution, step *recipe.Step) (Result, error) {
	var result Result
	handler := func(c context.Context) error {
		res, err := e.registry.Execute(c, step, exec.Context)
		if err != nil {
			return err
		}
		result = res
		return nil
	}
	invoke := func() error {
		if e.chain != nil {
			return e.chain(ctx, exec.ID, step, handler)
		}
		return handler(ctx)
	}

	err := invoke()
	if err == nil || step.OnError != recipe.OnErrorRetry {
		return result, err
	}

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		delay := e.retry.Delay(attempt)
		e.emitter.EmitStepRetrying(ctx, exec, step, attempt, delay)
		e.logger.Warn("step failed, retrying",
			slog.String("execution_id", exec.ID.String()),
			slog.String("step_name", step.Name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}

		// A cancel or pause that landed during the delay ends the retry
		// budget early.
		if cur, getErr := e.store.GetExecution(ctx, exec.ID); getErr == nil && cur.Status != StatusRunning {
			return Result{}, err
		}

		if err = invoke(); err == nil {
			return result, nil
		}
	}
	return Result{}, fmt.Errorf("retries exhausted after %d attempts: %w", e.maxRetries, err)
}

// finish marks an execution completed. Caller holds the lock.
func (e *Engine) finish(ctx context.Context, exec *Execution) {
	now := time.Now().UTC()
	exec.Status = StatusCompleted
	exec.CurrentStepID = nil
	exec.CompletedAt = &now
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		e.logger.Error("persist completed execution",
			slog.String("execution_id", exec.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	e.logger.Info("execution completed",
		slog.String("execution_id", exec.ID.String()),
		slog.Duration("elapsed", now.Sub(exec.StartedAt)),
	)
	e.emitter.EmitExecutionCompleted(ctx, exec, now.Sub(exec.StartedAt))
}

// failLocked marks an execution failed. Caller holds the lock.
func (e *Engine) failLocked(ctx context.Context, exec *Execution, cause error) {
	now := time.Now().UTC()
	exec.Status = StatusFailed
	exec.Error = cause.Error()
	exec.CompletedAt = &now
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		e.logger.Error("persist failed execution",
			slog.String("execution_id", exec.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	e.logger.Error("execution failed",
		slog.String("execution_id", exec.ID.String()),
		slog.String("error", cause.Error()),
	)
	e.emitter.EmitExecutionFailed(ctx, exec, cause)
}

// recordOutput appends a step's success output as an immutable output
// artifact. Failure to record is logged, not fatal: the execution's
// progress wins over its audit trail.
func (e *Engine) recordOutput(ctx context.Context, exec *Execution, step *recipe.Step, output map[string]any) {
	content, err := json.Marshal(output)
	if err != nil {
		e.logger.Error("marshal step output artifact",
			slog.String("execution_id", exec.ID.String()),
			slog.String("step_name", step.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	a := &Artifact{
		ID:          id.NewArtifactID(),
		ExecutionID: exec.ID,
		StepID:      step.ID,
		Type:        ArtifactOutput,
		Name:        step.Name,
		Content:     string(content),
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.AddArtifact(ctx, a); err != nil {
		e.logger.Error("record step output artifact",
			slog.String("execution_id", exec.ID.String()),
			slog.String("step_name", step.Name),
			slog.String("error", err.Error()),
		)
	}
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// Get returns a point-in-time snapshot of an execution and its
// artifacts for a user who may view the owning recipe.
func (e *Engine) Get(ctx context.Context, userID string, executionID id.ExecutionID) (*Snapshot, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeExecution(ctx, userID, exec.RecipeID); err != nil {
		return nil, err
	}

	artifacts, err := e.store.ListArtifacts(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts for execution %s: %w", executionID, err)
	}
	return &Snapshot{Execution: exec.Clone(), Artifacts: artifacts}, nil
}

// List returns the executions matching opts whose recipes the user may
// view.
func (e *Engine) List(ctx context.Context, userID string, opts ListOpts) ([]*Execution, error) {
	all, err := e.store.ListExecutions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	visible := make([]*Execution, 0, len(all))
	for _, exec := range all {
		d, checkErr := e.checker.CheckAccess(ctx, exec.RecipeID, userID, access.RoleViewer)
		if checkErr != nil {
			return nil, fmt.Errorf("check access for recipe %s: %w", exec.RecipeID, checkErr)
		}
		if d.Allowed {
			visible = append(visible, exec.Clone())
		}
	}
	return visible, nil
}

// ──────────────────────────────────────────────────
// Control operations
// ──────────────────────────────────────────────────

// Pause suspends a running execution. The current step, if in flight,
// finishes and its advancement is recorded, but no further step starts
// until Resume.
func (e *Engine) Pause(ctx context.Context, userID string, executionID id.ExecutionID) (*Execution, error) {
	return e.transition(ctx, userID, executionID, StatusRunning, func(exec *Execution) {
		exec.Status = StatusPaused
	}, func(exec *Execution) {
		e.logger.Info("execution paused", slog.String("execution_id", exec.ID.String()))
		e.emitter.EmitExecutionPaused(ctx, exec)
	})
}

// Resume continues a paused execution from its recorded current step
// and drives it synchronously until it next parks or finishes.
func (e *Engine) Resume(ctx context.Context, userID string, executionID id.ExecutionID) (*Execution, error) {
	_, err := e.transition(ctx, userID, executionID, StatusPaused, func(exec *Execution) {
		exec.Status = StatusRunning
	}, func(exec *Execution) {
		e.logger.Info("execution resumed", slog.String("execution_id", exec.ID.String()))
		e.emitter.EmitExecutionResumed(ctx, exec)
	})
	if err != nil {
		return nil, err
	}

	e.run(ctx, executionID)
	return e.reload(ctx, executionID)
}

// Approve clears a human_approval gate. The execution advances past the
// approval step and continues synchronously. An approval artifact
// records who cleared the gate.
func (e *Engine) Approve(ctx context.Context, userID string, executionID id.ExecutionID) (*Execution, error) {
	_, err := e.transition(ctx, userID, executionID, StatusAwaitingApproval, func(exec *Execution) {
		exec.Status = StatusRunning
	}, func(exec *Execution) {
		e.recordDecision(ctx, exec, "approved", userID)
		if exec.CurrentStepID != nil {
			if r, gerr := e.recipes.GetRecipe(ctx, exec.RecipeID); gerr == nil {
				if step := r.StepByID(*exec.CurrentStepID); step != nil {
					exec.CurrentStepID = step.NextStepID
				}
			}
		}
		if uerr := e.store.UpdateExecution(ctx, exec); uerr != nil {
			e.logger.Error("persist approved execution",
				slog.String("execution_id", exec.ID.String()),
				slog.String("error", uerr.Error()),
			)
		}
		e.logger.Info("execution approved",
			slog.String("execution_id", exec.ID.String()),
			slog.String("approved_by", userID),
		)
		e.emitter.EmitExecutionResumed(ctx, exec)
	})
	if err != nil {
		return nil, err
	}

	e.run(ctx, executionID)
	return e.reload(ctx, executionID)
}

// Reject denies a human_approval gate and fails the execution.
func (e *Engine) Reject(ctx context.Context, userID string, executionID id.ExecutionID, reason string) (*Execution, error) {
	if reason == "" {
		reason = "approval rejected"
	}
	return e.transition(ctx, userID, executionID, StatusAwaitingApproval, func(exec *Execution) {
		now := time.Now().UTC()
		exec.Status = StatusFailed
		exec.Error = reason
		exec.CompletedAt = &now
	}, func(exec *Execution) {
		e.recordDecision(ctx, exec, "rejected", userID)
		e.logger.Info("execution rejected",
			slog.String("execution_id", exec.ID.String()),
			slog.String("rejected_by", userID),
		)
		e.emitter.EmitExecutionFailed(ctx, exec, fmt.Errorf("%s", reason))
	})
}

// Cancel terminally stops an execution from any non-terminal state.
func (e *Engine) Cancel(ctx context.Context, userID string, executionID id.ExecutionID) (*Execution, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeExecution(ctx, userID, exec.RecipeID); err != nil {
		return nil, err
	}

	release := e.locks.acquire(executionID)
	defer release()

	exec, err = e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status.Terminal() {
		return nil, &TransitionError{ExecutionID: executionID, Current: exec.Status, Required: StatusRunning}
	}

	now := time.Now().UTC()
	exec.Status = StatusFailed
	exec.Error = "cancelled"
	exec.CompletedAt = &now
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("update execution %s: %w", executionID, err)
	}

	e.logger.Info("execution cancelled",
		slog.String("execution_id", executionID.String()),
		slog.String("cancelled_by", userID),
	)
	e.emitter.EmitExecutionFailed(ctx, exec, fmt.Errorf("cancelled"))
	return exec.Clone(), nil
}

// Complete forces a non-terminal execution to a terminal state on
// behalf of an external driver: with an empty errMsg it completes, with
// a non-empty one it fails and the message is preserved as the
// execution error.
func (e *Engine) Complete(ctx context.Context, userID string, executionID id.ExecutionID, errMsg string) (*Execution, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeExecution(ctx, userID, exec.RecipeID); err != nil {
		return nil, err
	}

	release := e.locks.acquire(executionID)
	defer release()

	exec, err = e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status.Terminal() {
		return nil, &TransitionError{ExecutionID: executionID, Current: exec.Status, Required: StatusRunning}
	}

	if errMsg != "" {
		e.failLocked(ctx, exec, fmt.Errorf("%s", errMsg))
	} else {
		e.finish(ctx, exec)
	}
	return exec.Clone(), nil
}

// AddArtifact appends an artifact to an execution's trail on behalf of
// a step's external collaborator (agent logs, produced files).
func (e *Engine) AddArtifact(ctx context.Context, userID string, executionID id.ExecutionID, stepID id.StepID, typ ArtifactType, name, content string) (*Artifact, error) {
	if !KnownArtifactType(typ) {
		return nil, fmt.Errorf("%w: unknown artifact type %q", recipeflow.ErrValidation, typ)
	}

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeExecution(ctx, userID, exec.RecipeID); err != nil {
		return nil, err
	}

	a := &Artifact{
		ID:          id.NewArtifactID(),
		ExecutionID: executionID,
		StepID:      stepID,
		Type:        typ,
		Name:        name,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.AddArtifact(ctx, a); err != nil {
		return nil, fmt.Errorf("add artifact to execution %s: %w", executionID, err)
	}
	return a, nil
}

// transition serializes a guarded status change through the execution's
// lock: reload, verify the required state, mutate, persist, then run
// the after callback while still holding the lock.
func (e *Engine) transition(
	ctx context.Context,
	userID string,
	executionID id.ExecutionID,
	required Status,
	mutate func(*Execution),
	after func(*Execution),
) (*Execution, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeExecution(ctx, userID, exec.RecipeID); err != nil {
		return nil, err
	}

	release := e.locks.acquire(executionID)
	defer release()

	exec, err = e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status != required {
		return nil, &TransitionError{ExecutionID: executionID, Current: exec.Status, Required: required}
	}

	mutate(exec)
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("update execution %s: %w", executionID, err)
	}
	if after != nil {
		after(exec)
	}
	return exec.Clone(), nil
}

// recordDecision appends a summary artifact for an approval decision.
func (e *Engine) recordDecision(ctx context.Context, exec *Execution, decision, userID string) {
	if exec.CurrentStepID == nil {
		return
	}
	content, _ := json.Marshal(map[string]any{"decision": decision, "decided_by": userID})
	a := &Artifact{
		ID:          id.NewArtifactID(),
		ExecutionID: exec.ID,
		StepID:      *exec.CurrentStepID,
		Type:        ArtifactSummary,
		Name:        decision,
		Content:     string(content),
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.AddArtifact(ctx, a); err != nil {
		e.logger.Error("record approval artifact",
			slog.String("execution_id", exec.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// reload returns a fresh clone of an execution's stored state.
func (e *Engine) reload(ctx context.Context, executionID id.ExecutionID) (*Execution, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return exec.Clone(), nil
}

// authorize maps recipe access denial to recipe not-found.
func (e *Engine) authorize(ctx context.Context, userID string, recipeID id.RecipeID, required access.Role) error {
	d, err := e.checker.CheckAccess(ctx, recipeID, userID, required)
	if err != nil {
		return fmt.Errorf("check access for recipe %s: %w", recipeID, err)
	}
	if !d.Allowed {
		return recipeflow.ErrRecipeNotFound
	}
	return nil
}

// authorizeExecution maps recipe access denial to execution not-found
// so a caller cannot distinguish an execution they may not see from one
// that does not exist.
func (e *Engine) authorizeExecution(ctx context.Context, userID string, recipeID id.RecipeID) error {
	d, err := e.checker.CheckAccess(ctx, recipeID, userID, access.RoleViewer)
	if err != nil {
		return fmt.Errorf("check access for recipe %s: %w", recipeID, err)
	}
	if !d.Allowed {
		return recipeflow.ErrExecutionNotFound
	}
	return nil
}
