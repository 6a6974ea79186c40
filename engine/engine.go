package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/access"
	"github.com/recipeflow/recipeflow/backoff"
	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/hook"
	"github.com/recipeflow/recipeflow/id"
	mw "github.com/recipeflow/recipeflow/middleware"
	"github.com/recipeflow/recipeflow/recipe"
	"github.com/recipeflow/recipeflow/schedule"
	"github.com/recipeflow/recipeflow/store"
)

// Engine is the assembled system: recipe service, schedule registry,
// execution engine, and sweeper, all sharing one store and one hook
// registry. Use Build() to create one.
type Engine struct {
	cfg    recipeflow.Config
	store  store.Store
	logger *slog.Logger

	hooks     *hook.Registry
	executors *execution.ExecutorRegistry
	recipes   *recipe.Service
	schedules *schedule.Registry
	exec      *execution.Engine
	sweeper   *schedule.Sweeper
	workerID  id.WorkerID

	// Collected by options, consumed by Build.
	runner    execution.AgentRunner
	notifier  execution.Notifier
	checker   access.Checker
	bo        backoff.Strategy
	now       func() time.Time
	mws       []mw.Middleware
	hookExts  []hook.Extension
	overrides map[recipe.StepType]execution.Executor

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for every subsystem. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithAgentRunner sets the collaborator behind run_agent steps.
// Without one, run_agent steps fail when reached.
func WithAgentRunner(r execution.AgentRunner) Option {
	return func(eng *Engine) { eng.runner = r }
}

// WithNotifier sets the collaborator behind notify steps.
// Without one, notify steps fail when reached.
func WithNotifier(n execution.Notifier) Option {
	return func(eng *Engine) { eng.notifier = n }
}

// WithAccessChecker sets the authorization collaborator for the recipe
// service, schedule registry, and execution engine. Defaults to
// access.AllowAll.
func WithAccessChecker(c access.Checker) Option {
	return func(eng *Engine) { eng.checker = c }
}

// WithBackoff sets the delay strategy between step retries.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithClock overrides the time source used by the schedule registry
// and the sweeper. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(eng *Engine) { eng.now = now }
}

// WithHook registers a lifecycle hook extension with the engine.
func WithHook(e hook.Extension) Option {
	return func(eng *Engine) { eng.hookExts = append(eng.hookExts, e) }
}

// WithMiddleware appends middleware to the per-step chain, after the
// built-in recover/tracing/metrics/logging/timeout stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithExecutor registers a custom executor for a step type, replacing
// the built-in one if the type is known.
func WithExecutor(t recipe.StepType, ex execution.Executor) Option {
	return func(eng *Engine) { eng.overrides[t] = ex }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, the metrics middleware uses this provider instead of the
// global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// Build assembles an Engine from a config and a store.
func Build(cfg recipeflow.Config, s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, recipeflow.ErrNoStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	eng := &Engine{
		cfg:       cfg,
		store:     s,
		logger:    slog.Default(),
		checker:   access.AllowAll{},
		overrides: make(map[recipe.StepType]execution.Executor),
		workerID:  id.NewWorkerID(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	// Hook registry doubles as the execution and schedule emitter.
	eng.hooks = hook.NewRegistry(eng.logger)
	for _, e := range eng.hookExts {
		eng.hooks.Register(e)
	}

	// Built-in executors, one per step type. The agent and notify
	// executors fail at execute time if their collaborator is nil, so a
	// recipe that never reaches those steps still runs.
	eng.executors = execution.NewExecutorRegistry()
	eng.executors.Register(recipe.StepRunAgent, execution.NewAgentExecutor(eng.runner))
	eng.executors.Register(recipe.StepWait, execution.NewWaitExecutor(cfg.WaitStepCeiling))
	eng.executors.Register(recipe.StepBranch, execution.NewBranchExecutor())
	eng.executors.Register(recipe.StepNotify, execution.NewNotifyExecutor(eng.notifier))
	eng.executors.Register(recipe.StepHumanApproval, execution.NewApprovalExecutor())
	for t, ex := range eng.overrides {
		eng.executors.Register(t, ex)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/recipeflow/recipeflow")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/recipeflow/recipeflow")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default chain: recover → tracing → metrics → logging → timeout.
	allMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Timeout(cfg.StepTimeout),
	}
	allMws = append(allMws, eng.mws...)

	eng.recipes = recipe.NewService(s, eng.checker, eng.logger)

	regOpts := []schedule.RegistryOption{
		schedule.WithHorizon(cfg.CronSearchHorizon),
	}
	if eng.now != nil {
		regOpts = append(regOpts, schedule.WithClock(eng.now))
	}
	eng.schedules = schedule.NewRegistry(s, eng.checker, eng.logger, regOpts...)

	eng.exec = execution.NewEngine(s, s, eng.executors,
		execution.WithEmitter(eng.hooks),
		execution.WithMiddleware(mw.Chain(allMws...)),
		execution.WithRetryBackoff(eng.bo),
		execution.WithMaxStepRetries(cfg.MaxStepRetries),
		execution.WithAccessChecker(eng.checker),
		execution.WithLogger(eng.logger),
	)

	// The sweeper starts executions through the engine's internal path:
	// schedule firings are system-initiated, not user-initiated, so they
	// bypass the per-user access check.
	start := func(ctx context.Context, recipeID id.RecipeID, execContext map[string]any) (id.ExecutionID, error) {
		e, err := eng.exec.StartInternal(ctx, recipeID, execContext)
		if err != nil {
			return id.Nil, err
		}
		return e.ID, nil
	}

	sweepOpts := []schedule.SweeperOption{
		schedule.WithSweepInterval(cfg.SweepInterval),
		schedule.WithClaimTTL(cfg.ClaimTTL),
		schedule.WithSweeperHorizon(cfg.CronSearchHorizon),
	}
	if cfg.SweepRate > 0 {
		sweepOpts = append(sweepOpts, schedule.WithSweepRate(cfg.SweepRate))
	}
	if eng.now != nil {
		sweepOpts = append(sweepOpts, schedule.WithSweeperClock(eng.now))
	}
	eng.sweeper = schedule.NewSweeper(s, start, eng.hooks, eng.workerID, eng.logger, sweepOpts...)

	return eng, nil
}

// Start launches the schedule sweeper.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	eng.logger.Info("recipeflow engine started",
		slog.String("worker_id", eng.workerID.String()),
	)
	return nil
}

// Stop stops the sweeper, waits for in-flight executions to park or
// finish, and notifies shutdown hooks. The store is not closed; the
// caller owns it.
func (eng *Engine) Stop(ctx context.Context) error {
	if err := eng.sweeper.Stop(ctx); err != nil {
		eng.logger.Error("sweeper stop error", slog.String("error", err.Error()))
	}
	eng.exec.Wait()
	eng.hooks.EmitShutdown(ctx)
	eng.logger.Info("recipeflow engine stopped")
	return nil
}

// FireEvent fires every enabled schedule bound to the named event
// trigger, starting one execution per schedule.
func (eng *Engine) FireEvent(ctx context.Context, trigger string) error {
	return eng.sweeper.FireEvent(ctx, trigger)
}

// Recipes returns the recipe service.
func (eng *Engine) Recipes() *recipe.Service { return eng.recipes }

// Schedules returns the schedule registry.
func (eng *Engine) Schedules() *schedule.Registry { return eng.schedules }

// Executions returns the execution engine.
func (eng *Engine) Executions() *execution.Engine { return eng.exec }

// Sweeper returns the schedule sweeper.
func (eng *Engine) Sweeper() *schedule.Sweeper { return eng.sweeper }

// Hooks returns the hook registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Store returns the underlying store.
func (eng *Engine) Store() store.Store { return eng.store }

// WorkerID returns this engine instance's sweeper identity.
func (eng *Engine) WorkerID() id.WorkerID { return eng.workerID }

// Config returns the engine's configuration.
func (eng *Engine) Config() recipeflow.Config { return eng.cfg }
