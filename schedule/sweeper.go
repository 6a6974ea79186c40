package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/recipeflow/recipeflow/cronexpr"
	"github.com/recipeflow/recipeflow/id"
)

// StartFunc is the callback the sweeper uses to start an execution.
// This breaks the import cycle: the engine provides the implementation
// (its pre-authorized internal start path).
type StartFunc func(ctx context.Context, recipeID id.RecipeID, execContext map[string]any) (id.ExecutionID, error)

// Emitter emits schedule lifecycle events. hook.Registry satisfies this
// interface via EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, s *Schedule, executionID id.ExecutionID)
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets how often the sweeper checks for due schedules.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.interval = d }
}

// WithClaimTTL sets the TTL for per-schedule firing claims.
func WithClaimTTL(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.claimTTL = d }
}

// WithSweepRate limits schedule firings per second. Zero means
// unlimited.
func WithSweepRate(perSecond float64) SweeperOption {
	return func(s *Sweeper) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithSweeperClock overrides the sweeper's time source. Used in tests.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// WithSweeperHorizon sets the cron next-run search horizon used when
// recomputing NextRunAt after a firing.
func WithSweeperHorizon(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.horizon = d }
}

// Sweeper fires due schedules on a tick loop. Each firing is guarded by
// a store-level compare-and-swap claim on NextRunAt, so any number of
// sweepers may run concurrently against the same store without
// double-firing a (schedule, instant) pair.
type Sweeper struct {
	store    Store
	start    StartFunc
	emitter  Emitter
	workerID id.WorkerID
	logger   *slog.Logger

	interval time.Duration
	claimTTL time.Duration
	horizon  time.Duration
	limiter  *rate.Limiter
	now      func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper.
func NewSweeper(store Store, start StartFunc, emitter Emitter, workerID id.WorkerID, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		store:    store,
		start:    start,
		emitter:  emitter,
		workerID: workerID,
		logger:   logger,
		interval: 1 * time.Second,
		claimTTL: 30 * time.Second,
		horizon:  cronexpr.DefaultHorizon,
		now:      func() time.Time { return time.Now().UTC() },
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep goroutine.
func (s *Sweeper) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("schedule sweeper started",
		slog.String("worker_id", s.workerID.String()),
		slog.Duration("interval", s.interval),
	)
	return nil
}

// Stop signals the sweeper to stop and waits for the loop to finish.
func (s *Sweeper) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("schedule sweeper stopped")
	return nil
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep fires every due schedule once. Exported so callers that bring
// their own periodic trigger can drive the sweep directly.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	due, err := s.store.ListSchedules(ctx, ListOpts{EnabledOnly: true, DueBefore: now})
	if err != nil {
		s.logger.Error("list due schedules error", slog.String("error", err.Error()))
		return
	}
	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sched := range due {
		entry := sched
		g.Go(func() error {
			if s.limiter != nil {
				if waitErr := s.limiter.Wait(gctx); waitErr != nil {
					return nil //nolint:nilerr // context cancelled; stop quietly
				}
			}
			s.fire(gctx, entry, now)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // fire never returns errors; they are logged per schedule
}

// fire claims and fires one due schedule. Any failure is logged and the
// schedule skipped; one malformed schedule never aborts the sweep.
func (s *Sweeper) fire(ctx context.Context, sched *Schedule, now time.Time) {
	if sched.NextRunAt == nil {
		return
	}

	claimed, err := s.store.ClaimSchedule(ctx, sched.ID, s.workerID, *sched.NextRunAt, s.claimTTL)
	if err != nil {
		s.logger.Error("claim schedule error",
			slog.String("schedule_id", sched.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !claimed {
		return // Another sweeper got this firing instant.
	}
	defer func() {
		if relErr := s.store.ReleaseSchedule(ctx, sched.ID, s.workerID); relErr != nil {
			s.logger.Error("release schedule error",
				slog.String("schedule_id", sched.ID.String()),
				slog.String("error", relErr.Error()),
			)
		}
	}()

	execID, startErr := s.start(ctx, sched.RecipeID, map[string]any{
		"schedule_id":   sched.ID.String(),
		"schedule_name": sched.Name,
	})
	if startErr != nil {
		s.logger.Error("schedule fire error",
			slog.String("schedule_id", sched.ID.String()),
			slog.String("recipe_id", sched.RecipeID.String()),
			slog.String("error", startErr.Error()),
		)
		return
	}

	// Recompute NextRunAt forward from the firing time, never from the
	// stale stored value. A cron that stopped parsing (or ran out of
	// matches) leaves NextRunAt nil so the schedule goes quiet instead
	// of wedging the sweep.
	var next *time.Time
	if expr, parseErr := cronexpr.Parse(sched.Cron); parseErr != nil {
		s.logger.Error("parse schedule cron error",
			slog.String("schedule_id", sched.ID.String()),
			slog.String("cron", sched.Cron),
			slog.String("error", parseErr.Error()),
		)
	} else if n, ok := expr.NextWithin(now, s.horizon); ok {
		next = &n
	}

	if markErr := s.store.MarkScheduleFired(ctx, sched.ID, now, next); markErr != nil {
		s.logger.Error("mark schedule fired error",
			slog.String("schedule_id", sched.ID.String()),
			slog.String("error", markErr.Error()),
		)
	}

	if s.emitter != nil {
		s.emitter.EmitScheduleFired(ctx, sched, execID)
	}

	s.logger.Info("schedule fired",
		slog.String("schedule_id", sched.ID.String()),
		slog.String("recipe_id", sched.RecipeID.String()),
		slog.String("execution_id", execID.String()),
	)
}

// FireEvent starts executions for every enabled schedule bound to the
// given event trigger and records the firing time. Event-triggered
// schedules have no NextRunAt, so no claim is needed; idempotency per
// event delivery is the event source's concern.
func (s *Sweeper) FireEvent(ctx context.Context, eventTrigger string) error {
	if eventTrigger == "" {
		return nil
	}

	list, err := s.store.ListSchedules(ctx, ListOpts{EnabledOnly: true, EventTrigger: eventTrigger})
	if err != nil {
		return err
	}

	now := s.now()
	for _, sched := range list {
		execID, startErr := s.start(ctx, sched.RecipeID, map[string]any{
			"schedule_id":   sched.ID.String(),
			"schedule_name": sched.Name,
			"event_trigger": eventTrigger,
		})
		if startErr != nil {
			s.logger.Error("event trigger fire error",
				slog.String("schedule_id", sched.ID.String()),
				slog.String("event_trigger", eventTrigger),
				slog.String("error", startErr.Error()),
			)
			continue
		}
		if markErr := s.store.MarkScheduleFired(ctx, sched.ID, now, nil); markErr != nil {
			s.logger.Error("mark schedule fired error",
				slog.String("schedule_id", sched.ID.String()),
				slog.String("error", markErr.Error()),
			)
		}
		if s.emitter != nil {
			s.emitter.EmitScheduleFired(ctx, sched, execID)
		}
	}
	return nil
}
