package schedule_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/recipeflow/recipeflow/access"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/schedule"
	"github.com/recipeflow/recipeflow/store/memory"
)

// recordingStarter is a StartFunc spy.
type recordingStarter struct {
	mu       sync.Mutex
	recipes  []id.RecipeID
	contexts []map[string]any
	err      error
}

func (r *recordingStarter) start(_ context.Context, recipeID id.RecipeID, execContext map[string]any) (id.ExecutionID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return id.Nil, r.err
	}
	r.recipes = append(r.recipes, recipeID)
	r.contexts = append(r.contexts, execContext)
	return id.NewExecutionID(), nil
}

func (r *recordingStarter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recipes)
}

// firedSpy records EmitScheduleFired calls.
type firedSpy struct {
	mu    sync.Mutex
	fired []id.ScheduleID
}

func (f *firedSpy) EmitScheduleFired(_ context.Context, s *schedule.Schedule, _ id.ExecutionID) {
	f.mu.Lock()
	f.fired = append(f.fired, s.ID)
	f.mu.Unlock()
}

func (f *firedSpy) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fired)
}

func newTestSweeper(s *memory.Store, starter *recordingStarter, spy *firedSpy, opts ...schedule.SweeperOption) *schedule.Sweeper {
	all := append([]schedule.SweeperOption{
		schedule.WithSweeperClock(func() time.Time { return baseTime }),
	}, opts...)
	return schedule.NewSweeper(s, starter.start, spy, id.NewWorkerID(), discardLogger(), all...)
}

// seedCronSchedule creates an enabled cron schedule already due at baseTime.
func seedCronSchedule(t *testing.T, s *memory.Store, reg *schedule.Registry) *schedule.Schedule {
	t.Helper()
	sched, err := reg.Create(context.Background(), id.NewRecipeID(), "every-minute", "* * * * *", "", true)
	if err != nil {
		t.Fatalf("Create schedule: %v", err)
	}

	// Backdate NextRunAt so the schedule is due at baseTime.
	stored, err := s.GetSchedule(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	past := baseTime.Add(-time.Minute)
	stored.NextRunAt = &past
	if err = s.UpdateSchedule(context.Background(), stored); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	return stored
}

func TestSweeper_FiresDueSchedule(t *testing.T) {
	s := memory.New()
	reg := schedule.NewRegistry(s, access.AllowAll{}, discardLogger(),
		schedule.WithClock(func() time.Time { return baseTime }))
	sched := seedCronSchedule(t, s, reg)

	starter := &recordingStarter{}
	spy := &firedSpy{}
	sw := newTestSweeper(s, starter, spy)

	sw.Sweep(context.Background())

	if starter.count() != 1 {
		t.Fatalf("starts = %d, want 1", starter.count())
	}
	if spy.count() != 1 {
		t.Errorf("fired events = %d, want 1", spy.count())
	}

	// The execution context carries the schedule identity.
	gotCtx := starter.contexts[0]
	if gotCtx["schedule_id"] != sched.ID.String() {
		t.Errorf("context schedule_id = %v, want %s", gotCtx["schedule_id"], sched.ID)
	}
	if gotCtx["schedule_name"] != "every-minute" {
		t.Errorf("context schedule_name = %v", gotCtx["schedule_name"])
	}

	// The firing is recorded and NextRunAt advanced past baseTime.
	after, err := s.GetSchedule(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if after.LastRunAt == nil || !after.LastRunAt.Equal(baseTime) {
		t.Errorf("LastRunAt = %v, want %v", after.LastRunAt, baseTime)
	}
	if after.NextRunAt == nil || !after.NextRunAt.After(baseTime) {
		t.Errorf("NextRunAt = %v, want after %v", after.NextRunAt, baseTime)
	}
	if after.LockedBy != "" {
		t.Errorf("LockedBy = %q, want released", after.LockedBy)
	}
}

func TestSweeper_SweepIsIdempotentPerInstant(t *testing.T) {
	s := memory.New()
	reg := schedule.NewRegistry(s, access.AllowAll{}, discardLogger(),
		schedule.WithClock(func() time.Time { return baseTime }))
	seedCronSchedule(t, s, reg)

	starter := &recordingStarter{}
	sw := newTestSweeper(s, starter, &firedSpy{})

	sw.Sweep(context.Background())
	sw.Sweep(context.Background())

	// After the first sweep NextRunAt moved past baseTime, so the second
	// sweep at the same instant finds nothing due.
	if starter.count() != 1 {
		t.Errorf("starts = %d, want 1", starter.count())
	}
}

func TestSweeper_ForeignClaimBlocksFiring(t *testing.T) {
	s := memory.New()
	reg := schedule.NewRegistry(s, access.AllowAll{}, discardLogger(),
		schedule.WithClock(func() time.Time { return baseTime }))
	sched := seedCronSchedule(t, s, reg)

	// Another worker holds an unexpired claim on the firing instant.
	otherWorker := id.NewWorkerID()
	claimed, err := s.ClaimSchedule(context.Background(), sched.ID, otherWorker, *sched.NextRunAt, time.Hour)
	if err != nil || !claimed {
		t.Fatalf("pre-claim: claimed=%v err=%v", claimed, err)
	}

	starter := &recordingStarter{}
	sw := newTestSweeper(s, starter, &firedSpy{})
	sw.Sweep(context.Background())

	if starter.count() != 0 {
		t.Errorf("starts = %d, want 0 while the claim is held", starter.count())
	}
}

func TestSweeper_DisabledSchedulesAreSkipped(t *testing.T) {
	s := memory.New()
	reg := schedule.NewRegistry(s, access.AllowAll{}, discardLogger(),
		schedule.WithClock(func() time.Time { return baseTime }))
	sched := seedCronSchedule(t, s, reg)

	stored, err := s.GetSchedule(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	stored.Enabled = false
	if err = s.UpdateSchedule(context.Background(), stored); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	starter := &recordingStarter{}
	sw := newTestSweeper(s, starter, &firedSpy{})
	sw.Sweep(context.Background())

	if starter.count() != 0 {
		t.Errorf("starts = %d, want 0 for a disabled schedule", starter.count())
	}
}

func TestSweeper_StartFailureLeavesScheduleIntact(t *testing.T) {
	s := memory.New()
	reg := schedule.NewRegistry(s, access.AllowAll{}, discardLogger(),
		schedule.WithClock(func() time.Time { return baseTime }))
	sched := seedCronSchedule(t, s, reg)
	due := *sched.NextRunAt

	starter := &recordingStarter{err: errors.New("recipe store down")}
	sw := newTestSweeper(s, starter, &firedSpy{})
	sw.Sweep(context.Background())

	// The firing was not recorded: NextRunAt still points at the due
	// instant, so a later sweep retries it.
	after, err := s.GetSchedule(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if after.LastRunAt != nil {
		t.Errorf("LastRunAt = %v, want unset after a failed start", after.LastRunAt)
	}
	if after.NextRunAt == nil || !after.NextRunAt.Equal(due) {
		t.Errorf("NextRunAt = %v, want unchanged %v", after.NextRunAt, due)
	}
}

func TestSweeper_FireEvent(t *testing.T) {
	s := memory.New()
	reg := schedule.NewRegistry(s, access.AllowAll{}, discardLogger(),
		schedule.WithClock(func() time.Time { return baseTime }))

	bound, err := reg.Create(context.Background(), id.NewRecipeID(), "on-upload", "", "document.uploaded", true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err = reg.Create(context.Background(), id.NewRecipeID(), "other-event", "", "invoice.paid", true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err = reg.Create(context.Background(), id.NewRecipeID(), "disabled", "", "document.uploaded", false); err != nil {
		t.Fatalf("Create: %v", err)
	}

	starter := &recordingStarter{}
	spy := &firedSpy{}
	sw := newTestSweeper(s, starter, spy)

	if err = sw.FireEvent(context.Background(), "document.uploaded"); err != nil {
		t.Fatalf("FireEvent: %v", err)
	}

	if starter.count() != 1 {
		t.Fatalf("starts = %d, want only the enabled bound schedule", starter.count())
	}
	if starter.contexts[0]["event_trigger"] != "document.uploaded" {
		t.Errorf("context event_trigger = %v", starter.contexts[0]["event_trigger"])
	}

	after, err := s.GetSchedule(context.Background(), bound.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if after.LastRunAt == nil || !after.LastRunAt.Equal(baseTime) {
		t.Errorf("LastRunAt = %v, want %v", after.LastRunAt, baseTime)
	}

	// An empty trigger is a no-op, not an error.
	if err = sw.FireEvent(context.Background(), ""); err != nil {
		t.Errorf("FireEvent empty: %v", err)
	}
}

func TestSweeper_StartStopLoop(t *testing.T) {
	s := memory.New()
	reg := schedule.NewRegistry(s, access.AllowAll{}, discardLogger(),
		schedule.WithClock(func() time.Time { return baseTime }))
	seedCronSchedule(t, s, reg)

	starter := &recordingStarter{}
	sw := newTestSweeper(s, starter, &firedSpy{},
		schedule.WithSweepInterval(5*time.Millisecond))

	if err := sw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(time.Second)
	for starter.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never fired the due schedule")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := sw.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
