package schedule

import (
	"context"
	"time"

	"github.com/recipeflow/recipeflow/id"
)

// ListOpts controls filtering for schedule list queries.
type ListOpts struct {
	// RecipeID filters by recipe. Nil ID means all recipes.
	RecipeID id.RecipeID
	// EventTrigger filters by event trigger name. Empty means no filter.
	EventTrigger string
	// EnabledOnly restricts the result to enabled schedules.
	EnabledOnly bool
	// DueBefore restricts the result to schedules with a NextRunAt at
	// or before the given instant. Zero means no due filter.
	DueBefore time.Time
}

// Store defines the persistence contract for schedules.
type Store interface {
	// CreateSchedule persists a new schedule.
	CreateSchedule(ctx context.Context, s *Schedule) error

	// GetSchedule retrieves a schedule by ID.
	GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*Schedule, error)

	// UpdateSchedule persists changes to an existing schedule.
	UpdateSchedule(ctx context.Context, s *Schedule) error

	// DeleteSchedule removes a schedule by ID.
	DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error

	// ListSchedules returns schedules matching the given options,
	// ordered by creation time.
	ListSchedules(ctx context.Context, opts ListOpts) ([]*Schedule, error)

	// ClaimSchedule attempts to claim a due schedule for firing. The
	// claim succeeds only when the stored NextRunAt still equals
	// expectedNext (compare-and-swap) and no unexpired claim is held by
	// another worker. On success the claim is recorded with the given
	// TTL. Two workers sweeping concurrently therefore cannot both
	// claim the same (schedule, firing instant).
	ClaimSchedule(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID, expectedNext time.Time, ttl time.Duration) (bool, error)

	// ReleaseSchedule drops the worker's claim, if it still holds one.
	ReleaseSchedule(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID) error

	// MarkScheduleFired records a firing: LastRunAt is set to firedAt
	// and NextRunAt to next (nil when the cron has no further match).
	MarkScheduleFired(ctx context.Context, scheduleID id.ScheduleID, firedAt time.Time, next *time.Time) error
}
