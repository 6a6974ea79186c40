// Package schedule manages cron- and event-triggered schedules: the
// registry that maintains fire-time metadata and the sweeper that claims
// and fires due schedules.
package schedule

import (
	"time"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/id"
)

// Schedule is a rule that starts new executions of a recipe, triggered
// either by a cron expression or by a named event. Exactly one of Cron
// and EventTrigger is non-empty. NextRunAt is derived from Cron and is
// nil whenever Cron is empty.
type Schedule struct {
	recipeflow.Entity

	ID           id.ScheduleID `json:"id"`
	RecipeID     id.RecipeID   `json:"recipe_id"`
	Name         string        `json:"name"`
	Cron         string        `json:"cron,omitempty"`
	EventTrigger string        `json:"event_trigger,omitempty"`
	Enabled      bool          `json:"enabled"`
	LastRunAt    *time.Time    `json:"last_run_at,omitempty"`
	NextRunAt    *time.Time    `json:"next_run_at,omitempty"`

	// LockedBy and LockedUntil implement the sweep claim so that two
	// concurrent sweep workers cannot both fire the same instant.
	LockedBy    string     `json:"locked_by,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// Due reports whether the schedule should fire at or before now.
func (s *Schedule) Due(now time.Time) bool {
	return s.Enabled && s.NextRunAt != nil && !s.NextRunAt.After(now)
}

// Clone returns a copy with its own timestamp pointers.
func (s *Schedule) Clone() *Schedule {
	cp := *s
	if s.LastRunAt != nil {
		v := *s.LastRunAt
		cp.LastRunAt = &v
	}
	if s.NextRunAt != nil {
		v := *s.NextRunAt
		cp.NextRunAt = &v
	}
	if s.LockedUntil != nil {
		v := *s.LockedUntil
		cp.LockedUntil = &v
	}
	return &cp
}
