package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/schedule"
)

// CreateSchedule persists a new schedule. Returns an error if the ID
// already exists.
func (s *Store) CreateSchedule(ctx context.Context, sched *schedule.Schedule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recipeflow_schedules (
			id, recipe_id, name, cron, event_trigger, enabled,
			last_run_at, next_run_at, locked_by, locked_until,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sched.ID.String(), sched.RecipeID.String(), sched.Name,
		nilIfEmpty(sched.Cron), nilIfEmpty(sched.EventTrigger), sched.Enabled,
		sched.LastRunAt, sched.NextRunAt, nilIfEmpty(sched.LockedBy), sched.LockedUntil,
		sched.CreatedAt, sched.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return recipeflow.ErrScheduleExists
		}
		return fmt.Errorf("recipeflow/postgres: create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, recipe_id, name, cron, event_trigger, enabled,
			last_run_at, next_run_at, locked_by, locked_until,
			created_at, updated_at
		FROM recipeflow_schedules
		WHERE id = $1`,
		scheduleID.String(),
	)

	sched, err := scanSchedule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, recipeflow.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("recipeflow/postgres: get schedule: %w", err)
	}
	return sched, nil
}

// UpdateSchedule persists changes to an existing schedule.
func (s *Store) UpdateSchedule(ctx context.Context, sched *schedule.Schedule) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE recipeflow_schedules SET
			recipe_id = $2, name = $3, cron = $4, event_trigger = $5,
			enabled = $6, last_run_at = $7, next_run_at = $8,
			locked_by = $9, locked_until = $10, updated_at = NOW()
		WHERE id = $1`,
		sched.ID.String(), sched.RecipeID.String(), sched.Name,
		nilIfEmpty(sched.Cron), nilIfEmpty(sched.EventTrigger),
		sched.Enabled, sched.LastRunAt, sched.NextRunAt,
		nilIfEmpty(sched.LockedBy), sched.LockedUntil,
	)
	if err != nil {
		return fmt.Errorf("recipeflow/postgres: update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recipeflow.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM recipeflow_schedules WHERE id = $1`, scheduleID.String())
	if err != nil {
		return fmt.Errorf("recipeflow/postgres: delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recipeflow.ErrScheduleNotFound
	}
	return nil
}

// ListSchedules returns schedules matching the given options, ordered
// by creation time.
func (s *Store) ListSchedules(ctx context.Context, opts schedule.ListOpts) ([]*schedule.Schedule, error) {
	query := `
		SELECT
			id, recipe_id, name, cron, event_trigger, enabled,
			last_run_at, next_run_at, locked_by, locked_until,
			created_at, updated_at
		FROM recipeflow_schedules`
	var (
		args  []any
		where []string
	)

	if !opts.RecipeID.IsNil() {
		args = append(args, opts.RecipeID.String())
		where = append(where, fmt.Sprintf("recipe_id = $%d", len(args)))
	}
	if opts.EventTrigger != "" {
		args = append(args, opts.EventTrigger)
		where = append(where, fmt.Sprintf("event_trigger = $%d", len(args)))
	}
	if opts.EnabledOnly {
		where = append(where, "enabled")
	}
	if !opts.DueBefore.IsZero() {
		args = append(args, opts.DueBefore)
		where = append(where, fmt.Sprintf("next_run_at IS NOT NULL AND next_run_at <= $%d", len(args)))
	}

	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recipeflow/postgres: list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*schedule.Schedule
	for rows.Next() {
		sched, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("recipeflow/postgres: scan schedule row: %w", scanErr)
		}
		schedules = append(schedules, sched)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("recipeflow/postgres: iterate schedule rows: %w", err)
	}
	return schedules, nil
}

// ClaimSchedule attempts to claim a due schedule for firing. The claim
// is a conditional UPDATE: it succeeds only when the stored next_run_at
// still equals expectedNext and no unexpired foreign claim is held.
func (s *Store) ClaimSchedule(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID, expectedNext time.Time, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	until := now.Add(ttl)
	wID := workerID.String()

	tag, err := s.pool.Exec(ctx, `
		UPDATE recipeflow_schedules
		SET locked_by = $2, locked_until = $3, updated_at = NOW()
		WHERE id = $1
		  AND next_run_at = $4
		  AND (locked_by IS NULL OR locked_until < $5 OR locked_by = $2)`,
		scheduleID.String(), wID, until, expectedNext, now,
	)
	if err != nil {
		return false, fmt.Errorf("recipeflow/postgres: claim schedule: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a lost race from a missing schedule.
		var exists bool
		existErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM recipeflow_schedules WHERE id = $1)`,
			scheduleID.String(),
		).Scan(&exists)
		if existErr != nil {
			return false, fmt.Errorf("recipeflow/postgres: check schedule exists: %w", existErr)
		}
		if !exists {
			return false, recipeflow.ErrScheduleNotFound
		}
		// Another worker claimed it, or the firing instant moved on.
		return false, nil
	}

	return true, nil
}

// ReleaseSchedule drops the worker's claim, if it still holds one.
func (s *Store) ReleaseSchedule(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE recipeflow_schedules
		SET locked_by = NULL, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND locked_by = $2`,
		scheduleID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("recipeflow/postgres: release schedule: %w", err)
	}
	return nil
}

// MarkScheduleFired records a firing: last_run_at is set to firedAt and
// next_run_at to next (NULL when the cron has no further match).
func (s *Store) MarkScheduleFired(ctx context.Context, scheduleID id.ScheduleID, firedAt time.Time, next *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE recipeflow_schedules
		SET last_run_at = $2, next_run_at = $3, updated_at = NOW()
		WHERE id = $1`,
		scheduleID.String(), firedAt, next,
	)
	if err != nil {
		return fmt.Errorf("recipeflow/postgres: mark schedule fired: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recipeflow.ErrScheduleNotFound
	}
	return nil
}

// scanSchedule scans a single schedule row.
func scanSchedule(row pgx.Row) (*schedule.Schedule, error) {
	var (
		sched    schedule.Schedule
		idStr    string
		rcpStr   string
		cronExpr *string
		trigger  *string
		lockBy   *string
	)
	err := row.Scan(
		&idStr, &rcpStr, &sched.Name, &cronExpr, &trigger, &sched.Enabled,
		&sched.LastRunAt, &sched.NextRunAt, &lockBy, &sched.LockedUntil,
		&sched.CreatedAt, &sched.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseScheduleID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("recipeflow/postgres: parse schedule id %q: %w", idStr, parseErr)
	}
	sched.ID = parsedID

	parsedRecipe, parseErr := id.ParseRecipeID(rcpStr)
	if parseErr != nil {
		return nil, fmt.Errorf("recipeflow/postgres: parse recipe id %q: %w", rcpStr, parseErr)
	}
	sched.RecipeID = parsedRecipe

	if cronExpr != nil {
		sched.Cron = *cronExpr
	}
	if trigger != nil {
		sched.EventTrigger = *trigger
	}
	if lockBy != nil {
		sched.LockedBy = *lockBy
	}

	return &sched, nil
}
