package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/schedule"
)

// ── JSON model for KV storage ──

// scheduleEntity mirrors schedule.Schedule with millisecond Unix fields
// alongside the timestamp pointers. The claim script compares those
// numerically; Lua cannot parse RFC 3339 strings.
type scheduleEntity struct {
	ID                string     `json:"id"`
	RecipeID          string     `json:"recipe_id"`
	Name              string     `json:"name"`
	Cron              string     `json:"cron"`
	EventTrigger      string     `json:"event_trigger"`
	Enabled           bool       `json:"enabled"`
	LastRunAt         *time.Time `json:"last_run_at,omitempty"`
	NextRunAt         *time.Time `json:"next_run_at,omitempty"`
	NextRunUnixMS     int64      `json:"next_run_unix_ms"`
	LockedBy          string     `json:"locked_by"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	LockedUntilUnixMS int64      `json:"locked_until_unix_ms"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toScheduleEntity(sched *schedule.Schedule) *scheduleEntity {
	e := &scheduleEntity{
		ID:           sched.ID.String(),
		RecipeID:     sched.RecipeID.String(),
		Name:         sched.Name,
		Cron:         sched.Cron,
		EventTrigger: sched.EventTrigger,
		Enabled:      sched.Enabled,
		LastRunAt:    sched.LastRunAt,
		NextRunAt:    sched.NextRunAt,
		LockedBy:     sched.LockedBy,
		LockedUntil:  sched.LockedUntil,
		CreatedAt:    sched.CreatedAt,
		UpdatedAt:    sched.UpdatedAt,
	}
	if sched.NextRunAt != nil {
		e.NextRunUnixMS = sched.NextRunAt.UnixMilli()
	}
	if sched.LockedUntil != nil {
		e.LockedUntilUnixMS = sched.LockedUntil.UnixMilli()
	}
	return e
}

func fromScheduleEntity(e *scheduleEntity) (*schedule.Schedule, error) {
	sID, err := id.ParseScheduleID(e.ID)
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: parse schedule id: %w", err)
	}
	rID, err := id.ParseRecipeID(e.RecipeID)
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: parse recipe id: %w", err)
	}

	return &schedule.Schedule{
		Entity: recipeflow.Entity{
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		},
		ID:           sID,
		RecipeID:     rID,
		Name:         e.Name,
		Cron:         e.Cron,
		EventTrigger: e.EventTrigger,
		Enabled:      e.Enabled,
		LastRunAt:    e.LastRunAt,
		NextRunAt:    e.NextRunAt,
		LockedBy:     e.LockedBy,
		LockedUntil:  e.LockedUntil,
	}, nil
}

// claimScript implements the compare-and-swap claim atomically: the
// claim succeeds only when the stored firing instant still equals the
// expected one and no unexpired foreign claim is held.
//
// KEYS[1] schedule entity key
// ARGV[1] expected next_run_unix_ms
// ARGV[2] worker id
// ARGV[3] now unix ms
// ARGV[4] locked_until RFC 3339
// ARGV[5] locked_until unix ms
// ARGV[6] updated_at RFC 3339
//
// Returns -1 when the schedule is missing, 0 when the claim is lost,
// 1 on success.
var claimScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return -1
end
local e = cjson.decode(raw)
if tonumber(e.next_run_unix_ms) == 0 or tonumber(e.next_run_unix_ms) ~= tonumber(ARGV[1]) then
  return 0
end
if e.locked_by ~= '' and e.locked_by ~= ARGV[2] and tonumber(e.locked_until_unix_ms) > tonumber(ARGV[3]) then
  return 0
end
e.locked_by = ARGV[2]
e.locked_until = ARGV[4]
e.locked_until_unix_ms = tonumber(ARGV[5])
e.updated_at = ARGV[6]
redis.call('SET', KEYS[1], cjson.encode(e))
return 1
`)

// CreateSchedule persists a new schedule.
func (s *Store) CreateSchedule(ctx context.Context, sched *schedule.Schedule) error {
	sID := sched.ID.String()
	key := scheduleKey(sID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("recipeflow/redis: create schedule check: %w", err)
	}
	if exists {
		return recipeflow.ErrScheduleExists
	}

	if setErr := s.setEntity(ctx, key, toScheduleEntity(sched)); setErr != nil {
		return fmt.Errorf("recipeflow/redis: create schedule set: %w", setErr)
	}
	if err = s.rdb.SAdd(ctx, scheduleIDsKey, sID).Err(); err != nil {
		return fmt.Errorf("recipeflow/redis: create schedule index: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	var e scheduleEntity
	if err := s.getEntity(ctx, scheduleKey(scheduleID.String()), &e); err != nil {
		if isNotFound(err) {
			return nil, recipeflow.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("recipeflow/redis: get schedule: %w", err)
	}
	return fromScheduleEntity(&e)
}

// UpdateSchedule persists changes to an existing schedule.
func (s *Store) UpdateSchedule(ctx context.Context, sched *schedule.Schedule) error {
	key := scheduleKey(sched.ID.String())
	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("recipeflow/redis: update schedule check: %w", err)
	}
	if !exists {
		return recipeflow.ErrScheduleNotFound
	}

	e := toScheduleEntity(sched)
	e.UpdatedAt = now()
	if err = s.setEntity(ctx, key, e); err != nil {
		return fmt.Errorf("recipeflow/redis: update schedule set: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	sID := scheduleID.String()
	key := scheduleKey(sID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("recipeflow/redis: delete schedule check: %w", err)
	}
	if !exists {
		return recipeflow.ErrScheduleNotFound
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, scheduleIDsKey, sID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recipeflow/redis: delete schedule: %w", err)
	}
	return nil
}

// ListSchedules returns schedules matching the given options, ordered
// by creation time.
func (s *Store) ListSchedules(ctx context.Context, opts schedule.ListOpts) ([]*schedule.Schedule, error) {
	ids, err := s.rdb.SMembers(ctx, scheduleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: list schedules: %w", err)
	}

	schedules := make([]*schedule.Schedule, 0, len(ids))
	for _, sID := range ids {
		var e scheduleEntity
		if getErr := s.getEntity(ctx, scheduleKey(sID), &e); getErr != nil {
			continue
		}
		sched, convErr := fromScheduleEntity(&e)
		if convErr != nil {
			continue
		}
		if !opts.RecipeID.IsNil() && sched.RecipeID.String() != opts.RecipeID.String() {
			continue
		}
		if opts.EventTrigger != "" && sched.EventTrigger != opts.EventTrigger {
			continue
		}
		if opts.EnabledOnly && !sched.Enabled {
			continue
		}
		if !opts.DueBefore.IsZero() {
			if sched.NextRunAt == nil || sched.NextRunAt.After(opts.DueBefore) {
				continue
			}
		}
		schedules = append(schedules, sched)
	}

	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].CreatedAt.Before(schedules[j].CreatedAt)
	})
	return schedules, nil
}

// ClaimSchedule attempts to claim a due schedule for firing. The check
// and the lock write run atomically in a Lua script.
func (s *Store) ClaimSchedule(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID, expectedNext time.Time, ttl time.Duration) (bool, error) {
	t := now()
	until := t.Add(ttl)

	res, err := claimScript.Run(ctx, s.rdb,
		[]string{scheduleKey(scheduleID.String())},
		expectedNext.UnixMilli(),
		workerID.String(),
		t.UnixMilli(),
		until.Format(time.RFC3339Nano),
		until.UnixMilli(),
		t.Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return false, fmt.Errorf("recipeflow/redis: claim schedule: %w", err)
	}

	switch res {
	case -1:
		return false, recipeflow.ErrScheduleNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

// ReleaseSchedule drops the worker's claim, if it still holds one.
func (s *Store) ReleaseSchedule(ctx context.Context, scheduleID id.ScheduleID, workerID id.WorkerID) error {
	key := scheduleKey(scheduleID.String())

	var e scheduleEntity
	if err := s.getEntity(ctx, key, &e); err != nil {
		if isNotFound(err) {
			return recipeflow.ErrScheduleNotFound
		}
		return fmt.Errorf("recipeflow/redis: release schedule get: %w", err)
	}

	if e.LockedBy != workerID.String() {
		return nil // not our claim, no-op
	}

	e.LockedBy = ""
	e.LockedUntil = nil
	e.LockedUntilUnixMS = 0
	e.UpdatedAt = now()
	if err := s.setEntity(ctx, key, &e); err != nil {
		return fmt.Errorf("recipeflow/redis: release schedule set: %w", err)
	}
	return nil
}

// MarkScheduleFired records a firing: LastRunAt is set to firedAt and
// NextRunAt to next (nil when the cron has no further match).
func (s *Store) MarkScheduleFired(ctx context.Context, scheduleID id.ScheduleID, firedAt time.Time, next *time.Time) error {
	key := scheduleKey(scheduleID.String())

	var e scheduleEntity
	if err := s.getEntity(ctx, key, &e); err != nil {
		if isNotFound(err) {
			return recipeflow.ErrScheduleNotFound
		}
		return fmt.Errorf("recipeflow/redis: mark schedule fired get: %w", err)
	}

	e.LastRunAt = &firedAt
	e.NextRunAt = next
	e.NextRunUnixMS = 0
	if next != nil {
		e.NextRunUnixMS = next.UnixMilli()
	}
	e.UpdatedAt = now()
	if err := s.setEntity(ctx, key, &e); err != nil {
		return fmt.Errorf("recipeflow/redis: mark schedule fired set: %w", err)
	}
	return nil
}
