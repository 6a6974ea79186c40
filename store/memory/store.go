package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
	"github.com/recipeflow/recipeflow/schedule"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ recipe.Store    = (*Store)(nil)
	_ schedule.Store  = (*Store)(nil)
	_ execution.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu     sync.RWMutex
	closed bool

	recipes    map[string]*recipe.Recipe
	schedules  map[string]*schedule.Schedule
	executions map[string]*execution.Execution
	artifacts  map[string][]*execution.Artifact // key: execution ID
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		recipes:    make(map[string]*recipe.Recipe),
		schedules:  make(map[string]*schedule.Schedule),
		executions: make(map[string]*execution.Execution),
		artifacts:  make(map[string][]*execution.Artifact),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping succeeds until the store is closed.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return recipeflow.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Safe to call multiple times.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Recipe Store
// ──────────────────────────────────────────────────

// CreateRecipe persists a new recipe.
func (m *Store) CreateRecipe(_ context.Context, r *recipe.Recipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.recipes[key]; exists {
		return recipeflow.ErrRecipeExists
	}
	m.recipes[key] = r.Clone()
	return nil
}

// GetRecipe retrieves a recipe by ID.
func (m *Store) GetRecipe(_ context.Context, recipeID id.RecipeID) (*recipe.Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.recipes[recipeID.String()]
	if !ok {
		return nil, recipeflow.ErrRecipeNotFound
	}
	return r.Clone(), nil
}

// UpdateRecipe persists changes to an existing recipe.
func (m *Store) UpdateRecipe(_ context.Context, r *recipe.Recipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, ok := m.recipes[key]; !ok {
		return recipeflow.ErrRecipeNotFound
	}
	cp := r.Clone()
	cp.UpdatedAt = time.Now().UTC()
	m.recipes[key] = cp
	return nil
}

// DeleteRecipe removes a recipe by ID.
func (m *Store) DeleteRecipe(_ context.Context, recipeID id.RecipeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recipeID.String()
	if _, ok := m.recipes[key]; !ok {
		return recipeflow.ErrRecipeNotFound
	}
	delete(m.recipes, key)
	return nil
}

// ListRecipes returns recipes matching the given options.
func (m *Store) ListRecipes(_ context.Context, opts recipe.ListOpts) ([]*recipe.Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*recipe.Recipe, 0, len(m.recipes))
	for _, r := range m.recipes {
		if opts.Scope != "" && r.Scope != opts.Scope {
			continue
		}
		result = append(result, r.Clone())
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Schedule Store
// ──────────────────────────────────────────────────

// CreateSchedule persists a new schedule.
func (m *Store) CreateSchedule(_ context.Context, s *schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := s.ID.String()
	if _, exists := m.schedules[key]; exists {
		return recipeflow.ErrScheduleExists
	}
	m.schedules[key] = s.Clone()
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (m *Store) GetSchedule(_ context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[scheduleID.String()]
	if !ok {
		return nil, recipeflow.ErrScheduleNotFound
	}
	return s.Clone(), nil
}

// UpdateSchedule persists changes to an existing schedule.
func (m *Store) UpdateSchedule(_ context.Context, s *schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := s.ID.String()
	if _, ok := m.schedules[key]; !ok {
		return recipeflow.ErrScheduleNotFound
	}
	cp := s.Clone()
	cp.UpdatedAt = time.Now().UTC()
	m.schedules[key] = cp
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (m *Store) DeleteSchedule(_ context.Context, scheduleID id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scheduleID.String()
	if _, ok := m.schedules[key]; !ok {
		return recipeflow.ErrScheduleNotFound
	}
	delete(m.schedules, key)
	return nil
}

// ListSchedules returns schedules matching the given options.
func (m *Store) ListSchedules(_ context.Context, opts schedule.ListOpts) ([]*schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*schedule.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		if !opts.RecipeID.IsNil() && s.RecipeID.String() != opts.RecipeID.String() {
			continue
		}
		if opts.EventTrigger != "" && s.EventTrigger != opts.EventTrigger {
			continue
		}
		if opts.EnabledOnly && !s.Enabled {
			continue
		}
		if !opts.DueBefore.IsZero() {
			if s.NextRunAt == nil || s.NextRunAt.After(opts.DueBefore) {
				continue
			}
		}
		result = append(result, s.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// ClaimSchedule attempts to claim a due schedule for firing, comparing
// the stored NextRunAt against expectedNext so concurrent sweepers
// cannot both claim the same firing instant.
func (m *Store) ClaimSchedule(_ context.Context, scheduleID id.ScheduleID, workerID id.WorkerID, expectedNext time.Time, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[scheduleID.String()]
	if !ok {
		return false, recipeflow.ErrScheduleNotFound
	}

	if s.NextRunAt == nil || !s.NextRunAt.Equal(expectedNext) {
		return false, nil
	}

	now := time.Now().UTC()
	if s.LockedBy != "" && s.LockedBy != workerID.String() &&
		s.LockedUntil != nil && s.LockedUntil.After(now) {
		return false, nil
	}

	s.LockedBy = workerID.String()
	until := now.Add(ttl)
	s.LockedUntil = &until
	return true, nil
}

// ReleaseSchedule drops the worker's claim, if it still holds one.
func (m *Store) ReleaseSchedule(_ context.Context, scheduleID id.ScheduleID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[scheduleID.String()]
	if !ok {
		return recipeflow.ErrScheduleNotFound
	}
	if s.LockedBy != workerID.String() {
		return nil // not holding the claim; no-op
	}
	s.LockedBy = ""
	s.LockedUntil = nil
	return nil
}

// MarkScheduleFired records a firing.
func (m *Store) MarkScheduleFired(_ context.Context, scheduleID id.ScheduleID, firedAt time.Time, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[scheduleID.String()]
	if !ok {
		return recipeflow.ErrScheduleNotFound
	}
	fired := firedAt
	s.LastRunAt = &fired
	if next != nil {
		n := *next
		s.NextRunAt = &n
	} else {
		s.NextRunAt = nil
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// Execution Store
// ──────────────────────────────────────────────────

// CreateExecution persists a new execution.
func (m *Store) CreateExecution(_ context.Context, e *execution.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.ID.String()
	if _, exists := m.executions[key]; exists {
		return recipeflow.ErrExecutionExists
	}
	m.executions[key] = e.Clone()
	return nil
}

// GetExecution retrieves an execution by ID.
func (m *Store) GetExecution(_ context.Context, executionID id.ExecutionID) (*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.executions[executionID.String()]
	if !ok {
		return nil, recipeflow.ErrExecutionNotFound
	}
	return e.Clone(), nil
}

// UpdateExecution persists changes to an existing execution.
func (m *Store) UpdateExecution(_ context.Context, e *execution.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.ID.String()
	if _, ok := m.executions[key]; !ok {
		return recipeflow.ErrExecutionNotFound
	}
	cp := e.Clone()
	cp.UpdatedAt = time.Now().UTC()
	m.executions[key] = cp
	return nil
}

// ListExecutions returns executions matching the given options.
func (m *Store) ListExecutions(_ context.Context, opts execution.ListOpts) ([]*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*execution.Execution, 0, len(m.executions))
	for _, e := range m.executions {
		if !opts.RecipeID.IsNil() && e.RecipeID.String() != opts.RecipeID.String() {
			continue
		}
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		result = append(result, e.Clone())
	}

	// Sort by StartedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].StartedAt.Before(result[k].StartedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// AddArtifact appends an artifact to an execution's trail.
func (m *Store) AddArtifact(_ context.Context, a *execution.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := a.ExecutionID.String()
	if _, ok := m.executions[key]; !ok {
		return recipeflow.ErrExecutionNotFound
	}
	cp := *a
	m.artifacts[key] = append(m.artifacts[key], &cp)
	return nil
}

// ListArtifacts returns all artifacts for an execution in creation order.
func (m *Store) ListArtifacts(_ context.Context, executionID id.ExecutionID) ([]*execution.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.executions[executionID.String()]; !ok {
		return nil, recipeflow.ErrExecutionNotFound
	}

	stored := m.artifacts[executionID.String()]
	result := make([]*execution.Artifact, len(stored))
	for i, a := range stored {
		cp := *a
		result[i] = &cp
	}
	return result, nil
}

// paginate applies offset and limit to a sorted slice.
func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
