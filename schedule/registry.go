package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/access"
	"github.com/recipeflow/recipeflow/cronexpr"
	"github.com/recipeflow/recipeflow/id"
)

// Patch is a partial schedule update. Nil fields keep their stored
// value. Setting Cron to a pointer at "" clears the cron trigger (and
// with it NextRunAt); setting it to a new expression recomputes
// NextRunAt from "now", never from the previous NextRunAt.
type Patch struct {
	Name         *string `json:"name,omitempty"`
	Cron         *string `json:"cron,omitempty"`
	EventTrigger *string `json:"event_trigger,omitempty"`
	Enabled      *bool   `json:"enabled,omitempty"`
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the registry's time source. Used in tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithHorizon sets the cron next-run search horizon.
func WithHorizon(d time.Duration) RegistryOption {
	return func(r *Registry) { r.horizon = d }
}

// Registry maintains schedules and their fire-time metadata. It never
// fires a schedule itself; the Sweeper does that.
type Registry struct {
	store   Store
	checker access.Checker
	logger  *slog.Logger
	now     func() time.Time
	horizon time.Duration
}

// NewRegistry creates a schedule registry.
func NewRegistry(store Store, checker access.Checker, logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		store:   store,
		checker: checker,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		horizon: cronexpr.DefaultHorizon,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates and persists a new schedule. Exactly one of cron and
// eventTrigger must be supplied. When cron is present, NextRunAt is
// computed from "now".
func (r *Registry) Create(ctx context.Context, recipeID id.RecipeID, name, cron, eventTrigger string, enabled bool) (*Schedule, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: schedule name is required", recipeflow.ErrValidation)
	}
	if recipeID.IsNil() {
		return nil, fmt.Errorf("%w: schedule requires a recipe", recipeflow.ErrValidation)
	}
	if cron == "" && eventTrigger == "" {
		return nil, fmt.Errorf("%w: schedule requires a cron expression or an event trigger", recipeflow.ErrValidation)
	}
	if cron != "" && eventTrigger != "" {
		return nil, fmt.Errorf("%w: schedule cannot have both a cron expression and an event trigger", recipeflow.ErrValidation)
	}

	s := &Schedule{
		Entity:       recipeflow.NewEntity(),
		ID:           id.NewScheduleID(),
		RecipeID:     recipeID,
		Name:         name,
		Cron:         cron,
		EventTrigger: eventTrigger,
		Enabled:      enabled,
	}

	if cron != "" {
		next, err := r.nextRun(cron, r.now())
		if err != nil {
			return nil, err
		}
		s.NextRunAt = next
	}

	if err := r.store.CreateSchedule(ctx, s); err != nil {
		return nil, fmt.Errorf("create schedule %q: %w", name, err)
	}

	r.logger.Info("schedule created",
		slog.String("schedule_id", s.ID.String()),
		slog.String("recipe_id", recipeID.String()),
		slog.String("cron", cron),
		slog.String("event_trigger", eventTrigger),
	)
	return s.Clone(), nil
}

// Get returns a schedule by ID.
func (r *Registry) Get(ctx context.Context, scheduleID id.ScheduleID) (*Schedule, error) {
	s, err := r.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// List returns schedules matching the options.
func (r *Registry) List(ctx context.Context, opts ListOpts) ([]*Schedule, error) {
	list, err := r.store.ListSchedules(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	out := make([]*Schedule, len(list))
	for i, s := range list {
		out[i] = s.Clone()
	}
	return out, nil
}

// Update applies a partial update. A changed cron recomputes NextRunAt
// from "now"; a cleared cron (explicit empty string) clears it.
func (r *Registry) Update(ctx context.Context, userID string, scheduleID id.ScheduleID, patch Patch) (*Schedule, error) {
	if err := r.authorize(ctx, userID, scheduleID, access.RoleEditor); err != nil {
		return nil, err
	}

	s, err := r.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, fmt.Errorf("%w: schedule name cannot be cleared", recipeflow.ErrValidation)
		}
		s.Name = *patch.Name
	}
	if patch.EventTrigger != nil {
		s.EventTrigger = *patch.EventTrigger
	}
	if patch.Enabled != nil {
		s.Enabled = *patch.Enabled
	}
	if patch.Cron != nil {
		s.Cron = *patch.Cron
		if s.Cron == "" {
			s.NextRunAt = nil
		} else {
			next, nextErr := r.nextRun(s.Cron, r.now())
			if nextErr != nil {
				return nil, nextErr
			}
			s.NextRunAt = next
		}
	}
	if s.Cron == "" && s.EventTrigger == "" {
		return nil, fmt.Errorf("%w: schedule requires a cron expression or an event trigger", recipeflow.ErrValidation)
	}
	if s.Cron != "" && s.EventTrigger != "" {
		return nil, fmt.Errorf("%w: schedule cannot have both a cron expression and an event trigger", recipeflow.ErrValidation)
	}

	if err := r.store.UpdateSchedule(ctx, s); err != nil {
		return nil, fmt.Errorf("update schedule %s: %w", scheduleID, err)
	}

	r.logger.Info("schedule updated", slog.String("schedule_id", scheduleID.String()))
	return s.Clone(), nil
}

// Delete removes a schedule. Scoped by the ownership check.
func (r *Registry) Delete(ctx context.Context, userID string, scheduleID id.ScheduleID) error {
	if err := r.authorize(ctx, userID, scheduleID, access.RoleOwner); err != nil {
		return err
	}

	if err := r.store.DeleteSchedule(ctx, scheduleID); err != nil {
		return err
	}

	r.logger.Info("schedule deleted", slog.String("schedule_id", scheduleID.String()))
	return nil
}

// nextRun parses the cron expression and computes the next firing time.
// A malformed expression is a validation error at this boundary; an
// expression with no match inside the horizon yields a nil NextRunAt.
func (r *Registry) nextRun(cron string, from time.Time) (*time.Time, error) {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recipeflow.ErrValidation, err)
	}
	next, ok := expr.NextWithin(from, r.horizon)
	if !ok {
		return nil, nil
	}
	return &next, nil
}

func (r *Registry) authorize(ctx context.Context, userID string, scheduleID id.ScheduleID, required access.Role) error {
	d, err := r.checker.CheckAccess(ctx, scheduleID, userID, required)
	if err != nil {
		return fmt.Errorf("check access for schedule %s: %w", scheduleID, err)
	}
	if !d.Allowed {
		return recipeflow.ErrScheduleNotFound
	}
	return nil
}
