package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/schedule"
)

// CreateScheduleRequest is the payload for CreateSchedule. Exactly one
// of Cron or EventTrigger must be set.
type CreateScheduleRequest struct {
	RecipeID     id.RecipeID `json:"recipe_id"`
	Name         string      `json:"name"`
	Cron         string      `json:"cron,omitempty"`
	EventTrigger string      `json:"event_trigger,omitempty"`
	Enabled      *bool       `json:"enabled,omitempty"`
}

// ScheduleListOpts filters ListSchedules.
type ScheduleListOpts struct {
	RecipeID     id.RecipeID
	EventTrigger string
	EnabledOnly  bool
	DueBefore    time.Time
}

// CreateSchedule creates a schedule on the server.
func (c *Client) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*schedule.Schedule, error) {
	var out schedule.Schedule
	if err := c.do(ctx, http.MethodPost, "/v1/schedules", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSchedule retrieves a schedule by ID.
func (c *Client) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	var out schedule.Schedule
	if err := c.do(ctx, http.MethodGet, "/v1/schedules/"+scheduleID.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSchedules lists schedules matching opts.
func (c *Client) ListSchedules(ctx context.Context, opts ScheduleListOpts) ([]*schedule.Schedule, error) {
	q := url.Values{}
	if !opts.RecipeID.IsNil() {
		q.Set("recipe_id", opts.RecipeID.String())
	}
	if opts.EventTrigger != "" {
		q.Set("event_trigger", opts.EventTrigger)
	}
	if opts.EnabledOnly {
		q.Set("enabled", "true")
	}
	if !opts.DueBefore.IsZero() {
		q.Set("due_before", opts.DueBefore.Format(time.RFC3339))
	}

	var out []*schedule.Schedule
	if err := c.do(ctx, http.MethodGet, "/v1/schedules", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateSchedule applies a partial update to a schedule.
func (c *Client) UpdateSchedule(ctx context.Context, scheduleID id.ScheduleID, patch schedule.Patch) (*schedule.Schedule, error) {
	var out schedule.Schedule
	if err := c.do(ctx, http.MethodPatch, "/v1/schedules/"+scheduleID.String(), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSchedule removes a schedule.
func (c *Client) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	return c.do(ctx, http.MethodDelete, "/v1/schedules/"+scheduleID.String(), nil, nil, nil)
}

// EnableSchedule turns a schedule on.
func (c *Client) EnableSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	var out schedule.Schedule
	if err := c.do(ctx, http.MethodPost, "/v1/schedules/"+scheduleID.String()+"/enable", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DisableSchedule turns a schedule off.
func (c *Client) DisableSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	var out schedule.Schedule
	if err := c.do(ctx, http.MethodPost, "/v1/schedules/"+scheduleID.String()+"/disable", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
