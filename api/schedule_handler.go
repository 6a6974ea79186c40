package api

import (
	"net/http"
	"time"

	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/schedule"
)

type createScheduleRequest struct {
	RecipeID     string `json:"recipe_id"`
	Name         string `json:"name"`
	Cron         string `json:"cron,omitempty"`
	EventTrigger string `json:"event_trigger,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

func (a *API) listSchedules(w http.ResponseWriter, r *http.Request) {
	opts := schedule.ListOpts{
		EventTrigger: r.URL.Query().Get("event_trigger"),
		EnabledOnly:  r.URL.Query().Get("enabled") == "true",
	}
	if raw := r.URL.Query().Get("recipe_id"); raw != "" {
		recipeID, err := id.ParseRecipeID(raw)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid recipe ID")
			return
		}
		opts.RecipeID = recipeID
	}
	if raw := r.URL.Query().Get("due_before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid due_before timestamp")
			return
		}
		opts.DueBefore = t
	}

	list, err := a.eng.Schedules().List(r.Context(), opts)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, list)
}

func (a *API) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	recipeID, err := id.ParseRecipeID(req.RecipeID)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid recipe ID")
		return
	}

	// New schedules are enabled unless the request says otherwise.
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	s, err := a.eng.Schedules().Create(r.Context(), recipeID, req.Name, req.Cron, req.EventTrigger, enabled)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, s)
}

func (a *API) getSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := id.ParseScheduleID(r.PathValue("scheduleID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid schedule ID")
		return
	}

	s, err := a.eng.Schedules().Get(r.Context(), scheduleID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, s)
}

func (a *API) updateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := id.ParseScheduleID(r.PathValue("scheduleID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid schedule ID")
		return
	}

	var patch schedule.Patch
	if err = decodeJSON(r, &patch); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	s, err := a.eng.Schedules().Update(r.Context(), userID(r), scheduleID, patch)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, s)
}

func (a *API) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := id.ParseScheduleID(r.PathValue("scheduleID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid schedule ID")
		return
	}

	if err = a.eng.Schedules().Delete(r.Context(), userID(r), scheduleID); err != nil {
		a.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) enableSchedule(w http.ResponseWriter, r *http.Request) {
	a.setScheduleEnabled(w, r, true)
}

func (a *API) disableSchedule(w http.ResponseWriter, r *http.Request) {
	a.setScheduleEnabled(w, r, false)
}

func (a *API) setScheduleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	scheduleID, err := id.ParseScheduleID(r.PathValue("scheduleID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid schedule ID")
		return
	}

	s, err := a.eng.Schedules().Update(r.Context(), userID(r), scheduleID, schedule.Patch{Enabled: &enabled})
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, s)
}
