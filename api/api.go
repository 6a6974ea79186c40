// Package api exposes the recipeflow engine over HTTP.
//
// The API is a thin JSON layer over the engine's services: recipes,
// schedules, executions, and event firing. Caller identity is read from
// the X-User-Id header; put your own authentication middleware in front
// and set the header from the verified principal.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/engine"
)

// userHeader carries the caller identity. Empty means anonymous.
const userHeader = "X-User-Id"

// API wires all HTTP handlers over a recipeflow Engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the API logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API from a recipeflow Engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.register(mux)
	return mux
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/recipes", a.listRecipes)
	mux.HandleFunc("POST /v1/recipes", a.createRecipe)
	mux.HandleFunc("GET /v1/recipes/{recipeID}", a.getRecipe)
	mux.HandleFunc("PATCH /v1/recipes/{recipeID}", a.updateRecipe)
	mux.HandleFunc("DELETE /v1/recipes/{recipeID}", a.deleteRecipe)
	mux.HandleFunc("POST /v1/recipes/{recipeID}/executions", a.startExecution)

	mux.HandleFunc("GET /v1/schedules", a.listSchedules)
	mux.HandleFunc("POST /v1/schedules", a.createSchedule)
	mux.HandleFunc("GET /v1/schedules/{scheduleID}", a.getSchedule)
	mux.HandleFunc("PATCH /v1/schedules/{scheduleID}", a.updateSchedule)
	mux.HandleFunc("DELETE /v1/schedules/{scheduleID}", a.deleteSchedule)
	mux.HandleFunc("POST /v1/schedules/{scheduleID}/enable", a.enableSchedule)
	mux.HandleFunc("POST /v1/schedules/{scheduleID}/disable", a.disableSchedule)

	mux.HandleFunc("GET /v1/executions", a.listExecutions)
	mux.HandleFunc("GET /v1/executions/{executionID}", a.getExecution)
	mux.HandleFunc("POST /v1/executions/{executionID}/pause", a.pauseExecution)
	mux.HandleFunc("POST /v1/executions/{executionID}/resume", a.resumeExecution)
	mux.HandleFunc("POST /v1/executions/{executionID}/approve", a.approveExecution)
	mux.HandleFunc("POST /v1/executions/{executionID}/reject", a.rejectExecution)
	mux.HandleFunc("POST /v1/executions/{executionID}/cancel", a.cancelExecution)
	mux.HandleFunc("POST /v1/executions/{executionID}/complete", a.completeExecution)
	mux.HandleFunc("GET /v1/executions/{executionID}/artifacts", a.listArtifacts)
	mux.HandleFunc("POST /v1/executions/{executionID}/artifacts", a.addArtifact)

	mux.HandleFunc("POST /v1/events/{trigger}/fire", a.fireEvent)

	mux.HandleFunc("GET /v1/healthz", a.health)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Store().Ping(r.Context()); err != nil {
		a.writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) fireEvent(w http.ResponseWriter, r *http.Request) {
	trigger := r.PathValue("trigger")
	if trigger == "" {
		a.writeError(w, http.StatusBadRequest, "event trigger is required")
		return
	}
	if err := a.eng.FireEvent(r.Context(), trigger); err != nil {
		a.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ──────────────────────────────────────────────────
// Shared plumbing
// ──────────────────────────────────────────────────

// errorBody is the machine-readable error contract: a kind naming the
// error class plus a human-readable message.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

func userID(r *http.Request) string {
	if u := r.Header.Get(userHeader); u != "" {
		return u
	}
	return "anonymous"
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("encode response", slog.String("error", err.Error()))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, errorResponse{Error: errorBody{Kind: kindForStatus(status), Message: msg}})
}

// respondError maps recipeflow sentinel errors to HTTP statuses.
func (a *API) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recipeflow.ErrValidation), errors.Is(err, recipeflow.ErrInvalidID):
		a.writeError(w, http.StatusBadRequest, err.Error())
	case isNotFound(err):
		a.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, recipeflow.ErrInvalidTransition), isConflict(err):
		a.writeError(w, http.StatusConflict, err.Error())
	default:
		a.logger.Error("request failed", slog.String("error", err.Error()))
		a.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, recipeflow.ErrRecipeNotFound) ||
		errors.Is(err, recipeflow.ErrScheduleNotFound) ||
		errors.Is(err, recipeflow.ErrExecutionNotFound) ||
		errors.Is(err, recipeflow.ErrStepNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, recipeflow.ErrRecipeExists) ||
		errors.Is(err, recipeflow.ErrScheduleExists) ||
		errors.Is(err, recipeflow.ErrExecutionExists)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
