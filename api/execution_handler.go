package api

import (
	"context"
	"net/http"

	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/id"
)

type startExecutionRequest struct {
	Context map[string]any `json:"context,omitempty"`
}

type rejectExecutionRequest struct {
	Reason string `json:"reason,omitempty"`
}

type completeExecutionRequest struct {
	Error string `json:"error,omitempty"`
}

type addArtifactRequest struct {
	StepID  string `json:"step_id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (a *API) startExecution(w http.ResponseWriter, r *http.Request) {
	recipeID, err := id.ParseRecipeID(r.PathValue("recipeID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid recipe ID")
		return
	}

	req := startExecutionRequest{}
	if r.ContentLength > 0 {
		if err = decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	// async=true returns as soon as the execution is persisted; the run
	// loop continues in the background.
	var exec *execution.Execution
	if r.URL.Query().Get("async") == "true" {
		exec, err = a.eng.Executions().StartAsync(r.Context(), userID(r), recipeID, req.Context)
	} else {
		exec, err = a.eng.Executions().Start(r.Context(), userID(r), recipeID, req.Context)
	}
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, exec)
}

func (a *API) listExecutions(w http.ResponseWriter, r *http.Request) {
	opts := execution.ListOpts{
		Status: execution.Status(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	if raw := r.URL.Query().Get("recipe_id"); raw != "" {
		recipeID, err := id.ParseRecipeID(raw)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid recipe ID")
			return
		}
		opts.RecipeID = recipeID
	}

	list, err := a.eng.Executions().List(r.Context(), userID(r), opts)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, list)
}

func (a *API) getExecution(w http.ResponseWriter, r *http.Request) {
	executionID, err := id.ParseExecutionID(r.PathValue("executionID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid execution ID")
		return
	}

	snap, err := a.eng.Executions().Get(r.Context(), userID(r), executionID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, snap)
}

// controlOp is the shared shape of the pause/resume/approve/cancel
// engine calls.
type controlOp func(ctx context.Context, userID string, executionID id.ExecutionID) (*execution.Execution, error)

func (a *API) controlExecution(w http.ResponseWriter, r *http.Request, op controlOp) {
	executionID, err := id.ParseExecutionID(r.PathValue("executionID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid execution ID")
		return
	}

	exec, err := op(r.Context(), userID(r), executionID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, exec)
}

func (a *API) pauseExecution(w http.ResponseWriter, r *http.Request) {
	a.controlExecution(w, r, a.eng.Executions().Pause)
}

func (a *API) resumeExecution(w http.ResponseWriter, r *http.Request) {
	a.controlExecution(w, r, a.eng.Executions().Resume)
}

func (a *API) approveExecution(w http.ResponseWriter, r *http.Request) {
	a.controlExecution(w, r, a.eng.Executions().Approve)
}

func (a *API) cancelExecution(w http.ResponseWriter, r *http.Request) {
	a.controlExecution(w, r, a.eng.Executions().Cancel)
}

func (a *API) completeExecution(w http.ResponseWriter, r *http.Request) {
	executionID, err := id.ParseExecutionID(r.PathValue("executionID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid execution ID")
		return
	}

	req := completeExecutionRequest{}
	if r.ContentLength > 0 {
		if err = decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	exec, err := a.eng.Executions().Complete(r.Context(), userID(r), executionID, req.Error)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, exec)
}

func (a *API) rejectExecution(w http.ResponseWriter, r *http.Request) {
	executionID, err := id.ParseExecutionID(r.PathValue("executionID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid execution ID")
		return
	}

	req := rejectExecutionRequest{}
	if r.ContentLength > 0 {
		if err = decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	exec, err := a.eng.Executions().Reject(r.Context(), userID(r), executionID, req.Reason)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, exec)
}

func (a *API) listArtifacts(w http.ResponseWriter, r *http.Request) {
	executionID, err := id.ParseExecutionID(r.PathValue("executionID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid execution ID")
		return
	}

	snap, err := a.eng.Executions().Get(r.Context(), userID(r), executionID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, snap.Artifacts)
}

func (a *API) addArtifact(w http.ResponseWriter, r *http.Request) {
	executionID, err := id.ParseExecutionID(r.PathValue("executionID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid execution ID")
		return
	}

	var req addArtifactRequest
	if err = decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	stepID := id.Nil
	if req.StepID != "" {
		if stepID, err = id.ParseStepID(req.StepID); err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid step ID")
			return
		}
	}

	art, err := a.eng.Executions().AddArtifact(r.Context(), userID(r), executionID, stepID,
		execution.ArtifactType(req.Type), req.Name, req.Content)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, art)
}
