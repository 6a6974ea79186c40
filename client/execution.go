package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/id"
)

// ExecutionListOpts filters ListExecutions.
type ExecutionListOpts struct {
	Status   execution.Status
	RecipeID id.RecipeID
	Limit    int
	Offset   int
}

// AddArtifactRequest is the payload for AddArtifact.
type AddArtifactRequest struct {
	StepID  id.StepID              `json:"step_id,omitempty"`
	Type    execution.ArtifactType `json:"type"`
	Name    string                 `json:"name"`
	Content string                 `json:"content"`
}

// StartExecution starts a synchronous execution of a recipe. The call
// returns once the execution reaches a terminal or parked state.
func (c *Client) StartExecution(ctx context.Context, recipeID id.RecipeID, execContext map[string]any) (*execution.Execution, error) {
	return c.startExecution(ctx, recipeID, execContext, false)
}

// StartExecutionAsync starts an execution and returns as soon as it is
// persisted; the run loop continues on the server.
func (c *Client) StartExecutionAsync(ctx context.Context, recipeID id.RecipeID, execContext map[string]any) (*execution.Execution, error) {
	return c.startExecution(ctx, recipeID, execContext, true)
}

func (c *Client) startExecution(ctx context.Context, recipeID id.RecipeID, execContext map[string]any, async bool) (*execution.Execution, error) {
	path := "/v1/recipes/" + recipeID.String() + "/executions"
	q := url.Values{}
	if async {
		q.Set("async", "true")
	}

	body := map[string]any{}
	if len(execContext) > 0 {
		body["context"] = execContext
	}

	var out execution.Execution
	if err := c.do(ctx, http.MethodPost, path, q, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetExecution retrieves an execution snapshot, artifacts included.
func (c *Client) GetExecution(ctx context.Context, executionID id.ExecutionID) (*execution.Snapshot, error) {
	var out execution.Snapshot
	if err := c.do(ctx, http.MethodGet, "/v1/executions/"+executionID.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListExecutions lists executions matching opts.
func (c *Client) ListExecutions(ctx context.Context, opts ExecutionListOpts) ([]*execution.Execution, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if !opts.RecipeID.IsNil() {
		q.Set("recipe_id", opts.RecipeID.String())
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var out []*execution.Execution
	if err := c.do(ctx, http.MethodGet, "/v1/executions", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PauseExecution pauses a running execution.
func (c *Client) PauseExecution(ctx context.Context, executionID id.ExecutionID) (*execution.Execution, error) {
	return c.control(ctx, executionID, "pause", nil)
}

// ResumeExecution resumes a paused execution.
func (c *Client) ResumeExecution(ctx context.Context, executionID id.ExecutionID) (*execution.Execution, error) {
	return c.control(ctx, executionID, "resume", nil)
}

// ApproveExecution approves an execution parked at a human approval
// step and resumes it.
func (c *Client) ApproveExecution(ctx context.Context, executionID id.ExecutionID) (*execution.Execution, error) {
	return c.control(ctx, executionID, "approve", nil)
}

// RejectExecution rejects an execution parked at a human approval step,
// failing it with the given reason.
func (c *Client) RejectExecution(ctx context.Context, executionID id.ExecutionID, reason string) (*execution.Execution, error) {
	return c.control(ctx, executionID, "reject", map[string]string{"reason": reason})
}

// CancelExecution cancels a non-terminal execution.
func (c *Client) CancelExecution(ctx context.Context, executionID id.ExecutionID) (*execution.Execution, error) {
	return c.control(ctx, executionID, "cancel", nil)
}

// CompleteExecution forces a non-terminal execution to a terminal
// state. An empty errMsg completes it; a non-empty one fails it.
func (c *Client) CompleteExecution(ctx context.Context, executionID id.ExecutionID, errMsg string) (*execution.Execution, error) {
	var body any
	if errMsg != "" {
		body = map[string]string{"error": errMsg}
	}
	return c.control(ctx, executionID, "complete", body)
}

func (c *Client) control(ctx context.Context, executionID id.ExecutionID, action string, body any) (*execution.Execution, error) {
	var out execution.Execution
	path := "/v1/executions/" + executionID.String() + "/" + action
	if err := c.do(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListArtifacts lists the artifact trail of an execution.
func (c *Client) ListArtifacts(ctx context.Context, executionID id.ExecutionID) ([]*execution.Artifact, error) {
	var out []*execution.Artifact
	path := "/v1/executions/" + executionID.String() + "/artifacts"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddArtifact appends an artifact to an execution's audit trail.
func (c *Client) AddArtifact(ctx context.Context, executionID id.ExecutionID, req AddArtifactRequest) (*execution.Artifact, error) {
	var out execution.Artifact
	path := "/v1/executions/" + executionID.String() + "/artifacts"
	if err := c.do(ctx, http.MethodPost, path, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
