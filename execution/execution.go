// Package execution defines execution and artifact models, the
// execution store interface, the step executor contract, and the engine
// that drives executions through their lifecycle.
package execution

import (
	"fmt"
	"time"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/id"
)

// Status is the lifecycle state of an execution.
type Status string

// Execution statuses. Pending exists only between construction and the
// first persist; it is never externally observable.
const (
	StatusPending          Status = "pending"
	StatusRunning          Status = "running"
	StatusPaused           Status = "paused"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Execution is one concrete, stateful run of a recipe.
// CompletedAt is set if and only if the status is terminal.
type Execution struct {
	recipeflow.Entity

	ID            id.ExecutionID `json:"id"`
	RecipeID      id.RecipeID    `json:"recipe_id"`
	Status        Status         `json:"status"`
	CurrentStepID *id.StepID     `json:"current_step_id,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	Error         string         `json:"error,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so callers can mutate without racing
// against stored state.
func (e *Execution) Clone() *Execution {
	cp := *e
	if e.CurrentStepID != nil {
		v := *e.CurrentStepID
		cp.CurrentStepID = &v
	}
	if e.CompletedAt != nil {
		v := *e.CompletedAt
		cp.CompletedAt = &v
	}
	if e.Context != nil {
		cp.Context = make(map[string]any, len(e.Context))
		for k, v := range e.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}

// ArtifactType classifies what an artifact holds.
type ArtifactType string

// Artifact types.
const (
	ArtifactFile    ArtifactType = "file"
	ArtifactLog     ArtifactType = "log"
	ArtifactSummary ArtifactType = "summary"
	ArtifactOutput  ArtifactType = "output"
)

// KnownArtifactType reports whether t is a supported artifact type.
func KnownArtifactType(t ArtifactType) bool {
	switch t {
	case ArtifactFile, ArtifactLog, ArtifactSummary, ArtifactOutput:
		return true
	default:
		return false
	}
}

// Artifact is an immutable record of output produced by a step. The
// engine only ever appends artifacts; they survive after the owning
// execution reaches a terminal state.
type Artifact struct {
	ID          id.ArtifactID  `json:"id"`
	ExecutionID id.ExecutionID `json:"execution_id"`
	StepID      id.StepID      `json:"step_id"`
	Type        ArtifactType   `json:"type"`
	Name        string         `json:"name"`
	Content     string         `json:"content"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Snapshot is a point-in-time read of an execution and its artifact
// trail. Two consecutive reads of an unmodified execution yield
// identical snapshots.
type Snapshot struct {
	Execution *Execution  `json:"execution"`
	Artifacts []*Artifact `json:"artifacts"`
}

// TransitionError reports an illegal lifecycle transition. The
// execution is left untouched; the error names the current and required
// states so the caller can see exactly why the call conflicted.
type TransitionError struct {
	ExecutionID id.ExecutionID
	Current     Status
	Required    Status
}

// Error implements error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("execution %s is %q, requires %q", e.ExecutionID, e.Current, e.Required)
}

// Unwrap makes the error match recipeflow.ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return recipeflow.ErrInvalidTransition
}
