package execution

import (
	"context"

	"github.com/recipeflow/recipeflow/id"
)

// ListOpts controls filtering and pagination for execution list queries.
type ListOpts struct {
	// RecipeID filters by recipe. Nil ID means all recipes.
	RecipeID id.RecipeID
	// Status filters by execution status. Empty means all statuses.
	Status Status
	// Limit is the maximum number of executions to return. Zero means
	// no limit.
	Limit int
	// Offset is the number of executions to skip.
	Offset int
}

// Store defines the persistence contract for executions and their
// artifact trails.
type Store interface {
	// CreateExecution persists a new execution.
	CreateExecution(ctx context.Context, e *Execution) error

	// GetExecution retrieves an execution by ID.
	GetExecution(ctx context.Context, executionID id.ExecutionID) (*Execution, error)

	// UpdateExecution persists changes to an existing execution.
	UpdateExecution(ctx context.Context, e *Execution) error

	// ListExecutions returns executions matching the given options,
	// ordered by start time.
	ListExecutions(ctx context.Context, opts ListOpts) ([]*Execution, error)

	// AddArtifact appends an artifact to an execution's audit trail.
	// Artifacts are never updated or deleted.
	AddArtifact(ctx context.Context, a *Artifact) error

	// ListArtifacts returns all artifacts for an execution in creation
	// order.
	ListArtifacts(ctx context.Context, executionID id.ExecutionID) ([]*Artifact, error)
}
