package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/id"
)

// ── JSON model for KV storage ──

type executionEntity struct {
	ID            string         `json:"id"`
	RecipeID      string         `json:"recipe_id"`
	Status        string         `json:"status"`
	CurrentStepID string         `json:"current_step_id"`
	Context       map[string]any `json:"context,omitempty"`
	Error         string         `json:"error"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func toExecutionEntity(e *execution.Execution) *executionEntity {
	ent := &executionEntity{
		ID:          e.ID.String(),
		RecipeID:    e.RecipeID.String(),
		Status:      string(e.Status),
		Context:     e.Context,
		Error:       e.Error,
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.CurrentStepID != nil {
		ent.CurrentStepID = e.CurrentStepID.String()
	}
	return ent
}

func fromExecutionEntity(ent *executionEntity) (*execution.Execution, error) {
	eID, err := id.ParseExecutionID(ent.ID)
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: parse execution id: %w", err)
	}
	rID, err := id.ParseRecipeID(ent.RecipeID)
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: parse recipe id: %w", err)
	}

	e := &execution.Execution{
		Entity: recipeflow.Entity{
			CreatedAt: ent.CreatedAt,
			UpdatedAt: ent.UpdatedAt,
		},
		ID:          eID,
		RecipeID:    rID,
		Status:      execution.Status(ent.Status),
		Context:     ent.Context,
		Error:       ent.Error,
		StartedAt:   ent.StartedAt,
		CompletedAt: ent.CompletedAt,
	}
	if ent.CurrentStepID != "" {
		stepID, stepErr := id.ParseStepID(ent.CurrentStepID)
		if stepErr != nil {
			return nil, fmt.Errorf("recipeflow/redis: parse step id: %w", stepErr)
		}
		e.CurrentStepID = &stepID
	}
	return e, nil
}

type artifactEntity struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	StepID      string    `json:"step_id"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

func fromArtifactEntity(ent *artifactEntity) (*execution.Artifact, error) {
	aID, err := id.ParseArtifactID(ent.ID)
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: parse artifact id: %w", err)
	}
	eID, err := id.ParseExecutionID(ent.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: parse execution id: %w", err)
	}
	stepID, err := id.ParseStepID(ent.StepID)
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: parse step id: %w", err)
	}

	return &execution.Artifact{
		ID:          aID,
		ExecutionID: eID,
		StepID:      stepID,
		Type:        execution.ArtifactType(ent.Type),
		Name:        ent.Name,
		Content:     ent.Content,
		CreatedAt:   ent.CreatedAt,
	}, nil
}

// CreateExecution persists a new execution.
func (s *Store) CreateExecution(ctx context.Context, e *execution.Execution) error {
	eID := e.ID.String()
	key := executionKey(eID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("recipeflow/redis: create execution check: %w", err)
	}
	if exists {
		return recipeflow.ErrExecutionExists
	}

	if setErr := s.setEntity(ctx, key, toExecutionEntity(e)); setErr != nil {
		return fmt.Errorf("recipeflow/redis: create execution set: %w", setErr)
	}
	if err = s.rdb.SAdd(ctx, executionIDsKey, eID).Err(); err != nil {
		return fmt.Errorf("recipeflow/redis: create execution index: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *Store) GetExecution(ctx context.Context, executionID id.ExecutionID) (*execution.Execution, error) {
	var ent executionEntity
	if err := s.getEntity(ctx, executionKey(executionID.String()), &ent); err != nil {
		if isNotFound(err) {
			return nil, recipeflow.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("recipeflow/redis: get execution: %w", err)
	}
	return fromExecutionEntity(&ent)
}

// UpdateExecution persists changes to an existing execution.
func (s *Store) UpdateExecution(ctx context.Context, e *execution.Execution) error {
	key := executionKey(e.ID.String())
	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("recipeflow/redis: update execution check: %w", err)
	}
	if !exists {
		return recipeflow.ErrExecutionNotFound
	}

	ent := toExecutionEntity(e)
	ent.UpdatedAt = now()
	if err = s.setEntity(ctx, key, ent); err != nil {
		return fmt.Errorf("recipeflow/redis: update execution set: %w", err)
	}
	return nil
}

// ListExecutions returns executions matching the given options, ordered
// by start time.
func (s *Store) ListExecutions(ctx context.Context, opts execution.ListOpts) ([]*execution.Execution, error) {
	ids, err := s.rdb.SMembers(ctx, executionIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: list executions: %w", err)
	}

	executions := make([]*execution.Execution, 0, len(ids))
	for _, eID := range ids {
		var ent executionEntity
		if getErr := s.getEntity(ctx, executionKey(eID), &ent); getErr != nil {
			continue
		}
		e, convErr := fromExecutionEntity(&ent)
		if convErr != nil {
			continue
		}
		if !opts.RecipeID.IsNil() && e.RecipeID.String() != opts.RecipeID.String() {
			continue
		}
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		executions = append(executions, e)
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.Before(executions[j].StartedAt)
	})
	return paginate(executions, opts.Offset, opts.Limit), nil
}

// AddArtifact appends an artifact to an execution's trail. The trail is
// a Redis List; RPUSH preserves creation order.
func (s *Store) AddArtifact(ctx context.Context, a *execution.Artifact) error {
	eID := a.ExecutionID.String()

	exists, err := s.entityExists(ctx, executionKey(eID))
	if err != nil {
		return fmt.Errorf("recipeflow/redis: add artifact check: %w", err)
	}
	if !exists {
		return recipeflow.ErrExecutionNotFound
	}

	ent := &artifactEntity{
		ID:          a.ID.String(),
		ExecutionID: eID,
		StepID:      a.StepID.String(),
		Type:        string(a.Type),
		Name:        a.Name,
		Content:     a.Content,
		CreatedAt:   a.CreatedAt,
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("recipeflow/redis: marshal artifact: %w", err)
	}
	if err = s.rdb.RPush(ctx, artifactsKey(eID), data).Err(); err != nil {
		return fmt.Errorf("recipeflow/redis: add artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns all artifacts for an execution in creation order.
func (s *Store) ListArtifacts(ctx context.Context, executionID id.ExecutionID) ([]*execution.Artifact, error) {
	eID := executionID.String()

	exists, err := s.entityExists(ctx, executionKey(eID))
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: list artifacts check: %w", err)
	}
	if !exists {
		return nil, recipeflow.ErrExecutionNotFound
	}

	raws, err := s.rdb.LRange(ctx, artifactsKey(eID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: list artifacts: %w", err)
	}

	artifacts := make([]*execution.Artifact, 0, len(raws))
	for _, raw := range raws {
		var ent artifactEntity
		if err = json.Unmarshal([]byte(raw), &ent); err != nil {
			return nil, fmt.Errorf("recipeflow/redis: unmarshal artifact: %w", err)
		}
		a, convErr := fromArtifactEntity(&ent)
		if convErr != nil {
			return nil, convErr
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}
