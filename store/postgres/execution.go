package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/id"
)

// CreateExecution persists a new execution. Returns an error if the ID
// already exists.
func (s *Store) CreateExecution(ctx context.Context, e *execution.Execution) error {
	execCtx, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("recipeflow/postgres: marshal execution context: %w", err)
	}

	var currentStep *string
	if e.CurrentStepID != nil {
		v := e.CurrentStepID.String()
		currentStep = &v
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO recipeflow_executions (
			id, recipe_id, status, current_step_id, context, error,
			started_at, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID.String(), e.RecipeID.String(), string(e.Status), currentStep,
		execCtx, nilIfEmpty(e.Error), e.StartedAt, e.CompletedAt,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return recipeflow.ErrExecutionExists
		}
		return fmt.Errorf("recipeflow/postgres: create execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *Store) GetExecution(ctx context.Context, executionID id.ExecutionID) (*execution.Execution, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, recipe_id, status, current_step_id, context, error,
			started_at, completed_at, created_at, updated_at
		FROM recipeflow_executions
		WHERE id = $1`,
		executionID.String(),
	)

	e, err := scanExecution(row)
	if err != nil {
		if isNoRows(err) {
			return nil, recipeflow.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("recipeflow/postgres: get execution: %w", err)
	}
	return e, nil
}

// UpdateExecution persists changes to an existing execution.
func (s *Store) UpdateExecution(ctx context.Context, e *execution.Execution) error {
	execCtx, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("recipeflow/postgres: marshal execution context: %w", err)
	}

	var currentStep *string
	if e.CurrentStepID != nil {
		v := e.CurrentStepID.String()
		currentStep = &v
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE recipeflow_executions SET
			status = $2, current_step_id = $3, context = $4, error = $5,
			completed_at = $6, updated_at = NOW()
		WHERE id = $1`,
		e.ID.String(), string(e.Status), currentStep, execCtx,
		nilIfEmpty(e.Error), e.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("recipeflow/postgres: update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recipeflow.ErrExecutionNotFound
	}
	return nil
}

// ListExecutions returns executions matching the given options, ordered
// by start time.
func (s *Store) ListExecutions(ctx context.Context, opts execution.ListOpts) ([]*execution.Execution, error) {
	query := `
		SELECT
			id, recipe_id, status, current_step_id, context, error,
			started_at, completed_at, created_at, updated_at
		FROM recipeflow_executions`
	var (
		args  []any
		where []string
	)

	if !opts.RecipeID.IsNil() {
		args = append(args, opts.RecipeID.String())
		where = append(where, fmt.Sprintf("recipe_id = $%d", len(args)))
	}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY started_at ASC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recipeflow/postgres: list executions: %w", err)
	}
	defer rows.Close()

	var executions []*execution.Execution
	for rows.Next() {
		e, scanErr := scanExecution(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("recipeflow/postgres: scan execution row: %w", scanErr)
		}
		executions = append(executions, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("recipeflow/postgres: iterate execution rows: %w", err)
	}
	return executions, nil
}

// AddArtifact appends an artifact to an execution's audit trail.
func (s *Store) AddArtifact(ctx context.Context, a *execution.Artifact) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recipeflow_artifacts (
			id, execution_id, step_id, type, name, content, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID.String(), a.ExecutionID.String(), a.StepID.String(),
		string(a.Type), a.Name, a.Content, a.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return recipeflow.ErrExecutionNotFound
		}
		return fmt.Errorf("recipeflow/postgres: add artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns all artifacts for an execution in creation order.
func (s *Store) ListArtifacts(ctx context.Context, executionID id.ExecutionID) ([]*execution.Artifact, error) {
	// The artifact trail of a missing execution is an error, not an
	// empty list.
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM recipeflow_executions WHERE id = $1)`,
		executionID.String(),
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("recipeflow/postgres: check execution exists: %w", err)
	}
	if !exists {
		return nil, recipeflow.ErrExecutionNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, execution_id, step_id, type, name, content, created_at
		FROM recipeflow_artifacts
		WHERE execution_id = $1
		ORDER BY created_at ASC, id ASC`,
		executionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("recipeflow/postgres: list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*execution.Artifact
	for rows.Next() {
		a, scanErr := scanArtifact(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("recipeflow/postgres: scan artifact row: %w", scanErr)
		}
		artifacts = append(artifacts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("recipeflow/postgres: iterate artifact rows: %w", err)
	}
	return artifacts, nil
}

// scanExecution scans a single execution row.
func scanExecution(row pgx.Row) (*execution.Execution, error) {
	var (
		e           execution.Execution
		idStr       string
		rcpStr      string
		status      string
		currentStep *string
		execCtx     []byte
		execErr     *string
	)
	err := row.Scan(
		&idStr, &rcpStr, &status, &currentStep, &execCtx, &execErr,
		&e.StartedAt, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseExecutionID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("recipeflow/postgres: parse execution id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	parsedRecipe, parseErr := id.ParseRecipeID(rcpStr)
	if parseErr != nil {
		return nil, fmt.Errorf("recipeflow/postgres: parse recipe id %q: %w", rcpStr, parseErr)
	}
	e.RecipeID = parsedRecipe

	e.Status = execution.Status(status)

	if currentStep != nil {
		stepID, stepErr := id.ParseStepID(*currentStep)
		if stepErr != nil {
			return nil, fmt.Errorf("recipeflow/postgres: parse step id %q: %w", *currentStep, stepErr)
		}
		e.CurrentStepID = &stepID
	}
	if execErr != nil {
		e.Error = *execErr
	}
	if err = json.Unmarshal(execCtx, &e.Context); err != nil {
		return nil, fmt.Errorf("recipeflow/postgres: unmarshal execution context: %w", err)
	}

	return &e, nil
}

// scanArtifact scans a single artifact row.
func scanArtifact(row pgx.Row) (*execution.Artifact, error) {
	var (
		a       execution.Artifact
		idStr   string
		execStr string
		stepStr string
		typ     string
	)
	err := row.Scan(&idStr, &execStr, &stepStr, &typ, &a.Name, &a.Content, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseArtifactID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("recipeflow/postgres: parse artifact id %q: %w", idStr, parseErr)
	}
	a.ID = parsedID

	parsedExec, parseErr := id.ParseExecutionID(execStr)
	if parseErr != nil {
		return nil, fmt.Errorf("recipeflow/postgres: parse execution id %q: %w", execStr, parseErr)
	}
	a.ExecutionID = parsedExec

	parsedStep, parseErr := id.ParseStepID(stepStr)
	if parseErr != nil {
		return nil, fmt.Errorf("recipeflow/postgres: parse step id %q: %w", stepStr, parseErr)
	}
	a.StepID = parsedStep

	a.Type = execution.ArtifactType(typ)

	return &a, nil
}
