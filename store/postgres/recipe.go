package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
)

// CreateRecipe persists a new recipe. Returns an error if the ID
// already exists.
func (s *Store) CreateRecipe(ctx context.Context, r *recipe.Recipe) error {
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return fmt.Errorf("recipeflow/postgres: marshal steps: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO recipeflow_recipes (
			id, scope, name, description, steps, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID.String(), nilIfEmpty(r.Scope), r.Name, nilIfEmpty(r.Description),
		steps, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return recipeflow.ErrRecipeExists
		}
		return fmt.Errorf("recipeflow/postgres: create recipe: %w", err)
	}
	return nil
}

// GetRecipe retrieves a recipe by ID.
func (s *Store) GetRecipe(ctx context.Context, recipeID id.RecipeID) (*recipe.Recipe, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, scope, name, description, steps, created_at, updated_at
		FROM recipeflow_recipes
		WHERE id = $1`,
		recipeID.String(),
	)

	r, err := scanRecipe(row)
	if err != nil {
		if isNoRows(err) {
			return nil, recipeflow.ErrRecipeNotFound
		}
		return nil, fmt.Errorf("recipeflow/postgres: get recipe: %w", err)
	}
	return r, nil
}

// UpdateRecipe persists changes to an existing recipe. The steps column
// is replaced wholesale.
func (s *Store) UpdateRecipe(ctx context.Context, r *recipe.Recipe) error {
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return fmt.Errorf("recipeflow/postgres: marshal steps: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE recipeflow_recipes SET
			scope = $2, name = $3, description = $4, steps = $5, updated_at = NOW()
		WHERE id = $1`,
		r.ID.String(), nilIfEmpty(r.Scope), r.Name, nilIfEmpty(r.Description), steps,
	)
	if err != nil {
		return fmt.Errorf("recipeflow/postgres: update recipe: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recipeflow.ErrRecipeNotFound
	}
	return nil
}

// DeleteRecipe removes a recipe by ID. Schedules and executions for the
// recipe are removed by cascade.
func (s *Store) DeleteRecipe(ctx context.Context, recipeID id.RecipeID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM recipeflow_recipes WHERE id = $1`, recipeID.String())
	if err != nil {
		return fmt.Errorf("recipeflow/postgres: delete recipe: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return recipeflow.ErrRecipeNotFound
	}
	return nil
}

// ListRecipes returns recipes matching the given options, ordered by
// creation time.
func (s *Store) ListRecipes(ctx context.Context, opts recipe.ListOpts) ([]*recipe.Recipe, error) {
	query := `
		SELECT id, scope, name, description, steps, created_at, updated_at
		FROM recipeflow_recipes`
	var args []any

	if opts.Scope != "" {
		args = append(args, opts.Scope)
		query += fmt.Sprintf(" WHERE scope = $%d", len(args))
	}

	query += " ORDER BY created_at ASC"

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
		return nil, fmt.Errorf("recipeflow/postgres: list recipes: %w", err)
	}
	defer rows.Close()

	var recipes []*recipe.Recipe
	for rows.Next() {
		r, scanErr := scanRecipe(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("recipeflow/postgres: scan recipe row: %w", scanErr)
		}
		recipes = append(recipes, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("recipeflow/postgres: iterate recipe rows: %w", err)
	}
	return recipes, nil
}

// scanRecipe scans a single recipe row.
func scanRecipe(row pgx.Row) (*recipe.Recipe, error) {
	var (
		r     recipe.Recipe
		idStr string
		scope *string
		desc  *string
		steps []byte
	)
	err := row.Scan(&idStr, &scope, &r.Name, &desc, &steps, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseRecipeID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("recipeflow/postgres: parse recipe id %q: %w", idStr, parseErr)
	}
	r.ID = parsedID

	if scope != nil {
		r.Scope = *scope
	}
	if desc != nil {
		r.Description = *desc
	}
	if err = json.Unmarshal(steps, &r.Steps); err != nil {
		return nil, fmt.Errorf("recipeflow/postgres: unmarshal steps: %w", err)
	}

	return &r, nil
}
