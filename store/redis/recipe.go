package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
)

// ── JSON model for KV storage ──

type recipeEntity struct {
	ID          string        `json:"id"`
	Scope       string        `json:"scope"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Steps       []recipe.Step `json:"steps"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func toRecipeEntity(r *recipe.Recipe) *recipeEntity {
	return &recipeEntity{
		ID:          r.ID.String(),
		Scope:       r.Scope,
		Name:        r.Name,
		Description: r.Description,
		Steps:       r.Steps,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromRecipeEntity(e *recipeEntity) (*recipe.Recipe, error) {
	rID, err := id.ParseRecipeID(e.ID)
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: parse recipe id: %w", err)
	}

	return &recipe.Recipe{
		Entity: recipeflow.Entity{
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		},
		ID:          rID,
		Scope:       e.Scope,
		Name:        e.Name,
		Description: e.Description,
		Steps:       e.Steps,
	}, nil
}

// CreateRecipe persists a new recipe.
func (s *Store) CreateRecipe(ctx context.Context, r *recipe.Recipe) error {
	rID := r.ID.String()
	key := recipeKey(rID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("recipeflow/redis: create recipe check: %w", err)
	}
	if exists {
		return recipeflow.ErrRecipeExists
	}

	if setErr := s.setEntity(ctx, key, toRecipeEntity(r)); setErr != nil {
		return fmt.Errorf("recipeflow/redis: create recipe set: %w", setErr)
	}
	if err = s.rdb.SAdd(ctx, recipeIDsKey, rID).Err(); err != nil {
		return fmt.Errorf("recipeflow/redis: create recipe index: %w", err)
	}
	return nil
}

// GetRecipe retrieves a recipe by ID.
func (s *Store) GetRecipe(ctx context.Context, recipeID id.RecipeID) (*recipe.Recipe, error) {
	var e recipeEntity
	if err := s.getEntity(ctx, recipeKey(recipeID.String()), &e); err != nil {
		if isNotFound(err) {
			return nil, recipeflow.ErrRecipeNotFound
		}
		return nil, fmt.Errorf("recipeflow/redis: get recipe: %w", err)
	}
	return fromRecipeEntity(&e)
}

// UpdateRecipe persists changes to an existing recipe.
func (s *Store) UpdateRecipe(ctx context.Context, r *recipe.Recipe) error {
	key := recipeKey(r.ID.String())
	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("recipeflow/redis: update recipe check: %w", err)
	}
	if !exists {
		return recipeflow.ErrRecipeNotFound
	}

	e := toRecipeEntity(r)
	e.UpdatedAt = now()
	if err = s.setEntity(ctx, key, e); err != nil {
		return fmt.Errorf("recipeflow/redis: update recipe set: %w", err)
	}
	return nil
}

// DeleteRecipe removes a recipe by ID.
func (s *Store) DeleteRecipe(ctx context.Context, recipeID id.RecipeID) error {
	rID := recipeID.String()
	key := recipeKey(rID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("recipeflow/redis: delete recipe check: %w", err)
	}
	if !exists {
		return recipeflow.ErrRecipeNotFound
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, recipeIDsKey, rID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recipeflow/redis: delete recipe: %w", err)
	}
	return nil
}

// ListRecipes returns recipes matching the given options, ordered by
// creation time.
func (s *Store) ListRecipes(ctx context.Context, opts recipe.ListOpts) ([]*recipe.Recipe, error) {
	ids, err := s.rdb.SMembers(ctx, recipeIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("recipeflow/redis: list recipes: %w", err)
	}

	recipes := make([]*recipe.Recipe, 0, len(ids))
	for _, rID := range ids {
		var e recipeEntity
		if getErr := s.getEntity(ctx, recipeKey(rID), &e); getErr != nil {
			continue
		}
		r, convErr := fromRecipeEntity(&e)
		if convErr != nil {
			continue
		}
		if opts.Scope != "" && r.Scope != opts.Scope {
			continue
		}
		recipes = append(recipes, r)
	}

	sort.Slice(recipes, func(i, j int) bool {
		return recipes[i].CreatedAt.Before(recipes[j].CreatedAt)
	})
	return paginate(recipes, opts.Offset, opts.Limit), nil
}

// paginate applies offset and limit to a sorted result slice.
func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
