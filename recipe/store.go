package recipe

import (
	"context"

	"github.com/recipeflow/recipeflow/id"
)

// ListOpts controls filtering and pagination for recipe list queries.
type ListOpts struct {
	// Scope filters by owning scope. Empty means all scopes.
	Scope string
	// Limit is the maximum number of recipes to return. Zero means no limit.
	Limit int
	// Offset is the number of recipes to skip.
	Offset int
}

// Store defines the persistence contract for recipes.
type Store interface {
	// CreateRecipe persists a new recipe.
	CreateRecipe(ctx context.Context, r *Recipe) error

	// GetRecipe retrieves a recipe by ID.
	GetRecipe(ctx context.Context, recipeID id.RecipeID) (*Recipe, error)

	// UpdateRecipe persists changes to an existing recipe. The steps
	// slice replaces the stored one wholesale.
	UpdateRecipe(ctx context.Context, r *Recipe) error

	// DeleteRecipe removes a recipe by ID.
	DeleteRecipe(ctx context.Context, recipeID id.RecipeID) error

	// ListRecipes returns recipes matching the given options, ordered
	// by creation time.
	ListRecipes(ctx context.Context, opts ListOpts) ([]*Recipe, error)
}
