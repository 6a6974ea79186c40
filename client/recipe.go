package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
)

// CreateRecipeRequest is the payload for CreateRecipe.
type CreateRecipeRequest struct {
	Scope       string        `json:"scope,omitempty"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Steps       []recipe.Step `json:"steps"`
}

// RecipeListOpts filters ListRecipes.
type RecipeListOpts struct {
	Scope  string
	Limit  int
	Offset int
}

// CreateRecipe creates a recipe on the server.
func (c *Client) CreateRecipe(ctx context.Context, req CreateRecipeRequest) (*recipe.Recipe, error) {
	var out recipe.Recipe
	if err := c.do(ctx, http.MethodPost, "/v1/recipes", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRecipe retrieves a recipe by ID.
func (c *Client) GetRecipe(ctx context.Context, recipeID id.RecipeID) (*recipe.Recipe, error) {
	var out recipe.Recipe
	if err := c.do(ctx, http.MethodGet, "/v1/recipes/"+recipeID.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRecipes lists recipes matching opts.
func (c *Client) ListRecipes(ctx context.Context, opts RecipeListOpts) ([]*recipe.Recipe, error) {
	q := url.Values{}
	if opts.Scope != "" {
		q.Set("scope", opts.Scope)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var out []*recipe.Recipe
	if err := c.do(ctx, http.MethodGet, "/v1/recipes", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateRecipe applies a partial update to a recipe.
func (c *Client) UpdateRecipe(ctx context.Context, recipeID id.RecipeID, patch recipe.Patch) (*recipe.Recipe, error) {
	var out recipe.Recipe
	if err := c.do(ctx, http.MethodPatch, "/v1/recipes/"+recipeID.String(), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRecipe removes a recipe.
func (c *Client) DeleteRecipe(ctx context.Context, recipeID id.RecipeID) error {
	return c.do(ctx, http.MethodDelete, "/v1/recipes/"+recipeID.String(), nil, nil, nil)
}
