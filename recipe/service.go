package recipe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/recipeflow/recipeflow"
	"github.com/recipeflow/recipeflow/access"
	"github.com/recipeflow/recipeflow/id"
)

// Patch is a partial recipe update. Nil fields keep their stored value;
// clearing a field requires an explicit empty value. A non-nil Steps
// slice replaces the stored steps wholesale (there is no partial step
// editing); nil leaves them untouched.
type Patch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Scope       *string `json:"scope,omitempty"`
	Steps       []Step  `json:"steps,omitempty"`
}

// Service provides authorized recipe CRUD. Authorization is delegated
// entirely to the access.Checker collaborator; the service touches the
// store only once the caller is cleared, and reports denial as
// not-found.
type Service struct {
	store   Store
	checker access.Checker
	logger  *slog.Logger
}

// NewService creates a recipe service.
func NewService(store Store, checker access.Checker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, checker: checker, logger: logger}
}

// Create validates and persists a new recipe. The caller's ownership
// grant is the collaborator's concern, not the store's.
func (s *Service) Create(ctx context.Context, scope, name, description string, steps []Step) (*Recipe, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: recipe name is required", recipeflow.ErrValidation)
	}
	steps = CloneSteps(steps)
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}

	r := &Recipe{
		Entity:      recipeflow.NewEntity(),
		ID:          id.NewRecipeID(),
		Scope:       scope,
		Name:        name,
		Description: description,
		Steps:       steps,
	}
	if err := s.store.CreateRecipe(ctx, r); err != nil {
		return nil, fmt.Errorf("create recipe %q: %w", name, err)
	}

	s.logger.Info("recipe created",
		slog.String("recipe_id", r.ID.String()),
		slog.String("name", r.Name),
		slog.Int("steps", len(r.Steps)),
	)
	return r.Clone(), nil
}

// Get returns a recipe the user may view.
func (s *Service) Get(ctx context.Context, userID string, recipeID id.RecipeID) (*Recipe, error) {
	if err := s.authorize(ctx, userID, recipeID, access.RoleViewer); err != nil {
		return nil, err
	}

	r, err := s.store.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

// List returns the recipes in the given scope that the user may view.
func (s *Service) List(ctx context.Context, userID string, opts ListOpts) ([]*Recipe, error) {
	all, err := s.store.ListRecipes(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}

	visible := make([]*Recipe, 0, len(all))
	for _, r := range all {
		d, checkErr := s.checker.CheckAccess(ctx, r.ID, userID, access.RoleViewer)
		if checkErr != nil {
			return nil, fmt.Errorf("check access for recipe %s: %w", r.ID, checkErr)
		}
		if d.Allowed {
			visible = append(visible, r.Clone())
		}
	}
	return visible, nil
}

// Update applies a partial update with preserve-if-omitted semantics.
func (s *Service) Update(ctx context.Context, userID string, recipeID id.RecipeID, patch Patch) (*Recipe, error) {
	if err := s.authorize(ctx, userID, recipeID, access.RoleEditor); err != nil {
		return nil, err
	}

	r, err := s.store.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, fmt.Errorf("%w: recipe name cannot be cleared", recipeflow.ErrValidation)
		}
		r.Name = *patch.Name
	}
	if patch.Description != nil {
		r.Description = *patch.Description
	}
	if patch.Scope != nil {
		r.Scope = *patch.Scope
	}
	if patch.Steps != nil {
		steps := CloneSteps(patch.Steps)
		if err := ValidateSteps(steps); err != nil {
			return nil, err
		}
		r.Steps = steps
	}

	if err := s.store.UpdateRecipe(ctx, r); err != nil {
		return nil, fmt.Errorf("update recipe %s: %w", recipeID, err)
	}

	s.logger.Info("recipe updated", slog.String("recipe_id", recipeID.String()))
	return r.Clone(), nil
}

// Delete removes a recipe. Requires the owner role.
func (s *Service) Delete(ctx context.Context, userID string, recipeID id.RecipeID) error {
	if err := s.authorize(ctx, userID, recipeID, access.RoleOwner); err != nil {
		return err
	}

	if err := s.store.DeleteRecipe(ctx, recipeID); err != nil {
		return err
	}

	s.logger.Info("recipe deleted", slog.String("recipe_id", recipeID.String()))
	return nil
}

// authorize maps denial to not-found so a caller cannot distinguish a
// recipe they may not see from one that does not exist.
func (s *Service) authorize(ctx context.Context, userID string, recipeID id.RecipeID, required access.Role) error {
	d, err := s.checker.CheckAccess(ctx, recipeID, userID, required)
	if err != nil {
		return fmt.Errorf("check access for recipe %s: %w", recipeID, err)
	}
	if !d.Allowed {
		return recipeflow.ErrRecipeNotFound
	}
	return nil
}
