// Package store defines the aggregate persistence interface. Each
// subsystem (recipe, schedule, execution) defines its own store
// interface; the composite Store composes them all. Backends: Postgres,
// Redis, and Memory.
package store

import (
	"context"

	"github.com/recipeflow/recipeflow/execution"
	"github.com/recipeflow/recipeflow/recipe"
	"github.com/recipeflow/recipeflow/schedule"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, redis, memory) implements all of them.
type Store interface {
	recipe.Store
	schedule.Store
	execution.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
