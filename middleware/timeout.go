package middleware

import (
	"context"
	"time"

	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
)

// Timeout returns middleware that enforces a per-step execution deadline.
// A context.WithTimeout wraps each executor call; when the deadline is
// exceeded the context is cancelled and the executor should return
// context.DeadlineExceeded. A non-positive duration disables the bound.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ id.ExecutionID, _ *recipe.Step, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
