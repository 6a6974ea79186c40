package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace, so one
// bad executor cannot take down the engine's run loop. The resulting
// error feeds the step's on-error policy like any other failure.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, executionID id.ExecutionID, step *recipe.Step, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("step executor panicked",
					slog.String("execution_id", executionID.String()),
					slog.String("step_id", step.ID.String()),
					slog.String("step_name", step.Name),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in step %s: %v", step.Name, r)
			}
		}()
		return next(ctx)
	}
}
