package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
)

// Logging returns middleware that logs every step with its outcome and
// duration.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, executionID id.ExecutionID, step *recipe.Step, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		attrs := []any{
			slog.String("execution_id", executionID.String()),
			slog.String("step_id", step.ID.String()),
			slog.String("step_name", step.Name),
			slog.String("step_type", string(step.Type)),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			logger.Error("step failed", append(attrs, slog.Any("error", err))...)
		} else {
			logger.Info("step completed", attrs...)
		}
		return err
	}
}
