// Package hook defines the extension system for RecipeFlow.
//
// Extensions are notified of lifecycle events and can react to them —
// recording metrics, emitting webhooks, writing audit logs, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnExecutionCompleted(ctx context.Context, ex *execution.Execution, elapsed time.Duration) error {
//	    log.Printf("execution %s completed in %s", ex.ID, elapsed)
//	    return nil
//	}
//
// # Execution Lifecycle Hooks
//
//   - [ExecutionStarted] — an execution began running
//   - [StepCompleted] — a step finished successfully
//   - [StepFailed] — a step failed with no retries remaining
//   - [StepRetrying] — a step failed but will be retried
//   - [ExecutionCompleted] — an execution finished successfully
//   - [ExecutionFailed] — an execution failed terminally
//   - [ExecutionPaused] — an execution was paused or parked for approval
//   - [ExecutionResumed] — a paused execution resumed running
//
// # Other Hooks
//
//   - [ScheduleFired] — a schedule was triggered and an execution started
//   - [Shutdown] — the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package hook
