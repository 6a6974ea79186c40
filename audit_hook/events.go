package audithook

// Audit event actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionExecutionStarted   = "execution.started"
	ActionExecutionCompleted = "execution.completed"
	ActionExecutionFailed    = "execution.failed"
	ActionExecutionPaused    = "execution.paused"
	ActionExecutionResumed   = "execution.resumed"
	ActionStepCompleted      = "step.completed"
	ActionStepFailed         = "step.failed"
	ActionStepRetrying       = "step.retrying"
	ActionScheduleFired      = "schedule.fired"
)

// Audit event categories group related actions.
const (
	CategoryExecution = "recipeflow.execution"
	CategoryStep      = "recipeflow.step"
	CategorySchedule  = "recipeflow.schedule"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceExecution = "execution"
	ResourceStep      = "step"
	ResourceSchedule  = "schedule"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionExecutionStarted,
		ActionExecutionCompleted,
		ActionExecutionFailed,
		ActionExecutionPaused,
		ActionExecutionResumed,
		ActionStepCompleted,
		ActionStepFailed,
		ActionStepRetrying,
		ActionScheduleFired,
	}
}
