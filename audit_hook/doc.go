// Package audithook is a recipeflow extension that bridges lifecycle
// events to an audit trail backend.
//
// Every execution, step, and schedule lifecycle hook emits a structured
// audit event through the [Recorder] interface. The extension assigns
// severity levels (info for normal operations, warning for retries and
// step failures, critical for terminal execution failures) and rich
// metadata (recipe ID, step name, elapsed time, errors).
//
// # Usage
//
//	eng, err := engine.Build(cfg, s,
//	    engine.WithHook(audithook.New(recorder)),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionExecutionFailed,
//	        audithook.ActionStepFailed,
//	    ),
//	)
package audithook
