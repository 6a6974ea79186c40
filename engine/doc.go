// Package engine wires all recipeflow subsystems together and provides
// the primary application-level entry point.
//
// The engine package exists to break a fundamental import cycle: the
// root recipeflow package defines Entity (imported by recipe, schedule,
// and execution) and therefore cannot import those packages back.
// Engine sits above all subsystem packages and below the application
// layer.
//
// # Building an Engine
//
//	s, err := postgres.New(ctx, connString)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eng, err := engine.Build(recipeflow.DefaultConfig(), s,
//	    engine.WithAgentRunner(runner),
//	    engine.WithNotifier(notifier),
//	    engine.WithAccessChecker(checker),
//	    engine.WithHook(auditHook),
//	)
//
// # Using It
//
//	rcp, err := eng.Recipes().Create(ctx, scope, name, desc, steps)
//	sch, err := eng.Schedules().Create(ctx, rcp.ID, "nightly", "0 2 * * *", "", true)
//
//	err = eng.Start(ctx)        // launches the schedule sweeper
//	err = eng.FireEvent(ctx, "document.uploaded")
//
//	exec, err := eng.Executions().Start(ctx, userID, rcp.ID, nil)
//
// # Options
//
//   - [WithAgentRunner] — collaborator behind run_agent steps
//   - [WithNotifier] — collaborator behind notify steps
//   - [WithAccessChecker] — per-user authorization
//   - [WithBackoff] — retry delay strategy
//   - [WithHook] — register a lifecycle hook extension
//   - [WithMiddleware] — extend the per-step middleware chain
//   - [WithExecutor] — override the executor for a step type
//   - [WithTracerProvider], [WithMeterProvider] — custom OTel providers
package engine
