// Package recipeflow provides a recipe scheduling and execution engine
// for Go. A recipe is a declarative, branching sequence of typed steps;
// recipeflow turns recipes into cron- or event-triggered executions and
// drives each execution through a formal state machine with pause/resume,
// approval gates, and an immutable artifact audit trail.
//
// Recipeflow is designed as a library, not a service. Import it,
// configure a store, plug in your agent-runner and notifier
// collaborators, and put whatever transport you like in front of it.
//
// # Quick Start
//
//	eng, err := engine.Build(recipeflow.DefaultConfig(), memory.New(),
//	    engine.WithAgentRunner(runner),
//	    engine.WithNotifier(notifier),
//	)
//
// # Architecture
//
// Recipeflow follows a composable store pattern where each subsystem
// (recipe, schedule, execution) defines its own store interface. A single
// backend implements all of them; memory, postgres, and redis backends
// ship in-tree.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package recipeflow
