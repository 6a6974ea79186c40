// Package observability provides an OpenTelemetry-based metrics hook
// extension for recipeflow. The MetricsExtension implements lifecycle
// hooks to record system-wide counters for execution, step, and
// schedule events.
//
// For per-step metrics and tracing, see the middleware package:
// middleware.Metrics() and middleware.Tracing().
package observability
