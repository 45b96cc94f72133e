// Package telemetry provides logging, tracing and metrics for simulation runs.
//
// Logging uses zerolog. NewTelemetry installs the configured logger as the
// global zerolog logger, which the pipeline packages log through:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Tracing uses OpenTelemetry with an OTLP gRPC, stdout or no-op exporter.
// Each run becomes a span with one child span per command step.
//
// Metrics use Prometheus with a private registry:
//
//	daylight_runs_started_total{project}
//	daylight_runs_completed_total{status}
//	daylight_run_duration_seconds{status}
//	daylight_steps_executed_total{stage,status}
//	daylight_step_duration_seconds{stage,program}
//	daylight_errors_total{class,code}
//	daylight_cache_lookups_total{kind,result}
//	daylight_sun_matrix_builds_total{reused}
//	daylight_suns_retained_total
//	daylight_suns_skipped_total
//
// Metrics satisfies the cache and sun matrix recorder interfaces, and
// PipelineObserver plugs tracing and metrics into the runner:
//
//	runner := engine.NewRunner(executor, engine.WithObserver(tel.Observer()))
//	recipe.Recorder = tel.Metrics
package telemetry
