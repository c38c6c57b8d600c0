// Package telemetry provides observability instrumentation for ChangeGuard.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), and metrics (Prometheus) into a unified system for
// monitoring and debugging evaluation runs.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "changeguard"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("policy-engine")
//	logger = logger.WithRunID("run-123").WithResourceAddress("aws_s3_bucket.data")
//	logger.Info("Starting evaluation")
//	logger.WithError(err).Error("Evaluation failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into run flow and performance:
//
//	ctx, span := tel.Tracer.StartRunSpan(ctx, runID)
//	defer span.End()
//
//	span.SetAttributes(telemetry.AttrRunStatus.String("passed"))
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track engine behavior:
//
//	tel.Metrics.RunStarted()
//	tel.Metrics.RunCompleted("passed", duration)
//	tel.Metrics.ViolationFound("bucket-versioning-enabled", "error")
//	tel.Metrics.SetRulesLoaded(6)
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
// # Common Metrics
//
// Key metrics exposed:
//
//   - changeguard_runs_started_total
//   - changeguard_runs_completed_total{status}
//   - changeguard_run_duration_seconds{status}
//   - changeguard_violations_total{rule,severity}
//   - changeguard_resources_evaluated_total
//   - changeguard_rules_loaded
//   - changeguard_rule_reloads_total{status}
//   - changeguard_change_sets_parsed_total{status}
//   - changeguard_active_runs
package telemetry
