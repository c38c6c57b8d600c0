package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/changeguard/changeguard/pkg/changeset"
	"github.com/changeguard/changeguard/pkg/policy"
	"github.com/changeguard/changeguard/pkg/rule"
	"github.com/changeguard/changeguard/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var (
		rulePaths     []string
		useBuiltins   bool
		workers       int
		metricsListen string
		traceExporter string
		traceEndpoint string
	)

	cmd := &cobra.Command{
		Use:   "watch <change-set>",
		Short: "Re-evaluate a change set whenever its rules change",
		Long: `Evaluate a change set, then keep watching the rule paths and
re-evaluate after every rule edit.

Intended for policy authoring: leave the watcher running while iterating
on rule files and see the verdict update. Reloads are debounced; a broken
rule file keeps the previous rule set active. Prometheus metrics and
OpenTelemetry traces can be enabled for longer sessions.`,
		Example: `  # Watch custom rules against a plan
  changeguard watch plan.json --rules ./policies

  # Expose metrics while watching
  changeguard watch plan.json --rules ./policies --metrics-listen :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			changeSetPath := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if len(rulePaths) == 0 {
				rulePaths = cfg.Rules.Paths
			}
			if !cmd.Flags().Changed("builtin") {
				useBuiltins = cfg.Rules.Builtin
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Evaluation.Workers
			}
			if len(rulePaths) == 0 {
				return fmt.Errorf("watch needs --rules paths to watch")
			}

			telCfg := cfg.ToTelemetryConfig(cmd.Root().Version)
			if verbose {
				telCfg.Logging.Level = "debug"
			}
			if metricsListen != "" {
				telCfg.Metrics.Enabled = true
				telCfg.Metrics.ListenAddress = metricsListen
			}
			if traceExporter != "" {
				telCfg.Tracing.Enabled = true
				telCfg.Tracing.Exporter = traceExporter
				telCfg.Tracing.Endpoint = traceEndpoint
			}
			tel, err := telemetry.NewTelemetry(telCfg)
			if err != nil {
				return fmt.Errorf("initializing telemetry: %w", err)
			}
			defer func() { _ = tel.Shutdown(cmd.Context()) }()
			if err := tel.StartMetricsServer(); err != nil {
				return fmt.Errorf("starting metrics server: %w", err)
			}

			parser := changeset.NewParser(log.Logger)
			cs, err := parser.ParseFile(changeSetPath)
			if err != nil {
				tel.Metrics.ChangeSetParsed("error")
				return fmt.Errorf("parsing change set: %w", err)
			}
			tel.Metrics.ChangeSetParsed("ok")

			engine := policy.NewEngine(log.Logger,
				policy.WithWorkers(workers),
				policy.WithMetrics(tel.Metrics),
				policy.WithTracer(tel.Tracer),
			)

			loader := rule.NewLoader(log.Logger)
			loadAndEvaluate := func(loaded []rule.Rule) error {
				ruleSet := loaded
				if useBuiltins {
					ruleSet = append(rule.Builtins(), loaded...)
				}
				if err := engine.LoadRules(ruleSet); err != nil {
					tel.Metrics.RuleReload("error")
					return err
				}
				tel.Metrics.RuleReload("ok")

				report, err := engine.Evaluate(ctx, cs)
				if err != nil {
					return err
				}
				tel.Metrics.ResourcesEvaluated(report.ResourceCount)
				if jsonOutput {
					return report.RenderJSON(os.Stdout)
				}
				return report.RenderText(os.Stdout)
			}

			initial, err := loader.LoadFromPaths(ctx, rulePaths)
			if err != nil {
				return fmt.Errorf("loading rules: %w", err)
			}
			if err := loadAndEvaluate(initial); err != nil {
				return err
			}

			// Reload failures are logged by the loader and leave the last
			// good rule set in place.
			if err := loader.Watch(ctx, rulePaths, loadAndEvaluate); err != nil {
				return fmt.Errorf("watching rule paths: %w", err)
			}
			defer func() { _ = loader.StopWatching() }()

			log.Info().Strs("paths", rulePaths).Msg("Watching for rule changes, Ctrl-C to stop")
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&rulePaths, "rules", "r", nil, "rule files or directories to watch")
	cmd.Flags().BoolVar(&useBuiltins, "builtin", false, "include the built-in rule set")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "number of evaluation workers")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "", "trace exporter (stdout, otlp)")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP trace collector endpoint")

	return cmd
}
