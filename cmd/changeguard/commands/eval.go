package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/changeguard/changeguard/pkg/changeset"
	"github.com/changeguard/changeguard/pkg/policy"
	"github.com/changeguard/changeguard/pkg/rule"
	"github.com/changeguard/changeguard/pkg/stores"
)

func newEvalCommand() *cobra.Command {
	var (
		rulePaths   []string
		useBuiltins bool
		workers     int
		historyPath string
	)

	cmd := &cobra.Command{
		Use:   "eval <change-set>",
		Short: "Evaluate a change set against policy rules",
		Long: `Evaluate a change set against the loaded rule set and report
violations.

The change set is the JSON plan document produced by the IaC tool. Rules
come from --rules paths (files or directories of .yaml/.yml/.json files),
from the built-in set, or both. The command exits non-zero when any rule
is violated.`,
		Example: `  # Evaluate with the built-in rules
  changeguard eval plan.json --builtin

  # Evaluate with custom rules
  changeguard eval plan.json --rules ./policies

  # Combine, record history, and emit JSON
  changeguard eval plan.json --builtin --rules ./policies \
    --history ~/.changeguard/history.db --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			changeSetPath := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			// Flags given on the command line win over the config file.
			if len(rulePaths) == 0 {
				rulePaths = cfg.Rules.Paths
			}
			if !cmd.Flags().Changed("builtin") {
				useBuiltins = cfg.Rules.Builtin
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Evaluation.Workers
			}
			if historyPath == "" && cfg.History.Enabled {
				historyPath = cfg.History.Path
			}

			if len(rulePaths) == 0 && !useBuiltins {
				return fmt.Errorf("no rules: pass --rules or --builtin")
			}

			var ruleSet []rule.Rule
			if useBuiltins {
				ruleSet = rule.Builtins()
			}
			if len(rulePaths) > 0 {
				loader := rule.NewLoader(log.Logger)
				loaded, err := loader.LoadFromPaths(ctx, rulePaths)
				if err != nil {
					return fmt.Errorf("loading rules: %w", err)
				}
				ruleSet = append(ruleSet, loaded...)
			}

			parser := changeset.NewParser(log.Logger)
			cs, err := parser.ParseFile(changeSetPath)
			if err != nil {
				return fmt.Errorf("parsing change set: %w", err)
			}

			engine := policy.NewEngine(log.Logger, policy.WithWorkers(workers))
			if err := engine.LoadRules(ruleSet); err != nil {
				return fmt.Errorf("loading rules: %w", err)
			}

			report, err := engine.Evaluate(ctx, cs)
			if err != nil {
				return fmt.Errorf("evaluating change set: %w", err)
			}

			if historyPath != "" {
				if err := recordRun(ctx, historyPath, changeSetPath, report); err != nil {
					// History is best-effort; the verdict still stands.
					log.Warn().Err(err).Msg("Failed to record run history")
				}
			}

			if jsonOutput {
				if err := report.RenderJSON(os.Stdout); err != nil {
					return err
				}
			} else {
				if err := report.RenderText(os.Stdout); err != nil {
					return err
				}
			}

			if !report.Passed {
				return fmt.Errorf("%d violation(s) found", len(report.Violations))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&rulePaths, "rules", "r", nil, "rule files or directories")
	cmd.Flags().BoolVar(&useBuiltins, "builtin", false, "include the built-in rule set")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "number of evaluation workers")
	cmd.Flags().StringVar(&historyPath, "history", "", "SQLite database for run history")

	return cmd
}

// recordRun persists a report to the run history store.
func recordRun(ctx context.Context, path, changeSetPath string, report *policy.EvaluationReport) error {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	status := stores.RunStatusFailed
	if report.Passed {
		status = stores.RunStatusPassed
	}
	run := &stores.EvaluationRun{
		ID:            report.RunID,
		ChangeSetPath: changeSetPath,
		Status:        status,
		ResourceCount: report.ResourceCount,
		RuleCount:     report.RuleCount,
		Violations:    len(report.Violations),
		Duration:      report.Duration,
		EvaluatedAt:   report.EvaluatedAt,
		CreatedAt:     time.Now().UTC(),
	}
	violations := make([]*stores.StoredViolation, 0, len(report.Violations))
	for _, v := range report.Violations {
		violations = append(violations, &stores.StoredViolation{
			RuleID:   v.RuleID,
			Severity: string(v.Severity),
			Address:  v.Address,
			Message:  v.Message,
		})
	}
	return store.CreateRun(ctx, run, violations)
}
