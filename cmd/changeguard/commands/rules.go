package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/changeguard/changeguard/pkg/rule"
)

func newRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate policy rules",
	}

	cmd.AddCommand(newRulesValidateCommand())
	cmd.AddCommand(newRulesListCommand())

	return cmd
}

func newRulesValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate rule files without evaluating anything",
		Long: `Parse and validate rule files or directories.

Validation covers the document schema, path syntax, and negation safety:
a predicate that negates an existential binding it does not enclose is
rejected here rather than at evaluation time.`,
		Example: `  # Validate a single rule file
  changeguard rules validate policies/s3.yaml

  # Validate every rule file under a directory
  changeguard rules validate ./policies`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := rule.NewLoader(log.Logger)
			rules, err := loader.LoadFromPaths(cmd.Context(), args)
			if err != nil {
				return err
			}
			fmt.Printf("OK: %d rule(s) valid\n", len(rules))
			return nil
		},
	}
	return cmd
}

func newRulesListCommand() *cobra.Command {
	var (
		rulePaths   []string
		useBuiltins bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules from the built-in set and rule files",
		Example: `  # List the built-in rules
  changeguard rules list --builtin

  # List custom rules as JSON
  changeguard rules list --rules ./policies --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(rulePaths) == 0 && !useBuiltins {
				useBuiltins = true
			}

			var ruleSet []rule.Rule
			if useBuiltins {
				ruleSet = rule.Builtins()
			}
			if len(rulePaths) > 0 {
				loader := rule.NewLoader(log.Logger)
				loaded, err := loader.LoadFromPaths(cmd.Context(), rulePaths)
				if err != nil {
					return err
				}
				ruleSet = append(ruleSet, loaded...)
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(ruleSet)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSEVERITY\tTARGET TYPE\tENABLED\tDESCRIPTION")
			for _, r := range ruleSet {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", r.ID, r.Severity, r.TargetType, r.Enabled, r.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringSliceVarP(&rulePaths, "rules", "r", nil, "rule files or directories")
	cmd.Flags().BoolVar(&useBuiltins, "builtin", false, "include the built-in rule set")

	return cmd
}
