package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/changeguard/changeguard/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past evaluation runs",
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "changeguard.db", "SQLite database for run history")

	cmd.AddCommand(newHistoryListCommand(&dbPath))
	cmd.AddCommand(newHistoryShowCommand(&dbPath))
	cmd.AddCommand(newHistoryPruneCommand(&dbPath))

	return cmd
}

// openHistoryStore opens and migrates the history database.
func openHistoryStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func newHistoryListCommand(dbPath *string) *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openHistoryStore(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTATUS\tVIOLATIONS\tRESOURCES\tRULES\tEVALUATED AT")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, r.Status, r.Violations, r.ResourceCount, r.RuleCount,
					r.EvaluatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	return cmd
}

func newHistoryShowCommand(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its violations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openHistoryStore(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			violations, err := store.ListViolationsByRun(ctx, run.ID)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Run        *stores.EvaluationRun     `json:"run"`
					Violations []*stores.StoredViolation `json:"violations"`
				}{run, violations})
			}

			fmt.Printf("Run %s (%s)\n", run.ID, run.Status)
			fmt.Printf("  change set: %s\n", run.ChangeSetPath)
			fmt.Printf("  evaluated:  %s\n", run.EvaluatedAt.Format(time.RFC3339))
			fmt.Printf("  resources:  %d, rules: %d, violations: %d\n",
				run.ResourceCount, run.RuleCount, run.Violations)
			for _, v := range violations {
				fmt.Printf("  %s  %s  %s: %s\n", v.Severity, v.RuleID, v.Address, v.Message)
			}
			return nil
		},
	}
	return cmd
}

func newHistoryPruneCommand(dbPath *string) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openHistoryStore(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.PruneRuns(ctx, keep)
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d run(s), kept at most %d\n", removed, keep)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 50, "number of most recent runs to keep")

	return cmd
}
