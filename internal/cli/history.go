package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mir/fiddle-test-cov/internal/db"
	"github.com/mir/fiddle-test-cov/internal/pipeline"
)

var (
	historyPhase string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded coverage runs, or the results of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyPhase != "" {
			if _, err := pipeline.ParsePhase(historyPhase); err != nil {
				return err
			}
		}
		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := cmd.Context()
		w := cmd.OutOrStdout()

		if len(args) == 1 {
			rows, err := d.RunResults(ctx, args[0])
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintf(w, "No results recorded for run %s.\n", args[0])
				return nil
			}
			fmt.Fprintf(w, "%-30s %-26s %-10s %-10s %s\n", "REPOSITORY", "STATUS", "COVERED", "STATEMENTS", "PERCENT")
			for _, r := range rows {
				fmt.Fprintf(w, "%-30s %-26s %-10s %-10s %s\n",
					r.Repository, r.Status, optInt(r.CoveredLines), optInt(r.NumStatements), optPct(r.PercentCovered))
			}
			return nil
		}

		runs, err := d.ListRuns(ctx, historyPhase, historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}
		fmt.Fprintf(w, "%-36s %-10s %-20s %-9s %s\n", "RUN", "PHASE", "GENERATED", "COMPLETED", "IMAGE")
		fmt.Fprintf(w, "%-36s %-10s %-20s %-9s %s\n",
			strings.Repeat("-", 36), strings.Repeat("-", 10), strings.Repeat("-", 20),
			strings.Repeat("-", 9), strings.Repeat("-", 5))
		for _, r := range runs {
			fmt.Fprintf(w, "%-36s %-10s %-20s %-9s %s\n",
				r.RunID, r.Phase, pipeline.Timestamp(r.GeneratedAt),
				fmt.Sprintf("%d/%d", r.CompletedCount, r.RepoCount), r.IsolationImage)
		}
		return nil
	},
}

// openDB connects to the configured history database.
func openDB(cmd *cobra.Command) (*db.DB, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	if s.DatabaseURL == "" {
		return nil, errors.New("no database configured; set database_url, COVDIFF_DATABASE_URL or --database-url")
	}
	d, err := db.Open(cmd.Context(), s.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(cmd.Context()); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func optPct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *v)
}

func init() {
	historyCmd.Flags().StringVar(&historyPhase, "phase", "", "only list runs of this phase (baseline or generated)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs to list")
}
