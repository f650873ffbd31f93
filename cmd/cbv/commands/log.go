package commands

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	logRef   string
	logLimit int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent sync runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		if CBV.Repository == nil {
			return fmt.Errorf("sync history needs the metadata database (meta.enabled)")
		}
		out := cmd.OutOrStdout()

		runs, err := CBV.Repository.ListRuns(cmd.Context(), logRef, logLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No sync runs yet.")
			return nil
		}

		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			drift, err := r.DriftPaths()
			if err != nil {
				return fmt.Errorf("run %s: %w", r.ID, err)
			}
			status := "✅"
			if r.Error != "" {
				status = "❌ " + r.Error
			}
			rows = append(rows, []string{
				humanize.Time(r.StartedAt),
				r.RefName,
				shortRoot(r.ResultRoot),
				strconv.Itoa(r.Uploads),
				strconv.Itoa(r.Patches),
				strconv.Itoa(r.Skipped),
				strconv.Itoa(len(drift)),
				status,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"When", "Ref", "Root", "Uploads", "Patches", "Skipped", "Drift", "Status"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
		))
		return nil
	},
}

func shortRoot(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:8] + "…" + s[len(s)-6:]
}

func init() {
	logCmd.Flags().StringVar(&logRef, "ref", "", "only show runs for this ref")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(logCmd)
}
