package commands

import (
	"fmt"
	"io"
	"strconv"

	"cbvault/pkg/gateway"
	"cbvault/pkg/types"

	"github.com/spf13/cobra"
)

var primeCmd = &cobra.Command{
	Use:   "prime <addr>",
	Short: "Warm public gateway caches for a root and its direct children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		addr, err := types.ParseAddress(args[0])
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), CBV.Prober().Prime(cmd.Context(), addr))
		return nil
	},
}

// printSummary 打印预热结果；失败不影响退出码
func printSummary(out io.Writer, s gateway.Summary) {
	rows := make([][]string, 0, len(s.Results))
	for _, r := range s.Results {
		status := strconv.Itoa(r.Status)
		if r.Err != nil {
			status = r.Err.Error()
		}
		rows = append(rows, []string{r.URL, status, r.Duration.String()})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable([]string{"URL", "Status", "Time"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
	}
	fmt.Fprintf(out, "🌐 Primed %d URLs: %d ok, %d failed, %d skipped\n", s.Requests, s.OK, s.Failed, s.Skipped)
}

func init() {
	rootCmd.AddCommand(primeCmd)
}
