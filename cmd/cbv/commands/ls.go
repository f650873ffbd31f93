package commands

import (
	"fmt"

	"cbvault/pkg/types"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls <addr>",
	Short: "List the links of a directory object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		addr, err := types.ParseAddress(args[0])
		if err != nil {
			return err
		}

		dir, err := CBV.Store.FetchDirectory(cmd.Context(), addr)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, dir.Len())
		for _, l := range dir.Links() {
			rows = append(rows, []string{l.Name, humanize.IBytes(l.Size), l.Target.String()})
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, renderTable([]string{"Name", "Size", "Address"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
		fmt.Fprintf(out, "%d links, %s\n", dir.Len(), humanize.IBytes(dir.TotalSize()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
