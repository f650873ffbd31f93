package commands

import (
	"fmt"
	"strconv"

	"cbvault/pkg/types"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var refCmd = &cobra.Command{
	Use:   "ref [name [addr]]",
	Short: "List refs, show one, or point one at an address",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		if CBV.Refs == nil {
			return fmt.Errorf("refs need the metadata database (meta.enabled)")
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		switch len(args) {
		case 0:
			list, err := CBV.Refs.List(ctx)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No refs yet.")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, r := range list {
				rows = append(rows, []string{r.Name, r.Root, strconv.FormatInt(r.Version, 10), humanize.Time(r.UpdatedAt)})
			}
			fmt.Fprintln(out, renderTable([]string{"Ref", "Root", "Version", "Updated"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
			return nil

		case 1:
			addr, _, err := CBV.Refs.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, addr)
			return nil

		default:
			addr, err := types.ParseAddress(args[1])
			if err != nil {
				return err
			}
			if err := CBV.Refs.Set(ctx, args[0], addr); err != nil {
				return err
			}
			fmt.Fprintf(out, "📌 %s -> %s\n", args[0], addr)
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(refCmd)
}
