package commands

import (
	"fmt"
	"os"
	"time"

	"cbvault/pkg/types"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Upload a file or directory tree and print its address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		ctx := cmd.Context()
		target := args[0]
		start := time.Now()

		info, err := os.Stat(target)
		if err != nil {
			return err
		}

		var addr types.Address
		if info.IsDir() {
			m, err := CBV.Ignore(target)
			if err != nil {
				return err
			}
			addr, err = CBV.StoreFor(m).UploadTree(ctx, target)
			if err != nil {
				return err
			}
		} else {
			addr, err = CBV.Store.UploadFile(ctx, target)
			if err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "✅ Added %s in %s\n", target, time.Since(start).Round(time.Millisecond))
		fmt.Fprintln(cmd.OutOrStdout(), addr)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
}
