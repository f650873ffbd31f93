package commands

import (
	"fmt"

	"cbvault/pkg/contentstore/embedded"
	"cbvault/pkg/types"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <addr>",
	Short: "Write a file's content to stdout (embedded store only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, addr, err := embeddedTarget(args[0])
		if err != nil {
			return err
		}
		// 二进制内容可以通过 > file.bin 重定向
		return store.Cat(cmd.Context(), addr, cmd.OutOrStdout())
	},
}

var getCmd = &cobra.Command{
	Use:   "get <addr> <dir>",
	Short: "Restore a directory tree into <dir> (embedded store only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, addr, err := embeddedTarget(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		count := 0
		err = store.Export(cmd.Context(), addr, args[1], func(path string, _ types.Address, size uint64) {
			count++
			fmt.Fprintf(out, "  📄 %s (%s)\n", path, humanize.IBytes(size))
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✅ Restored %d files into %s\n", count, args[1])
		return nil
	},
}

func embeddedTarget(arg string) (*embedded.Store, types.Address, error) {
	if err := requireApp(); err != nil {
		return nil, types.Address{}, err
	}
	store, ok := CBV.Embedded()
	if !ok {
		return nil, types.Address{}, fmt.Errorf("this command needs store.type=embedded")
	}
	addr, err := types.ParseAddress(arg)
	if err != nil {
		return nil, types.Address{}, err
	}
	return store, addr, nil
}

func init() {
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(getCmd)
}
