package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cbvault/pkg/meta"
	"cbvault/pkg/refs"
	"cbvault/pkg/syncer"
	"cbvault/pkg/types"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

var (
	syncRoot  string
	syncRef   string
	syncPrime bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <dir>",
	Short: "Patch a remote root directory so it mirrors a local directory",
	Long: `Walks <dir> and patches the remote root (--root, or the root a --ref points to)
so every local file and directory is present. Unchanged subtrees are reused,
remote entries without a local counterpart are reported but kept.

--root together with --ref only creates a new ref; an existing ref always
syncs from its own root.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		localDir := args[0]

		// 1. 确定起点
		base, version, err := resolveBase(cmd)
		if err != nil {
			return err
		}

		// 2. 同一状态目录同时只允许一个同步
		if err := os.MkdirAll(CBV.StateDir, 0o755); err != nil {
			return err
		}
		lock := flock.New(filepath.Join(CBV.StateDir, "sync.lock"))
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another sync is running (lock %s)", lock.Path())
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				CBV.Logger.Warn("failed to release sync lock", slog.String("path", lock.Path()), slog.Any("err", err))
			}
		}()

		// 3. 同步
		s, err := CBV.Syncer(localDir, printEvent(out))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "🔄 Syncing %s onto %s\n", localDir, base)
		started := time.Now()
		newRoot, syncErr := s.Sync(ctx, base, localDir)
		report := s.Report()

		// 4. 记录本次运行 (失败也记)
		recordRun(cmd, localDir, base, newRoot, report, syncErr, started)
		if syncErr != nil {
			return syncErr
		}

		// 5. 输出新根
		fmt.Fprintf(out, "✅ Synced in %s: %d uploads, %d patches, %d skipped, %d drift\n",
			time.Since(started).Round(time.Millisecond),
			report.FileUploads+report.TreeUploads, report.Patches, report.Skipped, len(report.Drift))
		printRoot(out, newRoot)

		// 6. 推进引用
		if syncRef != "" {
			if err := CBV.Refs.Advance(ctx, syncRef, newRoot, version); err != nil {
				return fmt.Errorf("sync succeeded but ref was not advanced: %w", err)
			}
			fmt.Fprintf(out, "📌 %s -> %s\n", syncRef, newRoot)
		}

		// 7. 可选：预热网关
		if syncPrime {
			printSummary(out, CBV.Prober().Prime(ctx, newRoot))
		}
		return nil
	},
}

// resolveBase 返回起始根地址和引用版本 (没有引用时为 0)
func resolveBase(cmd *cobra.Command) (types.Address, int64, error) {
	if syncRoot == "" && syncRef == "" {
		return types.Address{}, 0, fmt.Errorf("one of --root or --ref is required")
	}
	if syncRef != "" && CBV.Refs == nil {
		return types.Address{}, 0, fmt.Errorf("--ref needs the metadata database (meta.enabled)")
	}

	var (
		addr    types.Address
		version int64
	)
	if syncRef != "" {
		a, v, err := CBV.Refs.Resolve(cmd.Context(), syncRef)
		switch {
		case err == nil && syncRoot != "":
			// 已有引用只能从它自己的根继续，换根用 `cbv ref <name> <addr>`
			return types.Address{}, 0, fmt.Errorf("ref %q already points at %s; drop --root or move the ref with `cbv ref %s <addr>`", syncRef, a.Short(), syncRef)
		case err == nil:
			addr, version = a, v
		case errors.Is(err, refs.ErrNoRef) && syncRoot != "":
			// 新引用：从 --root 开始，成功后创建
		default:
			return types.Address{}, 0, err
		}
	}
	if syncRoot != "" {
		a, err := types.ParseAddress(syncRoot)
		if err != nil {
			return types.Address{}, 0, err
		}
		addr = a
	}
	return addr, version, nil
}

func recordRun(cmd *cobra.Command, localDir string, base, result types.Address, r syncer.Report, syncErr error, started time.Time) {
	if CBV.Repository == nil {
		return
	}
	rec := meta.RunRecord{
		RefName:    syncRef,
		LocalDir:   localDir,
		BaseRoot:   base.String(),
		Uploads:    r.FileUploads + r.TreeUploads,
		Patches:    r.Patches,
		Skipped:    r.Skipped,
		Drift:      r.Drift,
		Err:        syncErr,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if !result.IsZero() {
		rec.ResultRoot = result.String()
	}
	if _, err := CBV.Repository.RecordRun(cmd.Context(), rec); err != nil {
		CBV.Logger.Warn("failed to record sync run", slog.Any("err", err))
	}
}

func printEvent(out io.Writer) func(syncer.Event) {
	return func(ev syncer.Event) {
		switch ev.Kind {
		case syncer.EventAdded:
			fmt.Fprintf(out, "  ➕ %s\n", ev.Path)
		case syncer.EventUpdated:
			fmt.Fprintf(out, "  📝 %s\n", ev.Path)
		case syncer.EventReplaced:
			fmt.Fprintf(out, "  ♻️  %s (kind changed)\n", ev.Path)
		case syncer.EventSkipped:
			fmt.Fprintf(out, "  ⏭️  %s (immutable)\n", ev.Path)
		case syncer.EventDrift:
			fmt.Fprintf(out, "  ⚠️  %s exists remotely but not locally\n", ev.Path)
		}
	}
}

// printRoot 打印新根和 base32 子域名网关链接
func printRoot(out io.Writer, root types.Address) {
	fmt.Fprintf(out, "New root object %s\n", root)
	if b32, err := root.Base32(); err == nil {
		fmt.Fprintf(out, "https://%s.ipfs.dweb.link\n", b32)
	}
}

func init() {
	syncCmd.Flags().StringVar(&syncRoot, "root", "", "address of the remote root directory to patch")
	syncCmd.Flags().StringVar(&syncRef, "ref", "", "named ref to resolve the root from and advance on success")
	syncCmd.Flags().BoolVar(&syncPrime, "prime", false, "prime public gateways after a successful sync")
	rootCmd.AddCommand(syncCmd)
}
