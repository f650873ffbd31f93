// Package syncer 让一个远端目录对象与本地目录树保持一致
//
// 每一层目录都是一次折叠：当前目录对象作为累加器，
// 每次 patch 成功后被新返回的对象整体替换。
// 未改变的子树按原地址复用，远端多出来的条目只报告不删除。
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"

	"cbvault/pkg/contentstore"
	"cbvault/pkg/core"
	"cbvault/pkg/types"

	"golang.org/x/sync/errgroup"
)

type Synchronizer struct {
	store contentstore.ContentStore
	opts  Options

	mu     sync.Mutex
	report Report
}

func New(store contentstore.ContentStore, opts Options) *Synchronizer {
	return &Synchronizer{
		store: store,
		opts:  opts.withDefaults(),
	}
}

// Report 返回最近一次 Sync 的统计
func (s *Synchronizer) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report.clone()
}

// Sync 执行一次同步，返回远端根的新地址
// 本地没有任何变化时返回的地址等于 remote
func (s *Synchronizer) Sync(ctx context.Context, remote types.Address, localDir string) (types.Address, error) {
	s.mu.Lock()
	s.report = Report{}
	s.mu.Unlock()

	info, err := os.Stat(localDir)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %w", contentstore.ErrIO, err)
	}
	if !info.IsDir() {
		return types.Address{}, fmt.Errorf("%w: %s is not a directory", contentstore.ErrIO, localDir)
	}

	root, err := s.fetch(ctx, remote)
	if err != nil {
		return types.Address{}, fmt.Errorf("fetch root %s: %w", remote, err)
	}

	dir, err := s.syncDir(ctx, root, localDir, "")
	if err != nil {
		return types.Address{}, err
	}
	return dir.Address(), nil
}

type action int

const (
	actSkip action = iota
	actUploadFile
	actUploadTree
	actRecurse
)

// step 是本地一个条目的计划
type step struct {
	name  string
	path  string // 本地路径
	rel   string // 相对同步根的 slash 路径
	act   action
	match core.Link
	found bool

	// 预先并行上传的结果
	uploaded bool
	addr     types.Address
}

// syncDir 同步一层目录，remote 是这一层当前的远端对象
func (s *Synchronizer) syncDir(ctx context.Context, remote *core.Directory, localDir, rel string) (*core.Directory, error) {
	// 1. 列出本地条目 (os.ReadDir 按名称排序)
	steps, local, err := s.plan(remote, localDir, rel)
	if err != nil {
		return nil, err
	}

	// 2. 可选：并行执行不依赖父目录地址的上传
	if s.opts.UploadConcurrency > 1 {
		if err := s.prefetchUploads(ctx, steps); err != nil {
			return nil, err
		}
	}

	// 3. 折叠：依次把每个变化 patch 进当前目录
	current := remote
	for _, st := range steps {
		next, err := s.apply(ctx, current, st)
		if err != nil {
			return nil, err
		}
		current = next
	}

	// 4. 远端原有、本地没有的链接只报告
	for _, link := range remote.Links() {
		if _, ok := local[link.Name]; ok {
			continue
		}
		p := join(rel, link.Name)
		s.opts.Logger.Warn("remote entry has no local counterpart", slog.String("path", p), slog.String("addr", link.Target.String()))
		s.count(func(r *Report) { r.Drift = append(r.Drift, p) })
		s.emit(Event{Kind: EventDrift, Path: p, Addr: link.Target})
	}

	return current, nil
}

// plan 决定每个本地条目的动作，并返回参与同步的本地名称集合
func (s *Synchronizer) plan(remote *core.Directory, localDir, rel string) ([]*step, map[string]struct{}, error) {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", contentstore.ErrIO, err)
	}

	steps := make([]*step, 0, len(entries))
	local := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		full := filepath.Join(localDir, e.Name())
		if s.opts.Ignore.Ignored(full) {
			s.opts.Logger.Debug("ignored", slog.String("path", full))
			continue
		}
		if !e.IsDir() && !e.Type().IsRegular() {
			s.opts.Logger.Debug("skipping non-regular file", slog.String("path", full))
			continue
		}

		local[e.Name()] = struct{}{}
		st := &step{name: e.Name(), path: full, rel: join(rel, e.Name())}
		st.match, st.found = remote.Find(e.Name())

		switch {
		case !e.IsDir() && st.found && s.opts.immutable(e.Name()):
			// 只按名称判断，不检查远端链接的类型
			st.act = actSkip
		case !e.IsDir():
			st.act = actUploadFile
		case st.found:
			st.act = actRecurse
		default:
			st.act = actUploadTree
		}
		steps = append(steps, st)
	}
	return steps, local, nil
}

func (s *Synchronizer) prefetchUploads(ctx context.Context, steps []*step) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.UploadConcurrency)

	for _, st := range steps {
		if st.act != actUploadFile && st.act != actUploadTree {
			continue
		}
		st := st
		g.Go(func() error {
			addr, err := s.upload(gctx, st)
			if err != nil {
				return fmt.Errorf("%s: %w", display(st.rel), err)
			}
			st.addr = addr
			st.uploaded = true
			return nil
		})
	}
	return g.Wait()
}

// apply 执行一个条目的计划，返回新的当前目录
// 错误带上条目路径；递归返回的错误已经带了更深的路径
func (s *Synchronizer) apply(ctx context.Context, current *core.Directory, st *step) (*core.Directory, error) {
	wrap := func(err error) error {
		return fmt.Errorf("%s: %w", display(st.rel), err)
	}

	switch st.act {
	case actSkip:
		s.opts.Logger.Info("skipped (immutable)", slog.String("path", st.rel))
		s.count(func(r *Report) { r.Skipped++ })
		s.emit(Event{Kind: EventSkipped, Path: st.rel, Addr: st.match.Target})
		return current, nil

	case actUploadFile, actUploadTree:
		addr, err := s.uploadResult(ctx, st)
		if err != nil {
			return nil, wrap(err)
		}
		if st.found && addr.Equals(st.match.Target) {
			s.opts.Logger.Debug("unchanged", slog.String("path", st.rel))
			s.count(func(r *Report) { r.Unchanged++ })
			s.emit(Event{Kind: EventUnchanged, Path: st.rel, Addr: addr})
			return current, nil
		}
		kind := EventAdded
		if st.found {
			kind = EventUpdated
		}
		next, err := s.patch(ctx, current, st, addr, kind)
		if err != nil {
			return nil, wrap(err)
		}
		return next, nil

	case actRecurse:
		child, err := s.fetch(ctx, st.match.Target)
		if errors.Is(err, contentstore.ErrNotFound) {
			// 远端同名链接不是目录：按本地类型重建
			addr, err := s.uploadTree(ctx, st)
			if err != nil {
				return nil, wrap(err)
			}
			if addr.Equals(st.match.Target) {
				// 地址相同说明远端子树只是缺块，重新上传已经补齐
				s.opts.Logger.Warn("remote subtree was unreadable, re-uploaded", slog.String("path", st.rel), slog.String("addr", addr.String()))
				s.count(func(r *Report) { r.Unchanged++ })
				s.emit(Event{Kind: EventUnchanged, Path: st.rel, Addr: addr})
				return current, nil
			}
			next, err := s.patch(ctx, current, st, addr, EventReplaced)
			if err != nil {
				return nil, wrap(err)
			}
			return next, nil
		}
		if err != nil {
			return nil, wrap(err)
		}

		synced, err := s.syncDir(ctx, child, st.path, st.rel)
		if err != nil {
			return nil, err
		}
		if synced.Address().Equals(st.match.Target) {
			s.count(func(r *Report) { r.Unchanged++ })
			s.emit(Event{Kind: EventUnchanged, Path: st.rel, Addr: synced.Address()})
			return current, nil
		}
		next, err := s.patch(ctx, current, st, synced.Address(), EventUpdated)
		if err != nil {
			return nil, wrap(err)
		}
		return next, nil

	default:
		return nil, wrap(fmt.Errorf("unknown action %d", st.act))
	}
}

func (s *Synchronizer) patch(ctx context.Context, current *core.Directory, st *step, addr types.Address, kind EventKind) (*core.Directory, error) {
	next, err := s.store.PatchAddLink(ctx, current.Address(), st.name, addr)
	if err != nil {
		return nil, err
	}
	s.count(func(r *Report) { r.Patches++ })

	msg := "patched"
	if kind == EventReplaced {
		msg = "replaced (kind changed)"
	}
	s.opts.Logger.Info(msg,
		slog.String("path", st.rel),
		slog.String("addr", addr.String()),
		slog.String("parent", next.Address().String()),
	)
	s.emit(Event{Kind: kind, Path: st.rel, Addr: addr})
	return next, nil
}

func (s *Synchronizer) uploadResult(ctx context.Context, st *step) (types.Address, error) {
	if st.uploaded {
		return st.addr, nil
	}
	return s.upload(ctx, st)
}

func (s *Synchronizer) upload(ctx context.Context, st *step) (types.Address, error) {
	if st.act == actUploadTree {
		return s.uploadTree(ctx, st)
	}
	addr, err := s.store.UploadFile(ctx, st.path)
	if err != nil {
		return types.Address{}, err
	}
	s.count(func(r *Report) { r.FileUploads++ })
	return addr, nil
}

func (s *Synchronizer) uploadTree(ctx context.Context, st *step) (types.Address, error) {
	addr, err := s.store.UploadTree(ctx, st.path)
	if err != nil {
		return types.Address{}, err
	}
	s.count(func(r *Report) { r.TreeUploads++ })
	return addr, nil
}

func (s *Synchronizer) fetch(ctx context.Context, addr types.Address) (*core.Directory, error) {
	dir, err := s.store.FetchDirectory(ctx, addr)
	s.count(func(r *Report) { r.Fetches++ })
	return dir, err
}

func (s *Synchronizer) count(fn func(r *Report)) {
	s.mu.Lock()
	fn(&s.report)
	s.mu.Unlock()
}

func (s *Synchronizer) emit(ev Event) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}

func join(rel, name string) string {
	if rel == "" {
		return name
	}
	return path.Join(rel, name)
}

func display(rel string) string {
	if rel == "" {
		return "."
	}
	return rel
}
