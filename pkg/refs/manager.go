// Package refs 把具名引用解析为远端根地址，并在同步成功后推进它
package refs

import (
	"context"
	"errors"
	"fmt"

	"cbvault/pkg/meta"
	"cbvault/pkg/types"
)

var (
	ErrNoRef    = errors.New("ref not found")
	ErrStaleRef = errors.New("ref moved since it was resolved")
)

// Manager 负责管理引用 (Refs)
type Manager struct {
	repo *meta.Repository
}

func NewManager(repo *meta.Repository) *Manager {
	return &Manager{repo: repo}
}

// Resolve 返回引用当前指向的地址和版本号
func (m *Manager) Resolve(ctx context.Context, name string) (types.Address, int64, error) {
	ref, err := m.repo.GetRef(ctx, name)
	if errors.Is(err, meta.ErrRefNotFound) {
		return types.Address{}, 0, fmt.Errorf("%w: %s", ErrNoRef, name)
	}
	if err != nil {
		return types.Address{}, 0, fmt.Errorf("failed to read ref %s: %w", name, err)
	}

	addr, err := types.ParseAddress(ref.Root)
	if err != nil {
		return types.Address{}, 0, fmt.Errorf("ref %s holds an invalid address: %w", name, err)
	}
	return addr, ref.Version, nil
}

// Advance 把引用移到 addr
// version 是 Resolve 读到的版本，0 表示新建；被别人抢先推进时返回 ErrStaleRef
func (m *Manager) Advance(ctx context.Context, name string, addr types.Address, version int64) error {
	if name == "" {
		return fmt.Errorf("ref name is required")
	}
	err := m.repo.UpdateRef(ctx, name, addr.String(), version)
	if errors.Is(err, meta.ErrConcurrentUpdate) {
		return fmt.Errorf("%w: %s", ErrStaleRef, name)
	}
	return err
}

// Set 无条件地把引用指向 addr (手动修正用)
func (m *Manager) Set(ctx context.Context, name string, addr types.Address) error {
	_, version, err := m.Resolve(ctx, name)
	if err != nil && !errors.Is(err, ErrNoRef) {
		return err
	}
	return m.Advance(ctx, name, addr, version)
}

// List 列出所有引用
func (m *Manager) List(ctx context.Context) ([]meta.Ref, error) {
	return m.repo.ListRefs(ctx)
}
