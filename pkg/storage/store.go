package storage

import (
	"context"
	"errors"
	"io"

	"cbvault/pkg/core"
	"cbvault/pkg/types"
)

var (
	ErrNotFound = errors.New("block not found")
)

// Store defines the interface for a block storage backend.
// Implementations can be local disk, cloud storage, or a cached decorator.
// Blocks are addressed by content, so Put is naturally idempotent.
type Store interface {
	// Put 将一个核心对象持久化
	// 不需要返回地址，因为地址已经在 core.Object 里了
	Put(ctx context.Context, obj core.Object) error

	// Get 根据地址读取原始数据
	// 返回 io.ReadCloser 以支持流式读取大块
	Get(ctx context.Context, addr types.Address) (io.ReadCloser, error)

	// Has 检查块是否存在 (用于去重逻辑)
	Has(ctx context.Context, addr types.Address) (bool, error)
}

// ReadAll 读取整个块并关闭 reader
func ReadAll(ctx context.Context, s Store, addr types.Address) ([]byte, error) {
	rc, err := s.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
