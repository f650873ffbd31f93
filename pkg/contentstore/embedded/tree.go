package embedded

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cbvault/pkg/contentstore"
	"cbvault/pkg/core"
	"cbvault/pkg/types"
)

// UploadTree 自底向上地把本地目录写成 Merkle 树，返回根目录地址
func (s *Store) UploadTree(ctx context.Context, path string) (types.Address, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %w", contentstore.ErrIO, err)
	}
	if !info.IsDir() {
		return types.Address{}, fmt.Errorf("%w: %s is not a directory", contentstore.ErrIO, path)
	}

	dir, err := s.writeDir(ctx, path)
	if err != nil {
		return types.Address{}, err
	}
	return dir.Address(), nil
}

// writeDir 递归地将目录转换为 core.Directory 并写入存储
func (s *Store) writeDir(ctx context.Context, path string) (*core.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// os.ReadDir 已按文件名排序；地址本身与顺序无关
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contentstore.ErrIO, err)
	}

	links := make([]core.Link, 0, len(entries))
	for _, e := range entries {
		full := filepath.Join(path, e.Name())
		if s.ignore.Ignored(full) {
			s.logger.Debug("ignored", slog.String("path", full))
			continue
		}

		switch {
		case e.IsDir():
			// 1. 递归获取子目录
			child, err := s.writeDir(ctx, full)
			if err != nil {
				return nil, err
			}
			links = append(links, core.Link{Name: e.Name(), Target: child.Address(), Size: child.TotalSize()})

		case e.Type().IsRegular():
			// 2. 文件走切分流程
			addr, size, err := s.ingestFile(ctx, full)
			if err != nil {
				return nil, err
			}
			links = append(links, core.Link{Name: e.Name(), Target: addr, Size: size})

		default:
			s.logger.Debug("skipping non-regular file", slog.String("path", full))
		}
	}

	// 3. 创建并持久化目录对象
	dir, err := core.BuildDirectory(links)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory object: %w", err)
	}
	if err := s.blocks.Put(ctx, dir); err != nil {
		return nil, fmt.Errorf("%w: store directory: %w", contentstore.ErrTransport, err)
	}
	return dir, nil
}
