package embedded

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cbvault/pkg/contentstore"
	"cbvault/pkg/core"
	"cbvault/pkg/types"
)

// Cat 将文件内容按顺序写入 writer (raw 块或 FileNode)
func (s *Store) Cat(ctx context.Context, addr types.Address, w io.Writer) error {
	if addr.Codec() == types.CodecRaw {
		return s.copyBlock(ctx, addr, w)
	}

	data, err := s.read(ctx, addr)
	if err != nil {
		return err
	}
	node, err := core.DecodeFileNode(addr, data)
	if err != nil {
		return fmt.Errorf("%w: %w", contentstore.ErrDecode, err)
	}

	for i, link := range node.Chunks {
		if err := s.copyBlock(ctx, link.Address(), w); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	return nil
}

// copyBlock 流式拷贝一个块，函数返回时立即关闭句柄
func (s *Store) copyBlock(ctx context.Context, addr types.Address, w io.Writer) error {
	rc, err := s.blocks.Get(ctx, addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", contentstore.ErrNotFound, addr.Short(), err)
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("%w: %w", contentstore.ErrIO, err)
	}
	return nil
}

// RestoreCallback 在每个文件还原后调用
type RestoreCallback func(path string, addr types.Address, size uint64)

// Export 递归地将目录树还原到 targetDir
func (s *Store) Export(ctx context.Context, addr types.Address, targetDir string, onRestore RestoreCallback) error {
	dir, err := s.FetchDirectory(ctx, addr)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("%w: %w", contentstore.ErrIO, err)
	}

	for _, link := range dir.Links() {
		fullPath := filepath.Join(targetDir, link.Name)

		isDir, err := s.isDirectory(ctx, link.Target)
		if err != nil {
			return err
		}
		if isDir {
			if err := s.Export(ctx, link.Target, fullPath, onRestore); err != nil {
				return err
			}
			continue
		}

		if err := s.exportFile(ctx, link.Target, fullPath); err != nil {
			return err
		}
		if onRestore != nil {
			onRestore(fullPath, link.Target, link.Size)
		}
	}
	return nil
}

func (s *Store) exportFile(ctx context.Context, addr types.Address, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", contentstore.ErrIO, err)
	}
	if err := s.Cat(ctx, addr, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", contentstore.ErrIO, err)
	}
	return nil
}

// isDirectory 判断链接目标是否是目录
// raw 块一定是文件，dag-cbor 需要看类型头 (FileNode 也是 dag-cbor)
func (s *Store) isDirectory(ctx context.Context, addr types.Address) (bool, error) {
	if addr.Codec() != types.CodecDagCBOR {
		return false, nil
	}
	data, err := s.read(ctx, addr)
	if err != nil {
		return false, err
	}
	typ, err := core.PeekType(data)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", contentstore.ErrDecode, addr.Short(), err)
	}
	return typ == core.TypeDirectory, nil
}
