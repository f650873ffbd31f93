package embedded

import (
	"context"
	"fmt"
	"os"

	"cbvault/pkg/contentstore"
	"cbvault/pkg/core"
	"cbvault/pkg/types"
)

// UploadFile 读取文件，切分，存储，返回文件地址
// 只有一个切片的文件直接以 raw 块寻址，否则返回 FileNode 的地址
func (s *Store) UploadFile(ctx context.Context, path string) (types.Address, error) {
	addr, _, err := s.ingestFile(ctx, path)
	return addr, err
}

func (s *Store) ingestFile(ctx context.Context, path string) (types.Address, uint64, error) {
	// 1. 读取全部数据
	// 单个切片最大 1MB，但整个文件仍然先读进内存
	// TODO: 改成按 chunker.MaxSize 分段读取，避免大母带整体进内存
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Address{}, 0, fmt.Errorf("%w: %w", contentstore.ErrIO, err)
	}

	// 2. 切分
	cutPoints := s.chunker.Cut(data)
	if len(cutPoints) <= 1 {
		// 小文件 (包括空文件) 就是一个块
		chunk, err := core.NewChunk(data)
		if err != nil {
			return types.Address{}, 0, err
		}
		if err := s.blocks.Put(ctx, chunk); err != nil {
			return types.Address{}, 0, fmt.Errorf("%w: store chunk: %w", contentstore.ErrTransport, err)
		}
		return chunk.ID(), uint64(len(data)), nil
	}

	// 3. 遍历切点，创建并存储 Chunk
	builder := core.NewFileNodeBuilder()
	start := 0
	for _, end := range cutPoints {
		chunk, err := core.NewChunk(data[start:end])
		if err != nil {
			return types.Address{}, 0, err
		}
		if err := s.blocks.Put(ctx, chunk); err != nil {
			return types.Address{}, 0, fmt.Errorf("%w: store chunk: %w", contentstore.ErrTransport, err)
		}
		builder.Add(chunk)
		start = end
	}

	// 4. 创建并存储 FileNode
	node, err := builder.Build()
	if err != nil {
		return types.Address{}, 0, fmt.Errorf("failed to create file node: %w", err)
	}
	if err := s.blocks.Put(ctx, node); err != nil {
		return types.Address{}, 0, fmt.Errorf("%w: store file node: %w", contentstore.ErrTransport, err)
	}
	return node.ID(), uint64(node.TotalSize), nil
}
