// Package embedded 是一个进程内的内容寻址存储
//
// 目录对象使用规范 CBOR (dag-cbor) 编码，文件是 raw 块，
// 超过一个切片的文件再加一个 FileNode 索引。所有块都写进 storage.Store。
package embedded

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cbvault/pkg/chunker"
	"cbvault/pkg/contentstore"
	"cbvault/pkg/core"
	"cbvault/pkg/ignore"
	"cbvault/pkg/storage"
	"cbvault/pkg/types"
)

type Store struct {
	blocks  storage.Store
	chunker *chunker.Chunker
	ignore  *ignore.Matcher
	logger  *slog.Logger
}

var _ contentstore.ContentStore = (*Store)(nil)

type Option func(*Store)

// WithIgnore 让 UploadTree 跳过被忽略的条目
func WithIgnore(m *ignore.Matcher) Option {
	return func(s *Store) { s.ignore = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(blocks storage.Store, opts ...Option) *Store {
	s := &Store{
		blocks:  blocks,
		chunker: chunker.NewChunker(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchDirectory 读取并解码目录块
func (s *Store) FetchDirectory(ctx context.Context, addr types.Address) (*core.Directory, error) {
	if addr.Codec() != types.CodecDagCBOR {
		return nil, fmt.Errorf("%w: %s is not a directory (codec %#x)", contentstore.ErrNotFound, addr.Short(), uint64(addr.Codec()))
	}

	data, err := s.read(ctx, addr)
	if err != nil {
		return nil, err
	}

	typ, err := core.PeekType(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", contentstore.ErrDecode, addr.Short(), err)
	}
	if typ != core.TypeDirectory {
		return nil, fmt.Errorf("%w: %s is a %s", contentstore.ErrNotFound, addr.Short(), typ)
	}

	dir, err := core.DecodeDirectory(addr, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contentstore.ErrDecode, err)
	}
	return dir, nil
}

// PatchAddLink 在 parent 上增加 (或替换) 一个链接，并持久化新目录
// child 必须已经存在于存储中
func (s *Store) PatchAddLink(ctx context.Context, parent types.Address, name string, child types.Address) (*core.Directory, error) {
	dir, err := s.FetchDirectory(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("patch %s/%s: %w: %w", parent.Short(), name, contentstore.ErrConflict, err)
	}

	size, err := s.sizeOf(ctx, child)
	if err != nil {
		return nil, fmt.Errorf("patch %s/%s: %w: %w", parent.Short(), name, contentstore.ErrConflict, err)
	}

	next, err := dir.WithLink(name, child, size)
	if err != nil {
		return nil, fmt.Errorf("patch %s/%s: %w: %w", parent.Short(), name, contentstore.ErrConflict, err)
	}

	if err := s.blocks.Put(ctx, next); err != nil {
		return nil, fmt.Errorf("%w: store directory: %w", contentstore.ErrTransport, err)
	}
	return next, nil
}

// EmptyDirectory 创建并持久化一个空目录，作为第一次同步的根
func (s *Store) EmptyDirectory(ctx context.Context) (*core.Directory, error) {
	dir, err := core.BuildDirectory(nil)
	if err != nil {
		return nil, err
	}
	if err := s.blocks.Put(ctx, dir); err != nil {
		return nil, fmt.Errorf("%w: store directory: %w", contentstore.ErrTransport, err)
	}
	return dir, nil
}

// sizeOf 返回一个对象的大小提示：文件是字节数，目录是所有子链接之和
func (s *Store) sizeOf(ctx context.Context, addr types.Address) (uint64, error) {
	data, err := s.read(ctx, addr)
	if err != nil {
		return 0, err
	}

	switch addr.Codec() {
	case types.CodecRaw:
		return uint64(len(data)), nil
	case types.CodecDagCBOR:
		typ, err := core.PeekType(data)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", contentstore.ErrDecode, addr.Short(), err)
		}
		switch typ {
		case core.TypeFileNode:
			node, err := core.DecodeFileNode(addr, data)
			if err != nil {
				return 0, fmt.Errorf("%w: %w", contentstore.ErrDecode, err)
			}
			return uint64(node.TotalSize), nil
		case core.TypeDirectory:
			dir, err := core.DecodeDirectory(addr, data)
			if err != nil {
				return 0, fmt.Errorf("%w: %w", contentstore.ErrDecode, err)
			}
			return dir.TotalSize(), nil
		default:
			return 0, fmt.Errorf("%w: unknown object type %q", contentstore.ErrDecode, typ)
		}
	default:
		return 0, fmt.Errorf("%w: unsupported codec %#x", contentstore.ErrDecode, uint64(addr.Codec()))
	}
}

// read 读取整个块，并把存储层错误映射到分类体系
func (s *Store) read(ctx context.Context, addr types.Address) ([]byte, error) {
	data, err := storage.ReadAll(ctx, s.blocks, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", contentstore.ErrNotFound, addr.Short())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", contentstore.ErrTransport, addr.Short(), err)
	}
	return data, nil
}
