package core

import (
	"fmt"

	"cbvault/pkg/types"
)

// ChunkLink 描述了 FileNode 对底层 Chunk 的引用
type ChunkLink struct {
	Hash cidRef `cbor:"h"`
	Size int64  `cbor:"s"` // 这个 Chunk 的大小 (用于计算 offset)
}

func (c ChunkLink) Address() types.Address { return c.Hash.addr }

// FileNode (ADL) 将散乱的 Chunk 组装成一个逻辑上的大文件
type FileNode struct {
	addr     types.Address `cbor:"-"`
	rawBytes []byte        `cbor:"-"`

	TypeVal   ObjectType  `cbor:"t"`  // 必须是 "filenode"
	TotalSize int64       `cbor:"ts"` // 文件总大小
	Chunks    []ChunkLink `cbor:"cs"` // 所有的切片引用
}

// NewFileNode 创建一个新的文件索引节点
func NewFileNode(totalSize int64, chunks []ChunkLink) (*FileNode, error) {
	node := &FileNode{
		TypeVal:   TypeFileNode,
		TotalSize: totalSize,
		Chunks:    chunks,
	}
	h, b, err := CalculateHash(node)
	if err != nil {
		return nil, err
	}
	node.addr = h
	node.rawBytes = b
	return node, nil
}

// DecodeFileNode 从字节还原 FileNode
func DecodeFileNode(addr types.Address, data []byte) (*FileNode, error) {
	var node FileNode
	if err := DecodeObject(data, &node); err != nil {
		return nil, fmt.Errorf("failed to decode filenode: %w", err)
	}
	if node.TypeVal != TypeFileNode {
		return nil, fmt.Errorf("object is not a filenode, got: %s", node.TypeVal)
	}
	node.addr = addr
	node.rawBytes = data
	return &node, nil
}

func (f *FileNode) Type() ObjectType  { return TypeFileNode }
func (f *FileNode) ID() types.Address { return f.addr }
func (f *FileNode) Bytes() []byte     { return f.rawBytes }
func (f *FileNode) Size() int64       { return f.TotalSize }

// FileNodeBuilder 按顺序收集 Chunk，最后生成 FileNode
type FileNodeBuilder struct {
	chunks []ChunkLink
	total  int64
}

func NewFileNodeBuilder() *FileNodeBuilder {
	return &FileNodeBuilder{}
}

func (b *FileNodeBuilder) Add(c *Chunk) {
	b.chunks = append(b.chunks, ChunkLink{Hash: cidRef{addr: c.ID()}, Size: c.Size()})
	b.total += c.Size()
}

func (b *FileNodeBuilder) Build() (*FileNode, error) {
	return NewFileNode(b.total, b.chunks)
}
