package core

import "cbvault/pkg/types"

// Chunk 代表 FastCDC 切分出来的物理数据块 (或整个小文件)
// 它是 Merkle DAG 的叶子节点，使用 raw codec
type Chunk struct {
	addr types.Address
	data []byte
}

func NewChunk(data []byte) (*Chunk, error) {
	addr, err := CalculateBlobHash(data)
	if err != nil {
		return nil, err
	}
	return &Chunk{
		addr: addr,
		data: data,
	}, nil
}

func (c *Chunk) Type() ObjectType  { return TypeChunk }
func (c *Chunk) ID() types.Address { return c.addr }
func (c *Chunk) Bytes() []byte     { return c.data }
func (c *Chunk) Size() int64       { return int64(len(c.data)) }
