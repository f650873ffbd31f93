package core

import "cbvault/pkg/types"

// ObjectType 定义了内容寻址图中的对象类型
type ObjectType string

const (
	TypeChunk     ObjectType = "chunk"    // 原始数据块 (raw)
	TypeFileNode  ObjectType = "filenode" // 大文件索引 (ADL)
	TypeDirectory ObjectType = "dir"      // 目录节点: 有序的命名链接
)

// Object 是所有 Merkle DAG 节点的通用接口
type Object interface {
	// Type 返回对象类型
	Type() ObjectType

	// ID 返回对象的内容地址
	ID() types.Address

	// Bytes 返回对象的序列化数据 (用于存储)
	Bytes() []byte
}
