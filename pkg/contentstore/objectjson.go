package contentstore

import (
	"encoding/json"
	"fmt"

	"cbvault/pkg/core"
	"cbvault/pkg/types"

	"google.golang.org/protobuf/encoding/protowire"
)

// unixfs Data 字段里的节点类型
const (
	unixfsRaw       = 0
	unixfsDirectory = 1
	unixfsFile      = 2
	unixfsHAMTShard = 5
)

// ObjectJSON 是存储守护进程 `object get` 的 JSON 输出
// Data 需要以 base64 编码请求 (--data-encoding=base64)
type ObjectJSON struct {
	Links []core.Link `json:"Links"`
	Data  []byte      `json:"Data"`
}

// DecodeObjectJSON 将 `object get` 的输出解析为目录对象
// 文件节点或者不带 unixfs 类型的节点都视为“不是目录”
func DecodeObjectJSON(addr types.Address, payload []byte) (*core.Directory, error) {
	var obj ObjectJSON
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, fmt.Errorf("%w: object %s: %w", ErrDecode, addr.Short(), err)
	}

	kind, ok := unixfsType(obj.Data)
	if !ok {
		return nil, fmt.Errorf("%w: object %s carries no unixfs header", ErrNotFound, addr.Short())
	}
	switch kind {
	case unixfsDirectory:
	case unixfsHAMTShard:
		return nil, fmt.Errorf("%w: object %s is a sharded directory", ErrDecode, addr.Short())
	default:
		return nil, fmt.Errorf("%w: object %s is not a directory (unixfs type %d)", ErrNotFound, addr.Short(), kind)
	}

	dir, err := core.NewDirectory(addr, obj.Links)
	if err != nil {
		return nil, fmt.Errorf("%w: object %s: %w", ErrDecode, addr.Short(), err)
	}
	return dir, nil
}

// unixfsType 从 dag-pb 节点的 Data 中读出 unixfs Type (字段 1)
func unixfsType(data []byte) (int64, bool) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, false
		}
		data = data[n:]
		if num == 1 && typ == protowire.VarintType {
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return 0, false
			}
			return int64(v), true
		}
		m := protowire.ConsumeFieldValue(num, typ, data)
		if m < 0 {
			return 0, false
		}
		data = data[m:]
	}
	return 0, false
}
