package core

import (
	"fmt"

	"cbvault/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// Link 代表目录对象中的一条命名边
// JSON 字段名与存储守护进程 object get 的输出保持一致
type Link struct {
	Name   string        `json:"Name"`
	Target types.Address `json:"Hash"`
	// Size 只是提示值，不具权威性
	Size uint64 `json:"Size"`
}

const (
	linkTagNumber = 42
)

// cidRef 是 Link 在 CBOR 层面的目标引用
// 规范：Tag 42, Content = [0x00, cid bytes...]
type cidRef struct {
	addr types.Address
}

func (r cidRef) MarshalCBOR() ([]byte, error) {
	if r.addr.IsZero() {
		return nil, fmt.Errorf("invalid link: empty address")
	}

	// 添加 Multibase Identity 前缀 (0x00)
	content := append([]byte{0x00}, r.addr.Bytes()...)

	return em.Marshal(cbor.Tag{
		Number:  linkTagNumber,
		Content: content,
	})
}

func (r *cidRef) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := dm.Unmarshal(data, &tag); err != nil {
		return err
	}

	// 1. 校验 Tag Number
	if tag.Number != linkTagNumber {
		return fmt.Errorf("expected tag 42 for Link, got %d", tag.Number)
	}

	// 2. 获取内容字节
	content, ok := tag.Content.([]byte)
	if !ok {
		return fmt.Errorf("link content must be byte string")
	}

	// 3. 严格校验 Multibase 前缀
	if len(content) < 1 {
		return fmt.Errorf("invalid link: empty content")
	}
	if content[0] != 0x00 {
		return fmt.Errorf("invalid link: missing 0x00 multibase prefix")
	}

	addr, err := types.AddressFromBytes(content[1:])
	if err != nil {
		return fmt.Errorf("invalid link: %w", err)
	}
	r.addr = addr
	return nil
}
