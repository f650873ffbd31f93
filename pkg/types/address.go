// pkg/types/address.go
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// Codec 标识地址所指内容的编码方式 (multicodec)
type Codec uint64

const (
	CodecRaw         Codec = cid.Raw         // 原始字节块 (小文件 / Chunk)
	CodecDagProtobuf Codec = cid.DagProtobuf // UnixFS 目录 (外部存储守护进程)
	CodecDagCBOR     Codec = cid.DagCBOR     // 内嵌存储使用的目录 / FileNode
)

var (
	ErrInvalidAddress = errors.New("invalid content address")
	// ErrNoV0 表示该地址无法表示为 CIDv0 (只有 dag-pb + sha2-256 可以)
	ErrNoV0 = errors.New("address has no v0 form")
)

// Address 代表内容寻址的唯一标识 (CID)
// 这是一个“值对象”，应当是不可变的。
// Synchronizer 只把它当作不透明令牌：比较相等、打印、请求替代编码。
type Address struct {
	c cid.Cid
}

// ParseAddress 解析规范文本形式 (multibase 字符串)
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("%w: empty string", ErrInvalidAddress)
	}
	// 允许用户直接粘贴 /ipfs/<cid>
	s = strings.TrimPrefix(s, "/ipfs/")
	c, err := cid.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return Address{c: c}, nil
}

// MustParseAddress 仅用于测试和常量
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes 从二进制 CID 还原地址 (CBOR Link 使用)
func AddressFromBytes(b []byte) (Address, error) {
	c, err := cid.Cast(b)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return Address{c: c}, nil
}

// SumAddress 计算内容的地址: CIDv1 + sha2-256
// 相同的字节永远得到相同的地址
func SumAddress(codec Codec, data []byte) (Address, error) {
	prefix := cid.Prefix{
		Version:  1,
		Codec:    uint64(codec),
		MhType:   multihash.SHA2_256,
		MhLength: -1,
	}
	c, err := prefix.Sum(data)
	if err != nil {
		return Address{}, fmt.Errorf("failed to sum address: %w", err)
	}
	return Address{c: c}, nil
}

func (a Address) String() string {
	if !a.c.Defined() {
		return ""
	}
	return a.c.String()
}

func (a Address) IsZero() bool { return !a.c.Defined() }

func (a Address) Equals(b Address) bool { return a.c.Equals(b.c) }

func (a Address) Codec() Codec { return Codec(a.c.Type()) }

// Bytes 返回二进制 CID
func (a Address) Bytes() []byte { return a.c.Bytes() }

// Short 用于日志输出，截取末尾 8 个字符
func (a Address) Short() string {
	s := a.String()
	if len(s) <= 8 {
		return s
	}
	return "…" + s[len(s)-8:]
}

// Base32 返回同一内容的 CIDv1 base32 小写形式 (子域名网关使用)
func (a Address) Base32() (string, error) {
	if a.IsZero() {
		return "", ErrInvalidAddress
	}
	v1 := cid.NewCidV1(a.c.Type(), a.c.Hash())
	return v1.StringOfBase(multibase.Base32)
}

// V0 返回 CIDv0 (Qm...) 形式
func (a Address) V0() (string, error) {
	if a.IsZero() {
		return "", ErrInvalidAddress
	}
	if a.c.Type() != cid.DagProtobuf {
		return "", ErrNoV0
	}
	dec, err := multihash.Decode(a.c.Hash())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if dec.Code != multihash.SHA2_256 || dec.Length != 32 {
		return "", ErrNoV0
	}
	return cid.NewCidV0(a.c.Hash()).String(), nil
}

// MarshalJSON 编码为规范字符串
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON 同时接受 "cid" 和 {"/": "cid"} 两种形式
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var link struct {
			Slash string `json:"/"`
		}
		if err2 := json.Unmarshal(data, &link); err2 != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		s = link.Slash
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
