package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"cbvault/pkg/types"
)

var (
	ErrDuplicateLink = errors.New("duplicate link name")
	ErrEmptyLinkName = errors.New("empty link name")
	ErrNotDirectory  = errors.New("object is not a directory")
)

// Directory 是一次 fetch / patch 得到的目录节点的内存表示
// 它绑定在获取它 (或产生它) 的地址上，构造后不再修改
type Directory struct {
	addr     types.Address
	rawBytes []byte // 仅当由本包规范编码时存在
	links    []Link
}

// dirWire 是目录在 CBOR 层面的结构
type dirWire struct {
	TypeVal ObjectType `cbor:"t"`
	Links   []linkWire `cbor:"l"`
}

type linkWire struct {
	Name string `cbor:"n"`
	Hash cidRef `cbor:"h"`
	Size uint64 `cbor:"s"`
}

// NewDirectory 包装一个远端取回的目录，保留远端给出的链接顺序
func NewDirectory(addr types.Address, links []Link) (*Directory, error) {
	if err := validateLinks(links); err != nil {
		return nil, err
	}
	return &Directory{
		addr:  addr,
		links: slices.Clone(links),
	}, nil
}

// BuildDirectory 规范化编码一组链接并计算地址
// 链接按名称排序，所以地址只取决于链接集合本身
func BuildDirectory(links []Link) (*Directory, error) {
	if err := validateLinks(links); err != nil {
		return nil, err
	}

	sorted := slices.Clone(links)
	slices.SortFunc(sorted, func(a, b Link) int { return strings.Compare(a.Name, b.Name) })

	wire := dirWire{
		TypeVal: TypeDirectory,
		Links:   make([]linkWire, len(sorted)),
	}
	for i, l := range sorted {
		wire.Links[i] = linkWire{Name: l.Name, Hash: cidRef{addr: l.Target}, Size: l.Size}
	}

	addr, raw, err := CalculateHash(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode directory: %w", err)
	}

	return &Directory{
		addr:     addr,
		rawBytes: raw,
		links:    sorted,
	}, nil
}

// DecodeDirectory 从规范编码的字节中还原目录
func DecodeDirectory(addr types.Address, data []byte) (*Directory, error) {
	var wire dirWire
	if err := DecodeObject(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode directory: %w", err)
	}
	if wire.TypeVal != TypeDirectory {
		return nil, fmt.Errorf("%w: got %q", ErrNotDirectory, wire.TypeVal)
	}

	links := make([]Link, len(wire.Links))
	for i, l := range wire.Links {
		links[i] = Link{Name: l.Name, Target: l.Hash.addr, Size: l.Size}
	}
	if err := validateLinks(links); err != nil {
		return nil, err
	}

	return &Directory{
		addr:     addr,
		rawBytes: slices.Clone(data),
		links:    links,
	}, nil
}

func validateLinks(links []Link) error {
	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		if l.Name == "" {
			return ErrEmptyLinkName
		}
		if _, dup := seen[l.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateLink, l.Name)
		}
		seen[l.Name] = struct{}{}
	}
	return nil
}

// WithLink 返回一个新目录：name 指向 target (新增或替换)
// 原目录保持不变
func (d *Directory) WithLink(name string, target types.Address, size uint64) (*Directory, error) {
	if name == "" {
		return nil, ErrEmptyLinkName
	}
	next := make([]Link, 0, len(d.links)+1)
	for _, l := range d.links {
		if l.Name != name {
			next = append(next, l)
		}
	}
	next = append(next, Link{Name: name, Target: target, Size: size})
	return BuildDirectory(next)
}

// Find 按名称精确查找 (大小写敏感)
func (d *Directory) Find(name string) (Link, bool) {
	for _, l := range d.links {
		if l.Name == name {
			return l, true
		}
	}
	return Link{}, false
}

// Links 返回链接的副本
func (d *Directory) Links() []Link { return slices.Clone(d.links) }

func (d *Directory) Names() []string {
	names := make([]string, len(d.links))
	for i, l := range d.links {
		names[i] = l.Name
	}
	return names
}

func (d *Directory) Len() int { return len(d.links) }

// TotalSize 累加所有链接的大小提示
func (d *Directory) TotalSize() uint64 {
	var total uint64
	for _, l := range d.links {
		total += l.Size
	}
	return total
}

func (d *Directory) Address() types.Address { return d.addr }

func (d *Directory) Type() ObjectType  { return TypeDirectory }
func (d *Directory) ID() types.Address { return d.addr }
func (d *Directory) Bytes() []byte     { return d.rawBytes }
