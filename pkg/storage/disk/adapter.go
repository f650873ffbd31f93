package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cbvault/pkg/core"
	"cbvault/pkg/storage"
	"cbvault/pkg/types"
)

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	rootPath string // 比如: /home/user/.cbv/blocks
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// layout 返回地址对应的物理路径
// 策略：CID 字符串的前缀对所有块都一样 (bafk/bafy...)，所以用末尾 2 个字符做子目录
// Example: "bafy...xyzab" -> root/ab/bafy...xyzab
func (s *Adapter) layout(addr types.Address) string {
	key := addr.String()
	if len(key) < 2 {
		return filepath.Join(s.rootPath, key)
	}
	return filepath.Join(s.rootPath, key[len(key)-2:], key)
}

func (s *Adapter) Put(ctx context.Context, obj core.Object) error {
	if obj.ID().IsZero() {
		return fmt.Errorf("disk put: object has no address")
	}
	targetPath := s.layout(obj.ID())

	// 1. 检查是否存在 (幂等性)
	if _, err := os.Stat(targetPath); err == nil {
		return nil // 已经存在，直接跳过 (CAS 的好处)
	}

	// 2. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 3. 原子写入 (Atomic Write)
	// 先写到一个临时文件，然后 Rename。
	// 这样保证要么文件不存在，要么文件是完整的。
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(obj.Bytes()); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// 4. 移动到最终位置
	return os.Rename(tempFile.Name(), targetPath)
}

func (s *Adapter) Get(ctx context.Context, addr types.Address) (io.ReadCloser, error) {
	f, err := os.Open(s.layout(addr))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, addr types.Address) (bool, error) {
	_, err := os.Stat(s.layout(addr))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
