// Package contentstore 定义了同步引擎依赖的远端内容寻址存储能力
//
// 同步引擎只通过这四个操作访问存储，因此可以在本地 ipfs 命令、
// 守护进程 HTTP API 和进程内嵌入式存储之间切换而不影响同步逻辑。
package contentstore

import (
	"context"

	"cbvault/pkg/core"
	"cbvault/pkg/types"
)

// ContentStore 是远端对象存储的客户端
type ContentStore interface {
	// FetchDirectory 取回一个目录对象
	// 地址不是目录形状时返回 ErrNotFound，负载无法解析时返回 ErrDecode
	FetchDirectory(ctx context.Context, addr types.Address) (*core.Directory, error)

	// UploadFile 上传单个文件 (不 pin)，返回其内容地址
	UploadFile(ctx context.Context, path string) (types.Address, error)

	// UploadTree 递归上传整个本地子树，返回子树根地址
	UploadTree(ctx context.Context, path string) (types.Address, error)

	// PatchAddLink 返回一个新目录：parent 的链接集合加上 (或替换) name -> child
	PatchAddLink(ctx context.Context, parent types.Address, name string, child types.Address) (*core.Directory, error)
}
