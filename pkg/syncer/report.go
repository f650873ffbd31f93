package syncer

import (
	"slices"

	"cbvault/pkg/types"
)

// EventKind 描述同步过程中对一个条目做出的决定
type EventKind string

const (
	EventSkipped   EventKind = "skipped"   // 不可变扩展名，远端已存在
	EventUnchanged EventKind = "unchanged" // 上传后地址相同
	EventUpdated   EventKind = "updated"   // 已有链接指向了新地址
	EventAdded     EventKind = "added"     // 新增链接
	EventReplaced  EventKind = "replaced"  // 本地与远端类型不同，按本地类型重建
	EventDrift     EventKind = "drift"     // 远端有、本地没有
)

type Event struct {
	Kind EventKind
	Path string // 相对于同步根的 slash 路径
	Addr types.Address
}

// Report 统计一次 Sync 调用中对存储的访问
type Report struct {
	Fetches     int
	FileUploads int
	TreeUploads int
	Patches     int
	Skipped     int
	Unchanged   int
	Drift       []string
}

func (r Report) clone() Report {
	r.Drift = slices.Clone(r.Drift)
	return r
}
