package meta

import (
	"time"

	"gorm.io/datatypes"
)

// Ref 是一个具名指针，指向某个远端根目录的地址
// 例如 "site" -> "bafy..."
type Ref struct {
	// Name 是主键
	Name string `gorm:"primaryKey;type:varchar(255)"`

	// Root 是当前根目录的地址 (CID 字符串)
	Root string `gorm:"type:varchar(128);not null"`

	// Version 用于乐观锁并发控制 (CAS)
	// 每次更新时 +1，防止并发覆盖
	Version int64 `gorm:"default:1"`

	UpdatedAt time.Time
}

// Run 状态
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// SyncRun 记录一次同步的输入、结果和统计
type SyncRun struct {
	ID string `gorm:"primaryKey;type:char(36)"`

	RefName  string `gorm:"index;type:varchar(255)"`
	LocalDir string `gorm:"type:text"`

	BaseRoot   string `gorm:"type:varchar(128);not null"`
	ResultRoot string `gorm:"type:varchar(128)"`

	Uploads int
	Patches int
	Skipped int

	// Drift: 远端存在但本地没有的路径列表 ["a/b", ...]
	Drift datatypes.JSON

	Status string `gorm:"type:varchar(16);not null"`
	Error  string `gorm:"type:text"`

	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
}

func (SyncRun) TableName() string {
	return "sync_runs"
}
