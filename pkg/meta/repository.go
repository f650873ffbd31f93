package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrRefNotFound      = errors.New("reference not found")
	ErrConcurrentUpdate = errors.New("concurrent update detected (CAS failed)")
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// -----------------------------------------------------------------------------
// 1. 引用管理 (Refs)
// -----------------------------------------------------------------------------

// GetRef 获取引用的当前指向
func (r *Repository) GetRef(ctx context.Context, name string) (*Ref, error) {
	var ref Ref
	err := r.db.GetConn().WithContext(ctx).
		Where("name = ?", name).
		First(&ref).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRefNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// UpdateRef 原子更新引用 (CAS - Compare And Swap)
// oldVersion: 之前读到的版本号，0 表示创建。数据库中的版本不等于它时返回 ErrConcurrentUpdate
func (r *Repository) UpdateRef(ctx context.Context, name, root string, oldVersion int64) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 场景 A: 第一次创建
		if oldVersion == 0 {
			ref := Ref{
				Name:    name,
				Root:    root,
				Version: 1,
			}
			if err := tx.Create(&ref).Error; err != nil {
				// 兼容 PG 与 SQLite 的唯一约束错误
				if errors.Is(err, gorm.ErrDuplicatedKey) ||
					strings.Contains(err.Error(), "UNIQUE constraint failed") {
					return ErrConcurrentUpdate
				}
				return fmt.Errorf("failed to create ref: %w", err)
			}
			return nil
		}

		// 场景 B: 更新现有引用
		// SQL: UPDATE refs SET root = ?, version = version + 1 WHERE name = ? AND version = ?
		result := tx.Model(&Ref{}).
			Where("name = ? AND version = ?", name, oldVersion).
			Updates(map[string]any{
				"root":       root,
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}

		// 影响行数为 0，说明 version 不匹配 (被人抢先改了)
		if result.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}
		return nil
	})
}

// ListRefs 按名称排序列出所有引用
func (r *Repository) ListRefs(ctx context.Context) ([]Ref, error) {
	var refs []Ref
	err := r.db.GetConn().WithContext(ctx).Order("name ASC").Find(&refs).Error
	return refs, err
}

// -----------------------------------------------------------------------------
// 2. 同步记录 (Sync Runs)
// -----------------------------------------------------------------------------

// RunRecord 是写入 SyncRun 时的输入
type RunRecord struct {
	RefName    string
	LocalDir   string
	BaseRoot   string
	ResultRoot string
	Uploads    int
	Patches    int
	Skipped    int
	Drift      []string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecordRun 写入一条同步记录，返回其 ID
func (r *Repository) RecordRun(ctx context.Context, rec RunRecord) (*SyncRun, error) {
	drift := rec.Drift
	if drift == nil {
		drift = []string{}
	}
	driftJSON, err := json.Marshal(drift)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal drift: %w", err)
	}

	run := SyncRun{
		ID:         uuid.NewString(),
		RefName:    rec.RefName,
		LocalDir:   rec.LocalDir,
		BaseRoot:   rec.BaseRoot,
		ResultRoot: rec.ResultRoot,
		Uploads:    rec.Uploads,
		Patches:    rec.Patches,
		Skipped:    rec.Skipped,
		Drift:      datatypes.JSON(driftJSON),
		Status:     RunSucceeded,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
	if rec.Err != nil {
		run.Status = RunFailed
		run.Error = rec.Err.Error()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}

	if err := r.db.GetConn().WithContext(ctx).Create(&run).Error; err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return &run, nil
}

// ListRuns 返回最近的同步记录 (最新在前)，refName 为空时不过滤
func (r *Repository) ListRuns(ctx context.Context, refName string, limit int) ([]SyncRun, error) {
	q := r.db.GetConn().WithContext(ctx).Order("started_at DESC")
	if refName != "" {
		q = q.Where("ref_name = ?", refName)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []SyncRun
	err := q.Find(&runs).Error
	return runs, err
}

// DriftPaths 解码 Drift 列
func (s SyncRun) DriftPaths() ([]string, error) {
	if len(s.Drift) == 0 {
		return nil, nil
	}
	var paths []string
	if err := json.Unmarshal(s.Drift, &paths); err != nil {
		return nil, err
	}
	return paths, nil
}
