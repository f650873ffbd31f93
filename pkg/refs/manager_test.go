package refs

import (
	"context"
	"fmt"
	"testing"

	"cbvault/pkg/meta"
	"cbvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestEnv 搭建基于内存 SQLite 的测试环境
func setupTestEnv(t *testing.T) *Manager {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&meta.Ref{}))

	return NewManager(meta.NewRepository(meta.NewWithConn(db)))
}

func addr(t *testing.T, s string) types.Address {
	t.Helper()
	a, err := types.SumAddress(types.CodecRaw, []byte(s))
	require.NoError(t, err)
	return a
}

func TestRefFlow_Lifecycle(t *testing.T) {
	mgr := setupTestEnv(t)
	ctx := context.Background()

	// 1. 初始状态
	_, _, err := mgr.Resolve(ctx, "site")
	assert.ErrorIs(t, err, ErrNoRef)

	// 2. 首次推进 (version 0)
	v1 := addr(t, "v1")
	require.NoError(t, mgr.Advance(ctx, "site", v1, 0))

	got, ver, err := mgr.Resolve(ctx, "site")
	require.NoError(t, err)
	assert.True(t, v1.Equals(got))
	assert.Equal(t, int64(1), ver)

	// 3. 基于版本 1 推进
	v2 := addr(t, "v2")
	require.NoError(t, mgr.Advance(ctx, "site", v2, ver))

	got, ver, err = mgr.Resolve(ctx, "site")
	require.NoError(t, err)
	assert.True(t, v2.Equals(got))
	assert.Equal(t, int64(2), ver)
}

func TestRefFlow_OptimisticLocking(t *testing.T) {
	mgr := setupTestEnv(t)
	ctx := context.Background()

	require.NoError(t, mgr.Advance(ctx, "site", addr(t, "v1"), 0))
	_, ver, err := mgr.Resolve(ctx, "site")
	require.NoError(t, err)

	// B 先成功
	b := addr(t, "B")
	require.NoError(t, mgr.Advance(ctx, "site", b, ver))

	// A 拿着过期的版本
	err = mgr.Advance(ctx, "site", addr(t, "A"), ver)
	assert.ErrorIs(t, err, ErrStaleRef)

	cur, curVer, err := mgr.Resolve(ctx, "site")
	require.NoError(t, err)
	assert.True(t, b.Equals(cur), "ref should keep B's value")
	assert.Equal(t, int64(2), curVer)
}

func TestSetAndList(t *testing.T) {
	mgr := setupTestEnv(t)
	ctx := context.Background()

	require.NoError(t, mgr.Set(ctx, "b", addr(t, "1")))
	require.NoError(t, mgr.Set(ctx, "a", addr(t, "2")))
	require.NoError(t, mgr.Set(ctx, "a", addr(t, "3")))

	refs, err := mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "a", refs[0].Name)
	assert.Equal(t, int64(2), refs[0].Version)
	assert.Equal(t, addr(t, "3").String(), refs[0].Root)
}
