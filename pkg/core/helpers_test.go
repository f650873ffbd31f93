package core

import (
	"testing"

	"cbvault/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 辅助工具
// -----------------------------------------------------------------------------

// mockAddr 为任意字符串生成一个合法的 raw 地址
func mockAddr(t *testing.T, input string) types.Address {
	t.Helper()
	a, err := types.SumAddress(types.CodecRaw, []byte(input))
	require.NoError(t, err)
	return a
}

// mustBuildDirectory 创建目录，如果失败直接终止测试
func mustBuildDirectory(t *testing.T, links []Link, msgAndArgs ...any) *Directory {
	t.Helper()
	d, err := BuildDirectory(links)
	require.NoError(t, err, msgAndArgs...)
	return d
}
