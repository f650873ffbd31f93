package contentstore

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound 地址不存在，或者不是目录形状的对象
	ErrNotFound = errors.New("not found")
	// ErrDecode 存储返回的负载无法解析成链接结构
	ErrDecode = errors.New("decode error")
	// ErrTransport 远端进程或网络失败
	ErrTransport = errors.New("transport error")
	// ErrIO 本地文件系统访问失败
	ErrIO = errors.New("io error")
	// ErrConflict 存储拒绝了 patch
	ErrConflict = errors.New("conflict")
)

// Classify 返回错误在分类体系中的名字，用于诊断输出
// 不属于任何分类时返回空串
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrDecode):
		return "DecodeError"
	case errors.Is(err, ErrTransport):
		return "TransportError"
	case errors.Is(err, ErrIO):
		return "IOError"
	case errors.Is(err, ErrConflict):
		return "Conflict"
	default:
		return ""
	}
}

// notFoundMarkers 是守护进程报告“对象不存在 / 不是目录”时错误信息中的特征
// 命令行 stderr 和 HTTP API 的 Message 使用同一组文本
var notFoundMarkers = []string{
	"not found",
	"no link named",
	"not a directory",
	"expected protobuf dag node",
	"unsupported",
	"proto: ",
	"invalid cid",
}

// IsNotFoundMessage 判断守护进程的错误信息是否表示地址不能作为目录读取
func IsNotFoundMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range notFoundMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
