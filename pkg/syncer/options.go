package syncer

import (
	"log/slog"
	"path/filepath"
	"strings"

	"cbvault/pkg/ignore"
)

// DefaultImmutableExtensions 是默认的“发布后不再上传”扩展名
// 音频母带很大，一旦发布就当作只追加
var DefaultImmutableExtensions = []string{".flac", ".wav"}

type Options struct {
	// ImmutableExtensions 中的文件只要远端已有同名链接就不再上传，
	// 即使本地字节已经改变。大小写不敏感，可以带或不带前导点
	ImmutableExtensions []string

	// Ignore 命中的本地条目视为不存在
	Ignore *ignore.Matcher

	// UploadConcurrency 控制同一目录内上传的并行度，<= 1 表示严格顺序
	UploadConcurrency int

	Logger *slog.Logger

	// OnEvent 在每个条目的决定落地后调用 (总是在调用 Sync 的 goroutine 中)
	OnEvent func(Event)
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.UploadConcurrency < 1 {
		o.UploadConcurrency = 1
	}
	exts := make([]string, 0, len(o.ImmutableExtensions))
	for _, e := range o.ImmutableExtensions {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, strings.ToLower(e))
	}
	o.ImmutableExtensions = exts
	return o
}

func (o Options) immutable(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, e := range o.ImmutableExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
