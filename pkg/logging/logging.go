// Package logging 构建全局 *slog.Logger：终端输出，加上可选的滚动日志文件
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level  string // debug|info|warn|error
	Format string // text|json
	File   string // 为空则只写终端

	// Output 默认 os.Stderr (stdout 留给命令输出)
	Output io.Writer
}

// 滚动策略 (MB / 个 / 天)
const (
	rotateMaxSize    = 64
	rotateMaxBackups = 5
	rotateMaxAge     = 30
)

// New 返回 logger 和一个关闭文件句柄的函数
func New(opts Options) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: level}
	console, err := newHandler(opts.Format, out, hopts)
	if err != nil {
		return nil, nil, err
	}

	closer := func() error { return nil }
	handlers := []slog.Handler{console}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    rotateMaxSize,
			MaxBackups: rotateMaxBackups,
			MaxAge:     rotateMaxAge,
		}
		// 文件里总是 JSON，方便事后检索
		handlers = append(handlers, slog.NewJSONHandler(file, hopts))
		closer = file.Close
	}

	return slog.New(newFanoutHandler(handlers...)), closer, nil
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// ParseLevel 解析日志级别，空串为 info
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
