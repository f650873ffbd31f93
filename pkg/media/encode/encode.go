// Package encode 把母带转码为发布用的有损格式
package encode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var ErrEncode = errors.New("encode failed")

// Converter 把 in 转码为 out，输出格式由 out 的扩展名决定
type Converter interface {
	Convert(ctx context.Context, in, out string) error
}

// FFmpeg 是基于 ffmpeg 命令行的 Converter
type FFmpeg struct {
	Binary string
	// ExtraArgs 插在输出路径之前 (例如 "-q:a", "6")
	ExtraArgs []string
}

var _ Converter = FFmpeg{}

func (f FFmpeg) Convert(ctx context.Context, in, out string) error {
	binary := strings.TrimSpace(f.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if _, err := os.Stat(in); err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error", "-y", "-i", in}
	args = append(args, f.ExtraArgs...)
	args = append(args, out)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// 不留下半截输出
		_ = os.Remove(out)
		return fmt.Errorf("%w: %s %s: %w: %s", ErrEncode, binary, filepath.Base(in), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Pair 是一次转码任务
type Pair struct {
	In  string
	Out string
}

// ConvertMissing 只转换输出尚不存在的任务，返回实际转换的数量
// 遇到第一个失败就停止
func ConvertMissing(ctx context.Context, conv Converter, pairs []Pair, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	converted := 0
	for _, p := range pairs {
		if _, err := os.Stat(p.Out); err == nil {
			logger.Debug("output exists, skipping", slog.String("out", p.Out))
			continue
		}
		logger.Info("converting", slog.String("in", p.In), slog.String("out", p.Out))
		if err := conv.Convert(ctx, p.In, p.Out); err != nil {
			return converted, err
		}
		converted++
	}
	return converted, nil
}
