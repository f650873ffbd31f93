// Package probe 读取音频文件的技术元数据
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

var ErrProbe = errors.New("probe failed")

// MediaInfo 是音频轨道的技术信息，字段保持 mediainfo 输出的原始字符串
type MediaInfo struct {
	Format       string `json:"Format"`
	Channels     string `json:"Channels"`
	SamplingRate string `json:"SamplingRate"`
	BitDepth     string `json:"BitDepth"`
	Duration     string `json:"Duration"`
}

// DurationSeconds 解析 Duration (秒，可能带小数)
func (m MediaInfo) DurationSeconds() (float64, error) {
	d, err := strconv.ParseFloat(strings.TrimSpace(m.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q: %w", ErrProbe, m.Duration, err)
	}
	return d, nil
}

// RoundedSeconds 四舍五入到整秒，解析失败返回 -1 (m3u 中表示未知时长)
func (m MediaInfo) RoundedSeconds() int {
	d, err := m.DurationSeconds()
	if err != nil {
		return -1
	}
	return int(math.Round(d))
}

// Prober 提取一个文件的 MediaInfo
type Prober interface {
	Probe(ctx context.Context, path string) (MediaInfo, error)
}

// MediaInfoCLI 调用 mediainfo 命令行
type MediaInfoCLI struct {
	Binary string
}

var _ Prober = MediaInfoCLI{}

func (p MediaInfoCLI) Probe(ctx context.Context, path string) (MediaInfo, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "mediainfo"
	}
	// 先确认路径存在，避免把“文件不存在”误报成解析失败
	if _, err := os.Stat(path); err != nil {
		return MediaInfo{}, fmt.Errorf("%w: %w", ErrProbe, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "--Output=JSON", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return MediaInfo{}, fmt.Errorf("%w: %s: %w: %s", ErrProbe, binary, err, strings.TrimSpace(stderr.String()))
	}

	info, err := Parse(stdout.Bytes())
	if err != nil {
		return MediaInfo{}, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

type mediainfoOutput struct {
	Media struct {
		Track []json.RawMessage `json:"track"`
	} `json:"media"`
}

// Parse 从 mediainfo 的 JSON 输出中取第一条 Audio 轨道
func Parse(data []byte) (MediaInfo, error) {
	var out mediainfoOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return MediaInfo{}, fmt.Errorf("%w: %w", ErrProbe, err)
	}

	for _, raw := range out.Media.Track {
		var head struct {
			Type string `json:"@type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return MediaInfo{}, fmt.Errorf("%w: %w", ErrProbe, err)
		}
		if head.Type != "Audio" {
			continue
		}
		var info MediaInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return MediaInfo{}, fmt.Errorf("%w: %w", ErrProbe, err)
		}
		return info, nil
	}
	return MediaInfo{}, fmt.Errorf("%w: no audio track", ErrProbe)
}
