package season

import (
	"context"
	"fmt"
	"path/filepath"

	"cbvault/pkg/media/probe"
)

// Probe 为每个录音的立体声混音 (flac 原件) 填充 MediaInfo
// 从元数据文件恢复的录音没有数据目录，保留已有的值
func (s *Season) Probe(ctx context.Context, p probe.Prober) error {
	for _, rec := range s.Recordings {
		if rec.dir == "" {
			continue
		}
		info, err := p.Probe(ctx, filepath.Join(rec.dir, rec.StereoMix.Flac))
		if err != nil {
			return fmt.Errorf("recording %q: %w", rec.Title, err)
		}
		rec.StereoMix.MediaInfo = &info
	}
	return nil
}
