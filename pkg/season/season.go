// Package season 描述一季录音的目录：季 JSON 引用若干录音 JSON，
// 每个录音在数据目录下有自己的文件夹
package season

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cbvault/pkg/media/encode"
	"cbvault/pkg/media/probe"
	"cbvault/pkg/schema"
)

type Season struct {
	Title      string       `json:"title"`
	Recordings []*Recording `json:"recordings"`
}

// AudioPair 是同一段音频的无损原件和 Vorbis 转码
type AudioPair struct {
	Flac      string           `json:"flac"`
	Vorbis    string           `json:"vorbis"`
	MediaInfo *probe.MediaInfo `json:"media_info,omitempty"`
}

type Recording struct {
	Title        string    `json:"title"`
	DataFolder   string    `json:"data_folder"`
	StereoMix    AudioPair `json:"stereo_mix"`
	RecordedDate string    `json:"recorded_date"`
	Torrent      string    `json:"torrent"`
	Tracks       []*Track  `json:"tracks"`
	Tags         []string  `json:"tags"`

	dir string // 磁盘上的数据目录，从元数据文件恢复时为空
}

type Track struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Flac       string `json:"flac"`
	Vorbis     string `json:"vorbis"`
	PatchNotes string `json:"patch_notes,omitempty"`

	dir string
}

// seasonFile 是 season.json 的原始形状，recordings 是相对路径
type seasonFile struct {
	Title      string   `json:"title"`
	Recordings []string `json:"recordings"`
}

// Load 读取并校验季 JSON 和它引用的每个录音 JSON
// 录音文件相对季 JSON 解析，音频文件相对 dataRoot/<data_folder> 解析
func Load(seasonJSON, dataRoot string) (*Season, error) {
	var raw seasonFile
	if err := schema.Decode(seasonJSON, &raw); err != nil {
		return nil, err
	}

	s := &Season{Title: raw.Title}
	base := filepath.Dir(seasonJSON)
	for _, ref := range raw.Recordings {
		rec, err := loadRecording(filepath.Join(base, ref), dataRoot)
		if err != nil {
			return nil, err
		}
		s.Recordings = append(s.Recordings, rec)
	}
	return s, nil
}

func loadRecording(path, dataRoot string) (*Recording, error) {
	var rec Recording
	if err := schema.Decode(path, &rec); err != nil {
		return nil, err
	}
	rec.bind(filepath.Join(dataRoot, rec.DataFolder))
	return &rec, nil
}

func (r *Recording) bind(dir string) {
	r.dir = dir
	for _, t := range r.Tracks {
		t.dir = dir
	}
}

// LoadMetadata 从 WriteMetadata 的输出恢复一个季，不需要数据目录
func LoadMetadata(path string) (*Season, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Season
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// WriteMetadata 把已解析的季 (含 MediaInfo) 写成单个 JSON
func WriteMetadata(s *Season, path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Tags 返回全部录音标签的去重排序列表
func (s *Season) Tags() []string {
	set := make(map[string]struct{})
	for _, rec := range s.Recordings {
		for _, tag := range rec.Tags {
			set[tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ConversionPairs 列出所有 flac -> ogg 的转码任务 (立体声混音在前)
func (s *Season) ConversionPairs() []encode.Pair {
	var pairs []encode.Pair
	for _, rec := range s.Recordings {
		pairs = append(pairs, encode.Pair{
			In:  filepath.Join(rec.dir, rec.StereoMix.Flac),
			Out: filepath.Join(rec.dir, rec.StereoMix.Vorbis),
		})
		for _, t := range rec.Tracks {
			pairs = append(pairs, encode.Pair{
				In:  filepath.Join(t.dir, t.Flac),
				Out: filepath.Join(t.dir, t.Vorbis),
			})
		}
	}
	return pairs
}

func (r *Recording) FlacSize() string { return sizeMB(r.dir, r.StereoMix.Flac) }
func (r *Recording) OggSize() string  { return sizeMB(r.dir, r.StereoMix.Vorbis) }
func (t *Track) FlacSize() string     { return sizeMB(t.dir, t.Flac) }
func (t *Track) OggSize() string      { return sizeMB(t.dir, t.Vorbis) }

func sizeMB(dir, name string) string {
	if dir == "" {
		return "unknown"
	}
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		return "unknown"
	}
	return fmt.Sprintf("%dMB", info.Size()/1024/1024)
}

// Duration 以 "42s" / "3m 5s" 显示混音时长
func (r *Recording) Duration() string {
	if r.StereoMix.MediaInfo == nil {
		return "unknown"
	}
	sec := r.StereoMix.MediaInfo.RoundedSeconds()
	switch {
	case sec < 0:
		return "unknown"
	case sec <= 59:
		return fmt.Sprintf("%ds", sec)
	default:
		return fmt.Sprintf("%dm %ds", sec/60, sec%60)
	}
}
