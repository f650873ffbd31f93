package season

import (
	"bufio"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultArtist       = "Colin Bendres"
	DefaultPlaylistBase = "https://ipfs.io/ipns/mm.em32.net"
)

//go:embed assets/*.html assets/style.css assets/ToS.txt
var assets embed.FS

var pages = template.Must(template.ParseFS(assets, "assets/*.html"))

// staticFiles 会被复制到每个生成 index.html 的目录
var staticFiles = []string{"style.css", "ToS.txt"}

type RenderOptions struct {
	Artist       string
	PlaylistBase string
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.Artist == "" {
		o.Artist = DefaultArtist
	}
	if o.PlaylistBase == "" {
		o.PlaylistBase = DefaultPlaylistBase
	}
	o.PlaylistBase = strings.TrimRight(o.PlaylistBase, "/")
	return o
}

// Render 在 outDir 下生成季首页、每个录音的页面和 playlist.m3u
func Render(s *Season, outDir string, opts RenderOptions) error {
	opts = opts.withDefaults()

	// 1. 季首页
	err := writePage(outDir, "season_index.html", map[string]any{
		"Season": s,
		"Tags":   s.Tags(),
	})
	if err != nil {
		return err
	}

	// 2. 每个录音一个页面
	for _, rec := range s.Recordings {
		err := writePage(filepath.Join(outDir, rec.DataFolder), "recording_index.html", map[string]any{
			"Season":    s,
			"Recording": rec,
		})
		if err != nil {
			return err
		}
	}

	// 3. 播放列表
	return writePlaylist(s, filepath.Join(outDir, "playlist.m3u"), opts)
}

func writePage(dir, tmpl string, data any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "index.html"))
	if err != nil {
		return err
	}
	if err := pages.ExecuteTemplate(f, tmpl, data); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", tmpl, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	for _, name := range staticFiles {
		data, err := assets.ReadFile("assets/" + name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// writePlaylist 写扩展 M3U，时长未知时按惯例写 -1
func writePlaylist(s *Season, path string, opts RenderOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	fmt.Fprintln(w, "#EXTM3U")
	for _, rec := range s.Recordings {
		secs := -1
		if rec.StereoMix.MediaInfo != nil {
			secs = rec.StereoMix.MediaInfo.RoundedSeconds()
		}
		fmt.Fprintf(w, "#EXTINF:%d,%s - %s\n", secs, opts.Artist, rec.Title)
		fmt.Fprintf(w, "%s/%s/%s\n", opts.PlaylistBase, rec.DataFolder, strings.ReplaceAll(rec.StereoMix.Vorbis, " ", "%20"))
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
