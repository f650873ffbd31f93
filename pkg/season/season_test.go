package season

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cbvault/pkg/media/probe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recordingSchema = `{
  "type": "object",
  "required": ["title", "data_folder", "stereo_mix", "tracks"],
  "properties": {
    "title": {"type": "string"},
    "data_folder": {"type": "string"},
    "stereo_mix": {
      "type": "object",
      "required": ["flac", "vorbis"]
    },
    "tracks": {"type": "array"}
  }
}`

type fixture struct {
	root       string
	seasonJSON string
	data       string
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newFixture 建一个季：两个录音，第二个缺少 torrent 和一个 ogg
func newFixture(t *testing.T) fixture {
	root := t.TempDir()
	f := fixture{
		root:       root,
		seasonJSON: filepath.Join(root, "meta", "season.json"),
		data:       filepath.Join(root, "data"),
	}

	writeFile(t, filepath.Join(root, "meta", "recording.schema.json"), recordingSchema)
	writeFile(t, f.seasonJSON, `{
  "title": "Season One",
  "recordings": ["rec/first.json", "rec/second.json"]
}`)
	writeFile(t, filepath.Join(root, "meta", "rec", "first.json"), `{
  "$schema": "../recording.schema.json",
  "title": "First Light",
  "data_folder": "first",
  "stereo_mix": {"flac": "mix.flac", "vorbis": "First Light.ogg"},
  "recorded_date": "2021-03-04",
  "torrent": "first.torrent",
  "tracks": [
    {"id": 1, "name": "Kick", "flac": "01.flac", "vorbis": "01.ogg"},
    {"id": 2, "name": "Bass", "flac": "02.flac", "vorbis": "02.ogg", "patch_notes": "re-amped"}
  ],
  "tags": ["live", "ambient"]
}`)
	writeFile(t, filepath.Join(root, "meta", "rec", "second.json"), `{
  "$schema": "../recording.schema.json",
  "title": "Second Wind",
  "data_folder": "second",
  "stereo_mix": {"flac": "mix.flac", "vorbis": "mix.ogg"},
  "recorded_date": "2021-05-06",
  "torrent": "second.torrent",
  "tracks": [
    {"id": 1, "name": "Keys", "flac": "01.flac", "vorbis": "01.ogg"}
  ],
  "tags": ["live", "drone"]
}`)

	for _, name := range []string{"mix.flac", "First Light.ogg", "first.torrent", "01.flac", "01.ogg", "02.flac", "02.ogg"} {
		writeFile(t, filepath.Join(f.data, "first", name), "x")
	}
	for _, name := range []string{"mix.flac", "mix.ogg", "01.flac"} {
		writeFile(t, filepath.Join(f.data, "second", name), "x")
	}
	return f
}

func TestLoad(t *testing.T) {
	f := newFixture(t)

	s, err := Load(f.seasonJSON, f.data)
	require.NoError(t, err)

	assert.Equal(t, "Season One", s.Title)
	require.Len(t, s.Recordings, 2)
	first := s.Recordings[0]
	assert.Equal(t, "First Light", first.Title)
	assert.Equal(t, "First Light.ogg", first.StereoMix.Vorbis)
	require.Len(t, first.Tracks, 2)
	assert.Equal(t, "re-amped", first.Tracks[1].PatchNotes)
	assert.Equal(t, "0MB", first.Tracks[0].FlacSize())
	assert.Equal(t, "unknown", s.Recordings[1].Tracks[0].OggSize())

	assert.Equal(t, []string{"ambient", "drone", "live"}, s.Tags())
}

func TestLoad_SchemaViolation(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "meta", "rec", "second.json"), `{
  "$schema": "../recording.schema.json",
  "title": "Broken"
}`)

	_, err := Load(f.seasonJSON, f.data)
	assert.Error(t, err)
}

func TestConversionPairs(t *testing.T) {
	f := newFixture(t)
	s, err := Load(f.seasonJSON, f.data)
	require.NoError(t, err)

	pairs := s.ConversionPairs()
	require.Len(t, pairs, 5)
	assert.Equal(t, filepath.Join(f.data, "first", "mix.flac"), pairs[0].In)
	assert.Equal(t, filepath.Join(f.data, "first", "First Light.ogg"), pairs[0].Out)
	assert.Equal(t, filepath.Join(f.data, "second", "01.ogg"), pairs[4].Out)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	problems, err := Validate(&buf, f.seasonJSON, f.data)
	require.NoError(t, err)

	// second: 缺 torrent、缺 01.ogg
	assert.Equal(t, 2, problems)
	out := buf.String()
	assert.Contains(t, out, "Checking season")
	assert.Contains(t, out, "torrent file doesn't exist")
	assert.Contains(t, out, "ogg vorbis file for `Second Wind` track 1 does not exist")
	assert.Contains(t, out, "Stereo mix")
}

type fakeProber struct {
	durations map[string]string
}

func (p fakeProber) Probe(_ context.Context, path string) (probe.MediaInfo, error) {
	d, ok := p.durations[path]
	if !ok {
		return probe.MediaInfo{}, probe.ErrProbe
	}
	return probe.MediaInfo{Format: "FLAC", Channels: "2", SamplingRate: "48000", BitDepth: "24", Duration: d}, nil
}

func TestProbe(t *testing.T) {
	f := newFixture(t)
	s, err := Load(f.seasonJSON, f.data)
	require.NoError(t, err)

	p := fakeProber{durations: map[string]string{
		filepath.Join(f.data, "first", "mix.flac"):  "42.4",
		filepath.Join(f.data, "second", "mix.flac"): "185.6",
	}}
	require.NoError(t, s.Probe(context.Background(), p))
	assert.Equal(t, "42s", s.Recordings[0].Duration())
	assert.Equal(t, "3m 6s", s.Recordings[1].Duration())

	delete(p.durations, filepath.Join(f.data, "second", "mix.flac"))
	err = s.Probe(context.Background(), p)
	assert.True(t, errors.Is(err, probe.ErrProbe))
}

func TestRender(t *testing.T) {
	f := newFixture(t)
	s, err := Load(f.seasonJSON, f.data)
	require.NoError(t, err)
	s.Recordings[0].StereoMix.MediaInfo = &probe.MediaInfo{Format: "FLAC", Duration: "1804.533"}

	out := filepath.Join(f.root, "site")
	require.NoError(t, Render(s, out, RenderOptions{}))

	playlist, err := os.ReadFile(filepath.Join(out, "playlist.m3u"))
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n"+
		"#EXTINF:1805,Colin Bendres - First Light\n"+
		"https://ipfs.io/ipns/mm.em32.net/first/First%20Light.ogg\n"+
		"#EXTINF:-1,Colin Bendres - Second Wind\n"+
		"https://ipfs.io/ipns/mm.em32.net/second/mix.ogg\n", string(playlist))

	index, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "Season One")
	assert.Contains(t, string(index), `href="first/index.html"`)

	rec, err := os.ReadFile(filepath.Join(out, "first", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(rec), "re-amped")
	assert.Contains(t, string(rec), "30m 5s")

	for _, dir := range []string{out, filepath.Join(out, "first"), filepath.Join(out, "second")} {
		assert.FileExists(t, filepath.Join(dir, "style.css"))
		assert.FileExists(t, filepath.Join(dir, "ToS.txt"))
	}
}

func TestRender_Options(t *testing.T) {
	s := &Season{Title: "S", Recordings: []*Recording{{
		Title:      "Only",
		DataFolder: "only",
		StereoMix:  AudioPair{Vorbis: "a b.ogg", MediaInfo: &probe.MediaInfo{Duration: "2.5"}},
	}}}
	out := t.TempDir()
	require.NoError(t, Render(s, out, RenderOptions{Artist: "Someone", PlaylistBase: "https://example.org/"}))

	playlist, err := os.ReadFile(filepath.Join(out, "playlist.m3u"))
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n#EXTINF:3,Someone - Only\nhttps://example.org/only/a%20b.ogg\n", string(playlist))
}

func TestMetadata(t *testing.T) {
	f := newFixture(t)
	s, err := Load(f.seasonJSON, f.data)
	require.NoError(t, err)
	s.Recordings[0].StereoMix.MediaInfo = &probe.MediaInfo{Duration: "61"}

	path := filepath.Join(f.root, "metadata.json")
	require.NoError(t, WriteMetadata(s, path))

	restored, err := LoadMetadata(path)
	require.NoError(t, err)
	require.Len(t, restored.Recordings, 2)
	assert.Equal(t, "1m 1s", restored.Recordings[0].Duration())
	// 没有数据目录，大小未知，Probe 保留原值
	assert.Equal(t, "unknown", restored.Recordings[0].Tracks[0].FlacSize())
	require.NoError(t, restored.Probe(context.Background(), fakeProber{}))
	assert.Equal(t, "61", restored.Recordings[0].StereoMix.MediaInfo.Duration)
}
