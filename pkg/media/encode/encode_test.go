package encode

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConverter 记录调用，并写一个假的输出文件
type fakeConverter struct {
	mu    sync.Mutex
	calls []Pair
	fail  error
}

func (f *fakeConverter) Convert(ctx context.Context, in, out string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Pair{In: in, Out: out})
	if f.fail != nil {
		return f.fail
	}
	return os.WriteFile(out, []byte("ogg"), 0644)
}

func TestConvertMissing(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "done.ogg")
	require.NoError(t, os.WriteFile(existing, []byte("ogg"), 0644))

	pairs := []Pair{
		{In: filepath.Join(dir, "done.flac"), Out: existing},
		{In: filepath.Join(dir, "new.flac"), Out: filepath.Join(dir, "new.ogg")},
	}

	conv := &fakeConverter{}
	n, err := ConvertMissing(context.Background(), conv, pairs, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []Pair{pairs[1]}, conv.calls)

	// 第二次全部已存在
	n, err = ConvertMissing(context.Background(), conv, pairs, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestConvertMissing_StopsOnError(t *testing.T) {
	dir := t.TempDir()
	conv := &fakeConverter{fail: ErrEncode}
	pairs := []Pair{
		{In: "a.flac", Out: filepath.Join(dir, "a.ogg")},
		{In: "b.flac", Out: filepath.Join(dir, "b.ogg")},
	}

	n, err := ConvertMissing(context.Background(), conv, pairs, nil)
	assert.ErrorIs(t, err, ErrEncode)
	assert.Equal(t, 0, n)
	assert.Len(t, conv.calls, 1)
}

func TestFFmpeg_MissingInput(t *testing.T) {
	err := FFmpeg{Binary: "ffmpeg-does-not-matter"}.Convert(context.Background(),
		filepath.Join(t.TempDir(), "missing.flac"), filepath.Join(t.TempDir(), "out.ogg"))
	assert.ErrorIs(t, err, ErrEncode)
}

func TestFFmpeg_MissingBinary(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.flac")
	require.NoError(t, os.WriteFile(in, []byte("flac"), 0644))

	err := FFmpeg{Binary: "cbv-no-such-ffmpeg"}.Convert(context.Background(), in, filepath.Join(t.TempDir(), "out.ogg"))
	assert.ErrorIs(t, err, ErrEncode)
}
