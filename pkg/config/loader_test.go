package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	chdir(t, t.TempDir())

	require.NoError(t, Load(""))
	assert.Equal(t, "ipfs", viper.GetString("store.type"))
	assert.Equal(t, []string{".flac", ".wav"}, viper.GetStringSlice("sync.immutable_extensions"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("gateway.timeout"))
	assert.Equal(t, filepath.Join(".cbv", "meta.db"), MetaDSN())
}

func TestLoad_FileAndEnv(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
store:
  type: http
  http:
    url: http://daemon:5001
sync:
  upload_concurrency: 4
state:
  dir: /var/lib/cbv
`), 0o644))
	t.Setenv("CBV_STORE_HTTP_URL", "http://override:5001")

	require.NoError(t, Load(cfgFile))
	assert.Equal(t, "http", viper.GetString("store.type"))
	assert.Equal(t, "http://override:5001", viper.GetString("store.http.url"))
	assert.Equal(t, 4, viper.GetInt("sync.upload_concurrency"))
	assert.Equal(t, "/var/lib/cbv", StateDir())
	assert.Equal(t, filepath.Join("/var/lib/cbv", "meta.db"), MetaDSN())
}

func TestLoad_BrokenFile(t *testing.T) {
	viper.Reset()
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("store: [unclosed"), 0o644))

	assert.Error(t, Load(cfgFile))
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
