package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"cbvault/pkg/contentstore/embedded"
	"cbvault/pkg/contentstore/httpapi"
	"cbvault/pkg/contentstore/ipfscli"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitStore_Types(t *testing.T) {
	tests := []struct {
		storeType string
		check     func(t *testing.T, s any)
	}{
		{"ipfs", func(t *testing.T, s any) { assert.IsType(t, &ipfscli.Client{}, s) }},
		{"http", func(t *testing.T, s any) { assert.IsType(t, &httpapi.Client{}, s) }},
		{"embedded", func(t *testing.T, s any) { assert.IsType(t, &embedded.Store{}, s) }},
	}
	for _, tt := range tests {
		t.Run(tt.storeType, func(t *testing.T) {
			viper.Reset()
			viper.Set("store.type", tt.storeType)
			viper.Set("store.embedded.path", filepath.Join(t.TempDir(), "blocks"))

			factory, closer, err := initStore(context.Background(), slog.Default())
			require.NoError(t, err)
			defer closer()
			tt.check(t, factory(nil))
		})
	}
}

func TestInitStore_S3_MissingBucket(t *testing.T) {
	viper.Reset()
	viper.Set("store.type", "embedded")
	viper.Set("store.embedded.backend", "s3")
	// 故意不设置 bucket

	_, _, err := initStore(context.Background(), slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestInitStore_UnknownType(t *testing.T) {
	viper.Reset()
	viper.Set("store.type", "ftp")

	_, _, err := initStore(context.Background(), slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store type")

	viper.Set("store.type", "embedded")
	viper.Set("store.embedded.backend", "tape")
	_, _, err = initStore(context.Background(), slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage type")
}

func TestNewApp_Embedded(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	viper.Set("store.type", "embedded")
	viper.Set("store.embedded.path", filepath.Join(dir, "blocks"))
	viper.Set("state.dir", filepath.Join(dir, "state"))
	viper.Set("meta.enabled", true)
	viper.Set("meta.driver", "sqlite")
	viper.Set("sync.ignore_file", ".cbignore")

	a, err := NewApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Embedded()
	assert.True(t, ok)
	require.NotNil(t, a.Refs)
	assert.FileExists(t, filepath.Join(dir, "state", "meta.db"))

	s, err := a.Syncer(dir, nil)
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.NotNil(t, a.Prober())
}

func TestNewApp_MetaDisabled(t *testing.T) {
	viper.Reset()
	viper.Set("store.type", "ipfs")
	viper.Set("meta.enabled", false)

	a, err := NewApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Refs)
	assert.Nil(t, a.Repository)
	_, ok := a.Embedded()
	assert.False(t, ok)
}
