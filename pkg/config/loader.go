package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀：store.http.url -> CBV_STORE_HTTP_URL
const EnvPrefix = "CBV"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序：当前目录，./.cbv，~/.cbv
		viper.AddConfigPath(".")
		viper.AddConfigPath(".cbv")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".cbv"))
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
		// 没有配置文件也能只靠默认值和环境变量运行
		return nil
	}
	fmt.Fprintln(os.Stderr, "🔧 Using config file:", viper.ConfigFileUsed())
	return nil
}

func setDefaults() {
	// 内容存储
	viper.SetDefault("store.type", "ipfs")
	viper.SetDefault("store.ipfs.binary", "ipfs")
	viper.SetDefault("store.ipfs.cid_version", 0)
	viper.SetDefault("store.http.url", "http://127.0.0.1:5001")
	viper.SetDefault("store.http.timeout", time.Minute)
	viper.SetDefault("store.http.upload_timeout", 0)
	viper.SetDefault("store.embedded.backend", "disk")
	viper.SetDefault("store.embedded.path", filepath.Join(".cbv", "blocks"))
	viper.SetDefault("store.embedded.s3.region", "us-east-1")
	viper.SetDefault("store.embedded.s3.prefix", "blocks/")
	viper.SetDefault("store.embedded.cache.redis_url", "")
	viper.SetDefault("store.embedded.cache.ttl", 24*time.Hour)

	// 同步
	viper.SetDefault("sync.immutable_extensions", []string{".flac", ".wav"})
	viper.SetDefault("sync.upload_concurrency", 1)
	viper.SetDefault("sync.ignore_file", ".cbignore")

	// 网关预热
	viper.SetDefault("gateway.templates", []string{})
	viper.SetDefault("gateway.timeout", 30*time.Second)
	viper.SetDefault("gateway.concurrency", 4)

	// 元数据库
	viper.SetDefault("meta.enabled", true)
	viper.SetDefault("meta.driver", "sqlite")
	viper.SetDefault("meta.dsn", "")

	viper.SetDefault("state.dir", ".cbv")

	// 日志
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.file", "")

	// 外部工具与站点生成
	viper.SetDefault("tools.ffmpeg", "ffmpeg")
	viper.SetDefault("tools.mediainfo", "mediainfo")
	viper.SetDefault("render.artist", "Colin Bendres")
	viper.SetDefault("render.playlist_base", "https://ipfs.io/ipns/mm.em32.net")
}

// StateDir 返回状态目录 (锁文件、sqlite 默认位置)
func StateDir() string {
	dir := viper.GetString("state.dir")
	if dir == "" {
		dir = ".cbv"
	}
	return dir
}

// MetaDSN 返回元数据库 DSN，sqlite 未配置时放在状态目录下
func MetaDSN() string {
	if dsn := viper.GetString("meta.dsn"); dsn != "" {
		return dsn
	}
	if viper.GetString("meta.driver") == "postgres" {
		return ""
	}
	return filepath.Join(StateDir(), "meta.db")
}
