// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cbvault/pkg/config"
	"cbvault/pkg/contentstore"
	"cbvault/pkg/contentstore/embedded"
	"cbvault/pkg/contentstore/httpapi"
	"cbvault/pkg/contentstore/ipfscli"
	"cbvault/pkg/gateway"
	"cbvault/pkg/ignore"
	"cbvault/pkg/logging"
	"cbvault/pkg/media/encode"
	"cbvault/pkg/media/probe"
	"cbvault/pkg/meta"
	"cbvault/pkg/refs"
	"cbvault/pkg/storage"
	"cbvault/pkg/storage/cache"
	"cbvault/pkg/storage/disk"
	"cbvault/pkg/storage/s3"
	"cbvault/pkg/syncer"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Logger *slog.Logger

	// Store 是不带忽略规则的内容存储 (ls / prime / fetch 使用)
	Store contentstore.ContentStore

	// Repository / Refs 在 meta.enabled=false 时为 nil
	Repository *meta.Repository
	Refs       *refs.Manager

	StateDir string

	newStore storeFactory
	closers  []func() error
}

// storeFactory 按忽略规则构造内容存储；规则以同步根目录为基准
type storeFactory func(m *ignore.Matcher) contentstore.ContentStore

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	a := &App{StateDir: config.StateDir()}

	// 1. 日志
	logger, closeLog, err := logging.New(logging.Options{
		Level:  viper.GetString("log.level"),
		Format: viper.GetString("log.format"),
		File:   viper.GetString("log.file"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init logging: %w", err)
	}
	a.Logger = logger
	a.closers = append(a.closers, closeLog)
	slog.SetDefault(logger)

	// 2. 内容存储
	factory, closeStore, err := initStore(ctx, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to init store: %w", err)
	}
	a.newStore = factory
	a.Store = factory(nil)
	a.closers = append(a.closers, closeStore)

	// 3. 元数据库 (可选)
	if viper.GetBool("meta.enabled") {
		db, err := initMeta(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to init metadata: %w", err)
		}
		a.Repository = meta.NewRepository(db)
		a.Refs = refs.NewManager(a.Repository)
		a.closers = append(a.closers, db.Close)
	}

	return a, nil
}

// Close 按创建的逆序释放资源
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Ignore 构造以 root 为基准的忽略规则 (sync.ignore_file)
func (a *App) Ignore(root string) (*ignore.Matcher, error) {
	return ignore.NewMatcher(root, viper.GetString("sync.ignore_file"))
}

// StoreFor 返回应用了忽略规则的内容存储
func (a *App) StoreFor(m *ignore.Matcher) contentstore.ContentStore {
	return a.newStore(m)
}

// Embedded 在 store.type=embedded 时返回进程内存储
func (a *App) Embedded() (*embedded.Store, bool) {
	s, ok := a.Store.(*embedded.Store)
	return s, ok
}

// Syncer 为 localDir 组装同步器
func (a *App) Syncer(localDir string, onEvent func(syncer.Event)) (*syncer.Synchronizer, error) {
	m, err := a.Ignore(localDir)
	if err != nil {
		return nil, err
	}
	return syncer.New(a.StoreFor(m), syncer.Options{
		ImmutableExtensions: viper.GetStringSlice("sync.immutable_extensions"),
		Ignore:              m,
		UploadConcurrency:   viper.GetInt("sync.upload_concurrency"),
		Logger:              a.Logger.With(slog.String("component", "syncer")),
		OnEvent:             onEvent,
	}), nil
}

// Prober 返回网关预热器
func (a *App) Prober() *gateway.Prober {
	return gateway.NewProber(a.Store, gateway.Config{
		Templates:   viper.GetStringSlice("gateway.templates"),
		Timeout:     viper.GetDuration("gateway.timeout"),
		Concurrency: viper.GetInt("gateway.concurrency"),
	}, a.Logger.With(slog.String("component", "gateway")))
}

// Converter 和 MediaProber 只依赖配置，不需要完整的 App
func Converter() encode.Converter {
	return encode.FFmpeg{Binary: viper.GetString("tools.ffmpeg")}
}

func MediaProber() probe.Prober {
	return probe.MediaInfoCLI{Binary: viper.GetString("tools.mediainfo")}
}

// initStore 根据 store.type 选择内容存储实现
func initStore(ctx context.Context, logger *slog.Logger) (storeFactory, func() error, error) {
	noop := func() error { return nil }
	storeLogger := logger.With(slog.String("component", "store"))

	switch t := viper.GetString("store.type"); t {
	case "ipfs", "":
		client := ipfscli.New(ipfscli.Config{
			Binary:     viper.GetString("store.ipfs.binary"),
			CidVersion: viper.GetInt("store.ipfs.cid_version"),
		}, storeLogger)
		// 守护进程自己跳过隐藏文件
		return func(*ignore.Matcher) contentstore.ContentStore { return client }, noop, nil

	case "http":
		cfg := httpapi.Config{
			URL:           viper.GetString("store.http.url"),
			Timeout:       viper.GetDuration("store.http.timeout"),
			UploadTimeout: viper.GetDuration("store.http.upload_timeout"),
			CidVersion:    viper.GetInt("store.ipfs.cid_version"),
		}
		if _, err := httpapi.New(cfg, storeLogger); err != nil {
			return nil, nil, err
		}
		return func(m *ignore.Matcher) contentstore.ContentStore {
			// 配置已在上面验证过
			c, _ := httpapi.New(cfg, storeLogger)
			return c.WithIgnore(m)
		}, noop, nil

	case "embedded":
		blocks, closer, err := initBlocks(ctx, logger)
		if err != nil {
			return nil, nil, err
		}
		return func(m *ignore.Matcher) contentstore.ContentStore {
			return embedded.New(blocks, embedded.WithIgnore(m), embedded.WithLogger(storeLogger))
		}, closer, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store type: %s", t)
	}
}

// initBlocks 初始化内嵌存储的块存储层，可选叠加 Redis 缓存
func initBlocks(ctx context.Context, logger *slog.Logger) (storage.Store, func() error, error) {
	var (
		blocks storage.Store
		err    error
	)
	switch backend := viper.GetString("store.embedded.backend"); backend {
	case "disk", "":
		blocks, err = disk.NewAdapter(viper.GetString("store.embedded.path"))
	case "s3":
		blocks, err = s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("store.embedded.s3.endpoint"),
			Region:          viper.GetString("store.embedded.s3.region"),
			Bucket:          viper.GetString("store.embedded.s3.bucket"),
			Prefix:          viper.GetString("store.embedded.s3.prefix"),
			AccessKeyID:     viper.GetString("store.embedded.s3.access_key"),
			SecretAccessKey: viper.GetString("store.embedded.s3.secret_key"),
		})
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", backend)
	}
	if err != nil {
		return nil, nil, err
	}

	redisURL := viper.GetString("store.embedded.cache.redis_url")
	if redisURL == "" {
		return blocks, func() error { return nil }, nil
	}
	cached, err := cache.NewCachedStore(blocks, cache.Config{
		RedisURL: redisURL,
		TTL:      viper.GetDuration("store.embedded.cache.ttl"),
	}, logger.With(slog.String("component", "cache")))
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

func initMeta(ctx context.Context) (*meta.DB, error) {
	driver := viper.GetString("meta.driver")
	dsn := config.MetaDSN()
	if dsn == "" {
		return nil, fmt.Errorf("meta.dsn is required for driver %s", driver)
	}
	if driver == "sqlite" || driver == "" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, err
		}
	}
	return meta.Open(ctx, meta.Config{Driver: driver, DSN: dsn})
}
