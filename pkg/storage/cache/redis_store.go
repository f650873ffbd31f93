package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cbvault/pkg/core"
	"cbvault/pkg/storage"
	"cbvault/pkg/types"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxBlockSize 超过这个大小的块只缓存存在性，不缓存内容
const DefaultMaxBlockSize = 64 * 1024

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 缓存层
type CachedStore struct {
	backend  storage.Store // 被装饰的底层存储 (如 S3)
	client   *redis.Client
	ttl      time.Duration
	maxBlock int
	logger   *slog.Logger
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
	// MaxBlockSize 控制哪些块的内容会被缓存 (目录节点通常都很小)
	// 0 表示使用 DefaultMaxBlockSize，负数表示不缓存内容
	MaxBlockSize int
}

func NewCachedStore(backend storage.Store, cfg Config, logger *slog.Logger) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	maxBlock := cfg.MaxBlockSize
	if maxBlock == 0 {
		maxBlock = DefaultMaxBlockSize
	}

	return &CachedStore{
		backend:  backend,
		client:   client,
		ttl:      cfg.TTL,
		maxBlock: maxBlock,
		logger:   logger,
	}, nil
}

// Close 释放 Redis 连接
func (s *CachedStore) Close() error {
	return s.client.Close()
}

func (s *CachedStore) existsKey(addr types.Address) string {
	return "cbv:has:" + addr.String()
}

func (s *CachedStore) blockKey(addr types.Address) string {
	return "cbv:blk:" + addr.String()
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, addr types.Address) (bool, error) {
	key := s.existsKey(addr)

	// 1. 查 Redis
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		// 缓存故障降级：Redis 挂了就退化为无缓存模式
		s.logger.Warn("redis exists failed, falling back to backend", slog.String("addr", addr.String()), slog.Any("err", err))
	} else if val > 0 {
		return true, nil
	}

	// 2. Cache Miss，查底层存储
	found, err := s.backend.Has(ctx, addr)
	if err != nil {
		return false, err
	}

	// 3. 异步回填，不阻塞主流程
	if found {
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, key, "1", s.ttl)
		}()
	}

	return found, nil
}

// Put 利用 Has 的缓存能力进行预检
func (s *CachedStore) Put(ctx context.Context, obj core.Object) error {
	exists, err := s.Has(ctx, obj.ID())
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.backend.Put(ctx, obj); err != nil {
		return err
	}

	// 只有底层写成功了，才写 Redis；这里的错误不影响主流程
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.existsKey(obj.ID()), "1", s.ttl)
	if s.cacheable(len(obj.Bytes())) {
		pipe.Set(ctx, s.blockKey(obj.ID()), obj.Bytes(), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("redis fill after put failed", slog.String("addr", obj.ID().String()), slog.Any("err", err))
	}
	return nil
}

// Get 小块 (目录、FileNode) 走缓存，大块直接透传
func (s *CachedStore) Get(ctx context.Context, addr types.Address) (io.ReadCloser, error) {
	if s.maxBlock > 0 {
		data, err := s.client.Get(ctx, s.blockKey(addr)).Bytes()
		switch {
		case err == nil:
			return io.NopCloser(bytes.NewReader(data)), nil
		case !errors.Is(err, redis.Nil):
			s.logger.Warn("redis get failed", slog.String("addr", addr.String()), slog.Any("err", err))
		}
	}

	rc, err := s.backend.Get(ctx, addr)
	if err != nil || s.maxBlock <= 0 {
		return rc, err
	}
	defer rc.Close()

	// 读上限 +1 字节，用来判断是否超过可缓存大小
	data, err := io.ReadAll(io.LimitReader(rc, int64(s.maxBlock)+1))
	if err != nil {
		return nil, err
	}
	if !s.cacheable(len(data)) {
		rest, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(append(data, rest...))), nil
	}

	if err := s.client.Set(ctx, s.blockKey(addr), data, s.ttl).Err(); err != nil {
		s.logger.Warn("redis block fill failed", slog.String("addr", addr.String()), slog.Any("err", err))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *CachedStore) cacheable(n int) bool {
	return s.maxBlock > 0 && n <= s.maxBlock
}
