// Package gateway 在同步完成后预热公共只读网关的缓存
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"cbvault/pkg/core"
	"cbvault/pkg/types"

	"golang.org/x/sync/errgroup"
)

// DefaultTemplates 是默认的网关地址模板
// {base32} / {v0} / {cid} 替换为地址的不同编码，{path} 替换为 "/<子链接名>" (根为空)
var DefaultTemplates = []string{
	"https://{base32}.ipfs.dweb.link{path}",
	"https://ipfs.io/ipfs/{v0}{path}",
	"https://gateway.pinata.cloud/ipfs/{cid}{path}",
}

var errNoEncoding = errors.New("template needs an encoding this address does not have")

// DirectoryFetcher 用于列出根目录的直接子链接
type DirectoryFetcher interface {
	FetchDirectory(ctx context.Context, addr types.Address) (*core.Directory, error)
}

type Config struct {
	Templates   []string
	Timeout     time.Duration // 单个请求的超时
	Concurrency int
}

// Result 是一次 GET 的结果
type Result struct {
	URL      string
	Status   int
	Err      error
	Duration time.Duration
}

// Summary 汇总一次预热
type Summary struct {
	Requests int
	OK       int
	Failed   int
	Skipped  int // 因为缺少编码而跳过的模板 × 路径
	Results  []Result
}

type Prober struct {
	dirs   DirectoryFetcher
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

func NewProber(dirs DirectoryFetcher, cfg Config, logger *slog.Logger) *Prober {
	if len(cfg.Templates) == 0 {
		cfg.Templates = DefaultTemplates
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		dirs:   dirs,
		client: &http.Client{},
		cfg:    cfg,
		logger: logger,
	}
}

// WithHTTPClient 替换 HTTP 客户端 (测试用)
func (p *Prober) WithHTTPClient(c *http.Client) *Prober {
	p.client = c
	return p
}

// Prime 对根和每个直接子链接各发一次 GET
// 预热失败只记录日志，永远不返回错误
func (p *Prober) Prime(ctx context.Context, root types.Address) Summary {
	// 1. 根 + 子链接路径
	paths := []string{""}
	dir, err := p.dirs.FetchDirectory(ctx, root)
	if err != nil {
		p.logger.Warn("could not list root links, priming root only", slog.String("root", root.String()), slog.Any("err", err))
	} else {
		for _, name := range dir.Names() {
			paths = append(paths, "/"+url.PathEscape(name))
		}
	}

	// 2. 展开模板
	var urls []string
	var summary Summary
	for _, tmpl := range p.cfg.Templates {
		for _, path := range paths {
			u, err := Expand(tmpl, root, path)
			if err != nil {
				if path == "" {
					p.logger.Warn("skipping gateway template", slog.String("template", tmpl), slog.Any("err", err))
				}
				summary.Skipped++
				continue
			}
			urls = append(urls, u)
		}
	}

	// 3. 有限并发地请求
	results := make([]Result, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			results[i] = p.get(gctx, u)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(results, func(a, b Result) int { return strings.Compare(a.URL, b.URL) })
	summary.Results = results
	summary.Requests = len(results)
	for _, r := range results {
		if r.Err == nil && r.Status < 400 {
			summary.OK++
		} else {
			summary.Failed++
		}
	}
	return summary
}

func (p *Prober) get(ctx context.Context, u string) Result {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res := Result{URL: u}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		res.Err = err
		p.logger.Warn("gateway request failed", slog.String("url", u), slog.Any("err", err))
		return res
	}

	resp, err := p.client.Do(req)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		p.logger.Warn("gateway request failed", slog.String("url", u), slog.Any("err", err))
		return res
	}
	// 网关只有在读完内容后才会缓存，读完后丢弃
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	res.Status = resp.StatusCode
	res.Duration = time.Since(start)
	p.logger.Info("gateway primed",
		slog.String("url", u),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", res.Duration),
	)
	return res
}

// Expand 用地址的替代编码展开模板
// 模板没有 {path} 时，path 追加在末尾
func Expand(tmpl string, addr types.Address, path string) (string, error) {
	out := tmpl
	if strings.Contains(out, "{base32}") {
		b32, err := addr.Base32()
		if err != nil {
			return "", fmt.Errorf("%w: base32: %w", errNoEncoding, err)
		}
		out = strings.ReplaceAll(out, "{base32}", b32)
	}
	if strings.Contains(out, "{v0}") {
		v0, err := addr.V0()
		if err != nil {
			return "", fmt.Errorf("%w: v0: %w", errNoEncoding, err)
		}
		out = strings.ReplaceAll(out, "{v0}", v0)
	}
	out = strings.ReplaceAll(out, "{cid}", addr.String())

	if strings.Contains(out, "{path}") {
		return strings.ReplaceAll(out, "{path}", path), nil
	}
	return out + path, nil
}
