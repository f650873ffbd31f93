// Package httpapi 通过存储守护进程的 HTTP RPC API (/api/v0) 实现 ContentStore
package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cbvault/pkg/contentstore"
	"cbvault/pkg/core"
	"cbvault/pkg/ignore"
	"cbvault/pkg/types"
)

type Config struct {
	URL           string        // 例如 http://127.0.0.1:5001
	Timeout       time.Duration // object/patch 请求超时，0 表示不限制
	UploadTimeout time.Duration // add 请求超时，0 表示不限制
	CidVersion    int
}

type Client struct {
	base          *url.URL
	http          *http.Client
	timeout       time.Duration
	uploadTimeout time.Duration
	cidVersion    int
	ignore        *ignore.Matcher
	logger        *slog.Logger

	// open 打开要上传的本地文件，测试里可以替换
	open func(path string) (io.ReadCloser, error)
}

var _ contentstore.ContentStore = (*Client)(nil)

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = "http://127.0.0.1:5001"
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:          base,
		http:          &http.Client{},
		timeout:       cfg.Timeout,
		uploadTimeout: cfg.UploadTimeout,
		cidVersion:    cfg.CidVersion,
		logger:        logger,
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// WithIgnore 在 UploadTree 时跳过被忽略的条目
func (c *Client) WithIgnore(m *ignore.Matcher) *Client {
	c.ignore = m
	return c
}

// apiError 是守护进程返回的错误体
type apiError struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
	Type    string `json:"Type"`
}

func (c *Client) FetchDirectory(ctx context.Context, addr types.Address) (*core.Directory, error) {
	q := url.Values{}
	q.Add("arg", addr.String())
	q.Set("data-encoding", "base64")

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	body, err := c.post(ctx, "object/get", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", addr.Short(), err)
	}
	return contentstore.DecodeObjectJSON(addr, body)
}

func (c *Client) UploadFile(ctx context.Context, path string) (types.Address, error) {
	return c.add(ctx, path, false)
}

func (c *Client) UploadTree(ctx context.Context, path string) (types.Address, error) {
	return c.add(ctx, path, true)
}

func (c *Client) PatchAddLink(ctx context.Context, parent types.Address, name string, child types.Address) (*core.Directory, error) {
	q := url.Values{}
	q.Add("arg", parent.String())
	q.Add("arg", name)
	q.Add("arg", child.String())

	pctx, cancel := withTimeout(ctx, c.timeout)
	body, err := c.post(pctx, "object/patch/add-link", q, nil, "")
	cancel()
	if err != nil {
		if errors.Is(err, errAPI) {
			return nil, fmt.Errorf("patch %s/%s: %w: %w", parent.Short(), name, contentstore.ErrConflict, err)
		}
		return nil, fmt.Errorf("patch %s/%s: %w", parent.Short(), name, err)
	}

	var resp struct {
		Hash string `json:"Hash"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: patch response: %w", contentstore.ErrDecode, err)
	}
	next, err := types.ParseAddress(resp.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: patch response: %w", contentstore.ErrDecode, err)
	}
	return c.FetchDirectory(ctx, next)
}

// uploadEntry 是 multipart 请求中的一个部分
type uploadEntry struct {
	name string // / 分隔的名称，以上传根的名字开头
	path string // 本地文件路径，目录为空
}

// add 以 multipart 形式上传文件或目录树，不 pin
func (c *Client) add(ctx context.Context, path string, recursive bool) (types.Address, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %w", contentstore.ErrIO, err)
	}
	if recursive != info.IsDir() {
		return types.Address{}, fmt.Errorf("%w: %s: unexpected kind (dir=%v)", contentstore.ErrIO, path, info.IsDir())
	}

	// 1. 列出条目并逐个确认可读
	// 本地读取错误在发请求之前暴露，保证 IOError 与传输错误可区分
	entries := []uploadEntry{{name: filepath.Base(path), path: path}}
	if recursive {
		if entries, err = c.collectTree(path); err != nil {
			return types.Address{}, fmt.Errorf("%w: %w", contentstore.ErrIO, err)
		}
	}
	for _, e := range entries {
		if e.path == "" {
			continue
		}
		f, err := c.open(e.path)
		if err != nil {
			return types.Address{}, fmt.Errorf("%w: %w", contentstore.ErrIO, err)
		}
		f.Close()
	}

	// 2. 边读边写 multipart，请求体不在内存中整体缓冲
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	contentType := mw.FormDataContentType()
	writeDone := make(chan error, 1)
	go func() {
		err := c.writeParts(mw, entries)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
		writeDone <- err
	}()

	q := url.Values{}
	q.Set("pin", "false")
	q.Set("quieter", "true")
	if c.cidVersion > 0 {
		q.Set("cid-version", strconv.Itoa(c.cidVersion))
	}

	uctx, cancel := withTimeout(ctx, c.uploadTimeout)
	body, err := c.post(uctx, "add", q, pr, contentType)
	cancel()

	// 请求提前结束时让写端退出
	pr.Close()
	if werr := <-writeDone; werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
		return types.Address{}, fmt.Errorf("%w: add %s: %w", contentstore.ErrIO, path, werr)
	}
	if err != nil {
		return types.Address{}, fmt.Errorf("add %s: %w", path, err)
	}

	// 3. 响应是 NDJSON，quieter 模式下最后一行就是根
	var last struct {
		Name string `json:"Name"`
		Hash string `json:"Hash"`
	}
	found := false
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &last); err != nil {
			return types.Address{}, fmt.Errorf("%w: add response: %w", contentstore.ErrDecode, err)
		}
		found = true
	}
	if !found {
		return types.Address{}, fmt.Errorf("%w: add response is empty", contentstore.ErrDecode)
	}

	addr, err := types.ParseAddress(last.Hash)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: add response: %w", contentstore.ErrDecode, err)
	}
	return addr, nil
}

// collectTree 列出目录树中要上传的条目
// 目录本身是一个 application/x-directory 部分，文件名使用 / 分隔的相对路径
func (c *Client) collectTree(root string) ([]uploadEntry, error) {
	base := filepath.Base(root)
	var entries []uploadEntry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != root && c.ignore.Ignored(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := base
		if rel != "." {
			name = base + "/" + filepath.ToSlash(rel)
		}

		switch {
		case d.IsDir():
			entries = append(entries, uploadEntry{name: name})
		case d.Type().IsRegular():
			entries = append(entries, uploadEntry{name: name, path: p})
		default:
			c.logger.Debug("skipping non-regular file", slog.String("path", p))
		}
		return nil
	})
	return entries, err
}

func (c *Client) writeParts(mw *multipart.Writer, entries []uploadEntry) error {
	for _, e := range entries {
		var err error
		if e.path == "" {
			err = writeDirPart(mw, e.name)
		} else {
			err = c.writeFilePart(mw, e.name, e.path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func writeDirPart(mw *multipart.Writer, name string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, url.QueryEscape(name)))
	h.Set("Content-Type", "application/x-directory")
	_, err := mw.CreatePart(h)
	return err
}

func (c *Client) writeFilePart(mw *multipart.Writer, name, path string) error {
	f, err := c.open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, url.QueryEscape(name)))
	h.Set("Content-Type", "application/octet-stream")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// errAPI 标记守护进程明确返回了错误 (而不是网络失败)
var errAPI = errors.New("api error")

func (c *Client) post(ctx context.Context, cmd string, q url.Values, body io.Reader, contentType string) ([]byte, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v0/" + cmd
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contentstore.ErrTransport, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("api request", slog.String("cmd", cmd), slog.String("query", u.RawQuery))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contentstore.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", contentstore.ErrTransport, err)
	}

	if resp.StatusCode == http.StatusOK {
		return data, nil
	}

	var apiErr apiError
	if json.Unmarshal(data, &apiErr) != nil || apiErr.Message == "" {
		// 不是守护进程的结构化错误 (反向代理、404 路由等)
		return nil, fmt.Errorf("%w: http %d", contentstore.ErrTransport, resp.StatusCode)
	}

	if contentstore.IsNotFoundMessage(apiErr.Message) {
		return nil, fmt.Errorf("%w: %w: %s", contentstore.ErrNotFound, errAPI, apiErr.Message)
	}
	return nil, fmt.Errorf("%w: %w: http %d: %s", contentstore.ErrTransport, errAPI, resp.StatusCode, apiErr.Message)
}
