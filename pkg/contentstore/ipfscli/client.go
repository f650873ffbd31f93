// Package ipfscli 通过本机的 ipfs 命令行实现 ContentStore
package ipfscli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"cbvault/pkg/contentstore"
	"cbvault/pkg/core"
	"cbvault/pkg/types"
)

// Runner 执行一条外部命令，返回 stdout / stderr
// 测试时可以替换成假的实现
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner 是基于 os/exec 的默认 Runner
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

type Config struct {
	Binary     string // 默认 "ipfs"
	CidVersion int    // 0 表示沿用守护进程默认值
}

type Client struct {
	binary     string
	cidVersion int
	run        Runner
	logger     *slog.Logger
}

var _ contentstore.ContentStore = (*Client)(nil)

func New(cfg Config, logger *slog.Logger) *Client {
	bin := cfg.Binary
	if bin == "" {
		bin = "ipfs"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		binary:     bin,
		cidVersion: cfg.CidVersion,
		run:        ExecRunner,
		logger:     logger,
	}
}

// WithRunner 替换命令执行器
func (c *Client) WithRunner(r Runner) *Client {
	c.run = r
	return c
}

func (c *Client) FetchDirectory(ctx context.Context, addr types.Address) (*core.Directory, error) {
	out, err := c.exec(ctx, "object", "get", "--encoding=json", "--data-encoding=base64", addr.String())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", addr.Short(), err)
	}
	return contentstore.DecodeObjectJSON(addr, out)
}

func (c *Client) UploadFile(ctx context.Context, path string) (types.Address, error) {
	return c.add(ctx, path, false)
}

func (c *Client) UploadTree(ctx context.Context, path string) (types.Address, error) {
	return c.add(ctx, path, true)
}

func (c *Client) add(ctx context.Context, path string, recursive bool) (types.Address, error) {
	// 1. 先在本地检查可读性，区分 IOError 和远端失败
	info, err := os.Stat(path)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %w", contentstore.ErrIO, err)
	}
	if recursive != info.IsDir() {
		return types.Address{}, fmt.Errorf("%w: %s: unexpected kind (dir=%v)", contentstore.ErrIO, path, info.IsDir())
	}
	if !info.IsDir() {
		f, err := os.Open(path)
		if err != nil {
			return types.Address{}, fmt.Errorf("%w: %w", contentstore.ErrIO, err)
		}
		f.Close()
	}

	// 2. 上传但不 pin
	args := []string{"add", "--pin=false", "-Q"}
	if recursive {
		args = append(args, "-r")
	}
	if c.cidVersion > 0 {
		args = append(args, "--cid-version="+strconv.Itoa(c.cidVersion))
	}
	args = append(args, path)

	out, err := c.exec(ctx, args...)
	if err != nil {
		return types.Address{}, fmt.Errorf("add %s: %w", path, err)
	}

	addr, err := types.ParseAddress(lastLine(out))
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: add %s: %w", contentstore.ErrDecode, path, err)
	}
	return addr, nil
}

func (c *Client) PatchAddLink(ctx context.Context, parent types.Address, name string, child types.Address) (*core.Directory, error) {
	out, err := c.exec(ctx, "object", "patch", "add-link", parent.String(), name, child.String())
	if err != nil {
		// 命令本身失败 (非零退出) 视为存储拒绝了这次 patch
		if !errors.Is(err, errSpawn) {
			return nil, fmt.Errorf("patch %s/%s: %w: %w", parent.Short(), name, contentstore.ErrConflict, err)
		}
		return nil, fmt.Errorf("patch %s/%s: %w", parent.Short(), name, err)
	}

	next, err := types.ParseAddress(lastLine(out))
	if err != nil {
		return nil, fmt.Errorf("%w: patch %s/%s: %w", contentstore.ErrDecode, parent.Short(), name, err)
	}

	// patch 只返回新地址，再取一次得到完整的链接集合
	return c.FetchDirectory(ctx, next)
}

// errSpawn 标记命令根本没能启动 (例如二进制不存在)
var errSpawn = errors.New("failed to start command")

func (c *Client) exec(ctx context.Context, args ...string) ([]byte, error) {
	c.logger.Debug("ipfs exec", slog.String("bin", c.binary), slog.Any("args", args))

	stdout, stderr, err := c.run(ctx, c.binary, args...)
	if err == nil {
		return stdout, nil
	}

	msg := strings.TrimSpace(string(stderr))

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		// 没有退出码：二进制不存在、被取消等
		return nil, fmt.Errorf("%w: %w: %w", contentstore.ErrTransport, errSpawn, err)
	}

	if contentstore.IsNotFoundMessage(msg) {
		return nil, fmt.Errorf("%w: %s", contentstore.ErrNotFound, msg)
	}
	return nil, fmt.Errorf("%w: exit %d: %s", contentstore.ErrTransport, exitErr.ExitCode(), msg)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
