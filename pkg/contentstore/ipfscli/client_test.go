package ipfscli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"cbvault/pkg/contentstore"
	"cbvault/pkg/core"
	"cbvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

// fakeRunner 按子命令返回预设输出，并记录所有调用
type fakeRunner struct {
	calls   []call
	respond func(args []string) (stdout, stderr string, err error)
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	out, errOut, err := f.respond(args)
	return []byte(out), []byte(errOut), err
}

func addrOf(t *testing.T, s string) types.Address {
	t.Helper()
	c, err := core.NewChunk([]byte(s))
	require.NoError(t, err)
	return c.ID()
}

func newTestClient(f *fakeRunner) *Client {
	return New(Config{Binary: "ipfs-test", CidVersion: 1}, nil).WithRunner(f.run)
}

func TestFetchDirectory(t *testing.T) {
	root := addrOf(t, "root")
	child := addrOf(t, "child")

	f := &fakeRunner{respond: func(args []string) (string, string, error) {
		return fmt.Sprintf(`{"Links":[{"Name":"a.txt","Hash":"%s","Size":5}],"Data":"CAE="}`, child), "", nil
	}}
	c := newTestClient(f)

	dir, err := c.FetchDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, dir.Names())
	assert.True(t, dir.Address().Equals(root))

	require.Len(t, f.calls, 1)
	assert.Equal(t, "ipfs-test", f.calls[0].name)
	assert.Equal(t, []string{"object", "get", "--encoding=json", "--data-encoding=base64", root.String()}, f.calls[0].args)
}

func TestFetchDirectory_Errors(t *testing.T) {
	root := addrOf(t, "root")

	tests := []struct {
		name   string
		stderr string
		err    error
		want   error
	}{
		{"NotFound", "Error: merkledag: not found", &exec.ExitError{}, contentstore.ErrNotFound},
		{"RawLeaf", "Error: expected protobuf dag node", &exec.ExitError{}, contentstore.ErrNotFound},
		{"DaemonDown", "Error: cannot connect to the api", &exec.ExitError{}, contentstore.ErrTransport},
		{"MissingBinary", "", exec.ErrNotFound, contentstore.ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRunner{respond: func([]string) (string, string, error) { return "", tt.stderr, tt.err }}
			_, err := newTestClient(f).FetchDirectory(context.Background(), root)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("BadJSON", func(t *testing.T) {
		f := &fakeRunner{respond: func([]string) (string, string, error) { return "not json", "", nil }}
		_, err := newTestClient(f).FetchDirectory(context.Background(), root)
		assert.ErrorIs(t, err, contentstore.ErrDecode)
	})
}

func TestUploadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))
	want := addrOf(t, "hello")

	f := &fakeRunner{respond: func([]string) (string, string, error) { return want.String() + "\n", "", nil }}
	got, err := newTestClient(f).UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, got.Equals(want))

	require.Len(t, f.calls, 1)
	assert.Equal(t, []string{"add", "--pin=false", "-Q", "--cid-version=1", path}, f.calls[0].args)
}

func TestUploadTree(t *testing.T) {
	dir := t.TempDir()
	want := addrOf(t, "tree")

	f := &fakeRunner{respond: func([]string) (string, string, error) { return want.String(), "", nil }}
	got, err := newTestClient(f).UploadTree(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, got.Equals(want))
	assert.Contains(t, f.calls[0].args, "-r")
	assert.NotContains(t, f.calls[0].args, "--pin=true")
}

func TestUpload_LocalErrorsDoNotSpawn(t *testing.T) {
	f := &fakeRunner{respond: func([]string) (string, string, error) {
		return "", "", errors.New("should not be called")
	}}
	c := newTestClient(f)

	_, err := c.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, contentstore.ErrIO)

	// 目录不能当文件上传
	_, err = c.UploadFile(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, contentstore.ErrIO)

	assert.Empty(t, f.calls)
}

func TestPatchAddLink(t *testing.T) {
	parent := addrOf(t, "parent")
	child := addrOf(t, "child")
	next := addrOf(t, "next")

	f := &fakeRunner{respond: func(args []string) (string, string, error) {
		if args[1] == "patch" {
			return next.String() + "\n", "", nil
		}
		return fmt.Sprintf(`{"Links":[{"Name":"c.txt","Hash":"%s","Size":1}],"Data":"CAE="}`, child), "", nil
	}}

	dir, err := newTestClient(f).PatchAddLink(context.Background(), parent, "c.txt", child)
	require.NoError(t, err)
	assert.True(t, dir.Address().Equals(next))

	require.Len(t, f.calls, 2)
	assert.Equal(t, []string{"object", "patch", "add-link", parent.String(), "c.txt", child.String()}, f.calls[0].args)
	assert.Equal(t, next.String(), f.calls[1].args[len(f.calls[1].args)-1])
}

func TestPatchAddLink_Rejected(t *testing.T) {
	parent := addrOf(t, "parent")
	child := addrOf(t, "child")

	f := &fakeRunner{respond: func([]string) (string, string, error) {
		return "", "Error: cannot add link", &exec.ExitError{}
	}}
	_, err := newTestClient(f).PatchAddLink(context.Background(), parent, "x", child)
	assert.ErrorIs(t, err, contentstore.ErrConflict)

	f = &fakeRunner{respond: func([]string) (string, string, error) { return "", "", exec.ErrNotFound }}
	_, err = newTestClient(f).PatchAddLink(context.Background(), parent, "x", child)
	assert.ErrorIs(t, err, contentstore.ErrTransport)
	assert.NotErrorIs(t, err, contentstore.ErrConflict)
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "b", lastLine([]byte("a\nb\n")))
	assert.Equal(t, "", strings.TrimSpace(lastLine(nil)))
}
