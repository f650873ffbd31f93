package httpapi

import (
	"context"
	"errors"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cbvault/pkg/contentstore"
	"cbvault/pkg/core"
	"cbvault/pkg/ignore"
	"cbvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addrOf(t *testing.T, s string) types.Address {
	t.Helper()
	c, err := core.NewChunk([]byte(s))
	require.NoError(t, err)
	return c.ID()
}

// fakeDaemon 模拟存储守护进程的 /api/v0 接口
type fakeDaemon struct {
	mu       sync.Mutex
	requests []*http.Request
	parts    []string // add 收到的文件名 (含目录)
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (d *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.requests = append(d.requests, r)
	if r.URL.Path == "/api/v0/add" {
		mr, err := r.MultipartReader()
		if err == nil {
			for {
				p, err := mr.NextPart()
				if err != nil {
					break
				}
				_, params, _ := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
				name, _ := url.QueryUnescape(params["filename"])
				d.parts = append(d.parts, name)
				io.Copy(io.Discard, p)
			}
		}
	}
	d.mu.Unlock()
	d.handler(w, r)
}

func newTestClient(t *testing.T, d *fakeDaemon) *Client {
	t.Helper()
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL, CidVersion: 1}, nil)
	require.NoError(t, err)
	return c
}

func writeAPIError(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(apiError{Message: msg, Code: 0, Type: "error"})
}

func TestFetchDirectory(t *testing.T) {
	root := addrOf(t, "root")
	child := addrOf(t, "child")

	d := &fakeDaemon{handler: func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"Links":[{"Name":"sub","Hash":"%s","Size":10}],"Data":"CAE="}`, child)
	}}
	c := newTestClient(t, d)

	dir, err := c.FetchDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub"}, dir.Names())

	require.Len(t, d.requests, 1)
	r := d.requests[0]
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "/api/v0/object/get", r.URL.Path)
	assert.Equal(t, root.String(), r.URL.Query().Get("arg"))
	assert.Equal(t, "base64", r.URL.Query().Get("data-encoding"))
}

func TestFetchDirectory_Errors(t *testing.T) {
	root := addrOf(t, "root")

	t.Run("NotFound", func(t *testing.T) {
		d := &fakeDaemon{handler: func(w http.ResponseWriter, r *http.Request) {
			writeAPIError(w, "merkledag: not found")
		}}
		_, err := newTestClient(t, d).FetchDirectory(context.Background(), root)
		assert.ErrorIs(t, err, contentstore.ErrNotFound)
	})

	t.Run("RawLeaf", func(t *testing.T) {
		d := &fakeDaemon{handler: func(w http.ResponseWriter, r *http.Request) {
			writeAPIError(w, "expected protobuf dag node")
		}}
		_, err := newTestClient(t, d).FetchDirectory(context.Background(), root)
		assert.ErrorIs(t, err, contentstore.ErrNotFound)
	})

	t.Run("ProxyError", func(t *testing.T) {
		d := &fakeDaemon{handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			io.WriteString(w, "<html>bad gateway</html>")
		}}
		_, err := newTestClient(t, d).FetchDirectory(context.Background(), root)
		assert.ErrorIs(t, err, contentstore.ErrTransport)
	})

	t.Run("ConnectionRefused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		u := srv.URL
		srv.Close()

		c, err := New(Config{URL: u}, nil)
		require.NoError(t, err)
		_, err = c.FetchDirectory(context.Background(), root)
		assert.ErrorIs(t, err, contentstore.ErrTransport)
	})

	t.Run("Garbage", func(t *testing.T) {
		d := &fakeDaemon{handler: func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "{{{")
		}}
		_, err := newTestClient(t, d).FetchDirectory(context.Background(), root)
		assert.ErrorIs(t, err, contentstore.ErrDecode)
	})
}

func TestUploadFile(t *testing.T) {
	want := addrOf(t, "hello")
	path := filepath.Join(t.TempDir(), "a b+c.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	d := &fakeDaemon{handler: func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"Name":"a b+c.txt","Hash":"%s","Size":"5"}`+"\n", want)
	}}
	c := newTestClient(t, d)

	got, err := c.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, got.Equals(want))

	r := d.requests[0]
	assert.Equal(t, "/api/v0/add", r.URL.Path)
	assert.Equal(t, "false", r.URL.Query().Get("pin"))
	assert.Equal(t, "1", r.URL.Query().Get("cid-version"))
	assert.Equal(t, []string{"a b+c.txt"}, d.parts)
}

func TestUploadTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "album")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".DS_Store"), []byte("junk"), 0644))

	want := addrOf(t, "album")
	d := &fakeDaemon{handler: func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"Name":"album","Hash":"%s","Size":"2"}`+"\n", want)
	}}

	m, err := ignore.NewMatcher(root, "")
	require.NoError(t, err)
	c := newTestClient(t, d).WithIgnore(m)

	got, err := c.UploadTree(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, got.Equals(want))

	assert.Equal(t, []string{"album", "album/a.txt", "album/sub", "album/sub/b.txt"}, d.parts)
}

func TestUpload_LocalError(t *testing.T) {
	d := &fakeDaemon{handler: func(w http.ResponseWriter, r *http.Request) {}}
	c := newTestClient(t, d)

	_, err := c.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, contentstore.ErrIO)
	assert.Empty(t, d.requests)
}

func TestPatchAddLink(t *testing.T) {
	parent := addrOf(t, "parent")
	child := addrOf(t, "child")
	next := addrOf(t, "next")

	d := &fakeDaemon{handler: func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v0/object/patch/add-link":
			fmt.Fprintf(w, `{"Hash":"%s","Links":null}`, next)
		case "/api/v0/object/get":
			fmt.Fprintf(w, `{"Links":[{"Name":"c.txt","Hash":"%s","Size":1}],"Data":"CAE="}`, child)
		default:
			http.NotFound(w, r)
		}
	}}
	c := newTestClient(t, d)

	dir, err := c.PatchAddLink(context.Background(), parent, "c.txt", child)
	require.NoError(t, err)
	assert.True(t, dir.Address().Equals(next))

	require.Len(t, d.requests, 2)
	assert.Equal(t, []string{parent.String(), "c.txt", child.String()}, d.requests[0].URL.Query()["arg"])
	assert.Equal(t, next.String(), d.requests[1].URL.Query().Get("arg"))
}

func TestPatchAddLink_Rejected(t *testing.T) {
	d := &fakeDaemon{handler: func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, "cannot add link to a file")
	}}
	_, err := newTestClient(t, d).PatchAddLink(context.Background(), addrOf(t, "p"), "x", addrOf(t, "c"))
	assert.ErrorIs(t, err, contentstore.ErrConflict)
}

// gatedReader 读到 limit 字节后暂停，直到 gate 关闭
type gatedReader struct {
	r     io.ReadCloser
	read  *atomic.Int64
	limit int64
	gate  <-chan struct{}
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if g.read.Load() >= g.limit {
		select {
		case <-g.gate:
		case <-time.After(5 * time.Second):
			return 0, errors.New("request never reached the daemon while the file was being read")
		}
	}
	n, err := g.r.Read(p)
	g.read.Add(int64(n))
	return n, err
}

func (g *gatedReader) Close() error { return g.r.Close() }

func TestUploadFile_StreamsBody(t *testing.T) {
	const size = 4 << 20
	path := filepath.Join(t.TempDir(), "master.flac")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	want := addrOf(t, "master")

	var read atomic.Int64
	gate := make(chan struct{})
	var readAtStart, received atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 守护进程收到请求时，文件还没有被读完
		readAtStart.Store(read.Load())
		close(gate)

		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for {
			p, err := mr.NextPart()
			if err != nil {
				break
			}
			n, _ := io.Copy(io.Discard, p)
			received.Add(n)
		}
		fmt.Fprintf(w, `{"Name":"master.flac","Hash":"%s"}`+"\n", want)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{URL: srv.URL}, nil)
	require.NoError(t, err)
	c.open = func(p string) (io.ReadCloser, error) {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		return &gatedReader{r: f, read: &read, limit: 64 << 10, gate: gate}, nil
	}

	got, err := c.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, got.Equals(want))
	assert.Less(t, readAtStart.Load(), int64(size))
	assert.Equal(t, int64(size), received.Load())
}

// failingReader 先返回一些数据，然后报错
type failingReader struct {
	sent bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("input/output error")
}

func (f *failingReader) Close() error { return nil }

func TestUploadFile_ReadErrorMidStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.flac")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))

	d := &fakeDaemon{handler: func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, "unexpected EOF")
	}}
	c := newTestClient(t, d)
	c.open = func(string) (io.ReadCloser, error) { return &failingReader{}, nil }

	_, err := c.UploadFile(context.Background(), path)
	assert.ErrorIs(t, err, contentstore.ErrIO)
	assert.NotErrorIs(t, err, contentstore.ErrTransport)
}
