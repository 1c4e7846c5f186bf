package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHub serves model files the way the hub does and counts requests.
type fakeHub struct {
	server   *httptest.Server
	requests int64
	// paths that should 404
	missing map[string]bool
}

func newFakeHub(t *testing.T, missing ...string) *fakeHub {
	t.Helper()

	hub := &fakeHub{missing: make(map[string]bool)}
	for _, p := range missing {
		hub.missing[p] = true
	}

	hub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hub.requests, 1)
		if hub.missing[r.URL.Path] {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("content of " + r.URL.Path))
	}))
	t.Cleanup(hub.server.Close)
	return hub
}

func (h *fakeHub) count() int64 {
	return atomic.LoadInt64(&h.requests)
}

// TestResolve_LocalPath verifies an existing local directory wins and the
// hub is never contacted.
func TestResolve_LocalPath(t *testing.T) {
	hub := newFakeHub(t)
	local := t.TempDir()

	dir, err := Resolve(context.Background(), ResolveOptions{
		LocalPath: local,
		ModelID:   "sentence-transformers/all-MiniLM-L6-v2",
		HubURL:    hub.server.URL,
	})

	require.NoError(t, err)
	assert.Equal(t, local, dir)
	assert.Equal(t, int64(0), hub.count())
}

// TestResolve_DownloadsFromHub verifies both model files land in the cache
// when the local path is absent.
func TestResolve_DownloadsFromHub(t *testing.T) {
	hub := newFakeHub(t)
	cache := t.TempDir()

	dir, err := Resolve(context.Background(), ResolveOptions{
		LocalPath: filepath.Join(t.TempDir(), "does-not-exist"),
		ModelID:   "sentence-transformers/all-MiniLM-L6-v2",
		HubURL:    hub.server.URL,
		CacheDir:  cache,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cache, "sentence-transformers--all-MiniLM-L6-v2"), dir)
	assert.FileExists(t, filepath.Join(dir, ModelFileName))
	assert.FileExists(t, filepath.Join(dir, TokenizerFileName))

	graph, err := os.ReadFile(filepath.Join(dir, ModelFileName))
	require.NoError(t, err)
	assert.Equal(t, "content of /sentence-transformers/all-MiniLM-L6-v2/resolve/main/onnx/model.onnx", string(graph))
}

// TestResolve_UsesCache verifies a second resolve makes no hub requests.
func TestResolve_UsesCache(t *testing.T) {
	hub := newFakeHub(t)
	cache := t.TempDir()

	opts := ResolveOptions{
		LocalPath: filepath.Join(t.TempDir(), "does-not-exist"),
		ModelID:   "sentence-transformers/all-MiniLM-L6-v2",
		HubURL:    hub.server.URL,
		CacheDir:  cache,
	}

	first, err := Resolve(context.Background(), opts)
	require.NoError(t, err)
	downloaded := hub.count()
	require.Greater(t, downloaded, int64(0))

	second, err := Resolve(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, downloaded, hub.count(), "cached resolve must not hit the hub")
}

// TestResolve_TopLevelFallback verifies repositories publishing model.onnx
// at the top level instead of onnx/ still resolve.
func TestResolve_TopLevelFallback(t *testing.T) {
	hub := newFakeHub(t, "/org/model/resolve/main/onnx/model.onnx")

	dir, err := Resolve(context.Background(), ResolveOptions{
		LocalPath: filepath.Join(t.TempDir(), "does-not-exist"),
		ModelID:   "org/model",
		HubURL:    hub.server.URL,
		CacheDir:  t.TempDir(),
	})
	require.NoError(t, err)

	graph, err := os.ReadFile(filepath.Join(dir, ModelFileName))
	require.NoError(t, err)
	assert.Equal(t, "content of /org/model/resolve/main/model.onnx", string(graph))
}

// TestResolve_MissingTokenizer verifies a failed download is fatal and the
// missing file never appears in the cache.
func TestResolve_MissingTokenizer(t *testing.T) {
	hub := newFakeHub(t, "/org/model/resolve/main/tokenizer.json")
	cache := t.TempDir()

	_, err := Resolve(context.Background(), ResolveOptions{
		LocalPath: filepath.Join(t.TempDir(), "does-not-exist"),
		ModelID:   "org/model",
		HubURL:    hub.server.URL,
		CacheDir:  cache,
	})
	require.Error(t, err)

	dir := filepath.Join(cache, "org--model")
	assert.NoFileExists(t, filepath.Join(dir, TokenizerFileName))
}

// TestResolve_NoModelConfigured verifies a clear error when neither source
// is available.
func TestResolve_NoModelConfigured(t *testing.T) {
	_, err := Resolve(context.Background(), ResolveOptions{
		LocalPath: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model identifier")
}
