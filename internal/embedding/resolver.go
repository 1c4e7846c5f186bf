package embedding

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// hubDownloadTimeout bounds a single model file download.
const hubDownloadTimeout = 10 * time.Minute

// ResolveOptions controls how a model directory is resolved.
type ResolveOptions struct {
	// LocalPath is used directly when it exists as a directory.
	LocalPath string

	// ModelID is the hub identifier fetched when LocalPath is absent
	// (e.g., "sentence-transformers/all-MiniLM-L6-v2").
	ModelID string

	// HubURL is the base URL of the model hub.
	HubURL string

	// CacheDir overrides the download cache location. Empty means the
	// user cache directory.
	CacheDir string

	// Client overrides the HTTP client used for hub downloads.
	Client *http.Client
}

// Resolve returns a local directory containing the model files, either the
// configured local path or a cache directory populated from the model hub.
// Runs once at startup; any failure means the service must not start.
func Resolve(ctx context.Context, opts ResolveOptions) (string, error) {
	if info, err := os.Stat(opts.LocalPath); err == nil && info.IsDir() {
		log.Info().Str("path", opts.LocalPath).Msg("Loading model from local path")
		return opts.LocalPath, nil
	}

	if opts.ModelID == "" {
		return "", fmt.Errorf("model path %s absent and no model identifier configured", opts.LocalPath)
	}

	cacheDir, err := modelCacheDir(opts.CacheDir, opts.ModelID)
	if err != nil {
		return "", err
	}

	if hasModelFiles(cacheDir) {
		log.Info().Str("path", cacheDir).Str("model", opts.ModelID).Msg("Using cached model download")
		return cacheDir, nil
	}

	if err := downloadModel(ctx, opts, cacheDir); err != nil {
		return "", fmt.Errorf("download model %s: %w", opts.ModelID, err)
	}

	return cacheDir, nil
}

// modelCacheDir builds the per-model cache directory, creating it if needed.
func modelCacheDir(base, modelID string) (string, error) {
	if base == "" {
		userCache, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("resolve user cache dir: %w", err)
		}
		base = filepath.Join(userCache, "flux-embeddings", "models")
	}

	// "org/name" becomes "org--name", mirroring hub snapshot layouts.
	dir := filepath.Join(base, strings.ReplaceAll(modelID, "/", "--"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model cache dir: %w", err)
	}
	return dir, nil
}

// hasModelFiles reports whether a directory already holds a complete model.
func hasModelFiles(dir string) bool {
	if _, err := findModelFile(dir); err != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, TokenizerFileName))
	return err == nil
}

// downloadModel fetches the ONNX graph and tokenizer from the hub into dir.
// The two files download concurrently; a failure of either aborts both.
func downloadModel(ctx context.Context, opts ResolveOptions, dir string) error {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: hubDownloadTimeout}
	}

	hubURL := strings.TrimSuffix(opts.HubURL, "/")
	base := fmt.Sprintf("%s/%s/resolve/main", hubURL, opts.ModelID)

	log.Info().Str("model", opts.ModelID).Str("hub", hubURL).Msg("Downloading model from hub")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Sentence-transformers exports keep the graph under onnx/;
		// some repositories publish it at the top level instead.
		err := fetchFile(ctx, client, base+"/onnx/"+ModelFileName, filepath.Join(dir, ModelFileName))
		if err != nil {
			return fetchFile(ctx, client, base+"/"+ModelFileName, filepath.Join(dir, ModelFileName))
		}
		return nil
	})
	g.Go(func() error {
		return fetchFile(ctx, client, base+"/"+TokenizerFileName, filepath.Join(dir, TokenizerFileName))
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Str("path", dir).Msg("Model download complete")
	return nil
}

// fetchFile downloads url into dest, writing through a temp file so a
// partial download never looks like a cached model.
func fetchFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
