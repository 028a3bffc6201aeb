package tier

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// FetchLoader downloads model assets into a cache directory. Files already
// on disk are reused without a network round trip.
type FetchLoader struct {
	client *http.Client
	dir    string
	logger *log.Logger
}

// NewFetchLoader builds a loader caching under dir.
func NewFetchLoader(dir string, logger *log.Logger) *FetchLoader {
	if logger == nil {
		logger = log.Default()
	}
	return &FetchLoader{
		client: &http.Client{Timeout: 120 * time.Second},
		dir:    dir,
		logger: logger,
	}
}

// Load fetches the asset if needed and returns a handle to the cached file.
func (l *FetchLoader) Load(ctx context.Context, asset Asset) (Model, error) {
	path := filepath.Join(l.dir, filepath.Base(asset.URL))
	if _, err := os.Stat(path); err == nil {
		return &fileModel{name: asset.Name, path: path}, nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating model dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", asset.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", asset.Name, resp.StatusCode)
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("writing %s: %w", asset.Name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, err
	}

	l.logger.Printf("[TierManager] downloaded %s to %s", asset.Name, path)
	return &fileModel{name: asset.Name, path: path}, nil
}

// StaticLoader satisfies every load without touching the network. It stands
// in when model assets are managed outside the process, and in tests.
type StaticLoader struct{}

func (StaticLoader) Load(_ context.Context, asset Asset) (Model, error) {
	return staticModel(asset.Name), nil
}

type staticModel string

func (m staticModel) Name() string { return string(m) }
func (m staticModel) Close() error { return nil }

// fileModel is a loaded model backed by a cached file on disk.
type fileModel struct {
	name string
	path string
}

func (m *fileModel) Name() string { return m.name }

// Path is the cached model file location.
func (m *fileModel) Path() string { return m.path }

func (m *fileModel) Close() error { return nil }
