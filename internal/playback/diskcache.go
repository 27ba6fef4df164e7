package playback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// StreamCache keeps a bounded on-disk copy of remote resources that are not
// part of the managed media area: widget pages, link snapshots, stream
// manifests. Entries evict least-recently-used so a long-running device
// cannot fill its card with one-off fetches.
type StreamCache struct {
	dir    string
	index  *lru.Cache[string, string]
	client *http.Client
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStreamCache creates a cache of at most size entries under dataDir.
func NewStreamCache(dataDir string, size int, logger *zap.Logger) (*StreamCache, error) {
	dir := filepath.Join(dataDir, "stream_cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stream cache dir: %w", err)
	}

	log := logger.Named("stream-cache")
	index, err := lru.NewWithEvict[string, string](size, func(key, path string) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to evict cached stream", zap.String("path", path), zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}

	return &StreamCache{
		dir:    dir,
		index:  index,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: log,
	}, nil
}

// Fetch returns a local path for url, downloading on miss. Concurrent
// fetches of the same url serialize; the second caller gets the file the
// first one wrote.
func (c *StreamCache) Fetch(ctx context.Context, url string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if path, ok := c.index.Get(url); ok {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return path, nil
		}
		c.index.Remove(url)
	}

	path := filepath.Join(c.dir, keyFor(url))
	if err := c.download(ctx, url, path); err != nil {
		return "", err
	}
	c.index.Add(url, path)
	return path, nil
}

// Contains reports whether url is cached without promoting it.
func (c *StreamCache) Contains(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Contains(url)
}

// Purge drops every entry and its backing file.
func (c *StreamCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.Purge()
}

func (c *StreamCache) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream fetch returned status %d", resp.StatusCode)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func keyFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:16]) + ".dat"
}
