package download

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sobremidia/player/internal/store"
	"github.com/sobremidia/player/pkg/errors"
	"github.com/sobremidia/player/pkg/model"
)

// URLResolver turns a catalog media reference into a fetchable URL. Absolute
// URLs pass through; bare storage keys are exchanged for signed URLs.
type URLResolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// ProgressReporter pushes per-media download progress to the catalog so
// operators can watch a provisioning screen fill up. Percent follows the
// catalog convention: 0 started, -1 failed, 100 verified.
type ProgressReporter interface {
	ReportDownloadProgress(ctx context.Context, mediaID string, percent int)
}

// Pipeline downloads, verifies and registers media payloads. Fetch is
// idempotent: an item whose payload already exists with a matching hash
// costs one hash pass and no network.
type Pipeline struct {
	downloader *HTTPDownloader
	prober     *VideoProber
	files      *store.FileStore
	db         *store.Store
	resolver   URLResolver
	reporter   ProgressReporter
	sem        chan struct{}
	logger     *zap.Logger
}

// NewPipeline creates a download pipeline. concurrency bounds simultaneous
// transfers; it is kept small so downloads never starve the render path.
// resolver and reporter may be nil.
func NewPipeline(files *store.FileStore, db *store.Store, resolver URLResolver, reporter ProgressReporter, concurrency int, logger *zap.Logger) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		downloader: NewHTTPDownloader(logger),
		prober:     NewVideoProber(logger),
		files:      files,
		db:         db,
		resolver:   resolver,
		reporter:   reporter,
		sem:        make(chan struct{}, concurrency),
		logger:     logger.Named("download-pipeline"),
	}
}

// FetchAll downloads every file-backed item that is missing or stale.
// Individual failures do not abort the rest of the batch; the first error is
// returned after all items have been attempted.
func (p *Pipeline) FetchAll(ctx context.Context, items []model.MediaItem) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for i := range items {
		item := &items[i]
		if !item.IsFileBacked() {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case p.sem <- struct{}{}:
				defer func() { <-p.sem }()
			case <-ctx.Done():
				mu.Lock()
				if firstErr == nil {
					firstErr = ctx.Err()
				}
				mu.Unlock()
				return
			}

			if err := p.Fetch(ctx, item); err != nil {
				p.logger.Warn("media fetch failed",
					zap.String("media_id", item.ID),
					zap.Error(err),
				)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return firstErr
}

// Fetch ensures the payload for item is present and verified, then records
// its local path both in the cache store and on the item itself.
func (p *Pipeline) Fetch(ctx context.Context, item *model.MediaItem) error {
	if !item.IsFileBacked() {
		return nil
	}

	path := p.files.PathFor(item.ID)

	// An existing verified payload costs one hash pass and no network.
	if p.files.MatchesHash(item.ID, item.Hash) {
		p.report(ctx, item.ID, 100)
		return p.register(ctx, item, path)
	}

	p.report(ctx, item.ID, 0)

	if err := p.download(ctx, item); err != nil {
		p.report(ctx, item.ID, -1)
		return err
	}

	if err := p.verify(item, path); err != nil {
		p.report(ctx, item.ID, -1)
		return err
	}

	p.report(ctx, item.ID, 100)
	p.logger.Info("media fetched and verified",
		zap.String("media_id", item.ID),
		zap.String("type", string(item.Type)),
	)
	return p.register(ctx, item, path)
}

// download streams the payload to a staging file and atomically promotes it.
func (p *Pipeline) download(ctx context.Context, item *model.MediaItem) error {
	source := item.RemoteURL
	if p.resolver != nil && !isAbsoluteURL(source) {
		resolved, err := p.resolver.Resolve(ctx, source)
		if err != nil {
			return errors.Wrap(errors.ErrorTypeTransient, "failed to resolve media url", err)
		}
		source = resolved
	}

	tmpPath := p.files.TempPathFor(item.ID)
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}

	_, err = p.downloader.Download(ctx, source, tmp, func(percent int) {
		p.logger.Debug("download progress",
			zap.String("media_id", item.ID),
			zap.Int("percent", percent),
		)
	})
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close staging file: %w", err)
	}

	if err := os.Rename(tmpPath, p.files.PathFor(item.ID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to promote staging file: %w", err)
	}
	return nil
}

// verify checks the promoted payload's hash and, for videos, that the
// container decodes. A failed payload is deleted so the next cycle retries
// from scratch instead of trusting a poisoned file.
func (p *Pipeline) verify(item *model.MediaItem, path string) error {
	if !p.files.MatchesHash(item.ID, item.Hash) {
		p.files.Delete(item.ID)
		return errors.Integrity(fmt.Sprintf("hash mismatch for media %s", item.ID))
	}

	if item.Type == model.MediaTypeVideo {
		if err := p.prober.Probe(path); err != nil {
			p.files.Delete(item.ID)
			return err
		}
	}
	return nil
}

func (p *Pipeline) register(ctx context.Context, item *model.MediaItem, path string) error {
	item.LocalPath = path
	if err := p.db.UpdateMediaLocalPath(ctx, item.ID, path); err != nil {
		return fmt.Errorf("failed to record local path: %w", err)
	}
	return nil
}

func (p *Pipeline) report(ctx context.Context, mediaID string, percent int) {
	if p.reporter != nil {
		p.reporter.ReportDownloadProgress(ctx, mediaID, percent)
	}
}

func isAbsoluteURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}
