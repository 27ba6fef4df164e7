package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sobremidia/player/internal/catalog"
	"github.com/sobremidia/player/internal/download"
	"github.com/sobremidia/player/internal/store"
	"github.com/sobremidia/player/pkg/errors"
	"github.com/sobremidia/player/pkg/events"
	"github.com/sobremidia/player/pkg/model"
)

// Repository owns the playlist cache. It is the only writer: every other
// component observes the active playlist through the stream and never touches
// the store directly.
type Repository struct {
	client   *catalog.Client
	pipeline *download.Pipeline
	db       *store.Store
	files    *store.FileStore
	stream   *events.Stream[*model.Playlist]
	logger   *zap.Logger

	syncing  atomic.Bool
	mu       sync.RWMutex
	progress string
}

// New creates a repository.
func New(client *catalog.Client, pipeline *download.Pipeline, db *store.Store, files *store.FileStore, logger *zap.Logger) *Repository {
	return &Repository{
		client:   client,
		pipeline: pipeline,
		db:       db,
		files:    files,
		stream:   events.NewStream[*model.Playlist](),
		logger:   logger.Named("repository"),
	}
}

// ActivePlaylist subscribes to playlist emissions. New subscribers replay the
// latest emitted playlist immediately.
func (r *Repository) ActivePlaylist() (<-chan *model.Playlist, func()) {
	return r.stream.Subscribe()
}

// CurrentPlaylist returns the most recently emitted playlist, nil before the
// first emission.
func (r *Repository) CurrentPlaylist() *model.Playlist {
	playlist, ok := r.stream.Latest()
	if !ok {
		return nil
	}
	return playlist
}

// SyncProgress returns the operator-facing description of the current cycle.
func (r *Repository) SyncProgress() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

func (r *Repository) setProgress(msg string) {
	r.mu.Lock()
	r.progress = msg
	r.mu.Unlock()
}

// SyncWithRemote runs one full synchronization cycle. A trigger while a cycle
// is already running returns success immediately; back-to-back nudges from
// the push channel must not queue up redundant work. Any remote failure falls
// back silently to the local cache, so an offline device keeps playing
// yesterday's content.
func (r *Repository) SyncWithRemote(ctx context.Context) error {
	if !r.syncing.CompareAndSwap(false, true) {
		r.logger.Warn("sync already in progress, skipping redundant request")
		return nil
	}
	defer r.syncing.Store(false)

	r.logger.Info("starting sync cycle")

	screen, err := r.client.FindScreen(ctx)
	if err != nil {
		if errors.IsNotFound(err) {
			// The operator must be able to register the device from the
			// screen alone, so the id stays visible until a sync succeeds.
			r.setProgress(fmt.Sprintf("Tela não cadastrada. ID do dispositivo: %s", r.client.DeviceID()))
		}
		r.logger.Error("screen lookup failed, falling back to cache", zap.Error(err))
		return r.loadLocalCache(ctx, err)
	}

	remote, err := r.client.FetchPlaylist(ctx, screen)
	if err != nil {
		if errors.IsNotFound(err) {
			r.logger.Warn("screen has no playlist assigned, falling back to cache")
			r.setProgress("Tela encontrada, aguardando atribuição de playlist.")
		} else {
			r.logger.Error("remote fetch failed, falling back to cache", zap.Error(err))
		}
		return r.loadLocalCache(ctx, err)
	}

	if strings.TrimSpace(remote.ID) == "" {
		r.logger.Error("remote playlist has blank id, falling back to cache")
		return r.loadLocalCache(ctx, errors.Transient("remote playlist id is blank"))
	}

	signature := configSignature(remote)
	cacheValid := r.verifyCacheIntegrity(remote)

	if signature == r.db.ConfigSignature() && cacheValid {
		r.logger.Info("config unchanged and cache valid", zap.String("signature", signature))
		r.setProgress("Pronto!")
		return r.emitFromCache(ctx)
	}

	if !cacheValid {
		r.logger.Warn("cache integrity failure detected, forcing re-sync")
		r.setProgress("Corrigindo mídias ausentes...")
	} else {
		r.logger.Info("new config detected", zap.String("signature", signature))
		r.setProgress("Novas configurações detectadas...")
	}

	r.reportOrientationChange(ctx, remote)

	// Persist structure before content so a crash mid-download still leaves
	// a coherent playlist whose items simply lack local paths.
	r.setProgress("Salvando configurações...")
	if err := r.saveToCache(ctx, remote); err != nil {
		return r.loadLocalCache(ctx, err)
	}

	r.setProgress("Sincronizando novas mídias...")
	if err := r.pipeline.FetchAll(ctx, remote.Items); err != nil {
		// Partial downloads are tolerated; missing items are skipped at
		// render time and the next cycle fills the gaps.
		r.logger.Warn("some media downloads failed", zap.Error(err))
	}

	r.setProgress("Finalizando...")
	if err := r.saveToCache(ctx, remote); err != nil {
		return r.loadLocalCache(ctx, err)
	}

	validIDs := make([]string, 0, len(remote.Items))
	for _, item := range remote.Items {
		validIDs = append(validIDs, item.ID)
	}
	r.files.PurgeOrphans(validIDs)

	if err := r.db.SaveConfigSignature(signature); err != nil {
		r.logger.Warn("failed to persist config signature", zap.Error(err))
	}

	r.setProgress("Pronto!")
	r.client.ReportScreenAction(ctx, "PlaylistUpdate", remote.ID)
	return r.emitFromCache(ctx)
}

// LoadLocalCache emits the cached playlist without touching the network.
// Used at boot so a powered-on device renders before its first sync finishes.
func (r *Repository) LoadLocalCache(ctx context.Context) error {
	return r.loadLocalCache(ctx, nil)
}

func (r *Repository) loadLocalCache(ctx context.Context, cause error) error {
	playlist, err := r.db.ActivePlaylist(ctx)
	if err != nil {
		return fmt.Errorf("failed to read local cache: %w", err)
	}
	if playlist == nil {
		if cause != nil {
			return fmt.Errorf("no local cache available: %w", cause)
		}
		return errors.NotFound("no local cache available")
	}

	missing := 0
	for _, item := range playlist.Items {
		if item.IsFileBacked() && item.LocalPath == "" {
			missing++
		}
	}
	if missing > 0 {
		r.logger.Warn("cache incomplete, delta sync pending",
			zap.Int("missing", missing),
			zap.Int("total", len(playlist.Items)),
		)
	}

	r.logger.Info("emitting playlist from local cache",
		zap.String("playlist_id", playlist.ID),
		zap.Int("items", len(playlist.Items)),
	)
	r.stream.Publish(playlist)
	return nil
}

// emitFromCache re-reads the playlist from the store so the emission always
// carries verified local paths, then publishes it. The full item list goes
// out even while downloads are running; the render loop skips what is not on
// disk yet.
func (r *Repository) emitFromCache(ctx context.Context) error {
	playlist, err := r.db.ActivePlaylist(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cache after sync: %w", err)
	}
	if playlist == nil {
		return errors.NotFound("cache empty after sync")
	}
	r.stream.Publish(playlist)
	return nil
}

// saveToCache swaps the cached playlist, preserving local paths of items
// already on disk or still downloading from the previous cache generation.
func (r *Repository) saveToCache(ctx context.Context, playlist *model.Playlist) error {
	previous, err := r.db.LocalPaths(ctx)
	if err != nil {
		r.logger.Warn("failed to read previous local paths", zap.Error(err))
		previous = map[string]string{}
	}

	for i := range playlist.Items {
		item := &playlist.Items[i]
		if !item.IsFileBacked() {
			continue
		}
		switch {
		case r.files.Exists(item.ID):
			item.LocalPath = r.files.PathFor(item.ID)
		case previous[item.ID] != "":
			item.LocalPath = previous[item.ID]
		}
	}

	return r.db.ReplacePlaylist(ctx, playlist)
}

// verifyCacheIntegrity reports whether every file-backed item of the remote
// playlist has a non-empty payload on disk. Widgets and links render live
// and never fail this check.
func (r *Repository) verifyCacheIntegrity(playlist *model.Playlist) bool {
	for _, item := range playlist.Items {
		if !item.IsFileBacked() {
			continue
		}
		if !r.files.Exists(item.ID) {
			return false
		}
	}
	return true
}

func (r *Repository) reportOrientationChange(ctx context.Context, remote *model.Playlist) {
	current := r.CurrentPlaylist()
	if current == nil || current.Orientation == remote.Orientation {
		return
	}
	r.logger.Info("orientation hot-swap",
		zap.String("from", current.Orientation),
		zap.String("to", remote.Orientation),
	)
	r.client.ReportScreenAction(ctx, "OrientationChange", remote.Orientation)
}

// configSignature fingerprints the fields whose change requires a cache
// swap: playlist identity, display settings and the ordered id:url pairs.
// Appearance of a new URL for the same media id forces a re-download.
func configSignature(playlist *model.Playlist) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s:%d", playlist.ID, playlist.Orientation, playlist.HeartbeatInterval)
	for _, item := range playlist.Items {
		fmt.Fprintf(&b, "|%s:%s", item.ID, item.RemoteURL)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}
