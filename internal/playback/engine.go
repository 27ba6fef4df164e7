package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sobremidia/player/internal/fsm"
	"github.com/sobremidia/player/internal/schedule"
	"github.com/sobremidia/player/pkg/errors"
	"github.com/sobremidia/player/pkg/model"
)

const (
	noPlaylistIdle = 10 * time.Second
	noItemsIdle    = 20 * time.Second
)

// PlaylistSource feeds the engine. The repository implements it.
type PlaylistSource interface {
	ActivePlaylist() (<-chan *model.Playlist, func())
	CurrentPlaylist() *model.Playlist
}

// ProofRecorder receives one record per completed render.
type ProofRecorder interface {
	RegisterPlayProof(ctx context.Context, log *model.PlaybackLog)
}

// Engine runs the render loop. It never stops on content errors: a failed
// item is skipped, an empty schedule idles, a missing playlist waits. The
// only way out is context cancellation.
type Engine struct {
	source       PlaylistSource
	renderer     Renderer
	queue        *Queue
	proofs       ProofRecorder
	cache        *StreamCache
	dispatch     func(fsm.Event)
	now          func() time.Time
	screenID     string
	advanceDelay time.Duration
	logger       *zap.Logger

	rendering   atomic.Bool
	started     atomic.Bool
	mu          sync.Mutex
	skipCurrent context.CancelFunc
}

// NewEngine creates a playback engine. proofs, cache and dispatch may be nil.
func NewEngine(source PlaylistSource, renderer Renderer, proofs ProofRecorder, cache *StreamCache, dispatch func(fsm.Event), now func() time.Time, screenID string, advanceDelay time.Duration, logger *zap.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	if dispatch == nil {
		dispatch = func(fsm.Event) {}
	}
	return &Engine{
		source:       source,
		renderer:     renderer,
		queue:        NewQueue(),
		proofs:       proofs,
		cache:        cache,
		dispatch:     dispatch,
		now:          now,
		screenID:     screenID,
		advanceDelay: advanceDelay,
		logger:       logger.Named("playback"),
	}
}

// Run blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for ctx.Err() == nil {
		e.step(ctx)
	}
}

func (e *Engine) step(ctx context.Context) {
	playlist := e.source.CurrentPlaylist()
	if !playlist.IsValid() {
		e.logger.Debug("no playlist, idling")
		sleep(ctx, noPlaylistIdle)
		return
	}

	if e.queue.Rebuild(playlist) {
		e.logger.Info("render queue rebuilt",
			zap.String("playlist_id", playlist.ID),
			zap.Int("items", len(playlist.Items)),
		)
	}

	eligible := e.queue.Eligible(e.now())
	if len(eligible) == 0 {
		e.logger.Info("nothing scheduled or downloaded yet, idling")
		sleep(ctx, noItemsIdle)
		return
	}

	item := e.queue.Next(eligible)

	// The schedule may have lapsed between queue build and this pass. A
	// fixed short delay keeps an all-ineligible queue from busy-spinning.
	if !schedule.IsEligible(item, e.now()) {
		e.queue.MarkPlayed(item.ID)
		sleep(ctx, e.advanceDelay)
		return
	}

	if playlist.CacheNextMedia {
		e.prefetchNext(ctx, eligible, item)
	}

	if e.started.CompareAndSwap(false, true) {
		e.dispatch(fsm.PlaybackStarted())
	}

	startedAt := e.now()
	err := e.render(ctx, item)
	if err != nil && ctx.Err() == nil {
		e.logger.Warn("item render failed, advancing",
			zap.String("media_id", item.ID),
			zap.Error(err),
		)
		if errors.IsCritical(err) {
			// A broken renderer installation cannot be skipped around.
			e.dispatch(fsm.CriticalError(err))
		} else {
			e.dispatch(fsm.MediaError(item.ID, err))
		}
		// Re-arm the playback-started dispatch so the next successful
		// render lifts the machine out of the degraded state.
		e.started.Store(false)
		e.queue.MarkPlayed(item.ID)
		sleep(ctx, e.advanceDelay)
		return
	}
	if ctx.Err() != nil {
		return
	}

	e.queue.MarkPlayed(item.ID)
	e.registerProof(ctx, item, startedAt)
}

func (e *Engine) render(ctx context.Context, item *model.MediaItem) error {
	renderCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.skipCurrent = cancel
	e.mu.Unlock()
	e.rendering.Store(true)
	defer func() {
		e.rendering.Store(false)
		e.mu.Lock()
		e.skipCurrent = nil
		e.mu.Unlock()
	}()

	e.logger.Info("rendering item",
		zap.String("media_id", item.ID),
		zap.String("name", item.Name),
		zap.String("type", string(item.Type)),
		zap.Int64("duration_s", item.DurationSeconds),
	)
	return e.renderer.Render(renderCtx, item)
}

// Skip aborts the current item. The freeze watchdog calls this when the
// position stops moving.
func (e *Engine) Skip() {
	e.mu.Lock()
	cancel := e.skipCurrent
	e.mu.Unlock()
	if cancel != nil {
		e.logger.Warn("current item skipped externally")
		cancel()
	}
}

// Rendering reports whether an item is on screen right now. The freeze
// watchdog only counts stalls while this is true.
func (e *Engine) Rendering() bool {
	return e.rendering.Load()
}

// Position proxies the renderer's progress for the freeze watchdog.
func (e *Engine) Position() time.Duration {
	return e.renderer.Position()
}

func (e *Engine) registerProof(ctx context.Context, item *model.MediaItem, startedAt time.Time) {
	if e.proofs == nil {
		return
	}
	e.proofs.RegisterPlayProof(ctx, &model.PlaybackLog{
		ScreenID:        e.screenID,
		MediaID:         item.ID,
		DurationSeconds: int(item.DurationSeconds),
		Status:          "completed",
		StartedAt:       startedAt,
	})
}

// prefetchNext warms the stream cache for the upcoming live-rendered item so
// the transition does not wait on the network.
func (e *Engine) prefetchNext(ctx context.Context, eligible []model.MediaItem, current *model.MediaItem) {
	if e.cache == nil {
		return
	}
	next := e.queue.Peek(eligible, current)
	if next == nil || next.IsFileBacked() || e.cache.Contains(next.RemoteURL) {
		return
	}
	url := next.RemoteURL
	go func() {
		if _, err := e.cache.Fetch(ctx, url); err != nil {
			e.logger.Debug("prefetch failed", zap.String("url", url), zap.Error(err))
		}
	}()
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
