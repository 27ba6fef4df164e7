package playback

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobremidia/player/internal/fsm"
	"github.com/sobremidia/player/pkg/errors"
	"github.com/sobremidia/player/pkg/logger"
	"github.com/sobremidia/player/pkg/model"
)

type stubSource struct {
	playlist *model.Playlist
}

func (s *stubSource) ActivePlaylist() (<-chan *model.Playlist, func()) {
	ch := make(chan *model.Playlist)
	return ch, func() {}
}

func (s *stubSource) CurrentPlaylist() *model.Playlist { return s.playlist }

type stubRenderer struct {
	mu           sync.Mutex
	rendered     []string
	failID       string
	failCritical bool
}

func (r *stubRenderer) Render(ctx context.Context, item *model.MediaItem) error {
	r.mu.Lock()
	r.rendered = append(r.rendered, item.ID)
	r.mu.Unlock()
	if item.ID == r.failID {
		if r.failCritical {
			return errors.Wrap(errors.ErrorTypeCritical, "failed to start decoder", fmt.Errorf("binary missing"))
		}
		return fmt.Errorf("decoder failed for %s", item.ID)
	}
	return nil
}

func (r *stubRenderer) Position() time.Duration                    { return 0 }
func (r *stubRenderer) Visible() bool                              { return true }
func (r *stubRenderer) Restart(ctx context.Context) error          { return nil }
func (r *stubRenderer) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("headless")
}

func (r *stubRenderer) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.rendered...)
}

type recordingProofs struct {
	mu   sync.Mutex
	logs []model.PlaybackLog
}

func (p *recordingProofs) RegisterPlayProof(ctx context.Context, log *model.PlaybackLog) {
	p.mu.Lock()
	p.logs = append(p.logs, *log)
	p.mu.Unlock()
}

func newTestEngine(source *stubSource, renderer *stubRenderer, proofs ProofRecorder, dispatch func(fsm.Event)) *Engine {
	return NewEngine(source, renderer, proofs, nil, dispatch,
		nil, "LOBBY-01", time.Millisecond, logger.NewNop())
}

func TestEngine_AdvancesThroughQueueAndWraps(t *testing.T) {
	source := &stubSource{playlist: playlistWith(fileItem("a"), fileItem("b"))}
	renderer := &stubRenderer{}
	engine := newTestEngine(source, renderer, nil, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		engine.step(ctx)
	}

	assert.Equal(t, []string{"a", "b", "a"}, renderer.sequence())
}

func TestEngine_FailedItemIsSkippedNotFatal(t *testing.T) {
	source := &stubSource{playlist: playlistWith(fileItem("a"), fileItem("bad"), fileItem("c"))}
	renderer := &stubRenderer{failID: "bad"}

	var events []fsm.Event
	engine := newTestEngine(source, renderer, nil, func(ev fsm.Event) {
		events = append(events, ev)
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		engine.step(ctx)
	}

	assert.Equal(t, []string{"a", "bad", "c"}, renderer.sequence(), "loop continues past the failure")

	var mediaErrors []fsm.Event
	for _, ev := range events {
		if ev.Kind == fsm.EventMediaError {
			mediaErrors = append(mediaErrors, ev)
		}
	}
	require.Len(t, mediaErrors, 1)
	assert.Equal(t, "bad", mediaErrors[0].MediaID)
}

func TestEngine_DispatchesPlaybackStartedOnce(t *testing.T) {
	source := &stubSource{playlist: playlistWith(fileItem("a"))}
	renderer := &stubRenderer{}

	var started int
	engine := newTestEngine(source, renderer, nil, func(ev fsm.Event) {
		if ev.Kind == fsm.EventPlaybackStarted {
			started++
		}
	})

	ctx := context.Background()
	engine.step(ctx)
	engine.step(ctx)

	assert.Equal(t, 1, started)
}

func TestEngine_BrokenDecoderEscalatesToCriticalError(t *testing.T) {
	source := &stubSource{playlist: playlistWith(fileItem("a"))}
	renderer := &stubRenderer{failID: "a", failCritical: true}

	var events []fsm.Event
	engine := newTestEngine(source, renderer, nil, func(ev fsm.Event) {
		events = append(events, ev)
	})

	engine.step(context.Background())

	var kinds []fsm.EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, fsm.EventCriticalError)
	assert.NotContains(t, kinds, fsm.EventMediaError,
		"an unstartable decoder is not a per-item failure")
}

func TestEngine_RecoversToPlayingAfterMediaError(t *testing.T) {
	source := &stubSource{playlist: playlistWith(fileItem("a"), fileItem("bad"), fileItem("c"))}
	renderer := &stubRenderer{failID: "bad"}

	machine := fsm.NewMachine(logger.NewNop())
	machine.Dispatch(fsm.BootCompleted())
	machine.Dispatch(fsm.RegistrationSuccess())
	machine.Dispatch(fsm.SyncCompleted())
	engine := newTestEngine(source, renderer, nil, func(ev fsm.Event) {
		machine.Dispatch(ev)
	})

	ctx := context.Background()
	engine.step(ctx) // a renders, PLAYING
	engine.step(ctx) // bad fails, DEGRADED_MODE
	require.Equal(t, fsm.StateDegradedMode, machine.Current().Kind)

	engine.step(ctx) // c renders fine
	assert.Equal(t, fsm.StatePlaying, machine.Current().Kind,
		"a working render after a failure must lift the degraded state")
}

func TestEngine_RecordsPlayProofOnCompletion(t *testing.T) {
	source := &stubSource{playlist: playlistWith(fileItem("a"), fileItem("bad"))}
	renderer := &stubRenderer{failID: "bad"}
	proofs := &recordingProofs{}
	engine := newTestEngine(source, renderer, proofs, nil)

	ctx := context.Background()
	engine.step(ctx)
	engine.step(ctx)

	require.Len(t, proofs.logs, 1, "failed renders leave no proof")
	assert.Equal(t, "a", proofs.logs[0].MediaID)
	assert.Equal(t, "LOBBY-01", proofs.logs[0].ScreenID)
	assert.Equal(t, "completed", proofs.logs[0].Status)
}

func TestEngine_IdlesWithoutPlaylist(t *testing.T) {
	source := &stubSource{}
	renderer := &stubRenderer{}
	engine := newTestEngine(source, renderer, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine.step(ctx)

	assert.Empty(t, renderer.sequence())
}
