package heartbeat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sobremidia/player/internal/catalog"
	"github.com/sobremidia/player/internal/store"
	"github.com/sobremidia/player/pkg/model"
)

type staticSource struct {
	playlist *model.Playlist
}

func (s *staticSource) CurrentPlaylist() *model.Playlist { return s.playlist }

type catalogStub struct {
	logInserts atomic.Int32
	pulses     atomic.Int32
	failLogs   atomic.Bool
}

func (c *catalogStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/playback_logs":
			if c.failLogs.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			c.logInserts.Add(1)
			w.WriteHeader(http.StatusCreated)
		case "/rpc/pulse_screen":
			c.pulses.Add(1)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
}

func newReporterFixture(t *testing.T) (*Reporter, *store.Store, *catalogStub) {
	t.Helper()
	stub := &catalogStub{}
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	db, err := store.OpenInMemory(zap.NewNop())
	require.NoError(t, err)

	client := catalog.NewClient(server.URL, "key", "screen-1", server.URL, 5*time.Second, time.Now, zap.NewNop())
	reporter := New(client, db, t.TempDir(), func() string { return "online" }, &staticSource{}, zap.NewNop())
	return reporter, db, stub
}

func proof(mediaID string) *model.PlaybackLog {
	return &model.PlaybackLog{
		ScreenID:        "screen-1",
		MediaID:         mediaID,
		PlaylistID:      "pl-1",
		DurationSeconds: 10,
		Status:          "completed",
		StartedAt:       time.Now(),
	}
}

func TestRegisterPlayProof_FlushesWhenBatchAccumulates(t *testing.T) {
	reporter, db, stub := newReporterFixture(t)
	ctx := context.Background()

	reporter.RegisterPlayProof(ctx, proof("m-1"))
	require.EqualValues(t, 0, stub.logInserts.Load(), "single proof stays buffered")

	reporter.RegisterPlayProof(ctx, proof("m-2"))
	require.EqualValues(t, 1, stub.logInserts.Load())

	pending, _, err := db.PendingPlayLogs(ctx)
	require.NoError(t, err)
	require.Empty(t, pending, "uploaded proofs must be cleared locally")
}

func TestFlushProofs_KeepsBufferWhenUploadFails(t *testing.T) {
	reporter, db, stub := newReporterFixture(t)
	ctx := context.Background()
	stub.failLogs.Store(true)

	reporter.RegisterPlayProof(ctx, proof("m-1"))
	reporter.RegisterPlayProof(ctx, proof("m-2"))

	pending, _, err := db.PendingPlayLogs(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2, "proofs survive a failed upload")

	stub.failLogs.Store(false)
	reporter.FlushProofs(ctx)
	pending, _, err = db.PendingPlayLogs(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestBeat_SendsPulseAndDrainsBuffer(t *testing.T) {
	reporter, _, stub := newReporterFixture(t)
	ctx := context.Background()
	stub.failLogs.Store(true)
	reporter.RegisterPlayProof(ctx, proof("m-1"))
	stub.failLogs.Store(false)

	reporter.Beat(ctx)
	require.EqualValues(t, 1, stub.pulses.Load())
	require.EqualValues(t, 1, stub.logInserts.Load())
}

func TestInterval_FollowsPlaylistConfiguration(t *testing.T) {
	reporter, _, _ := newReporterFixture(t)
	require.Equal(t, defaultInterval, reporter.interval())

	reporter.source = &staticSource{playlist: &model.Playlist{HeartbeatInterval: 30}}
	require.Equal(t, 30*time.Second, reporter.interval())
}
