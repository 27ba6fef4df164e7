package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobremidia/player/pkg/model"
)

func playlistWith(items ...model.MediaItem) *model.Playlist {
	return &model.Playlist{ID: "pl-1", Version: 1, Items: items}
}

func fileItem(id string) model.MediaItem {
	return model.MediaItem{
		ID:        id,
		Type:      model.MediaTypeImage,
		RemoteURL: "https://cdn.example.com/" + id + ".jpg",
		LocalPath: "/data/media_content/" + id + ".dat",
	}
}

func TestQueueRebuild_SkipsWhenContentUnchanged(t *testing.T) {
	q := NewQueue()

	first := playlistWith(fileItem("a"), fileItem("b"))
	assert.True(t, q.Rebuild(first))

	// A new sync cycle bumps the version but carries identical content.
	same := playlistWith(fileItem("a"), fileItem("b"))
	same.Version = 2
	assert.False(t, q.Rebuild(same))

	reordered := playlistWith(fileItem("b"), fileItem("a"))
	assert.True(t, q.Rebuild(reordered))
}

func TestQueueRebuild_RefreshesLocalPathsWithoutRebuild(t *testing.T) {
	q := NewQueue()
	pending := fileItem("a")
	pending.LocalPath = ""
	require.True(t, q.Rebuild(playlistWith(pending)))
	require.Empty(t, q.Eligible(time.Now()))

	// The next sync cycle emits the same content, now with the payload
	// downloaded and registered.
	downloaded := fileItem("a")
	assert.False(t, q.Rebuild(playlistWith(downloaded)), "content is unchanged")

	eligible := q.Eligible(time.Now())
	require.Len(t, eligible, 1)
	assert.Equal(t, downloaded.LocalPath, eligible[0].LocalPath)
}

func TestQueueRebuild_URLChangeForcesRebuild(t *testing.T) {
	q := NewQueue()
	require.True(t, q.Rebuild(playlistWith(fileItem("a"))))

	changed := fileItem("a")
	changed.RemoteURL += "?v=2"
	assert.True(t, q.Rebuild(playlistWith(changed)))
}

func TestQueueEligible_FiltersUndownloadedFiles(t *testing.T) {
	q := NewQueue()
	pending := fileItem("pending")
	pending.LocalPath = ""
	widget := model.MediaItem{ID: "w-1", Type: model.MediaTypeWidget, RemoteURL: "https://x/w"}
	q.Rebuild(playlistWith(fileItem("ready"), pending, widget))

	eligible := q.Eligible(time.Now())

	require.Len(t, eligible, 2)
	assert.Equal(t, "ready", eligible[0].ID)
	assert.Equal(t, "w-1", eligible[1].ID, "live-rendered items need no payload")
}

func TestQueueEligible_HonorsSchedule(t *testing.T) {
	q := NewQueue()
	night := fileItem("night")
	night.Schedule = model.Schedule{StartTime: "22:00", EndTime: "06:00"}
	q.Rebuild(playlistWith(fileItem("always"), night))

	noon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	midnight := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)

	assert.Len(t, q.Eligible(noon), 1)
	assert.Len(t, q.Eligible(midnight), 2)
}

func TestQueueNext_ResilientCursor(t *testing.T) {
	q := NewQueue()
	q.Rebuild(playlistWith(fileItem("a"), fileItem("b"), fileItem("c")))
	eligible := q.Eligible(time.Now())

	first := q.Next(eligible)
	assert.Equal(t, "a", first.ID)
	q.MarkPlayed(first.ID)

	second := q.Next(eligible)
	assert.Equal(t, "b", second.ID)
	q.MarkPlayed(second.ID)

	// Wrap around after the last item.
	q.MarkPlayed("c")
	assert.Equal(t, "a", q.Next(eligible).ID)
}

func TestQueueNext_RemovedCursorRestartsFromFront(t *testing.T) {
	q := NewQueue()
	q.Rebuild(playlistWith(fileItem("a"), fileItem("b"), fileItem("c")))
	q.MarkPlayed("b")

	q.Rebuild(playlistWith(fileItem("a"), fileItem("c")))
	eligible := q.Eligible(time.Now())

	assert.Equal(t, "a", q.Next(eligible).ID)
}

func TestQueuePeek(t *testing.T) {
	q := NewQueue()
	q.Rebuild(playlistWith(fileItem("a"), fileItem("b")))
	eligible := q.Eligible(time.Now())

	next := q.Next(eligible)
	peeked := q.Peek(eligible, next)

	require.NotNil(t, peeked)
	assert.Equal(t, "b", peeked.ID)
	assert.Nil(t, q.Peek(eligible[:1], next), "single item has nothing to prefetch")
}
