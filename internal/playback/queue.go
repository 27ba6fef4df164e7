package playback

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/sobremidia/player/internal/schedule"
	"github.com/sobremidia/player/pkg/model"
)

// Queue is the ordered set of items currently worth rendering. It is rebuilt
// from the active playlist whenever the content signature changes and
// re-filtered by schedule on every pass.
type Queue struct {
	items     []model.MediaItem
	signature string
	// lastPlayedID survives rebuilds so reordering the playlist does not
	// restart the loop from the top.
	lastPlayedID string
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Rebuild replaces the queue's items when the playlist content actually
// changed. Returns true when a rebuild happened. Version bumps with
// identical content are ignored so a sync cycle cannot glitch playback, but
// the items themselves are refreshed either way: a delta sync fills in local
// paths without changing content, and those must become eligible immediately.
func (q *Queue) Rebuild(playlist *model.Playlist) bool {
	sig := contentSignature(playlist.Items)
	q.items = make([]model.MediaItem, len(playlist.Items))
	copy(q.items, playlist.Items)
	if sig == q.signature {
		return false
	}
	q.signature = sig
	return true
}

// Eligible returns the items playable right now: schedule approves and, for
// file-backed items, a verified payload is on disk.
func (q *Queue) Eligible(now time.Time) []model.MediaItem {
	eligible := make([]model.MediaItem, 0, len(q.items))
	for _, item := range q.items {
		if !schedule.IsEligible(&item, now) {
			continue
		}
		if item.IsFileBacked() && item.LocalPath == "" {
			continue
		}
		eligible = append(eligible, item)
	}
	return eligible
}

// Next picks the item after the last played one within eligible. A removed
// or reordered last item restarts from the front rather than stopping.
func (q *Queue) Next(eligible []model.MediaItem) *model.MediaItem {
	if len(eligible) == 0 {
		return nil
	}
	index := 0
	if q.lastPlayedID != "" {
		for i, item := range eligible {
			if item.ID == q.lastPlayedID {
				index = (i + 1) % len(eligible)
				break
			}
		}
	}
	return &eligible[index]
}

// Peek returns the item that would follow next, for pre-buffering.
func (q *Queue) Peek(eligible []model.MediaItem, next *model.MediaItem) *model.MediaItem {
	if len(eligible) < 2 || next == nil {
		return nil
	}
	for i, item := range eligible {
		if item.ID == next.ID {
			return &eligible[(i+1)%len(eligible)]
		}
	}
	return nil
}

// MarkPlayed advances the cursor.
func (q *Queue) MarkPlayed(id string) {
	q.lastPlayedID = id
}

// contentSignature fingerprints the ordered id and source of every item.
// Schedules and durations are re-read each pass and deliberately excluded.
func contentSignature(items []model.MediaItem) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString(item.ID)
		b.WriteByte(':')
		b.WriteString(item.RemoteURL)
		b.WriteByte('|')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}
