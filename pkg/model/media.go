package model

// MediaType identifies how a playlist entry is rendered.
type MediaType string

const (
	MediaTypeImage  MediaType = "image"
	MediaTypeVideo  MediaType = "video"
	MediaTypeWidget MediaType = "widget"
	MediaTypeLink   MediaType = "link"
)

// Schedule restricts a media item to specific times of day and days of week
// (dayparting). Times are "HH:MM" strings; DaysOfWeek is a comma-separated
// list of weekday indices (0=Sunday .. 6=Saturday). Empty fields mean
// unconstrained.
type Schedule struct {
	StartTime  string
	EndTime    string
	DaysOfWeek string
}

// IsZero reports whether the schedule imposes no constraint at all.
func (s Schedule) IsZero() bool {
	return s.StartTime == "" && s.EndTime == "" && s.DaysOfWeek == ""
}

// MediaItem is a single entry of a playlist. LocalPath is set only after the
// download pipeline has verified the file's hash; its presence is the sole
// signal that the file is safe to render.
type MediaItem struct {
	ID              string
	Name            string
	Type            MediaType
	DurationSeconds int64
	RemoteURL       string
	Hash            string // SHA-256, lowercase hex
	LocalPath       string
	OrderIndex      int
	Schedule        Schedule
}

// IsFileBacked reports whether the item is backed by a downloadable payload.
// Widgets and links are rendered live and never hit the cache store.
func (m *MediaItem) IsFileBacked() bool {
	return m.Type == MediaTypeImage || m.Type == MediaTypeVideo
}

// IsPlayableOffline reports whether the item can render with no connectivity.
func (m *MediaItem) IsPlayableOffline() bool {
	if !m.IsFileBacked() {
		return false
	}
	return m.LocalPath != ""
}
