package model

// Playlist is the ordered content assignment for one screen. It is replaced
// wholesale on every successful sync; Version increases monotonically on the
// backend whenever the assignment changes.
type Playlist struct {
	ID                 string
	Name               string
	Version            int64
	Emergency          bool
	Orientation        string
	Resolution         string
	HeartbeatInterval  int // seconds
	SeamlessTransition bool
	CacheNextMedia     bool
	Items              []MediaItem
}

// IsValid reports whether the playlist has anything to render.
func (p *Playlist) IsValid() bool {
	return p != nil && len(p.Items) > 0
}
