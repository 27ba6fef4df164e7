package store

import (
	"time"
)

// CachedPlaylist is the on-disk projection of the active playlist. There is
// at most one row: every successful sync replaces it wholesale.
type CachedPlaylist struct {
	ID                 string `gorm:"primaryKey"`
	Name               string `gorm:"not null"`
	Version            int64  `gorm:"not null"`
	Emergency          bool   `gorm:"default:false"`
	Orientation        string `gorm:"type:varchar(20);default:'landscape'"`
	Resolution         string `gorm:"type:varchar(20);default:'16x9'"`
	HeartbeatInterval  int    `gorm:"default:60"`
	SeamlessTransition bool   `gorm:"default:true"`
	CacheNextMedia     bool   `gorm:"default:true"`
	UpdatedAt          time.Time
}

// CachedMediaItem is the on-disk projection of a playlist entry. LocalPath is
// set only after the download pipeline verified the payload. The row id is
// synthetic: a playlist may schedule the same media more than once.
type CachedMediaItem struct {
	RowID           int64  `gorm:"primaryKey;autoIncrement"`
	MediaID         string `gorm:"not null;index"`
	PlaylistID      string `gorm:"not null;index"`
	Name            string
	Type            string `gorm:"type:varchar(20);not null"`
	DurationSeconds int64
	RemoteURL       string
	Hash            string `gorm:"type:varchar(64)"`
	LocalPath       string
	OrderIndex      int    `gorm:"index"`
	StartTime       string `gorm:"type:varchar(8)"`
	EndTime         string `gorm:"type:varchar(8)"`
	DaysOfWeek      string `gorm:"type:varchar(20)"`
}

// PlayLog is one append-only record of a completed render awaiting upload.
// Rows survive process restarts and are drained opportunistically when
// connectivity returns.
type PlayLog struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	ScreenID        string `gorm:"not null;index"`
	MediaID         string `gorm:"not null"`
	PlaylistID      string
	DurationSeconds int
	Status          string    `gorm:"type:varchar(20);default:'completed'"`
	StartedAt       time.Time `gorm:"index"`
}

// Setting is a key/value row for small persisted state: clock offset, last
// config signature, dirty-shutdown marker.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

const (
	settingClockOffset     = "clock_offset_ms"
	settingConfigSignature = "last_config_signature"
	settingDirtyShutdown   = "dirty_shutdown"
)
