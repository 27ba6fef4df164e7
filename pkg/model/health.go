package model

import "time"

// HealthSnapshot is produced per heartbeat and never persisted beyond the
// outgoing report.
type HealthSnapshot struct {
	FreeStorageBytes uint64
	RAMUsedBytes     uint64
	RAMUsedPercent   int
	CPUTempCelsius   float64
	UptimeHours      int
	IPAddress        string
}

// PlaybackLog is one append-only record of a completed render, buffered
// locally until connectivity allows upload.
type PlaybackLog struct {
	ScreenID        string
	MediaID         string
	PlaylistID      string
	DurationSeconds int
	Status          string
	StartedAt       time.Time
}
