// Package store is the durable local record of the active content set: an
// embedded sqlite database for playlist/item/log rows plus a content-addressed
// file area for verified media payloads. The synchronization repository is the
// only component that mutates playlist records; the playback engine only
// reads them.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sobremidia/player/pkg/model"
)

// Store wraps the embedded relational store.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (or creates) the player database under dataDir.
func Open(dataDir string, logger *zap.Logger) (*Store, error) {
	dsn := filepath.Join(dataDir, "player.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newStore(db, logger)
}

// OpenInMemory opens a transient database. Used in tests.
func OpenInMemory(logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return newStore(db, logger)
}

func newStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&CachedPlaylist{}, &CachedMediaItem{}, &PlayLog{}, &Setting{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.Named("store"),
	}, nil
}

// ReplacePlaylist swaps the cached playlist wholesale inside one transaction.
// The previous playlist and its items are purged first so the cache always
// reflects exactly one fully reconciled sync, never a partial one.
func (s *Store) ReplacePlaylist(ctx context.Context, playlist *model.Playlist) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&CachedPlaylist{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&CachedMediaItem{}).Error; err != nil {
			return err
		}

		if err := tx.Create(toCachedPlaylist(playlist)).Error; err != nil {
			return err
		}
		if len(playlist.Items) == 0 {
			return nil
		}
		items := make([]CachedMediaItem, 0, len(playlist.Items))
		for _, item := range playlist.Items {
			items = append(items, toCachedItem(playlist.ID, &item))
		}
		return tx.Create(&items).Error
	})
}

// ActivePlaylist returns the cached playlist with its items in play order, or
// nil when no sync ever succeeded.
func (s *Store) ActivePlaylist(ctx context.Context) (*model.Playlist, error) {
	var cached CachedPlaylist
	err := s.db.WithContext(ctx).First(&cached).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cached playlist: %w", err)
	}

	var items []CachedMediaItem
	if err := s.db.WithContext(ctx).
		Where("playlist_id = ?", cached.ID).
		Order("order_index ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load cached items: %w", err)
	}

	return toDomainPlaylist(&cached, items), nil
}

// LocalPaths returns the verified local path per media id for the cached
// playlist. Used by the repository to preserve already-downloaded files
// across a playlist swap.
func (s *Store) LocalPaths(ctx context.Context) (map[string]string, error) {
	var items []CachedMediaItem
	if err := s.db.WithContext(ctx).Find(&items).Error; err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(items))
	for _, item := range items {
		if item.LocalPath != "" {
			paths[item.MediaID] = item.LocalPath
		}
	}
	return paths, nil
}

// UpdateMediaLocalPath records a verified payload location for a media id,
// covering every entry that schedules it.
func (s *Store) UpdateMediaLocalPath(ctx context.Context, mediaID, path string) error {
	return s.db.WithContext(ctx).
		Model(&CachedMediaItem{}).
		Where("media_id = ?", mediaID).
		Update("local_path", path).Error
}

// InsertPlayLog appends one playback record to the offline buffer.
func (s *Store) InsertPlayLog(ctx context.Context, log *model.PlaybackLog) error {
	if log.MediaID == "" {
		// Reject garbage before it reaches the upload batch.
		return fmt.Errorf("play log rejected: empty media id")
	}
	return s.db.WithContext(ctx).Create(&PlayLog{
		ScreenID:        log.ScreenID,
		MediaID:         log.MediaID,
		PlaylistID:      log.PlaylistID,
		DurationSeconds: log.DurationSeconds,
		Status:          log.Status,
		StartedAt:       log.StartedAt,
	}).Error
}

// PendingPlayLogs returns buffered playback records in insertion order.
func (s *Store) PendingPlayLogs(ctx context.Context) ([]model.PlaybackLog, []int64, error) {
	var rows []PlayLog
	if err := s.db.WithContext(ctx).Order("started_at ASC").Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	logs := make([]model.PlaybackLog, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, model.PlaybackLog{
			ScreenID:        row.ScreenID,
			MediaID:         row.MediaID,
			PlaylistID:      row.PlaylistID,
			DurationSeconds: row.DurationSeconds,
			Status:          row.Status,
			StartedAt:       row.StartedAt,
		})
		ids = append(ids, row.ID)
	}
	return logs, ids, nil
}

// DeletePlayLogs removes uploaded records by id.
func (s *Store) DeletePlayLogs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Delete(&PlayLog{}, ids).Error
}

// DeleteOldestPlayLogs prunes the oldest count records. Used by the
// maintenance cycle when storage runs critical.
func (s *Store) DeleteOldestPlayLogs(ctx context.Context, count int) error {
	return s.db.WithContext(ctx).Exec(
		"DELETE FROM play_logs WHERE id IN (SELECT id FROM play_logs ORDER BY started_at ASC LIMIT ?)",
		count,
	).Error
}

// --- settings ---

func (s *Store) getSetting(key string) (string, bool, error) {
	var row Setting
	err := s.db.First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *Store) putSetting(key, value string) error {
	return s.db.Save(&Setting{Key: key, Value: value, UpdatedAt: time.Now()}).Error
}

// LoadClockOffset implements clock.OffsetStore.
func (s *Store) LoadClockOffset() (time.Duration, bool, error) {
	value, ok, err := s.getSetting(settingClockOffset)
	if err != nil || !ok {
		return 0, false, err
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}

// SaveClockOffset implements clock.OffsetStore.
func (s *Store) SaveClockOffset(offset time.Duration) error {
	return s.putSetting(settingClockOffset, strconv.FormatInt(offset.Milliseconds(), 10))
}

// ConfigSignature returns the signature of the last successfully applied sync.
func (s *Store) ConfigSignature() string {
	value, _, _ := s.getSetting(settingConfigSignature)
	return value
}

// SaveConfigSignature records the signature of the applied sync.
func (s *Store) SaveConfigSignature(signature string) error {
	return s.putSetting(settingConfigSignature, signature)
}

// MarkDirtyShutdown flags the current session; cleared on graceful stop. If
// the flag is still set on the next boot the previous session died
// unexpectedly (crash or power loss).
func (s *Store) MarkDirtyShutdown() error {
	return s.putSetting(settingDirtyShutdown, "1")
}

// ClearDirtyShutdown marks a graceful stop.
func (s *Store) ClearDirtyShutdown() error {
	return s.putSetting(settingDirtyShutdown, "0")
}

// WasDirtyShutdown reports whether the previous session ended uncleanly.
func (s *Store) WasDirtyShutdown() bool {
	value, ok, _ := s.getSetting(settingDirtyShutdown)
	return ok && value == "1"
}

// --- mapping ---

func toCachedPlaylist(p *model.Playlist) *CachedPlaylist {
	return &CachedPlaylist{
		ID:                 p.ID,
		Name:               p.Name,
		Version:            p.Version,
		Emergency:          p.Emergency,
		Orientation:        p.Orientation,
		Resolution:         p.Resolution,
		HeartbeatInterval:  p.HeartbeatInterval,
		SeamlessTransition: p.SeamlessTransition,
		CacheNextMedia:     p.CacheNextMedia,
	}
}

func toCachedItem(playlistID string, m *model.MediaItem) CachedMediaItem {
	return CachedMediaItem{
		MediaID:         m.ID,
		PlaylistID:      playlistID,
		Name:            m.Name,
		Type:            string(m.Type),
		DurationSeconds: m.DurationSeconds,
		RemoteURL:       m.RemoteURL,
		Hash:            m.Hash,
		LocalPath:       m.LocalPath,
		OrderIndex:      m.OrderIndex,
		StartTime:       m.Schedule.StartTime,
		EndTime:         m.Schedule.EndTime,
		DaysOfWeek:      m.Schedule.DaysOfWeek,
	}
}

func toDomainPlaylist(p *CachedPlaylist, items []CachedMediaItem) *model.Playlist {
	playlist := &model.Playlist{
		ID:                 p.ID,
		Name:               p.Name,
		Version:            p.Version,
		Emergency:          p.Emergency,
		Orientation:        p.Orientation,
		Resolution:         p.Resolution,
		HeartbeatInterval:  p.HeartbeatInterval,
		SeamlessTransition: p.SeamlessTransition,
		CacheNextMedia:     p.CacheNextMedia,
		Items:              make([]model.MediaItem, 0, len(items)),
	}
	for _, item := range items {
		playlist.Items = append(playlist.Items, model.MediaItem{
			ID:              item.MediaID,
			Name:            item.Name,
			Type:            model.MediaType(item.Type),
			DurationSeconds: item.DurationSeconds,
			RemoteURL:       item.RemoteURL,
			Hash:            item.Hash,
			LocalPath:       item.LocalPath,
			OrderIndex:      item.OrderIndex,
			Schedule: model.Schedule{
				StartTime:  item.StartTime,
				EndTime:    item.EndTime,
				DaysOfWeek: item.DaysOfWeek,
			},
		})
	}
	return playlist
}
