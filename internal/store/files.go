package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
	"go.uber.org/zap"
)

// FileStore manages the content-addressed file area. Payloads are keyed by
// media id with a generic extension; the hash stored alongside the playlist
// row, not the filename, proves integrity.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates (if needed) the media directory under dataDir.
func NewFileStore(dataDir string, logger *zap.Logger) (*FileStore, error) {
	dir := filepath.Join(dataDir, "media_content")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger.Named("filestore"),
	}, nil
}

// PathFor returns the canonical location for a media payload.
func (f *FileStore) PathFor(mediaID string) string {
	return filepath.Join(f.dir, mediaID+".dat")
}

// TempPathFor returns the staging location used while downloading.
func (f *FileStore) TempPathFor(mediaID string) string {
	return f.PathFor(mediaID) + ".tmp"
}

// Exists reports whether a non-empty payload is present for mediaID.
func (f *FileStore) Exists(mediaID string) bool {
	info, err := os.Stat(f.PathFor(mediaID))
	return err == nil && info.Size() > 0
}

// MatchesHash reports whether the stored payload matches the expected
// SHA-256. When the catalog carries no real checksum (not 64 hex chars) the
// file's presence under the media id is accepted as identity.
func (f *FileStore) MatchesHash(mediaID, expectedHash string) bool {
	if !f.Exists(mediaID) {
		return false
	}
	if len(expectedHash) != sha256.Size*2 {
		return true
	}
	actual, err := f.HashFile(f.PathFor(mediaID))
	if err != nil {
		return false
	}
	return actual == strings.ToLower(expectedHash)
}

// HashFile computes the lowercase hex SHA-256 of a file.
func (f *FileStore) HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Delete removes a payload if present.
func (f *FileStore) Delete(mediaID string) error {
	err := os.Remove(f.PathFor(mediaID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// PurgeOrphans deletes payloads no longer referenced by the active playlist.
func (f *FileStore) PurgeOrphans(validMediaIDs []string) int {
	valid := make(map[string]struct{}, len(validMediaIDs))
	for _, id := range validMediaIDs {
		valid[id+".dat"] = struct{}{}
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		f.logger.Warn("failed to scan media dir", zap.Error(err))
		return 0
	}

	purged := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, ok := valid[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, name)); err != nil {
			f.logger.Warn("failed to purge orphaned file", zap.String("file", name), zap.Error(err))
			continue
		}
		f.logger.Info("purged orphaned file", zap.String("file", name))
		purged++
	}
	return purged
}

// TotalSize returns the bytes used by all payloads.
func (f *FileStore) TotalSize() int64 {
	var total int64
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0
	}
	for _, entry := range entries {
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			total += info.Size()
		}
	}
	return total
}

// StorageCritical reports whether the filesystem holding the media area is
// at or past the given used-percent threshold.
func (f *FileStore) StorageCritical(thresholdPercent float64) bool {
	usage, err := disk.Usage(f.dir)
	if err != nil {
		return false
	}
	return usage.UsedPercent >= thresholdPercent
}

// FreeBytes returns the free space on the filesystem holding the media area.
func (f *FileStore) FreeBytes() uint64 {
	usage, err := disk.Usage(f.dir)
	if err != nil {
		return 0
	}
	return usage.Free
}
