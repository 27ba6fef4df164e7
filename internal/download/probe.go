package download

import (
	"fmt"
	"os"

	mp4 "github.com/abema/go-mp4"
	"go.uber.org/zap"

	"github.com/sobremidia/player/pkg/errors"
)

// VideoProber verifies that a downloaded video container is actually
// decodable. A payload can carry the right checksum and still be a truncated
// or mislabeled upload; the probe catches those before they reach the
// renderer.
type VideoProber struct {
	logger *zap.Logger
}

// NewVideoProber creates a new video prober.
func NewVideoProber(logger *zap.Logger) *VideoProber {
	return &VideoProber{
		logger: logger.Named("video-prober"),
	}
}

// Probe opens the container at path and confirms it holds at least one
// readable track. Failure is an integrity error so the caller retries the
// download instead of caching a broken file.
func (p *VideoProber) Probe(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open video for probing: %w", err)
	}
	defer file.Close()

	info, err := mp4.Probe(file)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeIntegrity, "video container unreadable", err)
	}

	if len(info.Tracks) == 0 {
		return errors.Integrity("video container has no tracks")
	}

	p.logger.Debug("video probe passed",
		zap.String("file", path),
		zap.Int("tracks", len(info.Tracks)),
	)
	return nil
}
