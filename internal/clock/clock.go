// Package clock maintains a drift-corrected clock independent of device
// wall-clock trust. All schedule evaluation and log timestamps use the
// corrected clock, never raw device time.
package clock

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OffsetStore persists the clock offset across restarts.
type OffsetStore interface {
	LoadClockOffset() (offset time.Duration, ok bool, err error)
	SaveClockOffset(offset time.Duration) error
}

// Synchronizer keeps a persisted offset from the local wall clock, refreshed
// by NTP with an HTTP Date-header fallback.
type Synchronizer struct {
	mu     sync.RWMutex
	offset time.Duration
	synced bool

	ntpHost      string
	httpFallback string
	maxDrift     time.Duration

	store  OffsetStore
	client *http.Client
	logger *zap.Logger
}

// NewSynchronizer creates a synchronizer and restores any persisted offset.
func NewSynchronizer(ntpHost, httpFallback string, maxDrift time.Duration, store OffsetStore, logger *zap.Logger) *Synchronizer {
	s := &Synchronizer{
		ntpHost:      ntpHost,
		httpFallback: httpFallback,
		maxDrift:     maxDrift,
		store:        store,
		client:       &http.Client{Timeout: 5 * time.Second},
		logger:       logger.Named("clock"),
	}

	if store != nil {
		if offset, ok, err := store.LoadClockOffset(); err == nil && ok {
			s.offset = offset
			s.synced = true
			s.logger.Info("restored persisted clock offset", zap.Duration("offset", offset))
		}
	}
	return s
}

// Now returns the corrected current time.
func (s *Synchronizer) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Now().Add(s.offset)
}

// Offset returns the current correction applied to the local clock.
func (s *Synchronizer) Offset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

// Synced reports whether at least one successful synchronization happened.
func (s *Synchronizer) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// Sync refreshes the offset: NTP first, HTTP Date header second. Both
// failing leaves the previous offset in place and returns the NTP error.
func (s *Synchronizer) Sync(ctx context.Context) error {
	offset, ntpErr := fetchNTPOffset(ctx, s.ntpHost)
	if ntpErr == nil {
		s.UpdateOffset(offset)
		s.logger.Info("time synced via ntp", zap.String("host", s.ntpHost), zap.Duration("offset", offset))
		return nil
	}
	s.logger.Warn("ntp sync failed, trying http fallback", zap.Error(ntpErr))

	offset, httpErr := s.fetchHTTPOffset(ctx)
	if httpErr != nil {
		s.logger.Error("http time sync failed", zap.Error(httpErr))
		return ntpErr
	}
	s.UpdateOffset(offset)
	s.logger.Info("time synced via http date header", zap.Duration("offset", offset))
	return nil
}

// Run re-synchronizes on the given interval until ctx is canceled.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) {
	_ = s.Sync(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Sync(ctx)
		}
	}
}

// UpdateOffset applies a new offset. Any single update that would shift the
// offset by more than the safety bound is rejected unless this is the
// first-ever synchronization, protecting against spoofed or corrupted
// responses.
func (s *Synchronizer) UpdateOffset(offset time.Duration) {
	s.mu.Lock()
	if s.synced && abs(offset-s.offset) > s.maxDrift {
		s.mu.Unlock()
		s.logger.Warn("rejecting massive clock drift",
			zap.Duration("proposed", offset),
			zap.Duration("current", s.Offset()),
		)
		return
	}
	s.offset = offset
	s.synced = true
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveClockOffset(offset); err != nil {
			s.logger.Warn("failed to persist clock offset", zap.Error(err))
		}
	}
}

func (s *Synchronizer) fetchHTTPOffset(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.httpFallback, nil)
	if err != nil {
		return 0, err
	}

	before := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	serverTime, err := http.ParseTime(resp.Header.Get("Date"))
	if err != nil {
		return 0, err
	}
	return serverTime.Sub(before), nil
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
