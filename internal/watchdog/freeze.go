package watchdog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PlaybackProbe is what the freeze detector observes. The playback engine
// implements it.
type PlaybackProbe interface {
	// Rendering reports whether an item should currently be advancing.
	Rendering() bool
	// Position is the progress through the current item.
	Position() time.Duration
}

// FreezeWatchdog detects a stalled render: the position stops moving while
// an item is supposed to be playing. Recovery skips the wedged item only,
// never the whole process.
type FreezeWatchdog struct {
	probe     PlaybackProbe
	interval  time.Duration
	threshold int
	onFreeze  func()
	logger    *zap.Logger

	mu           sync.Mutex
	lastPosition time.Duration
	hasLast      bool
	frozenChecks int
}

// NewFreezeWatchdog creates a freeze detector. threshold consecutive
// unchanged readings at interval spacing trigger onFreeze once.
func NewFreezeWatchdog(probe PlaybackProbe, interval time.Duration, threshold int, onFreeze func(), logger *zap.Logger) *FreezeWatchdog {
	return &FreezeWatchdog{
		probe:     probe,
		interval:  interval,
		threshold: threshold,
		onFreeze:  onFreeze,
		logger:    logger.Named("freeze-watchdog"),
	}
}

// Run polls until ctx is cancelled.
func (w *FreezeWatchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.Info("freeze watchdog started",
		zap.Duration("interval", w.interval),
		zap.Int("threshold", w.threshold),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check runs one observation. Exported through Run; split out so tests can
// drive it without real time.
func (w *FreezeWatchdog) check() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.probe.Rendering() {
		w.resetLocked()
		return
	}

	position := w.probe.Position()
	if w.hasLast && position == w.lastPosition {
		w.frozenChecks++
		w.logger.Warn("position frozen",
			zap.Duration("position", position),
			zap.Int("check", w.frozenChecks),
			zap.Int("threshold", w.threshold),
		)
		if w.frozenChecks >= w.threshold {
			w.logger.Error("freeze detected, triggering recovery",
				zap.Duration("position", position))
			w.resetLocked()
			// Fire outside the lock so recovery can call Reset.
			w.mu.Unlock()
			w.onFreeze()
			w.mu.Lock()
			return
		}
	} else {
		if w.frozenChecks > 0 {
			w.logger.Info("playback resumed", zap.Int("after_checks", w.frozenChecks))
		}
		w.frozenChecks = 0
	}
	w.lastPosition = position
	w.hasLast = true
}

// Reset clears the counters. Called on media transitions so a slow item
// boundary is not mistaken for a stall.
func (w *FreezeWatchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
}

func (w *FreezeWatchdog) resetLocked() {
	w.frozenChecks = 0
	w.hasLast = false
	w.lastPosition = 0
}
