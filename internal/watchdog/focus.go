package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Surface is the visible rendering target the focus watchdog keeps in front.
type Surface interface {
	Visible() bool
	Restart(ctx context.Context) error
}

// FocusWatchdog enforces kiosk mode: if the rendering surface loses
// visibility for too long it relaunches it. A circuit breaker detects
// relaunch loops and backs off instead of fighting a crashing renderer.
type FocusWatchdog struct {
	surface         Surface
	interval        time.Duration
	threshold       int
	breakerLimit    int
	breakerWindow   time.Duration
	stabilityWindow time.Duration
	now             func() time.Time
	logger          *zap.Logger

	maintenance atomic.Bool

	mu            sync.Mutex
	consecutive   int
	relaunches    []time.Time
	disabledUntil time.Time
}

// NewFocusWatchdog creates a focus enforcer. threshold consecutive hidden
// readings cause a relaunch; breakerLimit relaunches inside breakerWindow
// trip the breaker, suspending enforcement for stabilityWindow.
func NewFocusWatchdog(surface Surface, interval time.Duration, threshold, breakerLimit int, breakerWindow, stabilityWindow time.Duration, logger *zap.Logger) *FocusWatchdog {
	return &FocusWatchdog{
		surface:         surface,
		interval:        interval,
		threshold:       threshold,
		breakerLimit:    breakerLimit,
		breakerWindow:   breakerWindow,
		stabilityWindow: stabilityWindow,
		now:             time.Now,
		logger:          logger.Named("focus-watchdog"),
	}
}

// SetMaintenance suspends enforcement while deliberate renderer restarts
// are in progress.
func (w *FocusWatchdog) SetMaintenance(on bool) {
	w.maintenance.Store(on)
}

// Run polls until ctx is cancelled.
func (w *FocusWatchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.Info("focus watchdog started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *FocusWatchdog) check(ctx context.Context) {
	if w.maintenance.Load() {
		w.mu.Lock()
		w.consecutive = 0
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	if w.now().Before(w.disabledUntil) {
		w.mu.Unlock()
		return
	}

	if w.surface.Visible() {
		if w.consecutive > 0 {
			w.logger.Info("surface visible again", zap.Int("after_checks", w.consecutive))
		}
		w.consecutive = 0
		w.mu.Unlock()
		return
	}

	w.consecutive++
	w.logger.Warn("surface not visible",
		zap.Int("check", w.consecutive),
		zap.Int("threshold", w.threshold),
	)
	if w.consecutive < w.threshold {
		w.mu.Unlock()
		return
	}
	w.consecutive = 0

	now := w.now()
	recent := w.relaunches[:0]
	for _, t := range w.relaunches {
		if now.Sub(t) < w.breakerWindow {
			recent = append(recent, t)
		}
	}
	w.relaunches = recent

	if len(w.relaunches) >= w.breakerLimit {
		w.disabledUntil = now.Add(w.stabilityWindow)
		w.logger.Error("relaunch loop detected, suspending focus enforcement",
			zap.Int("relaunches", len(w.relaunches)),
			zap.Duration("window", w.breakerWindow),
			zap.Time("resume_at", w.disabledUntil),
		)
		w.mu.Unlock()
		return
	}

	w.relaunches = append(w.relaunches, now)
	w.mu.Unlock()

	w.logger.Warn("relaunching rendering surface")
	if err := w.surface.Restart(ctx); err != nil {
		w.logger.Error("surface relaunch failed", zap.Error(err))
	}
}
