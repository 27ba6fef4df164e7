package watchdog

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/sobremidia/player/internal/store"
	"github.com/sobremidia/player/pkg/model"
)

// storageCriticalPercent is the disk usage level above which old play
// proofs are pruned.
const storageCriticalPercent = 95

// prunedLogsPerCycle bounds how many proofs a single cycle discards.
const prunedLogsPerCycle = 200

// PlaylistProvider yields the playlist whose media must survive a purge.
type PlaylistProvider interface {
	CurrentPlaylist() *model.Playlist
}

// Maintenance runs periodic hygiene: memory pressure release, a renderer
// restart to clear accumulated decoder state, orphaned payload purge and
// log pruning when storage runs critical. Cycles fire every interval and
// additionally at a fixed local hour once the clock is trusted.
type Maintenance struct {
	renderer  Surface
	focus     *FocusWatchdog
	files     *store.FileStore
	db        *store.Store
	source    PlaylistProvider
	interval  time.Duration
	dailyHour int
	now       func() time.Time
	synced    func() bool
	logger    *zap.Logger
}

// NewMaintenance creates the maintenance scheduler. focus may be nil; now
// should come from the synchronized clock, synced reports whether it is
// trustworthy enough to aim for the daily hour.
func NewMaintenance(renderer Surface, focus *FocusWatchdog, files *store.FileStore, db *store.Store, source PlaylistProvider, interval time.Duration, dailyHour int, now func() time.Time, synced func() bool, logger *zap.Logger) *Maintenance {
	if now == nil {
		now = time.Now
	}
	if synced == nil {
		synced = func() bool { return false }
	}
	return &Maintenance{
		renderer:  renderer,
		focus:     focus,
		files:     files,
		db:        db,
		source:    source,
		interval:  interval,
		dailyHour: dailyHour,
		now:       now,
		synced:    synced,
		logger:    logger.Named("maintenance"),
	}
}

// Run schedules cycles until ctx is cancelled.
func (m *Maintenance) Run(ctx context.Context) {
	m.logger.Info("maintenance scheduler started",
		zap.Duration("interval", m.interval),
		zap.Int("daily_hour", m.dailyHour),
	)
	for {
		wait := m.nextDelay()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			m.RunCycle(ctx)
		}
	}
}

// nextDelay picks the sooner of the periodic interval and the next daily
// slot. The daily slot is skipped while the clock is untrusted.
func (m *Maintenance) nextDelay() time.Duration {
	wait := m.interval
	if !m.synced() {
		return wait
	}
	now := m.now()
	daily := time.Date(now.Year(), now.Month(), now.Day(), m.dailyHour, 0, 0, 0, now.Location())
	if !daily.After(now) {
		daily = daily.Add(24 * time.Hour)
	}
	if until := daily.Sub(now); until < wait {
		wait = until
	}
	return wait
}

// RunCycle executes one maintenance pass.
func (m *Maintenance) RunCycle(ctx context.Context) {
	m.logger.Info("maintenance cycle started")
	if m.focus != nil {
		m.focus.SetMaintenance(true)
		defer m.focus.SetMaintenance(false)
	}

	runtime.GC()
	debug.FreeOSMemory()

	if m.renderer != nil {
		if err := m.renderer.Restart(ctx); err != nil {
			m.logger.Warn("renderer restart failed", zap.Error(err))
		}
	}

	if playlist := m.source.CurrentPlaylist(); playlist != nil {
		valid := make([]string, 0, len(playlist.Items))
		for i := range playlist.Items {
			valid = append(valid, playlist.Items[i].ID)
		}
		if removed := m.files.PurgeOrphans(valid); removed > 0 {
			m.logger.Info("purged orphaned payloads", zap.Int("removed", removed))
		}
	}

	if m.files.StorageCritical(storageCriticalPercent) {
		m.logger.Warn("storage critical, pruning oldest play proofs")
		if err := m.db.DeleteOldestPlayLogs(ctx, prunedLogsPerCycle); err != nil {
			m.logger.Error("log pruning failed", zap.Error(err))
		}
	}

	m.logger.Info("maintenance cycle finished",
		zap.Int64("payload_bytes", m.files.TotalSize()))
}
