package heartbeat

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"github.com/sobremidia/player/internal/catalog"
	"github.com/sobremidia/player/internal/store"
	"github.com/sobremidia/player/internal/watchdog"
	"github.com/sobremidia/player/pkg/model"
)

const playerVersion = "1.0.0"

// flashFlushThreshold is how many buffered proofs trigger an immediate
// upload attempt instead of waiting for the next beat.
const flashFlushThreshold = 2

const defaultInterval = 60 * time.Second

// Reporter sends periodic liveness pulses with device telemetry and
// uploads buffered play proofs. It implements playback.ProofRecorder.
type Reporter struct {
	client  *catalog.Client
	db      *store.Store
	dataDir string
	status  func() string
	source  watchdog.PlaylistProvider
	logger  *zap.Logger

	flushMu sync.Mutex
}

// New creates a reporter. status yields the current runtime state string
// sent with each pulse; source supplies the playlist whose heartbeat
// interval applies.
func New(client *catalog.Client, db *store.Store, dataDir string, status func() string, source watchdog.PlaylistProvider, logger *zap.Logger) *Reporter {
	return &Reporter{
		client:  client,
		db:      db,
		dataDir: dataDir,
		status:  status,
		source:  source,
		logger:  logger.Named("heartbeat"),
	}
}

// Run pulses until ctx is cancelled. The interval follows the active
// playlist's configuration and is re-read after every beat.
func (r *Reporter) Run(ctx context.Context) {
	r.logger.Info("heartbeat reporter started")
	for {
		timer := time.NewTimer(r.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.Beat(ctx)
		}
	}
}

func (r *Reporter) interval() time.Duration {
	if playlist := r.source.CurrentPlaylist(); playlist != nil && playlist.HeartbeatInterval > 0 {
		return time.Duration(playlist.HeartbeatInterval) * time.Second
	}
	return defaultInterval
}

// Beat sends one pulse and drains any buffered proofs. Failures are
// logged and retried on the next beat.
func (r *Reporter) Beat(ctx context.Context) {
	health := r.collect(ctx)
	if err := r.client.Heartbeat(ctx, r.status(), playerVersion, health); err != nil {
		r.logger.Warn("pulse failed", zap.Error(err))
	}
	r.FlushProofs(ctx)
}

// RegisterPlayProof buffers one completed-render record and attempts an
// upload once enough have accumulated. The record is stamped with the
// catalog's screen identity, which may differ from the configured device ID.
func (r *Reporter) RegisterPlayProof(ctx context.Context, log *model.PlaybackLog) {
	log.ScreenID = r.client.ScreenUUID()
	if err := r.db.InsertPlayLog(ctx, log); err != nil {
		r.logger.Error("play proof not persisted", zap.Error(err))
		return
	}
	pending, _, err := r.db.PendingPlayLogs(ctx)
	if err != nil {
		return
	}
	if len(pending) >= flashFlushThreshold {
		r.FlushProofs(ctx)
	}
}

// FlushProofs uploads buffered proofs and deletes them on success. Buffered
// records survive offline periods; the oldest are pruned by maintenance
// only under storage pressure.
func (r *Reporter) FlushProofs(ctx context.Context) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	pending, ids, err := r.db.PendingPlayLogs(ctx)
	if err != nil || len(pending) == 0 {
		return
	}
	if err := r.client.InsertPlayLogs(ctx, pending); err != nil {
		r.logger.Debug("proof upload deferred", zap.Int("buffered", len(pending)), zap.Error(err))
		return
	}
	if err := r.db.DeletePlayLogs(ctx, ids); err != nil {
		r.logger.Error("uploaded proofs not cleared", zap.Error(err))
		return
	}
	r.logger.Info("play proofs uploaded", zap.Int("count", len(pending)))
}

func (r *Reporter) collect(ctx context.Context) model.HealthSnapshot {
	var snapshot model.HealthSnapshot

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snapshot.RAMUsedBytes = vm.Used
		snapshot.RAMUsedPercent = int(vm.UsedPercent)
	}
	if usage, err := disk.UsageWithContext(ctx, r.dataDir); err == nil {
		snapshot.FreeStorageBytes = usage.Free
	}
	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		snapshot.UptimeHours = int(uptime / 3600)
	}
	snapshot.CPUTempCelsius = watchdog.ReadCPUTemperature()
	snapshot.IPAddress = localIP()
	return snapshot
}

// localIP finds the outbound interface address without sending traffic.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}
