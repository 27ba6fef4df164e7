// playerd is the signage player runtime. It registers the device against
// the catalog, keeps a local copy of the assigned playlist and its media,
// and renders it in a loop that survives network loss, power cuts and
// wedged decoders.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sobremidia/player/internal/catalog"
	"github.com/sobremidia/player/internal/clock"
	"github.com/sobremidia/player/internal/commands"
	"github.com/sobremidia/player/internal/config"
	"github.com/sobremidia/player/internal/download"
	"github.com/sobremidia/player/internal/fsm"
	"github.com/sobremidia/player/internal/heartbeat"
	"github.com/sobremidia/player/internal/playback"
	"github.com/sobremidia/player/internal/repository"
	"github.com/sobremidia/player/internal/status"
	"github.com/sobremidia/player/internal/store"
	"github.com/sobremidia/player/internal/watchdog"
	"github.com/sobremidia/player/pkg/errors"
	"github.com/sobremidia/player/pkg/logger"
)

// resyncInterval is the steady-state catalog poll. Push commands trigger
// immediate syncs; this is the safety net when the push channel is down.
const resyncInterval = 5 * time.Minute

// syncBackoffBase and syncBackoffCap bound the retry schedule while the
// catalog is unreachable or the device is unregistered.
const (
	syncBackoffBase = 5 * time.Second
	syncBackoffCap  = 5 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New()
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("player terminated", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Storage.DataDir, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	files, err := store.NewFileStore(cfg.Storage.DataDir, log)
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}

	if db.WasDirtyShutdown() {
		log.Warn("previous run ended without a clean shutdown, likely power loss")
	}
	if err := db.MarkDirtyShutdown(); err != nil {
		log.Warn("dirty-shutdown marker not written", zap.Error(err))
	}

	clockSync := clock.NewSynchronizer(cfg.Clock.NTPHost, cfg.Clock.HTTPFallback, cfg.Clock.MaxDrift, db, log)

	client := catalog.NewClient(
		cfg.Catalog.BaseURL,
		cfg.Catalog.APIKey,
		cfg.Device.ID,
		cfg.Catalog.ViewerBaseURL,
		cfg.Catalog.RequestTimeout,
		clockSync.Now,
		log,
	)

	var resolver download.URLResolver
	var objects *catalog.ObjectStorage
	if cfg.Storage.S3Bucket != "" {
		objects, err = catalog.NewObjectStorage(ctx, cfg.Storage.S3Bucket, cfg.Storage.S3Region, cfg.Storage.S3Endpoint, cfg.Storage.SignedURLTTL, log)
		if err != nil {
			log.Warn("object storage unavailable, relying on absolute media URLs", zap.Error(err))
		} else {
			resolver = objects
		}
	}

	pipeline := download.NewPipeline(files, db, resolver, client, cfg.Download.Concurrency, log)
	repo := repository.New(client, pipeline, db, files, log)
	machine := fsm.NewMachine(log)
	dispatch := func(event fsm.Event) { machine.Dispatch(event) }

	limits := playback.DetectProfile(log).Limits()
	renderer := playback.NewExecRenderer(cfg.Playback.RendererCommand, limits, log)
	streamCache, err := playback.NewStreamCache(cfg.Storage.DataDir, cfg.Playback.StreamCacheSize, log)
	if err != nil {
		return fmt.Errorf("open stream cache: %w", err)
	}

	reporter := heartbeat.New(client, db, cfg.Storage.DataDir, func() string {
		return machine.Current().String()
	}, repo, log)

	engine := playback.NewEngine(repo, renderer, reporter, streamCache, dispatch, clockSync.Now, cfg.Device.ID, cfg.Playback.AdvanceDelay, log)

	freeze := watchdog.NewFreezeWatchdog(engine, cfg.Watchdog.FreezeInterval, cfg.Watchdog.FreezeThreshold, func() {
		machine.Dispatch(fsm.WatchdogTimeout())
		engine.Skip()
	}, log)
	focus := watchdog.NewFocusWatchdog(renderer, cfg.Watchdog.FocusInterval, cfg.Watchdog.FocusThreshold, cfg.Watchdog.FocusBreakerLimit, cfg.Watchdog.FocusBreakerWindow, 2*cfg.Watchdog.FocusBreakerWindow, log)
	thermal := watchdog.NewThermalWatchdog(cfg.Watchdog.ThermalInterval, cfg.Watchdog.ThermalCriticalTemp, func(temp float64) {
		client.ReportScreenAction(ctx, "ThermalAlert", fmt.Sprintf("%.1f", temp))
	}, log)
	maintenance := watchdog.NewMaintenance(renderer, focus, files, db, repo, cfg.Watchdog.MaintenanceInterval, cfg.Watchdog.MaintenanceHour, clockSync.Now, clockSync.Synced, log)
	crash := watchdog.NewCrashHandler(log)

	handler := &commandHandler{
		repo:     repo,
		renderer: renderer,
		objects:  objects,
		client:   client,
		db:       db,
		log:      log.Named("commands"),
	}
	listener := commands.NewListener(cfg.NATS, client, handler, "Player "+cfg.Device.ID, log)

	statusServer := status.NewServer(machine, repo, files, cfg.Device.ID, cfg.Status.HTTPPort, log)

	// Cached content first: a power cut must never leave the screen dark
	// waiting for the network.
	machine.Dispatch(fsm.BootCompleted())
	if err := repo.LoadLocalCache(ctx); err != nil {
		log.Info("no local cache yet, waiting for first sync", zap.Error(err))
	}

	go crash.Guard("clock", func() { clockSync.Run(ctx, cfg.Clock.SyncInterval) })
	go crash.Guard("sync", func() { syncLoop(ctx, repo, machine, log.Named("sync")) })
	go crash.Guard("engine", func() { engine.Run(ctx) })
	go crash.Guard("freeze-watchdog", func() { freeze.Run(ctx) })
	go crash.Guard("focus-watchdog", func() { focus.Run(ctx) })
	go crash.Guard("thermal-watchdog", func() { thermal.Run(ctx) })
	go crash.Guard("maintenance", func() { maintenance.Run(ctx) })
	go crash.Guard("commands", func() { listener.Run(ctx) })
	go crash.Guard("heartbeat", func() { reporter.Run(ctx) })
	go crash.Guard("status", func() {
		if err := statusServer.Run(ctx); err != nil {
			log.Warn("status server stopped", zap.Error(err))
		}
	})

	<-ctx.Done()
	log.Info("shutting down")
	reporter.FlushProofs(context.Background())
	if err := db.ClearDirtyShutdown(); err != nil {
		log.Warn("dirty-shutdown marker not cleared", zap.Error(err))
	}
	return nil
}

// syncLoop keeps the local copy converging on the catalog. Registration
// retries back off exponentially; a registered, synced device settles into
// the steady-state poll.
func syncLoop(ctx context.Context, repo *repository.Repository, machine *fsm.Machine, log *zap.Logger) {
	attempt := 0
	for {
		err := repo.SyncWithRemote(ctx)
		if ctx.Err() != nil {
			return
		}

		var wait time.Duration
		if err != nil {
			attempt++
			if machine.Current().Kind == fsm.StateAuthenticating {
				machine.Dispatch(fsm.RegistrationFailed())
			} else {
				machine.Dispatch(fsm.SyncFailed())
			}
			wait = backoffDelay(attempt)
			if errors.IsSessionExpired(err) {
				log.Error("catalog rejected credentials", zap.Error(err))
			} else {
				log.Warn("sync failed", zap.Duration("retry_in", wait), zap.Error(err))
			}
		} else {
			attempt = 0
			if machine.Current().Kind == fsm.StateAuthenticating {
				machine.Dispatch(fsm.RegistrationSuccess())
			}
			machine.Dispatch(fsm.NetworkAvailable())
			machine.Dispatch(fsm.SyncCompleted())
			wait = resyncInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func backoffDelay(attempt int) time.Duration {
	delay := syncBackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= syncBackoffCap {
			return syncBackoffCap
		}
	}
	return delay
}

// commandHandler executes operator commands pushed over NATS.
type commandHandler struct {
	repo     *repository.Repository
	renderer *playback.ExecRenderer
	objects  *catalog.ObjectStorage
	client   *catalog.Client
	db       *store.Store
	log      *zap.Logger
}

func (h *commandHandler) HandleReload(ctx context.Context) error {
	return h.repo.SyncWithRemote(ctx)
}

// HandleReboot exits the process; the service supervisor brings it back.
// The dirty-shutdown marker is cleared first so the restart is not
// mistaken for a power cut.
func (h *commandHandler) HandleReboot(_ context.Context) error {
	h.log.Info("reboot requested, exiting for supervisor restart")
	if err := h.db.ClearDirtyShutdown(); err != nil {
		h.log.Warn("dirty-shutdown marker not cleared", zap.Error(err))
	}
	_ = h.log.Sync()
	os.Exit(0)
	return nil
}

func (h *commandHandler) HandleScreenshot(ctx context.Context) (string, error) {
	if h.objects == nil {
		return "", fmt.Errorf("object storage not configured")
	}
	frame, err := h.renderer.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	return h.objects.UploadScreenshot(ctx, h.client.ScreenUUID(), frame)
}
