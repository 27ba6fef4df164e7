package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubSurface struct {
	visible  bool
	restarts int
}

func (s *stubSurface) Visible() bool { return s.visible }

func (s *stubSurface) Restart(context.Context) error {
	s.restarts++
	return nil
}

func newFocusFixture() (*FocusWatchdog, *stubSurface, *time.Time) {
	surface := &stubSurface{visible: true}
	w := NewFocusWatchdog(surface, 2*time.Second, 4, 3, 5*time.Minute, 10*time.Minute, zap.NewNop())
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	return w, surface, &now
}

func TestFocus_RelaunchesAfterConsecutiveHiddenChecks(t *testing.T) {
	w, surface, _ := newFocusFixture()
	ctx := context.Background()

	surface.visible = false
	for i := 0; i < 3; i++ {
		w.check(ctx)
	}
	assert.Equal(t, 0, surface.restarts)
	w.check(ctx)
	assert.Equal(t, 1, surface.restarts)
}

func TestFocus_VisibleReadingResetsCounter(t *testing.T) {
	w, surface, _ := newFocusFixture()
	ctx := context.Background()

	surface.visible = false
	w.check(ctx)
	w.check(ctx)
	w.check(ctx)
	surface.visible = true
	w.check(ctx)
	surface.visible = false
	w.check(ctx)
	w.check(ctx)
	w.check(ctx)
	assert.Equal(t, 0, surface.restarts)
}

func TestFocus_BreakerStopsRelaunchLoop(t *testing.T) {
	w, surface, now := newFocusFixture()
	ctx := context.Background()
	surface.visible = false

	// Three relaunches in quick succession trip the breaker.
	for relaunch := 0; relaunch < 3; relaunch++ {
		for i := 0; i < 4; i++ {
			w.check(ctx)
		}
		*now = now.Add(10 * time.Second)
	}
	assert.Equal(t, 3, surface.restarts)

	for i := 0; i < 8; i++ {
		w.check(ctx)
	}
	assert.Equal(t, 3, surface.restarts, "breaker should suspend enforcement")

	// After the stability window enforcement resumes and the old
	// relaunches have aged out of the breaker window.
	*now = now.Add(11 * time.Minute)
	for i := 0; i < 4; i++ {
		w.check(ctx)
	}
	assert.Equal(t, 4, surface.restarts)
}

func TestFocus_MaintenanceSuspendsEnforcement(t *testing.T) {
	w, surface, _ := newFocusFixture()
	ctx := context.Background()

	surface.visible = false
	w.SetMaintenance(true)
	for i := 0; i < 10; i++ {
		w.check(ctx)
	}
	assert.Equal(t, 0, surface.restarts)

	w.SetMaintenance(false)
	for i := 0; i < 4; i++ {
		w.check(ctx)
	}
	assert.Equal(t, 1, surface.restarts)
}
