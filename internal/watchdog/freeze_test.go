package watchdog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubProbe struct {
	rendering bool
	position  time.Duration
}

func (p *stubProbe) Rendering() bool         { return p.rendering }
func (p *stubProbe) Position() time.Duration { return p.position }

func newFreezeFixture(threshold int) (*FreezeWatchdog, *stubProbe, *int) {
	probe := &stubProbe{rendering: true}
	fired := 0
	w := NewFreezeWatchdog(probe, 500*time.Millisecond, threshold, func() { fired++ }, zap.NewNop())
	return w, probe, &fired
}

func TestFreeze_FiresAfterConsecutiveStalledChecks(t *testing.T) {
	w, probe, fired := newFreezeFixture(2)
	probe.position = 3 * time.Second

	w.check() // establishes baseline
	assert.Equal(t, 0, *fired)
	w.check() // first frozen reading
	assert.Equal(t, 0, *fired)
	w.check() // second frozen reading
	assert.Equal(t, 1, *fired)
}

func TestFreeze_AdvancingPositionResetsCounter(t *testing.T) {
	w, probe, fired := newFreezeFixture(2)

	probe.position = 1 * time.Second
	w.check()
	w.check() // frozen once
	probe.position = 2 * time.Second
	w.check() // moved, counter cleared
	w.check() // frozen once again
	assert.Equal(t, 0, *fired)
	w.check()
	assert.Equal(t, 1, *fired)
}

func TestFreeze_IgnoredWhileNotRendering(t *testing.T) {
	w, probe, fired := newFreezeFixture(2)
	probe.rendering = false
	probe.position = 5 * time.Second

	for i := 0; i < 10; i++ {
		w.check()
	}
	assert.Equal(t, 0, *fired)
}

func TestFreeze_FiresOncePerStall(t *testing.T) {
	w, probe, fired := newFreezeFixture(2)
	probe.position = 4 * time.Second

	for i := 0; i < 6; i++ {
		w.check()
	}
	// After firing the baseline is discarded, so a new stall needs the
	// full threshold again before firing a second time.
	assert.Equal(t, 2, *fired)
}

func TestFreeze_ResetDiscardsBaseline(t *testing.T) {
	w, probe, fired := newFreezeFixture(2)
	probe.position = 7 * time.Second

	w.check()
	w.check() // frozen once
	w.Reset() // media transition
	w.check() // new baseline, not a frozen reading
	w.check()
	assert.Equal(t, 0, *fired)
}
