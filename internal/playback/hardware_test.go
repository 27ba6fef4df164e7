package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sobremidia/player/pkg/logger"
)

func TestDetectProfile(t *testing.T) {
	log := logger.NewNop()

	assert.Equal(t, ProfileConstrained,
		detectProfile("processor : 0\nhardware : allwinner sun8i", "", log))
	assert.Equal(t, ProfileConstrained,
		detectProfile("amlogic s905x", "", log))
	assert.Equal(t, ProfileConstrained,
		detectProfile("", "rk3399-board", log))
	assert.Equal(t, ProfileUnconstrained,
		detectProfile("model name : intel(r) core(tm) i7", "nuc11", log))
	assert.Equal(t, ProfileUnconstrained, detectProfile("", "", log))
}

func TestProfileLimits(t *testing.T) {
	constrained := ProfileConstrained.Limits()
	assert.Equal(t, 1920, constrained.MaxWidth)
	assert.Equal(t, 15_000_000, constrained.MaxBitrate)
	assert.Equal(t, 60, constrained.MaxFrameRate)

	open := ProfileUnconstrained.Limits()
	assert.Equal(t, 3840, open.MaxWidth)
	assert.Zero(t, open.MaxBitrate, "no bitrate ceiling on capable hardware")
}
