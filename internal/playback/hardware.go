package playback

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HardwareProfile selects decode limits for the device class.
type HardwareProfile string

const (
	// ProfileConstrained caps output at 1080p60 for entry-level ARM boxes
	// that overheat or drop frames on 4K streams.
	ProfileConstrained HardwareProfile = "constrained"
	// ProfileUnconstrained allows native 4K on capable hardware.
	ProfileUnconstrained HardwareProfile = "unconstrained"
)

// DecodeLimits are passed to the renderer process.
type DecodeLimits struct {
	MaxWidth     int
	MaxHeight    int
	MaxBitrate   int // bits per second
	MaxFrameRate int
	MinBuffer    time.Duration
	MaxBuffer    time.Duration
	BackBuffer   time.Duration
}

// Limits returns the decode ceiling for the profile. Buffer tuning is shared:
// enough back-buffer that a single-item loop can rewind without refetching.
func (p HardwareProfile) Limits() DecodeLimits {
	limits := DecodeLimits{
		MaxFrameRate: 60,
		MinBuffer:    2500 * time.Millisecond,
		MaxBuffer:    15 * time.Second,
		BackBuffer:   5 * time.Second,
	}
	if p == ProfileConstrained {
		limits.MaxWidth = 1920
		limits.MaxHeight = 1080
		limits.MaxBitrate = 15_000_000
	} else {
		limits.MaxWidth = 3840
		limits.MaxHeight = 2160
	}
	return limits
}

// constrainedSignatures are board and SoC markers of entry-level ARM chipsets
// (Allwinner, Rockchip, Amlogic) that need the stability profile.
var constrainedSignatures = []string{
	"sun8i", "sun50i",
	"rk30", "rk32", "rk33", "rk35",
	"allwinner", "rockchip", "meson",
	"s805", "s905", "s912",
	"p281", "p212", "u212", "p230",
}

// DetectProfile classifies the host by its CPU and board identifiers.
func DetectProfile(logger *zap.Logger) HardwareProfile {
	return detectProfile(readLower("/proc/cpuinfo"),
		readLower("/sys/devices/virtual/dmi/id/board_name"), logger)
}

func detectProfile(cpuinfo, board string, logger *zap.Logger) HardwareProfile {
	haystack := cpuinfo + " " + board
	for _, sig := range constrainedSignatures {
		if strings.Contains(haystack, sig) {
			logger.Info("entry-level chipset detected, capping at 1080p60",
				zap.String("signature", sig))
			return ProfileConstrained
		}
	}
	logger.Info("capable hardware detected, allowing native 4K")
	return ProfileUnconstrained
}

func readLower(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.ToLower(string(data))
}
