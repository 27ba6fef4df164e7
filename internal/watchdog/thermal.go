package watchdog

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sobremidia/player/pkg/errors"
)

// thermalZonePaths are probed in order; the first readable zone wins.
// Coverage differs by SoC vendor, hence the duplicates.
var thermalZonePaths = []string{
	"/sys/class/thermal/thermal_zone0/temp",
	"/sys/class/thermal/thermal_zone1/temp",
	"/sys/devices/virtual/thermal/thermal_zone0/temp",
}

// ReadCPUTemperature returns the SoC temperature in degrees Celsius, or 0
// when no zone is readable.
func ReadCPUTemperature() float64 {
	return readTemperature(thermalZonePaths)
}

func readTemperature(paths []string) float64 {
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			continue
		}
		// Zones report millidegrees on most kernels.
		if value > 1000 {
			value /= 1000
		}
		return value
	}
	return 0
}

// ThermalWatchdog monitors the SoC temperature and applies countermeasures
// when it crosses the critical threshold. Overheating is never fatal; the
// player degrades rather than stops.
type ThermalWatchdog struct {
	interval   time.Duration
	critical   float64
	read       func() float64
	onOverheat func(temp float64)
	logger     *zap.Logger
}

// NewThermalWatchdog creates a temperature monitor. onOverheat may be nil.
func NewThermalWatchdog(interval time.Duration, critical float64, onOverheat func(float64), logger *zap.Logger) *ThermalWatchdog {
	return &ThermalWatchdog{
		interval:   interval,
		critical:   critical,
		read:       ReadCPUTemperature,
		onOverheat: onOverheat,
		logger:     logger.Named("thermal-watchdog"),
	}
}

// Run polls until ctx is cancelled.
func (w *ThermalWatchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.Info("thermal watchdog started",
		zap.Duration("interval", w.interval),
		zap.Float64("critical_celsius", w.critical),
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

// check returns a typed thermal alert when the threshold is crossed. The
// alert is logged and mitigated, never escalated to the crash path.
func (w *ThermalWatchdog) check() error {
	temp := w.read()
	if temp <= 0 {
		return nil
	}
	if temp < w.critical {
		return nil
	}
	err := errors.Thermal(fmt.Sprintf("soc at %.1fC, critical threshold %.1fC", temp, w.critical))
	w.logger.Error("critical temperature reached",
		zap.Float64("celsius", temp),
		zap.Error(err),
	)
	if w.onOverheat != nil {
		w.onOverheat(temp)
	}
	return err
}
