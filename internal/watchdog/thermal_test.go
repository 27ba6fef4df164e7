package watchdog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sobremidia/player/pkg/errors"
)

func writeZone(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "temp")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadTemperature_ScalesMillidegrees(t *testing.T) {
	path := writeZone(t, "48250\n")
	assert.InDelta(t, 48.25, readTemperature([]string{path}), 0.001)
}

func TestReadTemperature_AcceptsPlainDegrees(t *testing.T) {
	path := writeZone(t, "52\n")
	assert.InDelta(t, 52.0, readTemperature([]string{path}), 0.001)
}

func TestReadTemperature_FallsThroughUnreadableZones(t *testing.T) {
	good := writeZone(t, "61000\n")
	paths := []string{
		filepath.Join(t.TempDir(), "missing"),
		writeZone(t, "not-a-number\n"),
		good,
	}
	assert.InDelta(t, 61.0, readTemperature(paths), 0.001)
}

func TestReadTemperature_NoZonesReturnsZero(t *testing.T) {
	assert.Zero(t, readTemperature([]string{filepath.Join(t.TempDir(), "missing")}))
}

func TestThermal_FiresCountermeasureAtCriticalTemp(t *testing.T) {
	var alerted float64
	w := NewThermalWatchdog(30*time.Second, 75.0, func(temp float64) { alerted = temp }, zap.NewNop())

	w.read = func() float64 { return 74.9 }
	assert.NoError(t, w.check())
	assert.Zero(t, alerted)

	w.read = func() float64 { return 76.2 }
	err := w.check()
	assert.True(t, errors.IsThermal(err), "alert must carry the thermal error type")
	assert.InDelta(t, 76.2, alerted, 0.001)
}
