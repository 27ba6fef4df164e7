package watchdog

import (
	"os"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// restartDelay gives log sinks time to flush before the process exits and
// the supervisor brings it back.
const restartDelay = 2 * time.Second

// CrashHandler converts panics in long-lived goroutines into a clean,
// deliberately non-zero process exit so the service supervisor restarts
// the player instead of it limping on in an undefined state.
type CrashHandler struct {
	logger *zap.Logger
	exit   func(code int)
	sleep  func(time.Duration)
}

// NewCrashHandler creates a handler that exits the process on panic.
func NewCrashHandler(logger *zap.Logger) *CrashHandler {
	return &CrashHandler{
		logger: logger.Named("crash-handler"),
		exit:   os.Exit,
		sleep:  time.Sleep,
	}
}

// Guard runs fn and, if it panics, logs the failure and schedules a
// restart. Intended as `go handler.Guard("component", fn)` at every
// goroutine boundary.
func (h *CrashHandler) Guard(component string, fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		h.logger.Error("unrecoverable panic, restarting",
			zap.String("component", component),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
		_ = h.logger.Sync()
		h.sleep(restartDelay)
		h.exit(1)
	}()
	fn()
}
