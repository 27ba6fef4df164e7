// Package schedule decides, per item, whether "now" satisfies its dayparting
// window. It is a pure predicate over the synchronized clock; the playback
// engine consults it when building a cycle and again immediately before
// rendering, since schedules can change mid-cycle.
package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/sobremidia/player/pkg/model"
)

// IsEligible reports whether item may play at the given instant.
//
// An item with no day mask and no time window is always eligible. The day
// mask is a comma-separated list of weekday indices (0=Sunday .. 6=Saturday).
// The time window is interpreted in minutes since midnight: end > start is a
// same-day window, end <= start wraps past midnight (overnight window). A
// window with only a start means "eligible from start onward"; only an end
// means "eligible until end".
func IsEligible(item *model.MediaItem, now time.Time) bool {
	sched := item.Schedule
	if sched.IsZero() {
		return true
	}

	if sched.DaysOfWeek != "" {
		if !dayAllowed(sched.DaysOfWeek, now.Weekday()) {
			return false
		}
	}

	current := now.Hour()*60 + now.Minute()
	start, hasStart := parseTimeOfDay(sched.StartTime)
	end, hasEnd := parseTimeOfDay(sched.EndTime)

	switch {
	case hasStart && hasEnd:
		if end > start {
			if current < start || current > end {
				return false
			}
		} else {
			// Overnight window, e.g. 22:00 to 06:00.
			if current < start && current > end {
				return false
			}
		}
	case hasStart:
		if current < start {
			return false
		}
	case hasEnd:
		if current > end {
			return false
		}
	}

	return true
}

func dayAllowed(mask string, day time.Weekday) bool {
	for _, part := range strings.Split(mask, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if time.Weekday(n) == day {
			return true
		}
	}
	return false
}

// parseTimeOfDay converts "HH:MM" or "HH:MM:SS" to minutes since midnight.
// The catalog's time columns carry seconds; they are ignored. Malformed
// values are treated as absent rather than blocking playback.
func parseTimeOfDay(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m := 0
	if len(parts) > 1 {
		m, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || m < 0 || m > 59 {
			return 0, false
		}
	}
	return h*60 + m, true
}
