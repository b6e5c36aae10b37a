package domain

import "time"

// ScheduleMode selects how a reader's arming window is evaluated.
type ScheduleMode string

const (
	ScheduleAlways ScheduleMode = "always"
	ScheduleNever  ScheduleMode = "never"
	ScheduleWindow ScheduleMode = "window"
)

// ReaderSchedule is an immutable per-reader arming rule. Window mode
// covers the half-open hour interval [StartHour, EndHour); StartHour >
// EndHour means the window spans midnight (21-6 arms at 22:00 and
// 03:00, disarms at 12:00).
type ReaderSchedule struct {
	Mode      ScheduleMode `json:"mode"`
	StartHour int          `json:"start_hour"`
	EndHour   int          `json:"end_hour"`
}

// ScheduleTable maps reader ids to their schedules. Readers without an
// entry are treated as always armed.
type ScheduleTable map[string]ReaderSchedule

// Armed reports whether the schedule permits actuation at the given
// instant. The hour is taken from now's location; callers pass the
// central receive time converted to the server's local timezone.
func (s ReaderSchedule) Armed(now time.Time) bool {
	switch s.Mode {
	case ScheduleNever:
		return false
	case ScheduleWindow:
		hour := now.Hour()
		if s.StartHour == s.EndHour {
			// Degenerate window, treat as 24/7.
			return true
		}
		if s.StartHour < s.EndHour {
			return hour >= s.StartHour && hour < s.EndHour
		}
		return hour >= s.StartHour || hour < s.EndHour
	default:
		return true
	}
}

// Armed resolves the reader's schedule and evaluates it; missing
// entries default to always armed.
func (t ScheduleTable) Armed(readerID string, now time.Time) bool {
	sched, ok := t[readerID]
	if !ok {
		return true
	}
	return sched.Armed(now)
}
