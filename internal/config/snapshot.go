package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tagsentry/tagsentry/internal/domain"
)

// Snapshot tables are loaded once at startup and never reloaded; a
// restart picks up edits. Load failures are ConfigError and fatal.

// LoadWhitelist reads the known-tags table from a JSON file mapping
// canonical tag strings to {owner, note}.
func LoadWhitelist(path string) (domain.Whitelist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Op: "read whitelist", Err: err}
	}
	var wl domain.Whitelist
	if err := json.Unmarshal(data, &wl); err != nil {
		return nil, &domain.ConfigError{Op: "parse whitelist", Err: err}
	}
	return wl, nil
}

// LoadSchedules reads the per-reader arming table. An empty path yields
// an empty table (every reader always armed).
func LoadSchedules(path string) (domain.ScheduleTable, error) {
	if path == "" {
		return domain.ScheduleTable{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Op: "read schedules", Err: err}
	}
	var table domain.ScheduleTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, &domain.ConfigError{Op: "parse schedules", Err: err}
	}
	for reader, sched := range table {
		switch sched.Mode {
		case domain.ScheduleAlways, domain.ScheduleNever, domain.ScheduleWindow:
		default:
			return nil, &domain.ConfigError{
				Op:  "parse schedules",
				Err: fmt.Errorf("reader %s: unknown mode %q", reader, sched.Mode),
			}
		}
		if sched.Mode == domain.ScheduleWindow {
			if sched.StartHour < 0 || sched.StartHour > 23 || sched.EndHour < 0 || sched.EndHour > 23 {
				return nil, &domain.ConfigError{
					Op:  "parse schedules",
					Err: fmt.Errorf("reader %s: window hours out of range", reader),
				}
			}
		}
	}
	return table, nil
}

// LoadRelayMap reads the reader-to-channel mapping. An empty path
// yields an empty map (no reader can fire).
func LoadRelayMap(path string) (domain.RelayChannelMap, error) {
	if path == "" {
		return domain.RelayChannelMap{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Op: "read relay map", Err: err}
	}
	var m domain.RelayChannelMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &domain.ConfigError{Op: "parse relay map", Err: err}
	}
	for reader, ch := range m {
		if ch < 1 || ch > 4 {
			return nil, &domain.ConfigError{
				Op:  "parse relay map",
				Err: fmt.Errorf("reader %s: channel %d out of range 1..4", reader, ch),
			}
		}
	}
	return m, nil
}
