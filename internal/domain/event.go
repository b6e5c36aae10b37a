package domain

import "time"

// Reason is the classification outcome attached to every stored event.
type Reason string

const (
	ReasonOK              Reason = "ok"
	ReasonUnknownTag      Reason = "unknown_tag"
	ReasonOutsideSchedule Reason = "outside_schedule"
	ReasonDuplicate       Reason = "duplicate"
	ReasonStaleDropped    Reason = "stale_dropped"
	ReasonRelayError      Reason = "relay_error"
)

// CanonicalEvent is a single tag read after vendor normalization.
// Adapters for every reader model must produce this shape; two reads of
// the same physical tag always carry the same Tag string regardless of
// which vendor firmware reported it.
type CanonicalEvent struct {
	ReaderID        string    `json:"reader_id"`
	Tag             string    `json:"tag"`
	DeviceTimestamp time.Time `json:"ts"`
}

// PendingRecord is a CanonicalEvent persisted in the edge queue.
// The ID is assigned by the queue in append order and doubles as the
// per-node local sequence id: strictly increasing, never reused.
type PendingRecord struct {
	ID   int64     `json:"id"`
	Tag  string    `json:"tag"`
	TS   time.Time `json:"ts"`
	Sent bool      `json:"-"`
}

// ClassifiedEvent is the central-side audit record. ServerID is assigned
// once on insert and never mutated. The row shape is read by external
// tooling (live tailers, dashboards) and must not change without a
// compatibility note.
type ClassifiedEvent struct {
	ServerID        int64     `json:"id"`
	ReaderID        string    `json:"reader_id"`
	Tag             string    `json:"tag"`
	DeviceTimestamp time.Time `json:"ts_device"`
	ReceivedAt      time.Time `json:"received_at"`
	SourceIP        string    `json:"source_ip"`
	Fired           bool      `json:"fired"`
	Reason          Reason    `json:"reason"`
	EdgeEventID     int64     `json:"edge_event_id"`
}

// WhitelistEntry describes a known tag. The whitelist is an immutable
// snapshot loaded at startup.
type WhitelistEntry struct {
	Owner string `json:"owner"`
	Note  string `json:"note"`
}

// Whitelist maps canonical tag strings to their entries.
type Whitelist map[string]WhitelistEntry

// RelayChannelMap maps reader ids to relay channels (1..4), many-to-one.
type RelayChannelMap map[string]int
