package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/domain"
)

// Pulser is the slice of the relay actuator the engine drives.
type Pulser interface {
	Pulse(ctx context.Context, channel int) error
}

// Config fixes the engine's time windows. Both are measured on the
// central receive clock: edge device clocks are not trusted after power
// loss, so the device timestamp is audit-only.
type Config struct {
	// DedupWindow is the minimum gap between two ok classifications for
	// the same (reader, tag). Zero or negative disables dedup.
	DedupWindow time.Duration
	// IgnoreLate drops events older than this on arrival, so a backlog
	// replayed after an outage cannot fire as a burst of live alarms.
	// Zero or negative disables the staleness check.
	IgnoreLate time.Duration
	// RelayEnabled gates hardware actuation; disabled installs record
	// qualifying events as relay_error without touching the actuator.
	RelayEnabled bool
	// Location is the timezone schedules are evaluated in; nil means
	// the server's local zone.
	Location *time.Location
}

// Item is one ingested read presented for classification. ReceivedAt is
// stamped by the ingest boundary from the central clock.
type Item struct {
	ReaderID        string
	Tag             string
	DeviceTimestamp time.Time
	ReceivedAt      time.Time
	EdgeEventID     int64
	SourceIP        string
}

// Outcome is the classification result.
type Outcome struct {
	Reason domain.Reason
	Fired  bool
}

// Engine classifies events through a fixed-precedence pipeline:
// staleness, whitelist, schedule, dedup, actuation. The first matching
// rule wins. Dedup state is keyed by (reader, tag), mutated only on ok,
// and guarded per key: two near-simultaneous deliveries of the same
// read cannot both classify ok, while distinct keys classify fully in
// parallel.
type Engine struct {
	whitelist domain.Whitelist
	schedules domain.ScheduleTable
	relayMap  domain.RelayChannelMap
	relay     Pulser
	cfg       Config
	log       *zap.Logger

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	lastOK map[string]time.Time
}

// New creates an engine over immutable snapshot tables.
func New(whitelist domain.Whitelist, schedules domain.ScheduleTable, relayMap domain.RelayChannelMap, relay Pulser, cfg Config, log *zap.Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Engine{
		whitelist: whitelist,
		schedules: schedules,
		relayMap:  relayMap,
		relay:     relay,
		cfg:       cfg,
		log:       log,
		locks:     make(map[string]*sync.Mutex),
		lastOK:    make(map[string]time.Time),
	}
}

func dedupKey(readerID, tag string) string {
	return readerID + "\x00" + tag
}

// keyLock returns the mutex serializing classification for one
// (reader, tag) key, creating it on first use.
func (e *Engine) keyLock(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// SeedDedup installs a historical last-ok time for a key. The server
// calls this at startup from the event store so a restart does not
// re-fire inside the dedup window.
func (e *Engine) SeedDedup(readerID, tag string, lastOK time.Time) {
	key := dedupKey(readerID, tag)
	l := e.keyLock(key)
	l.Lock()
	defer l.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.lastOK[key]; !ok || lastOK.After(existing) {
		e.lastOK[key] = lastOK
	}
}

// Classify runs one item through the pipeline and returns exactly one
// outcome. Actuation happens at most once per call; its result is fixed
// before the caller persists anything, so a store retry can never
// re-trigger the relay.
func (e *Engine) Classify(ctx context.Context, item Item) Outcome {
	// 1. Staleness short-circuits everything; a late backlog must never
	//    reach the relay no matter what the other tables say.
	if e.cfg.IgnoreLate > 0 && !item.DeviceTimestamp.IsZero() {
		if item.ReceivedAt.Sub(item.DeviceTimestamp) > e.cfg.IgnoreLate {
			return Outcome{Reason: domain.ReasonStaleDropped}
		}
	}

	// 2. Whitelist.
	if _, known := e.whitelist[item.Tag]; !known {
		return Outcome{Reason: domain.ReasonUnknownTag}
	}

	// 3. Schedule, evaluated on the central receive clock.
	if !e.schedules.Armed(item.ReaderID, item.ReceivedAt.In(e.cfg.Location)) {
		return Outcome{Reason: domain.ReasonOutsideSchedule}
	}

	// 4+5. Dedup check, actuation, and the dedup-state update form one
	// per-key critical section.
	key := dedupKey(item.ReaderID, item.Tag)
	l := e.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if e.cfg.DedupWindow > 0 {
		e.mu.Lock()
		last, seen := e.lastOK[key]
		e.mu.Unlock()
		if seen && item.ReceivedAt.Sub(last) < e.cfg.DedupWindow {
			return Outcome{Reason: domain.ReasonDuplicate}
		}
	}

	if !e.cfg.RelayEnabled {
		e.log.Warn("Relay disabled, qualifying event not fired",
			zap.String("reader_id", item.ReaderID),
			zap.String("tag", item.Tag))
		return Outcome{Reason: domain.ReasonRelayError}
	}

	channel, mapped := e.relayMap[item.ReaderID]
	if !mapped {
		e.log.Warn("No relay channel mapped for reader",
			zap.String("reader_id", item.ReaderID))
		return Outcome{Reason: domain.ReasonRelayError}
	}

	if err := e.relay.Pulse(ctx, channel); err != nil {
		// Dedup state stays untouched so the next qualifying event
		// retries actuation instead of being masked as a duplicate.
		e.log.Error("Relay actuation failed",
			zap.String("reader_id", item.ReaderID),
			zap.String("tag", item.Tag),
			zap.Int("channel", channel),
			zap.Error(err))
		return Outcome{Reason: domain.ReasonRelayError}
	}

	e.mu.Lock()
	e.lastOK[key] = item.ReceivedAt
	e.mu.Unlock()

	return Outcome{Reason: domain.ReasonOK, Fired: true}
}
