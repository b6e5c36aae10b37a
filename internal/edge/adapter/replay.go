package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tagsentry/tagsentry/internal/domain"
)

// Replay reads canonical events from a JSON-lines file, one event per
// line: {"tag": "...", "ts": "..."}. Missing timestamps are stamped at
// read time. It stands in for a live reader during simulation and bench
// runs and doubles as the in-tree reference implementation of the
// Source contract.
type Replay struct {
	readerID string
	file     *os.File
	scanner  *bufio.Scanner
	// Delay paces replayed events so downstream batching behaves like a
	// live reader; zero replays as fast as the queue accepts.
	delay time.Duration
}

type replayLine struct {
	Tag string    `json:"tag"`
	TS  time.Time `json:"ts"`
}

// NewReplay opens the given JSON-lines file for replay.
func NewReplay(path, readerID string, delay time.Duration) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.ConfigError{Op: "open replay file", Err: err}
	}
	return &Replay{
		readerID: readerID,
		file:     f,
		scanner:  bufio.NewScanner(f),
		delay:    delay,
	}, nil
}

// Next implements Source. Returns io.EOF once the file is exhausted.
func (r *Replay) Next(ctx context.Context) (domain.CanonicalEvent, error) {
	if r.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.CanonicalEvent{}, ctx.Err()
		case <-time.After(r.delay):
		}
	}

	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var parsed replayLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			return domain.CanonicalEvent{}, fmt.Errorf("parse replay line: %w", err)
		}
		tag, err := domain.TagFromHex(parsed.Tag)
		if err != nil {
			return domain.CanonicalEvent{}, fmt.Errorf("replay line tag: %w", err)
		}
		ts := parsed.TS
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		return domain.CanonicalEvent{ReaderID: r.readerID, Tag: tag, DeviceTimestamp: ts}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return domain.CanonicalEvent{}, err
	}
	return domain.CanonicalEvent{}, io.EOF
}

// Close releases the underlying file.
func (r *Replay) Close() error {
	return r.file.Close()
}
