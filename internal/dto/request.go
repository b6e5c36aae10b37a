package dto

import "time"

// IngestItem is one queued read inside a batch. ID is the edge-local
// sequence id, TS the device timestamp (audit only — all window
// arithmetic uses the central receive clock).
type IngestItem struct {
	ID  int64     `json:"id" binding:"required"`
	TS  time.Time `json:"ts" binding:"required"`
	Tag string    `json:"tag" binding:"required"`
}

// IngestBatchRequest is the edge-to-central delivery payload. Items are
// ordered by edge id ascending; the same batch may arrive more than
// once (at-least-once transport).
type IngestBatchRequest struct {
	ReaderID string       `json:"reader_id" binding:"required"`
	Events   []IngestItem `json:"events" binding:"required,min=1,max=1000,dive"`
}
