package dto

import "time"

// IngestItemResult reports the classification of a single batch item.
type IngestItemResult struct {
	ServerID    int64  `json:"db_id"`
	EdgeEventID int64  `json:"edge_event_id"`
	Tag         string `json:"tag"`
	Fired       bool   `json:"fired"`
	Reason      string `json:"reason"`
}

// IngestBatchResponse acknowledges an accepted batch.
type IngestBatchResponse struct {
	Status  string             `json:"status"`
	Count   int                `json:"count"`
	Results []IngestItemResult `json:"results"`
}

// EventRecord is a classified event as exposed to tailers and the
// dashboard via GET /api/events.
type EventRecord struct {
	ID          int64     `json:"id"`
	ReaderID    string    `json:"reader_id"`
	Tag         string    `json:"tag"`
	TSDevice    time.Time `json:"ts_device"`
	ReceivedAt  time.Time `json:"received_at"`
	SourceIP    string    `json:"source_ip"`
	Fired       bool      `json:"fired"`
	Reason      string    `json:"reason"`
	EdgeEventID int64     `json:"edge_event_id"`
}

// ErrorResponse is the structured error body for rejected requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
