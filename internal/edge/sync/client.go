package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/domain"
	"github.com/tagsentry/tagsentry/internal/dto"
)

// Client delivers batches to the central ingest endpoint over HTTP.
// Responses are mapped onto the pipeline error taxonomy: 4xx is a
// permanent ValidationError, everything else (network failure, timeout,
// 5xx) a retryable TransportError.
type Client struct {
	serverURL string
	readerID  string
	http      *http.Client
	log       *zap.Logger
}

// NewClient creates a delivery client with a bounded per-request
// timeout. A request that outlives the timeout is treated as a
// transport failure and retried by the syncer, never abandoned.
func NewClient(serverURL, readerID string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		serverURL: serverURL,
		readerID:  readerID,
		http:      &http.Client{Timeout: timeout},
		log:       log,
	}
}

// Deliver posts one ordered batch. The attempt id correlates log lines
// across retries of the same batch.
func (c *Client) Deliver(ctx context.Context, batch []domain.PendingRecord) error {
	payload := dto.IngestBatchRequest{
		ReaderID: c.readerID,
		Events:   make([]dto.IngestItem, len(batch)),
	}
	for i, rec := range batch {
		payload.Events[i] = dto.IngestItem{ID: rec.ID, TS: rec.TS, Tag: rec.Tag}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &domain.ValidationError{Op: "marshal batch", Err: err}
	}

	attemptID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL, bytes.NewReader(body))
	if err != nil {
		return &domain.TransportError{Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.TransportError{Op: "post batch", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.log.Info("Batch delivered",
			zap.String("attempt_id", attemptID),
			zap.Int("events", len(batch)),
			zap.Int("status", resp.StatusCode))
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return &domain.ValidationError{
			Op:  "deliver batch",
			Err: fmt.Errorf("server rejected batch: status %d: %s", resp.StatusCode, snippet),
		}
	default:
		return &domain.TransportError{
			Op:  "deliver batch",
			Err: fmt.Errorf("server status %d", resp.StatusCode),
		}
	}
}
