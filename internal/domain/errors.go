package domain

import "fmt"

// The pipeline distinguishes five failure classes; callers pick retry
// behavior with errors.As rather than string matching.

// TransportError is a retryable edge-to-central delivery failure
// (connection refused, timeout, 5xx). The sync client backs off and
// retries the same batch.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError is a permanent rejection of a malformed batch or
// item. It is never retried.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation: %s: %v", e.Op, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigError is fatal at startup, before any processing begins.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %s: %v", e.Op, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// RelayIOError is a per-channel hardware failure. It downgrades the
// event outcome to relay_error without halting ingestion; the channel
// retries hardware acquisition on its next pulse.
type RelayIOError struct {
	Channel int
	Err     error
}

func (e *RelayIOError) Error() string { return fmt.Sprintf("relay channel %d: %v", e.Channel, e.Err) }
func (e *RelayIOError) Unwrap() error { return e.Err }

// StorageError is a durable-write failure. On the edge it propagates to
// the adapter as backpressure; centrally it is retried with backoff,
// never re-running actuation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }
