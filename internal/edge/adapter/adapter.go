package adapter

import (
	"context"

	"github.com/tagsentry/tagsentry/internal/domain"
)

// Source is the contract every reader-vendor adapter implements. A
// vendor adapter owns its wire protocol end to end (serial framing,
// checksums, encoding quirks) and surfaces nothing but canonical
// events; implementations for different reader models are
// interchangeable behind this interface.
//
// Next blocks until a read is available, the source is exhausted
// (io.EOF), or ctx is canceled. Tag strings must already be canonical
// (see domain.TagFromHex / domain.TagFromDecimal).
type Source interface {
	Next(ctx context.Context) (domain.CanonicalEvent, error)
}

// Func adapts a plain function to the Source interface.
type Func func(ctx context.Context) (domain.CanonicalEvent, error)

// Next implements Source.
func (f Func) Next(ctx context.Context) (domain.CanonicalEvent, error) {
	return f(ctx)
}
