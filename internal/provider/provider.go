// Package provider implements the Provider Adapters (spec.md §4.B): one
// adapter per upstream data source, each normalizing its platform's
// authentication and pagination quirks behind a single Extract call.
package provider

import (
	"context"
	"time"

	"github.com/adflow/pipeline/internal/model"
)

// Result is the normalized output of one adapter extraction: a batch of
// rows of a single fact shape, plus the raw payloads captured for archival.
type Result struct {
	Rows    []any
	Raw     []model.RawPayload
	Warning []model.Warning
}

// Adapter extracts one source's fact rows for a window. Implementations own
// their authentication, pagination, and retry policy; Extract returns a
// fully classified error (internal/pipeline/errs) on failure.
type Adapter interface {
	// Name identifies the adapter for logging, metrics, and warehouse table
	// routing.
	Name() string
	// Extract fetches every row for window, paginating until exhausted.
	Extract(ctx context.Context, window model.Window) (Result, error)
}

// clock is overridden in tests; production code always uses time.Now.
var clock = time.Now
