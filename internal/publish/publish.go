// Package publish implements the Publisher (spec.md §4.H): sinks for a
// composed DocumentModel — chat message cards, long-form documents, and an
// Excel workbook archive — the first two handling its platform's structural row limits transparently, in the
// HTTP-channel style of the teacher's newsletter delivery channels.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adflow/pipeline/internal/model"
)

// ErrUnsupportedTarget is returned by the document sink when the configured
// target node is not a document (spec.md §4.H).
var ErrUnsupportedTarget = errors.New("publish: target is not a document node")

// Result reports what a sink did with a DocumentModel.
type Result struct {
	Sink        model.Sink
	BlocksSent  int
	TablesSent  int
	RowsDropped int
}

// Sink renders and delivers a DocumentModel to one publication target.
type Sink interface {
	Render(ctx context.Context, doc *model.DocumentModel) (*Result, error)
}

// httpClient is the shared client every sink in this package posts through,
// mirroring the teacher's per-channel http.Client with a bounded timeout.
func httpClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// PostJSON marshals payload and POSTs it to url, returning the raw response
// body and status code for the caller to interpret (chat cards treat any
// non-2xx as failure; the document sink additionally backs off on 429).
// Exported so internal/schedule's Alarm can post through the same helper
// rather than hand-rolling a second HTTP POST path.
func PostJSON(ctx context.Context, client *http.Client, url string, payload any, headers ...[2]string) (status int, body []byte, err error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, h := range headers {
		req.Header.Set(h[0], h[1])
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		respBody = []byte("(failed to read response)")
	}
	return resp.StatusCode, respBody, nil
}
