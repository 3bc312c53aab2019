package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/adflow/pipeline/internal/model"
)

// InteractiveDriver captures fresh credential material for a provider whose
// session cannot be refreshed programmatically: a human completes a login
// flow and the driver harvests the resulting bearer token or cookie jar.
// spec.md §9 leaves the capture mechanism open; adflow only defines the
// boundary a production driver must satisfy.
type InteractiveDriver interface {
	// CaptureBearer drives an interactive login for provider and returns the
	// resulting credential. hint carries a provider-specific prompt (e.g. a
	// login URL) surfaced to whoever completes the flow.
	CaptureBearer(ctx context.Context, provider, hint string) (model.Credential, error)
}

// HeadlessDriver is the production boundary: capturing a session
// interactively requires a browser automation harness this module does not
// carry a dependency for (no example repo in the retrieval pack drives a
// headless browser). CaptureBearer always fails with ErrNeedsInteractive so
// callers escalate cleanly instead of hanging.
type HeadlessDriver struct{}

func (HeadlessDriver) CaptureBearer(_ context.Context, provider, hint string) (model.Credential, error) {
	return model.Credential{}, fmt.Errorf("credential: %s requires interactive capture (%s): %w", provider, hint, ErrNeedsInteractive)
}

// StubDriver is a test double that returns a fixed credential, so tests can
// exercise the refresh-escalation path without a real browser.
type StubDriver struct {
	Credential model.Credential
	Err        error
}

func (s StubDriver) CaptureBearer(_ context.Context, provider, _ string) (model.Credential, error) {
	if s.Err != nil {
		return model.Credential{}, s.Err
	}
	cred := s.Credential
	cred.Provider = provider
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	return cred, nil
}
