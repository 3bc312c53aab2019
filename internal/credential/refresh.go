package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/adflow/pipeline/internal/model"
)

// NoopRefresher backs providers whose credential never expires in practice
// (the HMAC-REST provider signs every request from a static secret, so
// there is nothing to refresh). Get returns the stored credential as-is.
type NoopRefresher struct{}

func (NoopRefresher) Refresh(_ context.Context, current model.Credential) (model.Credential, error) {
	return current, nil
}

// BearerRefresher re-requests a bearer token from a non-interactive
// token endpoint using stored client credentials.
type BearerRefresher struct {
	// FetchToken exchanges client credentials for a fresh bearer token and
	// its validity window in days.
	FetchToken func(ctx context.Context) (token string, validDays int, err error)
	RefreshThresholdDays int
}

func (r BearerRefresher) Refresh(ctx context.Context, current model.Credential) (model.Credential, error) {
	if r.FetchToken == nil {
		return model.Credential{}, fmt.Errorf("credential: bearer refresher has no token fetcher configured")
	}
	token, validDays, err := r.FetchToken(ctx)
	if err != nil {
		return model.Credential{}, fmt.Errorf("refresh bearer token: %w", err)
	}
	return model.Credential{
		Provider:             current.Provider,
		TokenMaterial:        token,
		CreatedAt:            time.Now().UTC(),
		ValidDays:            validDays,
		RefreshThresholdDays: r.RefreshThresholdDays,
	}, nil
}

// CookieSessionRefresher escalates straight to interactive capture: a
// cookie-session login cannot be replayed headlessly once the session has
// gone stale, per spec.md §9.
type CookieSessionRefresher struct {
	Driver InteractiveDriver
	Hint   string
}

func (r CookieSessionRefresher) Refresh(ctx context.Context, current model.Credential) (model.Credential, error) {
	cred, err := r.Driver.CaptureBearer(ctx, current.Provider, r.Hint)
	if err != nil {
		return model.Credential{}, err
	}
	if cred.RefreshThresholdDays == 0 {
		cred.RefreshThresholdDays = current.RefreshThresholdDays
	}
	return cred, nil
}
