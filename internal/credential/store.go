// Package credential implements the Credential Store (spec.md §4.A): one
// record per provider, refreshed proactively ahead of expiry, persisted to
// disk and mirrored to the blob archive as a disaster-recovery copy.
package credential

import (
	"context"
	"errors"
	"time"

	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/pipeline/errs"
)

// ErrNeedsInteractive is returned by Get when a credential is stale and its
// provider's refresh path requires a human (an interactive browser login).
// Callers MUST fail the current extraction rather than stall.
var ErrNeedsInteractive = errs.Sentinel(errs.KindAuthInteractive)

// Refresher refreshes a provider's credential non-interactively. HMAC
// providers implement this as a no-op (signing is trivial per request);
// bearer providers refresh by re-requesting a token; cookie-session
// providers replay saved cookies through the capture flow.
type Refresher interface {
	// Refresh attempts a non-interactive refresh of current. It returns
	// ErrNeedsInteractive if non-interactive refresh isn't possible for
	// this provider.
	Refresh(ctx context.Context, current model.Credential) (model.Credential, error)
}

// Archiver mirrors saved credential material to the blob store as a
// disaster-recovery copy, per spec.md §4.A.
type Archiver interface {
	Put(ctx context.Context, key string, payload []byte) error
}

// Alarmer raises an alarm when a credential needs interactive attention.
type Alarmer interface {
	Alarm(ctx context.Context, level errs.AlarmLevel, title, body string)
}

// Store is the Credential Store's public contract.
type Store struct {
	fs        *fileStore
	refresher map[string]Refresher
	archiver  Archiver
	alarmer   Alarmer
	now       func() time.Time
}

// New builds a Store rooted at dir, encrypting material at rest with
// encryptionKey, and registers the given per-provider refreshers.
func New(dir, encryptionKey string, archiver Archiver, alarmer Alarmer, refreshers map[string]Refresher) (*Store, error) {
	fs, err := newFileStore(dir, encryptionKey)
	if err != nil {
		return nil, err
	}
	return &Store{
		fs:        fs,
		refresher: refreshers,
		archiver:  archiver,
		alarmer:   alarmer,
		now:       time.Now,
	}, nil
}

// Get returns a usable credential for provider, refreshing it first if
// stale. If refresh requires interactive login, it returns
// ErrNeedsInteractive and raises an alarm; the caller must fail the current
// extraction.
func (s *Store) Get(ctx context.Context, provider string) (model.Credential, error) {
	cred, err := s.fs.load(provider)
	if err != nil {
		return model.Credential{}, errs.Wrap(errs.KindConfig, provider, err)
	}

	if !cred.Stale(s.now()) {
		return cred, nil
	}

	refresher, ok := s.refresher[provider]
	if !ok {
		return cred, nil
	}

	refreshed, err := refresher.Refresh(ctx, cred)
	if err != nil {
		if errors.Is(err, ErrNeedsInteractive) || errs.Is(err, errs.KindAuthInteractive) {
			if s.alarmer != nil {
				s.alarmer.Alarm(ctx, errs.LevelError, "credential needs interactive login",
					"provider "+provider+" could not be refreshed non-interactively")
			}
			return model.Credential{}, ErrNeedsInteractive
		}
		return model.Credential{}, errs.Wrap(errs.KindAuthExpired, provider, err)
	}

	if err := s.Save(ctx, provider, refreshed); err != nil {
		return model.Credential{}, err
	}
	return refreshed, nil
}

// Save atomically replaces provider's stored credential and mirrors it to
// the blob archive.
func (s *Store) Save(ctx context.Context, provider string, cred model.Credential) error {
	cred.Provider = provider
	if err := s.fs.save(cred); err != nil {
		return errs.Wrap(errs.KindConfig, provider, err)
	}
	if s.archiver != nil {
		raw, err := s.fs.encryptedBytes(cred)
		if err == nil {
			key := "credentials/" + provider + "/token.json.enc"
			if archErr := s.archiver.Put(ctx, key, raw); archErr != nil {
				if s.alarmer != nil {
					s.alarmer.Alarm(ctx, errs.LevelWarning, "credential archive mirror failed",
						provider+": "+archErr.Error())
				}
			}
		}
	}
	return nil
}

// MarkUsed updates the provider's last-used timestamp for observability
// only; it never affects refresh decisions.
func (s *Store) MarkUsed(_ context.Context, provider string) error {
	return s.fs.touch(provider)
}
