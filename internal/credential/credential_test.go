package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adflow/pipeline/internal/model"
)

type fakeArchiver struct {
	puts map[string][]byte
}

func (f *fakeArchiver) Put(_ context.Context, key string, payload []byte) error {
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = payload
	return nil
}

func newTestStore(t *testing.T, refreshers map[string]Refresher) (*Store, *fakeArchiver) {
	t.Helper()
	arch := &fakeArchiver{}
	store, err := New(t.TempDir(), "a-sufficiently-long-test-master-key", arch, nil, refreshers)
	require.NoError(t, err)
	return store, arch
}

func TestStoreSaveAndGetRoundTrip(t *testing.T) {
	store, arch := newTestStore(t, nil)
	ctx := context.Background()

	cred := model.Credential{
		TokenMaterial:        "super-secret-token",
		CreatedAt:            time.Now().UTC(),
		ValidDays:            30,
		RefreshThresholdDays: 5,
	}
	require.NoError(t, store.Save(ctx, "hmac_rest", cred))

	got, err := store.Get(ctx, "hmac_rest")
	require.NoError(t, err)
	require.Equal(t, "super-secret-token", got.TokenMaterial)
	require.Equal(t, "hmac_rest", got.Provider)

	require.Contains(t, arch.puts, "credentials/hmac_rest/token.json.enc")
	require.NotContains(t, string(arch.puts["credentials/hmac_rest/token.json.enc"]), "super-secret-token")
}

func TestStoreGetRefreshesStaleCredentialNonInteractively(t *testing.T) {
	refreshCalls := 0
	refresher := BearerRefresher{
		FetchToken: func(context.Context) (string, int, error) {
			refreshCalls++
			return "fresh-token", 30, nil
		},
		RefreshThresholdDays: 5,
	}
	store, _ := newTestStore(t, map[string]Refresher{"bearer_rest": refresher})
	ctx := context.Background()

	stale := model.Credential{
		TokenMaterial:        "old-token",
		CreatedAt:            time.Now().UTC().Add(-29 * 24 * time.Hour),
		ValidDays:            30,
		RefreshThresholdDays: 5,
	}
	require.NoError(t, store.Save(ctx, "bearer_rest", stale))

	got, err := store.Get(ctx, "bearer_rest")
	require.NoError(t, err)
	require.Equal(t, "fresh-token", got.TokenMaterial)
	require.Equal(t, 1, refreshCalls)
}

func TestStoreGetEscalatesToInteractiveWhenHeadless(t *testing.T) {
	refresher := CookieSessionRefresher{Driver: HeadlessDriver{}, Hint: "login at https://example"}
	store, _ := newTestStore(t, map[string]Refresher{"cookie_session": refresher})
	ctx := context.Background()

	stale := model.Credential{
		TokenMaterial:        "stale-cookies",
		CreatedAt:            time.Now().UTC().Add(-29 * 24 * time.Hour),
		ValidDays:            30,
		RefreshThresholdDays: 5,
	}
	require.NoError(t, store.Save(ctx, "cookie_session", stale))

	_, err := store.Get(ctx, "cookie_session")
	require.True(t, errors.Is(err, ErrNeedsInteractive))
}

func TestStubDriverCapturesBearer(t *testing.T) {
	driver := StubDriver{Credential: model.Credential{TokenMaterial: "captured", ValidDays: 7, RefreshThresholdDays: 1}}
	cred, err := driver.CaptureBearer(context.Background(), "cookie_session", "hint")
	require.NoError(t, err)
	require.Equal(t, "captured", cred.TokenMaterial)
	require.Equal(t, "cookie_session", cred.Provider)
	require.False(t, cred.CreatedAt.IsZero())
}
