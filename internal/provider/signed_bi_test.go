package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adflow/pipeline/internal/credential"
	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/pipeline/errs"
)

type fakeArchiver struct{}

func (fakeArchiver) Put(context.Context, string, []byte) error { return nil }

func newSignedBITestStore(t *testing.T) *credential.Store {
	t.Helper()
	store, err := credential.New(t.TempDir(), "a-sufficiently-long-test-master-key", fakeArchiver{}, nil,
		map[string]credential.Refresher{"signed_bi": credential.NoopRefresher{}})
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "signed_bi", model.Credential{
		TokenMaterial: "sb-token",
		CreatedAt:     time.Now().UTC(),
		ValidDays:     30,
	}))
	return store
}

func testWindow() model.Window {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, model.OperationalLocation)
	return model.Window{Start: start, End: start}
}

func TestSignedBIOverviewAdapterExtractNormalizesRows(t *testing.T) {
	var gotAPIID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req biQueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotAPIID = req.APIID
		fmt.Fprint(w, `{"code":0,"msg":"","data":[
			{"snapshot_time":"2026-07-01 09:00:00","hour":9,"total_spend":1234.5,"d0_roas":0.31},
			{"snapshot_time":"2026-07-01 10:00:00","hour":10,"total_spend":987.6,"d0_roas":0.42}
		]}`)
	}))
	defer srv.Close()

	store := newSignedBITestStore(t)
	inner := NewSignedBIAdapter(srv.URL, "api-editor", "api-overview", store)
	adapter := NewSignedBIOverviewAdapter(inner)

	require.Equal(t, "signed_bi_overview", adapter.Name())

	result, err := adapter.Extract(context.Background(), testWindow())
	require.NoError(t, err)
	require.Equal(t, "api-overview", gotAPIID)
	require.Len(t, result.Rows, 2)
	require.Len(t, result.Raw, 1)

	first, ok := result.Rows[0].(model.HourlySnapshot)
	require.True(t, ok)
	require.Equal(t, 9, first.Hour)
	require.Equal(t, 1234.5, first.TotalSpend)
	require.Equal(t, 0.31, first.D0ROAS)
	require.NotEmpty(t, first.BatchID)

	second, ok := result.Rows[1].(model.HourlySnapshot)
	require.True(t, ok)
	require.Equal(t, 987.6, second.TotalSpend)
	require.Equal(t, first.BatchID, second.BatchID)
}

func TestSignedBIOverviewAdapterFallsBackToWindowStartOnBadTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"msg":"","data":[{"snapshot_time":"not-a-time","hour":3,"total_spend":1,"d0_roas":0}]}`)
	}))
	defer srv.Close()

	store := newSignedBITestStore(t)
	adapter := NewSignedBIOverviewAdapter(NewSignedBIAdapter(srv.URL, "api-editor", "api-overview", store))

	result, err := adapter.Extract(context.Background(), testWindow())
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0].(model.HourlySnapshot)
	require.Equal(t, testWindow().Start.Add(3*time.Hour), row.SnapshotTime)
}

func TestSignedBIOverviewAdapterSurfacesUpstreamErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":1,"msg":"api_id not found","data":[]}`)
	}))
	defer srv.Close()

	store := newSignedBITestStore(t)
	adapter := NewSignedBIOverviewAdapter(NewSignedBIAdapter(srv.URL, "api-editor", "api-overview", store))

	_, err := adapter.Extract(context.Background(), testWindow())
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindInvalid))
}

func TestSignedBIOverviewAdapterPropagatesCredentialError(t *testing.T) {
	store, err := credential.New(t.TempDir(), "a-sufficiently-long-test-master-key", fakeArchiver{}, nil, nil)
	require.NoError(t, err)

	adapter := NewSignedBIOverviewAdapter(NewSignedBIAdapter("http://unused.example", "api-editor", "api-overview", store))

	_, err = adapter.Extract(context.Background(), testWindow())
	require.Error(t, err)
}
