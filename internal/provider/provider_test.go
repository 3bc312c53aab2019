package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/pipeline/errs"
)

func TestSignDeterminism(t *testing.T) {
	// spec seed test: client_secret="abc", timestamp=1700000000 ->
	// md5("abc1700000000") lowercase hex.
	require.Equal(t, "22bd6333f840eeeee03ad14f75fd96ac", Sign("abc", 1700000000))
}

func TestPaginateStopsOnShortPage(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, page int) (Page[int], error) {
		calls++
		if page == 1 {
			return Page[int]{Rows: []int{1, 2, 3}, More: true}, nil
		}
		return Page[int]{Rows: []int{4}, More: false}, nil
	}
	rows, err := Paginate(context.Background(), "test", fetch, nil)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4}, rows)
	require.Equal(t, 2, calls)
}

func TestPaginateTripsPageSafetyCap(t *testing.T) {
	fetch := func(_ context.Context, page int) (Page[int], error) {
		return Page[int]{Rows: []int{page}, More: true}, nil
	}
	rows, err := Paginate(context.Background(), "test", fetch, nil)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindDataAnomaly))
	require.Len(t, rows, maxPages)
}

func TestWithPageRetryRetriesTransientThenSucceeds(t *testing.T) {
	origDelay := pageRetryBaseDelay
	pageRetryBaseDelay = time.Millisecond
	defer func() { pageRetryBaseDelay = origDelay }()

	attempts := 0
	result, err := WithPageRetry(context.Background(), "test", nil, func(context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errs.New(errs.KindTransient, "test", "boom")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 2, attempts)
}

func TestWithPageRetryRefreshesOnceOnAuthExpired(t *testing.T) {
	origDelay := pageRetryBaseDelay
	pageRetryBaseDelay = time.Millisecond
	defer func() { pageRetryBaseDelay = origDelay }()

	refreshCalls := 0
	attempts := 0
	refresh := func(context.Context) error {
		refreshCalls++
		return nil
	}
	result, err := WithPageRetry(context.Background(), "test", refresh, func(context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errs.New(errs.KindAuthExpired, "test", "expired")
		}
		return "refreshed", nil
	})
	require.NoError(t, err)
	require.Equal(t, "refreshed", result)
	require.Equal(t, 1, refreshCalls)
}

func TestWithPageRetrySecondAuthExpiredIsFatal(t *testing.T) {
	refresh := func(context.Context) error { return nil }
	_, err := WithPageRetry(context.Background(), "test", refresh, func(context.Context) (string, error) {
		return "", errs.New(errs.KindAuthExpired, "test", "expired again")
	})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindAuthExpired))
}

func TestValidateAdSpendFlagsAllThreeRules(t *testing.T) {
	row := model.AdSpendFact{
		CampaignID:       "c1",
		Spend:            150_000,
		Impressions:      0,
		NewUserRevenue:   900_000,
		MediaUserRevenue: 0,
	}
	warnings := ValidateAdSpend("hmac_rest", row)
	require.Len(t, warnings, 3)

	kinds := map[string]bool{}
	for _, w := range warnings {
		kinds[w.Kind] = true
	}
	require.True(t, kinds["spend_without_impressions"])
	require.True(t, kinds["implausible_roas"])
	require.True(t, kinds["single_day_spend_spike"])
}

func TestValidateAdSpendCleanRowHasNoWarnings(t *testing.T) {
	row := model.AdSpendFact{
		CampaignID:       "c2",
		Spend:            500,
		Impressions:      10_000,
		NewUserRevenue:   600,
		MediaUserRevenue: 0,
	}
	require.Empty(t, ValidateAdSpend("hmac_rest", row))
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := map[int]errs.Kind{
		401: errs.KindAuthExpired,
		403: errs.KindAuthExpired,
		429: errs.KindRateLimited,
		503: errs.KindRateLimited,
		500: errs.KindTransient,
		400: errs.KindInvalid,
	}
	for status, want := range cases {
		err := ClassifyHTTPStatus("test", status)
		require.Error(t, err)
		kind, ok := errs.KindOf(err)
		require.True(t, ok)
		require.Equal(t, want, kind)
	}
	require.NoError(t, ClassifyHTTPStatus("test", 200))
}

func TestNoBrowserControllerAlwaysRequiresInteraction(t *testing.T) {
	_, _, err := NoBrowserController{}.InterceptRequest(context.Background(), "xmp material report page")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindAuthInteractive))
}
