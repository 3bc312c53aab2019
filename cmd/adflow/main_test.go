package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/pipeline/errs"
	"github.com/adflow/pipeline/internal/provider"
)

func TestRunWithNoArgsPrintsUsage(t *testing.T) {
	require.Equal(t, exitUsage, run(nil))
}

func TestRunWithUnknownConfigSubcommandPrintsUsage(t *testing.T) {
	require.Equal(t, exitUsage, run([]string{"config", "nonsense"}))
}

func TestParseYYYYMMDDRoundTrips(t *testing.T) {
	got, err := parseYYYYMMDD("20260701")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, model.OperationalLocation), got)
}

func TestParseYYYYMMDDRejectsMalformed(t *testing.T) {
	_, err := parseYYYYMMDD("2026-07-01")
	require.Error(t, err)
}

func TestParseDashDateRoundTrips(t *testing.T) {
	got, err := parseDashDate("2026-07-01")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, model.OperationalLocation), got)
}

func TestParseDashDateRejectsMalformed(t *testing.T) {
	_, err := parseDashDate("20260701")
	require.Error(t, err)
}

func TestDayWindowIsSingleDayAtMidnight(t *testing.T) {
	day := time.Date(2026, 7, 1, 15, 30, 0, 0, time.UTC)
	window := dayWindow(day)
	want := time.Date(2026, 7, 1, 0, 0, 0, 0, model.OperationalLocation)
	require.Equal(t, want, window.Start)
	require.Equal(t, want, window.End)
}

func TestBackfillFailsWhenHMACProviderNotEnabled(t *testing.T) {
	a := &app{}
	err := a.backfill(context.Background(), time.Date(2026, 7, 1, 0, 0, 0, 0, model.OperationalLocation), "")
	require.Error(t, err)
}

func TestBackfillFailsOnUnexpectedRowShape(t *testing.T) {
	a := &app{hmacAdapter: stubAdapter{result: provider.Result{Rows: []any{"not an ad spend fact"}}}}
	err := a.backfill(context.Background(), time.Date(2026, 7, 1, 0, 0, 0, 0, model.OperationalLocation), "")
	require.Error(t, err)
}

func TestBackfillPropagatesAdapterExtractError(t *testing.T) {
	a := &app{hmacAdapter: stubAdapter{err: errs.New(errs.KindTransient, "hmac_rest", "boom")}}
	err := a.backfill(context.Background(), time.Date(2026, 7, 1, 0, 0, 0, 0, model.OperationalLocation), "")
	require.Error(t, err)
}

type stubAdapter struct {
	result provider.Result
	err    error
}

func (stubAdapter) Name() string { return "hmac_rest" }

func (s stubAdapter) Extract(context.Context, model.Window) (provider.Result, error) {
	return s.result, s.err
}
