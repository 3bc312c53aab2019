package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adflow/pipeline/internal/config"
	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/warehouse"
)

// testDBSemaphore serializes DuckDB connection creation across this
// package's tests, the same guard used in internal/warehouse's tests.
var testDBSemaphore = make(chan struct{}, 1)

func setupWarehouse(t *testing.T) *warehouse.Warehouse {
	t.Helper()
	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	wh, err := warehouse.Open(config.WarehouseConfig{Path: ":memory:", MaxMemory: "1GB"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = wh.Close() })
	return wh
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, model.OperationalLocation)
}

func appendCampaigns(t *testing.T, wh *warehouse.Warehouse, batchID string, rows ...model.AdSpendFact) {
	t.Helper()
	vals := make([]any, len(rows))
	for i, r := range rows {
		vals[i] = r
	}
	require.NoError(t, wh.Append(context.Background(), warehouse.TableQuickBICampaigns, vals, batchID, time.Now()))
}

func TestDailySummaryAggregatesSingleDay(t *testing.T) {
	wh := setupWarehouse(t)
	d := day(2026, 7, 1)
	appendCampaigns(t, wh, "20260701_100000",
		model.AdSpendFact{FactRow: model.FactRow{StatDate: d}, CampaignID: "c1", Spend: 1000, NewUserRevenue: 400, MediaUserRevenue: 100, Impressions: 10000},
	)

	summary, err := DailySummaryQuery(context.Background(), wh, d)
	require.NoError(t, err)
	require.Equal(t, 1000.0, summary.Spend)
	require.Equal(t, 500.0, summary.Revenue)
	require.Equal(t, 50.0, summary.ROAS)
	require.Equal(t, 100.0, summary.CPM)
}

func TestWeekSummaryComputesWeekOverWeekDeltas(t *testing.T) {
	wh := setupWarehouse(t)
	current := model.Window{Start: day(2026, 7, 8), End: day(2026, 7, 14)}
	previous := model.Window{Start: day(2026, 7, 1), End: day(2026, 7, 7)}

	appendCampaigns(t, wh, "cur",
		model.AdSpendFact{FactRow: model.FactRow{StatDate: current.Start}, CampaignID: "c1", Spend: 1000, NewUserRevenue: 500},
	)
	appendCampaigns(t, wh, "prev",
		model.AdSpendFact{FactRow: model.FactRow{StatDate: previous.Start}, CampaignID: "c1", Spend: 800, NewUserRevenue: 500},
	)

	summary, err := WeekSummaryQuery(context.Background(), wh, current)
	require.NoError(t, err)
	require.InDelta(t, 0.25, summary.SpendChange, 0.001)
	require.InDelta(t, -0.125, summary.ROASChange, 0.001)
}

func TestDailyTrendOrdersAscendingByDate(t *testing.T) {
	wh := setupWarehouse(t)
	appendCampaigns(t, wh, "b1", model.AdSpendFact{FactRow: model.FactRow{StatDate: day(2026, 7, 3)}, CampaignID: "c1", Spend: 100})
	appendCampaigns(t, wh, "b2", model.AdSpendFact{FactRow: model.FactRow{StatDate: day(2026, 7, 1)}, CampaignID: "c1", Spend: 200})

	points, err := DailyTrendQuery(context.Background(), wh, model.Window{Start: day(2026, 7, 1), End: day(2026, 7, 3)})
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, "2026-07-01", points[0].Date)
	require.Equal(t, "2026-07-03", points[1].Date)
}

func TestTopNByCampaignBreaksTiesByNameAscending(t *testing.T) {
	wh := setupWarehouse(t)
	window := model.Window{Start: day(2026, 7, 1), End: day(2026, 7, 1)}
	appendCampaigns(t, wh, "b1",
		model.AdSpendFact{FactRow: model.FactRow{StatDate: window.Start}, CampaignID: "c2", CampaignName: "Zephyr", Spend: 500},
		model.AdSpendFact{FactRow: model.FactRow{StatDate: window.Start}, CampaignID: "c1", CampaignName: "Amber", Spend: 500},
	)

	rows, err := TopNByQuery(context.Background(), wh, DimensionCampaign, MeasureSpend, window, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Amber", rows[0].Label)
	require.Equal(t, "Zephyr", rows[1].Label)
}

func TestTopNByDramaJoinsMappingName(t *testing.T) {
	wh := setupWarehouse(t)
	window := model.Window{Start: day(2026, 7, 1), End: day(2026, 7, 1)}
	require.NoError(t, wh.UpsertMapping(context.Background(), []model.DramaMapping{{DramaID: "c1", DramaName: "The Long Road"}}))
	appendCampaigns(t, wh, "b1", model.AdSpendFact{FactRow: model.FactRow{StatDate: window.Start}, CampaignID: "c1", CampaignName: "fallback", Spend: 1000, NewUserRevenue: 600})

	rows, err := TopNByQuery(context.Background(), wh, DimensionDrama, MeasureSpend, window, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "The Long Road", rows[0].Label)
}

func TestRankLabelsGatesByMinimumSpend(t *testing.T) {
	wh := setupWarehouse(t)
	window := model.Window{Start: day(2026, 7, 1), End: day(2026, 7, 1)}
	appendCampaigns(t, wh, "b1",
		model.AdSpendFact{FactRow: model.FactRow{StatDate: window.Start}, CampaignID: "c1", Optimizer: "alice", Spend: 23000, NewUserRevenue: 13700},
		model.AdSpendFact{FactRow: model.FactRow{StatDate: window.Start}, CampaignID: "c2", Optimizer: "bob", Spend: 17000, NewUserRevenue: 11600},
		model.AdSpendFact{FactRow: model.FactRow{StatDate: window.Start}, CampaignID: "c3", Optimizer: "carol", Spend: 11000, NewUserRevenue: 5500},
	)

	people, err := RankLabelsQuery(context.Background(), wh, window, 100)
	require.NoError(t, err)
	require.Len(t, people, 3)

	byName := map[string]PersonRank{}
	for _, p := range people {
		byName[p.Optimizer] = p
	}
	require.True(t, byName["alice"].SpendTop1())
	require.False(t, byName["alice"].ROASTop1())
	require.True(t, byName["bob"].ROASTop1())
	require.False(t, byName["carol"].SpendTop1())
	require.False(t, byName["carol"].ROASTop1())
}

func TestCategoryBucketsClassifiesByThreshold(t *testing.T) {
	wh := setupWarehouse(t)
	window := model.Window{Start: day(2026, 7, 8), End: day(2026, 7, 8)}
	appendCampaigns(t, wh, "b1",
		model.AdSpendFact{FactRow: model.FactRow{StatDate: window.Start}, CampaignID: "top", Spend: 20000, NewUserRevenue: 10000}, // roas 50% > 40%
		model.AdSpendFact{FactRow: model.FactRow{StatDate: window.Start}, CampaignID: "losing", Spend: 2000, NewUserRevenue: 200}, // roas 10% < 25%
	)

	cfg := config.ReportConfig{
		TopSpendThreshold: 10000, TopROASThreshold: 0.40,
		PotentialSpendLow: 1000, PotentialSpendHigh: 10000, PotentialROAS: 0.50,
		DecliningWoWDrop: -0.10,
		LosingSpend:      1000, LosingROAS: 0.25,
	}

	buckets, err := CategoryBucketsQuery(context.Background(), wh, window, cfg)
	require.NoError(t, err)
	require.Len(t, buckets.Top, 1)
	require.Equal(t, "top", buckets.Top[0].Label)
	require.Len(t, buckets.Losing, 1)
	require.Equal(t, "losing", buckets.Losing[0].Label)
}

func TestTeamRollupGroupsByOptimizerMembership(t *testing.T) {
	wh := setupWarehouse(t)
	window := model.Window{Start: day(2026, 7, 1), End: day(2026, 7, 1)}
	appendCampaigns(t, wh, "b1",
		model.AdSpendFact{FactRow: model.FactRow{StatDate: window.Start}, CampaignID: "c1", Optimizer: "alice", Spend: 1000, NewUserRevenue: 500},
		model.AdSpendFact{FactRow: model.FactRow{StatDate: window.Start}, CampaignID: "c2", Optimizer: "bob", Spend: 500, NewUserRevenue: 250},
	)

	teams := config.TeamsConfig{Membership: map[string][]string{"growth": {"alice", "bob"}}}
	rows, err := TeamRollupQuery(context.Background(), wh, window, teams.OptimizerTeam())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "growth", rows[0].Team)
	require.Equal(t, 1500.0, rows[0].Spend)
	require.Equal(t, 2, rows[0].CampaignCount)
}
