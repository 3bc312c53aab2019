package warehouse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adflow/pipeline/internal/config"
	"github.com/adflow/pipeline/internal/model"
)

// testDBSemaphore serializes DuckDB connection creation across this
// package's tests, matching the teacher's database_test.go concurrency
// guard for CGO-backed DuckDB operations.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestWarehouse(t *testing.T) *Warehouse {
	t.Helper()
	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	w, err := Open(config.WarehouseConfig{Path: ":memory:", MaxMemory: "1GB"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestOpenCreatesAllEightTables(t *testing.T) {
	w := setupTestWarehouse(t)
	for _, table := range []string{
		TableQuickBICampaigns, TableHourlySnapshots, TableXMPCampaigns, TableXMPMaterials,
		TableXMPEditorStats, TableXMPOptimizerStats, TableXMPInternalCampaign, TableDramaMapping,
	} {
		var count int
		err := w.Conn().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
		require.NoError(t, err, "table %s should exist", table)
		require.Zero(t, count)
	}
}

func TestAppendIsIdempotentPerBatchID(t *testing.T) {
	w := setupTestWarehouse(t)
	ctx := context.Background()
	fetchedAt := time.Date(2026, 7, 1, 10, 0, 0, 0, model.OperationalLocation)

	rows := []any{
		model.AdSpendFact{CampaignID: "c1", Spend: 100, Impressions: 1000},
		model.AdSpendFact{CampaignID: "c2", Spend: 200, Impressions: 2000},
	}

	require.NoError(t, w.Append(ctx, TableQuickBICampaigns, rows, "20260701_100000", fetchedAt))
	require.NoError(t, w.Append(ctx, TableQuickBICampaigns, rows, "20260701_100000", fetchedAt))

	var count int
	require.NoError(t, w.Conn().QueryRow("SELECT COUNT(*) FROM "+TableQuickBICampaigns).Scan(&count))
	require.Equal(t, 2, count, "re-appending the same batch_id must be a no-op")
}

func TestAppendDistinctBatchIDsBothLand(t *testing.T) {
	w := setupTestWarehouse(t)
	ctx := context.Background()
	fetchedAt := time.Now()

	rows := []any{model.AdSpendFact{CampaignID: "c1", Spend: 100}}
	require.NoError(t, w.Append(ctx, TableQuickBICampaigns, rows, "20260701_100000", fetchedAt))
	require.NoError(t, w.Append(ctx, TableQuickBICampaigns, rows, "20260702_100000", fetchedAt))

	var count int
	require.NoError(t, w.Conn().QueryRow("SELECT COUNT(*) FROM "+TableQuickBICampaigns).Scan(&count))
	require.Equal(t, 2, count)
}

func TestAppendRejectsMismatchedRowType(t *testing.T) {
	w := setupTestWarehouse(t)
	err := w.Append(context.Background(), TableQuickBICampaigns, []any{model.MaterialFact{MaterialID: "m1"}}, "20260701_100000", time.Now())
	require.Error(t, err)
}

func TestUpsertMappingLastWriteWins(t *testing.T) {
	w := setupTestWarehouse(t)
	ctx := context.Background()

	require.NoError(t, w.UpsertMapping(ctx, []model.DramaMapping{{DramaID: "d1", DramaName: "Old Name"}}))
	require.NoError(t, w.UpsertMapping(ctx, []model.DramaMapping{{DramaID: "d1", DramaName: "New Name"}}))

	var name string
	require.NoError(t, w.Conn().QueryRow("SELECT drama_name FROM "+TableDramaMapping+" WHERE drama_id = 'd1'").Scan(&name))
	require.Equal(t, "New Name", name)

	var count int
	require.NoError(t, w.Conn().QueryRow("SELECT COUNT(*) FROM " + TableDramaMapping).Scan(&count))
	require.Equal(t, 1, count)
}

func TestLatestPerDateRejectsUnknownTable(t *testing.T) {
	_, err := LatestPerDate("not_a_real_table", "stat_date", "batch_id")
	require.Error(t, err)
}

func TestLatestPerDateReducesToMaxBatchPerDate(t *testing.T) {
	w := setupTestWarehouse(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 1, 0, 0, 0, 0, model.OperationalLocation)

	old := model.AdSpendFact{FactRow: model.FactRow{StatDate: day}, CampaignID: "c1", Spend: 100}
	require.NoError(t, w.Append(ctx, TableQuickBICampaigns, []any{old}, "20260701_090000", time.Now()))

	fresh := model.AdSpendFact{FactRow: model.FactRow{StatDate: day}, CampaignID: "c1", Spend: 150}
	require.NoError(t, w.Append(ctx, TableQuickBICampaigns, []any{fresh}, "20260701_180000", time.Now()))

	join, err := JoinLatestPerDate(TableQuickBICampaigns, "q", "stat_date", "batch_id")
	require.NoError(t, err)

	var spend float64
	query := "SELECT q.spend FROM " + join
	require.NoError(t, w.Conn().QueryRow(query).Scan(&spend))
	require.Equal(t, 150.0, spend, "latest_per_date must resolve to the newest batch, not sum across batches")
}

func TestAppendChunksBulkInsertsAboveBatchSize(t *testing.T) {
	w := setupTestWarehouse(t)
	ctx := context.Background()

	rows := make([]any, 0, appendBatchSize+50)
	for i := 0; i < appendBatchSize+50; i++ {
		rows = append(rows, model.AdSpendFact{CampaignID: "bulk", Spend: float64(i)})
	}
	require.NoError(t, w.Append(ctx, TableQuickBICampaigns, rows, "20260701_200000", time.Now()))

	var count int
	require.NoError(t, w.Conn().QueryRow("SELECT COUNT(*) FROM "+TableQuickBICampaigns).Scan(&count))
	require.Equal(t, appendBatchSize+50, count)
}

func TestAppendConcurrentTablesDoNotInterfere(t *testing.T) {
	w := setupTestWarehouse(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = w.Append(ctx, TableQuickBICampaigns, []any{model.AdSpendFact{CampaignID: "a"}}, "20260701_100000", time.Now())
	}()
	go func() {
		defer wg.Done()
		_ = w.Append(ctx, TableXMPMaterials, []any{model.MaterialFact{MaterialID: "m"}}, "20260701_100000", time.Now())
	}()
	wg.Wait()

	var count int
	require.NoError(t, w.Conn().QueryRow("SELECT COUNT(*) FROM "+TableQuickBICampaigns).Scan(&count))
	require.Equal(t, 1, count)
	require.NoError(t, w.Conn().QueryRow("SELECT COUNT(*) FROM "+TableXMPMaterials).Scan(&count))
	require.Equal(t, 1, count)
}
