package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adflow/pipeline/internal/model"
)

func TestUpdateMediaUserRevenuePatchesMatchingRowOnly(t *testing.T) {
	w := setupTestWarehouse(t)
	ctx := context.Background()
	statDate := time.Date(2026, 7, 1, 0, 0, 0, 0, model.OperationalLocation)
	fetchedAt := time.Date(2026, 7, 1, 10, 0, 0, 0, model.OperationalLocation)

	rows := []any{
		model.AdSpendFact{FactRow: model.FactRow{StatDate: statDate, Channel: model.ChannelFacebook}, CampaignID: "c1", Country: "US", MediaUserRevenue: 0},
		model.AdSpendFact{FactRow: model.FactRow{StatDate: statDate, Channel: model.ChannelFacebook}, CampaignID: "c2", Country: "US", MediaUserRevenue: 0},
	}
	require.NoError(t, w.Append(ctx, TableQuickBICampaigns, rows, "20260701_100000", fetchedAt))

	fresh := []model.AdSpendFact{
		{FactRow: model.FactRow{StatDate: statDate, Channel: model.ChannelFacebook}, CampaignID: "c1", Country: "US", MediaUserRevenue: 42.5},
	}
	updated, err := w.UpdateMediaUserRevenue(ctx, fresh, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), updated)

	var c1Revenue, c2Revenue float64
	require.NoError(t, w.Conn().QueryRow("SELECT media_user_revenue FROM "+TableQuickBICampaigns+" WHERE campaign_id='c1'").Scan(&c1Revenue))
	require.NoError(t, w.Conn().QueryRow("SELECT media_user_revenue FROM "+TableQuickBICampaigns+" WHERE campaign_id='c2'").Scan(&c2Revenue))
	require.Equal(t, 42.5, c1Revenue)
	require.Zero(t, c2Revenue)
}

func TestUpdateMediaUserRevenueScopesToBatchIDWhenGiven(t *testing.T) {
	w := setupTestWarehouse(t)
	ctx := context.Background()
	statDate := time.Date(2026, 7, 1, 0, 0, 0, 0, model.OperationalLocation)
	fetchedAt := time.Date(2026, 7, 1, 10, 0, 0, 0, model.OperationalLocation)

	row := model.AdSpendFact{FactRow: model.FactRow{StatDate: statDate, Channel: model.ChannelFacebook}, CampaignID: "c1", Country: "US"}
	require.NoError(t, w.Append(ctx, TableQuickBICampaigns, []any{row}, "20260701_100000", fetchedAt))

	fresh := []model.AdSpendFact{{FactRow: model.FactRow{StatDate: statDate, Channel: model.ChannelFacebook}, CampaignID: "c1", Country: "US", MediaUserRevenue: 10}}

	updated, err := w.UpdateMediaUserRevenue(ctx, fresh, "20260702_100000")
	require.NoError(t, err)
	require.Zero(t, updated, "batch_id filter naming a different run must match nothing")

	updated, err = w.UpdateMediaUserRevenue(ctx, fresh, "20260701_100000")
	require.NoError(t, err)
	require.Equal(t, int64(1), updated)
}

func TestUpdateMediaUserRevenueSkipsRowsWithoutCampaignID(t *testing.T) {
	w := setupTestWarehouse(t)
	updated, err := w.UpdateMediaUserRevenue(context.Background(), []model.AdSpendFact{{}}, "")
	require.NoError(t, err)
	require.Zero(t, updated)
}
