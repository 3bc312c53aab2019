package warehouse

import (
	"context"
	"fmt"

	"github.com/adflow/pipeline/internal/model"
)

// UpdateMediaUserRevenue backfills the media_user_revenue column on already
// persisted quickbi_campaigns rows, matching freshly refetched rows against
// the existing ones by (stat_date, campaign_id, country, channel) and, when
// batchID is non-empty, further scoping the update to that one ingest run —
// grounded on original_source/scripts/update_media_revenue.py's
// update_bigquery_media_revenue(), which issues exactly this parameterized
// UPDATE instead of re-inserting rows. It never touches any column besides
// media_user_revenue and reports how many rows it actually changed.
func (w *Warehouse) UpdateMediaUserRevenue(ctx context.Context, rows []model.AdSpendFact, batchID string) (int64, error) {
	ctx, cancel := w.ensureContext(ctx)
	defer cancel()

	query := `UPDATE ` + TableQuickBICampaigns + ` SET media_user_revenue = ?
		WHERE stat_date = ? AND campaign_id = ? AND country = ? AND channel = ?`
	if batchID != "" {
		query += ` AND batch_id = ?`
	}

	tx, err := w.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin media_user_revenue backfill transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare media_user_revenue backfill: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var updated int64
	for _, row := range rows {
		if row.CampaignID == "" {
			continue
		}
		args := []any{row.MediaUserRevenue, row.StatDate, row.CampaignID, row.Country, string(row.Channel)}
		if batchID != "" {
			args = append(args, batchID)
		}
		result, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("update media_user_revenue for campaign %s: %w", row.CampaignID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("read rows affected for campaign %s: %w", row.CampaignID, err)
		}
		updated += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit media_user_revenue backfill: %w", err)
	}
	return updated, nil
}
