package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adflow/pipeline/internal/model"
)

// appendBatchSize is the chunk size Append walks rows in. Each row is still
// written by its own execution of one prepared single-row INSERT inside the
// batch transaction; no multi-row INSERT statement is issued.
const appendBatchSize = 1000

// Append streams rows into table under batchID inside one transaction
// spanning the idempotency pre-check and every chunk, so the whole batch
// commits or none of it does (spec.md §4.D: "writes commit atomically at
// the batch-append granularity"; a store unable to guarantee atomic bulk
// writes must stage into a scratch and swap on completion — DuckDB's
// multi-statement transactions give us the former directly). Without this,
// a failure partway through a multi-chunk batch would leave chunks 0..N-1
// visible while batchAlreadyLoaded then reports the batch as already
// loaded, permanently stranding it half-written.
func (w *Warehouse) Append(ctx context.Context, table string, rows []any, batchID string, fetchedAt time.Time) error {
	ctx, cancel := w.ensureContext(ctx)
	defer cancel()

	tx, err := w.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append transaction for %s/%s: %w", table, batchID, err)
	}
	defer func() { _ = tx.Rollback() }()

	already, err := batchAlreadyLoadedTx(ctx, tx, table, batchID)
	if err != nil {
		return fmt.Errorf("check idempotency for %s/%s: %w", table, batchID, err)
	}
	if already {
		return tx.Commit()
	}

	stmt, err := insertStatement(table)
	if err != nil {
		return err
	}
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("prepare insert for %s: %w", table, err)
	}
	defer func() { _ = prepared.Close() }()

	for start := 0; start < len(rows); start += appendBatchSize {
		end := start + appendBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		for _, row := range rows[start:end] {
			args, err := insertArgs(table, row, batchID, fetchedAt)
			if err != nil {
				return err
			}
			if _, err := prepared.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("insert row into %s: %w", table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append for %s/%s: %w", table, batchID, err)
	}
	return nil
}

func batchAlreadyLoadedTx(ctx context.Context, tx *sql.Tx, table, batchID string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE batch_id = ? LIMIT 1", table)
	var probe int
	err := tx.QueryRowContext(ctx, query, batchID).Scan(&probe)
	switch {
	case err == nil:
		return true, nil
	case err == sql.ErrNoRows:
		return false, nil
	default:
		return false, err
	}
}

func insertStatement(table string) (string, error) {
	switch table {
	case TableQuickBICampaigns:
		return `INSERT INTO quickbi_campaigns (
			stat_date, batch_id, fetched_at, channel, campaign_id, campaign_name,
			optimizer, country, spend, new_user_revenue, media_user_revenue,
			impressions, clicks, installs
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, nil
	case TableXMPCampaigns, TableXMPOptimizerStats, TableXMPInternalCampaign:
		return fmt.Sprintf(`INSERT INTO %s (
			stat_date, batch_id, fetched_at, channel, campaign_id, campaign_name,
			country, spend, revenue, impressions, clicks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table), nil
	case TableXMPMaterials:
		return `INSERT INTO xmp_materials (
			stat_date, batch_id, fetched_at, channel, material_id, designer_name,
			cost, impression, click
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, nil
	case TableXMPEditorStats:
		return `INSERT INTO xmp_editor_stats (
			stat_date, batch_id, fetched_at, channel, editor_name, spend, revenue,
			roas, material_count, hot_count, hot_rate, top_material, top_material_spend
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, nil
	case TableHourlySnapshots:
		return `INSERT INTO hourly_snapshots (
			snapshot_time, hour, total_spend, d0_roas, batch_id
		) VALUES (?, ?, ?, ?, ?)`, nil
	default:
		return "", fmt.Errorf("unknown warehouse table %q", table)
	}
}

func insertArgs(table string, row any, batchID string, fetchedAt time.Time) ([]any, error) {
	switch table {
	case TableQuickBICampaigns:
		r, ok := row.(model.AdSpendFact)
		if !ok {
			return nil, fmt.Errorf("table %s expects model.AdSpendFact rows, got %T", table, row)
		}
		return []any{
			r.StatDate, batchID, fetchedAt, string(r.Channel), r.CampaignID, r.CampaignName,
			r.Optimizer, r.Country, r.Spend, r.NewUserRevenue, r.MediaUserRevenue,
			r.Impressions, r.Clicks, r.Installs,
		}, nil

	case TableXMPCampaigns, TableXMPOptimizerStats, TableXMPInternalCampaign:
		r, ok := row.(model.CampaignFact)
		if !ok {
			return nil, fmt.Errorf("table %s expects model.CampaignFact rows, got %T", table, row)
		}
		return []any{
			r.StatDate, batchID, fetchedAt, string(r.Channel), r.CampaignID, r.CampaignName,
			r.Country, r.Spend, r.Revenue, r.Impressions, r.Clicks,
		}, nil

	case TableXMPMaterials:
		r, ok := row.(model.MaterialFact)
		if !ok {
			return nil, fmt.Errorf("table %s expects model.MaterialFact rows, got %T", table, row)
		}
		return []any{
			r.StatDate, batchID, fetchedAt, string(r.Channel), r.MaterialID, r.DesignerName,
			r.Cost, r.Impression, r.Click,
		}, nil

	case TableXMPEditorStats:
		r, ok := row.(model.EditorRollup)
		if !ok {
			return nil, fmt.Errorf("table %s expects model.EditorRollup rows, got %T", table, row)
		}
		return []any{
			r.StatDate, batchID, fetchedAt, string(r.Channel), r.EditorName, r.Spend, r.Revenue,
			r.ROAS, r.MaterialCount, r.HotCount, r.HotRate, r.TopMaterial, r.TopMaterialSpend,
		}, nil

	case TableHourlySnapshots:
		r, ok := row.(model.HourlySnapshot)
		if !ok {
			return nil, fmt.Errorf("table %s expects model.HourlySnapshot rows, got %T", table, row)
		}
		return []any{r.SnapshotTime, r.Hour, r.TotalSpend, r.D0ROAS, batchID}, nil

	default:
		return nil, fmt.Errorf("unknown warehouse table %q", table)
	}
}
