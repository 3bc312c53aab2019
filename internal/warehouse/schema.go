package warehouse

import (
	"context"
	"fmt"
	"time"
)

// Table name constants for the eight tables spec.md §6 names.
const (
	TableQuickBICampaigns    = "quickbi_campaigns"
	TableHourlySnapshots     = "hourly_snapshots"
	TableXMPCampaigns        = "xmp_campaigns"
	TableXMPMaterials        = "xmp_materials"
	TableXMPEditorStats      = "xmp_editor_stats"
	TableXMPOptimizerStats   = "xmp_optimizer_stats"
	TableXMPInternalCampaign = "xmp_internal_campaigns"
	TableDramaMapping        = "drama_mapping"
)

// createSchema creates every table on demand, idempotently (IF NOT EXISTS),
// mirroring the teacher's createTables()/getTableCreationQueries() split.
func (w *Warehouse) createSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, stmt := range w.tableCreationQueries() {
		if _, err := w.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %s: %w", stmt, err)
		}
	}
	return nil
}

func (w *Warehouse) tableCreationQueries() []string {
	campaignFactColumns := `
		stat_date DATE,
		batch_id TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL,
		channel TEXT,
		campaign_id TEXT,
		campaign_name TEXT,
		country TEXT,
		spend DOUBLE,
		revenue DOUBLE,
		impressions BIGINT,
		clicks BIGINT`

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			stat_date DATE,
			batch_id TEXT NOT NULL,
			fetched_at TIMESTAMP NOT NULL,
			channel TEXT,
			campaign_id TEXT,
			campaign_name TEXT,
			optimizer TEXT,
			country TEXT,
			spend DOUBLE,
			new_user_revenue DOUBLE,
			media_user_revenue DOUBLE,
			impressions BIGINT,
			clicks BIGINT,
			installs BIGINT
		)`, TableQuickBICampaigns),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			snapshot_time TIMESTAMP NOT NULL,
			hour INTEGER,
			total_spend DOUBLE,
			d0_roas DOUBLE,
			batch_id TEXT NOT NULL
		)`, TableHourlySnapshots),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, TableXMPCampaigns, campaignFactColumns),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, TableXMPOptimizerStats, campaignFactColumns),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, TableXMPInternalCampaign, campaignFactColumns),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			stat_date DATE,
			batch_id TEXT NOT NULL,
			fetched_at TIMESTAMP NOT NULL,
			channel TEXT,
			material_id TEXT,
			designer_name TEXT,
			cost DOUBLE,
			impression BIGINT,
			click BIGINT
		)`, TableXMPMaterials),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			stat_date DATE,
			batch_id TEXT NOT NULL,
			fetched_at TIMESTAMP NOT NULL,
			channel TEXT,
			editor_name TEXT,
			spend DOUBLE,
			revenue DOUBLE,
			roas DOUBLE,
			material_count BIGINT,
			hot_count BIGINT,
			hot_rate DOUBLE,
			top_material TEXT,
			top_material_spend DOUBLE
		)`, TableXMPEditorStats),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			drama_id TEXT PRIMARY KEY,
			drama_name TEXT NOT NULL
		)`, TableDramaMapping),
	}
}
