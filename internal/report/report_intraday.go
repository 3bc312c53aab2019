package report

import (
	"context"
	"fmt"

	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/query"
)

// buildIntraday composes the lightweight hourly-cadence report: a single
// hourly_snapshots trend table, no rank labels or category buckets (those
// depend on a full day's worth of campaign data).
func (c *Composer) buildIntraday(ctx context.Context, spec model.ReportSpec) (*model.DocumentModel, error) {
	points, err := query.HourlySnapshotsQuery(ctx, c.warehouse, spec.Window)
	if err != nil {
		return nil, fmt.Errorf("hourly snapshots: %w", err)
	}

	doc := &model.DocumentModel{Title: fmt.Sprintf("Intraday Performance — %s", spec.Window.Start.Format("2006-01-02"))}
	table := model.Table{Header: []string{"Hour", "Total Spend", "D0 ROAS"}}
	for _, p := range points {
		table.Rows = append(table.Rows, []string{
			fmt.Sprintf("%02d:00", p.Hour),
			fmt.Sprintf("%.2f", p.TotalSpend),
			fmt.Sprintf("%.1f%%", p.D0ROAS),
		})
	}
	doc.Sections = append(doc.Sections, model.Section{Heading: "Hourly Snapshot", Tables: []model.Table{table}})
	return doc, nil
}
