package report

import (
	"context"
	"fmt"

	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/query"
)

func (c *Composer) buildWeekly(ctx context.Context, spec model.ReportSpec) (*model.DocumentModel, error) {
	summary, err := query.WeekSummaryQuery(ctx, c.warehouse, spec.Window)
	if err != nil {
		return nil, fmt.Errorf("week summary: %w", err)
	}

	doc := &model.DocumentModel{Title: fmt.Sprintf(
		"Weekly Performance — %s to %s",
		spec.Window.Start.Format("2006-01-02"), spec.Window.End.Format("2006-01-02"),
	)}
	doc.Sections = append(doc.Sections, model.Section{
		Heading: "Summary",
		Paragraphs: []string{fmt.Sprintf(
			"Spend %.0f (%+.1f%% WoW), Revenue %.0f, ROAS %.1f%% (%+.1fpp WoW), Daily Avg Spend %.2f, Avg CPM %.2f",
			summary.Spend, summary.SpendChange*100, summary.Revenue, summary.ROAS, summary.ROASChange*100,
			summary.DailyAvgSpend, summary.AvgCPM,
		)},
	})

	trend, err := query.DailyTrendQuery(ctx, c.warehouse, spec.Window)
	if err != nil {
		return nil, fmt.Errorf("daily trend: %w", err)
	}
	trendTable := model.Table{Header: []string{"Date", "Spend", "ROAS"}}
	for _, p := range trend {
		trendTable.Rows = append(trendTable.Rows, []string{p.Date, fmt.Sprintf("%.2f", p.Spend), fmt.Sprintf("%.1f%%", p.ROAS)})
	}
	doc.Sections = append(doc.Sections, model.Section{Heading: "Daily Trend", Tables: []model.Table{trendTable}})

	for _, dim := range []struct {
		heading   string
		dimension query.Dimension
	}{
		{"Top Campaigns", query.DimensionCampaign},
		{"Top Dramas", query.DimensionDrama},
		{"Top Countries", query.DimensionCountry},
		{"Top Editors", query.DimensionEditor},
	} {
		section, err := c.topNSection(ctx, spec.Window, dim.heading, dim.dimension)
		if err != nil {
			return nil, err
		}
		doc.Sections = append(doc.Sections, section)
	}

	if err := c.appendSharedSections(ctx, doc, spec); err != nil {
		return nil, err
	}
	return doc, nil
}
