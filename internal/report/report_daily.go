package report

import (
	"context"
	"fmt"

	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/query"
)

const topNDefault = 10

func (c *Composer) buildDaily(ctx context.Context, spec model.ReportSpec) (*model.DocumentModel, error) {
	date := spec.Window.Start
	summary, err := query.DailySummaryQuery(ctx, c.warehouse, date)
	if err != nil {
		return nil, fmt.Errorf("daily summary: %w", err)
	}

	doc := &model.DocumentModel{Title: fmt.Sprintf("Daily Performance — %s", date.Format("2006-01-02"))}
	doc.Sections = append(doc.Sections, model.Section{
		Heading: "Summary",
		Paragraphs: []string{fmt.Sprintf(
			"Spend %.0f, Revenue %.0f, ROAS %.1f%%, CPM %.2f",
			summary.Spend, summary.Revenue, summary.ROAS, summary.CPM,
		)},
	})

	topSection, err := c.topNSection(ctx, spec.Window, "Top Campaigns", query.DimensionCampaign)
	if err != nil {
		return nil, err
	}
	doc.Sections = append(doc.Sections, topSection)

	dramaSection, err := c.topNSection(ctx, spec.Window, "Top Dramas", query.DimensionDrama)
	if err != nil {
		return nil, err
	}
	doc.Sections = append(doc.Sections, dramaSection)

	if err := c.appendSharedSections(ctx, doc, spec); err != nil {
		return nil, err
	}
	return doc, nil
}

// topNSection renders a top_n_by(dimension, spend, window, n) result into a
// titled Section, shared by the daily and weekly builders.
func (c *Composer) topNSection(ctx context.Context, window model.Window, heading string, dimension query.Dimension) (model.Section, error) {
	rows, err := query.TopNByQuery(ctx, c.warehouse, dimension, query.MeasureSpend, window, topNDefault)
	if err != nil {
		return model.Section{}, fmt.Errorf("%s: %w", heading, err)
	}

	table := model.Table{Header: []string{heading, "Spend", "Revenue", "ROAS"}}
	for _, r := range rows {
		table.Rows = append(table.Rows, []string{
			r.Label,
			fmt.Sprintf("%.2f", r.Spend),
			fmt.Sprintf("%.2f", r.Revenue),
			fmt.Sprintf("%.1f%%", r.ROAS),
		})
	}
	return model.Section{Heading: heading, Tables: []model.Table{table}}, nil
}

// appendSharedSections adds the rank-label, category-bucket, and team-rollup
// sections every daily and weekly report carries.
func (c *Composer) appendSharedSections(ctx context.Context, doc *model.DocumentModel, spec model.ReportSpec) error {
	rankSection, err := c.rankLabelSection(ctx, spec)
	if err != nil {
		return err
	}
	doc.Sections = append(doc.Sections, rankSection)

	bucketSection, err := c.categoryBucketSection(ctx, spec.Window)
	if err != nil {
		return err
	}
	doc.Sections = append(doc.Sections, bucketSection)

	if spec.Audience == model.AudienceAll {
		teamSection, err := c.teamRollupSection(ctx, spec.Window)
		if err != nil {
			return err
		}
		doc.Sections = append(doc.Sections, teamSection)
	}

	return nil
}
