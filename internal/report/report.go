// Package report implements the Report Composer (spec.md §4.G): it takes a
// ReportSpec and produces a sink-agnostic DocumentModel, owning the business
// rules (category thresholds, team membership, rank labels) the way the
// teacher's content resolver owns newsletter business rules.
package report

import (
	"context"
	"fmt"

	"github.com/adflow/pipeline/internal/config"
	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/query"
	"github.com/adflow/pipeline/internal/warehouse"
)

// Composer resolves the data a ReportSpec describes and assembles it into a
// DocumentModel, the way the teacher's ContentResolver resolves newsletter
// content ahead of template rendering.
type Composer struct {
	warehouse *warehouse.Warehouse
	report    config.ReportConfig
	teams     config.TeamsConfig
}

// New builds a Composer against wh, using cfg for category thresholds,
// rank-label spend gates, and the optimizer -> team membership map.
func New(wh *warehouse.Warehouse, reportCfg config.ReportConfig, teamsCfg config.TeamsConfig) *Composer {
	return &Composer{warehouse: wh, report: reportCfg, teams: teamsCfg}
}

// Build resolves spec into a DocumentModel. The composer itself never
// renders vendor markup; internal/publish owns turning a DocumentModel into
// a chat card or document.
func (c *Composer) Build(ctx context.Context, spec model.ReportSpec) (*model.DocumentModel, error) {
	switch spec.Kind {
	case model.ReportDaily:
		return c.buildDaily(ctx, spec)
	case model.ReportWeekly:
		return c.buildWeekly(ctx, spec)
	case model.ReportIntraday:
		return c.buildIntraday(ctx, spec)
	default:
		return nil, fmt.Errorf("unsupported report kind %q", spec.Kind)
	}
}

func (c *Composer) minSpendGate(spec model.ReportSpec) float64 {
	if spec.Kind == model.ReportWeekly {
		return c.report.WeeklyMinSpend
	}
	return c.report.DailyMinSpend
}

// rankLabelSection builds the "Spend Top1 / ROAS Top1" table shared by the
// daily and weekly reports, per spec.md §4.F.5's worked example.
func (c *Composer) rankLabelSection(ctx context.Context, spec model.ReportSpec) (model.Section, error) {
	people, err := query.RankLabelsQuery(ctx, c.warehouse, spec.Window, c.minSpendGate(spec))
	if err != nil {
		return model.Section{}, fmt.Errorf("rank labels: %w", err)
	}

	table := model.Table{Header: []string{"Optimizer", "Spend", "ROAS", "Label"}}
	for _, p := range people {
		label := ""
		switch {
		case p.SpendTop1() && p.ROASTop1():
			label = "Spend Top1, ROAS Top1"
		case p.SpendTop1():
			label = "Spend Top1"
		case p.ROASTop1():
			label = "ROAS Top1"
		}
		table.Rows = append(table.Rows, []string{
			p.Optimizer,
			fmt.Sprintf("%.2f", p.Spend),
			fmt.Sprintf("%.1f%%", p.ROAS),
			label,
		})
	}

	return model.Section{Heading: "Optimizer Rankings", Tables: []model.Table{table}}, nil
}

// categoryBucketSection builds the top/potential/declining/losing drama
// tables per spec.md §4.F.6.
func (c *Composer) categoryBucketSection(ctx context.Context, window model.Window) (model.Section, error) {
	buckets, err := query.CategoryBucketsQuery(ctx, c.warehouse, window, c.report)
	if err != nil {
		return model.Section{}, fmt.Errorf("category buckets: %w", err)
	}

	section := model.Section{Heading: "Drama Categories"}
	for _, bucket := range []struct {
		name string
		rows []query.RankedRow
	}{
		{"Top", buckets.Top},
		{"Potential", buckets.Potential},
		{"Declining", buckets.Declining},
		{"Losing", buckets.Losing},
	} {
		table := model.Table{Header: []string{bucket.name, "Spend", "Revenue", "ROAS"}}
		for _, r := range bucket.rows {
			table.Rows = append(table.Rows, []string{
				r.Label,
				fmt.Sprintf("%.2f", r.Spend),
				fmt.Sprintf("%.2f", r.Revenue),
				fmt.Sprintf("%.1f%%", r.ROAS),
			})
		}
		section.Tables = append(section.Tables, table)
	}
	return section, nil
}

func (c *Composer) teamRollupSection(ctx context.Context, window model.Window) (model.Section, error) {
	rows, err := query.TeamRollupQuery(ctx, c.warehouse, window, c.teams.OptimizerTeam())
	if err != nil {
		return model.Section{}, fmt.Errorf("team rollup: %w", err)
	}

	table := model.Table{Header: []string{"Team", "Spend", "Revenue", "ROAS", "Campaigns"}}
	for _, r := range rows {
		table.Rows = append(table.Rows, []string{
			r.Team,
			fmt.Sprintf("%.2f", r.Spend),
			fmt.Sprintf("%.2f", r.Revenue),
			fmt.Sprintf("%.1f%%", r.ROAS),
			fmt.Sprintf("%d", r.CampaignCount),
		})
	}
	return model.Section{Heading: "Team Rollup", Tables: []model.Table{table}}, nil
}
