package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/warehouse"
)

// TeamRow is one team's spec.md §4.F.7 result row.
type TeamRow struct {
	Team          string
	Spend         float64
	Revenue       float64
	ROAS          float64
	CampaignCount int
}

type campaignAggregate struct {
	optimizer, campaignID string
	spend, revenue        float64
}

func campaignAggregates(ctx context.Context, wh *warehouse.Warehouse, window model.Window) ([]campaignAggregate, error) {
	join, err := latestJoin()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT
			COALESCE(q.optimizer, '(unassigned)') AS optimizer,
			q.campaign_id,
			COALESCE(SUM(q.spend), 0) AS spend,
			COALESCE(SUM(q.new_user_revenue + q.media_user_revenue), 0) AS revenue
		FROM %s
		WHERE q.stat_date >= ? AND q.stat_date <= ?
		GROUP BY optimizer, q.campaign_id`, join)

	rows, err := wh.Conn().QueryContext(ctx, query, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("team_rollup campaign aggregate: %w", err)
	}
	defer rows.Close()

	var out []campaignAggregate
	for rows.Next() {
		var c campaignAggregate
		if err := rows.Scan(&c.optimizer, &c.campaignID, &c.spend, &c.revenue); err != nil {
			return nil, fmt.Errorf("team_rollup campaign scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("team_rollup campaign rows: %w", err)
	}
	return out, nil
}

// TeamRollupQuery aggregates spend/revenue/distinct-campaign-count per
// campaign-optimizer pair and rolls it up into per-team totals, given
// optimizerTeam (the rebuilt one-way lookup from
// config.TeamsConfig.OptimizerTeam()). Optimizers absent from the
// membership map roll up under "(unassigned)".
func TeamRollupQuery(ctx context.Context, wh *warehouse.Warehouse, window model.Window, optimizerTeam map[string]string) ([]TeamRow, error) {
	campaigns, err := campaignAggregates(ctx, wh, window)
	if err != nil {
		return nil, err
	}

	type accum struct {
		spend, revenue float64
		campaigns      map[string]bool
	}
	byTeam := make(map[string]*accum)
	for _, c := range campaigns {
		team, ok := optimizerTeam[c.optimizer]
		if !ok {
			team = "(unassigned)"
		}
		a, ok := byTeam[team]
		if !ok {
			a = &accum{campaigns: make(map[string]bool)}
			byTeam[team] = a
		}
		a.spend += c.spend
		a.revenue += c.revenue
		a.campaigns[c.campaignID] = true
	}

	rows := make([]TeamRow, 0, len(byTeam))
	for team, a := range byTeam {
		rows = append(rows, TeamRow{
			Team:          team,
			Spend:         roundCurrencyTable(a.spend),
			Revenue:       roundCurrencyTable(a.revenue),
			ROAS:          roundPercent(safeROAS(a.revenue, a.spend) * 100),
			CampaignCount: len(a.campaigns),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Spend != rows[j].Spend {
			return rows[i].Spend > rows[j].Spend
		}
		return rows[i].Team < rows[j].Team
	})
	return rows, nil
}
