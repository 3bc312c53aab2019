package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/warehouse"
)

// Dimension is the grouping axis for top_n_by (spec.md §4.F.4).
type Dimension string

const (
	DimensionCampaign Dimension = "campaign"
	DimensionDrama    Dimension = "drama"
	DimensionCountry  Dimension = "country"
	DimensionEditor   Dimension = "editor"
)

// Measure is the ranked column for top_n_by.
type Measure string

const (
	MeasureSpend   Measure = "spend"
	MeasureRevenue Measure = "revenue"
	MeasureROAS    Measure = "roas"
)

// RankedRow is one entry of a top_n_by result: a labelled dimension value
// with its aggregated measures.
type RankedRow struct {
	Label   string
	Spend   float64
	Revenue float64
	ROAS    float64
}

// measureValue extracts the ranked field for TopNByQuery's sort.
func (r RankedRow) measureValue(m Measure) float64 {
	switch m {
	case MeasureRevenue:
		return r.Revenue
	case MeasureROAS:
		return r.ROAS
	default:
		return r.Spend
	}
}

// TopNByQuery ranks dimension by measure over window, breaking ties by
// label ascending (spec.md §9: deterministic tie-breaking), and returns at
// most n rows.
//
// drama_id has no independent fact table in the warehouse: spec.md's
// drama-centric aggregations are resolved by treating quickbi_campaigns'
// campaign_id as the drama_id join key into drama_mapping (see DESIGN.md's
// Open Question resolution), since every "top drama" or "declining drama"
// figure in the source reports is in practice a per-campaign spend/ROAS
// figure relabelled with its drama's display name.
func TopNByQuery(ctx context.Context, wh *warehouse.Warehouse, dimension Dimension, measure Measure, window model.Window, n int) ([]RankedRow, error) {
	rows, err := aggregateByDimension(ctx, wh, dimension, window)
	if err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool {
		vi, vj := rows[i].measureValue(measure), rows[j].measureValue(measure)
		if vi != vj {
			return vi > vj
		}
		return rows[i].Label < rows[j].Label
	})

	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

// aggregateByDimension is shared by top_n_by and the category-bucket reducer,
// which needs the full per-dimension measure set rather than a single row.
func aggregateByDimension(ctx context.Context, wh *warehouse.Warehouse, dimension Dimension, window model.Window) ([]RankedRow, error) {
	var query string
	var err error

	switch dimension {
	case DimensionCampaign:
		query, err = campaignAggregateQuery("q.campaign_name")
	case DimensionCountry:
		query, err = campaignAggregateQuery("q.country")
	case DimensionDrama:
		query, err = dramaAggregateQuery()
	case DimensionEditor:
		return editorAggregateRows(ctx, wh, window)
	default:
		return nil, fmt.Errorf("unknown top_n_by dimension %q", dimension)
	}
	if err != nil {
		return nil, err
	}

	return scanAggregateRows(ctx, wh, query, window)
}

func campaignAggregateQuery(labelExpr string) (string, error) {
	join, err := latestJoin()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		SELECT
			COALESCE(%[1]s, '(unknown)') AS label,
			COALESCE(SUM(q.spend), 0) AS spend,
			COALESCE(SUM(q.new_user_revenue + q.media_user_revenue), 0) AS revenue
		FROM %[2]s
		WHERE q.stat_date >= ? AND q.stat_date <= ?
		GROUP BY label`, labelExpr, join), nil
}

func dramaAggregateQuery() (string, error) {
	join, err := latestJoin()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		SELECT
			COALESCE(d.drama_name, q.campaign_name, q.campaign_id) AS label,
			COALESCE(SUM(q.spend), 0) AS spend,
			COALESCE(SUM(q.new_user_revenue + q.media_user_revenue), 0) AS revenue
		FROM %[1]s
		LEFT JOIN %[2]s d ON d.drama_id = q.campaign_id
		WHERE q.stat_date >= ? AND q.stat_date <= ?
		GROUP BY label`, join, warehouse.TableDramaMapping), nil
}

func scanAggregateRows(ctx context.Context, wh *warehouse.Warehouse, query string, window model.Window) ([]RankedRow, error) {
	rows, err := wh.Conn().QueryContext(ctx, query, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("aggregate query: %w", err)
	}
	defer rows.Close()

	var out []RankedRow
	for rows.Next() {
		var label string
		var spend, revenue float64
		if err := rows.Scan(&label, &spend, &revenue); err != nil {
			return nil, fmt.Errorf("aggregate scan: %w", err)
		}
		out = append(out, RankedRow{
			Label:   label,
			Spend:   roundCurrencyTable(spend),
			Revenue: roundCurrencyTable(revenue),
			ROAS:    roundPercent(safeROAS(revenue, spend) * 100),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate rows: %w", err)
	}
	return out, nil
}

func editorAggregateRows(ctx context.Context, wh *warehouse.Warehouse, window model.Window) ([]RankedRow, error) {
	join, err := warehouse.JoinLatestPerDate(warehouse.TableXMPEditorStats, "e", "stat_date", "batch_id")
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT
			e.editor_name,
			COALESCE(SUM(e.spend), 0) AS spend,
			COALESCE(SUM(e.revenue), 0) AS revenue
		FROM %s
		WHERE e.stat_date >= ? AND e.stat_date <= ?
		GROUP BY e.editor_name`, join)
	return scanAggregateRows(ctx, wh, query, window)
}
