package query

import (
	"context"
	"fmt"
	"time"

	"github.com/adflow/pipeline/internal/warehouse"
)

// DailySummary is the spec.md §4.F.1 result shape: {spend, revenue, roas, cpm}.
type DailySummary struct {
	Spend       float64
	Revenue     float64
	ROAS        float64
	CPM         float64
	Impressions int64
}

// DailySummaryQuery reduces a single calendar day through the
// latest_per_date join and aggregates the standard measure set.
func DailySummaryQuery(ctx context.Context, wh *warehouse.Warehouse, date time.Time) (DailySummary, error) {
	join, err := latestJoin()
	if err != nil {
		return DailySummary{}, err
	}

	query := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(q.spend), 0),
			COALESCE(SUM(q.new_user_revenue + q.media_user_revenue), 0),
			COALESCE(SUM(q.impressions), 0)
		FROM %s
		WHERE q.stat_date = ?`, join)

	var spend, revenue float64
	var impressions int64
	if err := queryRow(ctx, wh, query, date).scan(&spend, &revenue, &impressions); err != nil {
		return DailySummary{}, fmt.Errorf("daily_summary %s: %w", date.Format("2006-01-02"), err)
	}

	return DailySummary{
		Spend:       roundCurrency(spend),
		Revenue:     roundCurrency(revenue),
		ROAS:        roundPercent(safeROAS(revenue, spend) * 100),
		CPM:         roundCurrencyTable(safeCPM(spend, impressions)),
		Impressions: impressions,
	}, nil
}
