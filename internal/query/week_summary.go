package query

import (
	"context"
	"fmt"
	"time"

	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/warehouse"
)

// WeekSummary is the spec.md §4.F.2 result shape, carrying the
// week-over-week deltas alongside the raw current and previous aggregates.
type WeekSummary struct {
	Spend         float64
	Revenue       float64
	ROAS          float64
	DailyAvgSpend float64
	AvgCPM        float64

	PreviousSpend float64
	PreviousROAS  float64

	// SpendChange is the relative change in spend, e.g. +0.25 for a 25%
	// increase over the previous window.
	SpendChange float64
	// ROASChange is the percentage-point delta in ROAS (current - previous),
	// not a relative change: spec.md's worked example goes from 62.5% to
	// 50% ROAS and reports roas_change = -0.125 (-12.5 pp).
	ROASChange float64
}

func weekAggregate(ctx context.Context, wh *warehouse.Warehouse, window model.Window) (spend, revenue float64, impressions int64, err error) {
	join, err := latestJoin()
	if err != nil {
		return 0, 0, 0, err
	}

	query := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(q.spend), 0),
			COALESCE(SUM(q.new_user_revenue + q.media_user_revenue), 0),
			COALESCE(SUM(q.impressions), 0)
		FROM %s
		WHERE q.stat_date >= ? AND q.stat_date <= ?`, join)

	if err := queryRow(ctx, wh, query, window.Start, window.End).scan(&spend, &revenue, &impressions); err != nil {
		return 0, 0, 0, fmt.Errorf("week aggregate %s..%s: %w", window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"), err)
	}
	return spend, revenue, impressions, nil
}

// WeekSummaryQuery aggregates window and the immediately preceding window of
// identical length, for week-over-week comparison.
func WeekSummaryQuery(ctx context.Context, wh *warehouse.Warehouse, window model.Window) (WeekSummary, error) {
	days := window.Days()
	previous := model.Window{
		Start: window.Start.AddDate(0, 0, -days),
		End:   window.Start.AddDate(0, 0, -1),
	}

	spend, revenue, impressions, err := weekAggregate(ctx, wh, window)
	if err != nil {
		return WeekSummary{}, err
	}
	prevSpend, prevRevenue, _, err := weekAggregate(ctx, wh, previous)
	if err != nil {
		return WeekSummary{}, err
	}

	roas := safeROAS(revenue, spend)
	prevROAS := safeROAS(prevRevenue, prevSpend)

	var spendChange float64
	if prevSpend != 0 {
		spendChange = (spend - prevSpend) / prevSpend
	}

	return WeekSummary{
		Spend:         roundCurrency(spend),
		Revenue:       roundCurrency(revenue),
		ROAS:          roundPercent(roas * 100),
		DailyAvgSpend: roundCurrencyTable(spend / float64(days)),
		AvgCPM:        roundCurrencyTable(safeCPM(spend, impressions)),
		PreviousSpend: roundCurrency(prevSpend),
		PreviousROAS:  roundPercent(prevROAS * 100),
		SpendChange:   roundPercent(spendChange * 100) / 100,
		ROASChange:    roundPercent((roas-prevROAS)*100) / 100,
	}, nil
}
