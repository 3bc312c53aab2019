package query

import (
	"context"
	"fmt"

	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/warehouse"
)

// TrendPoint is one (date, spend, roas) sample of the spec.md §4.F.3 series.
type TrendPoint struct {
	Date  string
	Spend float64
	ROAS  float64
}

// DailyTrendQuery returns the daily spend/ROAS series across window, ordered
// ascending by date. Unlike the teacher's GetPlaybackTrends, the pipeline's
// own invariant (invariant 5: no cross-batch double-counting) is already
// enforced by the latest_per_date join, so no interval-widening logic is
// needed here: every report window in spec.md asks for day-granularity
// trends, never month-spanning ones.
func DailyTrendQuery(ctx context.Context, wh *warehouse.Warehouse, window model.Window) ([]TrendPoint, error) {
	join, err := latestJoin()
	if err != nil {
		return nil, err
	}

	// DuckDB-native strftime takes (timestamp, format), the opposite
	// argument order from SQLite.
	query := fmt.Sprintf(`
		SELECT
			strftime(q.stat_date, '%%Y-%%m-%%d') AS d,
			COALESCE(SUM(q.spend), 0) AS spend,
			COALESCE(SUM(q.new_user_revenue + q.media_user_revenue), 0) AS revenue
		FROM %s
		WHERE q.stat_date >= ? AND q.stat_date <= ?
		GROUP BY q.stat_date
		ORDER BY q.stat_date ASC`, join)

	rows, err := wh.Conn().QueryContext(ctx, query, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("daily_trend query: %w", err)
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var date string
		var spend, revenue float64
		if err := rows.Scan(&date, &spend, &revenue); err != nil {
			return nil, fmt.Errorf("daily_trend scan: %w", err)
		}
		points = append(points, TrendPoint{
			Date:  date,
			Spend: roundCurrency(spend),
			ROAS:  roundPercent(safeROAS(revenue, spend) * 100),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("daily_trend rows: %w", err)
	}
	return points, nil
}
