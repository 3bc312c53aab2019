package query

import (
	"context"
	"fmt"

	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/warehouse"
)

// HourlyPoint is one hourly_snapshots row, reduced through latest_per_date
// the same way every other query in this package is.
type HourlyPoint struct {
	Hour       int
	TotalSpend float64
	D0ROAS     float64
}

// HourlySnapshotsQuery backs the intraday report: it has no entry in
// spec.md §4.F's numbered list (hourly_snapshots is written directly by the
// intraday ingest tick, not derived from quickbi_campaigns), but the
// Scheduler's intraday cadence (spec.md §4.I) needs a read path for it, so
// it is grounded on the same latest_per_date join as the rest of the
// package rather than inventing a second reduction strategy.
func HourlySnapshotsQuery(ctx context.Context, wh *warehouse.Warehouse, day model.Window) ([]HourlyPoint, error) {
	join, err := warehouse.JoinLatestPerDate(warehouse.TableHourlySnapshots, "h", "hour", "batch_id")
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT h.hour, h.total_spend, h.d0_roas
		FROM %s
		WHERE h.snapshot_time >= ? AND h.snapshot_time <= ?
		ORDER BY h.hour ASC`, join)

	rows, err := wh.Conn().QueryContext(ctx, query, day.Start, day.End)
	if err != nil {
		return nil, fmt.Errorf("hourly_snapshots query: %w", err)
	}
	defer rows.Close()

	var points []HourlyPoint
	for rows.Next() {
		var p HourlyPoint
		if err := rows.Scan(&p.Hour, &p.TotalSpend, &p.D0ROAS); err != nil {
			return nil, fmt.Errorf("hourly_snapshots scan: %w", err)
		}
		p.TotalSpend = roundCurrencyTable(p.TotalSpend)
		p.D0ROAS = roundPercent(p.D0ROAS)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hourly_snapshots rows: %w", err)
	}
	return points, nil
}
