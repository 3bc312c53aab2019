// Package query implements the Query Layer (spec.md §4.F): a small, closed
// set of parameterized aggregations, each starting from the
// latest_per_date reducer so cross-batch double-counting never happens.
// Every function is grounded on the teacher's internal/database/analytics_*
// family — one focused query-building file per analytics concern.
package query

import (
	"context"
	"fmt"
	"math"

	"github.com/adflow/pipeline/internal/warehouse"
)

// sourceTable is the single fact table every query in this package reduces
// from: the ad-spend rows appended by the HMAC-REST adapter (spend, revenue,
// impressions) are the measures every report in spec.md §4.F is built on.
const sourceTable = warehouse.TableQuickBICampaigns

// roundCurrency rounds to 0 decimals for summary figures, per spec.md §4.F's
// rounding rule.
func roundCurrency(v float64) float64 { return math.Round(v) }

// roundCurrencyTable rounds to 2 decimals for per-row table figures.
func roundCurrencyTable(v float64) float64 { return math.Round(v*100) / 100 }

// roundPercent rounds to 1 decimal, the rule for any ratio reported as a
// percentage (ROAS, rate-of-change).
func roundPercent(v float64) float64 { return math.Round(v*10) / 10 }

// safeROAS avoids dividing by zero spend, matching the provider validation
// package's convention.
func safeROAS(revenue, spend float64) float64 {
	if spend == 0 {
		return 0
	}
	return revenue / spend
}

// safeCPM is cost per thousand impressions.
func safeCPM(spend float64, impressions int64) float64 {
	if impressions == 0 {
		return 0
	}
	return spend / float64(impressions) * 1000
}

// latestJoin is the shared "FROM quickbi_campaigns q JOIN latest_per_date"
// fragment every query below starts with.
func latestJoin() (string, error) {
	return warehouse.JoinLatestPerDate(sourceTable, "q", "stat_date", "batch_id")
}

func queryRow(ctx context.Context, wh *warehouse.Warehouse, query string, args ...any) *rowScanner {
	return &rowScanner{row: wh.Conn().QueryRowContext(ctx, query, args...)}
}

type rowScanner struct {
	row interface {
		Scan(dest ...any) error
	}
}

func (r *rowScanner) scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return fmt.Errorf("scan query result: %w", err)
	}
	return nil
}
