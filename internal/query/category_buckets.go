package query

import (
	"context"

	"github.com/adflow/pipeline/internal/config"
	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/warehouse"
)

// CategoryBuckets is the spec.md §4.F.6 result shape: four independent
// drama buckets, a drama appearing in more than one when its figures
// satisfy more than one threshold.
type CategoryBuckets struct {
	Top       []RankedRow
	Potential []RankedRow
	Declining []RankedRow
	Losing    []RankedRow
}

// CategoryBucketsQuery buckets every drama (see TopNByQuery's doc comment
// for the campaign_id/drama_id join) seen in window against the
// configured thresholds. Declining requires the current window's
// week-over-week ROAS change, so it aggregates the immediately preceding
// window of equal length for comparison.
func CategoryBucketsQuery(ctx context.Context, wh *warehouse.Warehouse, window model.Window, cfg config.ReportConfig) (CategoryBuckets, error) {
	current, err := aggregateByDimension(ctx, wh, DimensionDrama, window)
	if err != nil {
		return CategoryBuckets{}, err
	}

	days := window.Days()
	previous := model.Window{
		Start: window.Start.AddDate(0, 0, -days),
		End:   window.Start.AddDate(0, 0, -1),
	}
	prior, err := aggregateByDimension(ctx, wh, DimensionDrama, previous)
	if err != nil {
		return CategoryBuckets{}, err
	}
	priorByLabel := make(map[string]RankedRow, len(prior))
	for _, row := range prior {
		priorByLabel[row.Label] = row
	}

	var buckets CategoryBuckets
	for _, row := range current {
		roasFraction := row.ROAS / 100

		if row.Spend > cfg.TopSpendThreshold && roasFraction > cfg.TopROASThreshold {
			buckets.Top = append(buckets.Top, row)
		}
		if row.Spend > cfg.PotentialSpendLow && row.Spend < cfg.PotentialSpendHigh && roasFraction > cfg.PotentialROAS {
			buckets.Potential = append(buckets.Potential, row)
		}
		if row.Spend > cfg.LosingSpend && roasFraction < cfg.LosingROAS {
			buckets.Losing = append(buckets.Losing, row)
		}
		if prev, ok := priorByLabel[row.Label]; ok {
			prevFraction := prev.ROAS / 100
			if roasFraction-prevFraction < cfg.DecliningWoWDrop {
				buckets.Declining = append(buckets.Declining, row)
			}
		}
	}

	return buckets, nil
}
