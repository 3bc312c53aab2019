package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/warehouse"
)

// PersonRank is one optimizer's spec.md §4.F.5 result row. SpendRank and
// ROASRank are 1-based; optimizers below the minimum spend gate are left out
// of the result entirely.
type PersonRank struct {
	Optimizer string
	Spend     float64
	Revenue   float64
	ROAS      float64
	SpendRank int
	ROASRank  int
}

// SpendTop1 reports whether this row is the window's single "Spend Top1"
// label (spec.md §4.E's worked example: at most one person per window).
func (p PersonRank) SpendTop1() bool { return p.SpendRank == 1 }

// ROASTop1 reports whether this row is the window's single "ROAS Top1"
// label.
func (p PersonRank) ROASTop1() bool { return p.ROASRank == 1 }

// RankLabelsQuery aggregates spend/revenue per optimizer over window, gates
// out anyone below minSpend, and ranks the remainder by spend and by ROAS
// independently, each tie broken by optimizer name ascending.
func RankLabelsQuery(ctx context.Context, wh *warehouse.Warehouse, window model.Window, minSpend float64) ([]PersonRank, error) {
	join, err := latestJoin()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT
			COALESCE(q.optimizer, '(unassigned)') AS optimizer,
			COALESCE(SUM(q.spend), 0) AS spend,
			COALESCE(SUM(q.new_user_revenue + q.media_user_revenue), 0) AS revenue
		FROM %s
		WHERE q.stat_date >= ? AND q.stat_date <= ?
		GROUP BY optimizer`, join)

	rows, err := wh.Conn().QueryContext(ctx, query, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("rank_labels query: %w", err)
	}
	defer rows.Close()

	var people []PersonRank
	for rows.Next() {
		var optimizer string
		var spend, revenue float64
		if err := rows.Scan(&optimizer, &spend, &revenue); err != nil {
			return nil, fmt.Errorf("rank_labels scan: %w", err)
		}
		if spend < minSpend {
			continue
		}
		people = append(people, PersonRank{
			Optimizer: optimizer,
			Spend:     roundCurrencyTable(spend),
			Revenue:   roundCurrencyTable(revenue),
			ROAS:      roundPercent(safeROAS(revenue, spend) * 100),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rank_labels rows: %w", err)
	}

	assignRank(people, func(p PersonRank) float64 { return p.Spend }, func(p *PersonRank, rank int) { p.SpendRank = rank })
	assignRank(people, func(p PersonRank) float64 { return p.ROAS }, func(p *PersonRank, rank int) { p.ROASRank = rank })

	return people, nil
}

// assignRank orders a copy of people by value descending (ties broken by
// optimizer name ascending) and writes back 1-based ranks through set.
func assignRank(people []PersonRank, value func(PersonRank) float64, set func(*PersonRank, int)) {
	order := make([]int, len(people))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := people[order[i]], people[order[j]]
		va, vb := value(a), value(b)
		if va != vb {
			return va > vb
		}
		return a.Optimizer < b.Optimizer
	})
	for rank, idx := range order {
		set(&people[idx], rank+1)
	}
}
