package provider

import (
	"context"
	"fmt"

	"github.com/adflow/pipeline/internal/pipeline/errs"
)

// maxPages and maxRows bound pagination so a misbehaving upstream (a cursor
// that never terminates, a page_size that never shrinks the remainder)
// cannot turn one extraction into an unbounded loop.
const (
	maxPages = 500
	maxRows  = 2_000_000
)

// Page is one fetched page: the rows it carried and whether another page
// follows.
type Page[T any] struct {
	Rows []T
	More bool
}

// Fetcher retrieves page n (1-indexed) of a paginated response.
type Fetcher[T any] func(ctx context.Context, page int) (Page[T], error)

// Paginate drains fetcher from page 1 until it reports no more pages, the
// page-count safety cap trips, or the row-count safety cap trips. It returns
// everything fetched so far even when a safety cap trips, since a partial
// extraction the caller can act on beats silently discarding it.
func Paginate[T any](ctx context.Context, source string, fetch Fetcher[T], onPage func(int)) ([]T, error) {
	var all []T
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		got, err := fetch(ctx, page)
		if err != nil {
			kind, ok := errs.KindOf(err)
			if !ok {
				kind = errs.KindTransient
			}
			return all, errs.Wrap(kind, source, fmt.Errorf("fetch page %d: %w", page, err))
		}
		all = append(all, got.Rows...)
		if onPage != nil {
			onPage(page)
		}
		if len(all) >= maxRows {
			return all, errs.New(errs.KindDataAnomaly, source,
				fmt.Sprintf("pagination safety cap reached at %d rows; result is truncated", len(all)))
		}
		if !got.More {
			return all, nil
		}
	}
	return all, errs.New(errs.KindDataAnomaly, source,
		fmt.Sprintf("pagination safety cap reached at %d pages; result is truncated", maxPages))
}
