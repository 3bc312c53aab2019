package warehouse

import (
	"context"
	"fmt"

	"github.com/adflow/pipeline/internal/model"
)

// UpsertMapping implements the drama_id -> drama_name functional mapping
// (spec.md §3 invariant 4, §4.D): on key conflict the newest write wins, and
// the conflict itself is not treated as an error — DuckDB's native
// ON CONFLICT ... DO UPDATE makes the replacement atomic per row, the same
// pattern the teacher uses for geolocations and newsletter preferences
// (crud_geolocation.go, newsletter.go).
func (w *Warehouse) UpsertMapping(ctx context.Context, rows []model.DramaMapping) error {
	ctx, cancel := w.ensureContext(ctx)
	defer cancel()

	tx, err := w.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (drama_id, drama_name) VALUES (?, ?)
		ON CONFLICT (drama_id) DO UPDATE SET drama_name = EXCLUDED.drama_name`, TableDramaMapping))
	if err != nil {
		return fmt.Errorf("prepare drama mapping upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.DramaID, row.DramaName); err != nil {
			return fmt.Errorf("upsert drama mapping %s: %w", row.DramaID, err)
		}
	}

	return tx.Commit()
}
