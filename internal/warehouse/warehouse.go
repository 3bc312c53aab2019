// Package warehouse implements the Warehouse Loader (spec.md §4.D) on top of
// an embedded DuckDB file: schema-on-demand table creation, idempotent
// batch-keyed append, last-write-wins upsert for functional mappings, and
// the latest_per_date reducer the Query Layer joins through.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/adflow/pipeline/internal/config"
	"github.com/adflow/pipeline/internal/logging"
)

// Warehouse wraps the DuckDB connection used for fact-row storage.
type Warehouse struct {
	conn *sql.DB
	cfg  config.WarehouseConfig
}

// Open creates the warehouse file (if needed), tunes the connection pool,
// and creates every table spec.md §4.D names.
func Open(cfg config.WarehouseConfig) (*Warehouse, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create warehouse directory %s: %w", dir, err)
		}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "4GB"
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s", cfg.Path, threads, maxMemory)
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}

	conn.SetMaxOpenConns(threads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	w := &Warehouse{conn: conn, cfg: cfg}
	if err := w.createSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return w, nil
}

// Conn returns the underlying connection, for the Query Layer's parameterized
// SELECTs.
func (w *Warehouse) Conn() *sql.DB { return w.conn }

// Close checkpoints the WAL and closes the connection.
func (w *Warehouse) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := w.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("warehouse checkpoint before close failed")
	}
	return w.conn.Close()
}

func (w *Warehouse) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 60*time.Second)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, 60*time.Second)
	}
	return ctx, func() {}
}
