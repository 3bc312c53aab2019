package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/adflow/pipeline/internal/config"
	"github.com/adflow/pipeline/internal/model"
)

// docRPCTimeout bounds each document-block RPC (spec.md §5: doc RPCs ≤30s).
const docRPCTimeout = 30 * time.Second

// cellFillSpacing is the minimum delay between consecutive cell-fill PATCH
// calls (spec.md §4.H: "MUST serialize fills per-cell with a small spacing
// (≥200 ms)").
const cellFillSpacing = 200 * time.Millisecond

// docTableRowCap default mirrors the empirically observed platform limit
// (spec.md §9's Open Question); callers override via config.LarkConfig.
const docTableRowCapDefault = 5

// nodeResolver resolves a wiki-style target node to the underlying document
// object it should be written to, returning ErrUnsupportedTarget when the
// node is not a document.
type nodeResolver interface {
	ResolveDocument(ctx context.Context, target string) (documentID string, err error)
}

// docBlockWriter performs the platform's block-creation and cell-fill RPCs.
// Abstracted behind an interface because no real document-platform SDK
// exists in the retrieval pack this module was built from (see DESIGN.md);
// httpDocWriter in doc_http.go is the adflow-native implementation posting
// through the same shared webhook contract as the chat sink.
type docBlockWriter interface {
	CreateHeading(ctx context.Context, documentID, text string) error
	CreateParagraph(ctx context.Context, documentID, text string) error
	CreateEmptyTable(ctx context.Context, documentID string, rows, cols int) (tableID string, err error)
	FillCell(ctx context.Context, documentID, tableID string, row, col int, text string) error
}

// Document renders a DocumentModel into a long-form document: headings,
// paragraphs, and tables created as empty blocks then filled cell-by-cell
// with rate-limit-aware pacing.
type Document struct {
	target   string
	rowCap   int
	resolver nodeResolver
	writer   docBlockWriter
}

// NewDocument builds a document sink writing to target (a document or
// wiki-node identifier), chunking tables at cfg.DocTableRowCap rows.
func NewDocument(cfg config.LarkConfig, target string, resolver nodeResolver, writer docBlockWriter) *Document {
	rowCap := cfg.DocTableRowCap
	if rowCap <= 0 {
		rowCap = docTableRowCapDefault
	}
	return &Document{target: target, rowCap: rowCap, resolver: resolver, writer: writer}
}

// NewDocumentSink builds the production document sink, wiring the HTTP
// resolver and block writer against cfg.BaseURL and writing to
// cfg.DocTarget.
func NewDocumentSink(cfg config.LarkConfig) *Document {
	return NewDocument(cfg, cfg.DocTarget, newHTTPDocResolver(cfg, cfg.BaseURL), newHTTPDocWriter(cfg, cfg.BaseURL))
}

// Render writes doc as an ordered sequence of blocks to the resolved
// document object, chunking every table wider than d.rowCap rows into
// multiple tables in sequence.
func (d *Document) Render(ctx context.Context, doc *model.DocumentModel) (*Result, error) {
	documentID, err := d.resolver.ResolveDocument(ctx, d.target)
	if err != nil {
		return nil, fmt.Errorf("resolve document target %q: %w", d.target, err)
	}

	result := &Result{Sink: model.SinkDoc}

	rpcCtx, cancel := context.WithTimeout(ctx, docRPCTimeout)
	defer cancel()
	if err := d.writer.CreateHeading(rpcCtx, documentID, doc.Title); err != nil {
		return nil, fmt.Errorf("create title heading: %w", err)
	}
	result.BlocksSent++

	for _, section := range doc.Sections {
		if err := d.writeSection(ctx, documentID, section, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (d *Document) writeSection(ctx context.Context, documentID string, section model.Section, result *Result) error {
	rpcCtx, cancel := context.WithTimeout(ctx, docRPCTimeout)
	defer cancel()

	if section.Heading != "" {
		if err := d.writer.CreateHeading(rpcCtx, documentID, section.Heading); err != nil {
			return fmt.Errorf("create section heading %q: %w", section.Heading, err)
		}
		result.BlocksSent++
	}
	for _, p := range section.Paragraphs {
		if err := d.writer.CreateParagraph(rpcCtx, documentID, p); err != nil {
			return fmt.Errorf("create paragraph: %w", err)
		}
		result.BlocksSent++
	}
	for _, table := range section.Tables {
		for _, chunk := range chunkTable(table, d.rowCap) {
			if err := d.writeTable(ctx, documentID, chunk); err != nil {
				return err
			}
			result.TablesSent++
		}
	}
	return nil
}

// writeTable creates an empty table block sized to chunk, then fills every
// cell in order, pacing each fill by cellFillSpacing and backing off on a
// rate-limit response.
func (d *Document) writeTable(ctx context.Context, documentID string, chunk model.Table) error {
	createCtx, cancel := context.WithTimeout(ctx, docRPCTimeout)
	defer cancel()

	cols := len(chunk.Header)
	rowCount := len(chunk.Rows) + 1 // header row plus data rows
	tableID, err := d.writer.CreateEmptyTable(createCtx, documentID, rowCount, cols)
	if err != nil {
		return fmt.Errorf("create table block: %w", err)
	}

	allRows := append([][]string{chunk.Header}, chunk.Rows...)
	for rowIdx, row := range allRows {
		for colIdx, cell := range row {
			if err := d.fillCellWithBackoff(ctx, documentID, tableID, rowIdx, colIdx, cell); err != nil {
				return err
			}
			time.Sleep(cellFillSpacing)
		}
	}
	return nil
}

// fillCellWithBackoff retries a single cell fill on a rate-limit signal.
// The document sink's own RPCs are the only ones in adflow that need a
// bespoke backoff loop: every provider adapter's retry policy lives in
// internal/provider instead, since this sink's failure mode (per-cell
// 429s during a long fill sequence) has no analogue there.
func (d *Document) fillCellWithBackoff(ctx context.Context, documentID, tableID string, row, col int, text string) error {
	backoff := cellFillSpacing
	const maxAttempts = 5

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fillCtx, cancel := context.WithTimeout(ctx, docRPCTimeout)
		err := d.writer.FillCell(fillCtx, documentID, tableID, row, col, text)
		cancel()
		if err == nil {
			return nil
		}
		if !isRateLimited(err) || attempt == maxAttempts {
			return fmt.Errorf("fill cell (%d,%d): %w", row, col, err)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return nil
}

// chunkTable splits table into consecutive row groups of at most rowCap
// rows, each chunk carrying the same header.
func chunkTable(table model.Table, rowCap int) []model.Table {
	if rowCap <= 0 || len(table.Rows) <= rowCap {
		return []model.Table{table}
	}

	var chunks []model.Table
	for start := 0; start < len(table.Rows); start += rowCap {
		end := start + rowCap
		if end > len(table.Rows) {
			end = len(table.Rows)
		}
		chunks = append(chunks, model.Table{Header: table.Header, Rows: table.Rows[start:end]})
	}
	return chunks
}
