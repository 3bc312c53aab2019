package publish

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/adflow/pipeline/internal/blob"
	"github.com/adflow/pipeline/internal/model"
)

// ExcelWorkbook renders a DocumentModel into a multi-sheet .xlsx workbook
// (one sheet per section) and archives it through the Blob Archiver,
// grounded on original_source/xmp/xmp_report_excel.py: that tool builds one
// sheet per audience ("投手日报"/"剪辑师日报", i.e. optimizer and editor
// daily reports) from the same query results the chat/doc sinks render.
// Unlike the original it is wired as a third Publisher sink rather than a
// standalone local-run script, archived the same way raw provider payloads
// are (internal/blob), so a report run leaves a durable .xlsx artifact
// alongside the chat card / doc it publishes.
type ExcelWorkbook struct {
	store blob.Store
	clock func() time.Time
}

// NewExcelWorkbook builds an ExcelWorkbook sink archiving into store.
func NewExcelWorkbook(store blob.Store) *ExcelWorkbook {
	return &ExcelWorkbook{store: store, clock: time.Now}
}

// Render writes one sheet per doc.Sections entry (header row plus data
// rows, column-autofit skipped — excelize's defaults are wide enough for
// the pipeline's numeric/short-text tables) and archives the workbook under
// a key scoped by title and render time.
func (e *ExcelWorkbook) Render(ctx context.Context, doc *model.DocumentModel) (*Result, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	tablesSent := 0
	for i, section := range doc.Sections {
		sheetName := sanitizeSheetName(section.Heading, i)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
				return nil, fmt.Errorf("name first sheet %q: %w", sheetName, err)
			}
		} else if _, err := f.NewSheet(sheetName); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", sheetName, err)
		}

		row := 1
		for _, p := range section.Paragraphs {
			if err := f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), p); err != nil {
				return nil, fmt.Errorf("write paragraph to %q: %w", sheetName, err)
			}
			row++
		}

		for _, table := range section.Tables {
			if err := writeExcelTable(f, sheetName, table, row); err != nil {
				return nil, err
			}
			row += len(table.Rows) + 2
			tablesSent++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}

	key := fmt.Sprintf("reports/%s_%s.xlsx", slugify(doc.Title), e.clock().In(model.OperationalLocation).Format("20060102_150405"))
	if err := e.store.Put(ctx, key, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("archive workbook %s: %w", key, err)
	}

	return &Result{Sink: model.SinkExcel, TablesSent: tablesSent}, nil
}

func writeExcelTable(f *excelize.File, sheetName string, table model.Table, startRow int) error {
	for col, header := range table.Header {
		axis, err := excelize.CoordinatesToCellName(col+1, startRow)
		if err != nil {
			return fmt.Errorf("header cell for %q: %w", sheetName, err)
		}
		if err := f.SetCellValue(sheetName, axis, header); err != nil {
			return fmt.Errorf("write header cell for %q: %w", sheetName, err)
		}
	}
	for r, dataRow := range table.Rows {
		for col, value := range dataRow {
			axis, err := excelize.CoordinatesToCellName(col+1, startRow+r+1)
			if err != nil {
				return fmt.Errorf("data cell for %q: %w", sheetName, err)
			}
			if err := f.SetCellValue(sheetName, axis, value); err != nil {
				return fmt.Errorf("write data cell for %q: %w", sheetName, err)
			}
		}
	}
	return nil
}

// excelSheetNameMax is Excel's own sheet-name length limit.
const excelSheetNameMax = 31

var excelSheetNameReplacer = strings.NewReplacer(
	":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_",
)

// sanitizeSheetName strips characters Excel forbids in sheet names and
// falls back to a positional name for an empty heading.
func sanitizeSheetName(heading string, index int) string {
	name := excelSheetNameReplacer.Replace(strings.TrimSpace(heading))
	if name == "" {
		name = fmt.Sprintf("Sheet%d", index+1)
	}
	if utf8.RuneCountInString(name) > excelSheetNameMax {
		runes := []rune(name)
		name = string(runes[:excelSheetNameMax])
	}
	return name
}

var slugReplacer = strings.NewReplacer(" ", "_", "/", "_")

func slugify(title string) string {
	if title == "" {
		return "report"
	}
	return slugReplacer.Replace(strings.ToLower(title))
}
