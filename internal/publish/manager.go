package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/adflow/pipeline/internal/metrics"
	"github.com/adflow/pipeline/internal/model"
)

// Manager resolves a ReportSpec's sink to the right Sink implementation and
// times the render+deliver call, mirroring the teacher's delivery Manager
// but with a single sink per report rather than a fan-out across channels:
// spec.md §4.H sends each report to exactly the one sink its ReportSpec
// names.
type Manager struct {
	chat  *ChatCard
	doc   *Document
	excel *ExcelWorkbook
}

// NewManager builds a Manager dispatching to chat, doc, or excel depending
// on the ReportSpec it is asked to publish. excel may be nil when no blob
// store is configured to archive workbooks into.
func NewManager(chat *ChatCard, doc *Document, excel *ExcelWorkbook) *Manager {
	return &Manager{chat: chat, doc: doc, excel: excel}
}

// Publish renders doc through the sink named by sink, recording
// PublishDuration per spec.md's ambient metrics.
func (m *Manager) Publish(ctx context.Context, sink model.Sink, doc *model.DocumentModel) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.PublishDuration.WithLabelValues(string(sink)).Observe(time.Since(start).Seconds())
	}()

	switch sink {
	case model.SinkChat:
		if m.chat == nil {
			return nil, fmt.Errorf("chat sink not configured")
		}
		return m.chat.Render(ctx, doc)
	case model.SinkDoc:
		if m.doc == nil {
			return nil, fmt.Errorf("document sink not configured")
		}
		return m.doc.Render(ctx, doc)
	case model.SinkExcel:
		if m.excel == nil {
			return nil, fmt.Errorf("excel sink not configured")
		}
		return m.excel.Render(ctx, doc)
	default:
		return nil, fmt.Errorf("unknown publish sink %q", sink)
	}
}
