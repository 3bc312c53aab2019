package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/adflow/pipeline/internal/config"
	"github.com/adflow/pipeline/internal/model"
)

// chatCallTimeout bounds the chat sink's webhook POST (spec.md §5:
// outbound HTTP calls carry a timeout; a chat card is a single small POST,
// so the adapter's 3-minute HTTP ceiling would be wildly generous here).
const chatCallTimeout = 30 * time.Second

// ChatCard renders a DocumentModel into a single, non-paginated card: no
// structural pagination is possible on this sink, so long tables are
// truncated to RowCap rows with a trailing ellipsis row instead
// (spec.md §4.H).
type ChatCard struct {
	webhookURL string
	rowCap     int
}

// cardPayload is the webhook body posted to the chat sink. Its shape is an
// adflow-level contract (header, sectioned blocks, dividers) rather than a
// specific vendor's card schema, matching spec.md §4.H's framing: "we
// specify the contract we rely on, not their wire format".
type cardPayload struct {
	Title    string        `json:"title"`
	Sections []cardSection `json:"sections"`
}

type cardSection struct {
	Heading    string      `json:"heading,omitempty"`
	Paragraphs []string    `json:"paragraphs,omitempty"`
	Tables     []cardTable `json:"tables,omitempty"`
}

type cardTable struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// NewChatCard builds a chat-card sink posting to cfg.WebhookURL, capping
// table rows at cfg.ChatTableRowCap.
func NewChatCard(cfg config.LarkConfig) *ChatCard {
	return &ChatCard{webhookURL: cfg.WebhookURL, rowCap: cfg.ChatTableRowCap}
}

// Render posts doc as a single chat card.
func (c *ChatCard) Render(ctx context.Context, doc *model.DocumentModel) (*Result, error) {
	payload := cardPayload{Title: doc.Title}
	result := &Result{Sink: model.SinkChat}

	for _, section := range doc.Sections {
		card := cardSection{Heading: section.Heading, Paragraphs: section.Paragraphs}
		for _, table := range section.Tables {
			truncated, dropped := truncateWithEllipsis(table, c.rowCap)
			card.Tables = append(card.Tables, cardTable{Header: truncated.Header, Rows: truncated.Rows})
			result.TablesSent++
			result.RowsDropped += dropped
		}
		payload.Sections = append(payload.Sections, card)
		result.BlocksSent++
	}

	client := httpClient(chatCallTimeout)
	status, body, err := PostJSON(ctx, client, c.webhookURL, payload)
	if err != nil {
		return nil, fmt.Errorf("chat card post: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("chat card webhook returned %d: %s", status, body)
	}
	return result, nil
}

// truncateWithEllipsis caps table to at most rowCap rows, appending a
// trailing "…" row naming how many rows were dropped when it truncates.
func truncateWithEllipsis(table model.Table, rowCap int) (model.Table, int) {
	if rowCap <= 0 || len(table.Rows) <= rowCap {
		return table, 0
	}

	dropped := len(table.Rows) - rowCap
	out := model.Table{Header: table.Header, Rows: table.Rows[:rowCap]}
	ellipsis := make([]string, len(table.Header))
	ellipsis[0] = fmt.Sprintf("… %d more", dropped)
	out.Rows = append(out.Rows, ellipsis)
	return out, dropped
}
