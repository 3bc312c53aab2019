package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adflow/pipeline/internal/config"
	"github.com/adflow/pipeline/internal/model"
)

type fakeBlobStore struct {
	puts map[string][]byte
}

func (f *fakeBlobStore) Put(_ context.Context, key string, payload []byte) error {
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = payload
	return nil
}

func sampleDoc() *model.DocumentModel {
	return &model.DocumentModel{
		Title: "Daily Performance",
		Sections: []model.Section{
			{
				Heading:    "Summary",
				Paragraphs: []string{"Spend 1000"},
				Tables: []model.Table{{
					Header: []string{"Campaign", "Spend"},
					Rows: [][]string{
						{"a", "100"}, {"b", "90"}, {"c", "80"}, {"d", "70"}, {"e", "60"}, {"f", "50"},
					},
				}},
			},
		},
	}
}

func TestChatCardTruncatesRowsWithEllipsis(t *testing.T) {
	var received cardPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewChatCard(config.LarkConfig{WebhookURL: server.URL, ChatTableRowCap: 3})
	result, err := sink.Render(context.Background(), sampleDoc())
	require.NoError(t, err)
	require.Equal(t, 3, result.RowsDropped)

	require.Len(t, received.Sections[0].Tables[0].Rows, 4) // 3 kept + 1 ellipsis row
	require.Contains(t, received.Sections[0].Tables[0].Rows[3][0], "3 more")
}

func TestNewDocumentSinkWiresBaseURLAndTarget(t *testing.T) {
	sink := NewDocumentSink(config.LarkConfig{
		AppID: "app-1", AppSecret: "secret", BaseURL: "https://open.larksuite.com/open-apis",
		DocTarget: "wikcnExample123", DocTableRowCap: 5,
	})
	require.Equal(t, "wikcnExample123", sink.target)
	require.Equal(t, 5, sink.rowCap)

	resolver, ok := sink.resolver.(*httpDocResolver)
	require.True(t, ok)
	require.Equal(t, "https://open.larksuite.com/open-apis", resolver.baseURL)

	_, ok = sink.writer.(*httpDocWriter)
	require.True(t, ok)
}

func TestChatCardFailsOnNon2xxResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewChatCard(config.LarkConfig{WebhookURL: server.URL, ChatTableRowCap: 5})
	_, err := sink.Render(context.Background(), sampleDoc())
	require.Error(t, err)
}

func TestChunkTableSplitsIntoRowCapGroups(t *testing.T) {
	table := model.Table{Header: []string{"h"}, Rows: [][]string{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}}}
	chunks := chunkTable(table, 2)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0].Rows, 2)
	require.Len(t, chunks[2].Rows, 1)
	for _, c := range chunks {
		require.Equal(t, table.Header, c.Header)
	}
}

func TestExcelWorkbookRendersOneSheetPerSectionAndArchives(t *testing.T) {
	store := &fakeBlobStore{}
	sink := NewExcelWorkbook(store)

	result, err := sink.Render(context.Background(), sampleDoc())
	require.NoError(t, err)
	require.Equal(t, 1, result.TablesSent)
	require.Len(t, store.puts, 1)
	for key := range store.puts {
		require.True(t, strings.HasPrefix(key, "reports/daily_performance_"))
		require.True(t, strings.HasSuffix(key, ".xlsx"))
	}
}

func TestSanitizeSheetNameStripsForbiddenCharsAndTruncates(t *testing.T) {
	require.Equal(t, "a_b_c", sanitizeSheetName("a/b:c", 0))
	require.Equal(t, "Sheet2", sanitizeSheetName("", 1))
	require.Len(t, []rune(sanitizeSheetName(strings.Repeat("x", 50), 0)), excelSheetNameMax)
}

func TestChunkTableReturnsSingleChunkWhenUnderCap(t *testing.T) {
	table := model.Table{Header: []string{"h"}, Rows: [][]string{{"1"}}}
	chunks := chunkTable(table, 5)
	require.Len(t, chunks, 1)
}

type fakeResolver struct {
	documentID string
	err        error
}

func (f *fakeResolver) ResolveDocument(context.Context, string) (string, error) {
	return f.documentID, f.err
}

type fakeWriter struct {
	headings, paragraphs []string
	fills                int
	rateLimitOnce        bool
	failedOnce           bool
}

func (f *fakeWriter) CreateHeading(_ context.Context, _, text string) error {
	f.headings = append(f.headings, text)
	return nil
}

func (f *fakeWriter) CreateParagraph(_ context.Context, _, text string) error {
	f.paragraphs = append(f.paragraphs, text)
	return nil
}

func (f *fakeWriter) CreateEmptyTable(context.Context, string, int, int) (string, error) {
	return "table-1", nil
}

func (f *fakeWriter) FillCell(_ context.Context, _, _ string, _, _ int, _ string) error {
	f.fills++
	if f.rateLimitOnce && !f.failedOnce {
		f.failedOnce = true
		return &docRPCError{status: 429, body: "rate limited"}
	}
	return nil
}

func TestDocumentRenderWritesHeadingsAndFillsEveryCell(t *testing.T) {
	resolver := &fakeResolver{documentID: "doc-1"}
	writer := &fakeWriter{}
	doc := NewDocument(config.LarkConfig{DocTableRowCap: 10}, "token-1", resolver, writer)

	result, err := doc.Render(context.Background(), sampleDoc())
	require.NoError(t, err)
	require.Equal(t, 1, result.TablesSent)
	require.Contains(t, writer.headings, "Daily Performance")
	require.Contains(t, writer.headings, "Summary")
	require.Equal(t, 14, writer.fills) // 2 header cells + 6 rows * 2 cols
}

func TestDocumentRenderFailsOnUnsupportedTarget(t *testing.T) {
	resolver := &fakeResolver{err: ErrUnsupportedTarget}
	doc := NewDocument(config.LarkConfig{}, "wiki-node-1", resolver, &fakeWriter{})

	_, err := doc.Render(context.Background(), sampleDoc())
	require.ErrorIs(t, err, ErrUnsupportedTarget)
}

func TestDocumentRenderRetriesOnRateLimit(t *testing.T) {
	resolver := &fakeResolver{documentID: "doc-1"}
	writer := &fakeWriter{rateLimitOnce: true}
	doc := NewDocument(config.LarkConfig{DocTableRowCap: 10}, "token-1", resolver, writer)

	_, err := doc.Render(context.Background(), sampleDoc())
	require.NoError(t, err)
	require.True(t, writer.failedOnce)
}
