package provider

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/adflow/pipeline/internal/credential"
	"github.com/adflow/pipeline/internal/metrics"
	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/pipeline/errs"
)

const cookieSessionSourceName = "cookie_session"

// BrowserController drives the headless browser used to intercept a
// captured XHR request when no request template has been saved yet. It is
// the fallback path spec.md §4.B describes for the cookie-session adapter
// before the captured-request replay shortcut is available; driving an
// actual browser is out of scope (spec.md §1), so this module only defines
// the boundary a production controller must satisfy.
type BrowserController interface {
	// InterceptRequest navigates to a data page and returns the first
	// outgoing request carrying an Authorization: Bearer header.
	InterceptRequest(ctx context.Context, hint string) (authHeader string, endpoint string, err error)
}

// NoBrowserController is the production boundary: intercepting a captured
// XHR request requires a browser automation harness this module does not
// carry a dependency for (no example repo in the retrieval pack drives a
// headless browser, matching credential.HeadlessDriver's boundary).
// InterceptRequest always fails so callers escalate to interactive capture
// instead of hanging.
type NoBrowserController struct{}

func (NoBrowserController) InterceptRequest(_ context.Context, hint string) (string, string, error) {
	return "", "", errs.New(errs.KindAuthInteractive, cookieSessionSourceName, "browser interception unavailable, hint: "+hint)
}

// materialQueryResponse is one page of per-material rows the cookie-session
// adapter extracts.
type materialQueryResponse struct {
	List []materialQueryRow `json:"list"`
}

type materialQueryRow struct {
	MaterialID   string  `json:"material_id"`
	DesignerName string  `json:"designer_name"`
	StatDate     string  `json:"stat_date"`
	Cost         float64 `json:"cost"`
	Impression   int64   `json:"impression"`
	Click        int64   `json:"click"`
}

// CookieSessionAdapter replays a captured Authorization header against the
// underlying XHR endpoint once available, falling back to the browser
// controller to (re-)capture it.
type CookieSessionAdapter struct {
	CapturedEndpoint string
	Browser          BrowserController
	Hint             string
	HTTPClient       *http.Client
	Credentials      *credential.Store
	Clock            func() time.Time
}

// NewCookieSessionAdapter builds a CookieSessionAdapter that replays
// endpoint directly once a capture exists, consulting browser only when no
// captured endpoint is set.
func NewCookieSessionAdapter(endpoint string, browser BrowserController, hint string, store *credential.Store) *CookieSessionAdapter {
	return &CookieSessionAdapter{
		CapturedEndpoint: endpoint,
		Browser:          browser,
		Hint:             hint,
		HTTPClient:       &http.Client{Timeout: 3 * time.Minute},
		Credentials:      store,
		Clock:            time.Now,
	}
}

func (a *CookieSessionAdapter) Name() string { return cookieSessionSourceName }

// Extract fetches material-performance rows for window, paginating by
// replaying the captured request with incrementing page numbers.
func (a *CookieSessionAdapter) Extract(ctx context.Context, window model.Window) (Result, error) {
	cred, err := a.Credentials.Get(ctx, cookieSessionSourceName)
	if err != nil {
		return Result{}, err
	}

	batchID := model.NewBatchID(a.Clock())
	var raw []model.RawPayload

	rows, err := Paginate(ctx, cookieSessionSourceName, func(ctx context.Context, page int) (Page[model.MaterialFact], error) {
		body, err := WithPageRetry(ctx, cookieSessionSourceName, nil, func(ctx context.Context) ([]byte, error) {
			return a.fetchPage(ctx, cred, window, page)
		})
		if err != nil {
			return Page[model.MaterialFact]{}, err
		}
		fetchedAt := a.Clock()

		var resp materialQueryResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return Page[model.MaterialFact]{}, errs.Wrap(errs.KindInvalid, cookieSessionSourceName, err)
		}

		raw = append(raw, model.RawPayload{BatchID: batchID, Source: cookieSessionSourceName, FetchedAt: fetchedAt, Body: body})

		pageRows := make([]model.MaterialFact, 0, len(resp.List))
		for _, r := range resp.List {
			statDate, parseErr := time.ParseInLocation("2006-01-02", r.StatDate, model.OperationalLocation)
			if parseErr != nil {
				statDate = window.Start
			}
			pageRows = append(pageRows, model.MaterialFact{
				FactRow: model.FactRow{
					StatDate:  statDate,
					BatchID:   batchID,
					FetchedAt: fetchedAt,
					Channel:   model.ChannelOther,
				},
				MaterialID:   r.MaterialID,
				DesignerName: r.DesignerName,
				Cost:         r.Cost,
				Impression:   r.Impression,
				Click:        r.Click,
			})
		}

		return Page[model.MaterialFact]{Rows: pageRows, More: len(resp.List) > 0}, nil
	}, func(int) {
		metrics.AdapterPages.WithLabelValues(cookieSessionSourceName).Inc()
	})
	if err != nil {
		return Result{}, err
	}

	anyRows := make([]any, len(rows))
	for i, r := range rows {
		anyRows[i] = r
	}
	return Result{Rows: anyRows, Raw: raw}, nil
}

func (a *CookieSessionAdapter) fetchPage(ctx context.Context, cred model.Credential, window model.Window, page int) ([]byte, error) {
	endpoint := a.CapturedEndpoint
	if endpoint == "" {
		if a.Browser == nil {
			return nil, errs.New(errs.KindAuthInteractive, cookieSessionSourceName, "no captured endpoint and no browser controller configured")
		}
		authHeader, capturedEndpoint, err := a.Browser.InterceptRequest(ctx, a.Hint)
		if err != nil {
			return nil, errs.Wrap(errs.KindAuthInteractive, cookieSessionSourceName, err)
		}
		a.CapturedEndpoint = capturedEndpoint
		endpoint = capturedEndpoint
		cred.TokenMaterial = authHeader
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, cookieSessionSourceName, err)
	}
	q := req.URL.Query()
	q.Set("start_time", window.Start.Format("2006-01-02"))
	q.Set("end_time", window.End.Format("2006-01-02"))
	q.Set("page", strconv.Itoa(page))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", cred.TokenMaterial)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, cookieSessionSourceName, err)
	}
	defer resp.Body.Close()

	if classified := ClassifyHTTPStatus(cookieSessionSourceName, resp.StatusCode); classified != nil {
		return nil, classified
	}

	return readResponseBody(resp)
}
