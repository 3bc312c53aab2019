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

const bearerRESTSourceName = "bearer_rest"

// QueryLevel scopes a bearer-REST query to one entity granularity.
type QueryLevel string

const (
	LevelDesigner  QueryLevel = "designer"
	LevelOptimizer QueryLevel = "optimizer"
	LevelAccount   QueryLevel = "account"
	LevelCampaign  QueryLevel = "campaign"
	LevelAd        QueryLevel = "ad"
)

// consecutiveEmptyPageCap stops pagination after this many back-to-back
// empty pages, the second safety bound spec.md §4.B names alongside the
// 500-page hard cap.
const consecutiveEmptyPageCap = 3

const bearerPageSize = 100

// BearerRESTAdapter sends level-scoped queries authenticated with a
// long-lived bearer token harvested from a browser session.
type BearerRESTAdapter struct {
	BaseURL     string
	Level       QueryLevel
	HTTPClient  *http.Client
	Credentials *credential.Store
	Clock       func() time.Time
}

// NewBearerRESTAdapter builds a BearerRESTAdapter scoped to level.
func NewBearerRESTAdapter(baseURL string, level QueryLevel, store *credential.Store) *BearerRESTAdapter {
	return &BearerRESTAdapter{
		BaseURL:     baseURL,
		Level:       level,
		HTTPClient:  &http.Client{Timeout: 3 * time.Minute},
		Credentials: store,
		Clock:       time.Now,
	}
}

func (a *BearerRESTAdapter) Name() string { return bearerRESTSourceName }

type campaignQueryResponse struct {
	List  []campaignQueryRow `json:"list"`
	Total int                `json:"total"`
}

type campaignQueryRow struct {
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name"`
	Channel      string  `json:"channel"`
	Country      string  `json:"country"`
	StatDate     string  `json:"stat_date"`
	Spend        float64 `json:"spend"`
	Revenue      float64 `json:"revenue"`
	Impressions  int64   `json:"impressions"`
	Clicks       int64   `json:"clicks"`
}

// Extract pages through the bearer-REST campaign query until a short page,
// the server's advertised total, or the empty-page/page-count safety caps
// are reached.
func (a *BearerRESTAdapter) Extract(ctx context.Context, window model.Window) (Result, error) {
	cred, err := a.Credentials.Get(ctx, bearerRESTSourceName)
	if err != nil {
		return Result{}, err
	}

	batchID := model.NewBatchID(a.Clock())
	var raw []model.RawPayload
	var seenTotal int
	consecutiveEmpty := 0

	rows, err := Paginate(ctx, bearerRESTSourceName, func(ctx context.Context, page int) (Page[model.CampaignFact], error) {
		refresh := func(ctx context.Context) error {
			refreshed, refreshErr := a.Credentials.Get(ctx, bearerRESTSourceName)
			if refreshErr != nil {
				return refreshErr
			}
			cred = refreshed
			return nil
		}

		body, err := WithPageRetry(ctx, bearerRESTSourceName, refresh, func(ctx context.Context) ([]byte, error) {
			return a.fetchPage(ctx, cred, window, page)
		})
		if err != nil {
			return Page[model.CampaignFact]{}, err
		}
		fetchedAt := a.Clock()

		var resp campaignQueryResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return Page[model.CampaignFact]{}, errs.Wrap(errs.KindInvalid, bearerRESTSourceName, err)
		}
		seenTotal = resp.Total

		raw = append(raw, model.RawPayload{BatchID: batchID, Source: bearerRESTSourceName, FetchedAt: fetchedAt, Body: body})

		if len(resp.List) == 0 {
			consecutiveEmpty++
		} else {
			consecutiveEmpty = 0
		}

		pageRows := make([]model.CampaignFact, 0, len(resp.List))
		for _, r := range resp.List {
			statDate, parseErr := time.ParseInLocation("2006-01-02", r.StatDate, model.OperationalLocation)
			if parseErr != nil {
				statDate = window.Start
			}
			pageRows = append(pageRows, model.CampaignFact{
				FactRow: model.FactRow{
					StatDate:  statDate,
					BatchID:   batchID,
					FetchedAt: fetchedAt,
					Channel:   model.Channel(r.Channel),
				},
				CampaignID:   r.CampaignID,
				CampaignName: r.CampaignName,
				Country:      r.Country,
				Spend:        r.Spend,
				Revenue:      r.Revenue,
				Impressions:  r.Impressions,
				Clicks:       r.Clicks,
			})
		}

		reachedTotal := seenTotal > 0 && page*bearerPageSize >= seenTotal
		more := len(resp.List) == bearerPageSize && consecutiveEmpty < consecutiveEmptyPageCap && !reachedTotal

		return Page[model.CampaignFact]{Rows: pageRows, More: more}, nil
	}, func(int) {
		metrics.AdapterPages.WithLabelValues(bearerRESTSourceName).Inc()
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

func (a *BearerRESTAdapter) fetchPage(ctx context.Context, cred model.Credential, window model.Window, page int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/query", http.NoBody)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, bearerRESTSourceName, err)
	}

	q := req.URL.Query()
	q.Set("level", string(a.Level))
	q.Set("start_time", window.Start.Format("2006-01-02"))
	q.Set("end_time", window.End.Format("2006-01-02"))
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(bearerPageSize))
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Authorization", "Bearer "+cred.TokenMaterial)
	req.Header.Set("Accept", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, bearerRESTSourceName, err)
	}
	defer resp.Body.Close()

	if classified := ClassifyHTTPStatus(bearerRESTSourceName, resp.StatusCode); classified != nil {
		return nil, classified
	}

	return readResponseBody(resp)
}
