package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"

	"github.com/adflow/pipeline/internal/credential"
	"github.com/adflow/pipeline/internal/metrics"
	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/pipeline/errs"
)

const signedBISourceName = "signed_bi"

// signedBISchedule is the literal [10s, 30s, 60s] retry table spec.md §4.B
// mandates for the signed-BI adapter's transient failures.
var signedBISchedule = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}

// fixedSchedule drives backoff.Retry through an explicit delay table rather
// than a computed curve, implementing backoff.BackOff.
type fixedSchedule struct {
	delays []time.Duration
	next   int
}

func (f *fixedSchedule) NextBackOff() time.Duration {
	if f.next >= len(f.delays) {
		return backoff.Stop
	}
	d := f.delays[f.next]
	f.next++
	return d
}

// SignedBIAdapter submits (api_id, conditions_json) queries against a
// vendor BI query service and retries transient failures on the fixed
// [10s, 30s, 60s] schedule.
type SignedBIAdapter struct {
	BaseURL     string
	APIID       string
	OverviewAPI string
	HTTPClient  *http.Client
	Credentials *credential.Store
	Clock       func() time.Time
}

// NewSignedBIAdapter builds a SignedBIAdapter with a 3-minute per-query
// timeout, matching spec.md §5's BI-query ceiling.
func NewSignedBIAdapter(baseURL, apiID, overviewAPI string, store *credential.Store) *SignedBIAdapter {
	return &SignedBIAdapter{
		BaseURL:     baseURL,
		APIID:       apiID,
		OverviewAPI: overviewAPI,
		HTTPClient:  &http.Client{Timeout: 3 * time.Minute},
		Credentials: store,
		Clock:       time.Now,
	}
}

func (a *SignedBIAdapter) Name() string { return signedBISourceName }

type biQueryRequest struct {
	APIID      string `json:"api_id"`
	Conditions string `json:"conditions_json"`
}

type biQueryResponse struct {
	Code int               `json:"code"`
	Msg  string            `json:"msg"`
	Data []editorRollupRow `json:"data"`
}

type editorRollupRow struct {
	EditorName       string  `json:"editor_name"`
	Channel          string  `json:"channel"`
	StatDate         string  `json:"stat_date"`
	Spend            float64 `json:"spend"`
	Revenue          float64 `json:"revenue"`
	ROAS             float64 `json:"roas"`
	MaterialCount    int64   `json:"material_count"`
	HotCount         int64   `json:"hot_count"`
	HotRate          float64 `json:"hot_rate"`
	TopMaterial      string  `json:"top_material"`
	TopMaterialSpend float64 `json:"top_material_spend"`
}

// Extract submits one conditioned query per window and normalizes the
// editor roll-up rows it returns. The signed-BI service has no pagination
// contract in spec.md §4.B, so one request covers the whole window.
func (a *SignedBIAdapter) Extract(ctx context.Context, window model.Window) (Result, error) {
	if _, err := a.Credentials.Get(ctx, signedBISourceName); err != nil {
		return Result{}, err
	}

	batchID := model.NewBatchID(a.Clock())

	conditions, err := json.Marshal(map[string]string{
		"start_time": window.Start.Format("2006-01-02"),
		"end_time":   window.End.Format("2006-01-02"),
	})
	if err != nil {
		return Result{}, errs.Wrap(errs.KindInvalid, signedBISourceName, err)
	}

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		raw, fetchErr := a.query(ctx, a.APIID, string(conditions))
		if fetchErr != nil {
			if errs.Is(fetchErr, errs.KindTransient) || errs.Is(fetchErr, errs.KindRateLimited) {
				metrics.AdapterRetries.WithLabelValues(signedBISourceName, "transient").Inc()
				return nil, fetchErr
			}
			return nil, backoff.Permanent(fetchErr)
		}
		return raw, nil
	}, backoff.WithBackOff(&fixedSchedule{delays: signedBISchedule}))
	if err != nil {
		return Result{}, unwrapBackoffPermanent(err)
	}
	fetchedAt := a.Clock()

	var resp biQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, errs.Wrap(errs.KindInvalid, signedBISourceName, err)
	}
	if resp.Code != 0 {
		return Result{}, errs.New(errs.KindInvalid, signedBISourceName, resp.Msg)
	}

	rows := make([]any, 0, len(resp.Data))
	for _, r := range resp.Data {
		statDate, parseErr := time.ParseInLocation("2006-01-02", r.StatDate, model.OperationalLocation)
		if parseErr != nil {
			statDate = window.Start
		}
		rows = append(rows, model.EditorRollup{
			FactRow: model.FactRow{
				StatDate:  statDate,
				BatchID:   batchID,
				FetchedAt: fetchedAt,
				Channel:   model.Channel(r.Channel),
			},
			EditorName:       r.EditorName,
			Spend:            r.Spend,
			Revenue:          r.Revenue,
			ROAS:             r.ROAS,
			MaterialCount:    r.MaterialCount,
			HotCount:         r.HotCount,
			HotRate:          r.HotRate,
			TopMaterial:      r.TopMaterial,
			TopMaterialSpend: r.TopMaterialSpend,
		})
	}

	raw := []model.RawPayload{{BatchID: batchID, Source: signedBISourceName, FetchedAt: fetchedAt, Body: body}}
	return Result{Rows: rows, Raw: raw}, nil
}

func (a *SignedBIAdapter) query(ctx context.Context, apiID, conditions string) ([]byte, error) {
	reqBody, err := json.Marshal(biQueryRequest{APIID: apiID, Conditions: conditions})
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalid, signedBISourceName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/query", newJSONReader(reqBody))
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, signedBISourceName, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, signedBISourceName, err)
	}
	defer resp.Body.Close()

	if classified := ClassifyHTTPStatus(signedBISourceName, resp.StatusCode); classified != nil {
		return nil, classified
	}

	return readResponseBody(resp)
}

const signedBIOverviewSourceName = "signed_bi_overview"

// SignedBIOverviewAdapter submits the overview-level signed-BI query
// (api_id = SignedBIConfig.OverviewAPI) and normalizes the response into
// intraday spend/ROAS snapshots. Split out from SignedBIAdapter because one
// Adapter.Extract call can only produce one warehouse row shape, and the
// overview endpoint returns a different shape than the per-editor one.
type SignedBIOverviewAdapter struct {
	inner *SignedBIAdapter
}

// NewSignedBIOverviewAdapter wraps inner to query its OverviewAPI endpoint
// instead of its per-editor APIID.
func NewSignedBIOverviewAdapter(inner *SignedBIAdapter) *SignedBIOverviewAdapter {
	return &SignedBIOverviewAdapter{inner: inner}
}

func (a *SignedBIOverviewAdapter) Name() string { return signedBIOverviewSourceName }

type overviewQueryResponse struct {
	Code int                   `json:"code"`
	Msg  string                `json:"msg"`
	Data []overviewSnapshotRow `json:"data"`
}

type overviewSnapshotRow struct {
	SnapshotTime string  `json:"snapshot_time"`
	Hour         int     `json:"hour"`
	TotalSpend   float64 `json:"total_spend"`
	D0ROAS       float64 `json:"d0_roas"`
}

// Extract submits one conditioned query against the overview API for
// window and normalizes the hourly snapshot rows it returns, retrying
// transient failures on the same fixed [10s, 30s, 60s] schedule as the
// per-editor query.
func (a *SignedBIOverviewAdapter) Extract(ctx context.Context, window model.Window) (Result, error) {
	if _, err := a.inner.Credentials.Get(ctx, signedBISourceName); err != nil {
		return Result{}, err
	}

	batchID := model.NewBatchID(a.inner.Clock())

	conditions, err := json.Marshal(map[string]string{
		"start_time": window.Start.Format("2006-01-02"),
		"end_time":   window.End.Format("2006-01-02"),
	})
	if err != nil {
		return Result{}, errs.Wrap(errs.KindInvalid, signedBIOverviewSourceName, err)
	}

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		raw, fetchErr := a.inner.query(ctx, a.inner.OverviewAPI, string(conditions))
		if fetchErr != nil {
			if errs.Is(fetchErr, errs.KindTransient) || errs.Is(fetchErr, errs.KindRateLimited) {
				metrics.AdapterRetries.WithLabelValues(signedBIOverviewSourceName, "transient").Inc()
				return nil, fetchErr
			}
			return nil, backoff.Permanent(fetchErr)
		}
		return raw, nil
	}, backoff.WithBackOff(&fixedSchedule{delays: signedBISchedule}))
	if err != nil {
		return Result{}, unwrapBackoffPermanent(err)
	}
	fetchedAt := a.inner.Clock()

	var resp overviewQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, errs.Wrap(errs.KindInvalid, signedBIOverviewSourceName, err)
	}
	if resp.Code != 0 {
		return Result{}, errs.New(errs.KindInvalid, signedBIOverviewSourceName, resp.Msg)
	}

	rows := make([]any, 0, len(resp.Data))
	for _, r := range resp.Data {
		snapshotTime, parseErr := time.ParseInLocation("2006-01-02 15:04:05", r.SnapshotTime, model.OperationalLocation)
		if parseErr != nil {
			snapshotTime = window.Start.Add(time.Duration(r.Hour) * time.Hour)
		}
		rows = append(rows, model.HourlySnapshot{
			SnapshotTime: snapshotTime,
			Hour:         r.Hour,
			TotalSpend:   r.TotalSpend,
			D0ROAS:       r.D0ROAS,
			BatchID:      batchID,
		})
	}

	raw := []model.RawPayload{{BatchID: batchID, Source: signedBIOverviewSourceName, FetchedAt: fetchedAt, Body: body}}
	return Result{Rows: rows, Raw: raw}, nil
}

func unwrapBackoffPermanent(err error) error {
	if perm, ok := err.(interface{ Unwrap() error }); ok {
		if inner := perm.Unwrap(); inner != nil {
			return inner
		}
	}
	return err
}
