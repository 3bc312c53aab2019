// Package model holds the shared data types that flow through the ingestion
// and reporting pipeline: batch identifiers, per-source fact rows, credential
// records, raw payloads, and report specifications.
package model

import (
	"fmt"
	"time"
)

// Channel enumerates the advertising platform family a fact row belongs to.
type Channel string

const (
	ChannelFacebook Channel = "facebook"
	ChannelTikTok   Channel = "tiktok"
	ChannelOther    Channel = "other"
)

// BatchIDLayout is the wall-clock format batch identifiers are rendered in,
// always in the pipeline's operational time zone (UTC+8).
const BatchIDLayout = "20060102_150405"

// OperationalLocation is UTC+8, the timezone every batch_id, "today", and
// "yesterday" computation in the pipeline is anchored to.
var OperationalLocation = time.FixedZone("UTC+8", 8*60*60)

// NewBatchID formats t (already in OperationalLocation, or converted to it)
// as a batch identifier. BatchIDs sort lexicographically identically to the
// wall-clock times they name.
func NewBatchID(t time.Time) string {
	return t.In(OperationalLocation).Format(BatchIDLayout)
}

// NowBatchID returns the batch ID for the current instant.
func NowBatchID() string {
	return NewBatchID(time.Now())
}

// Window is a closed calendar window [Start, End], both ends inclusive, used to
// scope extraction and query requests.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days spanned by the window, inclusive.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// FactRow is the common envelope every source-specific row embeds.
type FactRow struct {
	StatDate  time.Time `json:"stat_date"`
	BatchID   string    `json:"batch_id"`
	FetchedAt time.Time `json:"fetched_at"`
	Channel   Channel   `json:"channel"`
}

// AdSpendFact is the ad-spend row shape from the HMAC-REST provider.
type AdSpendFact struct {
	FactRow
	CampaignID       string         `json:"campaign_id"`
	CampaignName     string         `json:"campaign_name"`
	Optimizer        string         `json:"optimizer"`
	Country          string         `json:"country"`
	Spend            float64        `json:"spend"`
	NewUserRevenue   float64        `json:"new_user_revenue"`
	MediaUserRevenue float64        `json:"media_user_revenue"`
	Impressions      int64          `json:"impressions"`
	Clicks           int64          `json:"clicks"`
	Installs         int64          `json:"installs"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// Revenue returns the combined new-user and media-user revenue for the row.
func (a AdSpendFact) Revenue() float64 {
	return a.NewUserRevenue + a.MediaUserRevenue
}

// EditorRollup is the per-editor creative-performance roll-up row shape.
type EditorRollup struct {
	FactRow
	EditorName       string         `json:"editor_name"`
	Spend            float64        `json:"spend"`
	Revenue          float64        `json:"revenue"`
	ROAS             float64        `json:"roas"`
	MaterialCount    int64          `json:"material_count"`
	HotCount         int64          `json:"hot_count"`
	HotRate          float64        `json:"hot_rate"`
	TopMaterial      string         `json:"top_material"`
	TopMaterialSpend float64        `json:"top_material_spend"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// CampaignFact is the internal ad-management campaign row shape.
type CampaignFact struct {
	FactRow
	CampaignID   string         `json:"campaign_id"`
	CampaignName string         `json:"campaign_name"`
	Country      string         `json:"country"`
	Spend        float64        `json:"spend"`
	Revenue      float64        `json:"revenue"`
	Impressions  int64          `json:"impressions"`
	Clicks       int64          `json:"clicks"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// MaterialFact is the per-creative-material row shape.
type MaterialFact struct {
	FactRow
	MaterialID   string         `json:"material_id"`
	DesignerName string         `json:"designer_name"`
	Cost         float64        `json:"cost"`
	Impression   int64          `json:"impression"`
	Click        int64          `json:"click"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// DramaMapping is the drama_id -> drama_name functional mapping row. It is
// upserted, never appended with history: DramaID is the unique key.
type DramaMapping struct {
	DramaID   string `json:"drama_id"`
	DramaName string `json:"drama_name"`
}

// HourlySnapshot is the intraday spend/ROAS snapshot row shape.
type HourlySnapshot struct {
	SnapshotTime time.Time `json:"snapshot_time"`
	Hour         int       `json:"hour"`
	TotalSpend   float64   `json:"total_spend"`
	D0ROAS       float64   `json:"d0_roas"`
	BatchID      string    `json:"batch_id"`
}

// Credential is a provider's stored authentication material.
type Credential struct {
	Provider             string    `json:"provider"`
	TokenMaterial        string    `json:"token_material"`
	CreatedAt            time.Time `json:"created_at"`
	ValidDays            int       `json:"valid_days"`
	RefreshThresholdDays int       `json:"refresh_threshold_days"`
}

// Stale reports whether the credential should be refreshed before reuse:
// now - created_at >= valid_days - refresh_threshold_days.
func (c Credential) Stale(now time.Time) bool {
	deadline := c.CreatedAt.Add(time.Duration(c.ValidDays-c.RefreshThresholdDays) * 24 * time.Hour)
	return !now.Before(deadline)
}

// RawPayload is the opaque response document a provider returned, tagged
// with the batch metadata it was captured under.
type RawPayload struct {
	BatchID   string    `json:"batch_id"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Body      []byte    `json:"-"`
}

// BlobKey is the deterministic archive path for a raw payload.
func (p RawPayload) BlobKey() string {
	return fmt.Sprintf("%s/batch_%s/data.json", p.Source, p.BatchID)
}

// ReportKind enumerates the cadence a report is built for.
type ReportKind string

const (
	ReportDaily    ReportKind = "daily"
	ReportWeekly   ReportKind = "weekly"
	ReportIntraday ReportKind = "intraday"
)

// Sink enumerates the publication target for a report.
type Sink string

const (
	SinkChat  Sink = "chat"
	SinkDoc   Sink = "doc"
	SinkExcel Sink = "excel"
)

// Audience scopes who a report is composed for.
type Audience string

const (
	AudienceTeam Audience = "team"
	AudienceAll  Audience = "all"
)

// ReportSpec describes one report job.
type ReportSpec struct {
	Kind     ReportKind
	Window   Window
	Sink     Sink
	Audience Audience
	Team     string // populated when Audience == AudienceTeam
}

// DocumentModel is the sink-agnostic tree a Report Composer produces;
// rendering into a vendor-specific shape happens in internal/publish.
type DocumentModel struct {
	Title    string
	Sections []Section
}

// Section is one heading plus its paragraphs and tables.
type Section struct {
	Heading    string
	Paragraphs []string
	Tables     []Table
}

// Table is a header row plus data rows, rendered by a Sink with its own
// row-cap and chunking rules.
type Table struct {
	Header []string
	Rows   [][]string
}

// Warning is a non-fatal condition surfaced to the Alarm path without
// aborting the batch or report it was raised in.
type Warning struct {
	Source  string
	Kind    string
	Message string
}
