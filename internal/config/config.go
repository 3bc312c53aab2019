// Package config holds adflow's single typed configuration value, loaded
// from defaults, an optional YAML file, and environment variables (in that
// precedence order) via koanf. No component reaches for a process-wide
// config singleton; Config is constructed once and passed through the
// component graph.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration value for the pipeline.
type Config struct {
	Warehouse     WarehouseConfig     `koanf:"warehouse"`
	Blob          BlobConfig          `koanf:"blob"`
	HMAC          HMACConfig          `koanf:"hmac"`
	SignedBI      SignedBIConfig      `koanf:"signed_bi"`
	BearerREST    BearerRESTConfig    `koanf:"bearer_rest"`
	CookieSession CookieSessionConfig `koanf:"cookie_session"`
	Lark          LarkConfig          `koanf:"lark"`
	Ingest        IngestConfig        `koanf:"ingest"`
	Report        ReportConfig        `koanf:"report"`
	Teams         TeamsConfig         `koanf:"teams"`
	Logging       LoggingConfig       `koanf:"logging"`
	Credential    CredentialConfig    `koanf:"credential"`
}

// WarehouseConfig names the columnar warehouse project and per-source
// dataset identifiers (spec.md §6: BQ_PROJECT_ID, QUICKBI_BQ_DATASET_ID,
// XMP_DATASET_ID).
type WarehouseConfig struct {
	Path             string `koanf:"path"` // local DuckDB file path
	ProjectID        string `koanf:"project_id"`
	QuickBIDatasetID string `koanf:"quickbi_dataset_id"`
	XMPDatasetID     string `koanf:"xmp_dataset_id"`
	Threads          int    `koanf:"threads"`
	MaxMemory        string `koanf:"max_memory"`
}

// BlobConfig names the archive root (spec.md §6: GCS_BUCKET_NAME). No GCS
// SDK exists anywhere in the retrieval pack this module was built from
// (see DESIGN.md); BucketDir stands in as the archive root on local disk.
type BlobConfig struct {
	BucketDir string `koanf:"bucket_dir"`
}

// HMACConfig carries the HMAC-REST provider's signing credentials
// (spec.md §6: ALIYUN_ACCESS_KEY_ID, ALIYUN_ACCESS_KEY_SECRET).
type HMACConfig struct {
	Enabled         bool   `koanf:"enabled"`
	AccessKeyID     string `koanf:"access_key_id"`
	AccessKeySecret string `koanf:"access_key_secret"`
	BaseURL         string `koanf:"base_url"`
}

// SignedBIConfig carries the signed-BI query-service endpoint identifiers
// (spec.md §6: QUICKBI_API_ID, QUICKBI_OVERVIEW_API_ID).
type SignedBIConfig struct {
	Enabled     bool   `koanf:"enabled"`
	BaseURL     string `koanf:"base_url"`
	APIID       string `koanf:"api_id"`
	OverviewAPI string `koanf:"overview_api_id"`
}

// BearerRESTConfig carries the bearer-REST provider's HMAC client
// credentials and interactive-login fallback (spec.md §6: XMP_CLIENT_ID,
// XMP_CLIENT_SECRET, XMP_USERNAME, XMP_PASSWORD).
type BearerRESTConfig struct {
	Enabled      bool   `koanf:"enabled"`
	BaseURL      string `koanf:"base_url"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	Username     string `koanf:"username"`
	Password     string `koanf:"password"`
}

// CookieSessionConfig carries the cookie-session adapter's captured-request
// replay endpoint, once a browser capture has produced one (spec.md §4.B).
type CookieSessionConfig struct {
	Enabled          bool   `koanf:"enabled"`
	CapturedEndpoint string `koanf:"captured_endpoint"`
}

// LarkConfig carries the publisher's app credentials and webhook targets
// (spec.md §6: LARK_APP_ID, LARK_APP_SECRET, LARK_WEBHOOK_URL,
// LARK_ALERT_WEBHOOK).
type LarkConfig struct {
	AppID        string `koanf:"app_id"`
	AppSecret    string `koanf:"app_secret"`
	WebhookURL   string `koanf:"webhook_url"`
	AlertWebhook string `koanf:"alert_webhook"`
	// BaseURL is the document-platform API root the doc sink's resolver and
	// block-writer RPCs are posted against.
	BaseURL string `koanf:"base_url"`
	// DocTarget names the wiki node or document object the weekly report is
	// written into.
	DocTarget string `koanf:"doc_target"`
	// DocTableRowCap is the configurable document-table row cap, observed
	// empirically at 5 per spec.md §9's Open Question.
	DocTableRowCap int `koanf:"doc_table_row_cap"`
	// ChatTableRowCap caps rows rendered into a chat card before an
	// ellipsis row is appended.
	ChatTableRowCap int `koanf:"chat_table_row_cap"`
}

// IngestConfig controls the extraction schedule (spec.md §6: FETCH_YESTERDAY).
type IngestConfig struct {
	Interval         time.Duration `koanf:"interval"`
	DailyMidnightRun bool          `koanf:"daily_midnight_run"`
	FetchYesterday   bool          `koanf:"fetch_yesterday"`
}

// ReportConfig carries the rank-label minimum-spend gates from spec.md
// §4.F.5 and the category-bucket thresholds from §4.F.6.
type ReportConfig struct {
	DailyCronSpec       string  `koanf:"daily_cron"`
	WeeklyCronSpec      string  `koanf:"weekly_cron"`
	IntradayCronSpec    string  `koanf:"intraday_cron"`
	DailyMinSpend       float64 `koanf:"daily_min_spend"`
	WeeklyMinSpend      float64 `koanf:"weekly_min_spend"`
	TopSpendThreshold   float64 `koanf:"top_spend_threshold"`
	TopROASThreshold    float64 `koanf:"top_roas_threshold"`
	PotentialSpendLow   float64 `koanf:"potential_spend_low"`
	PotentialSpendHigh  float64 `koanf:"potential_spend_high"`
	PotentialROAS       float64 `koanf:"potential_roas_threshold"`
	DecliningWoWDrop    float64 `koanf:"declining_wow_drop"`
	LosingSpend         float64 `koanf:"losing_spend_threshold"`
	LosingROAS          float64 `koanf:"losing_roas_threshold"`
	ExcelArchiveEnabled bool    `koanf:"excel_archive_enabled"`
}

// TeamsConfig carries the optimizer -> team membership map used by the
// team-rollup query and the Report Composer's team-grouping rule.
// OptimizerTeam rebuilds it into a one-way lookup on each call (spec.md §9).
type TeamsConfig struct {
	// Membership maps a team name to the optimizers that belong to it.
	Membership map[string][]string `koanf:"membership"`
}

// OptimizerTeam is the rebuilt one-way optimizer -> team lookup.
func (t TeamsConfig) OptimizerTeam() map[string]string {
	out := make(map[string]string)
	for team, optimizers := range t.Membership {
		for _, o := range optimizers {
			out[o] = team
		}
	}
	return out
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// CredentialConfig controls where credential material is persisted and how
// it is protected at rest.
type CredentialConfig struct {
	Dir           string `koanf:"dir"`
	EncryptionKey string `koanf:"encryption_key"` // 32-byte key, base64 or raw
}

// Validate checks required fields and cross-field invariants, returning an
// error describing the first problem found.
func (c *Config) Validate() error {
	if c.Warehouse.Path == "" {
		return fmt.Errorf("warehouse.path is required")
	}
	if c.Blob.BucketDir == "" {
		return fmt.Errorf("blob.bucket_dir is required")
	}
	if c.HMAC.Enabled {
		if c.HMAC.AccessKeyID == "" || c.HMAC.AccessKeySecret == "" {
			return fmt.Errorf("hmac.access_key_id and hmac.access_key_secret are required when hmac.enabled")
		}
	}
	if c.SignedBI.Enabled && c.SignedBI.APIID == "" {
		return fmt.Errorf("signed_bi.api_id is required when signed_bi.enabled")
	}
	if c.BearerREST.Enabled {
		if c.BearerREST.ClientID == "" || c.BearerREST.ClientSecret == "" {
			return fmt.Errorf("bearer_rest.client_id and bearer_rest.client_secret are required when bearer_rest.enabled")
		}
	}
	if c.Lark.WebhookURL == "" {
		return fmt.Errorf("lark.webhook_url is required")
	}
	if c.Lark.AlertWebhook == "" {
		return fmt.Errorf("lark.alert_webhook is required")
	}
	if c.Lark.DocTableRowCap <= 0 {
		return fmt.Errorf("lark.doc_table_row_cap must be positive")
	}
	if c.Credential.Dir == "" {
		return fmt.Errorf("credential.dir is required")
	}
	if len(c.Credential.EncryptionKey) == 0 {
		return fmt.Errorf("credential.encryption_key is required")
	}
	return nil
}
