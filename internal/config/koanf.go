package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/adflow/config.yaml",
	"/etc/adflow/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Warehouse: WarehouseConfig{
			Path:      "data/adflow.duckdb",
			MaxMemory: "2GB",
		},
		Blob: BlobConfig{
			BucketDir: "data/blob",
		},
		HMAC: HMACConfig{
			Enabled: false,
			BaseURL: "https://api.alimama.com",
		},
		SignedBI: SignedBIConfig{
			Enabled: false,
		},
		BearerREST: BearerRESTConfig{
			Enabled: false,
		},
		CookieSession: CookieSessionConfig{
			Enabled: false,
		},
		Lark: LarkConfig{
			DocTableRowCap:  5,
			ChatTableRowCap: 10,
			BaseURL:         "https://open.larksuite.com/open-apis",
		},
		Ingest: IngestConfig{
			Interval:         time.Hour,
			DailyMidnightRun: true,
			FetchYesterday:   false,
		},
		Report: ReportConfig{
			DailyCronSpec:      "5 9 * * *",
			WeeklyCronSpec:     "5 9 * * 1",
			IntradayCronSpec:   "0 * * * *",
			DailyMinSpend:      100,
			WeeklyMinSpend:     1000,
			TopSpendThreshold:  10000,
			TopROASThreshold:   0.40,
			PotentialSpendLow:  1000,
			PotentialSpendHigh: 10000,
			PotentialROAS:      0.50,
			DecliningWoWDrop:   -0.10,
			LosingSpend:        1000,
			LosingROAS:         0.25,
		},
		Teams: TeamsConfig{
			Membership: map[string][]string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Credential: CredentialConfig{
			Dir: "data/credentials",
		},
	}
}

// Load layers defaults, an optional YAML file, and environment variables (in
// that precedence order) into a validated Config.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// legacyEnvAliases maps the literal environment variable names from
// spec.md §6 onto the koanf dotted paths they populate. Anything not listed
// here falls back to the generic SECTION_FIELD -> section.field transform.
var legacyEnvAliases = map[string]string{
	"BQ_PROJECT_ID":            "warehouse.project_id",
	"QUICKBI_BQ_DATASET_ID":    "warehouse.quickbi_dataset_id",
	"XMP_DATASET_ID":           "warehouse.xmp_dataset_id",
	"GCS_BUCKET_NAME":          "blob.bucket_dir",
	"ALIYUN_ACCESS_KEY_ID":     "hmac.access_key_id",
	"ALIYUN_ACCESS_KEY_SECRET": "hmac.access_key_secret",
	"QUICKBI_API_ID":           "signed_bi.api_id",
	"QUICKBI_OVERVIEW_API_ID":  "signed_bi.overview_api_id",
	"XMP_CLIENT_ID":            "bearer_rest.client_id",
	"XMP_CLIENT_SECRET":        "bearer_rest.client_secret",
	"XMP_USERNAME":             "bearer_rest.username",
	"XMP_PASSWORD":             "bearer_rest.password",
	"LARK_APP_ID":              "lark.app_id",
	"LARK_APP_SECRET":          "lark.app_secret",
	"LARK_WEBHOOK_URL":         "lark.webhook_url",
	"LARK_ALERT_WEBHOOK":       "lark.alert_webhook",
	"FETCH_YESTERDAY":          "ingest.fetch_yesterday",
}

// envTransformFunc maps environment variable names onto koanf config paths,
// preferring the literal names spec.md §6 defines and falling back to a
// generic SECTION_FIELD -> section.field transform for everything else.
func envTransformFunc(key string) string {
	if path, ok := legacyEnvAliases[key]; ok {
		return path
	}
	return strings.ToLower(strings.ReplaceAll(key, "_", "."))
}
