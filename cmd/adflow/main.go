// Command adflow runs the marketing-analytics ingestion and reporting
// pipeline: one-shot CLI jobs for ad-hoc ingest/report runs, and a `serve`
// subcommand that runs the same jobs on a supervised, fixed-interval
// schedule.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/adflow/pipeline/internal/batch"
	"github.com/adflow/pipeline/internal/blob"
	"github.com/adflow/pipeline/internal/config"
	"github.com/adflow/pipeline/internal/credential"
	"github.com/adflow/pipeline/internal/logging"
	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/pipeline/errs"
	"github.com/adflow/pipeline/internal/provider"
	"github.com/adflow/pipeline/internal/publish"
	"github.com/adflow/pipeline/internal/report"
	"github.com/adflow/pipeline/internal/schedule"
	"github.com/adflow/pipeline/internal/supervisor"
	"github.com/adflow/pipeline/internal/warehouse"
)

// Exit codes per spec.md §6.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return exitUsage
	}

	if args[0] == "config" {
		if len(args) == 2 && args[1] == "validate" {
			return cmdConfigValidate()
		}
		printUsage()
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return exitUsage
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})

	app, err := buildApp(cfg)
	if err != nil {
		logging.Error().Err(err).Msg("failed to initialize pipeline components")
		return exitUsage
	}
	defer app.warehouse.Close()

	ctx := context.Background()

	switch args[0] {
	case "ingest-now":
		return app.runJob(ctx, "ingest-now", func(ctx context.Context) error {
			day := time.Now().In(model.OperationalLocation)
			if app.cfg.Ingest.FetchYesterday {
				day = day.AddDate(0, 0, -1)
			}
			return app.ingest(ctx, dayWindow(day))
		})

	case "ingest-for-date":
		if len(args) != 2 {
			printUsage()
			return exitUsage
		}
		day, err := parseYYYYMMDD(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitUsage
		}
		return app.runJob(ctx, "ingest-for-date", func(ctx context.Context) error {
			return app.ingest(ctx, dayWindow(day))
		})

	case "report-daily":
		if len(args) != 2 {
			printUsage()
			return exitUsage
		}
		day, err := parseDashDate(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitUsage
		}
		return app.runJob(ctx, "report-daily", func(ctx context.Context) error {
			return app.buildAndPublish(ctx, model.ReportSpec{
				Kind: model.ReportDaily, Window: dayWindow(day), Sink: model.SinkChat, Audience: model.AudienceAll,
			})
		})

	case "report-weekly":
		if len(args) < 2 {
			printUsage()
			return exitUsage
		}
		day, err := parseDashDate(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitUsage
		}
		days := 7
		if len(args) == 4 && args[2] == "--days" {
			n, err := strconv.Atoi(args[3])
			if err != nil || n <= 0 {
				fmt.Fprintln(os.Stderr, "--days must be a positive integer")
				return exitUsage
			}
			days = n
		}
		return app.runJob(ctx, "report-weekly", func(ctx context.Context) error {
			window := model.Window{Start: day.AddDate(0, 0, -(days - 1)), End: day}
			return app.buildAndPublish(ctx, model.ReportSpec{
				Kind: model.ReportWeekly, Window: window, Sink: model.SinkDoc, Audience: model.AudienceAll,
			})
		})

	case "backfill-field":
		if len(args) < 2 {
			printUsage()
			return exitUsage
		}
		day, err := parseYYYYMMDD(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitUsage
		}
		var batchID string
		if len(args) == 4 && args[2] == "--batch-id" {
			batchID = args[3]
		}
		return app.runJob(ctx, "backfill-field", func(ctx context.Context) error {
			return app.backfill(ctx, day, batchID)
		})

	case "serve":
		return app.serve(ctx)

	default:
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: adflow <command> [args]

commands:
  ingest-now
  ingest-for-date YYYYMMDD
  report-daily YYYY-MM-DD
  report-weekly YYYY-MM-DD [--days N]
  backfill-field YYYYMMDD [--batch-id ID]
  serve
  config validate`)
}

func cmdConfigValidate() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "configuration invalid:", err)
		return exitUsage
	}
	fmt.Println("configuration OK")
	return exitOK
}

func parseYYYYMMDD(s string) (time.Time, error) {
	t, err := time.ParseInLocation("20060102", s, model.OperationalLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYYMMDD: %w", s, err)
	}
	return t, nil
}

func parseDashDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, model.OperationalLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

func dayWindow(day time.Time) model.Window {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, model.OperationalLocation)
	return model.Window{Start: d, End: d}
}

// app wires every component graph a CLI job or the serve daemon needs.
type app struct {
	cfg         *config.Config
	warehouse   *warehouse.Warehouse
	blob        *blob.FSStore
	credential  *credential.Store
	alarm       *schedule.Alarm
	coordinator *batch.Coordinator
	sources     []batch.Source
	hmacAdapter provider.Adapter
	composer    *report.Composer
	publisher   *publish.Manager
}

// runJob runs fn, alarming and returning exitFailed on error, exitOK
// otherwise — the `0 success; 1 failure with alarm emitted` contract of
// spec.md §6.
func (a *app) runJob(ctx context.Context, name string, fn func(context.Context) error) int {
	if err := fn(ctx); err != nil {
		logging.Error().Str("job", name).Err(err).Msg("job failed")
		a.alarm.Alarm(ctx, errs.LevelError, "job failed: "+name, err.Error())
		return exitFailed
	}
	return exitOK
}

func (a *app) ingest(ctx context.Context, window model.Window) error {
	_, err := a.coordinator.RunIngest(ctx, window, a.sources)
	return err
}

func (a *app) buildAndPublish(ctx context.Context, spec model.ReportSpec) error {
	doc, err := a.composer.Build(ctx, spec)
	if err != nil {
		return fmt.Errorf("compose report: %w", err)
	}
	_, err = a.publisher.Publish(ctx, spec.Sink, doc)
	if err != nil {
		return fmt.Errorf("publish report: %w", err)
	}

	if a.cfg.Report.ExcelArchiveEnabled {
		if _, err := a.publisher.Publish(ctx, model.SinkExcel, doc); err != nil {
			// The workbook archive is a side artifact, not the report delivery
			// itself (original_source/xmp/xmp_report_excel.py runs standalone,
			// independent of the daily chat/doc publish): alarm but don't fail
			// the job over it.
			logging.Error().Err(err).Msg("excel report archive failed")
			a.alarm.Alarm(ctx, errs.LevelWarning, "excel report archive failed", err.Error())
		}
	}
	return nil
}

// backfill refetches one day of HMAC-REST/QuickBI data and patches the
// media_user_revenue column on the quickbi_campaigns rows already in the
// warehouse for that day. It is not a re-ingest: it never touches any other
// provider or column, matching rows by (stat_date, campaign_id, country,
// channel) and, when batchID is given, further scoping the UPDATE to that
// one ingest run. Grounded on
// original_source/scripts/update_media_revenue.py, whose
// update_bigquery_media_revenue() does exactly this against BigQuery; see
// DESIGN.md.
func (a *app) backfill(ctx context.Context, day time.Time, batchID string) error {
	if a.hmacAdapter == nil {
		return fmt.Errorf("backfill-field: hmac_rest provider is not enabled")
	}

	result, err := a.hmacAdapter.Extract(ctx, dayWindow(day))
	if err != nil {
		return fmt.Errorf("backfill-field: refetch %s: %w", day.Format("20060102"), err)
	}

	rows := make([]model.AdSpendFact, 0, len(result.Rows))
	for _, row := range result.Rows {
		fact, ok := row.(model.AdSpendFact)
		if !ok {
			return fmt.Errorf("backfill-field: hmac_rest adapter returned %T, want model.AdSpendFact", row)
		}
		rows = append(rows, fact)
	}

	updated, err := a.warehouse.UpdateMediaUserRevenue(ctx, rows, batchID)
	if err != nil {
		return fmt.Errorf("backfill-field: %w", err)
	}
	logging.Info().Str("day", day.Format("20060102")).Str("batch_id", batchID).Int64("rows_updated", updated).Msg("backfilled media_user_revenue")
	return nil
}

// serve runs the supervised long-running daemon: the Scheduler driving
// ingest and report jobs on spec.md §4.I's fixed intervals, plus the
// metrics/health listener, both under one suture tree.
func (a *app) serve(ctx context.Context) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info().Msg("shutdown signal received")
		cancel()
	}()

	jobs, err := a.scheduledJobs()
	if err != nil {
		logging.Error().Err(err).Msg("failed to build scheduled jobs")
		return exitUsage
	}
	sched := schedule.New(jobs)

	tree := supervisor.New(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddScheduleService(sched)
	tree.AddAPIService(supervisor.NewHTTPServerService(supervisor.NewMetricsServer(":9090"), 10*time.Second))

	logging.Info().Msg("adflow serve starting")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("supervisor tree exited with error")
		a.alarm.Alarm(context.Background(), errs.LevelError, "adflow serve crashed", err.Error())
		return exitFailed
	}
	logging.Info().Msg("adflow serve stopped")
	return exitOK
}

func (a *app) scheduledJobs() ([]schedule.Job, error) {
	jobs := []schedule.Job{{
		Name: "hourly-ingest",
		Next: schedule.HourlyInterval(),
		Run: func(ctx context.Context) error {
			day := time.Now().In(model.OperationalLocation)
			if a.cfg.Ingest.FetchYesterday {
				day = day.AddDate(0, 0, -1)
			}
			return a.ingest(ctx, dayWindow(day))
		},
	}}

	if a.cfg.Ingest.DailyMidnightRun {
		jobs = append(jobs, schedule.Job{
			Name: "daily-midnight-backfill",
			Next: schedule.DailyMidnightInterval(),
			Run: func(ctx context.Context) error {
				yesterday := time.Now().In(model.OperationalLocation).AddDate(0, 0, -1)
				return a.ingest(ctx, dayWindow(yesterday))
			},
		})
	}

	reportJobs := []struct {
		name string
		cron string
		spec func(now time.Time) model.ReportSpec
	}{
		{"daily-report", a.cfg.Report.DailyCronSpec, func(now time.Time) model.ReportSpec {
			yesterday := now.AddDate(0, 0, -1)
			return model.ReportSpec{Kind: model.ReportDaily, Window: dayWindow(yesterday), Sink: model.SinkChat, Audience: model.AudienceAll}
		}},
		{"weekly-report", a.cfg.Report.WeeklyCronSpec, func(now time.Time) model.ReportSpec {
			end := now.AddDate(0, 0, -1)
			return model.ReportSpec{Kind: model.ReportWeekly, Window: model.Window{Start: end.AddDate(0, 0, -6), End: end}, Sink: model.SinkDoc, Audience: model.AudienceAll}
		}},
		{"intraday-report", a.cfg.Report.IntradayCronSpec, func(now time.Time) model.ReportSpec {
			return model.ReportSpec{Kind: model.ReportIntraday, Window: dayWindow(now), Sink: model.SinkChat, Audience: model.AudienceAll}
		}},
	}

	for _, rj := range reportJobs {
		if rj.cron == "" {
			continue
		}
		expr, err := schedule.ParseCron(rj.cron)
		if err != nil {
			return nil, fmt.Errorf("parse %s cron %q: %w", rj.name, rj.cron, err)
		}
		spec := rj.spec
		jobs = append(jobs, schedule.Job{
			Name: rj.name,
			Next: schedule.CronInterval(expr),
			Run: func(ctx context.Context) error {
				return a.buildAndPublish(ctx, spec(time.Now().In(model.OperationalLocation)))
			},
		})
	}

	return jobs, nil
}
