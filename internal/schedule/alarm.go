package schedule

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/adflow/pipeline/internal/logging"
	"github.com/adflow/pipeline/internal/metrics"
	"github.com/adflow/pipeline/internal/pipeline/errs"
	"github.com/adflow/pipeline/internal/publish"
)

// alarmCallTimeout bounds the single POST attempt an Alarm makes; spec.md
// §4.I is explicit that alarm-sink failures are logged, never retried
// indefinitely, so there is no backoff loop here at all.
const alarmCallTimeout = 10 * time.Second

// alarmCard is the wire shape posted to the alert webhook.
type alarmCard struct {
	Title     string `json:"title"`
	Level     string `json:"level"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

// Alarm posts high-visibility failure notices to a designated webhook,
// implementing the batch.Alarmer and report-job alarm contracts with a
// single best-effort attempt per call.
type Alarm struct {
	webhookURL string
	clock      func() time.Time
}

// NewAlarm builds an Alarm posting to webhookURL.
func NewAlarm(webhookURL string) *Alarm {
	return &Alarm{webhookURL: webhookURL, clock: time.Now}
}

// Alarm posts {title, level, body, timestamp} to the alert webhook. A
// failure to deliver the alarm itself is logged and discarded: alarming
// the failure of the alarm path would risk an infinite loop, so this is the
// one call in adflow that errors into a log line and nothing else.
func (a *Alarm) Alarm(ctx context.Context, level errs.AlarmLevel, title, body string) {
	metrics.AlarmsEmitted.WithLabelValues(string(level)).Inc()

	card := alarmCard{
		Title:     title,
		Level:     string(level),
		Body:      body,
		Timestamp: a.clock().UTC().Format(time.RFC3339),
	}

	client := &http.Client{Timeout: alarmCallTimeout}
	callCtx, cancel := context.WithTimeout(ctx, alarmCallTimeout)
	defer cancel()

	status, respBody, err := publish.PostJSON(callCtx, client, a.webhookURL, card)
	if err != nil {
		logging.Error().Str("level", string(level)).Str("title", title).Err(err).Msg("alarm webhook post failed")
		return
	}
	if status < 200 || status >= 300 {
		logging.Error().Str("level", string(level)).Str("title", title).Int("status", status).
			Msg(fmt.Sprintf("alarm webhook returned non-2xx: %s", string(respBody)))
	}
}
