package schedule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adflow/pipeline/internal/pipeline/errs"
)

func TestAlarmPostsCardToWebhook(t *testing.T) {
	var received alarmCard
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	a := NewAlarm(server.URL)
	a.Alarm(context.Background(), errs.LevelError, "source extraction failed", "hmac_rest: timeout")

	require.Equal(t, "source extraction failed", received.Title)
	require.Equal(t, "error", received.Level)
	require.NotEmpty(t, received.Timestamp)
}

func TestAlarmDoesNotPanicOnUnreachableWebhook(t *testing.T) {
	a := NewAlarm("http://127.0.0.1:0")
	require.NotPanics(t, func() {
		a.Alarm(context.Background(), errs.LevelWarning, "data validation warning", "spend>0 with no impressions")
	})
}
