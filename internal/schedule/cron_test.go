package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCronRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseCron("0 9 * *")
	require.Error(t, err)
}

func TestParseCronDailyAtNine(t *testing.T) {
	expr, err := ParseCron("0 9 * * *")
	require.NoError(t, err)

	after := time.Date(2026, 8, 1, 8, 30, 0, 0, time.UTC)
	next := expr.NextRun(after, time.UTC)
	require.Equal(t, time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC), next)
}

func TestParseCronAdvancesToNextDayWhenTimeHasPassed(t *testing.T) {
	expr, err := ParseCron("0 9 * * *")
	require.NoError(t, err)

	after := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	next := expr.NextRun(after, time.UTC)
	require.Equal(t, time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC), next)
}

func TestParseCronStepExpression(t *testing.T) {
	expr, err := ParseCron("*/15 * * * *")
	require.NoError(t, err)
	require.Equal(t, []int{0, 15, 30, 45}, expr.Minutes)
}

func TestParseCronWeeklyOnMonday(t *testing.T) {
	expr, err := ParseCron("0 9 * * 1")
	require.NoError(t, err)

	// 2026-08-01 is a Saturday; next Monday is 2026-08-03.
	after := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	next := expr.NextRun(after, time.UTC)
	require.Equal(t, time.August, next.Month())
	require.Equal(t, 3, next.Day())
	require.Equal(t, time.Monday, next.Weekday())
}

func TestParseCronInvalidRangeRejected(t *testing.T) {
	_, err := ParseCron("0 25 * * *")
	require.Error(t, err)
}
