package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically instead of sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSchedulerRunsJobWhenNextFireArrives(t *testing.T) {
	var runs int32
	clock := newFakeClock(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	job := Job{
		Name: "tick",
		Run: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
		Next: func(after time.Time) time.Time { return after.Add(time.Hour) },
	}

	s := New([]Job{job})
	s.clock = clock.Now
	s.ticker = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	require.Eventually(t, func() bool { return s.IsRunning() }, time.Second, time.Millisecond)

	clock.Advance(2 * time.Hour)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, time.Second, time.Millisecond)
}

func TestSchedulerSkipsOverlappingTick(t *testing.T) {
	var runs int32
	release := make(chan struct{})
	clock := newFakeClock(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	job := Job{
		Name: "slow",
		Run: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			<-release
			return nil
		},
		Next: func(after time.Time) time.Time { return after.Add(time.Minute) },
	}

	s := New([]Job{job})
	s.clock = clock.Now
	s.ticker = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, time.Second, time.Millisecond)

	// Advance time repeatedly while the job is still blocked in Run: the
	// single-threaded checkAndExecute loop can't start a second overlapping
	// instance because it runs jobs synchronously within one tick.
	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&runs))

	close(release)
	s.Stop()
}

func TestSchedulerStopWaitsForLoopExit(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	require.True(t, s.IsRunning())
	s.Stop()
	require.False(t, s.IsRunning())
}

func TestHourlyIntervalFiresOnTheHour(t *testing.T) {
	next := HourlyInterval()(time.Date(2026, 8, 1, 14, 22, 0, 0, time.UTC))
	require.Equal(t, 0, next.Minute())
	require.True(t, next.After(time.Date(2026, 8, 1, 14, 22, 0, 0, time.UTC)))
}

func TestDailyMidnightIntervalFiresNextMidnight(t *testing.T) {
	next := DailyMidnightInterval()(time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC))
	require.Equal(t, 0, next.Hour())
	require.Equal(t, 0, next.Minute())
}
