package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ria-tools/riawatch/internal/config"
)

// fakeClock is advanced manually by the test's wait function.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

type firing struct {
	kind Kind
	at   time.Time
}

// harness drives Run with a jumping clock: every wait advances the clock
// to the fire instant instead of sleeping, and stop() cancels the loop
// once enough fires were observed.
type harness struct {
	clock  *fakeClock
	fires  []firing
	cancel context.CancelFunc
	limit  int
}

func (h *harness) record(kind Kind) {
	h.fires = append(h.fires, firing{kind: kind, at: h.clock.Now()})
	if len(h.fires) >= h.limit {
		h.cancel()
	}
}

func newHarness(t *testing.T, limit int, scrapeErr, dumpErr error) (*Scheduler, *harness, context.Context) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		clock:  &fakeClock{now: time.Date(2025, 6, 1, 8, 30, 0, 0, time.Local)},
		cancel: cancel,
		limit:  limit,
	}
	s, err := New(
		config.ClockTime{Hour: 12, Minute: 0},
		config.ClockTime{Hour: 12, Minute: 5},
		func(context.Context) error { h.record(KindScrape); return scrapeErr },
		func(context.Context) error { h.record(KindDump); return dumpErr },
		zap.NewNop(),
		WithClock(h.clock),
		WithWait(func(ctx context.Context, d time.Duration) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.clock.Advance(d)
			return nil
		}),
	)
	require.NoError(t, err)
	return s, h, ctx
}

func TestScheduler_DailyFireOrder(t *testing.T) {
	t.Parallel()

	s, h, ctx := newHarness(t, 4, nil, nil)
	require.NoError(t, s.Run(ctx))

	require.Len(t, h.fires, 4)
	require.Equal(t, KindScrape, h.fires[0].kind)
	require.Equal(t, KindDump, h.fires[1].kind)
	require.Equal(t, KindScrape, h.fires[2].kind)
	require.Equal(t, KindDump, h.fires[3].kind)

	// Dump trails scrape by five minutes, then the next day's scrape is
	// recomputed 23h55m later.
	require.Equal(t, 5*time.Minute, h.fires[1].at.Sub(h.fires[0].at))
	require.Equal(t, 23*time.Hour+55*time.Minute, h.fires[2].at.Sub(h.fires[1].at))
	require.Equal(t, 12, h.fires[0].at.Hour())
	require.Equal(t, 0, h.fires[0].at.Minute())
}

func TestScheduler_JobFailureDoesNotStopRecurrence(t *testing.T) {
	t.Parallel()

	s, h, ctx := newHarness(t, 3, errors.New("cycle blew up"), nil)
	require.NoError(t, s.Run(ctx))

	// The failed scrape is logged and the dump still fires on time.
	require.Len(t, h.fires, 3)
	require.Equal(t, KindScrape, h.fires[0].kind)
	require.Equal(t, KindDump, h.fires[1].kind)
	require.Equal(t, KindScrape, h.fires[2].kind)
}

func TestScheduler_RunReturnsNilOnShutdown(t *testing.T) {
	t.Parallel()

	s, _, _ := newHarness(t, 100, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))
}

func TestScheduler_RunOnceFiresScrapeOnly(t *testing.T) {
	t.Parallel()

	var scrapes, dumps int
	s, err := New(
		config.ClockTime{Hour: 12, Minute: 0},
		config.ClockTime{Hour: 12, Minute: 5},
		func(context.Context) error { scrapes++; return nil },
		func(context.Context) error { dumps++; return nil },
		zap.NewNop(),
	)
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, 1, scrapes)
	require.Equal(t, 0, dumps)
}

func TestScheduler_RunOnceReportsScrapeError(t *testing.T) {
	t.Parallel()

	s, err := New(
		config.ClockTime{Hour: 12, Minute: 0},
		config.ClockTime{Hour: 12, Minute: 5},
		func(context.Context) error { return errors.New("no database") },
		func(context.Context) error { return nil },
		zap.NewNop(),
	)
	require.NoError(t, err)

	err = s.RunOnce(context.Background())
	require.ErrorContains(t, err, "manual scrape")
}

func TestScheduler_NextFirePrefersEarlierKind(t *testing.T) {
	t.Parallel()

	s, h, _ := newHarness(t, 1, nil, nil)

	// Before noon both fires are ahead; scrape at 12:00 comes first.
	kind, at := s.nextFire(h.clock.Now())
	require.Equal(t, KindScrape, kind)
	require.Equal(t, 12, at.Hour())
	require.Equal(t, 0, at.Minute())

	// Between the two fire times only dump remains for today.
	between := time.Date(2025, 6, 1, 12, 2, 0, 0, time.Local)
	kind, at = s.nextFire(between)
	require.Equal(t, KindDump, kind)
	require.Equal(t, 5, at.Minute())

	// After both, tomorrow's scrape is next.
	after := time.Date(2025, 6, 1, 18, 0, 0, 0, time.Local)
	kind, at = s.nextFire(after)
	require.Equal(t, KindScrape, kind)
	require.Equal(t, 2, at.Day())
}
