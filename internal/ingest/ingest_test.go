package ingest

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datashop/datashop/internal/cache"
	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/classify"
	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/events"
	"github.com/datashop/datashop/internal/fetch"
	"github.com/datashop/datashop/internal/logger"
	"github.com/datashop/datashop/internal/metrics"
	"github.com/datashop/datashop/internal/platform"
	"github.com/datashop/datashop/internal/store"
)

type fakeFetcher struct {
	p     platform.Platform
	calls []string
	fail  map[string]error
}

var _ fetch.Fetcher = (*fakeFetcher)(nil)

func (f *fakeFetcher) Platform() platform.Platform { return f.p }

func (f *fakeFetcher) Fetch(_ context.Context, t classify.Target) (*capture.Capture, error) {
	f.calls = append(f.calls, t.ItemID)
	if err := f.fail[t.ItemID]; err != nil {
		return nil, err
	}
	doc := capture.Document{"id": t.ItemID, "price": int64(100)}
	return capture.New(f.p, t.ItemID, t.ShopID, doc, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)), nil
}

type countingWaiter struct{ n int }

func (w *countingWaiter) Wait(ctx context.Context) error {
	w.n++
	return ctx.Err()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func tikiURL(id string) string {
	return "https://tiki.vn/noi-com-p" + id + ".html?spid=9"
}

func TestRunContinuesPastClassificationFailure(t *testing.T) {
	tiki := &fakeFetcher{p: platform.Tiki}
	mem := store.NewMemoryStore()
	waiter := &countingWaiter{}
	pub := &recordingPublisher{}
	rec := metrics.New()

	r := NewRunner(fetch.NewRegistry(tiki), mem,
		WithThrottle(waiter),
		WithPublisher(pub),
		WithMetrics(rec),
		WithLogger(logger.Nop()),
	)

	urls := []string{tikiURL("1"), tikiURL("2"), "https://example.com/not-a-product", tikiURL("4"), tikiURL("5")}
	report := r.Run(context.Background(), urls)

	require.Len(t, report.Outcomes, 5)
	assert.Equal(t, 4, report.Saved())
	assert.Equal(t, 1, report.Failed())
	assert.ErrorIs(t, report.Outcomes[2].Err, errors.ErrClassification)
	assert.Equal(t, []string{"1", "2", "4", "5"}, tiki.calls)

	// the unclassifiable URL never reached the network, so it costs no wait
	assert.Equal(t, 4, waiter.n)

	ids, err := mem.DistinctIDs(context.Background(), platform.Tiki)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "4", "5"}, ids)

	require.Len(t, pub.events, 4)
	assert.Equal(t, report.RunID, pub.events[0].RunID)
	assert.Equal(t, "tiki", pub.events[0].Platform)

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, w.Body.String(), `datashop_captures_total{outcome="saved",platform="tiki"} 4`)
	assert.Contains(t, w.Body.String(), `datashop_captures_total{outcome="classification_failed",platform="unknown"} 1`)
}

func TestRunIsolatesFetchFailures(t *testing.T) {
	tiki := &fakeFetcher{p: platform.Tiki, fail: map[string]error{
		"2": errors.NewFetch("tiki", 503, "busy", nil),
		"3": errors.NewNestedDecode("tiki", "bad body", nil),
	}}
	pub := &recordingPublisher{err: stderrors.New("redis down")}
	var buf bytes.Buffer
	r := NewRunner(fetch.NewRegistry(tiki), store.NewMemoryStore(),
		WithThrottle(&countingWaiter{}),
		WithPublisher(pub),
		WithLogger(logger.New(&buf)),
	)

	report := r.Run(context.Background(), []string{tikiURL("1"), tikiURL("2"), tikiURL("3"), tikiURL("4")})

	require.Len(t, report.Outcomes, 4)
	assert.True(t, report.Outcomes[0].OK())
	assert.ErrorIs(t, report.Outcomes[1].Err, errors.ErrFetch)
	assert.ErrorIs(t, report.Outcomes[2].Err, errors.ErrNestedDecode)
	assert.True(t, report.Outcomes[3].OK(), "publish failures never fail the capture")
	assert.NotEmpty(t, report.Outcomes[3].Location)

	assert.Contains(t, buf.String(), `"kind":"fetch"`)
	assert.Contains(t, buf.String(), `"kind":"nested_decode"`)
	assert.Contains(t, buf.String(), "publish capture event failed")
}

func TestRunMissingFetcherIsFetchFailure(t *testing.T) {
	waiter := &countingWaiter{}
	r := NewRunner(fetch.NewRegistry(&fakeFetcher{p: platform.Tiki}), store.NewMemoryStore(),
		WithThrottle(waiter),
		WithLogger(logger.Nop()),
	)

	report := r.Run(context.Background(), []string{
		"https://www.lazada.vn/products/ao-thun-i111-s222.html",
	})

	require.Len(t, report.Outcomes, 1)
	assert.ErrorIs(t, report.Outcomes[0].Err, errors.ErrFetch)
	assert.Equal(t, platform.Lazada, report.Outcomes[0].Platform)
	assert.Equal(t, 0, waiter.n)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tiki := &fakeFetcher{p: platform.Tiki}

	var progress []platform.Progress
	ctx = platform.WithProgress(ctx, func(p platform.Progress) {
		progress = append(progress, p)
		if p.Done == 1 && p.Message != "" {
			cancel()
		}
	})

	r := NewRunner(fetch.NewRegistry(tiki), store.NewMemoryStore(),
		WithThrottle(&countingWaiter{}),
		WithLogger(logger.Nop()),
	)
	report := r.Run(ctx, []string{tikiURL("1"), tikiURL("2"), tikiURL("3")})

	assert.True(t, report.Cancelled)
	assert.Len(t, report.Outcomes, 1)
	assert.Equal(t, []string{"1"}, tiki.calls)
	assert.NotEmpty(t, progress)
}

func TestRunDelayUsesThrottle(t *testing.T) {
	tiki := &fakeFetcher{p: platform.Tiki}
	r := NewRunner(fetch.NewRegistry(tiki), store.NewMemoryStore(),
		WithDelay(20*time.Millisecond),
		WithLogger(logger.Nop()),
	)

	start := time.Now()
	report := r.Run(context.Background(), []string{tikiURL("1"), tikiURL("2"), tikiURL("3")})
	elapsed := time.Since(start)

	assert.Equal(t, 3, report.Saved())
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Contains(t, report.Summary(), "3 saved, 0 failed")
}

func TestLoadURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("urls:\n  - "+tikiURL("1")+"\n  - ''\n  - https://www.lazada.vn/products/x-i1-s2.html\n"), 0o644))

	urls, err := LoadURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{tikiURL("1"), "https://www.lazada.vn/products/x-i1-s2.html"}, urls)

	_, err = LoadURLs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := store.NewFileStore(dir)
	for _, id := range []int64{1, 2} {
		c := capture.New(platform.Tiki, capture.FormatID(id), "9", capture.Document{"id": id, "price": int64(10)},
			time.Date(2024, 5, int(id), 8, 0, 0, 0, time.UTC))
		_, err := src.Save(ctx, c)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	dst := store.NewMemoryStore()
	c := &deletingCache{}
	n, err := Import(ctx, dir, dst, c, logger.New(&buf))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"history:tiki:1", "history:tiki:2"}, c.deleted)

	ids, err := dst.DistinctIDs(ctx, platform.Tiki)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.Contains(t, buf.String(), "platform imported")
}

type deletingCache struct {
	mu      sync.Mutex
	deleted []string
}

var _ cache.Cache = (*deletingCache)(nil)

func (c *deletingCache) Get(string) ([]byte, error) { return nil, cache.ErrMiss }
func (c *deletingCache) Set(string, []byte, time.Duration) error { return nil }
func (c *deletingCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, key)
	return nil
}

func TestRunDropsCachedHistoryOfSavedItems(t *testing.T) {
	tiki := &fakeFetcher{p: platform.Tiki, fail: map[string]error{
		"2": errors.NewFetch("tiki", 503, "busy", nil),
	}}
	c := &deletingCache{}
	r := NewRunner(fetch.NewRegistry(tiki), store.NewMemoryStore(),
		WithThrottle(&countingWaiter{}),
		WithCache(c),
		WithLogger(logger.Nop()),
	)

	report := r.Run(context.Background(), []string{tikiURL("1"), tikiURL("2"), tikiURL("3")})
	assert.Equal(t, 2, report.Saved())
	assert.Equal(t, []string{"history:tiki:1", "history:tiki:3"}, c.deleted)
}

// slowFetcher records how many fetches overlap.
type slowFetcher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	hold     time.Duration
}

func (f *slowFetcher) Platform() platform.Platform { return platform.Tiki }

func (f *slowFetcher) Fetch(_ context.Context, t classify.Target) (*capture.Capture, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(f.hold)
	doc := capture.Document{"id": t.ItemID, "price": int64(100)}
	return capture.New(platform.Tiki, t.ItemID, t.ShopID, doc, time.Now()), nil
}

func TestConcurrentRunsNeverOverlapFetches(t *testing.T) {
	f := &slowFetcher{hold: 50 * time.Millisecond}
	r := NewRunner(fetch.NewRegistry(f), store.NewMemoryStore(),
		WithDelay(10*time.Millisecond),
		WithLogger(logger.Nop()),
	)

	var wg sync.WaitGroup
	reports := make([]Report, 2)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = r.Run(context.Background(), []string{tikiURL("1"), tikiURL("2")})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.peak.Load())
	for _, rep := range reports {
		assert.Equal(t, 2, rep.Saved())
	}
}

func TestRunCancelledWhileQueued(t *testing.T) {
	f := &slowFetcher{hold: 100 * time.Millisecond}
	r := NewRunner(fetch.NewRegistry(f), store.NewMemoryStore(),
		WithThrottle(&countingWaiter{}),
		WithLogger(logger.Nop()),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(context.Background(), []string{tikiURL("1")})
	}()
	require.Eventually(t, func() bool { return f.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	report := r.Run(ctx, []string{tikiURL("2")})
	assert.True(t, report.Cancelled)
	assert.Empty(t, report.Outcomes)
	<-done
}
