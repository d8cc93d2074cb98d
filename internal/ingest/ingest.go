// Package ingest runs a batch of product URLs through classification, fetch and
// persistence. A failure on one URL is recorded and the batch moves on.
package ingest

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/datashop/datashop/internal/cache"
	"github.com/datashop/datashop/internal/classify"
	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/events"
	"github.com/datashop/datashop/internal/fetch"
	"github.com/datashop/datashop/internal/logger"
	"github.com/datashop/datashop/internal/metrics"
	"github.com/datashop/datashop/internal/platform"
	"github.com/datashop/datashop/internal/stealth"
	"github.com/datashop/datashop/internal/store"
)

// DefaultDelay separates consecutive remote fetches.
const DefaultDelay = 5 * time.Second

// Waiter blocks until the next remote fetch may start.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Outcome is the result of one URL.
type Outcome struct {
	URL      string            `json:"url"`
	Platform platform.Platform `json:"-"`
	ItemID   string            `json:"item_id,omitempty"`
	Location string            `json:"location,omitempty"`
	Err      error             `json:"-"`
}

// OK reports whether the URL was captured and saved.
func (o Outcome) OK() bool { return o.Err == nil }

// MarshalJSON renders Err as its message.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type plain Outcome
	out := struct {
		plain
		Platform string `json:"platform,omitempty"`
		Error    string `json:"error,omitempty"`
	}{plain: plain(o)}
	if o.Platform.Valid() {
		out.Platform = o.Platform.String()
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return json.Marshal(out)
}

// Report summarises a batch.
type Report struct {
	RunID    string    `json:"run_id"`
	Outcomes []Outcome `json:"outcomes"`
	// Cancelled is set when the context ended before every URL was processed.
	Cancelled bool `json:"cancelled"`
}

// MarshalJSON adds the saved and failed counts.
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	return json.Marshal(struct {
		plain
		Saved  int `json:"saved"`
		Failed int `json:"failed"`
	}{plain(r), r.Saved(), r.Failed()})
}

// Saved counts captured URLs.
func (r Report) Saved() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed counts URLs that were processed but not saved.
func (r Report) Failed() int {
	return len(r.Outcomes) - r.Saved()
}

// Runner executes batches sequentially. Concurrent Run calls queue behind each
// other, so only one fetch is ever in flight per Runner.
type Runner struct {
	registry  *fetch.Registry
	writer    store.Writer
	publisher events.Publisher
	metrics   *metrics.Recorder
	throttle  Waiter
	cache     cache.Cache
	log       *logger.Logger
	newRunID  func() string

	// busy holds one token while a batch runs.
	busy chan struct{}
}

// Option configures a Runner.
type Option func(*Runner)

// WithPublisher announces every saved capture.
func WithPublisher(p events.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithMetrics records outcomes and fetch latency.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithDelay sets the fixed pause between remote fetches.
func WithDelay(d time.Duration) Option {
	return func(r *Runner) { r.throttle = stealth.NewThrottle(d) }
}

// WithThrottle replaces the inter-fetch throttle.
func WithThrottle(w Waiter) Option {
	return func(r *Runner) { r.throttle = w }
}

// WithCache drops the cached price history of every item the runner saves.
func WithCache(c cache.Cache) Option {
	return func(r *Runner) { r.cache = c }
}

// WithLogger sets the runner logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// NewRunner creates a runner that fetches through registry and saves to writer.
func NewRunner(registry *fetch.Registry, writer store.Writer, opts ...Option) *Runner {
	r := &Runner{
		registry:  registry,
		writer:    writer,
		publisher: events.Nop{},
		throttle:  stealth.NewThrottle(DefaultDelay),
		log:       logger.ForComponent("ingest"),
		newRunID:  uuid.NewString,
		busy:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes urls in order. The throttle runs before every network fetch, so
// URLs that fail before reaching the network add no delay. Cancelling ctx stops the
// batch between items; the URL in flight still completes or fails on its own. A Run
// started while another batch is active waits for it to finish.
func (r *Runner) Run(ctx context.Context, urls []string) Report {
	report := Report{RunID: r.newRunID()}
	log := r.log.WithStr("run_id", report.RunID)

	select {
	case r.busy <- struct{}{}:
		defer func() { <-r.busy }()
	case <-ctx.Done():
		log.Warn().Int("urls", len(urls)).Msg("batch cancelled while waiting for the previous one")
		report.Cancelled = true
		return report
	}
	log.Info().Int("urls", len(urls)).Msg("batch started")

	for i, rawURL := range urls {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		platform.ReportProgress(ctx, platform.Progress{Done: i, Total: len(urls), Message: rawURL})

		o, stop := r.one(ctx, log, report.RunID, rawURL)
		if stop {
			report.Cancelled = true
			break
		}
		report.Outcomes = append(report.Outcomes, o)
	}
	platform.ReportProgress(ctx, platform.Progress{Done: len(report.Outcomes), Total: len(urls)})

	log.Info().
		Int("saved", report.Saved()).
		Int("failed", report.Failed()).
		Bool("cancelled", report.Cancelled).
		Msg("batch finished")
	return report
}

// one captures a single URL. stop is true when the batch was cancelled while waiting
// for the throttle.
func (r *Runner) one(ctx context.Context, log *logger.Logger, runID, rawURL string) (o Outcome, stop bool) {
	o.URL = rawURL
	ulog := log.WithStr("url", rawURL)

	target, err := classify.Classify(rawURL)
	if err != nil {
		ulog.Warn().Err(err).Msg("skipping unclassifiable URL")
		r.metrics.Capture("", metrics.OutcomeClassifyFailed)
		o.Err = err
		return o, false
	}
	o.Platform, o.ItemID = target.Platform, target.ItemID
	ulog = ulog.WithFields(logger.Fields{"platform": target.Platform.String(), "item_id": target.ItemID})

	fetcher, err := r.registry.Get(target.Platform)
	if err != nil {
		ulog.Warn().Err(err).Msg("skipping URL without fetcher")
		r.metrics.Capture(target.Platform.String(), metrics.OutcomeFetchFailed)
		o.Err = errors.NewFetch(target.Platform.String(), 0, "", err)
		return o, false
	}

	if err := r.throttle.Wait(ctx); err != nil {
		return o, true
	}

	start := time.Now()
	c, err := fetcher.Fetch(ctx, target)
	r.metrics.FetchDuration(target.Platform.String(), time.Since(start))
	if err != nil {
		outcome := metrics.OutcomeFetchFailed
		if stderrors.Is(err, errors.ErrNestedDecode) {
			outcome = metrics.OutcomeDecodeFailed
		}
		ulog.Error().Err(err).Str("kind", string(errors.KindOf(err))).Msg("fetch failed")
		r.metrics.Capture(target.Platform.String(), outcome)
		o.Err = err
		return o, false
	}
	o.ItemID = c.ItemID

	location, err := r.writer.Save(ctx, c)
	if err != nil {
		ulog.Error().Err(err).Msg("save failed")
		r.metrics.Capture(target.Platform.String(), metrics.OutcomeWriteFailed)
		o.Err = err
		return o, false
	}
	o.Location = location
	r.metrics.Capture(target.Platform.String(), metrics.OutcomeSaved)
	ulog.Info().Str("location", location).Msg("capture saved")
	invalidateHistory(r.cache, ulog, target.Platform, c.ItemID)

	ev := events.Event{
		Platform:   target.Platform.String(),
		ItemID:     c.ItemID,
		Location:   location,
		RunID:      runID,
		CapturedAt: c.CapturedAt,
	}
	if err := r.publisher.Publish(ctx, ev); err != nil {
		ulog.Warn().Err(err).Msg("publish capture event failed")
	}
	return o, false
}

// invalidateHistory drops the cached price history of an item that just gained a
// capture. A failure only delays freshness until the entry expires.
func invalidateHistory(c cache.Cache, log *logger.Logger, p platform.Platform, itemID string) {
	if c == nil {
		return
	}
	if err := c.Delete(cache.HistoryKey(p, itemID)); err != nil {
		log.Warn().Err(err).Msg("drop cached price history failed")
	}
}

// Summary renders a one-line report summary.
func (r Report) Summary() string {
	s := fmt.Sprintf("run %s: %d saved, %d failed", r.RunID, r.Saved(), r.Failed())
	if r.Cancelled {
		s += " (cancelled)"
	}
	return s
}
