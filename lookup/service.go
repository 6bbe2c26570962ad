// Package lookup runs the plate lookup pipeline: normalize, acquire a
// browsing context, navigate, extract, classify and retry.
package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/use-agent/placafipe/browser"
	"github.com/use-agent/placafipe/extract"
	"github.com/use-agent/placafipe/models"
	"github.com/use-agent/placafipe/plate"
)

// Where a record was read from.
const (
	SourceBrowser = "browser"
	SourceHTTP    = "http"
)

// ContextProvider hands out request-scoped browsing contexts.
// *browser.Manager implements it.
type ContextProvider interface {
	Acquire(ctx context.Context) (*browser.Lease, error)
}

// Recorder observes finished lookups. *metrics.Collector implements it.
type Recorder interface {
	ObserveLookup(outcome, source string, elapsed time.Duration, attempts int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLookup(string, string, time.Duration, int) {}

// Result is a successful lookup.
type Result struct {
	Plate    string
	Record   *models.VehicleRecord
	Attempts int
	Source   string
}

// Options configures a Service.
type Options struct {
	// BaseURL is the plate path prefix; the normalized plate is appended.
	BaseURL string

	// RequestTimeout bounds a whole lookup including retries.
	RequestTimeout time.Duration

	Retry     RetryPolicy
	Navigator *Navigator
	Extractor *extract.Extractor

	// Static enables the HTTP fast path when non-nil.
	Static        *StaticFetcher
	StaticTimeout time.Duration

	Recorder Recorder
	Logger   *slog.Logger
}

// Service performs plate lookups. It is safe for concurrent use.
type Service struct {
	sessions ContextProvider
	opts     Options
	recorder Recorder
	logger   *slog.Logger
}

// NewService creates a Service that renders pages through sessions.
func NewService(sessions ContextProvider, opts Options) *Service {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 90 * time.Second
	}
	if opts.StaticTimeout <= 0 {
		opts.StaticTimeout = 5 * time.Second
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions: sessions,
		opts:     opts,
		recorder: recorder,
		logger:   logger.With("component", "lookup"),
	}
}

// Close releases the HTTP fast path's idle connections.
func (s *Service) Close() {
	if s.opts.Static != nil {
		s.opts.Static.Close()
	}
}

// Lookup normalizes raw and returns the vehicle record for it. Errors are
// always *models.LookupError.
func (s *Service) Lookup(ctx context.Context, raw string) (*Result, error) {
	start := time.Now()

	normalized, err := plate.Parse(raw)
	if err != nil {
		lerr := models.NewLookupError(models.KindInvalidInput, err.Error(), err)
		s.recorder.ObserveLookup(models.OutcomeOf(lerr), "", time.Since(start), 0)
		return nil, lerr
	}

	logger := s.logger.With("plate", normalized)
	if id := RequestIDFrom(ctx); id != "" {
		logger = logger.With("requestId", id)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	target := s.targetURL(normalized)
	policy := s.opts.Retry
	policy.OnRetry = func(attempt int, err error) {
		logger.Warn("retrying lookup", "attempt", attempt, "kind", models.KindOf(err), "error", err)
		if s.opts.Retry.OnRetry != nil {
			s.opts.Retry.OnRetry(attempt, err)
		}
	}

	res, attempts, err := Run(ctx, policy, func(ctx context.Context, attempt int) (*Result, error) {
		return s.attempt(ctx, logger, target, attempt)
	})
	elapsed := time.Since(start)

	if err != nil {
		s.recorder.ObserveLookup(models.OutcomeOf(err), "", elapsed, attempts)
		logger.Warn("lookup failed",
			"kind", models.KindOf(err),
			"attempts", attempts,
			"elapsed", elapsed,
			"error", err,
		)
		return nil, err
	}

	res.Plate = normalized
	res.Attempts = attempts
	s.recorder.ObserveLookup(models.OutcomeSuccess, res.Source, elapsed, attempts)
	logger.Info("lookup succeeded",
		"source", res.Source,
		"attempts", attempts,
		"elapsed", elapsed,
		"attributes", len(res.Record.Attributes),
		"valuations", len(res.Record.Valuations),
		"history", len(res.Record.IpvaHistory),
	)
	return res, nil
}

// attempt is one pass of the pipeline. A panic anywhere below is recovered
// as TRANSIENT_FAILURE after deferred cleanup has run.
func (s *Service) attempt(ctx context.Context, logger *slog.Logger, target string, n int) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("lookup attempt panicked",
				"attempt", n,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res, err = nil, models.NewLookupError(models.KindTransient, "unexpected failure during lookup", fmt.Errorf("panic: %v", r))
		}
	}()

	if s.opts.Static != nil {
		if res, err := s.fetchStatic(ctx, logger, target); res != nil || err != nil {
			return res, err
		}
	}
	return s.render(ctx, target)
}

func (s *Service) render(ctx context.Context, target string) (*Result, error) {
	lease, err := s.sessions.Acquire(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	defer lease.Release()

	page := lease.Page()
	if err := s.opts.Navigator.Navigate(ctx, page, target); err != nil {
		return nil, err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Classify(ctx.Err())
		}
		return nil, models.NewLookupError(models.KindTransient, "failed to read rendered page", err)
	}

	rec, err := s.opts.Extractor.Extract(html)
	if err != nil {
		return nil, err
	}
	return &Result{Record: rec, Source: SourceBrowser}, nil
}

// fetchStatic tries the page without a browser. It returns nil, nil when
// the static snapshot is inconclusive and rendering is needed.
func (s *Service) fetchStatic(ctx context.Context, logger *slog.Logger, target string) (*Result, error) {
	sctx, cancel := context.WithTimeout(ctx, s.opts.StaticTimeout)
	defer cancel()

	page, err := s.opts.Static.Fetch(sctx, target)
	if err != nil {
		logger.Debug("static fetch failed, rendering instead", "error", err)
		return nil, nil
	}
	if page.Status == http.StatusNotFound {
		return nil, models.NewLookupError(models.KindNotFound, "plate not found", nil)
	}
	if page.Status >= 400 {
		logger.Debug("static fetch rejected, rendering instead", "status", page.Status)
		return nil, nil
	}

	switch s.opts.Extractor.Probe(page.Body) {
	case extract.MarkerNotFound:
		return nil, models.NewLookupError(models.KindNotFound, "plate not found", nil)
	case extract.MarkerData:
		rec, err := s.opts.Extractor.Extract(page.Body)
		if err != nil {
			return nil, nil
		}
		return &Result{Record: rec, Source: SourceHTTP}, nil
	}
	return nil, nil
}

func (s *Service) targetURL(normalized string) string {
	return strings.TrimRight(s.opts.BaseURL, "/") + "/" + url.PathEscape(normalized)
}
