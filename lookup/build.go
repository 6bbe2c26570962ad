package lookup

import (
	"fmt"
	"log/slog"

	"github.com/use-agent/placafipe/browser"
	"github.com/use-agent/placafipe/config"
	"github.com/use-agent/placafipe/extract"
)

// FromConfig wires a Service from application configuration.
func FromConfig(cfg *config.Config, sessions ContextProvider, recorder Recorder, logger *slog.Logger) (*Service, error) {
	wait, err := browser.ParseWaitStrategy(cfg.Lookup.WaitStrategy)
	if err != nil {
		return nil, err
	}

	layout := extract.Layout{
		DetailSelectors:    cfg.Layout.DetailSelectors,
		ValuationSelectors: cfg.Layout.ValuationSelectors,
		HistoryMarker:      cfg.Layout.HistoryMarker,
		NotFoundText:       cfg.Layout.NotFoundText,
	}
	extractor, err := extract.New(layout)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}

	opts := Options{
		BaseURL:        cfg.Lookup.BaseURL,
		RequestTimeout: cfg.Lookup.RequestTimeout,
		Retry: RetryPolicy{
			MaxAttempts:   cfg.Lookup.MaxRetryAttempts,
			Backoff:       cfg.Lookup.RetryBackoff,
			RetryTimeouts: cfg.Lookup.RetryTimeouts,
			RetryNotFound: cfg.Lookup.RetryNotFound,
		},
		Navigator: &Navigator{
			Wait:              wait,
			NavigationTimeout: cfg.Lookup.NavigationTimeout,
			SelectorTimeout:   cfg.Lookup.SelectorTimeout,
			DataSelectors:     layout.DetailSelectors,
			NotFoundText:      layout.NotFoundText,
		},
		Extractor:     extractor,
		StaticTimeout: cfg.Lookup.StaticTimeout,
		Recorder:      recorder,
		Logger:        logger,
	}
	if cfg.Lookup.FetchMode == config.FetchModeAuto {
		opts.Static = NewStaticFetcher(cfg.Browser.Proxy, cfg.Browser.UserAgent, cfg.Browser.AcceptLanguage)
	}
	return NewService(sessions, opts), nil
}
