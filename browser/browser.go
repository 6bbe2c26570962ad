// Package browser owns the headless browser engine and hands out isolated,
// request-scoped browsing contexts.
//
// The engine, its contexts and their pages sit behind small interfaces so the
// lookup pipeline can be driven by go-rod in production and by the in-memory
// fakes in browsertest under test.
package browser

import (
	"context"
	"fmt"
	"strings"
)

// Launcher starts a browser engine.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running engine. NewContext is safe for concurrent use.
type Browser interface {
	// NewContext creates an isolated cookie/cache/script scope with exactly
	// one page. The interception policy is installed before it returns.
	NewContext(ctx context.Context) (Context, error)

	// Close terminates the engine and every context still open on it.
	Close() error
}

// Context is one isolated browsing context.
type Context interface {
	Page() Page
	Close() error
}

// Page is the single page owned by a Context. Every method honors ctx.
type Page interface {
	// Navigate loads url and waits until the page reaches the wait level.
	// It returns the HTTP status of the primary document when known (0
	// otherwise). A 404 returns as soon as the response commits.
	Navigate(ctx context.Context, url string, wait WaitStrategy) (int, error)

	// WaitSelector blocks until an element matching the CSS selector exists.
	WaitSelector(ctx context.Context, selector string) error

	// WaitText blocks until the document body contains text.
	WaitText(ctx context.Context, text string) error

	// HTML returns the serialized, rendered document.
	HTML(ctx context.Context) (string, error)
}

// WaitStrategy is how far a navigation must progress before Navigate
// returns. Levels are ordered from least to most complete.
type WaitStrategy string

const (
	// WaitCommit returns once the navigation request is acknowledged.
	WaitCommit WaitStrategy = "commit"

	// WaitContentLoaded waits for DOMContentLoaded.
	WaitContentLoaded WaitStrategy = "content-loaded"

	// WaitNetworkIdle waits until the page has no in-flight network
	// activity, which is when script-rendered tables usually exist.
	WaitNetworkIdle WaitStrategy = "network-idle"
)

// Level orders strategies: commit < content-loaded < network-idle.
func (w WaitStrategy) Level() int {
	switch w {
	case WaitCommit:
		return 0
	case WaitContentLoaded:
		return 1
	case WaitNetworkIdle:
		return 2
	}
	return -1
}

// ParseWaitStrategy accepts the canonical names plus the common Playwright
// and DevTools spellings.
func ParseWaitStrategy(s string) (WaitStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "commit":
		return WaitCommit, nil
	case "content-loaded", "domcontentloaded", "dom-content-loaded":
		return WaitContentLoaded, nil
	case "network-idle", "networkidle":
		return WaitNetworkIdle, nil
	}
	return "", fmt.Errorf("unknown wait strategy %q (want commit, content-loaded or network-idle)", s)
}
