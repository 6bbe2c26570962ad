package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/use-agent/placafipe/browser"
	"github.com/use-agent/placafipe/models"
)

// Navigator drives one page to a plate URL and decides whether the page
// holds data, says the plate is unknown, or neither.
type Navigator struct {
	// Wait is the commitment level Navigate waits for.
	Wait browser.WaitStrategy

	// NavigationTimeout bounds the page load.
	NavigationTimeout time.Duration

	// SelectorTimeout bounds the race between the data and not-found
	// markers once the page has loaded.
	SelectorTimeout time.Duration

	// DataSelectors mark a page that carries vehicle data.
	DataSelectors []string

	// NotFoundText marks a page for an unknown plate.
	NotFoundText string
}

// Navigate loads url and returns nil once a data marker is present. Every
// other outcome is a classified LookupError: NOT_FOUND for a 404 or the
// not-found text, TIMEOUT when the load or the marker race runs out of
// time, TRANSIENT_FAILURE for anything the browser or network throws.
func (n *Navigator) Navigate(ctx context.Context, page browser.Page, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, n.NavigationTimeout)
	status, err := page.Navigate(navCtx, url, n.Wait)
	navExpired := errors.Is(navCtx.Err(), context.DeadlineExceeded)
	cancel()

	if status == http.StatusNotFound {
		return models.NewLookupError(models.KindNotFound, "plate not found", nil)
	}
	if err != nil {
		if ctx.Err() != nil {
			return Classify(ctx.Err())
		}
		if navExpired || errors.Is(err, context.DeadlineExceeded) {
			return models.NewLookupError(models.KindTimeout,
				fmt.Sprintf("navigation did not reach %s within %s", n.Wait, n.NavigationTimeout), err)
		}
		return models.NewLookupError(models.KindTransient, "navigation failed", err)
	}

	return n.race(ctx, page)
}

type markerSignal struct {
	notFound bool
	err      error
}

// race waits for whichever marker appears first. All waiters have returned
// by the time race does.
func (n *Navigator) race(ctx context.Context, page browser.Page) error {
	raceCtx, cancel := context.WithTimeout(ctx, n.SelectorTimeout)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	total := len(n.DataSelectors)
	if n.NotFoundText != "" {
		total++
	}
	if total == 0 {
		return nil
	}
	signals := make(chan markerSignal, total)

	for _, sel := range n.DataSelectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			signals <- markerSignal{err: page.WaitSelector(raceCtx, sel)}
		}()
	}
	if n.NotFoundText != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			signals <- markerSignal{notFound: true, err: page.WaitText(raceCtx, n.NotFoundText)}
		}()
	}

	var errs []error
	for range total {
		s := <-signals
		if s.err == nil {
			if s.notFound {
				return models.NewLookupError(models.KindNotFound, "plate not found", nil)
			}
			return nil
		}
		if raceCtx.Err() == nil {
			// A waiter failed before time ran out: the page itself broke.
			return models.NewLookupError(models.KindTransient, "waiting for page markers failed", s.err)
		}
		errs = append(errs, s.err)
	}

	if ctx.Err() != nil {
		return Classify(ctx.Err())
	}
	if errors.Is(raceCtx.Err(), context.DeadlineExceeded) {
		return models.NewLookupError(models.KindTimeout,
			fmt.Sprintf("neither vehicle data nor a not-found message appeared within %s", n.SelectorTimeout), nil)
	}
	return models.NewLookupError(models.KindTransient, "waiting for page markers failed", errors.Join(errs...))
}
