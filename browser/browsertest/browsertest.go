// Package browsertest provides in-memory fakes for the browser interfaces so
// the lookup pipeline can be exercised without Chromium.
package browsertest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/placafipe/browser"
)

// ErrClosed is returned by operations on a closed fake.
var ErrClosed = errors.New("browsertest: closed")

// Launcher is a fake browser.Launcher. Its counters are safe to read while
// lookups are running.
type Launcher struct {
	// Delay is how long Launch takes.
	Delay time.Duration

	// Err, when set, makes every Launch fail.
	Err error

	// NewPage builds the page for each new context. Nil yields a blank page.
	NewPage func() *Page

	// ContextErr, when set, makes NewContext fail.
	ContextErr error

	launches       atomic.Int32
	openBrowsers   atomic.Int32
	openContexts   atomic.Int32
	contextsOpened atomic.Int32
}

// Launch implements browser.Launcher.
func (l *Launcher) Launch(ctx context.Context) (browser.Browser, error) {
	l.launches.Add(1)
	if l.Delay > 0 {
		select {
		case <-time.After(l.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.Err != nil {
		return nil, l.Err
	}
	l.openBrowsers.Add(1)
	return &Browser{l: l}, nil
}

// Launches is the number of Launch calls.
func (l *Launcher) Launches() int { return int(l.launches.Load()) }

// OpenBrowsers is the number of launched browsers not yet closed.
func (l *Launcher) OpenBrowsers() int { return int(l.openBrowsers.Load()) }

// OpenContexts is the number of contexts not yet closed.
func (l *Launcher) OpenContexts() int { return int(l.openContexts.Load()) }

// ContextsOpened is the total number of contexts ever created.
func (l *Launcher) ContextsOpened() int { return int(l.contextsOpened.Load()) }

// Browser is a fake browser.Browser.
type Browser struct {
	l      *Launcher
	mu     sync.Mutex
	closed bool
	ctxs   []*Context
}

// NewContext implements browser.Browser.
func (b *Browser) NewContext(ctx context.Context) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.l.ContextErr != nil {
		return nil, b.l.ContextErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	page := &Page{}
	if b.l.NewPage != nil {
		page = b.l.NewPage()
	}
	c := &Context{l: b.l, page: page}
	b.ctxs = append(b.ctxs, c)
	b.l.openContexts.Add(1)
	b.l.contextsOpened.Add(1)
	return c, nil
}

// Close implements browser.Browser. Contexts still open are closed too.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	ctxs := b.ctxs
	b.ctxs = nil
	b.mu.Unlock()

	for _, c := range ctxs {
		_ = c.Close()
	}
	b.l.openBrowsers.Add(-1)
	return nil
}

// Context is a fake browser.Context.
type Context struct {
	l      *Launcher
	page   *Page
	closed atomic.Bool
}

// Page implements browser.Context.
func (c *Context) Page() browser.Page { return c.page }

// Close implements browser.Context.
func (c *Context) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.l.openContexts.Add(-1)
		c.page.closed.Store(true)
	}
	return nil
}

// Page is a scripted browser.Page. Selectors and text are resolved against
// Content; a wait whose target is absent blocks until ctx ends.
type Page struct {
	// Status is returned by Navigate.
	Status int

	// Content is the rendered HTML.
	Content string

	// NavigateDelay is how long Navigate takes.
	NavigateDelay time.Duration

	// NavigateErr, when set, is returned by Navigate.
	NavigateErr error

	// HTMLErr, when set, is returned by HTML.
	HTMLErr error

	// Panic, when non-nil, is raised from Navigate.
	Panic any

	// Route, when set, picks the page that serves each navigated URL. The
	// returned page's script is used for the rest of the page's life; it
	// may be shared between contexts.
	Route func(url string) *Page

	mu     sync.Mutex
	urls   []string
	waits  []browser.WaitStrategy
	routed atomic.Pointer[Page]
	closed atomic.Bool
}

// Navigate implements browser.Page.
func (p *Page) Navigate(ctx context.Context, url string, wait browser.WaitStrategy) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	p.mu.Lock()
	p.urls = append(p.urls, url)
	p.waits = append(p.waits, wait)
	p.mu.Unlock()

	t := p
	if p.Route != nil {
		t = p.Route(url)
		p.routed.Store(t)
	}

	if t.Panic != nil {
		panic(t.Panic)
	}
	if t.NavigateDelay > 0 {
		select {
		case <-time.After(t.NavigateDelay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if t.NavigateErr != nil {
		return 0, t.NavigateErr
	}
	return t.Status, nil
}

// WaitSelector implements browser.Page.
func (p *Page) WaitSelector(ctx context.Context, selector string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.script().Content))
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() > 0 {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

// WaitText implements browser.Page.
func (p *Page) WaitText(ctx context.Context, text string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.script().Content))
	if err != nil {
		return err
	}
	if strings.Contains(doc.Find("body").Text(), text) {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

// HTML implements browser.Page.
func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.closed.Load() {
		return "", ErrClosed
	}
	t := p.script()
	if t.HTMLErr != nil {
		return "", t.HTMLErr
	}
	return t.Content, nil
}

func (p *Page) script() *Page {
	if t := p.routed.Load(); t != nil {
		return t
	}
	return p
}

// URLs returns every URL passed to Navigate.
func (p *Page) URLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.urls...)
}

// Waits returns the wait strategy of every Navigate call.
func (p *Page) Waits() []browser.WaitStrategy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.WaitStrategy(nil), p.waits...)
}

// Closed reports whether the owning context was closed.
func (p *Page) Closed() bool { return p.closed.Load() }

// Pages records every page a Launcher hands out.
type Pages struct {
	mu    sync.Mutex
	pages []*Page
}

// Factory returns a Launcher.NewPage function that records each page built
// by build.
func (r *Pages) Factory(build func(n int) *Page) func() *Page {
	return func() *Page {
		r.mu.Lock()
		defer r.mu.Unlock()
		p := build(len(r.pages))
		r.pages = append(r.pages, p)
		return p
	}
}

// All returns the pages handed out so far.
func (r *Pages) All() []*Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Page(nil), r.pages...)
}
