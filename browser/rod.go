package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/placafipe/config"
	"github.com/use-agent/placafipe/intercept"
	"github.com/ysmood/gson"
)

// RodLauncher launches Chromium through go-rod.
type RodLauncher struct {
	cfg    config.BrowserConfig
	policy *intercept.Policy
	logger *slog.Logger
}

// NewRodLauncher returns a Launcher whose contexts apply policy to every
// subresource request.
func NewRodLauncher(cfg config.BrowserConfig, policy *intercept.Policy, logger *slog.Logger) *RodLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodLauncher{cfg: cfg, policy: policy, logger: logger}
}

// Launch starts Chromium and connects to it. If ctx ends first the
// half-started process is reaped in the background.
func (l *RodLauncher) Launch(ctx context.Context) (Browser, error) {
	type result struct {
		b   *rodBrowser
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := l.launch()
		ch <- result{b, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.b, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.b != nil {
				_ = r.b.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (l *RodLauncher) launch() (*rodBrowser, error) {
	ln := launcher.New().
		Headless(l.cfg.Headless).
		NoSandbox(l.cfg.NoSandbox)

	if l.cfg.BrowserBin != "" {
		ln = ln.Bin(l.cfg.BrowserBin)
	}
	if l.cfg.Proxy != "" {
		ln = ln.Proxy(l.cfg.Proxy)
	}

	// ── Stealth and container flags ─────────────────────────────────
	ln.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	ln.Delete(flags.Flag("enable-automation"))
	ln.Set(flags.Flag("disable-dev-shm-usage"))
	ln.Set(flags.Flag("disable-gpu"))
	ln.Set(flags.Flag("disable-extensions"))
	ln.Set(flags.Flag("disable-component-update"))
	ln.Set(flags.Flag("disable-default-apps"))
	ln.Set(flags.Flag("disable-background-timer-throttling"))
	ln.Set(flags.Flag("disable-renderer-backgrounding"))
	ln.Set(flags.Flag("no-first-run"))
	for _, raw := range l.cfg.ExtraFlags {
		name, value, hasValue := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if hasValue {
			ln.Set(flags.Flag(name), value)
		} else {
			ln.Set(flags.Flag(name))
		}
	}

	controlURL, err := ln.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	l.logger.Debug("chromium started", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		ln.Kill()
		return nil, fmt.Errorf("connect to chromium: %w", err)
	}

	return &rodBrowser{
		browser:  b,
		launcher: ln,
		cfg:      l.cfg,
		policy:   l.policy,
		logger:   l.logger,
	}, nil
}

type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.BrowserConfig
	policy   *intercept.Policy
	logger   *slog.Logger
}

// NewContext opens an incognito browser context with a single configured
// page. Everything the page needs is installed before the first navigation.
func (b *rodBrowser) NewContext(ctx context.Context) (Context, error) {
	incognito, err := b.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	// Later page operations bind their own per-call context.
	incognito = incognito.Context(context.Background())

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	rc := &rodContext{incognito: incognito, page: page}
	if err := rc.setup(b.cfg, b.policy, b.logger); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return rc, nil
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	return err
}

type rodContext struct {
	incognito *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
}

func (c *rodContext) setup(cfg config.BrowserConfig, policy *intercept.Policy, logger *slog.Logger) error {
	if cfg.Stealth {
		if _, err := c.page.EvalOnNewDocument(stealth.JS); err != nil {
			logger.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	if cfg.UserAgent != "" {
		if err := c.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      cfg.UserAgent,
			AcceptLanguage: cfg.AcceptLanguage,
		}); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}

	if err := c.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.ViewportWidth,
		Height:            cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}

	if headers := extraHeaders(cfg); len(headers) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}).Call(c.page); err != nil {
			logger.Warn("extra headers failed, proceeding without them", "error", err)
		}
	}

	c.router = installPolicy(c.page, policy, logger)
	return nil
}

func (c *rodContext) Page() Page { return &rodPage{page: c.page} }

func (c *rodContext) Close() error {
	var errs []error
	if c.router != nil {
		errs = append(errs, c.router.Stop())
	}
	errs = append(errs, c.page.Close())
	errs = append(errs, c.incognito.Close())
	return errors.Join(errs...)
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string, wait WaitStrategy) (int, error) {
	pg := p.page.Context(ctx)

	// Lifecycle listeners must exist before Navigate or the event is missed.
	// WaitRequestIdle is avoided: it relies on the Fetch domain, which the
	// hijack router already owns.
	var waitFn func()
	switch wait {
	case WaitContentLoaded:
		waitFn = pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	case WaitNetworkIdle:
		waitFn = pg.WaitNavigation(proto.PageLifecycleEventNameNetworkIdle)
	}

	if err := pg.Navigate(url); err != nil {
		return 0, err
	}

	status := responseStatus(pg)
	if status == http.StatusNotFound {
		return status, nil
	}

	if waitFn != nil {
		waitFn()
	}
	if err := ctx.Err(); err != nil {
		return status, err
	}
	if status == 0 {
		status = responseStatus(pg)
	}
	return status, nil
}

func (p *rodPage) WaitSelector(ctx context.Context, selector string) error {
	_, err := p.page.Context(ctx).Element(selector)
	return err
}

func (p *rodPage) WaitText(ctx context.Context, text string) error {
	_, err := p.page.Context(ctx).ElementR("body", regexp.QuoteMeta(text))
	return err
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// responseStatus reads the primary document status from the Navigation
// Timing entry. Event listeners on the Network domain would collide with
// the hijack router, so this is best-effort and returns 0 when unknown.
func responseStatus(page *rod.Page) int {
	res, err := page.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// extraHeaders returns the headers the user-agent override does not already
// send. The override carries Accept-Language, so it only goes out here when
// no user agent is configured.
func extraHeaders(cfg config.BrowserConfig) map[string]string {
	if cfg.UserAgent != "" || cfg.AcceptLanguage == "" {
		return nil
	}
	return map[string]string{"Accept-Language": cfg.AcceptLanguage}
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
