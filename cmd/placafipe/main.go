package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/placafipe/api"
	"github.com/use-agent/placafipe/browser"
	"github.com/use-agent/placafipe/config"
	"github.com/use-agent/placafipe/intercept"
	"github.com/use-agent/placafipe/lookup"
	"github.com/use-agent/placafipe/metrics"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	closeLog := initLogger(cfg.Log)
	defer closeLog()
	slog.Info("placafipe starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"warm", cfg.Browser.WarmStart,
		"maxContexts", cfg.Browser.MaxContexts,
		"fetchMode", cfg.Lookup.FetchMode,
	)

	// ── 3. Build the request interception policy ────────────────────
	policy := intercept.New(intercept.Options{
		PrimaryHosts:      primaryHosts(cfg.Lookup.BaseURL),
		BlockedTypes:      cfg.Intercept.BlockedResourceTypes,
		BlockedExtensions: blockedExtensions(cfg.Intercept.BlockedExtensions),
		BlockAds:          cfg.Intercept.BlockAds,
		ExtraDomains:      cfg.Intercept.BlockedDomains,
	})
	slog.Info("interception policy ready", "rules", policy.Len())

	// ── 4. Initialise the browser session manager ───────────────────
	launcher := browser.NewRodLauncher(cfg.Browser, policy, slog.Default())
	sessions := browser.NewManager(launcher, browser.Options{
		Warm:          cfg.Browser.WarmStart,
		MaxContexts:   cfg.Browser.MaxContexts,
		LaunchTimeout: cfg.Browser.LaunchTimeout,
		Logger:        slog.Default(),
	})

	// Warm the engine in the background so the listener comes up at once.
	// The first lookup joins the same launch if it is still in flight.
	if cfg.Browser.WarmStart {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Browser.LaunchTimeout)
			defer cancel()
			if err := sessions.Start(ctx); err != nil {
				slog.Warn("browser warm start failed, will retry on first lookup", "error", err)
				return
			}
			slog.Info("browser warm start complete")
		}()
	}

	// ── 5. Metrics and lookup service ───────────────────────────────
	var collector *metrics.Collector
	var recorder lookup.Recorder
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector("placafipe", sessions)
		recorder = collector
	}

	svc, err := lookup.FromConfig(cfg, sessions, recorder, slog.Default())
	if err != nil {
		slog.Error("failed to build lookup service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// ── 6. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(api.Deps{
		Lookup:    svc,
		Sessions:  sessions,
		Metrics:   collector,
		Config:    cfg,
		StartTime: time.Now(),
	})

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Closes every open context, then the browser itself.
	if err := sessions.Shutdown(); err != nil {
		slog.Error("browser shutdown", "error", err)
	}
	slog.Info("placafipe stopped")
}

// initLogger configures slog based on the LogConfig. When a log file is
// configured, records go to stdout and a size-rotated file. The returned
// func flushes and closes the file sink.
func initLogger(cfg config.LogConfig) func() {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() { _ = rotator.Close() }
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
	return closeFn
}

// primaryHosts returns the host of the lookup base URL, whose documents
// the interception policy must never block.
func primaryHosts(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return []string{u.Hostname()}
}

func blockedExtensions(configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	return intercept.DefaultBlockedExtensions
}
