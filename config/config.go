package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Lookup    LookupConfig
	Layout    LayoutConfig
	Intercept InterceptConfig
	CORS      CORSConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8000
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the headless engine and its browsing contexts.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in containers).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the upstream proxy for every request.
	Proxy string

	// WarmStart keeps one engine for the process lifetime instead of
	// launching one per lookup.
	WarmStart bool // default: true

	// MaxContexts bounds concurrently open browsing contexts.
	MaxContexts int // default: 4

	// LaunchTimeout bounds a single engine launch.
	LaunchTimeout time.Duration // default: 30s

	UserAgent      string
	AcceptLanguage string // default: "pt-BR,pt;q=0.9,en;q=0.8"
	ViewportWidth  int    // default: 1280
	ViewportHeight int    // default: 720

	// Stealth injects anti-detection scripts into every new page.
	Stealth bool // default: true

	// ExtraFlags are additional Chromium switches, "name" or "name=value".
	ExtraFlags []string
}

// LookupConfig controls navigation, retry and fetch behavior.
type LookupConfig struct {
	// BaseURL is the plate path prefix; the normalized plate is appended.
	BaseURL string // default: "https://placafipe.com/placa"

	// WaitStrategy is commit, content-loaded or network-idle.
	WaitStrategy string // default: "network-idle"

	NavigationTimeout time.Duration // default: 30s
	SelectorTimeout   time.Duration // default: 8s

	// RequestTimeout bounds one lookup including every retry.
	RequestTimeout time.Duration // default: 90s

	MaxRetryAttempts int           // default: 2
	RetryBackoff     time.Duration // default: 1s

	// RetryTimeouts treats TIMEOUT as retryable.
	RetryTimeouts bool // default: false

	// RetryNotFound treats NOT_FOUND as retryable.
	RetryNotFound bool // default: false

	// TimeoutStatus is the HTTP status for TIMEOUT outcomes (504 or 500).
	TimeoutStatus int // default: 504

	// FetchMode is "browser" or "auto". Auto tries a plain HTTP fetch with
	// a browser TLS fingerprint before rendering.
	FetchMode string // default: "browser"

	// StaticTimeout bounds the HTTP fast path in auto mode.
	StaticTimeout time.Duration // default: 5s
}

// LayoutConfig holds the selectors that describe the target page.
type LayoutConfig struct {
	DetailSelectors    []string // default: ["table.fipeTablePriceDetail"]
	ValuationSelectors []string // default: ["table.fipe-desktop", "table.fipe-mobile"]
	HistoryMarker      string   // default: "Ano IPVA"
	NotFoundText       string   // default: "Placa não encontrada"
}

// InterceptConfig controls which subresources are aborted.
type InterceptConfig struct {
	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockedExtensions lists URL path extensions to block.
	BlockedExtensions []string

	// BlockAds enables the built-in ad and analytics domain list.
	BlockAds bool // default: true

	// BlockedDomains are extra host substrings to block.
	BlockedDomains []string
}

// CORSConfig controls cross-origin access to the API.
type CORSConfig struct {
	AllowOrigins []string // default: ["*"]
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-client rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client; 0 disables limiting.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per client.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"

	// File enables a size-rotated log file in addition to stdout.
	File       string
	MaxSizeMB  int // default: 50
	MaxBackups int // default: 3
	MaxAgeDays int // default: 14
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool // default: true
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PLACAFIPE_HOST", "0.0.0.0"),
			Port: envIntOr("PORT", envIntOr("PLACAFIPE_PORT", 8000)),
			Mode: envOr("PLACAFIPE_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("PLACAFIPE_HEADLESS", true),
			NoSandbox:      envBoolOr("PLACAFIPE_NO_SANDBOX", true),
			BrowserBin:     os.Getenv("PLACAFIPE_BROWSER_BIN"),
			Proxy:          os.Getenv("PLACAFIPE_PROXY"),
			WarmStart:      envBoolOr("PLACAFIPE_WARM_START", true),
			MaxContexts:    envIntOr("PLACAFIPE_MAX_CONTEXTS", 4),
			LaunchTimeout:  envDurationOr("PLACAFIPE_LAUNCH_TIMEOUT", 30*time.Second),
			UserAgent:      envOr("PLACAFIPE_USER_AGENT", DefaultUserAgent),
			AcceptLanguage: envOr("PLACAFIPE_ACCEPT_LANGUAGE", "pt-BR,pt;q=0.9,en;q=0.8"),
			ViewportWidth:  envIntOr("PLACAFIPE_VIEWPORT_WIDTH", 1280),
			ViewportHeight: envIntOr("PLACAFIPE_VIEWPORT_HEIGHT", 720),
			Stealth:        envBoolOr("PLACAFIPE_STEALTH", true),
			ExtraFlags:     envSliceOr("PLACAFIPE_EXTRA_FLAGS", nil),
		},
		Lookup: LookupConfig{
			BaseURL:           envOr("PLACAFIPE_BASE_URL", "https://placafipe.com/placa"),
			WaitStrategy:      envOr("PLACAFIPE_WAIT_STRATEGY", "network-idle"),
			NavigationTimeout: envMillisOr("PLACAFIPE_NAV_TIMEOUT_MS", 30*time.Second),
			SelectorTimeout:   envMillisOr("PLACAFIPE_SELECTOR_TIMEOUT_MS", 8*time.Second),
			RequestTimeout:    envDurationOr("PLACAFIPE_REQUEST_TIMEOUT", 90*time.Second),
			MaxRetryAttempts:  envIntOr("PLACAFIPE_MAX_RETRY_ATTEMPTS", 2),
			RetryBackoff:      envMillisOr("PLACAFIPE_RETRY_BACKOFF_MS", time.Second),
			RetryTimeouts:     envBoolOr("PLACAFIPE_RETRY_TIMEOUTS", false),
			RetryNotFound:     envBoolOr("PLACAFIPE_RETRY_NOT_FOUND", false),
			TimeoutStatus:     envIntOr("PLACAFIPE_TIMEOUT_STATUS", 504),
			FetchMode:         envOr("PLACAFIPE_FETCH_MODE", FetchModeBrowser),
			StaticTimeout:     envDurationOr("PLACAFIPE_STATIC_TIMEOUT", 5*time.Second),
		},
		Layout: LayoutConfig{
			DetailSelectors:    envSliceOr("PLACAFIPE_DETAIL_SELECTORS", []string{"table.fipeTablePriceDetail"}),
			ValuationSelectors: envSliceOr("PLACAFIPE_VALUATION_SELECTORS", []string{"table.fipe-desktop", "table.fipe-mobile"}),
			HistoryMarker:      envOr("PLACAFIPE_HISTORY_MARKER", "Ano IPVA"),
			NotFoundText:       envOr("PLACAFIPE_NOT_FOUND_TEXT", "Placa não encontrada"),
		},
		Intercept: InterceptConfig{
			BlockedResourceTypes: envSliceOr("PLACAFIPE_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			BlockedExtensions: envSliceOr("PLACAFIPE_BLOCKED_EXTENSIONS", nil),
			BlockAds:          envBoolOr("PLACAFIPE_BLOCK_ADS", true),
			BlockedDomains:    envSliceOr("PLACAFIPE_BLOCKED_DOMAINS", nil),
		},
		CORS: CORSConfig{
			AllowOrigins: envSliceOr("PLACAFIPE_CORS_ORIGINS", []string{"*"}),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PLACAFIPE_AUTH_ENABLED", false),
			APIKeys: envSliceOr("PLACAFIPE_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PLACAFIPE_RATE_RPS", 5.0),
			Burst:             envIntOr("PLACAFIPE_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:      envOr("PLACAFIPE_LOG_LEVEL", "info"),
			Format:     envOr("PLACAFIPE_LOG_FORMAT", "json"),
			File:       os.Getenv("PLACAFIPE_LOG_FILE"),
			MaxSizeMB:  envIntOr("PLACAFIPE_LOG_MAX_SIZE_MB", 50),
			MaxBackups: envIntOr("PLACAFIPE_LOG_MAX_BACKUPS", 3),
			MaxAgeDays: envIntOr("PLACAFIPE_LOG_MAX_AGE_DAYS", 14),
		},
		Metrics: MetricsConfig{
			Enabled: envBoolOr("PLACAFIPE_METRICS_ENABLED", true),
		},
	}
}

// DefaultUserAgent matches a current desktop Chrome on Windows.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Fetch modes.
const (
	FetchModeBrowser = "browser"
	FetchModeAuto    = "auto"
)

var waitStrategies = map[string]struct{}{
	"commit":             {},
	"content-loaded":     {},
	"domcontentloaded":   {},
	"dom-content-loaded": {},
	"network-idle":       {},
	"networkidle":        {},
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("port %d out of range", c.Server.Port)
	}
	if c.Browser.MaxContexts < 1 {
		add("max contexts must be positive, got %d", c.Browser.MaxContexts)
	}
	if c.Browser.LaunchTimeout <= 0 {
		add("launch timeout must be positive")
	}
	if c.Browser.ViewportWidth < 1 || c.Browser.ViewportHeight < 1 {
		add("viewport %dx%d is invalid", c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}

	if !strings.HasPrefix(c.Lookup.BaseURL, "http://") && !strings.HasPrefix(c.Lookup.BaseURL, "https://") {
		add("base url %q must be http or https", c.Lookup.BaseURL)
	}
	if _, ok := waitStrategies[strings.ToLower(strings.TrimSpace(c.Lookup.WaitStrategy))]; !ok {
		add("unknown wait strategy %q", c.Lookup.WaitStrategy)
	}
	if c.Lookup.NavigationTimeout <= 0 {
		add("navigation timeout must be positive")
	}
	if c.Lookup.SelectorTimeout <= 0 {
		add("selector timeout must be positive")
	}
	if c.Lookup.RequestTimeout <= 0 {
		add("request timeout must be positive")
	}
	if c.Lookup.MaxRetryAttempts < 1 {
		add("max retry attempts must be at least 1, got %d", c.Lookup.MaxRetryAttempts)
	}
	if c.Lookup.RetryBackoff < 0 {
		add("retry backoff must not be negative")
	}
	if c.Lookup.TimeoutStatus != 504 && c.Lookup.TimeoutStatus != 500 {
		add("timeout status must be 504 or 500, got %d", c.Lookup.TimeoutStatus)
	}
	if c.Lookup.FetchMode != FetchModeBrowser && c.Lookup.FetchMode != FetchModeAuto {
		add("fetch mode must be %q or %q, got %q", FetchModeBrowser, FetchModeAuto, c.Lookup.FetchMode)
	}

	if len(c.Layout.DetailSelectors) == 0 {
		add("at least one detail selector is required")
	}
	if len(c.Layout.ValuationSelectors) == 0 {
		add("at least one valuation selector is required")
	}
	for _, sel := range append(append([]string(nil), c.Layout.DetailSelectors...), c.Layout.ValuationSelectors...) {
		if _, err := cascadia.Compile(sel); err != nil {
			add("selector %q: %v", sel, err)
		}
	}
	if strings.TrimSpace(c.Layout.HistoryMarker) == "" {
		add("history marker must not be empty")
	}
	if strings.TrimSpace(c.Layout.NotFoundText) == "" {
		add("not-found text must not be empty")
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		add("auth is enabled but no API keys are configured")
	}
	if c.RateLimit.RequestsPerSecond < 0 || (c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1) {
		add("rate limit %.2f rps with burst %d is invalid", c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}

	return errors.Join(errs...)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envMillisOr reads a plain integer of milliseconds. Go duration strings
// ("750ms", "2s") are accepted too.
func envMillisOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
