package lookup

import (
	"bufio"
	"context"
	stdtls "crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

// StaticPage is a page fetched without rendering.
type StaticPage struct {
	Status int
	Body   string
}

// StaticFetcher GETs pages over plain HTTP with a Chrome TLS fingerprint.
// It is the fast path tried before rendering in auto fetch mode.
type StaticFetcher struct {
	client         *http.Client
	userAgent      string
	acceptLanguage string
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewStaticFetcher creates a fetcher. proxyAddr may be empty, an http(s) URL or
// a socks5 URL. HTTPS targets are tunneled through the proxy by the dialer
// itself so the Chrome fingerprint survives the hop.
func NewStaticFetcher(proxyAddr, userAgent, acceptLanguage string) *StaticFetcher {
	proxyURL := parseProxy(proxyAddr)
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, proxyURL)
		},
		Proxy:             plainProxy(proxyURL),
		ForceAttemptHTTP2: false,
		MaxIdleConns:      16,
		IdleConnTimeout:   90 * time.Second,
	}
	return &StaticFetcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent:      userAgent,
		acceptLanguage: acceptLanguage,
	}
}

// Fetch returns the status and body of targetURL. HTTP error statuses are
// not errors; callers inspect Status.
func (f *StaticFetcher) Fetch(ctx context.Context, targetURL string) (*StaticPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	if f.acceptLanguage != "" {
		req.Header.Set("Accept-Language", f.acceptLanguage)
	}
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read body with a 10 MB limit to prevent unbounded memory use.
	const maxBody = 10 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("httpfetch: read body: %w", err)
	}
	return &StaticPage{Status: resp.StatusCode, Body: string(body)}, nil
}

// Close releases idle connections.
func (f *StaticFetcher) Close() {
	f.client.CloseIdleConnections()
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via
// utls, through proxyURL when set.
func dialTLSChrome(ctx context.Context, network, addr string, proxyURL *url.URL) (net.Conn, error) {
	conn, err := dialTarget(ctx, network, addr, proxyURL)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("httpfetch: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// parseProxy accepts http, https, socks5 and socks5h proxy URLs. Anything
// else yields nil and requests go direct.
func parseProxy(raw string) *url.URL {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
		return u
	}
	return nil
}

// plainProxy routes only plain-HTTP requests through the transport's own
// proxy support. With a Proxy set, http.Transport would perform the TLS
// handshake for HTTPS targets itself and bypass DialTLSContext.
func plainProxy(proxyURL *url.URL) func(*http.Request) (*url.URL, error) {
	if proxyURL == nil {
		return nil
	}
	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "http" {
			return proxyURL, nil
		}
		return nil, nil
	}
}

// dialTarget opens a raw connection to addr, directly or through proxyURL.
func dialTarget(ctx context.Context, network, addr string, proxyURL *url.URL) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if proxyURL == nil {
		return dialer.DialContext(ctx, network, addr)
	}

	switch proxyURL.Scheme {
	case "socks5", "socks5h":
		d, err := proxy.FromURL(proxyURL, dialer)
		if err != nil {
			return nil, fmt.Errorf("httpfetch: socks proxy: %w", err)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return d.Dial(network, addr)
	default:
		return connectTunnel(ctx, dialer, proxyURL, addr)
	}
}

// connectTunnel asks an HTTP proxy to CONNECT to addr and returns the
// tunneled connection.
func connectTunnel(ctx context.Context, dialer *net.Dialer, proxyURL *url.URL, addr string) (net.Conn, error) {
	conn, err := dialer.DialContext(ctx, "tcp", proxyHostPort(proxyURL))
	if err != nil {
		return nil, fmt.Errorf("httpfetch: dial proxy: %w", err)
	}
	if proxyURL.Scheme == "https" {
		pconn := stdtls.Client(conn, &stdtls.Config{ServerName: proxyURL.Hostname()})
		if err := pconn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("httpfetch: proxy tls: %w", err)
		}
		conn = pconn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if u := proxyURL.User; u != nil {
		pass, _ := u.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + pass))
		req.Header.Set("Proxy-Authorization", "Basic "+cred)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("httpfetch: write CONNECT: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("httpfetch: read CONNECT response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		conn.Close()
		return nil, fmt.Errorf("httpfetch: proxy refused CONNECT to %s: %s", addr, resp.Status)
	}
	return conn, nil
}

func proxyHostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
