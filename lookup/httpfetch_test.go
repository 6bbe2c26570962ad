package lookup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startConnectProxy accepts one connection, answers its CONNECT with
// status and, on 200, echoes tunneled bytes back. The request line and
// Proxy-Authorization header are reported on the returned channel.
func startConnectProxy(t *testing.T, status int) (*url.URL, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	seen := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		seen <- req.Method + " " + req.Host + " " + req.Header.Get("Proxy-Authorization")

		fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\n\r\n", status, http.StatusText(status))
		if status != http.StatusOK {
			return
		}
		_, _ = io.Copy(conn, br)
	}()
	t.Cleanup(func() {
		ln.Close()
		<-done
	})

	return &url.URL{Scheme: "http", Host: ln.Addr().String(), User: url.UserPassword("user", "secret")}, seen
}

func TestDialTargetTunnelsThroughProxy(t *testing.T) {
	proxyURL, seen := startConnectProxy(t, http.StatusOK)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := dialTarget(ctx, "tcp", "placafipe.example:443", proxyURL)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "CONNECT placafipe.example:443 Basic dXNlcjpzZWNyZXQ=", <-seen)

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestDialTargetProxyRefusal(t *testing.T) {
	proxyURL, _ := startConnectProxy(t, http.StatusProxyAuthRequired)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := dialTarget(ctx, "tcp", "placafipe.example:443", proxyURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "407")
}

func TestParseProxy(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"http://proxy.local:3128", "http://proxy.local:3128"},
		{"https://proxy.local", "https://proxy.local"},
		{"socks5://127.0.0.1:1080", "socks5://127.0.0.1:1080"},
		{"ftp://proxy.local", ""},
		{"proxy.local:3128", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := parseProxy(tt.raw)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestPlainProxyOnlyRoutesHTTP(t *testing.T) {
	assert.Nil(t, plainProxy(nil))

	proxyURL := parseProxy("http://proxy.local:3128")
	route := plainProxy(proxyURL)

	plain, _ := http.NewRequest(http.MethodGet, "http://placafipe.example/placa/ABC1D23", nil)
	got, err := route(plain)
	require.NoError(t, err)
	assert.Equal(t, proxyURL, got)

	secure, _ := http.NewRequest(http.MethodGet, "https://placafipe.example/placa/ABC1D23", nil)
	got, err = route(secure)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProxyHostPort(t *testing.T) {
	assert.Equal(t, "proxy.local:3128", proxyHostPort(parseProxy("http://proxy.local:3128")))
	assert.Equal(t, "proxy.local:80", proxyHostPort(parseProxy("http://proxy.local")))
	assert.Equal(t, "proxy.local:443", proxyHostPort(parseProxy("https://proxy.local")))
}
