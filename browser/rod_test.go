package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/use-agent/placafipe/config"
)

func TestExtraHeaders(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.BrowserConfig
		want map[string]string
	}{
		{
			name: "user agent override carries the language",
			cfg:  config.BrowserConfig{UserAgent: config.DefaultUserAgent, AcceptLanguage: "pt-BR"},
			want: nil,
		},
		{
			name: "no user agent",
			cfg:  config.BrowserConfig{AcceptLanguage: "pt-BR"},
			want: map[string]string{"Accept-Language": "pt-BR"},
		},
		{
			name: "nothing to send",
			cfg:  config.BrowserConfig{},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extraHeaders(tt.cfg))
		})
	}
}

func TestToHeadersMap(t *testing.T) {
	h := toHeadersMap(map[string]string{"Accept-Language": "pt-BR,pt;q=0.9"})
	assert.Len(t, h, 1)
	assert.Equal(t, "pt-BR,pt;q=0.9", h["Accept-Language"].Str())
}
