package intercept

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func standardPolicy() *Policy {
	return New(Options{
		PrimaryHosts:      []string{"placafipe.com"},
		BlockedTypes:      DefaultTypeNames(),
		BlockedExtensions: DefaultBlockedExtensions,
		BlockAds:          true,
		ExtraDomains:      []string{"tracker.example"},
	})
}

func TestPolicy_Decide(t *testing.T) {
	p := standardPolicy()

	tests := []struct {
		name string
		req  Request
		want Action
	}{
		{"primary document", Request{URL: "https://placafipe.com/placa/ABC1234", Type: TypeDocument}, Continue},
		{"primary document on subdomain", Request{URL: "https://www.placafipe.com/placa/ABC1234", Type: TypeDocument}, Continue},
		{"image", Request{URL: "https://placafipe.com/logo.png", Type: TypeImage}, Abort},
		{"font", Request{URL: "https://fonts.gstatic.com/x.woff2", Type: TypeFont}, Abort},
		{"stylesheet", Request{URL: "https://placafipe.com/site.css", Type: TypeStylesheet}, Abort},
		{"media", Request{URL: "https://placafipe.com/intro.mp4", Type: TypeMedia}, Abort},
		{"image fetched via xhr", Request{URL: "https://cdn.example/pic.JPG?v=2", Type: TypeXHR}, Abort},
		{"first party script", Request{URL: "https://placafipe.com/app.js", Type: TypeScript}, Continue},
		{"analytics script", Request{URL: "https://www.google-analytics.com/analytics.js", Type: TypeScript}, Abort},
		{"ad iframe document", Request{URL: "https://securepubads.g.doubleclick.net/page", Type: TypeDocument}, Abort},
		{"configured domain", Request{URL: "https://api.tracker.example/collect", Type: TypeFetch}, Abort},
		{"first party xhr", Request{URL: "https://placafipe.com/api/fipe", Type: TypeXHR}, Continue},
		{"unparseable url", Request{URL: "://bad", Type: TypeOther}, Continue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Decide(tt.req), "rule %q", p.Rule(tt.req))
		})
	}
}

func TestPolicy_FirstMatchWins(t *testing.T) {
	allow := Rule{Name: "allow-cdn", Action: Continue, Match: func(r Request) bool { return r.URL == "https://cdn.example/keep.png" }}
	p := NewPolicy(nil, allow, BlockExtensions("png"))

	assert.Equal(t, Continue, p.Decide(Request{URL: "https://cdn.example/keep.png", Type: TypeXHR}))
	assert.Equal(t, "allow-cdn", p.Rule(Request{URL: "https://cdn.example/keep.png", Type: TypeXHR}))
	assert.Equal(t, Abort, p.Decide(Request{URL: "https://cdn.example/drop.png", Type: TypeXHR}))
}

func TestPolicy_DefaultContinue(t *testing.T) {
	assert.Equal(t, Continue, NewPolicy(nil).Decide(Request{URL: "https://x.example/a.png", Type: TypeImage}))

	var nilPolicy *Policy
	assert.Equal(t, Continue, nilPolicy.Decide(Request{URL: "https://x.example", Type: TypeImage}))
	assert.True(t, nilPolicy.Empty())
}

func TestPolicy_ImmutableRules(t *testing.T) {
	rules := []Rule{BlockResourceTypes(TypeImage)}
	p := NewPolicy(nil, rules...)
	rules[0] = Rule{Name: "swapped", Action: Continue, Match: func(Request) bool { return true }}

	assert.Equal(t, Abort, p.Decide(Request{URL: "https://x.example/a", Type: TypeImage}))
}

func TestNew_IgnoresUnknownAndDocumentTypes(t *testing.T) {
	p := New(Options{BlockedTypes: []string{"Document", "bogus", "image"}})

	assert.Equal(t, 1, p.Len())
	assert.Equal(t, Continue, p.Decide(Request{URL: "https://x.example", Type: TypeDocument}))
	assert.Equal(t, Abort, p.Decide(Request{URL: "https://x.example/a", Type: TypeImage}))
}

func TestParseResourceType(t *testing.T) {
	rt, ok := ParseResourceType(" stylesheet ")
	assert.True(t, ok)
	assert.Equal(t, TypeStylesheet, rt)

	_, ok = ParseResourceType("beacon")
	assert.False(t, ok)
}

func TestPolicy_NeverLetsHeavyResourcesThrough(t *testing.T) {
	p := standardPolicy()
	heavy := []ResourceType{TypeImage, TypeFont, TypeStylesheet, TypeMedia}

	rapid.Check(t, func(t *rapid.T) {
		host := rapid.SampledFrom([]string{"placafipe.com", "cdn.example", "fonts.gstatic.com"}).Draw(t, "host")
		p2 := rapid.StringMatching(`[a-z0-9/]{0,20}`).Draw(t, "path")
		rt := rapid.SampledFrom(heavy).Draw(t, "type")

		req := Request{URL: "https://" + host + "/" + p2, Type: rt}
		if got := p.Decide(req); got != Abort {
			t.Fatalf("%+v allowed through", req)
		}
	})
}

func TestPolicy_NeverLetsBlockedDomainsThrough(t *testing.T) {
	p := standardPolicy()

	rapid.Check(t, func(t *rapid.T) {
		domain := rapid.SampledFrom(DefaultAdDomains).Draw(t, "domain")
		sub := rapid.StringMatching(`([a-z]{1,8}\.)?`).Draw(t, "sub")
		rt := rapid.SampledFrom([]ResourceType{TypeScript, TypeXHR, TypeFetch, TypeOther, TypeDocument}).Draw(t, "type")

		req := Request{URL: "https://" + sub + domain + "/x", Type: rt}
		if got := p.Decide(req); got != Abort {
			t.Fatalf("%+v allowed through", req)
		}
	})
}

func TestPolicy_AlwaysAllowsPrimaryDocument(t *testing.T) {
	p := standardPolicy()

	rapid.Check(t, func(t *rapid.T) {
		plate := rapid.StringMatching(`[A-Z0-9]{7}`).Draw(t, "plate")
		req := Request{URL: "https://placafipe.com/placa/" + plate, Type: TypeDocument}
		if got := p.Decide(req); got != Continue {
			t.Fatalf("primary document %q aborted", req.URL)
		}
	})
}
