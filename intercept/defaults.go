package intercept

import "strings"

// DefaultBlockedTypes are the heavy sub-resources a data lookup never needs.
var DefaultBlockedTypes = []ResourceType{TypeImage, TypeStylesheet, TypeFont, TypeMedia}

// DefaultBlockedExtensions catches static assets that some pages load through
// XHR or fetch, where the resource type alone would let them through.
var DefaultBlockedExtensions = []string{"png", "jpg", "jpeg", "gif", "svg", "webp", "ico", "woff", "woff2", "otf", "ttf"}

// DefaultAdDomains are well-known advertising, analytics and tracking hosts,
// matched by substring against the request host.
var DefaultAdDomains = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"google-analytics.com",
	"googletagmanager.com",
	"googletagservices.com",
	"adservice.google",
	"connect.facebook.net",
	"adnxs.com",
	"adsrvr.org",
	"amazon-adsystem.com",
	"criteo.com",
	"criteo.net",
	"outbrain.com",
	"taboola.com",
	"moatads.com",
	"pubmatic.com",
	"rubiconproject.com",
	"scorecardresearch.com",
	"quantserve.com",
	"hotjar.com",
	"clarity.ms",
	"mixpanel.com",
	"segment.io",
	"chartbeat.com",
	"openx.net",
	"casalemedia.com",
	"demdex.net",
	"krxd.net",
	"sharethis.com",
	"addthis.com",
	"consensu.org",
	"onesignal.com",
}

// Options selects which rule families make up a policy.
type Options struct {
	// PrimaryHosts are the hosts whose documents must always load.
	PrimaryHosts []string

	// BlockedTypes are resource type names ("Image", "Font", ...).
	// Unknown names are ignored.
	BlockedTypes []string

	// BlockedExtensions are URL path extensions without the dot.
	BlockedExtensions []string

	// BlockAds enables DefaultAdDomains.
	BlockAds bool

	// ExtraDomains are appended to the domain rule.
	ExtraDomains []string
}

// New builds the standard policy: resource-type rule, then extension rule,
// then domain rule. Families with nothing to block are left out.
func New(opts Options) *Policy {
	var rules []Rule

	var types []ResourceType
	for _, name := range opts.BlockedTypes {
		if rt, ok := ParseResourceType(name); ok && rt != TypeDocument {
			types = append(types, rt)
		}
	}
	if len(types) > 0 {
		rules = append(rules, BlockResourceTypes(types...))
	}

	if len(opts.BlockedExtensions) > 0 {
		rules = append(rules, BlockExtensions(opts.BlockedExtensions...))
	}

	var domains []string
	if opts.BlockAds {
		domains = append(domains, DefaultAdDomains...)
	}
	for _, d := range opts.ExtraDomains {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	if len(domains) > 0 {
		rules = append(rules, BlockDomains(domains...))
	}

	return NewPolicy(opts.PrimaryHosts, rules...)
}

// DefaultTypeNames returns DefaultBlockedTypes as config strings.
func DefaultTypeNames() []string {
	names := make([]string, len(DefaultBlockedTypes))
	for i, t := range DefaultBlockedTypes {
		names[i] = string(t)
	}
	return names
}
