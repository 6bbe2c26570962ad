// Package intercept decides, per outgoing sub-request of a page load, whether
// the browser may fetch it. Rules are plain values so the policy can be
// exercised without a browser; package browser wires it into Chrome.
package intercept

import (
	"net/url"
	"path"
	"strings"
)

// Action is the verdict for one sub-request.
type Action int

const (
	Continue Action = iota
	Abort
)

func (a Action) String() string {
	if a == Abort {
		return "abort"
	}
	return "continue"
}

// ResourceType mirrors the DevTools Network.ResourceType values
// ("Document", "Image", "Stylesheet", ...).
type ResourceType string

// Resource types the policy knows by name.
const (
	TypeDocument   ResourceType = "Document"
	TypeStylesheet ResourceType = "Stylesheet"
	TypeImage      ResourceType = "Image"
	TypeMedia      ResourceType = "Media"
	TypeFont       ResourceType = "Font"
	TypeScript     ResourceType = "Script"
	TypeXHR        ResourceType = "XHR"
	TypeFetch      ResourceType = "Fetch"
	TypeOther      ResourceType = "Other"
)

// knownTypes maps lower-cased config names to resource types.
var knownTypes = map[string]ResourceType{
	"document":   TypeDocument,
	"image":      TypeImage,
	"stylesheet": TypeStylesheet,
	"font":       TypeFont,
	"media":      TypeMedia,
	"script":     TypeScript,
	"xhr":        TypeXHR,
	"fetch":      TypeFetch,
	"other":      TypeOther,
}

// ParseResourceType resolves a config name case-insensitively.
func ParseResourceType(name string) (ResourceType, bool) {
	rt, ok := knownTypes[strings.ToLower(strings.TrimSpace(name))]
	return rt, ok
}

// Request is the part of an intercepted request the rules look at.
type Request struct {
	URL  string
	Type ResourceType
}

// Rule is one predicate/action pair. The first matching rule wins.
type Rule struct {
	Name   string
	Match  func(Request) bool
	Action Action
}

// Policy is an ordered, immutable rule set.
// It is safe for concurrent use.
type Policy struct {
	rules        []Rule
	primaryHosts []string
}

// NewPolicy builds a policy from rules in evaluation order. Documents served
// from one of primaryHosts are never aborted; with no primaryHosts every
// Document request is treated as primary.
func NewPolicy(primaryHosts []string, rules ...Rule) *Policy {
	hosts := make([]string, 0, len(primaryHosts))
	for _, h := range primaryHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return &Policy{
		rules:        append([]Rule(nil), rules...),
		primaryHosts: hosts,
	}
}

// Decide returns the action for req. Default is Continue.
func (p *Policy) Decide(req Request) Action {
	if p == nil {
		return Continue
	}
	if req.Type == TypeDocument && p.isPrimary(req.URL) {
		return Continue
	}
	for _, r := range p.rules {
		if r.Match(req) {
			return r.Action
		}
	}
	return Continue
}

// Rule returns the name of the rule that decides req, or "" for the default.
func (p *Policy) Rule(req Request) string {
	if p == nil || (req.Type == TypeDocument && p.isPrimary(req.URL)) {
		return ""
	}
	for _, r := range p.rules {
		if r.Match(req) {
			return r.Name
		}
	}
	return ""
}

// Len returns the number of rules.
func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

// Empty reports whether installing the policy would change nothing.
func (p *Policy) Empty() bool { return p.Len() == 0 }

func (p *Policy) isPrimary(rawURL string) bool {
	if len(p.primaryHosts) == 0 {
		return true
	}
	host := hostOf(rawURL)
	for _, h := range p.primaryHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// BlockResourceTypes aborts requests of any of the given types.
func BlockResourceTypes(types ...ResourceType) Rule {
	set := make(map[ResourceType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return Rule{
		Name:   "resource-type",
		Action: Abort,
		Match: func(r Request) bool {
			_, ok := set[r.Type]
			return ok
		},
	}
}

// BlockExtensions aborts requests whose URL path ends in one of exts
// (given without the dot, e.g. "png").
func BlockExtensions(exts ...string) Rule {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set["."+strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	return Rule{
		Name:   "extension",
		Action: Abort,
		Match: func(r Request) bool {
			u, err := url.Parse(r.URL)
			if err != nil {
				return false
			}
			_, ok := set[strings.ToLower(path.Ext(u.Path))]
			return ok
		},
	}
}

// BlockDomains aborts requests whose host contains any of the substrings.
func BlockDomains(substrings ...string) Rule {
	subs := make([]string, 0, len(substrings))
	for _, s := range substrings {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			subs = append(subs, s)
		}
	}
	return Rule{
		Name:   "domain",
		Action: Abort,
		Match: func(r Request) bool {
			host := hostOf(r.URL)
			if host == "" {
				return false
			}
			for _, s := range subs {
				if strings.Contains(host, s) {
					return true
				}
			}
			return false
		},
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
