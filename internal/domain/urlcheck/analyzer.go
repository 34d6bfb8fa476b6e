// Package urlcheck implements the pattern-based URL heuristics and the
// consensus logic that blends them with external threat intelligence and the
// ML classifier probability into one explainable per-URL risk score.
package urlcheck

import (
	"log/slog"
	"strings"

	"github.com/phishguard/risk-engine/internal/domain"
)

// defaultShorteners are hostnames of known link-shortening services.
var defaultShorteners = []string{
	"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly",
	"is.gd", "lnkd.in", "buff.ly", "rebrand.ly",
}

// defaultShortenerOverrides lists domains that match shortener structure but
// are not shorteners. The mechanism is configuration; nothing downstream
// depends on any particular entry.
var defaultShortenerOverrides = []string{"chatgpt.com"}

// defaultSafeDomains is the allowlist of well-known domains the consensus
// logic treats as reputationally established.
var defaultSafeDomains = []string{
	"google.com", "microsoft.com", "apple.com", "amazon.com", "facebook.com",
	"twitter.com", "linkedin.com", "github.com", "gitlab.com", "bitbucket.org",
	"stackoverflow.com", "medium.com", "youtube.com", "reddit.com",
	"chatgpt.com", "openai.com", "anthropic.com", "claude.ai", "perplexity.ai",
	"wikipedia.org", "wikimedia.org", "archive.org",
	"mit.edu", "stanford.edu", "harvard.edu", "berkeley.edu", "cmu.edu",
	"cornell.edu", "princeton.edu",
}

// Analyzer evaluates the heuristic rule set over raw URLs. It is stateless
// per request and safe for concurrent use.
type Analyzer struct {
	rules       []Rule
	safeDomains []string
	shorteners  []string
	overrides   []string
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithShortenerOverrides replaces the default shortener exception list.
func WithShortenerOverrides(overrides []string) Option {
	return func(a *Analyzer) {
		if len(overrides) > 0 {
			a.overrides = overrides
		}
	}
}

// WithSafeDomains replaces the default well-known-domain allowlist.
func WithSafeDomains(domains []string) Option {
	return func(a *Analyzer) {
		if len(domains) > 0 {
			a.safeDomains = domains
		}
	}
}

// NewAnalyzer creates an analyzer with the standard rule set.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		safeDomains: defaultSafeDomains,
		shorteners:  defaultShorteners,
		overrides:   defaultShortenerOverrides,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.rules = []Rule{
		doubleHyphenRule{},
		suspiciousTLDRule{},
		ipLiteralRule{},
		subdomainDepthRule{},
		phishingKeywordRule{},
		shortenerRule{shorteners: a.shorteners, overrides: a.overrides},
		schemeRule{},
		digitRunRule{},
		javascriptRule{},
		lengthRule{},
	}
	return a
}

// Heuristics runs every rule and returns the additive subtotal with one flag
// per triggered rule. This is the pure, offline part of the URL signal;
// external feeds and the ML blend are layered on top by Combine.
func (a *Analyzer) Heuristics(rawURL string) domain.SignalResult {
	parsed := NewParsedURL(rawURL)

	score := 0
	flags := make([]string, 0, len(a.rules))
	triggered := make([]string, 0, len(a.rules))

	for _, rule := range a.rules {
		hit := rule.Check(parsed)
		if hit == nil {
			continue
		}
		score += hit.Points
		flags = append(flags, hit.Flag)
		triggered = append(triggered, describeHit(rule, hit))
	}

	if len(triggered) > 0 {
		slog.Debug("url heuristics triggered", "url", rawURL, "rules", triggered)
	}

	return domain.SignalResult{
		RiskScore: domain.ClampScore(score),
		Flags:     flags,
		Extra: map[string]any{
			"heuristic_subtotal": score,
		},
	}
}

// IsKnownSafeDomain reports whether the hostname belongs to the well-known
// domain allowlist (exact match or subdomain of an allowlisted domain).
func (a *Analyzer) IsKnownSafeDomain(hostname string) bool {
	hostname = strings.ToLower(hostname)
	for _, safe := range a.safeDomains {
		if hostname == safe || strings.HasSuffix(hostname, "."+safe) {
			return true
		}
	}
	return false
}

// IsShortened reports whether the hostname belongs to a known shortener,
// honoring the override exceptions.
func (a *Analyzer) IsShortened(hostname string) bool {
	hostname = strings.ToLower(hostname)
	for _, override := range a.overrides {
		if hostname == override {
			return false
		}
	}
	for _, short := range a.shorteners {
		if strings.Contains(hostname, short) {
			return true
		}
	}
	return false
}
