package redirect

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/phishguard/risk-engine/internal/domain"
)

// Point values for chain risk patterns.
const (
	pointsDomainMismatch = 15
	pointsLongChain      = 20
	pointsLoop           = 25
	pointsBadScheme      = 30

	hopAlertThreshold = 3
)

// dangerousSchemes are redirect targets that execute in the victim's browser
// context instead of navigating.
var dangerousSchemes = []string{"javascript:", "data:", "vbscript:"}

// Analyze inspects a completed chain for risk patterns. It is pure: the
// chain has already been fetched.
func Analyze(chain domain.RedirectChain) domain.SignalResult {
	score := 0
	flags := []string{}
	suspicious := false

	// Cross-domain landing: compare registrable domains of origin and final.
	origDomain := registrableDomain(chain.OriginalURL)
	finalDomain := registrableDomain(chain.FinalURL)
	if origDomain != "" && finalDomain != "" && origDomain != finalDomain {
		flags = append(flags, "Domain mismatch - final domain differs significantly from original")
		score += pointsDomainMismatch
		suspicious = true
	}

	if len(chain.Hops) > hopAlertThreshold {
		flags = append(flags, fmt.Sprintf("Too many redirects (%d hops) - suspicious activity", len(chain.Hops)))
		score += pointsLongChain
		suspicious = true
	}

	// Loop detection: any URL visited twice.
	seen := make(map[string]struct{}, len(chain.Hops))
	for _, hop := range chain.Hops {
		key := strings.ToLower(hop.URL)
		if _, ok := seen[key]; ok {
			flags = append(flags, "Redirect loop detected - suspicious")
			score += pointsLoop
			suspicious = true
			break
		}
		seen[key] = struct{}{}
	}

	// One dangerous-scheme hit is enough; don't stack per hop.
	badScheme := false
	for _, hop := range chain.Hops {
		target := strings.ToLower(hop.RedirectTo)
		for _, scheme := range dangerousSchemes {
			if strings.Contains(target, scheme) {
				badScheme = true
			}
		}
		if badScheme {
			flags = append(flags, "Malicious redirect pattern detected")
			score += pointsBadScheme
			suspicious = true
			break
		}
	}

	return domain.SignalResult{
		RiskScore: domain.ClampScore(score),
		Flags:     flags,
		Extra: map[string]any{
			"suspicious": suspicious,
			"hop_count":  len(chain.Hops),
			"final_url":  chain.FinalURL,
		},
	}
}

// registrableDomain returns the eTLD+1 of the URL's hostname. When the
// public suffix list cannot produce one (IP literals, single-label hosts)
// it falls back to the last two dot-separated labels.
func registrableDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return ""
	}

	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return strings.Join(parts[len(parts)-2:], ".")
	}
	return host
}
