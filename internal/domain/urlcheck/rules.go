package urlcheck

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Rule is one independent, point-additive heuristic over a parsed URL.
// Rules never see each other's output, so evaluation order cannot change the
// final score; the analyzer still runs them in a fixed order so that flags
// are reproducible for explainability.
type Rule interface {
	// Name returns the short identifier used in per-rule breakdowns.
	Name() string

	// Check returns a hit with the points and flag to record, or nil when
	// the rule does not trigger.
	Check(u *ParsedURL) *RuleHit
}

// RuleHit is the contribution of one triggered rule.
type RuleHit struct {
	Points int
	Flag   string
}

// ParsedURL carries the pre-parsed views of the URL the rules share, so each
// rule stays a pure check instead of re-parsing.
type ParsedURL struct {
	Raw      string
	Lower    string
	Hostname string
	Parsed   *url.URL
}

// NewParsedURL parses once for all rules. Parsed may be nil for input
// net/url rejects; rules that need it must tolerate that.
func NewParsedURL(rawURL string) *ParsedURL {
	p := &ParsedURL{Raw: rawURL, Lower: strings.ToLower(rawURL)}
	if parsed, err := url.Parse(rawURL); err == nil {
		p.Parsed = parsed
		p.Hostname = strings.ToLower(parsed.Hostname())
	}
	return p
}

var (
	ipv4Pattern     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	digitRunPattern = regexp.MustCompile(`\d{4,}`)
)

// suspiciousTLDs is the fixed denylist of TLDs disproportionately used by
// throwaway phishing domains.
var suspiciousTLDs = []string{
	".xyz", ".top", ".click", ".zip", ".club",
	".online", ".site", ".space", ".website", ".tech",
}

// phishingKeywords are terms that show up in credential-harvesting URLs far
// more often than in legitimate ones.
var phishingKeywords = []string{
	"login", "signin", "verify", "account", "secure",
	"banking", "paypal", "ebay", "amazon",
}

// doubleHyphenRule flags the "--" substring common in punycode-free brand
// impersonation domains.
type doubleHyphenRule struct{}

func (doubleHyphenRule) Name() string { return "double_hyphen" }

func (doubleHyphenRule) Check(u *ParsedURL) *RuleHit {
	if strings.Contains(u.Raw, "--") {
		return &RuleHit{Points: 15, Flag: "Suspicious: too many hyphens"}
	}
	return nil
}

type suspiciousTLDRule struct{}

func (suspiciousTLDRule) Name() string { return "suspicious_tld" }

func (suspiciousTLDRule) Check(u *ParsedURL) *RuleHit {
	host := u.Hostname
	if host == "" {
		host = u.Lower
	}
	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			return &RuleHit{Points: 20, Flag: "Suspicious TLD"}
		}
	}
	return nil
}

type ipLiteralRule struct{}

func (ipLiteralRule) Name() string { return "ip_literal" }

func (ipLiteralRule) Check(u *ParsedURL) *RuleHit {
	if ipv4Pattern.MatchString(u.Raw) {
		return &RuleHit{Points: 25, Flag: "IP address in URL (suspicious)"}
	}
	return nil
}

// subdomainDepthRule flags hostnames with more than 3 dot-separated labels;
// deep subdomain nesting is a common way to bury a trusted brand name.
type subdomainDepthRule struct{}

func (subdomainDepthRule) Name() string { return "subdomain_depth" }

func (subdomainDepthRule) Check(u *ParsedURL) *RuleHit {
	if u.Hostname == "" {
		return nil
	}
	if len(strings.Split(u.Hostname, ".")) > 3 {
		return &RuleHit{Points: 10, Flag: "Too many subdomains"}
	}
	return nil
}

type phishingKeywordRule struct{}

func (phishingKeywordRule) Name() string { return "phishing_keyword" }

func (phishingKeywordRule) Check(u *ParsedURL) *RuleHit {
	for _, keyword := range phishingKeywords {
		if strings.Contains(u.Lower, keyword) {
			return &RuleHit{Points: 15, Flag: "Contains common phishing keywords"}
		}
	}
	return nil
}

// shortenerRule flags hostnames belonging to known link-shortening services,
// where the true destination is hidden until resolved. Overrides exempt
// domains that merely look shortener-shaped.
type shortenerRule struct {
	shorteners []string
	overrides  []string
}

func (shortenerRule) Name() string { return "shortened_url" }

func (r shortenerRule) Check(u *ParsedURL) *RuleHit {
	if u.Hostname == "" {
		return nil
	}
	for _, override := range r.overrides {
		if u.Hostname == override {
			return nil
		}
	}
	for _, short := range r.shorteners {
		if strings.Contains(u.Hostname, short) {
			return &RuleHit{Points: 20, Flag: "Shortened URL (cannot verify destination)"}
		}
	}
	return nil
}

type schemeRule struct{}

func (schemeRule) Name() string { return "non_https" }

func (schemeRule) Check(u *ParsedURL) *RuleHit {
	if !strings.HasPrefix(u.Lower, "https://") {
		return &RuleHit{Points: 10, Flag: "Not using HTTPS"}
	}
	return nil
}

type digitRunRule struct{}

func (digitRunRule) Name() string { return "long_digit_run" }

func (digitRunRule) Check(u *ParsedURL) *RuleHit {
	if digitRunPattern.MatchString(u.Raw) {
		return &RuleHit{Points: 15, Flag: "Contains long numeric sequences"}
	}
	return nil
}

type javascriptRule struct{}

func (javascriptRule) Name() string { return "javascript_scheme" }

func (javascriptRule) Check(u *ParsedURL) *RuleHit {
	if strings.Contains(u.Lower, "javascript:") {
		return &RuleHit{Points: 30, Flag: "Contains JavaScript execution"}
	}
	return nil
}

type lengthRule struct{}

func (lengthRule) Name() string { return "url_length" }

func (lengthRule) Check(u *ParsedURL) *RuleHit {
	if len(u.Raw) > 200 {
		return &RuleHit{Points: 10, Flag: "Unusually long URL"}
	}
	return nil
}

// describeHit formats a rule hit for structured logs.
func describeHit(rule Rule, hit *RuleHit) string {
	return fmt.Sprintf("%s(+%d)", rule.Name(), hit.Points)
}
