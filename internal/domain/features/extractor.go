// Package features turns a raw URL string into the fixed numeric vector the
// URL classifier consumes. Extraction is pure: no I/O, no clock, and the same
// input always yields the same vector.
package features

import (
	"math"
	"net/url"
	"strings"
)

// Names lists every feature in the order the classifier expects them.
// The order is part of the model artifact contract: a persisted model trained
// against this schema is only valid while the order is unchanged.
var Names = []string{
	"url_length", "domain_length", "subdomain_length", "tld_length",
	"path_length", "query_length", "num_dots", "num_hyphens",
	"num_slashes", "num_question", "num_equals", "num_at",
	"num_percent", "num_digits", "has_https", "kw_login",
	"kw_secure", "kw_update", "kw_verify", "kw_payment", "kw_account",
}

// Vector is a named feature mapping. Use Ordered to get the dense slice the
// model layer consumes.
type Vector map[string]float64

// Ordered returns the feature values in schema order.
func (v Vector) Ordered() []float64 {
	out := make([]float64, len(Names))
	for i, name := range Names {
		out[i] = v[name]
	}
	return out
}

// keywords flagged as boolean features when present anywhere in the URL.
var keywordFeatures = map[string]string{
	"kw_login":   "login",
	"kw_secure":  "secure",
	"kw_update":  "update",
	"kw_verify":  "verify",
	"kw_payment": "payment",
	"kw_account": "account",
}

// safeFeature applies log(1+min(raw, cap)). The log compression keeps
// pathological inputs (multi-kilobyte URLs) from dominating the linear model.
func safeFeature(raw, capValue int) float64 {
	if raw > capValue {
		raw = capValue
	}
	return math.Log(1 + float64(raw))
}

// defaultVector is returned for input the parser rejects. Extraction must
// never fail, so malformed URLs map to a fixed all-default vector.
func defaultVector() Vector {
	v := make(Vector, len(Names))
	for _, name := range Names {
		v[name] = 0
	}
	v["has_https"] = 1
	return v
}

// Extract derives the feature vector from a URL string. A missing protocol
// prefix is treated as https.
func Extract(rawURL string) Vector {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return defaultVector()
	}

	hostname := parsed.Hostname()
	parts := strings.Split(hostname, ".")
	domainLabel := hostname
	subdomain := ""
	tld := ""
	if len(parts) >= 2 {
		domainLabel = parts[len(parts)-2]
		tld = parts[len(parts)-1]
	}
	if len(parts) > 2 {
		subdomain = strings.Join(parts[:len(parts)-2], ".")
	}

	lower := strings.ToLower(rawURL)
	digits := 0
	for _, r := range rawURL {
		if r >= '0' && r <= '9' {
			digits++
		}
	}

	v := Vector{
		"url_length":       safeFeature(len(rawURL), 2000),
		"domain_length":    safeFeature(len(domainLabel), 200),
		"subdomain_length": safeFeature(len(subdomain), 200),
		"tld_length":       safeFeature(len(tld), 50),
		"path_length":      safeFeature(len(parsed.Path), 2000),
		"query_length":     safeFeature(len(parsed.RawQuery), 2000),
		"num_dots":         safeFeature(strings.Count(rawURL, "."), 50),
		"num_hyphens":      safeFeature(strings.Count(rawURL, "-"), 50),
		"num_slashes":      safeFeature(strings.Count(rawURL, "/"), 200),
		"num_question":     safeFeature(strings.Count(rawURL, "?"), 20),
		"num_equals":       safeFeature(strings.Count(rawURL, "="), 50),
		"num_at":           safeFeature(strings.Count(rawURL, "@"), 10),
		"num_percent":      safeFeature(strings.Count(rawURL, "%"), 20),
		"num_digits":       safeFeature(digits, 200),
	}

	if strings.HasPrefix(lower, "https") {
		v["has_https"] = 1
	} else {
		v["has_https"] = 0
	}
	for feature, keyword := range keywordFeatures {
		if strings.Contains(lower, keyword) {
			v[feature] = 1
		} else {
			v[feature] = 0
		}
	}

	return v
}
