// Package tlscheck performs the TLS certificate signal: it connects to the
// URL's host, inspects the presented certificate, and scores expiry, issuer
// trust, self-signing, wildcard subjects, version and key strength.
package tlscheck

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/phishguard/risk-engine/internal/domain"
)

// knownCAs is a fixed set of major certificate authorities. Matching is
// substring, case-insensitive, against both issuer organization and CN.
var knownCAs = []string{
	"digicert", "globalsign", "let's encrypt", "godaddy", "comodo", "entrust",
	"verisign", "thawte", "geotrust", "rapidssl", "ssl.com", "sectigo",
	"trustwave", "startcom", "wosign", "symantec", "network solutions",
	"amazon", "google trust services", "microsoft", "apple", "mozilla",
}

// Fixed risk levels for outcomes where no certificate can be analyzed.
// Handshake failures are deliberately moderate: an unreachable host is
// suspicious but not proof of malice.
const (
	riskHTTP              = 60
	riskUnsupportedScheme = 50
	riskNoCertificate     = 80
	riskTLSError          = 60
	riskDNSError          = 50
	riskConnectionError   = 40

	validityThreshold = 30 // score below this means the certificate is considered valid
)

// Analyzer performs bounded TLS handshakes and scores the certificate.
type Analyzer struct {
	Timeout time.Duration

	// now is injectable for expiry tests.
	now func() time.Time

	// dial is injectable for handshake tests; defaults to a real TLS dial.
	dial func(ctx context.Context, host string) (*tls.Conn, error)
}

// NewAnalyzer creates a TLS analyzer with the given per-handshake timeout.
func NewAnalyzer(timeout time.Duration) *Analyzer {
	a := &Analyzer{Timeout: timeout, now: time.Now}
	a.dial = a.realDial
	return a
}

func (a *Analyzer) realDial(ctx context.Context, host string) (*tls.Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: a.Timeout},
		Config: &tls.Config{
			ServerName: host,
			// Verification is disabled on purpose: an invalid certificate is
			// exactly what this check wants to inspect and score, not an
			// error to abort on.
			InsecureSkipVerify: true,
		},
	}
	ctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, "443"))
	if err != nil {
		return nil, err
	}
	return conn.(*tls.Conn), nil
}

// Check analyzes the certificate presented by the URL's host. All failures
// degrade to a documented moderate-risk result; the outcome is always usable
// by the aggregator.
func (a *Analyzer) Check(ctx context.Context, rawURL string) (domain.Outcome, *domain.CertificateInfo) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return domain.Degrade(domain.SignalResult{
			RiskScore: 100,
			Flags:     []string{"Invalid URL format"},
			Extra:     map[string]any{"error": "invalid_url", "is_valid": false},
		}, "invalid URL"), nil
	}

	switch strings.ToLower(parsed.Scheme) {
	case "https":
		// Proceed to the handshake below.
	case "http":
		return domain.Ok(domain.SignalResult{
			RiskScore: riskHTTP,
			Flags:     []string{"Connection is unencrypted (HTTP) - no certificate to analyze"},
			Extra:     map[string]any{"connection_type": "http", "is_valid": false},
		}), nil
	default:
		return domain.Ok(domain.SignalResult{
			RiskScore: riskUnsupportedScheme,
			Flags:     []string{fmt.Sprintf("Unsupported protocol: %s", parsed.Scheme)},
			Extra:     map[string]any{"error": "unsupported_scheme", "is_valid": false},
		}), nil
	}

	conn, err := a.dial(ctx, parsed.Hostname())
	if err != nil {
		return a.degradeHandshake(err), nil
	}
	defer conn.Close()

	peer := conn.ConnectionState().PeerCertificates
	if len(peer) == 0 {
		return domain.Degrade(domain.SignalResult{
			RiskScore: riskNoCertificate,
			Flags:     []string{"No TLS certificate found"},
			Extra:     map[string]any{"error": "no_certificate", "is_valid": false},
		}, "no certificate presented"), nil
	}

	leaf := peer[0]
	bits, weak := publicKeyStrength(leaf.PublicKey)
	info := &domain.CertificateInfo{
		SubjectCN: leaf.Subject.CommonName,
		IssuerCN:  leaf.Issuer.CommonName,
		IssuerOrg: strings.Join(leaf.Issuer.Organization, " "),
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
		Version:   leaf.Version,
		KeyBits:   bits,
	}

	result := a.score(info, weak)
	return domain.Ok(result), info
}

// degradeHandshake converts a dial error into its documented moderate-risk
// outcome. The error class is preserved as a machine-readable code.
func (a *Analyzer) degradeHandshake(err error) domain.Outcome {
	var dnsErr *net.DNSError
	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError

	code := "connection_error"
	risk := riskConnectionError
	flag := fmt.Sprintf("TLS analysis failed: %v", err)

	switch {
	case errors.As(err, &dnsErr):
		code = "dns_error"
		risk = riskDNSError
		flag = fmt.Sprintf("DNS resolution failed: %v", err)
	case errors.As(err, &certErr), errors.As(err, &recordErr):
		code = "tls_error"
		risk = riskTLSError
		flag = fmt.Sprintf("TLS handshake failed: %v", err)
	}

	return domain.Degrade(domain.SignalResult{
		RiskScore: risk,
		Flags:     []string{flag},
		Extra:     map[string]any{"error": code, "is_valid": false},
	}, code)
}

// score computes the certificate risk from its metadata and fills the
// derived fields of info in place.
func (a *Analyzer) score(info *domain.CertificateInfo, keyWeak bool) domain.SignalResult {
	score := 0
	flags := []string{}
	now := a.now()

	// Expiry bucket.
	if now.After(info.NotAfter) {
		info.IsExpired = true
		info.DaysSinceExpiry = int(now.Sub(info.NotAfter).Hours() / 24)
		flags = append(flags, fmt.Sprintf("Certificate EXPIRED %d days ago", info.DaysSinceExpiry))
		score += 40
	} else {
		days := int(info.NotAfter.Sub(now).Hours() / 24)
		info.DaysUntilExpiry = days
		switch {
		case days <= 7:
			flags = append(flags, fmt.Sprintf("Certificate expires in %d days - critical", days))
			score += 30
		case days <= 30:
			flags = append(flags, fmt.Sprintf("Certificate expires in %d days - renew soon", days))
			score += 10
		default:
			flags = append(flags, fmt.Sprintf("Certificate valid for %d more days", days))
		}
	}

	// Self-signed: subject CN equals issuer CN.
	if info.SubjectCN != "" && strings.EqualFold(info.SubjectCN, info.IssuerCN) {
		info.IsSelfSigned = true
		flags = append(flags, "Self-signed certificate detected")
		score += 40
	}

	// Issuer trust.
	info.IssuerKnown = issuerKnown(info.IssuerOrg, info.IssuerCN)
	if info.IssuerKnown {
		flags = append(flags, fmt.Sprintf("Issued by trusted CA: %s", info.IssuerOrg))
	} else if info.IssuerOrg != "" {
		flags = append(flags, fmt.Sprintf("Unknown certificate authority: %s", info.IssuerOrg))
		score += 15
	}

	// Wildcard subject.
	if strings.HasPrefix(info.SubjectCN, "*.") {
		info.IsWildcard = true
		flags = append(flags, "Wildcard certificate - ensure all subdomains are trusted")
		score += 10
	}

	if info.Version < 3 {
		flags = append(flags, "Outdated certificate version")
		score += 5
	}

	if info.KeyBits > 0 {
		if keyWeak {
			flags = append(flags, fmt.Sprintf("Weak key size: %d bits", info.KeyBits))
			score += 10
		} else {
			flags = append(flags, fmt.Sprintf("Strong key size: %d bits", info.KeyBits))
		}
	}

	score = domain.ClampScore(score)
	return domain.SignalResult{
		RiskScore: score,
		Flags:     flags,
		Extra: map[string]any{
			"connection_type": "https",
			"is_valid":        score < validityThreshold,
		},
	}
}

func issuerKnown(org, cn string) bool {
	org = strings.ToLower(org)
	cn = strings.ToLower(cn)
	for _, ca := range knownCAs {
		if (org != "" && strings.Contains(org, ca)) || (cn != "" && strings.Contains(cn, ca)) {
			return true
		}
	}
	return false
}

// publicKeyStrength extracts the key size and whether it falls below the
// accepted strength floor. The 2048-bit floor applies to RSA only; elliptic
// curve keys are strong at much smaller sizes.
func publicKeyStrength(key any) (bits int, weak bool) {
	switch k := key.(type) {
	case *rsa.PublicKey:
		bits = k.N.BitLen()
		return bits, bits < 2048
	case *ecdsa.PublicKey:
		bits = k.Curve.Params().BitSize
		return bits, bits < 256
	case ed25519.PublicKey:
		return 256, false
	default:
		return 0, false
	}
}
