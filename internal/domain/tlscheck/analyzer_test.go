package tlscheck

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phishguard/risk-engine/internal/domain"
)

func fixedNow() time.Time {
	return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testAnalyzer() *Analyzer {
	a := NewAnalyzer(2 * time.Second)
	a.now = fixedNow
	return a
}

func TestCheck_NonHTTPSSchemes(t *testing.T) {
	a := testAnalyzer()

	tests := []struct {
		name          string
		url           string
		expectedScore int
		degraded      bool
	}{
		{"plain http", "http://example.com", riskHTTP, false},
		{"unsupported scheme", "ftp://example.com/file", riskUnsupportedScheme, false},
		{"invalid url", "http://", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, cert := a.Check(context.Background(), tt.url)

			assert.Equal(t, tt.expectedScore, out.Result.RiskScore)
			assert.Equal(t, tt.degraded, out.Degraded)
			assert.Equal(t, false, out.Result.Extra["is_valid"])
			assert.Nil(t, cert)
		})
	}
}

func TestCheck_HandshakeFailures(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectedScore int
		expectedCode  string
	}{
		{
			name:          "dns failure",
			err:           &net.DNSError{Err: "no such host", Name: "nxdomain.example"},
			expectedScore: riskDNSError,
			expectedCode:  "dns_error",
		},
		{
			name:          "tls record error",
			err:           tls.RecordHeaderError{Msg: "first record does not look like a TLS handshake"},
			expectedScore: riskTLSError,
			expectedCode:  "tls_error",
		},
		{
			name:          "plain connection refusal",
			err:           errors.New("connect: connection refused"),
			expectedScore: riskConnectionError,
			expectedCode:  "connection_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAnalyzer()
			a.dial = func(ctx context.Context, host string) (*tls.Conn, error) {
				return nil, tt.err
			}

			out, cert := a.Check(context.Background(), "https://example.com")

			require.True(t, out.Degraded)
			assert.Equal(t, tt.expectedScore, out.Result.RiskScore)
			assert.Equal(t, tt.expectedCode, out.Result.Extra["error"])
			assert.Nil(t, cert)
		})
	}
}

func TestScore_ExpiredCertificate(t *testing.T) {
	a := testAnalyzer()
	info := &domain.CertificateInfo{
		SubjectCN: "example.com",
		IssuerCN:  "DigiCert TLS CA",
		IssuerOrg: "DigiCert Inc",
		NotAfter:  fixedNow().AddDate(0, 0, -10),
		Version:   3,
		KeyBits:   2048,
	}

	res := a.score(info, false)

	assert.True(t, info.IsExpired)
	assert.Equal(t, 10, info.DaysSinceExpiry)
	assert.Equal(t, 40, res.RiskScore)
	assert.Equal(t, false, res.Extra["is_valid"])
	assert.Contains(t, res.Flags, "Certificate EXPIRED 10 days ago")
}

func TestScore_ExpiryBuckets(t *testing.T) {
	tests := []struct {
		name          string
		daysLeft      int
		expectedScore int
	}{
		{"critical window", 5, 30},
		{"renewal window", 20, 10},
		{"healthy", 200, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAnalyzer()
			info := &domain.CertificateInfo{
				SubjectCN: "example.com",
				IssuerCN:  "R3",
				IssuerOrg: "Let's Encrypt",
				NotAfter:  fixedNow().AddDate(0, 0, tt.daysLeft),
				Version:   3,
				KeyBits:   2048,
			}

			res := a.score(info, false)

			assert.Equal(t, tt.expectedScore, res.RiskScore)
			assert.Equal(t, tt.daysLeft, info.DaysUntilExpiry)
		})
	}
}

func TestScore_SelfSignedAndUnknownIssuer(t *testing.T) {
	a := testAnalyzer()
	info := &domain.CertificateInfo{
		SubjectCN: "internal.corp",
		IssuerCN:  "internal.corp",
		IssuerOrg: "Corp IT",
		NotAfter:  fixedNow().AddDate(0, 0, 100),
		Version:   3,
		KeyBits:   2048,
	}

	res := a.score(info, false)

	assert.True(t, info.IsSelfSigned)
	assert.False(t, info.IssuerKnown)
	assert.Equal(t, 55, res.RiskScore) // 40 self-signed + 15 unknown CA
	assert.Equal(t, false, res.Extra["is_valid"])
}

func TestScore_WildcardAndWeakKey(t *testing.T) {
	a := testAnalyzer()
	info := &domain.CertificateInfo{
		SubjectCN: "*.example.com",
		IssuerCN:  "DigiCert TLS CA",
		IssuerOrg: "DigiCert Inc",
		NotAfter:  fixedNow().AddDate(0, 0, 100),
		Version:   3,
		KeyBits:   1024,
	}

	res := a.score(info, true)

	assert.True(t, info.IsWildcard)
	assert.Equal(t, 20, res.RiskScore) // 10 wildcard + 10 weak key
	assert.Equal(t, true, res.Extra["is_valid"])
}

func TestPublicKeyStrength_CurveKeysAreNotWeak(t *testing.T) {
	// ECDSA P-256 is strong at 256 bits; the RSA floor must not apply.
	bits, weak := publicKeyStrength(ecdsaP256Key(t).Public())
	assert.Equal(t, 256, bits)
	assert.False(t, weak)
}

func ecdsaP256Key(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}
