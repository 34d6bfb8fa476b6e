package domain

import (
	"time"

	"github.com/google/uuid"
)

// SignalResult is the structured output of one independent security check.
// Every checker (URL heuristics, TLS, redirects, breach, email text) produces
// one; once returned it is never mutated.
type SignalResult struct {
	RiskScore int            `json:"risk_score"` // clamped to [0,100]
	Flags     []string       `json:"flags"`      // human-readable, insertion order preserved
	Extra     map[string]any `json:"extra,omitempty"`
}

// Outcome tags a SignalResult with how it was produced. A degraded outcome
// means the checker could not complete (network failure, missing model, ...)
// and the result is its documented failure default rather than a measurement.
//
// Expressing failure in the type (instead of catching exceptions at every
// call site) keeps the aggregator total: it only ever combines results that
// already exist.
type Outcome struct {
	Result   SignalResult `json:"result"`
	Degraded bool         `json:"degraded"`
	Reason   string       `json:"reason,omitempty"`
}

// Ok wraps a successfully computed signal result.
func Ok(res SignalResult) Outcome {
	return Outcome{Result: res}
}

// Degrade wraps a failure-default result with the reason the real check
// could not complete.
func Degrade(res SignalResult, reason string) Outcome {
	return Outcome{Result: res, Degraded: true, Reason: reason}
}

// CertificateInfo holds the metadata extracted from one TLS handshake.
// Created per handshake, discarded after the check.
type CertificateInfo struct {
	SubjectCN       string    `json:"subject_cn"`
	IssuerCN        string    `json:"issuer_cn"`
	IssuerOrg       string    `json:"issuer_org"`
	NotBefore       time.Time `json:"not_before"`
	NotAfter        time.Time `json:"not_after"`
	Version         int       `json:"version"`
	KeyBits         int       `json:"key_bits"`
	IsExpired       bool      `json:"is_expired"`
	DaysSinceExpiry int       `json:"days_since_expiry,omitempty"`
	DaysUntilExpiry int       `json:"days_until_expiry,omitempty"`
	IsSelfSigned    bool      `json:"is_self_signed"`
	IsWildcard      bool      `json:"is_wildcard"`
	IssuerKnown     bool      `json:"issuer_known"`
}

// RedirectHop records one step of a redirect chain.
type RedirectHop struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	RedirectTo string `json:"redirect_to"`
}

// RedirectChain is the ordered sequence of hops plus the final destination.
type RedirectChain struct {
	OriginalURL string        `json:"original_url"`
	FinalURL    string        `json:"final_url"`
	Hops        []RedirectHop `json:"hops"`
}

// BreachRecord describes one breach a credential appeared in.
type BreachRecord struct {
	Source      string   `json:"source"`
	BreachDate  string   `json:"breach_date"`
	Description string   `json:"description,omitempty"`
	DataClasses []string `json:"data_classes,omitempty"`
}

// ComponentScore is one weighted contribution inside a RiskAssessment.
type ComponentScore struct {
	Score   float64  `json:"score"`
	Weight  float64  `json:"weight"`
	Details []string `json:"details"`
}

// RiskAssessment is the final multi-signal verdict for one request.
// Constructed once by the RiskScorer, never mutated afterwards.
type RiskAssessment struct {
	ID              uuid.UUID                 `json:"id"`
	URL             string                    `json:"url,omitempty"`
	OverallScore    float64                   `json:"overall_score"` // [0,100]
	Level           string                    `json:"risk_level"`    // very_low | low | medium | high
	Components      map[string]ComponentScore `json:"components"`
	Recommendations []string                  `json:"recommendations"`
	Timestamp       time.Time                 `json:"assessment_timestamp"`
}

// CheckRequest is the inbound shape for a comprehensive assessment. Only URL
// is mandatory; the other fields enable the credential and email-text signals.
type CheckRequest struct {
	URL          string `json:"url"`
	Email        string `json:"email,omitempty"`
	Password     string `json:"password,omitempty"`
	EmailSubject string `json:"email_subject,omitempty"`
	EmailBody    string `json:"email_body,omitempty"`
}

// TrainReport summarizes one completed training run.
type TrainReport struct {
	Accuracy        float64 `json:"accuracy"`
	TrainingSamples int     `json:"training_samples"`
	TestSamples     int     `json:"test_samples"`
	Version         string  `json:"version"`
}

// Risk level thresholds are fixed across the engine: the same buckets apply
// to per-signal scores and to the overall assessment.
const (
	LevelHigh    = "high"
	LevelMedium  = "medium"
	LevelLow     = "low"
	LevelVeryLow = "very_low"
)

// RiskLevel converts a [0,100] score to its categorical level.
func RiskLevel(score float64) string {
	switch {
	case score >= 70:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	case score >= 20:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

// ClampScore bounds a raw additive score to the [0,100] range every
// SignalResult and RiskAssessment must stay within.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
