// Package scoring aggregates per-signal results into a single weighted
// risk assessment.
package scoring

import (
	"time"

	"github.com/google/uuid"

	"github.com/phishguard/risk-engine/internal/domain"
)

// Component names as they appear in assessment responses.
const (
	ComponentURLRisk       = "url_risk"
	ComponentSSLValidity   = "ssl_validity"
	ComponentLinkRedirects = "link_redirects"
	ComponentDomainRep     = "domain_reputation"
	ComponentBreach        = "breach_history"
	ComponentEmailText     = "email_text_risk"
)

// componentWeights must sum to 1.0. Missing signals are simply omitted;
// their weight is not redistributed, so an assessment built from fewer
// signals caps out lower.
var componentWeights = map[string]float64{
	ComponentURLRisk:       0.35,
	ComponentSSLValidity:   0.20,
	ComponentLinkRedirects: 0.15,
	ComponentDomainRep:     0.10,
	ComponentBreach:        0.10,
	ComponentEmailText:     0.10,
}

// Per-component alert thresholds used when building recommendations.
const (
	tlsAlertScore      = 60
	breachAlertScore   = 40
	redirectAlertScore = 30
	emailAlertScore    = 50
)

// Inputs carries the signal results feeding one assessment. Nil entries are
// signals that were not requested or could not be produced.
type Inputs struct {
	URL       *domain.SignalResult
	TLS       *domain.SignalResult
	Redirects *domain.SignalResult
	Breach    *domain.SignalResult
	EmailText *domain.SignalResult
}

// Scorer computes weighted overall assessments.
type Scorer struct {
	now func() time.Time
}

func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Assess combines the available signals into an overall score, level, and
// recommendation list.
func (s *Scorer) Assess(url string, in Inputs) *domain.RiskAssessment {
	components := map[string]domain.ComponentScore{}

	add := func(name string, res *domain.SignalResult) {
		if res == nil {
			return
		}
		components[name] = domain.ComponentScore{
			Score:   float64(domain.ClampScore(res.RiskScore)),
			Weight:  componentWeights[name],
			Details: res.Flags,
		}
	}
	add(ComponentURLRisk, in.URL)
	add(ComponentSSLValidity, in.TLS)
	add(ComponentLinkRedirects, in.Redirects)
	add(ComponentBreach, in.Breach)
	add(ComponentEmailText, in.EmailText)

	// Reputation lookups are not yet backed by a provider; the component
	// is reported at zero so response shapes stay stable.
	components[ComponentDomainRep] = domain.ComponentScore{
		Score:  0,
		Weight: componentWeights[ComponentDomainRep],
	}

	var overall float64
	for _, comp := range components {
		overall += comp.Score * comp.Weight
	}
	level := domain.RiskLevel(overall)

	return &domain.RiskAssessment{
		ID:              uuid.New(),
		URL:             url,
		OverallScore:    overall,
		Level:           level,
		Components:      components,
		Recommendations: s.recommendations(level, in),
		Timestamp:       s.now().UTC(),
	}
}

func (s *Scorer) recommendations(level string, in Inputs) []string {
	var recs []string

	switch level {
	case domain.LevelHigh:
		recs = append(recs,
			"Do not interact with this URL or email",
			"Report it to your security team")
	case domain.LevelMedium:
		recs = append(recs,
			"Exercise caution before interacting",
			"Verify the sender through a separate channel")
	case domain.LevelLow:
		recs = append(recs, "Minor risk indicators present, proceed with awareness")
	default:
		recs = append(recs, "No significant risk indicators detected")
	}

	if in.TLS != nil && in.TLS.RiskScore >= tlsAlertScore {
		recs = append(recs, "The site's TLS certificate could not be trusted")
	}
	if in.Breach != nil && in.Breach.RiskScore >= breachAlertScore {
		recs = append(recs, "Credentials appear in known breaches, rotate them now")
	}
	if in.Redirects != nil && in.Redirects.RiskScore >= redirectAlertScore {
		recs = append(recs, "The link hides its destination behind redirects")
	}
	if in.EmailText != nil && in.EmailText.RiskScore >= emailAlertScore {
		recs = append(recs, "The message text matches known phishing patterns")
	}
	return recs
}
