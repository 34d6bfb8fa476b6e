package urlcheck

import (
	"fmt"
	"math"

	"github.com/phishguard/risk-engine/internal/domain"
)

// ExternalSignals summarizes what the external checks said about one URL
// before the ML blend. It is built by the caller from whatever feeds and the
// TLS check actually completed; absent checks simply stay at their zero
// value and are not counted.
type ExternalSignals struct {
	// FeedMalicious is an authoritative malicious match from a threat feed.
	FeedMalicious bool
	// FeedClean is an authoritative feed reporting no match.
	FeedClean bool
	// EngineMalicious is a multi-engine scan reporting malicious hits. Like
	// an authoritative match it overrides the consensus, but it carries a
	// slightly lower risk floor.
	EngineMalicious bool
	// FeedSuspicious is a suspicious-but-not-malicious external signal.
	FeedSuspicious bool

	// TLSChecked/TLSValid carry the certificate verdict when available.
	TLSChecked bool
	TLSValid   bool

	// CleanEngines/TotalEngines quantify a multi-engine scan consensus.
	// TotalEngines == 0 means no quantified consensus is available.
	CleanEngines int
	TotalEngines int
	// ScanCleanUnquantified marks an engine-consensus "clean" verdict that
	// arrived without counts.
	ScanCleanUnquantified bool
}

// CleanServices counts external checks that returned a usable clean verdict:
// an authoritative no-match, a valid certificate, a strongly clean engine
// ratio, or an unquantified clean scan. Zero means nothing external vouched
// for the URL, which loosens the ML gate for unknown domains.
func (sig ExternalSignals) CleanServices() int {
	n := 0
	if sig.FeedClean {
		n++
	}
	if sig.TLSChecked && sig.TLSValid {
		n++
	}
	switch {
	case sig.EngineMalicious, sig.FeedSuspicious:
	case sig.TotalEngines > 0:
		if float64(sig.CleanEngines)/float64(sig.TotalEngines) > scanRatioCleanThreshold {
			n++
		}
	case sig.ScanCleanUnquantified:
		n++
	}
	return n
}

// Consensus tuning. These constants are empirically chosen and have no
// documented derivation; treat them as recalibratable configuration, not
// ground truth.
const (
	consensusFeedCleanFactor   = 0.8
	consensusTLSValidFactor    = 0.9
	consensusTLSInvalidDelta   = 0.5
	consensusSuspiciousDelta   = 0.3
	consensusUnquantifiedClean = 0.7

	scanRatioCleanThreshold  = 0.8
	scanRatioThreatThreshold = 0.2
)

// ConsensusScore reduces the external signals to a single score in [-1,1]:
// 1 means every available external signal agrees the URL is clean, -1 means
// an authoritative signal flagged it malicious.
func ConsensusScore(sig ExternalSignals) float64 {
	// A malicious verdict, authoritative or engine-reported, overrides
	// everything else.
	if sig.FeedMalicious || sig.EngineMalicious {
		return -1.0
	}

	c := 1.0
	if sig.FeedClean {
		c *= consensusFeedCleanFactor
	}

	if sig.TLSChecked {
		if sig.TLSValid {
			c *= consensusTLSValidFactor
		} else {
			c -= consensusTLSInvalidDelta
		}
	}

	switch {
	case sig.FeedSuspicious:
		c -= consensusSuspiciousDelta
	case sig.TotalEngines > 0:
		ratio := float64(sig.CleanEngines) / float64(sig.TotalEngines)
		switch {
		case ratio > scanRatioCleanThreshold:
			c *= ratio
		case ratio < scanRatioThreatThreshold:
			// A mostly-malicious consensus flips the sign: the scan itself
			// becomes a threat indicator.
			c *= -ratio
		default:
			c *= (ratio - 0.5) * 2
		}
	case sig.ScanCleanUnquantified:
		c *= consensusUnquantifiedClean
	}

	if c > 1 {
		c = 1
	}
	if c < -1 {
		c = -1
	}
	return c
}

// weightBucket is one row of the ML weight decision table.
type weightBucket struct {
	name   string
	match  func(safe, shortened bool, c float64) bool
	weight float64
}

// mlWeightTable selects how much the classifier probability counts, given
// domain reputation and external consensus. Evaluated top to bottom, first
// match wins. The weights are tuned so the classifier matters most when
// external signals disagree about safety and least when a well-known domain
// has strong external consensus of cleanliness.
var mlWeightTable = []weightBucket{
	{
		name:   "shortened_clean_consensus",
		match:  func(_, shortened bool, c float64) bool { return shortened && c > 0.5 },
		weight: 0.10,
	},
	{
		name:   "safe_domain_clean_consensus",
		match:  func(safe, _ bool, c float64) bool { return safe && c > 0.5 },
		weight: 0.05,
	},
	{
		name:   "safe_domain_threat_signals",
		match:  func(safe, _ bool, c float64) bool { return safe && c < -0.3 },
		weight: 0.30,
	},
	{
		name:   "safe_domain_mixed",
		match:  func(safe, _ bool, _ float64) bool { return safe },
		weight: 0.15,
	},
	{
		name:   "unknown_domain_clean_consensus",
		match:  func(safe, _ bool, c float64) bool { return !safe && c > 0.6 },
		weight: 0.10,
	},
	{
		name:   "unknown_domain_threat_signals",
		match:  func(safe, _ bool, c float64) bool { return !safe && c < -0.3 },
		weight: 0.60,
	},
	{
		name:   "default_mixed",
		match:  func(_, _ bool, _ float64) bool { return true },
		weight: 0.30,
	},
}

// MLWeight returns the classifier weight for the given reputation and
// consensus, plus the name of the decision-table bucket that selected it.
func MLWeight(isSafeDomain, isShortened bool, consensus float64) (float64, string) {
	for _, bucket := range mlWeightTable {
		if bucket.match(isSafeDomain, isShortened, consensus) {
			return bucket.weight, bucket.name
		}
	}
	// Unreachable: the last bucket always matches.
	return 0.30, "default_mixed"
}

// MLContribution computes the points the classifier probability adds to the
// URL risk score. The contribution only applies when the probability and
// external consensus corroborate each other (or when nothing external was
// checked at all for an unknown domain); otherwise the classifier is
// display-only for this URL.
func MLContribution(prob, weight, consensus float64, isSafeDomain bool, servicesChecked int) (int, bool) {
	contribution := int(prob * 50 * weight)

	apply := (prob >= 0.9 && consensus < -0.2) ||
		(prob >= 0.7 && consensus < 0.3) ||
		(!isSafeDomain && prob >= 0.8 && servicesChecked == 0)

	return contribution, apply
}

// FinalConfidence blends the classifier probability with external consensus
// into the display confidence: clean external signals discount the raw
// probability, threatening ones boost it.
func FinalConfidence(prob, consensus float64) float64 {
	if consensus >= 0 {
		return prob * (1 - consensus*0.7)
	}
	return math.Min(1, prob+math.Abs(consensus)*0.3)
}

// Risk floors applied after all additive scoring: an authoritative verdict
// sets a minimum score, never a reduction.
const (
	FloorFeedMalicious   = 80
	FloorEngineMalicious = 75
	FloorTLSInvalid      = 60
	FloorScanSuspicious  = 50
)

// ApplyFloors raises score to the floor mandated by the strongest
// authoritative signal present, returning the floored score and the flag to
// record (empty when no floor applied).
func ApplyFloors(score int, sig ExternalSignals) (int, string) {
	switch {
	case sig.FeedMalicious:
		if score < FloorFeedMalicious {
			score = FloorFeedMalicious
		}
		return score, "BLOCKED: authoritative threat feed detection"
	case sig.EngineMalicious:
		if score < FloorEngineMalicious {
			score = FloorEngineMalicious
		}
		return score, "HIGH RISK: multiple scan engines flagged as malicious"
	case sig.TLSChecked && !sig.TLSValid:
		if score < FloorTLSInvalid {
			score = FloorTLSInvalid
		}
		return score, "SSL ISSUES: certificate problems detected"
	case sig.FeedSuspicious || (sig.TotalEngines > 0 && float64(sig.CleanEngines)/float64(sig.TotalEngines) < scanRatioThreatThreshold):
		if score < FloorScanSuspicious {
			score = FloorScanSuspicious
		}
		return score, "MEDIUM RISK: security engines flagged as suspicious"
	}
	return score, ""
}

// Combine layers external signals and the ML probability on top of the
// heuristic subtotal, producing the final URL SignalResult.
func (a *Analyzer) Combine(rawURL string, heuristics domain.SignalResult, sig ExternalSignals, feedFlags []string, mlProb float64) domain.SignalResult {
	parsed := NewParsedURL(rawURL)
	isSafe := a.IsKnownSafeDomain(parsed.Hostname)
	isShortened := a.IsShortened(parsed.Hostname)

	consensus := ConsensusScore(sig)
	weight, bucket := MLWeight(isSafe, isShortened, consensus)
	contribution, apply := MLContribution(mlProb, weight, consensus, isSafe, sig.CleanServices())
	confidence := FinalConfidence(mlProb, consensus)

	score := heuristics.RiskScore
	flags := append([]string{}, heuristics.Flags...)
	flags = append(flags, feedFlags...)

	if apply {
		score += contribution
	}
	flags = append(flags, mlFlag(confidence, isSafe, isShortened, consensus))

	score, floorFlag := ApplyFloors(score, sig)
	if floorFlag != "" {
		flags = append(flags, floorFlag)
	}

	score = domain.ClampScore(score)
	return domain.SignalResult{
		RiskScore: score,
		Flags:     flags,
		Extra: map[string]any{
			"ml_probability":     mlProb,
			"ml_weight":          weight,
			"ml_weight_bucket":   bucket,
			"ml_confidence":      confidence,
			"ml_applied":         apply,
			"external_consensus": consensus,
			"known_safe_domain":  isSafe,
			"shortened_url":      isShortened,
		},
	}
}

// mlFlag picks the display message for the blended classifier confidence.
func mlFlag(confidence float64, isSafe, isShortened bool, consensus float64) string {
	switch {
	case confidence >= 0.7:
		return fmt.Sprintf("ML model: high phishing probability (%.1f%%)", confidence*100)
	case confidence >= 0.4:
		return fmt.Sprintf("ML model: moderate phishing probability (%.1f%%)", confidence*100)
	case confidence >= 0.2:
		return fmt.Sprintf("ML model: suspicious patterns detected (%.1f%%)", confidence*100)
	case confidence >= 0.1:
		return fmt.Sprintf("ML model: low phishing probability (%.1f%%)", confidence*100)
	case isSafe && consensus > 0.7:
		return fmt.Sprintf("ML model: patterns consistent with trusted domain (%.1f%%)", confidence*100)
	case isShortened && consensus > 0.7:
		return fmt.Sprintf("ML model: shortened URL but external signals clean (%.1f%%)", confidence*100)
	default:
		return fmt.Sprintf("ML model: very low phishing probability (%.1f%%)", confidence*100)
	}
}
