// Package ports declares the contracts between the assessment service and
// its external dependencies.
package ports

import (
	"context"

	"github.com/phishguard/risk-engine/internal/domain"
	"github.com/phishguard/risk-engine/internal/domain/features"
)

// FeedVerdict is one threat feed's opinion about a URL.
type FeedVerdict struct {
	Feed    string
	Checked bool // false when the feed was skipped (unconfigured, errored)

	Malicious  bool
	Suspicious bool
	Clean      bool

	// Authoritative feeds can override the consensus on a malicious hit.
	Authoritative bool

	// Engine tallies are populated by aggregator feeds that report
	// per-engine verdicts. Zero TotalEngines means unquantified.
	CleanEngines int
	TotalEngines int

	Detail string
}

// ThreatFeed defines the contract for external URL reputation lookups.
type ThreatFeed interface {
	Name() string

	// Lookup queries the feed for the given URL. Implementations return an
	// unchecked verdict rather than an error when they are not configured.
	Lookup(ctx context.Context, url string) (FeedVerdict, error)
}

// ModelAdmin is the version-management surface common to both classifiers.
type ModelAdmin interface {
	Loaded() bool
	CurrentVersion() string
	ListVersions() []string
	SwitchVersion(version string) error
	Train(datasetPath string) (domain.TrainReport, error)
}

// URLClassifier scores extracted URL features with a versioned model.
type URLClassifier interface {
	ModelAdmin
	Predict(v features.Vector) float64
}

// EmailClassifier scores email text with a versioned model.
type EmailClassifier interface {
	ModelAdmin
	Predict(subject, body string) (float64, map[string]any)
}

// AssessmentStore defines the contract for persisting completed assessments.
type AssessmentStore interface {
	SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error
	RecentAssessments(ctx context.Context, limit int) ([]domain.RiskAssessment, error)
	CountHighRisk(ctx context.Context) (int, error)
	Close() error
}
