package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phishguard/risk-engine/internal/domain"
	"github.com/phishguard/risk-engine/internal/domain/breach"
	"github.com/phishguard/risk-engine/internal/domain/features"
	"github.com/phishguard/risk-engine/internal/domain/redirect"
	"github.com/phishguard/risk-engine/internal/domain/scoring"
	"github.com/phishguard/risk-engine/internal/domain/tlscheck"
	"github.com/phishguard/risk-engine/internal/domain/urlcheck"
	"github.com/phishguard/risk-engine/internal/ports"
)

// stubAdmin satisfies the shared model admin surface for test doubles.
type stubAdmin struct{}

func (stubAdmin) Loaded() bool { return false }
func (stubAdmin) CurrentVersion() string { return "latest" }
func (stubAdmin) ListVersions() []string { return []string{"latest"} }
func (stubAdmin) SwitchVersion(string) error {
	return errors.New("not supported")
}
func (stubAdmin) Train(string) (domain.TrainReport, error) {
	return domain.TrainReport{}, errors.New("not supported")
}

type stubURLModel struct {
	stubAdmin
	prob float64
}

func (m stubURLModel) Predict(features.Vector) float64 { return m.prob }

type stubEmailModel struct {
	stubAdmin
	prob     float64
	analysis map[string]any
}

func (m stubEmailModel) Predict(subject, body string) (float64, map[string]any) {
	return m.prob, m.analysis
}

type stubFeed struct {
	name    string
	verdict ports.FeedVerdict
	err     error
}

func (f stubFeed) Name() string { return f.name }
func (f stubFeed) Lookup(context.Context, string) (ports.FeedVerdict, error) {
	return f.verdict, f.err
}

type recordingStore struct {
	mu    sync.Mutex
	saved []*domain.RiskAssessment
}

func (s *recordingStore) SaveAssessment(_ context.Context, a *domain.RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, a)
	return nil
}
func (s *recordingStore) RecentAssessments(context.Context, int) ([]domain.RiskAssessment, error) {
	return nil, nil
}
func (s *recordingStore) CountHighRisk(context.Context) (int, error) { return 0, nil }
func (s *recordingStore) Close() error { return nil }

func newTestService(t *testing.T, deps Deps) *AssessmentService {
	t.Helper()
	if deps.URLAnalyzer == nil {
		deps.URLAnalyzer = urlcheck.NewAnalyzer()
	}
	if deps.TLS == nil {
		deps.TLS = tlscheck.NewAnalyzer(time.Second)
	}
	if deps.Expander == nil {
		deps.Expander = redirect.NewExpander(5, time.Second)
	}
	if deps.Corpus == nil {
		deps.Corpus = breach.Empty()
	}
	if deps.URLModel == nil {
		deps.URLModel = stubURLModel{prob: 0.5}
	}
	if deps.EmailModel == nil {
		deps.EmailModel = stubEmailModel{prob: 0.5}
	}
	if deps.Timeout == 0 {
		deps.Timeout = time.Second
	}
	return NewAssessmentService(deps)
}

// Plain-HTTP URLs settle the TLS signal without any network activity, which
// keeps these tests hermetic.
func TestCheckURL_SettledVerdictIsCached(t *testing.T) {
	svc := newTestService(t, Deps{})

	out := svc.CheckURL(context.Background(), "http://example.com/path")
	require.False(t, out.Degraded)
	assert.GreaterOrEqual(t, out.Result.RiskScore, 60, "invalid-TLS floor applies to plain http")

	again := svc.CheckURL(context.Background(), "http://example.com/path")
	assert.Equal(t, out.Result, again.Result)
	assert.Equal(t, int64(1), svc.CacheStats().Hits)
}

func TestCheckURL_FeedErrorDegradesAndSkipsCache(t *testing.T) {
	svc := newTestService(t, Deps{
		Feeds: []ports.ThreatFeed{stubFeed{name: "broken_feed", err: errors.New("boom")}},
	})

	out := svc.CheckURL(context.Background(), "http://example.com")
	assert.True(t, out.Degraded)
	assert.Contains(t, out.Reason, "broken_feed")

	svc.CheckURL(context.Background(), "http://example.com")
	assert.Equal(t, int64(0), svc.CacheStats().Hits, "degraded verdicts are not cached")
}

func TestCheckURL_AuthoritativeMaliciousFeed(t *testing.T) {
	svc := newTestService(t, Deps{
		Feeds: []ports.ThreatFeed{stubFeed{
			name: "safe_browsing",
			verdict: ports.FeedVerdict{
				Feed: "safe_browsing", Checked: true,
				Malicious: true, Authoritative: true,
				Detail: "SOCIAL_ENGINEERING",
			},
		}},
	})

	out := svc.CheckURL(context.Background(), "http://example.com")
	require.False(t, out.Degraded)

	assert.GreaterOrEqual(t, out.Result.RiskScore, 80)
	assert.Contains(t, out.Result.Flags, "Flagged malicious by safe_browsing: SOCIAL_ENGINEERING")
}

func TestCheckURL_EngineMaliciousVerdict(t *testing.T) {
	svc := newTestService(t, Deps{
		Feeds: []ports.ThreatFeed{stubFeed{
			name: "scan_aggregator",
			verdict: ports.FeedVerdict{
				Feed: "scan_aggregator", Checked: true,
				Malicious:    true,
				CleanEngines: 30, TotalEngines: 70,
				Detail: "40/70 engines",
			},
		}},
	})

	out := svc.CheckURL(context.Background(), "http://secure-login-verify.com/login")
	require.False(t, out.Degraded)

	assert.GreaterOrEqual(t, out.Result.RiskScore, 75)
	assert.Contains(t, out.Result.Flags, "Flagged malicious by scan_aggregator: 40/70 engines")
}

func TestApplyVerdict(t *testing.T) {
	tests := []struct {
		name    string
		verdict ports.FeedVerdict
		want    urlcheck.ExternalSignals
	}{
		{
			name:    "unchecked verdicts are ignored",
			verdict: ports.FeedVerdict{Feed: "f"},
			want:    urlcheck.ExternalSignals{},
		},
		{
			name: "authoritative malicious",
			verdict: ports.FeedVerdict{
				Feed: "f", Checked: true, Malicious: true, Authoritative: true,
			},
			want: urlcheck.ExternalSignals{FeedMalicious: true},
		},
		{
			name: "engine malicious",
			verdict: ports.FeedVerdict{
				Feed: "f", Checked: true, Malicious: true,
				CleanEngines: 30, TotalEngines: 70,
			},
			want: urlcheck.ExternalSignals{
				EngineMalicious: true,
				CleanEngines:    30, TotalEngines: 70,
			},
		},
		{
			name: "suspicious",
			verdict: ports.FeedVerdict{
				Feed: "f", Checked: true, Suspicious: true,
				CleanEngines: 60, TotalEngines: 70,
			},
			want: urlcheck.ExternalSignals{
				FeedSuspicious: true,
				CleanEngines:   60, TotalEngines: 70,
			},
		},
		{
			name: "authoritative clean",
			verdict: ports.FeedVerdict{
				Feed: "f", Checked: true, Clean: true, Authoritative: true,
			},
			want: urlcheck.ExternalSignals{FeedClean: true},
		},
		{
			name: "unquantified clean scan",
			verdict: ports.FeedVerdict{
				Feed: "f", Checked: true, Clean: true,
			},
			want: urlcheck.ExternalSignals{ScanCleanUnquantified: true},
		},
		{
			name: "quantified clean scan keeps tallies",
			verdict: ports.FeedVerdict{
				Feed: "f", Checked: true, Clean: true,
				CleanEngines: 70, TotalEngines: 70,
			},
			want: urlcheck.ExternalSignals{
				CleanEngines: 70, TotalEngines: 70,
			},
		},
	}

	svc := newTestService(t, Deps{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var g externalGather
			svc.applyVerdict(&g, tt.verdict)
			assert.Equal(t, tt.want, g.sig)
		})
	}
}

func TestCheckEmailText_FlagsFromAnalysis(t *testing.T) {
	svc := newTestService(t, Deps{
		EmailModel: stubEmailModel{
			prob: 0.75,
			analysis: map[string]any{
				"top_phishing_indicators": []string{"verify account", "urgent"},
				"risk_level":              "high",
			},
		},
	})

	sig, analysis := svc.CheckEmailText("Urgent", "verify your account")

	assert.Equal(t, 75, sig.RiskScore)
	assert.Contains(t, sig.Flags, "Phishing indicators: verify account, urgent")
	assert.Contains(t, sig.Flags, "Risk level: high")
	assert.Equal(t, 0.75, sig.Extra["phishing_probability"])
	assert.Equal(t, "high", analysis["risk_level"])
}

func TestCheckBreach_PasswordOutweighsEmail(t *testing.T) {
	svc := newTestService(t, Deps{})

	report := svc.CheckBreach("nobody@example.com", "")
	require.NotNil(t, report.Email)
	assert.Nil(t, report.Password)
	assert.False(t, report.Email.Breached)
	assert.Zero(t, report.Signal.RiskScore)
}

func TestComprehensive(t *testing.T) {
	store := &recordingStore{}
	svc := newTestService(t, Deps{
		EmailModel: stubEmailModel{prob: 0.9, analysis: map[string]any{"risk_level": "high"}},
		Store:      store,
	})

	// A closed local port settles every network-facing signal immediately.
	res := svc.Comprehensive(context.Background(), domain.CheckRequest{
		URL:          "http://127.0.0.1:1/login",
		Email:        "nobody@example.com",
		Password:     "hunter2",
		EmailSubject: "Urgent",
		EmailBody:    "verify your account",
	})

	require.NotNil(t, res.Assessment)
	for _, name := range []string{
		scoring.ComponentURLRisk,
		scoring.ComponentSSLValidity,
		scoring.ComponentLinkRedirects,
		scoring.ComponentBreach,
		scoring.ComponentEmailText,
	} {
		assert.Contains(t, res.Signals, name)
		assert.Contains(t, res.Assessment.Components, name)
	}
	assert.Contains(t, res.Assessment.Components, scoring.ComponentDomainRep)

	redirects := res.Signals[scoring.ComponentLinkRedirects]
	assert.True(t, redirects.Degraded)
	assert.Equal(t, "connection_failed", redirects.Reason)

	emailText := res.Signals[scoring.ComponentEmailText]
	assert.Equal(t, 90, emailText.Result.RiskScore)

	require.Len(t, store.saved, 1)
	assert.Equal(t, res.Assessment.ID, store.saved[0].ID)
}

func TestComprehensive_OptionalSignalsSkipped(t *testing.T) {
	svc := newTestService(t, Deps{})

	res := svc.Comprehensive(context.Background(), domain.CheckRequest{
		URL: "http://127.0.0.1:1/",
	})

	assert.NotContains(t, res.Signals, scoring.ComponentBreach)
	assert.NotContains(t, res.Signals, scoring.ComponentEmailText)
	assert.NotContains(t, res.Assessment.Components, scoring.ComponentBreach)
}

func TestRecentAssessments_NilStore(t *testing.T) {
	svc := newTestService(t, Deps{})

	history, err := svc.RecentAssessments(context.Background(), 10)
	require.NoError(t, err)
	assert.Nil(t, history)
}
