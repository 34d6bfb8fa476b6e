// Package application orchestrates the independent signal checkers into the
// operations the API exposes: single-signal checks, the blended URL check,
// and the comprehensive multi-signal assessment.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/phishguard/risk-engine/internal/cache"
	"github.com/phishguard/risk-engine/internal/domain"
	"github.com/phishguard/risk-engine/internal/domain/breach"
	"github.com/phishguard/risk-engine/internal/domain/features"
	"github.com/phishguard/risk-engine/internal/domain/redirect"
	"github.com/phishguard/risk-engine/internal/domain/scoring"
	"github.com/phishguard/risk-engine/internal/domain/tlscheck"
	"github.com/phishguard/risk-engine/internal/domain/urlcheck"
	"github.com/phishguard/risk-engine/internal/ports"
)

const (
	urlCacheTTL  = 5 * time.Minute
	urlCacheSize = 1000
)

// Deps wires the service. Store may be nil (history disabled); Feeds may be
// empty (consensus falls back to heuristics plus ML).
type Deps struct {
	URLAnalyzer *urlcheck.Analyzer
	TLS         *tlscheck.Analyzer
	Expander    *redirect.Expander
	Corpus      *breach.Corpus
	URLModel    ports.URLClassifier
	EmailModel  ports.EmailClassifier
	Feeds       []ports.ThreatFeed
	Store       ports.AssessmentStore
	Timeout     time.Duration
}

// AssessmentService owns the checkers, the result cache, and the scorer.
// All state is constructed here; nothing is package-global.
type AssessmentService struct {
	urlAnalyzer *urlcheck.Analyzer
	tls         *tlscheck.Analyzer
	expander    *redirect.Expander
	corpus      *breach.Corpus
	urlModel    ports.URLClassifier
	emailModel  ports.EmailClassifier
	feeds       []ports.ThreatFeed
	store       ports.AssessmentStore
	scorer      *scoring.Scorer
	urlCache    *cache.TTLCache[domain.SignalResult]
	timeout     time.Duration
}

func NewAssessmentService(deps Deps) *AssessmentService {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AssessmentService{
		urlAnalyzer: deps.URLAnalyzer,
		tls:         deps.TLS,
		expander:    deps.Expander,
		corpus:      deps.Corpus,
		urlModel:    deps.URLModel,
		emailModel:  deps.EmailModel,
		feeds:       deps.Feeds,
		store:       deps.Store,
		scorer:      scoring.NewScorer(),
		urlCache:    cache.NewTTLCache[domain.SignalResult]("url_verdicts", urlCacheSize, urlCacheTTL),
		timeout:     timeout,
	}
}

// externalGather is the collected output of the concurrent TLS and
// threat-feed checks for one URL.
type externalGather struct {
	sig      urlcheck.ExternalSignals
	flags    []string
	degraded []string
}

// gatherExternal fans the TLS check and every feed lookup out concurrently
// and collects whatever completes before the deadline. Signals that do not
// complete are simply absent from the consensus; each task owns its own
// connection and the shared context cancels stragglers.
func (s *AssessmentService) gatherExternal(ctx context.Context, rawURL string) externalGather {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type feedMsg struct {
		verdict ports.FeedVerdict
		err     error
		name    string
	}
	feedCh := make(chan feedMsg, len(s.feeds))
	for _, f := range s.feeds {
		go func(f ports.ThreatFeed) {
			v, err := f.Lookup(ctx, rawURL)
			feedCh <- feedMsg{verdict: v, err: err, name: f.Name()}
		}(f)
	}

	tlsCh := make(chan domain.Outcome, 1)
	go func() {
		out, _ := s.tls.Check(ctx, rawURL)
		tlsCh <- out
	}()

	var g externalGather
	pending := len(s.feeds) + 1
	for pending > 0 {
		select {
		case out := <-tlsCh:
			pending--
			if out.Degraded {
				g.degraded = append(g.degraded, "tls: "+out.Reason)
				break
			}
			g.sig.TLSChecked = true
			valid, _ := out.Result.Extra["is_valid"].(bool)
			g.sig.TLSValid = valid
		case msg := <-feedCh:
			pending--
			if msg.err != nil {
				slog.Warn("threat feed lookup failed", "feed", msg.name, "error", msg.err)
				g.degraded = append(g.degraded, msg.name+": "+msg.err.Error())
				break
			}
			s.applyVerdict(&g, msg.verdict)
		case <-ctx.Done():
			g.degraded = append(g.degraded, fmt.Sprintf("%d external checks missed the deadline", pending))
			return g
		}
	}
	return g
}

// applyVerdict folds one feed verdict into the gathered signals.
func (s *AssessmentService) applyVerdict(g *externalGather, v ports.FeedVerdict) {
	if !v.Checked {
		return
	}

	switch {
	case v.Malicious && v.Authoritative:
		g.sig.FeedMalicious = true
		g.flags = append(g.flags, fmt.Sprintf("Flagged malicious by %s: %s", v.Feed, v.Detail))
	case v.Malicious:
		g.sig.EngineMalicious = true
		g.flags = append(g.flags, fmt.Sprintf("Flagged malicious by %s: %s", v.Feed, v.Detail))
	case v.Suspicious:
		g.sig.FeedSuspicious = true
		g.flags = append(g.flags, fmt.Sprintf("Flagged suspicious by %s: %s", v.Feed, v.Detail))
	case v.Clean && v.Authoritative:
		g.sig.FeedClean = true
	case v.Clean && v.TotalEngines == 0:
		g.sig.ScanCleanUnquantified = true
	}

	if v.TotalEngines > 0 {
		g.sig.CleanEngines = v.CleanEngines
		g.sig.TotalEngines = v.TotalEngines
	}
}

// CheckURL runs the full blended URL assessment: heuristics, concurrent
// external checks, classifier probability, and the consensus combination.
// Verdicts are cached; a cache hit skips all network work.
func (s *AssessmentService) CheckURL(ctx context.Context, rawURL string) domain.Outcome {
	key := strings.TrimSpace(rawURL)
	if res, ok := s.urlCache.Get(key); ok {
		return domain.Ok(res)
	}

	heuristics := s.urlAnalyzer.Heuristics(rawURL)
	prob := s.urlModel.Predict(features.Extract(rawURL))
	g := s.gatherExternal(ctx, rawURL)

	result := s.urlAnalyzer.Combine(rawURL, heuristics, g.sig, g.flags, prob)

	// Only settled verdicts are cached; a degraded run should be retried
	// on the next request.
	if len(g.degraded) == 0 {
		s.urlCache.Set(key, result)
		return domain.Ok(result)
	}
	return domain.Degrade(result, strings.Join(g.degraded, "; "))
}

// CheckTLS runs the certificate analysis alone.
func (s *AssessmentService) CheckTLS(ctx context.Context, rawURL string) (domain.Outcome, *domain.CertificateInfo) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.tls.Check(ctx, rawURL)
}

// ExpandLink follows and analyzes the redirect chain.
func (s *AssessmentService) ExpandLink(ctx context.Context, rawURL string) redirect.Result {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.expander.Expand(ctx, rawURL)
}

// PasswordReport is the /check-breach password section.
type PasswordReport struct {
	Breached      bool     `json:"breached"`
	BreachCount   int      `json:"breach_count"`
	StrengthScore int      `json:"strength_score"`
	Feedback      []string `json:"feedback,omitempty"`
}

// EmailReport is the /check-breach email section.
type EmailReport struct {
	Breached    bool                  `json:"breached"`
	BreachCount int                   `json:"breach_count"`
	Breaches    []domain.BreachRecord `json:"breaches,omitempty"`
}

// BreachReport combines the credential lookups with the signal fed to the
// aggregate scorer.
type BreachReport struct {
	Email    *EmailReport        `json:"email_check,omitempty"`
	Password *PasswordReport     `json:"password_breach_check,omitempty"`
	Signal   domain.SignalResult `json:"signal"`
}

// CheckBreach looks up the supplied credentials in the corpus. Either field
// may be empty; a breached password scores 50, a breached email at least 40.
func (s *AssessmentService) CheckBreach(email, password string) BreachReport {
	report := BreachReport{}
	score := 0
	var flags []string

	if password != "" {
		breached, count := s.corpus.CheckPassword(password)
		strength, feedback := breach.CheckStrength(password)
		report.Password = &PasswordReport{
			Breached:      breached,
			BreachCount:   count,
			StrengthScore: strength,
			Feedback:      feedback,
		}
		if breached {
			score = 50
			flags = append(flags, fmt.Sprintf("Password found in %d breaches", count))
		}
	}

	if email != "" {
		breached, records := s.corpus.CheckEmail(email)
		report.Email = &EmailReport{
			Breached:    breached,
			BreachCount: len(records),
			Breaches:    records,
		}
		if breached {
			if score < 40 {
				score = 40
			}
			flags = append(flags, fmt.Sprintf("Email found in %d breaches", len(records)))
		}
	}

	report.Signal = domain.SignalResult{RiskScore: score, Flags: flags}
	return report
}

// CheckEmailText classifies the message text, returning the signal (scaled
// to [0,100]) and the classifier's detail map.
func (s *AssessmentService) CheckEmailText(subject, body string) (domain.SignalResult, map[string]any) {
	prob, analysis := s.emailModel.Predict(subject, body)

	var flags []string
	if indicators, ok := analysis["top_phishing_indicators"].([]string); ok && len(indicators) > 0 {
		flags = append(flags, "Phishing indicators: "+strings.Join(indicators, ", "))
	}
	if level, ok := analysis["risk_level"].(string); ok {
		flags = append(flags, "Risk level: "+level)
	}

	return domain.SignalResult{
		RiskScore: domain.ClampScore(int(prob * 100)),
		Flags:     flags,
		Extra:     map[string]any{"phishing_probability": prob},
	}, analysis
}

// ComprehensiveResult is the full assessment plus each contributing
// signal's individual result keyed by name.
type ComprehensiveResult struct {
	Assessment *domain.RiskAssessment    `json:"assessment"`
	Signals    map[string]domain.Outcome `json:"signals"`
}

// Comprehensive runs every applicable signal concurrently against the
// request deadline and feeds the results to the scorer. Signals that fail
// arrive degraded, never missing entirely once requested.
func (s *AssessmentService) Comprehensive(ctx context.Context, req domain.CheckRequest) ComprehensiveResult {
	signals := make(map[string]domain.Outcome)
	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(name string, out domain.Outcome) {
		mu.Lock()
		signals[name] = out
		mu.Unlock()
	}
	run := func(name string, fn func() domain.Outcome) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(name, fn())
		}()
	}

	run(scoring.ComponentURLRisk, func() domain.Outcome {
		return s.CheckURL(ctx, req.URL)
	})
	run(scoring.ComponentSSLValidity, func() domain.Outcome {
		out, _ := s.CheckTLS(ctx, req.URL)
		return out
	})
	run(scoring.ComponentLinkRedirects, func() domain.Outcome {
		res := s.ExpandLink(ctx, req.URL)
		if res.ErrCode != "" {
			return domain.Degrade(res.Analysis, res.ErrCode)
		}
		return domain.Ok(res.Analysis)
	})
	if req.Email != "" || req.Password != "" {
		run(scoring.ComponentBreach, func() domain.Outcome {
			return domain.Ok(s.CheckBreach(req.Email, req.Password).Signal)
		})
	}
	if req.EmailSubject != "" || req.EmailBody != "" {
		run(scoring.ComponentEmailText, func() domain.Outcome {
			sig, _ := s.CheckEmailText(req.EmailSubject, req.EmailBody)
			return domain.Ok(sig)
		})
	}

	wg.Wait()

	inputs := scoring.Inputs{}
	pick := func(name string) *domain.SignalResult {
		if out, ok := signals[name]; ok {
			res := out.Result
			return &res
		}
		return nil
	}
	inputs.URL = pick(scoring.ComponentURLRisk)
	inputs.TLS = pick(scoring.ComponentSSLValidity)
	inputs.Redirects = pick(scoring.ComponentLinkRedirects)
	inputs.Breach = pick(scoring.ComponentBreach)
	inputs.EmailText = pick(scoring.ComponentEmailText)

	assessment := s.scorer.Assess(req.URL, inputs)

	if s.store != nil {
		if err := s.store.SaveAssessment(ctx, assessment); err != nil {
			slog.Warn("failed to persist assessment", "url", req.URL, "error", err)
		}
	}

	return ComprehensiveResult{Assessment: assessment, Signals: signals}
}

// CacheStats exposes the URL verdict cache for the detailed health view.
func (s *AssessmentService) CacheStats() cache.Stats {
	return s.urlCache.Stats()
}

// CorpusSize reports the loaded breach corpus dimensions.
func (s *AssessmentService) CorpusSize() (passwords, emails int) {
	return s.corpus.Size()
}

// RecentAssessments returns stored history, or nil when persistence is off.
func (s *AssessmentService) RecentAssessments(ctx context.Context, limit int) ([]domain.RiskAssessment, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.RecentAssessments(ctx, limit)
}
