// Package redirect follows HTTP redirect chains hop by hop and analyzes the
// resulting chain for risk patterns (cross-domain hops, loops, dangerous
// target schemes).
package redirect

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phishguard/risk-engine/internal/domain"
)

// Error codes for expansion failures. These are user-reportable outcomes,
// not internal errors: the caller receives the original URL, an empty chain
// and an empty analysis alongside the code.
const (
	ErrCodeInvalidURL       = "invalid_url"
	ErrCodeConnectionFailed = "connection_failed"
	ErrCodeTimeout          = "timeout"
	ErrCodeTooManyRedirects = "too_many_redirects"
)

// Result is the complete outcome of one expansion.
type Result struct {
	Chain    domain.RedirectChain `json:"chain"`
	Analysis domain.SignalResult  `json:"analysis"`
	ErrCode  string               `json:"error_code,omitempty"`
	ErrDesc  string               `json:"error,omitempty"`
}

// Expander follows redirects with a bounded hop count and per-hop timeout.
// The HTTP client must not follow redirects itself; NewExpander configures
// one that stops at each response.
type Expander struct {
	client  *http.Client
	maxHops int
}

// NewExpander creates an expander with its own non-following HTTP client.
func NewExpander(maxHops int, perHopTimeout time.Duration) *Expander {
	if maxHops <= 0 {
		maxHops = 10
	}
	client := &http.Client{
		Timeout: perHopTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   perHopTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2: true,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Hops are followed manually so each one can be recorded.
			return http.ErrUseLastResponse
		},
	}
	return &Expander{client: client, maxHops: maxHops}
}

// Expand follows redirects from rawURL until a terminal response or the hop
// bound. Network failures produce an error-coded Result, never an error
// return: expansion is a best-effort signal.
func (e *Expander) Expand(ctx context.Context, rawURL string) Result {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return errorResult(rawURL, ErrCodeInvalidURL, "invalid URL format")
	}

	chain := domain.RedirectChain{OriginalURL: rawURL}
	current := rawURL

	for hop := 0; ; hop++ {
		if hop > e.maxHops {
			return errorResult(rawURL, ErrCodeTooManyRedirects, "excessive redirect chain")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return errorResult(rawURL, ErrCodeInvalidURL, err.Error())
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return errorResult(rawURL, classifyNetError(err), err.Error())
		}

		if resp.StatusCode < 300 || resp.StatusCode >= 400 {
			resp.Body.Close()
			chain.FinalURL = resp.Request.URL.String()
			break
		}

		location := resp.Header.Get("Location")
		resp.Body.Close()
		if location == "" {
			chain.FinalURL = current
			break
		}

		chain.Hops = append(chain.Hops, domain.RedirectHop{
			URL:        current,
			StatusCode: resp.StatusCode,
			RedirectTo: location,
		})

		next, err := url.Parse(location)
		if err != nil {
			chain.FinalURL = current
			break
		}
		current = resp.Request.URL.ResolveReference(next).String()
	}

	return Result{
		Chain:    chain,
		Analysis: Analyze(chain),
	}
}

func errorResult(originalURL, code, desc string) Result {
	return Result{
		Chain:   domain.RedirectChain{OriginalURL: originalURL},
		ErrCode: code,
		ErrDesc: desc,
	}
}

// classifyNetError maps a transport failure to its reportable code.
func classifyNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrCodeTimeout
	}
	if strings.Contains(err.Error(), "stopped after") {
		return ErrCodeTooManyRedirects
	}
	return ErrCodeConnectionFailed
}
