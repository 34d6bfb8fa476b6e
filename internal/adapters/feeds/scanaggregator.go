package feeds

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/phishguard/risk-engine/internal/ports"
)

const scanAggregatorEndpoint = "https://www.virustotal.com/api/v3/urls/"

// ScanAggregatorFeed queries a multi-engine scan aggregator. Unlike the
// authoritative feed it reports per-engine tallies, which the consensus
// weighs as a ratio rather than a hard verdict.
type ScanAggregatorFeed struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewScanAggregatorFeed(apiKey string, timeout time.Duration) *ScanAggregatorFeed {
	return &ScanAggregatorFeed{
		apiKey:   apiKey,
		endpoint: scanAggregatorEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (f *ScanAggregatorFeed) Name() string { return "scan_aggregator" }

type scanAggregatorResponse struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Harmless   int `json:"harmless"`
				Undetected int `json:"undetected"`
			} `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// urlID is the aggregator's identifier scheme: unpadded base64url of the
// full URL.
func urlID(url string) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString([]byte(url)), "=")
}

func (f *ScanAggregatorFeed) Lookup(ctx context.Context, url string) (ports.FeedVerdict, error) {
	verdict := ports.FeedVerdict{Feed: f.Name()}
	if f.apiKey == "" {
		return verdict, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+urlID(url), nil)
	if err != nil {
		return verdict, fmt.Errorf("build scan lookup: %w", err)
	}
	req.Header.Set("x-apikey", f.apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return verdict, fmt.Errorf("scan lookup: %w", err)
	}
	defer resp.Body.Close()

	// 404 means the URL has simply never been scanned.
	if resp.StatusCode == http.StatusNotFound {
		return verdict, nil
	}
	if resp.StatusCode != http.StatusOK {
		return verdict, fmt.Errorf("scan lookup: status %d", resp.StatusCode)
	}

	var parsed scanAggregatorResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return verdict, fmt.Errorf("decode scan response: %w", err)
	}

	stats := parsed.Data.Attributes.LastAnalysisStats
	verdict.Checked = true
	verdict.CleanEngines = stats.Harmless + stats.Undetected
	verdict.TotalEngines = stats.Malicious + stats.Suspicious + stats.Harmless + stats.Undetected

	switch {
	case stats.Malicious > 0:
		verdict.Malicious = true
		verdict.Detail = fmt.Sprintf("%d/%d engines flagged malicious", stats.Malicious, verdict.TotalEngines)
	case stats.Suspicious > 0:
		verdict.Suspicious = true
		verdict.Detail = fmt.Sprintf("%d/%d engines flagged suspicious", stats.Suspicious, verdict.TotalEngines)
	default:
		verdict.Clean = true
	}
	return verdict, nil
}
