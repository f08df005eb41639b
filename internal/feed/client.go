package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Client is the HTTP client for the live sports feed. Requests are
// token-bucket rate limited to stay inside the provider's quota.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a rate-limited feed client.
func NewClient(baseURL, apiKey string, requestsPerMinute int, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

// liveResponse is the upstream livescore payload wrapper.
type liveResponse struct {
	Data []liveMatch `json:"data"`
}

type liveMatch struct {
	ID        string                    `json:"id"`
	HomeTeam  string                    `json:"home_team"`
	AwayTeam  string                    `json:"away_team"`
	HomeScore int                       `json:"home_score"`
	AwayScore int                       `json:"away_score"`
	Minute    int                       `json:"minute"`
	Status    string                    `json:"status"`
	Stats     map[string]map[string]any `json:"stats"`
}

// LiveMatches fetches the current live match set. All failure modes —
// timeout, non-2xx, malformed body — come back as *UpstreamError.
func (c *Client) LiveMatches(ctx context.Context) ([]MatchSnapshot, error) {
	raw, err := c.get(ctx, "/v1/livescores", nil)
	if err != nil {
		return nil, err
	}

	var resp liveResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &UpstreamError{Op: "decode livescores", Err: err}
	}

	now := time.Now().UTC()
	snapshots := make([]MatchSnapshot, 0, len(resp.Data))
	for _, m := range resp.Data {
		snapshots = append(snapshots, MatchSnapshot{
			MatchID:   m.ID,
			HomeTeam:  m.HomeTeam,
			AwayTeam:  m.AwayTeam,
			HomeScore: m.HomeScore,
			AwayScore: m.AwayScore,
			Elapsed:   m.Minute,
			Status:    normalizeStatus(m.Status),
			HomeStats: extractStats(m.Stats["home"]),
			AwayStats: extractStats(m.Stats["away"]),
			FetchedAt: now,
		})
	}
	return snapshots, nil
}

// get performs a rate-limited GET against the feed.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &UpstreamError{Op: "rate limit wait", Err: err}
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &UpstreamError{Op: "create request", Err: err}
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Op: "http " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Op: "read body", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("feed returned error status",
			"path", path, "status", resp.StatusCode, "body", truncate(body, 200))
		return nil, &UpstreamError{
			Op:     path,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", truncate(body, 200)),
		}
	}
	return body, nil
}

// normalizeStatus maps the provider's status vocabulary onto ours.
func normalizeStatus(s string) string {
	switch s {
	case "NS", "not_started", StatusNotStarted:
		return StatusNotStarted
	case "LIVE", "HT", "in_play", "inplay", StatusLive:
		return StatusLive
	case "FT", "AET", "ended", StatusFinished:
		return StatusFinished
	default:
		return StatusNotStarted
	}
}

// extractStats normalizes a raw per-team stats object. Feeds return a mix
// of flat numbers, numeric strings, and nested aggregates; anything not
// extractable is dropped rather than failing the snapshot.
func extractStats(raw map[string]any) TeamStats {
	if len(raw) == 0 {
		return nil
	}
	stats := make(TeamStats, len(raw))
	for key, val := range raw {
		if f, ok := extractValue(val); ok {
			stats[key] = f
		}
	}
	return stats
}

// extractValue pulls a scalar out of the feed's value shapes: flat numbers,
// numeric strings, and nested objects keyed by "total"/"all"/"count".
func extractValue(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
		return 0, false
	case map[string]any:
		for _, key := range []string{"total", "all", "count", "average"} {
			if inner, exists := v[key]; exists && inner != nil {
				return extractValue(inner)
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
