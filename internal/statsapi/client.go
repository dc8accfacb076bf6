package statsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"matchstage/pkg/contracts/domain"
)

// Client talks to the statistical computation service that owns the league
// datasets, the derived-feature engine and the persistent store. It is the
// pipeline's only network dependency.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RPS caps outgoing request rate; 0 disables the limiter.
	RPS   float64
	Burst int
}

// StatusError reports a collaborator response with a non-success status.
// The collaborator message is preserved verbatim.
type StatusError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.Code)
}

// NewClient creates a collaborator client with an injected logger.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return &Client{
		baseURL: opts.BaseURL,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: limiter,
		logger:  logger.With(slog.String("component", "statsapi_client")),
	}
}

type envelope struct {
	Status   string             `json:"status"`
	Message  string             `json:"message,omitempty"`
	Leagues  []string           `json:"leagues,omitempty"`
	Teams    []string           `json:"teams,omitempty"`
	Features map[string]float64 `json:"features,omitempty"`
}

// Leagues returns the league identifiers known to the collaborator.
func (c *Client) Leagues(ctx context.Context) ([]string, error) {
	env, err := c.get(ctx, "/api/leagues", nil)
	if err != nil {
		return nil, err
	}
	return env.Leagues, nil
}

// Teams returns the team names known for a league; they form the reference
// index the diff classifier runs against.
func (c *Client) Teams(ctx context.Context, league string) ([]string, error) {
	env, err := c.get(ctx, "/api/teams", url.Values{"league": {league}})
	if err != nil {
		return nil, err
	}
	return env.Teams, nil
}

// Features requests the derived statistical features for one fixture.
func (c *Client) Features(ctx context.Context, league, home, away string) (map[string]float64, error) {
	body := map[string]string{"league": league, "home": home, "away": away}
	env, err := c.post(ctx, "/api/features", body)
	if err != nil {
		return nil, err
	}
	return env.Features, nil
}

// SaveNewMatches submits the whole batch as one all-or-nothing persistence
// request. The collaborator is the sole arbiter of credential validity; a
// rejection is returned with the collaborator's reason verbatim.
func (c *Client) SaveNewMatches(ctx context.Context, league, credential string, batch *domain.Batch) error {
	rows := make([]map[string]any, 0, batch.Len())
	for _, row := range batch.Rows {
		rows = append(rows, mergedRow(row))
	}
	body := map[string]any{
		"league":     league,
		"credential": credential,
		"matches":    rows,
	}
	_, err := c.post(ctx, "/api/save_new_matches", body)
	return err
}

// mergedRow flattens a candidate for the wire: raw columns first, derived
// feature keys overriding raw columns of the same name.
func mergedRow(c *domain.MatchCandidate) map[string]any {
	row := make(map[string]any, len(c.Record)+len(c.Features))
	for k, v := range c.Record {
		row[k] = v
	}
	for k, v := range c.Features {
		row[k] = v
	}
	return row
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*envelope, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req, path)
}

func (c *Client) post(ctx context.Context, path string, body any) (*envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path)
}

func (c *Client) do(req *http.Request, endpoint string) (*envelope, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", endpoint, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", endpoint, err)
	}

	c.logger.DebugContext(req.Context(), "collaborator call complete",
		slog.String("endpoint", endpoint),
		slog.Int("status_code", resp.StatusCode),
		slog.String("status", env.Status),
		slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.Status != "ok" {
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Message: env.Message}
	}
	return &env, nil
}
