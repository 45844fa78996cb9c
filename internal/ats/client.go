// Package ats is the client for the Ashby-style applicant tracking API.
// Every endpoint is an HTTP POST of a JSON body; responses carry success,
// results and cursor-pagination fields. Payloads stay as decoded JSON
// (map[string]any) so the redaction engine can walk them untyped.
package ats

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.ashbyhq.com"

	// pageSize and maxPages bound cursor pagination. 50 pages of 100 is
	// far beyond any sane pipeline query; the cap exists so a cursor bug
	// upstream cannot spin us forever.
	pageSize = 100
	maxPages = 50

	cacheTTL      = 10 * time.Minute
	cacheSweep    = 15 * time.Minute
	clientTimeout = 30 * time.Second
)

// Client calls the ATS API. Lookup data (jobs, stages, sources) is cached;
// outbound calls are throttled with a token bucket so a burst of tool
// calls cannot trip the vendor's rate limit.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	throttle   *rate.Limiter
	cache      *gocache.Cache
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithThrottle overrides the outbound request throttle.
func WithThrottle(rps float64, burst int) Option {
	return func(c *Client) { c.throttle = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewClient creates an ATS client. The API key is sent as HTTP basic auth
// with an empty password, per the vendor's scheme.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey+":")),
		httpClient: &http.Client{Timeout: clientTimeout},
		throttle:   rate.NewLimiter(rate.Limit(5), 10),
		cache:      gocache.New(cacheTTL, cacheSweep),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiResponse is the envelope every endpoint returns.
type apiResponse struct {
	Success           bool            `json:"success"`
	Results           json.RawMessage `json:"results"`
	MoreDataAvailable bool            `json:"moreDataAvailable"`
	NextCursor        string          `json:"nextCursor"`
	Errors            []string        `json:"errors"`
}

// post sends one request and decodes the envelope.
func (c *Client) post(ctx context.Context, endpoint string, params map[string]any) (*apiResponse, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ats throttle: %w", err)
	}

	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ats call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ats call %s: status %d: %s", endpoint, resp.StatusCode, string(respBody))
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("ats call %s: %s", endpoint, firstError(envelope.Errors))
	}
	return &envelope, nil
}

func firstError(errs []string) string {
	if len(errs) == 0 {
		return "request unsuccessful"
	}
	return errs[0]
}

// postObject calls an endpoint whose results field is a single object.
func (c *Client) postObject(ctx context.Context, endpoint string, params map[string]any) (map[string]any, error) {
	envelope, err := c.post(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if len(envelope.Results) > 0 {
		if err := json.Unmarshal(envelope.Results, &obj); err != nil {
			return nil, fmt.Errorf("decoding %s results: %w", endpoint, err)
		}
	}
	return obj, nil
}

// postList calls a list endpoint and follows the cursor until the data or
// the page cap runs out.
func (c *Client) postList(ctx context.Context, endpoint string, params map[string]any) ([]map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	params["limit"] = pageSize

	var all []map[string]any
	for page := 0; page < maxPages; page++ {
		envelope, err := c.post(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}

		var items []map[string]any
		if len(envelope.Results) > 0 {
			if err := json.Unmarshal(envelope.Results, &items); err != nil {
				return nil, fmt.Errorf("decoding %s results: %w", endpoint, err)
			}
		}
		all = append(all, items...)

		if !envelope.MoreDataAvailable || envelope.NextCursor == "" {
			return all, nil
		}
		params["cursor"] = envelope.NextCursor
	}

	log.Warn().Str("endpoint", endpoint).Int("pages", maxPages).Msg("ats_pagination_capped")
	return all, nil
}

// cachedList serves a list endpoint from cache when possible.
func (c *Client) cachedList(ctx context.Context, endpoint string, params map[string]any) ([]map[string]any, error) {
	if cached, ok := c.cache.Get(endpoint); ok {
		return cached.([]map[string]any), nil
	}
	items, err := c.postList(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	c.cache.Set(endpoint, items, gocache.DefaultExpiration)
	return items, nil
}

// InvalidateCaches drops all cached lookup data. Called after mutations
// that change jobs or stages.
func (c *Client) InvalidateCaches() {
	c.cache.Flush()
}
