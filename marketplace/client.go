// Package marketplace implements the HTTP client to a plugin registry:
// search, info (cached), install (certification + sandbox + integrity
// gated), publish, rating, reviews, trending, and analytics.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/robfig/cron/v3"

	"github.com/ragforge/ragforge/ragerr"
	"github.com/ragforge/ragforge/retry"
	"github.com/ragforge/ragforge/rlog"
)

// Client is the marketplace HTTP client, constructed via functional
// options following the pipeline.Executor pattern.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string

	retryPolicy    retry.Policy
	attemptTimeout time.Duration

	cache     *InfoCache
	sanitizer *bluemonday.Policy

	analytics *analyticsBuffer
	cron      *cron.Cron
}

// Option configures a Client at construction time.
type Option func(*Client)

func WithAPIKey(key string) Option          { return func(c *Client) { c.apiKey = key } }
func WithHTTPClient(h *http.Client) Option   { return func(c *Client) { c.httpClient = h } }
func WithUserAgent(ua string) Option         { return func(c *Client) { c.userAgent = ua } }
func WithRetryPolicy(p retry.Policy) Option  { return func(c *Client) { c.retryPolicy = p } }
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) { c.attemptTimeout = d }
}
func WithInfoCache(cache *InfoCache) Option { return func(c *Client) { c.cache = cache } }

// WithAnalyticsFlush enables a background flush of the analytics buffer
// every interval via a cron job. Tests should omit this option so no
// background timer is created.
func WithAnalyticsFlush(interval time.Duration, flush func([]AnalyticsEvent)) Option {
	return func(c *Client) {
		c.analytics.onFlush = flush
		c.cron = cron.New()
		spec := "@every " + interval.String()
		if _, err := c.cron.AddFunc(spec, c.analytics.flush); err != nil {
			rlog.Marketplace().Error().Err(err).Msg("failed to schedule analytics flush")
			return
		}
		c.cron.Start()
	}
}

// New constructs a Client against baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		userAgent:      "ragforge-marketplace-client/1.0",
		retryPolicy:    retry.DefaultPolicy(),
		attemptTimeout: 30 * time.Second,
		cache:          NewInfoCache(""),
		sanitizer:      bluemonday.UGCPolicy(),
		analytics:      newAnalyticsBuffer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close stops the background analytics flush, if enabled, and releases
// the info cache's Redis connection, if any.
func (c *Client) Close() {
	if c.cron != nil {
		c.cron.Stop()
	}
	c.cache.Close()
}

type apiResponse struct {
	status int
	body   []byte
}

// do issues an HTTP request to path with query, retrying per c.retryPolicy.
// Each attempt is bounded by c.attemptTimeout via a derived context.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (apiResponse, error) {
	var resp apiResponse

	err := retry.Do(ctx, c.retryPolicy, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()

		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return ragerr.Wrap(ragerr.InvalidInput, "marshal request body", err)
			}
			reader = bytes.NewReader(data)
		}

		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(attemptCtx, method, u, reader)
		if err != nil {
			return ragerr.Wrap(ragerr.InvalidInput, "build request", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return ragerr.Wrap(ragerr.Transient, "marketplace request failed", err)
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return ragerr.Wrap(ragerr.Transient, "read marketplace response", err)
		}

		if httpResp.StatusCode >= 300 {
			return ragerr.Newf(ragerr.Transient, "marketplace request failed: HTTP %d: %s",
				httpResp.StatusCode, serverMessage(data))
		}

		resp = apiResponse{status: httpResp.StatusCode, body: data}
		return nil
	})
	return resp, err
}

// downloadArchive fetches raw bytes from rawURL, retrying per
// c.retryPolicy. Unlike do, it does not prefix c.baseURL and does not
// attach the registry's Authorization header: rawURL is a pre-signed
// download link returned by the registry, typically hosted on a
// different origin with its own embedded authorization.
func (c *Client) downloadArchive(ctx context.Context, rawURL string) ([]byte, error) {
	var data []byte

	err := retry.Do(ctx, c.retryPolicy, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, "GET", rawURL, nil)
		if err != nil {
			return ragerr.Wrap(ragerr.InvalidInput, "build download request", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return ragerr.Wrap(ragerr.Transient, "download request failed", err)
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return ragerr.Wrap(ragerr.Transient, "read download response", err)
		}
		if httpResp.StatusCode >= 300 {
			return ragerr.Newf(ragerr.Transient, "download request failed: HTTP %d", httpResp.StatusCode)
		}
		data = body
		return nil
	})
	return data, err
}

// serverMessage tolerates either a structured {"message": "..."} JSON body
// or a plain text body when surfacing a non-2xx response.
func serverMessage(data []byte) string {
	var structured struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &structured); err == nil {
		if structured.Message != "" {
			return structured.Message
		}
		if structured.Error != "" {
			return structured.Error
		}
	}
	return string(data)
}

func (c *Client) sanitize(info *PluginInfo) {
	info.DisplayName = c.sanitizer.Sanitize(info.DisplayName)
	info.Description = c.sanitizer.Sanitize(info.Description)
	info.Author = c.sanitizer.Sanitize(info.Author)
}

func intParam(v int) string   { return strconv.Itoa(v) }
func floatParam(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func unmarshalJSON(data []byte, target any) error {
	return json.Unmarshal(data, target)
}
