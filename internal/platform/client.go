package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/maheshrc27/brandcast/internal/models"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 3 * time.Second
	defaultPollAttempts = 20
	maxErrorBody        = 512
)

type options struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	pollInterval time.Duration
	pollAttempts int
}

// Option configures an adapter's API client.
type Option func(*options)

func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimRight(u, "/")
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithRateLimit caps requests per second against the platform API.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond <= 0 {
			o.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithPolling sets how long asynchronous containers are waited on.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(o *options) {
		o.pollInterval = interval
		o.pollAttempts = attempts
	}
}

func buildOptions(defaultBase string, opts []Option) options {
	o := options{
		baseURL:      defaultBase,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		limiter:      rate.NewLimiter(rate.Limit(5), 5),
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// errorDecoder turns a failed response body into a PublishError. It returns
// nil to fall back to status based classification.
type errorDecoder func(status int, body []byte) *PublishError

type apiClient struct {
	platform    models.Platform
	opts        options
	decodeError errorDecoder
}

func newAPIClient(p models.Platform, opts options, decode errorDecoder) *apiClient {
	return &apiClient{platform: p, opts: opts, decodeError: decode}
}

func (c *apiClient) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.opts.baseURL + path
}

func (c *apiClient) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", c.platform, err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req with the bearer token and decodes a JSON response into out.
func (c *apiClient) do(req *http.Request, token string, out any) (http.Header, error) {
	if err := c.opts.limiter.Wait(req.Context()); err != nil {
		return nil, transportError(c.platform, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return nil, transportError(c.platform, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(c.platform, err)
	}

	if resp.StatusCode >= 400 {
		if c.decodeError != nil {
			if pe := c.decodeError(resp.StatusCode, body); pe != nil {
				pe.Platform = c.platform
				pe.StatusCode = resp.StatusCode
				return nil, pe
			}
		}
		return nil, statusError(c.platform, resp.StatusCode, truncate(string(body), maxErrorBody))
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, &PublishError{Kind: Transient, Platform: c.platform, StatusCode: resp.StatusCode,
				Message: "unreadable response", Err: err}
		}
	}
	return resp.Header, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// truncate cuts s to at most n bytes without splitting a character. Invalid
// UTF-8 in the body is replaced, since the text ends up in TEXT columns.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(strings.TrimSpace(s), "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
