// Package gitlab is a thin client for the GitLab v4 REST API: typed records,
// bounded retries with exponential backoff, offset pagination and a dry-run
// mode that suppresses every write.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const perPage = 100

// Client talks to one GitLab instance with one credential.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	dryRun      bool
	maxAttempts int
	initialWait time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithDryRun suppresses POST, PUT and DELETE calls; reads still go through.
func WithDryRun(enabled bool) Option {
	return func(c *Client) { c.dryRun = enabled }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy sets the attempt bound and the first backoff interval.
func WithRetryPolicy(maxAttempts int, initialWait time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.initialWait = initialWait
	}
}

// NewClient builds a Client for baseURL authenticating with token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxAttempts: 3,
		initialWait: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches endpoint and decodes the response into out when out is non-nil.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, params, nil, out)
}

// Post creates a resource. In dry-run mode it returns ErrDryRun without
// touching the network.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	if c.dryRun {
		log.Info().Str("endpoint", endpoint).Msg("dry-run: skipping POST")
		return ErrDryRun
	}
	return c.do(ctx, http.MethodPost, endpoint, nil, body, out)
}

// Put updates a resource. In dry-run mode it returns ErrDryRun without
// touching the network.
func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	if c.dryRun {
		log.Info().Str("endpoint", endpoint).Msg("dry-run: skipping PUT")
		return ErrDryRun
	}
	return c.do(ctx, http.MethodPut, endpoint, nil, body, out)
}

// Delete removes a resource. In dry-run mode it returns ErrDryRun without
// touching the network.
func (c *Client) Delete(ctx context.Context, endpoint string) error {
	if c.dryRun {
		log.Info().Str("endpoint", endpoint).Msg("dry-run: skipping DELETE")
		return ErrDryRun
	}
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil, nil)
}

// CurrentUser fetches the user the credential authenticates as.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.Get(ctx, "/api/v4/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Paginate fetches every page of a list endpoint. Pagination stops at the
// first page shorter than the page size.
func Paginate[T any](ctx context.Context, c *Client, endpoint string, params url.Values) ([]T, error) {
	var out []T
	for page := 1; ; page++ {
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(perPage))

		var items []T
		if err := c.Get(ctx, endpoint, q, &items); err != nil {
			return nil, err
		}
		out = append(out, items...)
		if len(items) < perPage {
			return out, nil
		}
	}
}

// do runs one request with the retry policy: 5xx and transport errors are
// retried up to the attempt bound with exponential backoff, a 429 honors
// Retry-After and re-enters the loop without consuming an attempt, and any
// other 4xx fails immediately.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body, out any) error {
	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialWait
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	attempt := 0
	for {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("PRIVATE-TOKEN", c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			attempt++
			if attempt >= c.maxAttempts {
				return fmt.Errorf("%s %s: %w", method, endpoint, err)
			}
			wait := bo.NextBackOff()
			log.Warn().Err(err).Str("endpoint", endpoint).Dur("wait", wait).Msg("request failed, retrying")
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("%s %s: read response: %w", method, endpoint, readErr)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := c.initialWait
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
				wait = time.Duration(secs) * time.Second
			}
			log.Warn().Str("endpoint", endpoint).Dur("wait", wait).Msg("rate limited")
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue

		case resp.StatusCode >= 500:
			attempt++
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data), Endpoint: endpoint}
			if attempt >= c.maxAttempts {
				return apiErr
			}
			wait := bo.NextBackOff()
			log.Warn().Int("status", resp.StatusCode).Str("endpoint", endpoint).Dur("wait", wait).
				Msg("server error, retrying")
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue

		case resp.StatusCode >= 400:
			return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data), Endpoint: endpoint}
		}

		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, endpoint, err)
		}
		return nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
