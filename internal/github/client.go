// Package github provides the authenticated client for the project host.
//
// Project-board operations (discovery, item scanning, field mutations) use
// the GraphQL endpoint; repository-level operations (labels, assignees,
// comments) use the REST endpoint with Link-header pagination.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/trackdeck/trackdeck/internal/debug"
	"github.com/trackdeck/trackdeck/internal/telemetry"
)

// API configuration constants.
const (
	// DefaultGraphQLEndpoint is the GitHub GraphQL API URL.
	DefaultGraphQLEndpoint = "https://api.github.com/graphql"

	// DefaultRESTEndpoint is the GitHub REST API base URL.
	DefaultRESTEndpoint = "https://api.github.com"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 60 * time.Second

	// MaxAttempts bounds the backoff driver. After the last attempt the
	// response is returned unchanged so upper layers can report partial
	// results.
	MaxAttempts = 5

	// backoffBase and backoffCap bound the doubling retry delay.
	backoffBase = 2 * time.Second
	backoffCap  = 60 * time.Second

	// MaxPageSize is the per-page item count for paginated queries.
	MaxPageSize = 100
)

// Sentinel errors surfaced to the sync engine and edit coordinator.
var (
	// ErrRateLimited means the host reported RATE_LIMITED and the backoff
	// budget is exhausted; the current sync aborts with partial results.
	ErrRateLimited = errors.New("rate limited")

	// ErrProjectNotFound means a projectV2 path resolved to nothing; the
	// sync engine skips that target.
	ErrProjectNotFound = errors.New("project not found")

	// ErrAuthMissing means no token is available for a networked call.
	ErrAuthMissing = errors.New("missing auth token")
)

// Client talks to the project host.
type Client struct {
	Token           string
	GraphQLEndpoint string
	RESTEndpoint    string
	HTTPClient      *http.Client

	// RetryBase and RetryCap bound the doubling retry delay.
	RetryBase time.Duration
	RetryCap  time.Duration

	// sleep overrides the retry wait in tests. Nil means real sleeping.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client with default endpoints and timeout.
func NewClient(token string) *Client {
	return &Client{
		Token:           token,
		GraphQLEndpoint: DefaultGraphQLEndpoint,
		RESTEndpoint:    DefaultRESTEndpoint,
		HTTPClient:      &http.Client{Timeout: DefaultTimeout},
		RetryBase:       backoffBase,
		RetryCap:        backoffCap,
	}
}

// WithEndpoints returns a copy pointed at custom endpoints (testing, GHE).
func (c *Client) WithEndpoints(graphql, rest string) *Client {
	return &Client{
		Token:           c.Token,
		GraphQLEndpoint: graphql,
		RESTEndpoint:    rest,
		HTTPClient:      c.HTTPClient,
		RetryBase:       c.RetryBase,
		RetryCap:        c.RetryCap,
		sleep:           c.sleep,
	}
}

// GraphQLError is one entry of a GraphQL error list.
type GraphQLError struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
	Path    []any  `json:"path,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// graphql performs a single GraphQL request without retry.
func (c *Client) graphql(ctx context.Context, query string, variables map[string]any) (json.RawMessage, []GraphQLError, error) {
	if c.Token == "" {
		return nil, nil, ErrAuthMissing
	}
	telemetry.RecordAPIRequest(ctx, "graphql")

	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.GraphQLEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	const maxResponseSize = 50 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("API error: %s (status %d)", strings.TrimSpace(string(body)), resp.StatusCode)
	}

	var parsed graphQLResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return parsed.Data, parsed.Errors, nil
}

// isTransient reports whether a request error is worth retrying.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrAuthMissing) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{
		"connection reset", "connection refused", "broken pipe",
		"i/o timeout", "deadline exceeded", "temporary failure",
		"eof", "status 502", "status 503", "status 504",
	} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// IsRateLimited reports whether a GraphQL error list contains RATE_LIMITED.
func IsRateLimited(errs []GraphQLError) bool {
	for _, e := range errs {
		if e.Type == "RATE_LIMITED" {
			return true
		}
	}
	return false
}

// notFoundOnProjectPath reports whether an error list carries a NOT_FOUND
// scoped to a projectV2 path.
func notFoundOnProjectPath(errs []GraphQLError) bool {
	for _, e := range errs {
		if e.Type != "NOT_FOUND" {
			continue
		}
		for _, p := range e.Path {
			if s, ok := p.(string); ok && strings.HasPrefix(s, "projectV2") {
				return true
			}
		}
	}
	return false
}

// GraphQLWithBackoff runs a query, retrying transient network errors and
// RATE_LIMITED responses with a doubling delay. onWait, when non-nil, is
// invoked with the seconds about to be slept so progress reporting can
// advertise the stall. After MaxAttempts the last response is returned
// unchanged.
func (c *Client) GraphQLWithBackoff(ctx context.Context, query string, variables map[string]any, onWait func(seconds int)) (json.RawMessage, []GraphQLError, error) {
	// BackOff implementations are stateful; always use a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.RetryBase
	bo.MaxInterval = c.RetryCap
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = backoffBase
		bo.MaxInterval = backoffCap
	}
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // bounded by MaxAttempts, not wall clock

	var (
		data    json.RawMessage
		gqlErrs []GraphQLError
		err     error
	)
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		data, gqlErrs, err = c.graphql(ctx, query, variables)

		retry := false
		switch {
		case err != nil && isTransient(err):
			debug.Logf("github: transient error (attempt %d/%d): %v", attempt, MaxAttempts, err)
			retry = true
		case err != nil:
			return nil, nil, err
		case IsRateLimited(gqlErrs):
			debug.Logf("github: rate limited (attempt %d/%d)", attempt, MaxAttempts)
			retry = true
		}
		if !retry || attempt == MaxAttempts {
			return data, gqlErrs, err
		}

		wait := bo.NextBackOff()
		if onWait != nil {
			onWait(int(wait.Seconds()))
		}
		if c.sleep != nil {
			if err := c.sleep(ctx, wait); err != nil {
				return nil, nil, err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return data, gqlErrs, err
}

// rest performs a REST request with auth headers and returns the body and
// headers. Non-2xx responses are errors.
func (c *Client) rest(ctx context.Context, method, urlStr string, body any) ([]byte, http.Header, error) {
	if c.Token == "" {
		return nil, nil, ErrAuthMissing
	}
	telemetry.RecordAPIRequest(ctx, "rest")

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	const maxResponseSize = 50 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("API error: %s (status %d)", strings.TrimSpace(string(respBody)), resp.StatusCode)
	}
	return respBody, resp.Header, nil
}

func (c *Client) buildRESTURL(path string, params map[string]string) string {
	u := c.RESTEndpoint + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

// linkNextPattern matches the "next" relation in Link headers.
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextPageURL checks the Link header for a next page URL.
func nextPageURL(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}
