package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient points a client at a test server with instant retries.
func newTestClient(srv *httptest.Server) *Client {
	c := NewClient("test-token").WithEndpoints(srv.URL+"/graphql", srv.URL)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func graphQLHandler(t *testing.T, respond func(query string, calls int) string) http.HandlerFunc {
	calls := 0
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls++
		fmt.Fprint(w, respond(req.Query, calls))
	}
}

func TestGraphQLRequiresToken(t *testing.T) {
	c := NewClient("")
	_, _, err := c.GraphQLWithBackoff(context.Background(), "query { viewer { login } }", nil, nil)
	assert.ErrorIs(t, err, ErrAuthMissing)
}

func TestGraphQLWithBackoffRetriesRateLimit(t *testing.T) {
	srv := httptest.NewServer(graphQLHandler(t, func(_ string, calls int) string {
		if calls < 3 {
			return `{"errors":[{"type":"RATE_LIMITED","message":"API rate limit exceeded"}]}`
		}
		return `{"data":{"ok":true}}`
	}))
	defer srv.Close()

	var waits []int
	c := newTestClient(srv)
	data, gqlErrs, err := c.GraphQLWithBackoff(context.Background(), "query {}", nil, func(s int) { waits = append(waits, s) })
	require.NoError(t, err)
	assert.Empty(t, gqlErrs)
	assert.JSONEq(t, `{"ok":true}`, string(data))
	assert.Equal(t, []int{2, 4}, waits, "doubling delay advertised to the caller")
}

func TestGraphQLWithBackoffExhaustionReturnsLastResponse(t *testing.T) {
	srv := httptest.NewServer(graphQLHandler(t, func(_ string, _ int) string {
		return `{"errors":[{"type":"RATE_LIMITED","message":"API rate limit exceeded"}]}`
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, gqlErrs, err := c.GraphQLWithBackoff(context.Background(), "query {}", nil, nil)
	require.NoError(t, err)
	assert.True(t, IsRateLimited(gqlErrs), "last response comes back unchanged after the budget runs out")
}

func TestGraphQLNonTransientErrorDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Bad credentials"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, _, err := c.GraphQLWithBackoff(context.Background(), "query {}", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, 1, calls)
}

func TestNotFoundOnProjectPath(t *testing.T) {
	errs := []GraphQLError{{Type: "NOT_FOUND", Message: "could not resolve", Path: []any{"organization", "projectV2"}}}
	assert.True(t, notFoundOnProjectPath(errs))

	errs = []GraphQLError{{Type: "NOT_FOUND", Message: "could not resolve", Path: []any{"repository"}}}
	assert.False(t, notFoundOnProjectPath(errs))

	assert.False(t, notFoundOnProjectPath(nil))
}

func TestNextPageURL(t *testing.T) {
	h := http.Header{}
	h.Set("Link", `<https://api.example.com/repos/o/r/labels?page=2>; rel="next", <https://api.example.com/repos/o/r/labels?page=5>; rel="last"`)
	next, ok := nextPageURL(h)
	assert.True(t, ok)
	assert.Equal(t, "https://api.example.com/repos/o/r/labels?page=2", next)

	h.Set("Link", `<https://api.example.com/repos/o/r/labels?page=5>; rel="last"`)
	_, ok = nextPageURL(h)
	assert.False(t, ok)

	_, ok = nextPageURL(http.Header{})
	assert.False(t, ok)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(fmt.Errorf("API error: upstream (status 503)")))
	assert.True(t, isTransient(fmt.Errorf("read tcp: connection reset by peer")))
	assert.False(t, isTransient(fmt.Errorf("API error: Bad credentials (status 401)")))
	assert.False(t, isTransient(context.Canceled))
	assert.False(t, isTransient(nil))
}
