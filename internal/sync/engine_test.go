package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackdeck/trackdeck/internal/config"
	"github.com/trackdeck/trackdeck/internal/github"
	"github.com/trackdeck/trackdeck/internal/types"
)

type fakeStore struct {
	rows []types.TaskRow
}

func (f *fakeStore) UpsertMany(rows []types.TaskRow) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func testConfig(numbers ...int) *config.Config {
	src := config.ProjectSource{OwnerType: config.OwnerOrg, Owner: "acme"}
	if len(numbers) == 0 {
		src.All = true
	} else {
		src.Numbers = numbers
	}
	return &config.Config{
		User:        "alice",
		DateFieldRe: regexp.MustCompile(`(?i)date`),
		IterationRe: regexp.MustCompile(`(?i)iteration|sprint`),
		Projects:    []config.ProjectSource{src},
	}
}

func testEngine(t *testing.T, srv *httptest.Server) *Engine {
	t.Helper()
	client := github.NewClient("test-token").WithEndpoints(srv.URL+"/graphql", srv.URL)
	client.RetryBase = time.Millisecond
	client.RetryCap = time.Millisecond
	cache := NewDiscoveryCache(filepath.Join(t.TempDir(), "projects.json"))
	e := NewEngine(client, cache)
	e.now = func() time.Time { return time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC) }
	return e
}

// scanItem builds the JSON for one Issue item assigned to alice.
func scanItem(n int, title, date string) string {
	return fmt.Sprintf(`{
		"id": "ITEM_%d",
		"fieldValues": {"nodes": [
			{"__typename": "ProjectV2ItemFieldDateValue", "date": %q,
			 "field": {"id": "F_DATE", "name": "Start date"}},
			{"__typename": "ProjectV2ItemFieldSingleSelectValue", "optionId": "OPT_1", "name": "Todo",
			 "field": {"id": "F_STATUS", "name": "Status",
			  "options": [{"id": "OPT_1", "name": "Todo"}, {"id": "OPT_3", "name": "Done"}]}}
		]},
		"content": {"__typename": "Issue", "id": "I_%d", "title": %q,
			"url": "https://github.com/acme/app/issues/%d",
			"repository": {"nameWithOwner": "acme/app"},
			"assignees": {"nodes": [{"id": "U_1", "login": "alice"}]},
			"labels": {"nodes": [{"name": "bug"}]},
			"author": {"login": "carol"}}
	}`, n, date, n, title, n)
}

func scanPage(items []string, hasNext bool, cursor string) string {
	return fmt.Sprintf(`{"data":{"organization":{"projectV2":{
		"id": "PVT_1", "title": "Sprint",
		"items": {
			"pageInfo": {"hasNextPage": %t, "endCursor": %q},
			"nodes": [%s]
		}
	}}}}`, hasNext, cursor, strings.Join(items, ","))
}

func decodeGraphQLRequest(t *testing.T, r *http.Request) (string, map[string]any) {
	t.Helper()
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req.Query, req.Variables
}

func TestFetchPaginates(t *testing.T) {
	var afters []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, vars := decodeGraphQLRequest(t, r)
		afters = append(afters, vars["after"])
		if vars["after"] == "c1" {
			fmt.Fprint(w, scanPage([]string{scanItem(3, "Third", "2026-08-27"), scanItem(4, "Fourth", "2026-08-28")}, false, ""))
			return
		}
		fmt.Fprint(w, scanPage([]string{scanItem(1, "First", "2026-08-25"), scanItem(2, "Second", "2026-08-26")}, true, "c1"))
	}))
	defer srv.Close()

	store := &fakeStore{}
	var progress []string
	result, err := testEngine(t, srv).Fetch(context.Background(), testConfig(7), false, store, func(done, total int, status string) {
		progress = append(progress, fmt.Sprintf("%d/%d %s", done, total, status))
	})
	require.NoError(t, err)

	assert.False(t, result.Partial)
	require.Len(t, result.Rows, 4)
	assert.Equal(t, []any{nil, "c1"}, afters, "second page requested with the first page's cursor")
	assert.Equal(t, "First", result.Rows[0].Title)
	assert.Equal(t, "2026-08-25", result.Rows[0].StartDate)
	assert.Equal(t, "Start date", result.Rows[0].StartField)
	assert.Equal(t, []string{"bug"}, result.Rows[0].Labels)
	require.Len(t, result.Rows[0].StatusOptions, 2)
	assert.Equal(t, result.Rows, store.rows, "collected rows are committed")
	assert.NotEmpty(t, progress)
	assert.Contains(t, progress[len(progress)-1], "1/1")
}

func TestFetchRateLimitAbortsWithPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"errors":[{"type":"RATE_LIMITED","message":"API rate limit exceeded"}]}`)
	}))
	defer srv.Close()

	store := &fakeStore{}
	result, err := testEngine(t, srv).Fetch(context.Background(), testConfig(7), false, store, nil)
	require.NoError(t, err)

	assert.True(t, result.Partial)
	assert.Contains(t, result.Message, "Rate limited")
	assert.Empty(t, result.Rows)
	assert.Empty(t, store.rows)
}

func TestFetchSkipsMissingProject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, vars := decodeGraphQLRequest(t, r)
		if num, _ := vars["number"].(float64); int(num) == 99 {
			fmt.Fprint(w, `{"data":{"organization":{"projectV2":null}},
				"errors":[{"type":"NOT_FOUND","message":"not found","path":["organization","projectV2"]}]}`)
			return
		}
		fmt.Fprint(w, scanPage([]string{scanItem(1, "Survivor", "2026-08-26")}, false, ""))
	}))
	defer srv.Close()

	result, err := testEngine(t, srv).Fetch(context.Background(), testConfig(99, 7), false, nil, nil)
	require.NoError(t, err)

	assert.False(t, result.Partial)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Survivor", result.Rows[0].Title)
}

func TestFetchEmitsPlaceholderForEmptyTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, scanPage(nil, false, ""))
	}))
	defer srv.Close()

	result, err := testEngine(t, srv).Fetch(context.Background(), testConfig(7), false, nil, nil)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.True(t, result.Rows[0].Placeholder())
	assert.Equal(t, "(no items)", result.Rows[0].Title)
	assert.Equal(t, "Sprint", result.Rows[0].ProjectTitle)
}

func TestFetchDiscoveryCacheFallback(t *testing.T) {
	failDiscovery := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query, _ := decodeGraphQLRequest(t, r)
		if strings.Contains(query, "projectsV2(first:") {
			if failDiscovery {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"message":"token expired"}`)
				return
			}
			fmt.Fprint(w, `{"data":{"organization":{"projectsV2":{"nodes":[
				{"id":"PVT_1","number":7,"title":"Sprint","closed":false}]}}}}`)
			return
		}
		fmt.Fprint(w, scanPage([]string{scanItem(1, "Task", "2026-08-26")}, false, ""))
	}))
	defer srv.Close()

	e := testEngine(t, srv)
	cfg := testConfig() // numbers: all → discovery

	result, err := e.Fetch(context.Background(), cfg, false, nil, nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	cacheBefore, err := os.ReadFile(e.cache.path)
	require.NoError(t, err, "successful discovery persists the cache")
	assert.Contains(t, string(cacheBefore), `"orgs:acme"`)

	// Discovery now fails; the cached target list keeps the sync working
	// and the failing path does not rewrite the cache.
	failDiscovery = true
	result, err = e.Fetch(context.Background(), cfg, false, nil, nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.False(t, result.Partial)

	cacheAfter, err := os.ReadFile(e.cache.path)
	require.NoError(t, err)
	assert.Equal(t, cacheBefore, cacheAfter)
}

func TestFetchMockRows(t *testing.T) {
	t.Setenv("MOCK_FETCH", "1")

	store := &fakeStore{}
	e := NewEngine(github.NewClient(""), NewDiscoveryCache(filepath.Join(t.TempDir(), "projects.json")))
	result, err := e.Fetch(context.Background(), testConfig(7), false, store, nil)
	require.NoError(t, err)

	require.Len(t, result.Rows, 3)
	assert.Equal(t, result.Rows, store.rows)
	assert.False(t, result.Partial)
	for _, row := range result.Rows {
		assert.NotEmpty(t, row.StatusOptions)
	}
	assert.True(t, result.Rows[2].IsDone)
}
