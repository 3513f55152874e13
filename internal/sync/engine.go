// Package sync orchestrates a refresh: project discovery (with a persisted
// fallback cache), paginated item scanning, field extraction, and the final
// upsert into the store. A rate-limited run aborts early and reports what it
// collected as partial.
package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/trackdeck/trackdeck/internal/config"
	"github.com/trackdeck/trackdeck/internal/debug"
	"github.com/trackdeck/trackdeck/internal/github"
	"github.com/trackdeck/trackdeck/internal/telemetry"
	"github.com/trackdeck/trackdeck/internal/types"
)

// ProgressFunc receives per-page progress: targets completed so far, total
// targets, and a human-readable status line.
type ProgressFunc func(completed, total int, status string)

// Committer is the store surface the engine writes through.
type Committer interface {
	UpsertMany(rows []types.TaskRow) error
}

// Engine runs sync passes against one remote client.
type Engine struct {
	client *github.Client
	cache  *DiscoveryCache
	now    func() time.Time
}

// NewEngine creates an engine using the given client and discovery cache.
func NewEngine(client *github.Client, cache *DiscoveryCache) *Engine {
	return &Engine{client: client, cache: cache, now: func() time.Time { return time.Now().UTC() }}
}

// scanTarget is one (owner, project number) pair to page through.
type scanTarget struct {
	source config.ProjectSource
	number int
	title  string // known only for discovered targets
}

// resolveTargets expands the configured sources into concrete targets.
// Explicit numbers are used as-is; otherwise discovery runs, falling back to
// the cache when it fails. The cache is only rewritten on success.
func (e *Engine) resolveTargets(ctx context.Context, cfg *config.Config) []scanTarget {
	var targets []scanTarget
	for _, src := range cfg.Projects {
		if !src.All {
			for _, n := range src.Numbers {
				targets = append(targets, scanTarget{source: src, number: n})
			}
			continue
		}

		refs, err := e.client.DiscoverOpenProjects(ctx, src.OwnerType, src.Owner)
		if err != nil {
			debug.Logf("sync: discovery failed for %s: %v", src.CacheKey(), err)
			cached, ok := e.cache.Get(src.CacheKey())
			if !ok {
				continue
			}
			refs = cached
		} else if err := e.cache.Put(src.CacheKey(), refs); err != nil {
			debug.Logf("sync: failed to persist discovery cache: %v", err)
		}

		for _, ref := range refs {
			targets = append(targets, scanTarget{source: src, number: ref.Number, title: ref.Title})
		}
	}
	return targets
}

// Fetch runs one full sync pass and commits the collected rows. The result
// is partial when a rate limit cut the run short; rows collected before the
// cut are still committed and returned.
func (e *Engine) Fetch(ctx context.Context, cfg *config.Config, includeUnassigned bool, store Committer, progress ProgressFunc) (*types.FetchResult, error) {
	if progress == nil {
		progress = func(int, int, string) {}
	}
	if os.Getenv("MOCK_FETCH") == "1" {
		result := &types.FetchResult{Rows: mockRows(cfg, e.now())}
		if store != nil {
			if err := store.UpsertMany(result.Rows); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	now := e.now()
	progress(0, 0, "Resolving targets…")
	targets := e.resolveTargets(ctx, cfg)
	total := len(targets)
	if total == 0 {
		return &types.FetchResult{Message: "No projects to sync"}, nil
	}

	result := &types.FetchResult{}
	onWait := func(seconds int) {
		progress(0, total, fmt.Sprintf("Rate limited, retrying in %ds…", seconds))
	}

scan:
	for i, target := range targets {
		cursor := ""
		targetRows := 0
		var projectID, projectTitle string

		for {
			page, err := e.client.ScanProjectPage(ctx, target.source.OwnerType, target.source.Owner, target.number, cursor, onWait)
			switch {
			case errors.Is(err, github.ErrProjectNotFound):
				debug.Logf("sync: project %s/#%d not found, skipping", target.source.Owner, target.number)
				continue scan
			case errors.Is(err, github.ErrRateLimited):
				telemetry.RecordRateLimit(ctx)
				result.Partial = true
				result.Message = "Rate limited; partial results"
				break scan
			case err != nil:
				result.Partial = true
				result.Message = fmt.Sprintf("Sync interrupted: %v", err)
				break scan
			}

			projectID, projectTitle = page.ProjectID, page.ProjectTitle
			for _, item := range page.Items {
				rows := itemRows(cfg, target, projectID, projectTitle, item, includeUnassigned, now)
				result.Rows = append(result.Rows, rows...)
				targetRows += len(rows)
			}

			progress(i, total, fmt.Sprintf("%s #%d: %d items", target.source.Owner, target.number, targetRows))
			if !page.HasNextPage {
				break
			}
			cursor = page.EndCursor
		}

		if targetRows == 0 && projectID != "" {
			result.Rows = append(result.Rows, placeholderRow(target, projectID, projectTitle, now))
		}
		progress(i+1, total, fmt.Sprintf("Synced %s #%d", target.source.Owner, target.number))
	}

	if store != nil && len(result.Rows) > 0 {
		if err := store.UpsertMany(result.Rows); err != nil {
			return nil, fmt.Errorf("failed to commit sync results: %w", err)
		}
	}
	telemetry.RecordSyncRows(ctx, len(result.Rows))
	if result.Message == "" {
		result.Message = fmt.Sprintf("Synced %d rows from %d projects", len(result.Rows), total)
	}
	return result, nil
}

// mockRows builds a deterministic offline dataset for UI work without a
// token or network.
func mockRows(cfg *config.Config, now time.Time) []types.TaskRow {
	src := cfg.Projects[0]
	today := now.Format("2006-01-02")
	statusOpts := []types.Option{{ID: "opt-todo", Name: "Todo"}, {ID: "opt-wip", Name: "In Progress"}, {ID: "opt-done", Name: "Done"}}
	priorityOpts := []types.Option{{ID: "opt-p0", Name: "P0"}, {ID: "opt-p1", Name: "P1"}, {ID: "opt-p2", Name: "P2"}}

	base := types.TaskRow{
		OwnerType:     src.OwnerType,
		Owner:         src.Owner,
		ProjectNumber: 1,
		ProjectID:     "mock-project",
		ProjectTitle:  "Mock Board",
		RepoFullName:  src.Owner + "/mock",
		StartField:    "Start date",
		StatusFieldID: "mock-status-field",
		StatusOptions: statusOpts,
		AssigneeLogins: []string{
			cfg.User,
		},
		AssignedToMe: true,
		UpdatedAt:    now,
		LastSeenAt:   now,
	}

	mk := func(n int, title, status, optionID, start string, labels []string) types.TaskRow {
		row := base
		row.ItemID = fmt.Sprintf("mock-item-%d", n)
		row.ContentID = fmt.Sprintf("mock-content-%d", n)
		row.Title = title
		row.URL = fmt.Sprintf("https://example.com/%s/mock/issues/%d", src.Owner, n)
		row.Status = status
		row.StatusOptionID = optionID
		row.StartDate = start
		row.PriorityFieldID = "mock-priority-field"
		row.PriorityOptions = priorityOpts
		row.Priority = "P1"
		row.PriorityOptionID = "opt-p1"
		row.Labels = labels
		row.IsDone = types.IsDoneStatus(status)
		return row
	}

	return []types.TaskRow{
		mk(1, "Wire up the report view", "In Progress", "opt-wip", today, []string{"ui"}),
		mk(2, "Flaky pagination on large boards", "Todo", "opt-todo", today, []string{"bug", "sync"}),
		mk(3, "Cut the v0.3 release", "Done", "opt-done", "", nil),
	}
}
