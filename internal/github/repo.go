package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// maxListPages bounds Link-header pagination loops.
const maxListPages = 10

// RepoLabel is a repository label definition.
type RepoLabel struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// RepoUser is an assignable repository collaborator.
type RepoUser struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// splitRepoFullName splits "owner/repo" into its two parts.
func splitRepoFullName(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository name %q", fullName)
	}
	return parts[0], parts[1], nil
}

// issueNumberFromURL extracts the trailing issue/PR number from a web URL.
func issueNumberFromURL(url string) (int, error) {
	idx := strings.LastIndex(url, "/")
	if idx < 0 || idx == len(url)-1 {
		return 0, fmt.Errorf("no issue number in %q", url)
	}
	n, err := strconv.Atoi(url[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("no issue number in %q", url)
	}
	return n, nil
}

// listPaged follows Link headers across pages, decoding each page into T.
func listPaged[T any](ctx context.Context, c *Client, firstURL string) ([]T, error) {
	var out []T
	urlStr := firstURL
	for page := 0; page < maxListPages && urlStr != ""; page++ {
		body, headers, err := c.rest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		var chunk []T
		if err := json.Unmarshal(body, &chunk); err != nil {
			return nil, fmt.Errorf("failed to parse list response: %w", err)
		}
		out = append(out, chunk...)

		next, ok := nextPageURL(headers)
		if !ok {
			break
		}
		urlStr = next
	}
	return out, nil
}

// ListRepoLabels returns every label defined on a repository.
func (c *Client) ListRepoLabels(ctx context.Context, repoFullName string) ([]RepoLabel, error) {
	owner, repo, err := splitRepoFullName(repoFullName)
	if err != nil {
		return nil, err
	}
	first := c.buildRESTURL(fmt.Sprintf("/repos/%s/%s/labels", owner, repo), map[string]string{"per_page": "100"})
	return listPaged[RepoLabel](ctx, c, first)
}

// ListRepoAssignees returns the users assignable on a repository.
func (c *Client) ListRepoAssignees(ctx context.Context, repoFullName string) ([]RepoUser, error) {
	owner, repo, err := splitRepoFullName(repoFullName)
	if err != nil {
		return nil, err
	}
	first := c.buildRESTURL(fmt.Sprintf("/repos/%s/%s/assignees", owner, repo), map[string]string{"per_page": "100"})
	return listPaged[RepoUser](ctx, c, first)
}

// SetIssueLabels replaces the label set of an issue or PR identified by its
// web URL.
func (c *Client) SetIssueLabels(ctx context.Context, repoFullName, issueURL string, labels []string) error {
	owner, repo, err := splitRepoFullName(repoFullName)
	if err != nil {
		return err
	}
	number, err := issueNumberFromURL(issueURL)
	if err != nil {
		return err
	}
	if labels == nil {
		labels = []string{}
	}
	urlStr := c.buildRESTURL(fmt.Sprintf("/repos/%s/%s/issues/%d/labels", owner, repo, number), nil)
	_, _, err = c.rest(ctx, http.MethodPut, urlStr, map[string]any{"labels": labels})
	return err
}

// SetIssueAssignees replaces the assignee set of an issue or PR. The REST
// API only adds and removes, so the current set is diffed first.
func (c *Client) SetIssueAssignees(ctx context.Context, repoFullName, issueURL string, current, desired []string) error {
	owner, repo, err := splitRepoFullName(repoFullName)
	if err != nil {
		return err
	}
	number, err := issueNumberFromURL(issueURL)
	if err != nil {
		return err
	}

	want := map[string]bool{}
	for _, login := range desired {
		want[login] = true
	}
	have := map[string]bool{}
	for _, login := range current {
		have[login] = true
	}

	var toAdd, toRemove []string
	for login := range want {
		if !have[login] {
			toAdd = append(toAdd, login)
		}
	}
	for login := range have {
		if !want[login] {
			toRemove = append(toRemove, login)
		}
	}

	base := fmt.Sprintf("/repos/%s/%s/issues/%d/assignees", owner, repo, number)
	if len(toRemove) > 0 {
		urlStr := c.buildRESTURL(base, nil)
		if _, _, err := c.rest(ctx, http.MethodDelete, urlStr, map[string]any{"assignees": toRemove}); err != nil {
			return err
		}
	}
	if len(toAdd) > 0 {
		urlStr := c.buildRESTURL(base, nil)
		if _, _, err := c.rest(ctx, http.MethodPost, urlStr, map[string]any{"assignees": toAdd}); err != nil {
			return err
		}
	}
	return nil
}

// AddIssueComment posts a comment on an issue or PR.
func (c *Client) AddIssueComment(ctx context.Context, repoFullName, issueURL, body string) error {
	owner, repo, err := splitRepoFullName(repoFullName)
	if err != nil {
		return err
	}
	number, err := issueNumberFromURL(issueURL)
	if err != nil {
		return err
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("comment body is empty")
	}
	urlStr := c.buildRESTURL(fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number), nil)
	_, _, err = c.rest(ctx, http.MethodPost, urlStr, map[string]any{"body": body})
	return err
}
