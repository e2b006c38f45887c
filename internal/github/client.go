// Package github fetches repository content over the GitHub REST API.
// A missing file (404) is a normal outcome, not an error; transport and
// auth failures are returned to the caller for retry.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const apiBase = "https://api.github.com"

// ContentSource is the file-source capability consumed by the ingestion
// orchestrator.
type ContentSource interface {
	// FetchContent returns the raw file content at the given ref. The
	// boolean is false when the file does not exist upstream.
	FetchContent(ctx context.Context, owner, repo, path, ref string) (string, bool, error)
}

// RepoMetadata is the subset of repository metadata the pipeline uses.
type RepoMetadata struct {
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
}

// TreeEntry is one path in a repository tree listing, with the
// transport-reported blob size (0 when GitHub omits it).
type TreeEntry struct {
	Path string
	Size int64
}

// Client talks to the GitHub REST API with a shared HTTP client.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

var _ ContentSource = (*Client)(nil)

// NewClient creates a GitHub API client. An empty token limits access to
// public repositories.
func NewClient(token string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: apiBase,
		token:   token,
	}
}

// NewClientWithBaseURL is used by tests to point the client at a local
// HTTP server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = baseURL
	return c
}

// FetchContent retrieves raw file content via the contents API at a
// specific ref. 404 means the file is absent upstream; any other non-2xx
// status is an error.
func (c *Client) FetchContent(ctx context.Context, owner, repo, path, ref string) (string, bool, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		c.baseURL, owner, repo, path, url.QueryEscape(ref))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", false, err
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/vnd.github.raw+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetch %s/%s/%s: %w", owner, repo, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("fetch %s/%s/%s: github returned %s", owner, repo, path, resp.Status)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

// GetRepoMetadata fetches repository metadata, including the default branch.
func (c *Client) GetRepoMetadata(ctx context.Context, owner, repo string) (RepoMetadata, error) {
	u := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return RepoMetadata{}, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return RepoMetadata{}, fmt.Errorf("repo metadata %s/%s: %w", owner, repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return RepoMetadata{}, fmt.Errorf("repo metadata %s/%s: github returned %s", owner, repo, resp.Status)
	}

	var meta RepoMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return RepoMetadata{}, err
	}
	return meta, nil
}

// ListFiles returns every blob path in the repository tree at the given
// ref, with transport-reported sizes as optimistic denylist input.
func (c *Client) ListFiles(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		c.baseURL, owner, repo, url.PathEscape(ref))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list tree %s/%s@%s: %w", owner, repo, ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list tree %s/%s@%s: github returned %s", owner, repo, ref, resp.Status)
	}

	var out struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			Size int64  `json:"size"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	entries := make([]TreeEntry, 0, len(out.Tree))
	for _, t := range out.Tree {
		if t.Type != "blob" {
			continue
		}
		entries = append(entries, TreeEntry{Path: t.Path, Size: t.Size})
	}
	return entries, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}
