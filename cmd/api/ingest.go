package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/dweinbeck/chatbot-assistant/internal/indexer"
	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

type ingestURLRequest struct {
	URL       string `json:"url"`
	RepoOwner string `json:"repo_owner"`
	RepoName  string `json:"repo_name"`
	Path      string `json:"path"`
}

const maxIngestBody = 5 << 20 // 5 MiB

var ingestHTTP = &http.Client{Timeout: 30 * time.Second}

// ingestURL fetches a web page, extracts its visible text, and indexes it
// under a synthetic path in the requested repository namespace. The path
// defaults to the URL with the scheme stripped.
func ingestURL(ctx context.Context, orch *indexer.Orchestrator, req ingestURLRequest) (models.IndexOutcome, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return models.IndexOutcome{}, fmt.Errorf("build request for %s: %w", req.URL, err)
	}

	resp, err := ingestHTTP.Do(httpReq)
	if err != nil {
		return models.IndexOutcome{}, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.IndexOutcome{}, fmt.Errorf("fetch %s: upstream returned %s", req.URL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIngestBody))
	if err != nil {
		return models.IndexOutcome{}, fmt.Errorf("read %s: %w", req.URL, err)
	}

	text := string(body)
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "text/html") {
		text, err = extractText(strings.NewReader(text))
		if err != nil {
			return models.IndexOutcome{}, fmt.Errorf("parse html from %s: %w", req.URL, err)
		}
	}

	path := req.Path
	if path == "" {
		path = urlToPath(req.URL)
	}

	return orch.IngestText(ctx, req.RepoOwner, req.RepoName, path, text)
}

// extractText walks the HTML tree and joins visible text nodes with
// newlines. Script and style subtrees are skipped.
func extractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimRight(b.String(), "\n"), nil
}

func urlToPath(u string) string {
	p := u
	for _, prefix := range []string{"https://", "http://"} {
		p = strings.TrimPrefix(p, prefix)
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		p = "index"
	}
	return "web/" + p + ".txt"
}
