// Package webhook receives GitHub push events: HMAC-SHA256 signature
// verification, payload parsing, and fan-out of per-file tasks to the
// queue dispatcher.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dweinbeck/chatbot-assistant/internal/indexer"
	"github.com/dweinbeck/chatbot-assistant/internal/queue"
)

// Commit is one commit within a push event.
type Commit struct {
	ID       string   `json:"id"`
	Message  string   `json:"message"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// Repository is the repository block of a push payload.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
		Name  string `json:"name"`
	} `json:"owner"`
	DefaultBranch string `json:"default_branch"`
}

// PushPayload is a GitHub push webhook event.
type PushPayload struct {
	Ref        string     `json:"ref"`
	Before     string     `json:"before"`
	After      string     `json:"after"`
	Repository Repository `json:"repository"`
	Commits    []Commit   `json:"commits"`
	Deleted    bool       `json:"deleted"`
}

// VerifySignature checks a GitHub X-Hub-Signature-256 header value
// ("sha256=<hex>") against the raw body using constant-time comparison.
func VerifySignature(secret, signature string, body []byte) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// fileAction is the resolved fate of one path across a push's commits.
type fileAction int

const (
	actionIndex fileAction = iota
	actionDelete
)

// FanOut converts a push payload into queue tasks: one index task per
// added/modified path and one delete task per removed path. Commits are
// replayed in order and the last action per path wins, so a file modified
// and then removed in the same push is only deleted. Ref-deletion pushes
// (branch or tag removed) carry no file changes and enqueue nothing.
// Returns the number of tasks enqueued.
func FanOut(ctx context.Context, d queue.Dispatcher, payload PushPayload) (int, error) {
	if payload.Deleted {
		return 0, nil
	}

	owner := payload.Repository.Owner.Login
	if owner == "" {
		owner = payload.Repository.Owner.Name
	}
	repo := payload.Repository.Name

	actions := make(map[string]fileAction)
	var order []string
	record := func(path string, a fileAction) {
		if _, seen := actions[path]; !seen {
			order = append(order, path)
		}
		actions[path] = a
	}

	for _, c := range payload.Commits {
		for _, p := range c.Added {
			record(p, actionIndex)
		}
		for _, p := range c.Modified {
			record(p, actionIndex)
		}
		for _, p := range c.Removed {
			record(p, actionDelete)
		}
	}

	enqueued := 0
	for _, path := range order {
		switch actions[path] {
		case actionIndex:
			err := d.EnqueueIndexFile(ctx, indexer.Request{
				Owner:     owner,
				Repo:      repo,
				Path:      path,
				CommitSHA: payload.After,
				SizeHint:  -1,
			})
			if err != nil {
				return enqueued, err
			}
		case actionDelete:
			err := d.EnqueueDeleteFile(ctx, queue.DeletePayload{
				Owner: owner,
				Repo:  repo,
				Path:  path,
			})
			if err != nil {
				return enqueued, err
			}
		}
		enqueued++
	}
	return enqueued, nil
}
