// Package indexer orchestrates the ingestion pipeline for a single file
// event: denylist check, content fetch, fingerprint comparison, chunking,
// and knowledge-base replacement. Delivery is at-least-once, so every step
// is idempotent; the fingerprint gate makes redelivered events no-ops.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dweinbeck/chatbot-assistant/internal/chunker"
	"github.com/dweinbeck/chatbot-assistant/internal/denylist"
	"github.com/dweinbeck/chatbot-assistant/internal/github"
	"github.com/dweinbeck/chatbot-assistant/internal/metrics"
	"github.com/dweinbeck/chatbot-assistant/internal/store"
	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

// Fingerprint returns the sha256 hex digest of content, used for change
// detection and idempotent re-indexing.
func Fingerprint(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// Orchestrator composes the denylist, chunker and fingerprint gate into the
// add/modify/delete pipeline against the knowledge store.
type Orchestrator struct {
	Store  store.KnowledgeStore
	Source github.ContentSource
}

// New creates an Orchestrator over the given store and content source.
func New(s store.KnowledgeStore, src github.ContentSource) *Orchestrator {
	return &Orchestrator{Store: s, Source: src}
}

// Request identifies one file to index. SizeHint is the transport-reported
// size in bytes, or negative when unknown; it enables an optimistic
// denylist check before fetching.
type Request struct {
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	Path      string `json:"path"`
	CommitSHA string `json:"commit_sha"`
	SizeHint  int64  `json:"size_hint"`
}

// IndexFile runs the full pipeline for one add/modify event:
//
//	denylist -> fetch -> size re-check -> fingerprint ->
//	(unchanged: refresh commit ref | changed: replace chunks in full)
//
// Skips and unchanged content are reported as outcomes, never errors;
// transport failures propagate for the queue to retry.
func (o *Orchestrator) IndexFile(ctx context.Context, req Request) (models.IndexOutcome, error) {
	repo, err := o.Store.GetOrCreateRepo(ctx, req.Owner, req.Repo, "")
	if err != nil {
		return models.IndexOutcome{}, fmt.Errorf("get or create repo %s/%s: %w", req.Owner, req.Repo, err)
	}

	if denied, reason := denylist.IsDenied(req.Path, req.SizeHint); denied {
		log.Debug().Str("path", req.Path).Str("reason", reason).Msg("skipping denied path")
		return models.IndexOutcome{Status: models.StatusSkipped, Reason: reason}, nil
	}

	content, found, err := o.Source.FetchContent(ctx, req.Owner, req.Repo, req.Path, req.CommitSHA)
	if err != nil {
		return models.IndexOutcome{}, err
	}
	if !found {
		log.Debug().Str("path", req.Path).Str("commit", req.CommitSHA).Msg("file not found upstream")
		return models.IndexOutcome{Status: models.StatusSkipped, Reason: "not_found"}, nil
	}

	// Authoritative size check: the hint may have been absent or stale.
	if denied, reason := denylist.IsDenied(req.Path, int64(len(content))); denied {
		log.Debug().Str("path", req.Path).Int("size", len(content)).Msg("skipping oversized file")
		return models.IndexOutcome{Status: models.StatusSkipped, Reason: reason}, nil
	}

	fingerprint := Fingerprint([]byte(content))

	existing, ok, err := o.Store.GetFile(ctx, repo.ID, req.Path)
	if err != nil {
		return models.IndexOutcome{}, fmt.Errorf("get file %s: %w", req.Path, err)
	}
	if ok && existing.SHA256 == fingerprint {
		if err := o.Store.TouchFileCommit(ctx, existing.ID, req.CommitSHA); err != nil {
			return models.IndexOutcome{}, fmt.Errorf("touch commit for %s: %w", req.Path, err)
		}
		return models.IndexOutcome{Status: models.StatusUnchanged}, nil
	}

	chunks := chunker.ChunkFile(req.Path, content)

	if _, err := o.Store.ReplaceFileChunks(ctx, repo.ID, req.Path, req.CommitSHA, fingerprint, chunks); err != nil {
		return models.IndexOutcome{}, fmt.Errorf("replace chunks for %s: %w", req.Path, err)
	}

	metrics.FilesIndexed.Inc()
	metrics.ChunksCreated.Add(float64(len(chunks)))
	log.Info().Str("path", req.Path).Int("chunks", len(chunks)).Msg("file indexed")
	return models.IndexOutcome{Status: models.StatusIndexed, Chunks: len(chunks)}, nil
}

// IngestText indexes already-fetched text (for sources without commits,
// e.g. web pages) under a synthetic commit reference derived from the
// content fingerprint. The same fingerprint gate and replace-in-full
// semantics apply as for repository files.
func (o *Orchestrator) IngestText(ctx context.Context, owner, repoName, path, text string) (models.IndexOutcome, error) {
	repo, err := o.Store.GetOrCreateRepo(ctx, owner, repoName, "")
	if err != nil {
		return models.IndexOutcome{}, fmt.Errorf("get or create repo %s/%s: %w", owner, repoName, err)
	}

	fingerprint := Fingerprint([]byte(text))
	commitSHA := fingerprint[:40]

	existing, ok, err := o.Store.GetFile(ctx, repo.ID, path)
	if err != nil {
		return models.IndexOutcome{}, fmt.Errorf("get file %s: %w", path, err)
	}
	if ok && existing.SHA256 == fingerprint {
		return models.IndexOutcome{Status: models.StatusUnchanged}, nil
	}

	chunks := chunker.ChunkFile(path, text)
	if _, err := o.Store.ReplaceFileChunks(ctx, repo.ID, path, commitSHA, fingerprint, chunks); err != nil {
		return models.IndexOutcome{}, fmt.Errorf("replace chunks for %s: %w", path, err)
	}

	metrics.FilesIndexed.Inc()
	metrics.ChunksCreated.Add(float64(len(chunks)))
	log.Info().Str("path", path).Int("chunks", len(chunks)).Msg("text ingested")
	return models.IndexOutcome{Status: models.StatusIndexed, Chunks: len(chunks)}, nil
}

// DeleteFile removes a file and, by cascade, its chunks. Deleting a file
// that is already gone reports not_found rather than failing, keeping the
// operation idempotent under redelivery.
func (o *Orchestrator) DeleteFile(ctx context.Context, owner, repoName, path string) (models.IndexOutcome, error) {
	repo, err := o.Store.GetOrCreateRepo(ctx, owner, repoName, "")
	if err != nil {
		return models.IndexOutcome{}, fmt.Errorf("get or create repo %s/%s: %w", owner, repoName, err)
	}

	deleted, err := o.Store.DeleteFile(ctx, repo.ID, path)
	if err != nil {
		return models.IndexOutcome{}, fmt.Errorf("delete file %s: %w", path, err)
	}
	if !deleted {
		return models.IndexOutcome{Status: models.StatusNotFound}, nil
	}

	log.Info().Str("path", path).Str("repo", owner+"/"+repoName).Msg("file deleted")
	return models.IndexOutcome{Status: models.StatusDeleted}, nil
}
