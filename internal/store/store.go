// Package store owns persistence for the knowledge base: repositories,
// files and chunks, plus the text-search capabilities the retrieval engine
// is built on. The Postgres adapter is the production implementation; a
// deterministic in-memory adapter backs tests.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dweinbeck/chatbot-assistant/internal/chunker"
	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

// TextSearchMode selects the term-combination semantics for ranked
// full-text search.
type TextSearchMode int

const (
	// MatchAll requires every significant query term to match.
	MatchAll TextSearchMode = iota
	// MatchAny accepts any significant query term.
	MatchAny
)

// KnowledgeStore is the storage capability consumed by the ingestion and
// retrieval pipelines.
type KnowledgeStore interface {
	// GetOrCreateRepo returns the repository row for (owner, name),
	// creating it first if needed so file and chunk rows always have a
	// valid parent.
	GetOrCreateRepo(ctx context.Context, owner, name, defaultBranch string) (models.Repo, error)

	// GetFile returns the current file row for (repoID, path).
	GetFile(ctx context.Context, repoID int64, path string) (models.File, bool, error)

	// TouchFileCommit updates only the commit reference of a file whose
	// content is unchanged.
	TouchFileCommit(ctx context.Context, fileID int64, commitSHA string) error

	// ReplaceFileChunks upserts the file row and replaces its chunk set
	// in full, as a single transaction: either the new set is visible or
	// the old one is.
	ReplaceFileChunks(ctx context.Context, repoID int64, path, commitSHA, sha256 string, chunks []chunker.Chunk) (models.File, error)

	// DeleteFile removes the file row for (repoID, path); chunk removal
	// cascades. Returns false when no such file exists.
	DeleteFile(ctx context.Context, repoID int64, path string) (bool, error)

	// SearchText runs ranked full-text search over chunk content.
	SearchText(ctx context.Context, query string, limit int, mode TextSearchMode) ([]models.RetrievedChunk, error)

	// SearchPathSimilarity runs trigram similarity over file paths,
	// returning chunks of files whose path similarity exceeds threshold.
	SearchPathSimilarity(ctx context.Context, query string, limit int, threshold float64) ([]models.RetrievedChunk, error)

	// CountChunks reports the total number of chunks in the knowledge base.
	CountChunks(ctx context.Context) (int64, error)

	// ListRepositories returns owner/name identifiers of all tracked repos.
	ListRepositories(ctx context.Context) ([]string, error)
}

// ErrInvalidChunkSet rejects chunk sets that would corrupt retrieval:
// inverted ranges, out-of-order chunks, or overlapping line spans.
var ErrInvalidChunkSet = errors.New("store: invalid chunk set")

// ValidateChunks enforces the chunk-set invariants before persistence:
// each range has start <= end (1-indexed), and successive chunks are in
// ascending order without overlap.
func ValidateChunks(chunks []chunker.Chunk) error {
	prevEnd := 0
	for i, c := range chunks {
		if c.StartLine < 1 || c.EndLine < c.StartLine {
			return fmt.Errorf("%w: chunk %d has range %d-%d", ErrInvalidChunkSet, i, c.StartLine, c.EndLine)
		}
		if c.StartLine <= prevEnd {
			return fmt.Errorf("%w: chunk %d overlaps previous (starts at %d, previous ends at %d)", ErrInvalidChunkSet, i, c.StartLine, prevEnd)
		}
		prevEnd = c.EndLine
	}
	return nil
}
