package models

import (
	"fmt"
	"time"
)

// Repo is a tracked source repository.
type Repo struct {
	ID            int64     `json:"id"`
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	DefaultBranch string    `json:"default_branch"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// File is one indexed file within a repository. (RepoID, Path) is unique.
type File struct {
	ID        int64     `json:"id"`
	RepoID    int64     `json:"repo_id"`
	Path      string    `json:"path"`
	CommitSHA string    `json:"commit_sha"`
	SHA256    string    `json:"sha256"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chunk is a contiguous, line-bounded slice of a file's text. Line numbers
// are 1-indexed and inclusive.
type Chunk struct {
	ID        int64  `json:"id"`
	RepoID    int64  `json:"repo_id"`
	FileID    int64  `json:"file_id"`
	Path      string `json:"path"`
	CommitSHA string `json:"commit_sha"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
}

// RetrievedChunk is a chunk returned by the retrieval engine together with
// its relevance score and the repository identity needed to build citations.
type RetrievedChunk struct {
	ID        int64   `json:"id"`
	RepoOwner string  `json:"repo_owner"`
	RepoName  string  `json:"repo_name"`
	Path      string  `json:"path"`
	CommitSHA string  `json:"commit_sha"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}

// Locator returns the exact source identifier used as the citation
// verification key: owner/repo/path@sha:start-end.
func (c RetrievedChunk) Locator() string {
	return fmt.Sprintf("%s/%s/%s@%s:%d-%d",
		c.RepoOwner, c.RepoName, c.Path, c.CommitSHA, c.StartLine, c.EndLine)
}

// Confidence is a coarse reliability signal derived from retrieval
// statistics only, never from generation output.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Citation is a verified source reference in a chat answer.
type Citation struct {
	Source    string `json:"source"`
	Relevance string `json:"relevance"`
}

// ChatRequest is an incoming question.
type ChatRequest struct {
	Question string `json:"question"`
}

// ChatResponse is the final composed answer.
type ChatResponse struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence Confidence `json:"confidence"`
}

// Generation is the structured output of one LLM call.
type Generation struct {
	Answer             string     `json:"answer"`
	Citations          []Citation `json:"citations"`
	NeedsClarification bool       `json:"needs_clarification"`
	ClarifyingQuestion string     `json:"clarifying_question"`
}

// IndexStatus classifies the outcome of one ingestion event.
type IndexStatus string

const (
	StatusSkipped   IndexStatus = "skipped"
	StatusUnchanged IndexStatus = "unchanged"
	StatusIndexed   IndexStatus = "indexed"
	StatusDeleted   IndexStatus = "deleted"
	StatusNotFound  IndexStatus = "not_found"
)

// IndexOutcome reports what the ingestion orchestrator did with a file
// event. Skips carry a reason; indexing carries the chunk count.
type IndexOutcome struct {
	Status IndexStatus `json:"status"`
	Reason string      `json:"reason,omitempty"`
	Chunks int         `json:"chunks,omitempty"`
}
