package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dweinbeck/chatbot-assistant/internal/chunker"
	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

// Memory is a deterministic in-memory KnowledgeStore used by tests and
// local development. Text search approximates the Postgres ranking: scores
// combine term coverage and occurrence density, and the path fallback uses
// the same trigram-set similarity pg_trgm computes. Same data plus same
// query always produce the same ranked order.
type Memory struct {
	mu sync.Mutex

	nextRepoID  int64
	nextFileID  int64
	nextChunkID int64

	repos  map[int64]models.Repo
	byName map[string]int64 // "owner/name" -> repo id
	files  map[int64]models.File
	chunks map[int64]models.Chunk
}

var _ KnowledgeStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		repos:  make(map[int64]models.Repo),
		byName: make(map[string]int64),
		files:  make(map[int64]models.File),
		chunks: make(map[int64]models.Chunk),
	}
}

func (m *Memory) GetOrCreateRepo(_ context.Context, owner, name, defaultBranch string) (models.Repo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := owner + "/" + name
	if id, ok := m.byName[key]; ok {
		return m.repos[id], nil
	}
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	m.nextRepoID++
	r := models.Repo{
		ID:            m.nextRepoID,
		Owner:         owner,
		Name:          name,
		DefaultBranch: defaultBranch,
		UpdatedAt:     time.Now(),
	}
	m.repos[r.ID] = r
	m.byName[key] = r.ID
	return r, nil
}

func (m *Memory) GetFile(_ context.Context, repoID int64, path string) (models.File, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.files {
		if f.RepoID == repoID && f.Path == path {
			return f, true, nil
		}
	}
	return models.File{}, false, nil
}

func (m *Memory) TouchFileCommit(_ context.Context, fileID int64, commitSHA string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[fileID]
	if !ok {
		return nil
	}
	// Only the file row moves; chunk rows keep the commit they were
	// chunked at, matching the Postgres adapter.
	f.CommitSHA = commitSHA
	f.UpdatedAt = time.Now()
	m.files[fileID] = f
	return nil
}

func (m *Memory) ReplaceFileChunks(_ context.Context, repoID int64, path, commitSHA, sha256 string, chunks []chunker.Chunk) (models.File, error) {
	if err := ValidateChunks(chunks); err != nil {
		return models.File{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var file models.File
	found := false
	for _, f := range m.files {
		if f.RepoID == repoID && f.Path == path {
			file = f
			found = true
			break
		}
	}
	if found {
		file.CommitSHA = commitSHA
		file.SHA256 = sha256
		file.UpdatedAt = time.Now()
	} else {
		m.nextFileID++
		file = models.File{
			ID:        m.nextFileID,
			RepoID:    repoID,
			Path:      path,
			CommitSHA: commitSHA,
			SHA256:    sha256,
			UpdatedAt: time.Now(),
		}
	}
	m.files[file.ID] = file

	for id, c := range m.chunks {
		if c.FileID == file.ID {
			delete(m.chunks, id)
		}
	}
	for _, c := range chunks {
		m.nextChunkID++
		m.chunks[m.nextChunkID] = models.Chunk{
			ID:        m.nextChunkID,
			RepoID:    repoID,
			FileID:    file.ID,
			Path:      path,
			CommitSHA: commitSHA,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Content:   c.Content,
		}
	}
	return file, nil
}

func (m *Memory) DeleteFile(_ context.Context, repoID int64, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, f := range m.files {
		if f.RepoID == repoID && f.Path == path {
			delete(m.files, id)
			for cid, c := range m.chunks {
				if c.FileID == id {
					delete(m.chunks, cid)
				}
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) SearchText(_ context.Context, query string, limit int, mode TextSearchMode) ([]models.RetrievedChunk, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.RetrievedChunk
	for _, c := range m.chunks {
		score, ok := scoreChunk(c.Content, terms, mode)
		if !ok {
			continue
		}
		out = append(out, m.retrievedLocked(c, score))
	}
	sortRetrieved(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SearchPathSimilarity(_ context.Context, query string, limit int, threshold float64) ([]models.RetrievedChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qgrams := trigrams(query)
	var out []models.RetrievedChunk
	for _, c := range m.chunks {
		f, ok := m.files[c.FileID]
		if !ok {
			continue
		}
		sim := trigramSimilarity(qgrams, trigrams(f.Path))
		if sim > threshold {
			out = append(out, m.retrievedLocked(c, sim))
		}
	}
	sortRetrieved(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CountChunks(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.chunks)), nil
}

func (m *Memory) ListRepositories(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repos := make([]string, 0, len(m.byName))
	for key := range m.byName {
		repos = append(repos, key)
	}
	sort.Strings(repos)
	return repos, nil
}

func (m *Memory) retrievedLocked(c models.Chunk, score float64) models.RetrievedChunk {
	r := m.repos[c.RepoID]
	return models.RetrievedChunk{
		ID:        c.ID,
		RepoOwner: r.Owner,
		RepoName:  r.Name,
		Path:      c.Path,
		CommitSHA: c.CommitSHA,
		StartLine: c.StartLine,
		EndLine:   c.EndLine,
		Content:   c.Content,
		Score:     score,
	}
}

// sortRetrieved orders by score descending with chunk id as tiebreaker so
// results are stable across runs.
func sortRetrieved(out []models.RetrievedChunk) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
}

// A minimal stopword set mirroring what the Postgres english configuration
// strips from queries.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "do": {}, "does": {}, "for": {}, "from": {}, "how": {},
	"in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "that": {},
	"the": {}, "this": {}, "to": {}, "what": {}, "where": {}, "which": {},
	"with": {},
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	})
	var out []string
	seen := make(map[string]struct{})
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// scoreChunk reports whether the chunk matches the query terms under the
// given mode, and a score combining coverage (distinct terms present) with
// occurrence density, echoing the shape of ts_rank_cd.
func scoreChunk(content string, terms []string, mode TextSearchMode) (float64, bool) {
	tokens := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	})
	if len(tokens) == 0 {
		return 0, false
	}

	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}

	matched := 0
	occurrences := 0
	for _, term := range terms {
		if n := counts[term]; n > 0 {
			matched++
			occurrences += n
		}
	}

	switch mode {
	case MatchAll:
		if matched != len(terms) {
			return 0, false
		}
	case MatchAny:
		if matched == 0 {
			return 0, false
		}
	}

	coverage := float64(matched) / float64(len(terms))
	density := float64(occurrences) / float64(len(tokens))
	return 0.1*coverage + density, true
}

// trigrams extracts the pg_trgm-style trigram set: lowercase words padded
// with two leading and one trailing space.
func trigrams(s string) map[string]struct{} {
	out := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, w := range words {
		padded := "  " + w + " "
		for i := 0; i+3 <= len(padded); i++ {
			out[padded[i:i+3]] = struct{}{}
		}
	}
	return out
}

func trigramSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for g := range a {
		if _, ok := b[g]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
