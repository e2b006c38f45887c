package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dweinbeck/chatbot-assistant/internal/chunker"
	"github.com/dweinbeck/chatbot-assistant/internal/store"
	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

// MockStore implements store.KnowledgeStore with overridable search
// behavior; unused methods return zero values.
type MockStore struct {
	SearchTextFunc           func(ctx context.Context, query string, limit int, mode store.TextSearchMode) ([]models.RetrievedChunk, error)
	SearchPathSimilarityFunc func(ctx context.Context, query string, limit int, threshold float64) ([]models.RetrievedChunk, error)

	TextCalls       []store.TextSearchMode
	SimilarityCalls int
}

func (m *MockStore) SearchText(ctx context.Context, query string, limit int, mode store.TextSearchMode) ([]models.RetrievedChunk, error) {
	m.TextCalls = append(m.TextCalls, mode)
	if m.SearchTextFunc != nil {
		return m.SearchTextFunc(ctx, query, limit, mode)
	}
	return nil, nil
}

func (m *MockStore) SearchPathSimilarity(ctx context.Context, query string, limit int, threshold float64) ([]models.RetrievedChunk, error) {
	m.SimilarityCalls++
	if m.SearchPathSimilarityFunc != nil {
		return m.SearchPathSimilarityFunc(ctx, query, limit, threshold)
	}
	return nil, nil
}

func (m *MockStore) GetOrCreateRepo(context.Context, string, string, string) (models.Repo, error) {
	return models.Repo{}, nil
}
func (m *MockStore) GetFile(context.Context, int64, string) (models.File, bool, error) {
	return models.File{}, false, nil
}
func (m *MockStore) TouchFileCommit(context.Context, int64, string) error { return nil }
func (m *MockStore) ReplaceFileChunks(context.Context, int64, string, string, string, []chunker.Chunk) (models.File, error) {
	return models.File{}, nil
}
func (m *MockStore) DeleteFile(context.Context, int64, string) (bool, error) { return false, nil }
func (m *MockStore) CountChunks(context.Context) (int64, error)             { return 0, nil }
func (m *MockStore) ListRepositories(context.Context) ([]string, error)     { return nil, nil }

func chunksN(n int, score float64) []models.RetrievedChunk {
	out := make([]models.RetrievedChunk, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.RetrievedChunk{ID: int64(i + 1), Score: score})
	}
	return out
}

func TestRetrieveStopsAfterFirstTier(t *testing.T) {
	m := &MockStore{
		SearchTextFunc: func(_ context.Context, _ string, _ int, mode store.TextSearchMode) ([]models.RetrievedChunk, error) {
			if mode == store.MatchAll {
				return chunksN(4, 0.5), nil
			}
			t.Fatal("disjunctive tier ran despite conjunctive results")
			return nil, nil
		},
	}

	res, err := NewEngine(m).Retrieve(context.Background(), "worker pool size")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res) != 4 {
		t.Errorf("got %d results, want 4", len(res))
	}
	if len(m.TextCalls) != 1 || m.TextCalls[0] != store.MatchAll {
		t.Errorf("text calls = %v, want a single conjunctive pass", m.TextCalls)
	}
	if m.SimilarityCalls != 0 {
		t.Errorf("similarity tier ran %d times, want 0", m.SimilarityCalls)
	}
}

func TestRetrieveFallsBackToDisjunctive(t *testing.T) {
	m := &MockStore{
		SearchTextFunc: func(_ context.Context, _ string, _ int, mode store.TextSearchMode) ([]models.RetrievedChunk, error) {
			if mode == store.MatchAll {
				return nil, nil
			}
			return chunksN(5, 0.4), nil
		},
	}

	res, err := NewEngine(m).Retrieve(context.Background(), "worker pool size")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res) != 5 {
		t.Errorf("got %d results, want 5", len(res))
	}
	want := []store.TextSearchMode{store.MatchAll, store.MatchAny}
	if len(m.TextCalls) != 2 || m.TextCalls[0] != want[0] || m.TextCalls[1] != want[1] {
		t.Errorf("text calls = %v, want %v", m.TextCalls, want)
	}
	if m.SimilarityCalls != 0 {
		t.Errorf("similarity tier ran with %d text results, want skipped", len(res))
	}
}

func TestRetrieveSimilarityFallbackOnThinResults(t *testing.T) {
	m := &MockStore{
		SearchTextFunc: func(_ context.Context, _ string, _ int, mode store.TextSearchMode) ([]models.RetrievedChunk, error) {
			if mode == store.MatchAll {
				return chunksN(2, 0.5), nil
			}
			t.Fatal("disjunctive tier must not run when tier 1 is non-empty")
			return nil, nil
		},
		SearchPathSimilarityFunc: func(_ context.Context, _ string, _ int, threshold float64) ([]models.RetrievedChunk, error) {
			if threshold != SimilarityThreshold {
				t.Errorf("threshold = %f, want %f", threshold, SimilarityThreshold)
			}
			return []models.RetrievedChunk{
				{ID: 10, Score: 0.2},
				{ID: 2, Score: 0.9}, // duplicate of a text result, lower rank wins by score
			}, nil
		},
	}

	res, err := NewEngine(m).Retrieve(context.Background(), "chunker")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if m.SimilarityCalls != 1 {
		t.Fatalf("similarity tier ran %d times, want 1", m.SimilarityCalls)
	}
	if len(res) != 3 {
		t.Fatalf("got %d results, want 3 after dedup", len(res))
	}
	// The duplicated chunk keeps its highest score and sorts first.
	if res[0].ID != 2 || res[0].Score != 0.9 {
		t.Errorf("top result = %+v, want chunk 2 with score 0.9", res[0])
	}
}

func TestRetrieveCapsResults(t *testing.T) {
	m := &MockStore{
		SearchTextFunc: func(_ context.Context, _ string, limit int, _ store.TextSearchMode) ([]models.RetrievedChunk, error) {
			if limit != MaxResults {
				t.Errorf("limit = %d, want %d", limit, MaxResults)
			}
			return chunksN(2, 0.5), nil
		},
		SearchPathSimilarityFunc: func(_ context.Context, _ string, _ int, _ float64) ([]models.RetrievedChunk, error) {
			out := make([]models.RetrievedChunk, 0, 20)
			for i := 0; i < 20; i++ {
				out = append(out, models.RetrievedChunk{ID: int64(100 + i), Score: 0.3})
			}
			return out, nil
		},
	}

	res, err := NewEngine(m).Retrieve(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res) != MaxResults {
		t.Errorf("got %d results, want capped at %d", len(res), MaxResults)
	}
}

func TestRetrieveEmptyQuestion(t *testing.T) {
	m := &MockStore{}
	res, err := NewEngine(m).Retrieve(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res != nil {
		t.Errorf("blank question returned %d results, want none", len(res))
	}
	if len(m.TextCalls) != 0 {
		t.Errorf("blank question hit the store %d times", len(m.TextCalls))
	}
}

func TestRetrievePropagatesStoreErrors(t *testing.T) {
	wantErr := errors.New("connection refused")
	m := &MockStore{
		SearchTextFunc: func(context.Context, string, int, store.TextSearchMode) ([]models.RetrievedChunk, error) {
			return nil, wantErr
		},
	}

	_, err := NewEngine(m).Retrieve(context.Background(), "anything")
	if !errors.Is(err, wantErr) {
		t.Errorf("Retrieve error = %v, want store error", err)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		count int
		top   float64
		want  models.Confidence
	}{
		{0, 0, models.ConfidenceLow},
		{5, 0.3, models.ConfidenceHigh},
		{3, HighScoreThreshold, models.ConfidenceHigh},
		{1, 0.3, models.ConfidenceMedium},
		{2, 0.05, models.ConfidenceLow},
		{4, 0.05, models.ConfidenceMedium},
		{1, 0.05, models.ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("count=%d top=%.2f", tt.count, tt.top), func(t *testing.T) {
			if got := Confidence(chunksN(tt.count, tt.top)); got != tt.want {
				t.Errorf("Confidence = %q, want %q", got, tt.want)
			}
		})
	}
}
