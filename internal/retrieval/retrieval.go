// Package retrieval executes the tiered search strategy over the knowledge
// base and derives the confidence signal from retrieval statistics.
//
// Tier 1 is conjunctive full-text search (every significant term must
// match). Tier 2 re-runs with disjunctive semantics only when tier 1 came
// back empty. Tier 3 adds path trigram similarity when the combined count
// is still below the minimum. Gating is purely count-based.
package retrieval

import (
	"context"
	"strings"

	"github.com/dweinbeck/chatbot-assistant/internal/metrics"
	"github.com/dweinbeck/chatbot-assistant/internal/store"
	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

const (
	// MaxResults caps the combined result set.
	MaxResults = 12
	// MinTextResults triggers the similarity fallback when the text tiers
	// produced fewer results than this.
	MinTextResults = 3
	// SimilarityThreshold excludes low-signal trigram matches.
	SimilarityThreshold = 0.15
	// HighScoreThreshold is the top-score bar for high confidence.
	HighScoreThreshold = 0.1
)

// Engine runs tiered retrieval against a knowledge store.
type Engine struct {
	Store store.KnowledgeStore
}

// NewEngine creates a retrieval engine over the given store.
func NewEngine(s store.KnowledgeStore) *Engine {
	return &Engine{Store: s}
}

// Retrieve returns up to MaxResults chunks ranked by score descending,
// deduplicated by chunk identity across tiers (keeping the highest score).
func (e *Engine) Retrieve(ctx context.Context, question string) ([]models.RetrievedChunk, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil
	}

	metrics.RetrievalTier.WithLabelValues("exact_and").Inc()
	results, err := e.Store.SearchText(ctx, question, MaxResults, store.MatchAll)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		metrics.RetrievalTier.WithLabelValues("exact_or").Inc()
		results, err = e.Store.SearchText(ctx, question, MaxResults, store.MatchAny)
		if err != nil {
			return nil, err
		}
	}

	if len(results) < MinTextResults {
		metrics.RetrievalTier.WithLabelValues("similarity").Inc()
		similar, err := e.Store.SearchPathSimilarity(ctx, question, MaxResults, SimilarityThreshold)
		if err != nil {
			return nil, err
		}
		results = merge(results, similar)
	}

	sortByScore(results)
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return results, nil
}

// merge appends extras not already present by chunk id; a chunk seen in
// both sets keeps whichever score is higher.
func merge(base, extra []models.RetrievedChunk) []models.RetrievedChunk {
	index := make(map[int64]int, len(base))
	for i, c := range base {
		index[c.ID] = i
	}
	for _, c := range extra {
		if i, ok := index[c.ID]; ok {
			if c.Score > base[i].Score {
				base[i].Score = c.Score
			}
			continue
		}
		index[c.ID] = len(base)
		base = append(base, c)
	}
	return base
}

func sortByScore(chunks []models.RetrievedChunk) {
	// Insertion sort keeps ties stable by original (tier) order.
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunks[j].Score > chunks[j-1].Score; j-- {
			chunks[j], chunks[j-1] = chunks[j-1], chunks[j]
		}
	}
}

// Confidence derives the provisional confidence level from retrieval
// signals only: result count and top score. Downstream verification may
// downgrade it but never upgrades it.
func Confidence(chunks []models.RetrievedChunk) models.Confidence {
	if len(chunks) == 0 {
		return models.ConfidenceLow
	}

	enough := len(chunks) >= MinTextResults
	strong := chunks[0].Score >= HighScoreThreshold

	switch {
	case enough && strong:
		return models.ConfidenceHigh
	case enough || strong:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
