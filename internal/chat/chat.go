// Package chat answers questions against the knowledge base: retrieve,
// build context, generate, verify citations, compose. The chat surface
// never returns a raw failure — generation and retrieval faults degrade to
// well-formed answers with low confidence.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dweinbeck/chatbot-assistant/internal/ai"
	"github.com/dweinbeck/chatbot-assistant/internal/metrics"
	"github.com/dweinbeck/chatbot-assistant/internal/retrieval"
	"github.com/dweinbeck/chatbot-assistant/internal/store"
	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

// Fixed responses for the short-circuit and failure paths.
const (
	emptyKnowledgeBaseAnswer = "The knowledge base is empty. Index a repository first, then ask your question again."
	noResultsAnswer          = "I don't know. Could you provide more details about what you're looking for?"
	generationFailedAnswer   = "I'm sorry, I encountered an error processing your question. Please try again."
)

// DefaultGenerationTimeout bounds the single generation exchange; the LLM
// call dominates request latency and holds no exclusive resource.
const DefaultGenerationTimeout = 60 * time.Second

// Service orchestrates one stateless question/answer exchange.
type Service struct {
	Retriever *retrieval.Engine
	Client    ai.Client
	Store     store.KnowledgeStore

	// GenerationTimeout overrides DefaultGenerationTimeout when positive.
	GenerationTimeout time.Duration
}

// NewService creates a chat service over the given retrieval engine,
// generation client and store.
func NewService(r *retrieval.Engine, c ai.Client, s store.KnowledgeStore) *Service {
	return &Service{Retriever: r, Client: c, Store: s}
}

// BuildContext serializes retrieved chunks into the prompt representation,
// highest relevance first. Each block header carries the chunk's full
// locator so the model can cite verifiably.
func BuildContext(chunks []models.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("--- CHUNK: %s ---\n%s", c.Locator(), c.Content))
	}
	return strings.Join(parts, "\n\n")
}

// VerifyCitations retains only claimed citations whose locator exactly
// matches a retrieved chunk. Hallucinated citations are expected and are
// dropped silently.
func VerifyCitations(claimed []models.Citation, chunks []models.RetrievedChunk) []models.Citation {
	valid := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		valid[c.Locator()] = struct{}{}
	}

	verified := make([]models.Citation, 0, len(claimed))
	for _, cit := range claimed {
		if _, ok := valid[cit.Source]; ok {
			verified = append(verified, cit)
		}
	}
	return verified
}

// Answer runs the full pipeline for one question.
//
// Short-circuits: an empty knowledge base and an empty retrieval both
// return fixed guidance without invoking generation. After verification,
// an empty citation list or a needs-clarification flag forces confidence
// to low; the downgrade is monotonic.
func (s *Service) Answer(ctx context.Context, question string) (models.ChatResponse, error) {
	metrics.ChatRequests.Inc()

	total, err := s.Store.CountChunks(ctx)
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("count chunks: %w", err)
	}
	if total == 0 {
		return models.ChatResponse{
			Answer:     emptyKnowledgeBaseAnswer,
			Citations:  []models.Citation{},
			Confidence: models.ConfidenceLow,
		}, nil
	}

	chunks, err := s.Retriever.Retrieve(ctx, question)
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("retrieve: %w", err)
	}
	if len(chunks) == 0 {
		return models.ChatResponse{
			Answer:     noResultsAnswer,
			Citations:  []models.Citation{},
			Confidence: models.ConfidenceLow,
		}, nil
	}

	confidence := retrieval.Confidence(chunks)
	contextText := BuildContext(chunks)
	userContent := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)

	timeout := s.GenerationTimeout
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gen, err := s.Client.Generate(genCtx, ai.SystemPrompt, userContent)
	if err != nil {
		metrics.GenerationFailures.Inc()
		log.Error().Err(err).Msg("generation failed")
		return models.ChatResponse{
			Answer:     generationFailedAnswer,
			Citations:  []models.Citation{},
			Confidence: models.ConfidenceLow,
		}, nil
	}

	verified := VerifyCitations(gen.Citations, chunks)

	if gen.NeedsClarification || len(verified) == 0 {
		confidence = models.ConfidenceLow
	}

	return models.ChatResponse{
		Answer:     gen.Answer,
		Citations:  verified,
		Confidence: confidence,
	}, nil
}
