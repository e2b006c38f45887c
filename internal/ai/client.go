// Package ai abstracts the generation service behind a single interface
// with provider-switched implementations: Gemini on Vertex AI, OpenAI, and
// a deterministic stub for tests and local development.
package ai

import (
	"context"
	"errors"

	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

// SystemPrompt constrains the model to the provided context and to the
// exact citation locator format the verifier checks against.
const SystemPrompt = `You are a code knowledge assistant. You answer questions about code repositories using ONLY the provided code context.

RULES:
1. ONLY use information from the provided code chunks to answer. Never invent code or facts.
2. For each claim in your answer, cite the source using the exact format from the chunk header: owner/repo/path@sha:start_line-end_line
3. If the provided context does not contain enough information to answer the question, respond with "I don't know" and ask ONE clarifying question.
4. Keep answers concise and technical.
5. Use the citation format exactly as shown in each chunk's metadata header.

Each code chunk is provided with a header line:
--- CHUNK: {owner}/{repo}/{path}@{sha}:{start_line}-{end_line} ---
`

// Client generates a structured answer given the system prompt and the
// assembled context+question. A single synchronous exchange; the caller
// governs cancellation through ctx.
type Client interface {
	Generate(ctx context.Context, systemPrompt, userContent string) (*models.Generation, error)
}

// Provider is the enumeration of supported generation backends.
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for generation clients.
type ClientConfig struct {
	Provider  Provider
	APIKey    string
	Model     string
	ProjectID string
	Location  string
}

// NewClient creates a generation client for the configured provider.
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI, "google":
		return NewVertexAIClient(ctx, config)
	case ProviderStub:
		return NewStubClient(), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient returns a canned generation without network access. The
// Response field can be swapped by tests; the default answers with no
// citations.
type StubClient struct {
	Response models.Generation
	Err      error
	Calls    []string
}

// NewStubClient creates a StubClient with a neutral canned response.
func NewStubClient() *StubClient {
	return &StubClient{
		Response: models.Generation{
			Answer:    "stub answer",
			Citations: []models.Citation{},
		},
	}
}

func (s *StubClient) Generate(_ context.Context, _, userContent string) (*models.Generation, error) {
	s.Calls = append(s.Calls, userContent)
	if s.Err != nil {
		return nil, s.Err
	}
	resp := s.Response
	return &resp, nil
}
