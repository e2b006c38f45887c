package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

// OpenAIClient generates structured answers through the OpenAI chat
// completions API in JSON mode.
type OpenAIClient struct {
	config *ClientConfig
	client *openai.Client
}

// NewOpenAIClient creates an OpenAI-backed generation client.
func NewOpenAIClient(config *ClientConfig) *OpenAIClient {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	return &OpenAIClient{
		config: config,
		client: openai.NewClient(config.APIKey),
	}
}

// NewOpenAIClientWithBaseURL is used by tests to point the client at a
// local HTTP server.
func NewOpenAIClientWithBaseURL(config *ClientConfig, baseURL string) *OpenAIClient {
	c := NewOpenAIClient(config)
	cc := openai.DefaultConfig(config.APIKey)
	cc.BaseURL = baseURL
	c.client = openai.NewClientWithConfig(cc)
	return c
}

func (c *OpenAIClient) Generate(ctx context.Context, systemPrompt, userContent string) (*models.Generation, error) {
	if c.config.APIKey == "" {
		return nil, errors.New("openai api key unset")
	}

	// JSON mode needs the schema spelled out in the prompt; the response
	// format option only guarantees well-formed JSON.
	sys := systemPrompt + `
Respond with a JSON object: {"answer": string, "citations": [{"source": string, "relevance": string}], "needs_clarification": boolean, "clarifying_question": string or null}`

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: sys},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
		// The request struct tags Temperature omitempty, so a literal 0
		// would be dropped and the API would fall back to its default.
		// The smallest nonzero float is the library's way to send an
		// effective zero.
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no generation returned")
	}

	var gen models.Generation
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &gen); err != nil {
		return nil, fmt.Errorf("parse generation output: %w", err)
	}
	return &gen, nil
}
