package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

// VertexAIClient generates structured answers with Gemini on Vertex AI.
type VertexAIClient struct {
	config *ClientConfig
	client *genai.Client
}

// generationSchema makes Gemini return JSON matching models.Generation, so
// citation parsing never depends on prose formatting.
var generationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"answer": {Type: genai.TypeString},
		"citations": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"source":    {Type: genai.TypeString},
					"relevance": {Type: genai.TypeString},
				},
				Required: []string{"source", "relevance"},
			},
		},
		"needs_clarification": {Type: genai.TypeBoolean},
		"clarifying_question": {Type: genai.TypeString, Nullable: genai.Ptr(true)},
	},
	Required: []string{"answer", "citations", "needs_clarification"},
}

// NewVertexAIClient creates a client for the Gemini API on Vertex AI.
func NewVertexAIClient(ctx context.Context, config *ClientConfig) (*VertexAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if strings.TrimSpace(config.ProjectID) != "" {
		cc.Project = config.ProjectID
	}
	if strings.TrimSpace(config.Location) != "" {
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &VertexAIClient{config: config, client: client}, nil
}

// Generate runs one structured-output exchange. Temperature zero keeps
// citation strings reproducible.
func (c *VertexAIClient) Generate(ctx context.Context, systemPrompt, userContent string) (*models.Generation, error) {
	sys := genai.Text(systemPrompt)
	temp := float32(0.0)
	cfg := genai.GenerateContentConfig{
		Temperature:       &temp,
		SystemInstruction: sys[0],
		ResponseMIMEType:  "application/json",
		ResponseSchema:    generationSchema,
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(userContent), &cfg)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("no generation returned")
	}

	raw := resp.Candidates[0].Content.Parts[0].Text
	var gen models.Generation
	if err := json.Unmarshal([]byte(raw), &gen); err != nil {
		return nil, fmt.Errorf("parse generation output: %w", err)
	}
	return &gen, nil
}
