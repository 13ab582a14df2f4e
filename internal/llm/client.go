package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"google.golang.org/genai"

	"sentinel/internal/config"
)

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Client is the narrow surface the dialogue, judge, email, and ending
// generators talk through. Implementations must be safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, system, prompt string) (string, error)
}

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	cli   *genai.Client
	model string

	// jsonOnly asks the backend for a JSON response body, used by the
	// structured generators (judge, email).
	jsonOnly bool
}

// NewGeminiClient builds a client for the given model. The API key is read
// by the SDK from the environment; config.LLM.APIKey is exported there
// first so yaml-configured keys work too.
func NewGeminiClient(ctx context.Context, cfg *config.Config, model string) (*GeminiClient, error) {
	if cfg.LLM.APIKey != "" && os.Getenv("GEMINI_API_KEY") == "" {
		os.Setenv("GEMINI_API_KEY", cfg.LLM.APIKey)
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("llm: create client: %w", err)
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

// JSONOnly returns a copy of the client that requests JSON output.
func (g *GeminiClient) JSONOnly() *GeminiClient {
	c := *g
	c.jsonOnly = true
	return &c
}

func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, nil, prompt)
}

func (g *GeminiClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	var si *genai.Content
	if system != "" {
		si = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	return g.generate(ctx, si, prompt)
}

func (g *GeminiClient) generate(ctx context.Context, system *genai.Content, prompt string) (string, error) {
	gc := &genai.GenerateContentConfig{SystemInstruction: system}
	if g.jsonOnly {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		gc,
	)
	if err != nil {
		return "", fmt.Errorf("llm: generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
