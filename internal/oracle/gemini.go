package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scriptforge/internal/logging"

	"google.golang.org/genai"
)

// GeminiOracle implements Oracle against Google's Gemini API via the
// official genai SDK.
type GeminiOracle struct {
	client *genai.Client
	model  string
}

// DefaultGeminiModel is used when NewGeminiOracle is given an empty model.
const DefaultGeminiModel = "gemini-3-flash-preview"

// NewGeminiOracle creates a Gemini-backed Oracle. apiKey must be non-empty;
// callers that want a graceful ErrUnavailable fallback instead of a
// construction error should use NewOracleOrStub.
func NewGeminiOracle(ctx context.Context, apiKey, model string) (*GeminiOracle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini oracle: API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	logging.Oracle("creating gemini oracle client model=%s", model)
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini oracle: failed to create client: %w", err)
	}

	return &GeminiOracle{client: client, model: model}, nil
}

// Complete sends prompt as a single user turn and returns the model's text.
func (g *GeminiOracle) Complete(ctx context.Context, prompt string) (string, error) {
	return g.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends systemPrompt as the model's system instruction
// and userPrompt as the single user turn.
func (g *GeminiOracle) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	timer := logging.StartTimer(logging.CategoryOracle, "GeminiOracle.Complete")
	defer timer.Stop()

	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}

	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	latency := time.Since(start)
	if err != nil {
		logging.Get(logging.CategoryOracle).Error("GenerateContent failed after %v: %v", latency, err)
		return "", fmt.Errorf("gemini oracle: generate content: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini oracle: empty response")
	}
	logging.OracleDebug("GenerateContent ok in %v (%d chars)", latency, len(text))
	return text, nil
}

// NewOracleOrStub builds a GeminiOracle when apiKey is non-empty, falling
// back to StubOracle otherwise. Construction errors (a reachability or
// credentials problem, not a missing key) are still surfaced so a caller
// with a misconfigured key finds out at startup rather than at first
// refactor attempt.
func NewOracleOrStub(ctx context.Context, apiKey, model string) (Oracle, error) {
	if apiKey == "" {
		return StubOracle{}, nil
	}
	return NewGeminiOracle(ctx, apiKey, model)
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
