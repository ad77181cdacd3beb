package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"diagflow/internal/workflow"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiGenerator implements Generator against the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// Generate renders the snapshot with the role framing and calls the
// model. No session identifiers are sent; the collaborator is
// stateless and sees only what the snapshot carries.
func (g *GeminiGenerator) Generate(ctx context.Context, role Role, snap workflow.Context) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(renderContext(role, snap), genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(role), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.4),
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty completion for role %s", role)
	}
	return text, nil
}

// Close releases the client. The genai client holds no resources that
// need explicit release, so this is a no-op.
func (g *GeminiGenerator) Close() error {
	return nil
}

var _ Generator = (*GeminiGenerator)(nil)
