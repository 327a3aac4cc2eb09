package nlu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
)

// DefaultGeminiModel is used when GeminiConfig.Model is empty.
const DefaultGeminiModel = "gemini-2.5-flash-lite"

// GeminiConfig configures a Gemini classification driver.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Intents []string
}

// Gemini classifies text with Gemini function calling in ANY mode.
type Gemini struct {
	client  *genai.Client
	model   string
	intents []string
	config  *genai.GenerateContentConfig
}

// NewGemini creates a Gemini driver. An API key and at least one intent are
// required.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, domerrors.NewValidationError("gemini", "api key is required")
	}
	if len(cfg.Intents) == 0 {
		return nil, domerrors.NewValidationError("gemini", "at least one intent is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	intents := intentList(cfg.Intents)
	return &Gemini{
		client:  client,
		model:   model,
		intents: intents,
		config:  generateConfig(intents),
	}, nil
}

// Name implements Driver.
func (g *Gemini) Name() string { return DriverGemini }

func generateConfig(intents []string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(intents), genai.RoleUser),
		Tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        classifyFunctionName,
				Description: classifyFunctionDesc,
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						argIntent: {
							Type:        genai.TypeString,
							Enum:        intents,
							Description: "The best matching intent",
						},
						argScore: {
							Type:        genai.TypeNumber,
							Description: "Confidence between 0 and 1",
						},
					},
					Required: []string{argIntent, argScore},
				},
			}},
		}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		},
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: 64,
	}
}

// Query implements Driver.
func (g *Gemini) Query(ctx context.Context, text string) (*Result, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), g.config)
	if err != nil {
		slog.WarnContext(ctx, "Intent classification call failed",
			"driver", DriverGemini,
			"model", g.model,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return nil, fmt.Errorf("generate content failed: %w", err)
	}
	return parseGenerateResponse(text, g.intents, resp)
}

func parseGenerateResponse(query string, intents []string, resp *genai.GenerateContentResponse) (*Result, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("empty response from model")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return nil, errors.New("no content in response")
	}
	for _, part := range candidate.Content.Parts {
		if part == nil || part.FunctionCall == nil || part.FunctionCall.Name != classifyFunctionName {
			continue
		}
		return classification(query, intents, part.FunctionCall.Args)
	}
	return nil, errors.New("no classify_intent call in response")
}
