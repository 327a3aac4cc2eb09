package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
)

// DefaultLLMModel is used when LLMConfig.Model is empty.
const DefaultLLMModel = "gpt-4o-mini"

// LLMConfig configures an OpenAI-compatible classification driver.
type LLMConfig struct {
	APIKey  string
	BaseURL string // empty means the OpenAI API
	Model   string
	// Intents is the closed list the model may choose from.
	Intents    []string
	HTTPClient *http.Client
}

// LLM classifies text with an OpenAI-compatible chat completion endpoint
// using forced function calling.
type LLM struct {
	client  openai.Client
	model   string
	intents []string
	tools   []openai.ChatCompletionToolUnionParam
	prompt  string
}

// NewLLM creates an LLM driver. An API key and at least one intent are required.
func NewLLM(cfg LLMConfig) (*LLM, error) {
	if cfg.APIKey == "" {
		return nil, domerrors.NewValidationError("llm", "api key is required")
	}
	if len(cfg.Intents) == 0 {
		return nil, domerrors.NewValidationError("llm", "at least one intent is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultLLMModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are left to the platform redelivering the update
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	intents := intentList(cfg.Intents)
	return &LLM{
		client:  openai.NewClient(opts...),
		model:   model,
		intents: intents,
		tools:   []openai.ChatCompletionToolUnionParam{classifyTool(intents)},
		prompt:  systemPrompt(intents),
	}, nil
}

// Name implements Driver.
func (l *LLM) Name() string { return DriverLLM }

func classifyTool(intents []string) openai.ChatCompletionToolUnionParam {
	return openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        classifyFunctionName,
		Description: openai.String(classifyFunctionDesc),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				argIntent: map[string]any{
					"type":        "string",
					"enum":        intents,
					"description": "The best matching intent",
				},
				argScore: map[string]any{
					"type":        "number",
					"description": "Confidence between 0 and 1",
				},
			},
			"required": []string{argIntent, argScore},
		},
	})
}

// Query implements Driver.
func (l *LLM) Query(ctx context.Context, text string) (*Result, error) {
	params := openai.ChatCompletionNewParams{
		Model: l.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(l.prompt),
			openai.UserMessage(text),
		},
		Tools: l.tools,
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(openai.ChatCompletionToolChoiceOptionAutoRequired)),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(64),
	}

	start := time.Now()
	resp, err := l.client.Chat.Completions.New(ctx, params)
	if err != nil {
		slog.WarnContext(ctx, "Intent classification call failed",
			"driver", DriverLLM,
			"model", l.model,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	return l.parseCompletion(text, resp)
}

func (l *LLM) parseCompletion(query string, resp *openai.ChatCompletion) (*Result, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("empty response from model")
	}
	for _, tc := range resp.Choices[0].Message.ToolCalls {
		if tc.Type != "function" || tc.Function.Name != classifyFunctionName {
			continue
		}
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to parse function arguments: %w", err)
		}
		return classification(query, l.intents, args)
	}
	return nil, errors.New("no classify_intent call in response")
}
