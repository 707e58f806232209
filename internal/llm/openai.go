// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/pdiddy/roundtable/pkg/types"
)

// OpenAIBackend implements Generator and StructuredGenerator against
// the OpenAI Responses API.
type OpenAIBackend struct {
	client     openai.Client
	model      string
	maxTokens  int
	maxRetries int
}

// NewOpenAIBackend builds a backend from config. Defaults: 3 retries,
// 2000 output tokens.
func NewOpenAIBackend(cfg types.LLMConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai backend: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai backend: model is required")
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	return &OpenAIBackend{
		client:     openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:      cfg.Model,
		maxTokens:  maxTokens,
		maxRetries: maxRetries,
	}, nil
}

// Generate sends the prompt and returns the model's text output.
func (b *OpenAIBackend) Generate(ctx context.Context, prompt string) (string, error) {
	params := responses.ResponseNewParams{
		Model:           b.model,
		MaxOutputTokens: openai.Int(int64(b.maxTokens)),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser),
			},
		},
	}

	resp, err := callWithRetry(ctx, b.maxRetries, func(ctx context.Context) (*responses.Response, error) {
		return b.client.Responses.New(ctx, params)
	})
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	return resp.OutputText(), nil
}

// GenerateJSON sends the prompt with a strict JSON schema and
// unmarshals the response into out.
func (b *OpenAIBackend) GenerateJSON(ctx context.Context, name, prompt string, schema map[string]any, out any) error {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:   name,
			Schema: schema,
			Strict: openai.Bool(true),
			Type:   "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           b.model,
		MaxOutputTokens: openai.Int(int64(b.maxTokens)),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := callWithRetry(ctx, b.maxRetries, func(ctx context.Context) (*responses.Response, error) {
		return b.client.Responses.New(ctx, params)
	})
	if err != nil {
		return fmt.Errorf("openai generate %s: %w", name, err)
	}

	if err := DecodeModelJSON(resp.OutputText(), out); err != nil {
		return fmt.Errorf("decoding %s response: %w", name, err)
	}
	return nil
}
