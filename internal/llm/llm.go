// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm wraps the text-generation capability behind a small
// contract. The discourse engine only requires that outputs can be
// parsed for fixed-format decisions (prefix-labelled actions, JSON
// documents); everything else is treated as unstructured text.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Generator is the opaque text-generation capability.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// StructuredGenerator produces schema-constrained JSON and unmarshals
// it into out. Implementations guarantee the response conforms to the
// supplied JSON schema or return an error.
type StructuredGenerator interface {
	Generator
	GenerateJSON(ctx context.Context, name, prompt string, schema map[string]any, out any) error
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// callWithRetry invokes fn with exponential backoff on failure.
func callWithRetry[T any](ctx context.Context, maxRetries int, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return zero, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}

// DecodeModelJSON unmarshals JSON from a model response, tolerating
// code fences and surrounding prose the model sometimes adds.
func DecodeModelJSON(output string, v any) error {
	s := strings.TrimSpace(output)
	if s == "" {
		return fmt.Errorf("empty model output")
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	// Strip a ```json ... ``` fence if present.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
		if err := json.Unmarshal([]byte(s), v); err == nil {
			return nil
		}
	}

	// Fall back to the outermost JSON object or array in the text.
	start := strings.IndexAny(s, "{[")
	end := strings.LastIndexAny(s, "}]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(s[start:end+1]), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("model output is not valid JSON")
}
