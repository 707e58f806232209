// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	backoffBase = time.Millisecond
}

func TestDecodeModelJSON(t *testing.T) {
	type doc struct {
		Name  string   `json:"name"`
		Items []string `json:"items"`
	}

	tests := []struct {
		name    string
		input   string
		want    doc
		wantErr bool
	}{
		{
			name:  "clean JSON",
			input: `{"name": "a", "items": ["x", "y"]}`,
			want:  doc{Name: "a", Items: []string{"x", "y"}},
		},
		{
			name:  "fenced JSON",
			input: "```json\n{\"name\": \"b\", \"items\": []}\n```",
			want:  doc{Name: "b", Items: []string{}},
		},
		{
			name:  "JSON with surrounding prose",
			input: "Here is the result:\n{\"name\": \"c\", \"items\": [\"z\"]}\nHope that helps.",
			want:  doc{Name: "c", Items: []string{"z"}},
		},
		{
			name:    "empty output",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "no JSON at all",
			input:   "I cannot answer that.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got doc
			err := DecodeModelJSON(tt.input, &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCallWithRetryRecovers(t *testing.T) {
	calls := 0
	out, err := callWithRetry(context.Background(), 3, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestCallWithRetryExhausts(t *testing.T) {
	calls := 0
	_, err := callWithRetry(context.Background(), 2, func(ctx context.Context) (string, error) {
		calls++
		return "", fmt.Errorf("permanent")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, calls)
}

func TestGenerateSchemaStrictness(t *testing.T) {
	type inner struct {
		Label string `json:"label"`
	}
	type outer struct {
		Names []string `json:"names"`
		Sub   inner    `json:"sub"`
	}

	schema := GenerateSchema[outer]()

	assert.Equal(t, false, schema["additionalProperties"])
	required, ok := schema["required"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"names", "sub"}, required)

	props := schema["properties"].(map[string]any)
	sub := props["sub"].(map[string]any)
	assert.Equal(t, false, sub["additionalProperties"])
}
