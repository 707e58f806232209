// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mindmap

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/pkg/types"
)

func TestRewriteMarkers(t *testing.T) {
	remap := map[int]int{3: 1, 7: 2}

	tests := []struct {
		in, want string
	}{
		{"solar output doubled [3]", "solar output doubled [1]"},
		{"both [7] and [3] agree", "both [2] and [1] agree"},
		{"hallucinated [42] marker", "hallucinated  marker"},
		{"no markers here", "no markers here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rewriteMarkers(tt.in, remap))
	}
}

func TestReorderCitations_DenseRenumberInDocumentOrder(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background"})
	kb.EnsurePath([]string{"Economics"})

	// Indices 1..3; index 2 is detached so it becomes unreferenced.
	kb.InsertInformation([]string{"Economics"}, info("http://a", "s1"), false)
	kb.InsertInformation([]string{"Background"}, info("http://b", "s2"), false)
	kb.InsertInformation([]string{"Background"}, info("http://c", "s3"), false)
	_, err := kb.DetachAll([]string{"Economics"})
	require.NoError(t, err)

	kb.mu.Lock()
	for _, n := range kb.nodes {
		if n.name == "Background" {
			n.synthesizeOutput = "facts [2] and [3], bogus [9]"
		}
	}
	kb.mu.Unlock()

	remap := kb.ReorderCitations()

	// Background appears first in document order, so its indices 2 and 3
	// become 1 and 2; the detached index 1 is dropped.
	assert.Equal(t, map[int]int{2: 1, 3: 2}, remap)
	assert.Equal(t, 2, kb.CitationCount())

	content, err := kb.NodeContent([]string{"Background"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, content)

	renumbered, ok := kb.Citation(1)
	require.True(t, ok)
	assert.Equal(t, "http://b", renumbered.URL)

	doc := kb.ToDocument()
	assert.Equal(t, "facts [1] and [2], bogus ", doc.Root.Children[0].Synthesize)
}

func TestReorderCitations_RegistrationContinuesPastCompaction(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background"})
	kb.InsertInformation([]string{"Background"}, info("http://a", "s1"), false)
	kb.InsertInformation([]string{"Background"}, info("http://b", "s2"), false)

	kb.ReorderCitations()

	idx, err := kb.InsertInformation([]string{"Background"}, info("http://c", "s3"), false)
	require.NoError(t, err)
	assert.Equal(t, 3, idx)
}

func TestWriteReport(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background"})
	kb.InsertInformation([]string{"Background"}, info("http://a", "panels got cheap"), false)

	gen := llm.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, `section "Background"`) {
			return "Panels got cheap [1].", nil
		}
		return "Solar power is viable [1].", nil
	})
	rep := NewReporter(gen, types.DiscourseConfig{}, nil)

	var buf bytes.Buffer
	require.NoError(t, rep.WriteReport(context.Background(), kb, &buf))
	out := buf.String()

	assert.Contains(t, out, "# Solar Power\n")
	assert.Contains(t, out, "## Background\n")
	assert.Contains(t, out, "Panels got cheap [1].")
	assert.Contains(t, out, "## References\n")
	assert.Contains(t, out, "[1] title of http://a. http://a\n")
}

func TestWriteReport_DropsEmptyBranches(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background"})
	kb.EnsurePath([]string{"Empty", "Deeper"})
	kb.InsertInformation([]string{"Background"}, info("http://a", "s1"), false)

	gen := llm.GeneratorFunc(func(_ context.Context, _ string) (string, error) {
		return "a summary [1]", nil
	})
	rep := NewReporter(gen, types.DiscourseConfig{}, nil)

	var buf bytes.Buffer
	require.NoError(t, rep.WriteReport(context.Background(), kb, &buf))

	assert.NotContains(t, buf.String(), "Empty")
	assert.NotContains(t, buf.String(), "Deeper")
}

func TestSynthesize_ParentSeesChildSummaries(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background", "History"})
	kb.InsertInformation([]string{"Background", "History"}, info("http://a", "s1"), false)

	var prompts []string
	gen := llm.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return fmt.Sprintf("summary %d [1]", len(prompts)), nil
	})
	rep := NewReporter(gen, types.DiscourseConfig{SynthesisWorkers: 1}, nil)

	require.NoError(t, rep.synthesize(context.Background(), kb))

	// Deepest level first: History, then Background, then the root, each
	// prompt carrying the summary generated one level below.
	require.Len(t, prompts, 3)
	assert.Contains(t, prompts[1], "summary 1 [1]")
	assert.Contains(t, prompts[2], "summary 2 [1]")
}
