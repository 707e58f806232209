// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mindmap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/pkg/types"
)

func info(url string, snippets ...string) types.Information {
	return types.Information{
		URL:      url,
		Title:    "title of " + url,
		Snippets: snippets,
	}
}

func TestInsertInformation_AssignsIndicesFromOne(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background"})

	idx1, err := kb.InsertInformation([]string{"Background"}, info("http://a", "s1"), false)
	require.NoError(t, err)
	idx2, err := kb.InsertInformation([]string{"Background"}, info("http://b", "s2"), false)
	require.NoError(t, err)

	assert.Equal(t, 1, idx1)
	assert.Equal(t, 2, idx2)
	assert.Equal(t, 2, kb.CitationCount())
}

func TestInsertInformation_DeduplicatesByURL(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background"})

	idx1, err := kb.InsertInformation([]string{"Background"}, info("http://a", "s1"), false)
	require.NoError(t, err)
	idx2, err := kb.InsertInformation([]string{"Background"}, info("http://a", "s2", "s1"), false)
	require.NoError(t, err)

	assert.Equal(t, idx1, idx2)
	assert.Equal(t, 1, kb.CitationCount())

	merged, ok := kb.Citation(idx1)
	require.True(t, ok)
	assert.Equal(t, []string{"s1", "s2"}, merged.Snippets)
}

func TestInsertInformation_KeepsFirstPlacement(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background"})
	kb.EnsurePath([]string{"Economics"})

	idx, err := kb.InsertInformation([]string{"Background"}, info("http://a", "s1"), false)
	require.NoError(t, err)

	// The same source arriving again, aimed at a different node, merges
	// snippets but does not move or copy the citation.
	_, err = kb.InsertInformation([]string{"Economics"}, info("http://a", "s2"), false)
	require.NoError(t, err)

	background, err := kb.NodeContent([]string{"Background"})
	require.NoError(t, err)
	economics, err := kb.NodeContent([]string{"Economics"})
	require.NoError(t, err)

	assert.Equal(t, []int{idx}, background)
	assert.Empty(t, economics)
}

func TestInsertInformation_PathNotFound(t *testing.T) {
	kb := New("Solar Power")

	_, err := kb.InsertInformation([]string{"Missing"}, info("http://a", "s1"), false)
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestInsertInformation_CreatesMissingPath(t *testing.T) {
	kb := New("Solar Power")

	_, err := kb.InsertInformation([]string{"Economics", "Subsidies"}, info("http://a", "s1"), true)
	require.NoError(t, err)

	assert.True(t, kb.FindPath([]string{"Economics", "Subsidies"}))
	content, err := kb.NodeContent([]string{"Economics", "Subsidies"})
	require.NoError(t, err)
	assert.Len(t, content, 1)
}

func TestChildNames_PreservesInsertionOrder(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background"})
	kb.EnsurePath([]string{"Economics"})
	kb.EnsurePath([]string{"Adoption"})

	names, err := kb.ChildNames(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Background", "Economics", "Adoption"}, names)
}

func TestDetachAll_EmptiesNodeButKeepsRegistry(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background"})
	idx1, _ := kb.InsertInformation([]string{"Background"}, info("http://a", "s1"), false)
	idx2, _ := kb.InsertInformation([]string{"Background"}, info("http://b", "s2"), false)

	moved, err := kb.DetachAll([]string{"Background"})
	require.NoError(t, err)
	assert.Equal(t, []int{idx1, idx2}, moved)

	content, err := kb.NodeContent([]string{"Background"})
	require.NoError(t, err)
	assert.Empty(t, content)
	assert.Equal(t, 2, kb.CitationCount())
}

func TestRenderPath(t *testing.T) {
	kb := New("Solar Power")
	assert.Equal(t, "Solar Power", kb.RenderPath(nil))
	assert.Equal(t, "Solar Power -> Economics -> Subsidies",
		kb.RenderPath([]string{"Economics", "Subsidies"}))
}

func TestAllPaths_DocumentOrder(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background", "History"})
	kb.EnsurePath([]string{"Economics"})

	paths := kb.AllPaths()
	require.Len(t, paths, 4)
	assert.Empty(t, paths[0])
	assert.Equal(t, []string{"Background"}, paths[1])
	assert.Equal(t, []string{"Background", "History"}, paths[2])
	assert.Equal(t, []string{"Economics"}, paths[3])
}

func TestRoundTripYAML(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background", "History"})
	kb.InsertInformation([]string{"Background", "History"}, info("http://a", "s1"), false)
	kb.InsertInformation([]string{"Background"}, info("http://b", "s2", "s3"), false)

	data, err := MarshalYAML(kb)
	require.NoError(t, err)

	restored, err := UnmarshalYAML(data)
	require.NoError(t, err)

	assert.Equal(t, kb.ToDocument(), restored.ToDocument())
	assert.Equal(t, kb.CitationCount(), restored.CitationCount())

	// New registrations continue past the restored indices.
	idx, err := restored.InsertInformation([]string{"Background"}, info("http://c", "s4"), false)
	require.NoError(t, err)
	assert.Equal(t, 3, idx)
}

func TestFromDocument_RejectsUnregisteredIndex(t *testing.T) {
	doc := &Document{
		Topic: "Solar Power",
		Root: NodeDocument{
			Name:     "Solar Power",
			Children: []NodeDocument{{Name: "Background", Content: []int{7}}},
		},
		Registry: map[int]types.Information{},
	}

	_, err := FromDocument(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unregistered citation index")
}

func TestReorganize_SummarizesDirtyNodesAndPrunesEmptyLeaves(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background"})
	kb.EnsurePath([]string{"Empty"})
	kb.InsertInformation([]string{"Background"}, info("http://a", "s1"), false)

	var prompts []string
	gen := llm.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return "a summary [1]", nil
	})

	require.NoError(t, kb.Reorganize(context.Background(), gen))

	// The empty leaf is gone, the others carry fresh summaries.
	assert.False(t, kb.FindPath([]string{"Empty"}))
	doc := kb.ToDocument()
	require.Len(t, doc.Root.Children, 1)
	assert.Equal(t, "a summary [1]", doc.Root.Children[0].Synthesize)
	assert.False(t, doc.Root.Children[0].NeedRegenerate)
	assert.Equal(t, "a summary [1]", doc.Root.Synthesize)

	// Children before parents: the root prompt includes the child summary.
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "a summary [1]")
}

func TestReorganize_PropagatesGeneratorError(t *testing.T) {
	kb := New("Solar Power")
	kb.EnsurePath([]string{"Background"})
	kb.InsertInformation([]string{"Background"}, info("http://a", "s1"), false)

	boom := errors.New("model unavailable")
	gen := llm.GeneratorFunc(func(_ context.Context, _ string) (string, error) {
		return "", boom
	})

	err := kb.Reorganize(context.Background(), gen)
	assert.ErrorIs(t, err, boom)
}
