// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discourse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/pkg/types"
)

// fakeEmbedder returns canned vectors keyed by input text.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Name() string { return "fake" }

func TestRankUnusedSnippets_NearDuplicateOfCitedRanksLast(t *testing.T) {
	// Three uncited snippets: two novel, one that duplicates an
	// already-cited snippet. All three are on-theme for the claim.
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"what storage do grids need": {1, 0, 0},
		"grid storage query":         {0, 1, 0},
		"cited: batteries are key":   {0.6, 0.8, 0},
		"novel snippet one":          {0.9, 0.1, 0.1},
		"novel snippet two":          {0.8, 0.2, 0.2},
		"duplicate of cited":         {0.6, 0.8, 0},
	}}

	turn := types.ConversationTurn{
		UtteranceType: types.UtterancePotentialAnswer,
		ClaimToMake:   "what storage do grids need",
		Queries:       []string{"grid storage query"},
		RawRetrievedInfo: []types.Information{
			{URL: "http://x", Snippets: []string{"novel snippet one", "duplicate of cited"}},
			{URL: "http://y", Snippets: []string{"novel snippet two"}},
			{URL: "http://c", Snippets: []string{"cited: batteries are key"}},
		},
		CitedInfo: []types.Information{
			{URL: "http://c", Snippets: []string{"cited: batteries are key"}},
		},
	}

	history := NewHistory()
	history.Append(turn)

	m := NewModerator("Grid Storage", nil, embedder, types.DiscourseConfig{}, nil)
	ranked, err := m.RankUnusedSnippets(context.Background(), history)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, "duplicate of cited", ranked[2].Text)
	texts := []string{ranked[0].Text, ranked[1].Text}
	assert.Contains(t, texts, "novel snippet one")
	assert.Contains(t, texts, "novel snippet two")
}

func TestRankUnusedSnippets_OffThemeSnippetGatedOut(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"the claim":  {1, 0, 0},
		"on theme":   {0.9, 0.4, 0},
		"off theme":  {0, 1, 0},
		"some query": {0, 0, 1},
	}}

	turn := types.ConversationTurn{
		UtteranceType: types.UtterancePotentialAnswer,
		ClaimToMake:   "the claim",
		Queries:       []string{"some query"},
		RawRetrievedInfo: []types.Information{
			{URL: "http://x", Snippets: []string{"on theme", "off theme"}},
		},
	}
	history := NewHistory()
	history.Append(turn)

	m := NewModerator("Topic", nil, embedder, types.DiscourseConfig{}, nil)
	ranked, err := m.RankUnusedSnippets(context.Background(), history)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "on theme", ranked[0].Text)
	assert.Equal(t, "off theme", ranked[1].Text)
}

func TestRankUnusedSnippets_InterleavesAcrossTurns(t *testing.T) {
	// Two answer turns, each with two on-theme snippets and nothing
	// cited or queried. Interleaving alternates turns, newest first.
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"claim one": {1, 0, 0},
		"claim two": {1, 0, 0},
		"t1 s1":     {1, 0, 0},
		"t1 s2":     {0.9, 0.1, 0},
		"t2 s1":     {1, 0, 0},
		"t2 s2":     {0.9, 0.1, 0},
	}}

	history := NewHistory()
	history.Append(types.ConversationTurn{
		UtteranceType: types.UtterancePotentialAnswer,
		ClaimToMake:   "claim one",
		RawRetrievedInfo: []types.Information{
			{URL: "http://1", Snippets: []string{"t1 s1", "t1 s2"}},
		},
	})
	history.Append(types.ConversationTurn{
		UtteranceType: types.UtteranceFurtherDetails,
		ClaimToMake:   "claim two",
		RawRetrievedInfo: []types.Information{
			{URL: "http://2", Snippets: []string{"t2 s1", "t2 s2"}},
		},
	})

	m := NewModerator("Topic", nil, embedder, types.DiscourseConfig{ModeratorRankTurns: 2}, nil)
	ranked, err := m.RankUnusedSnippets(context.Background(), history)
	require.NoError(t, err)
	require.Len(t, ranked, 4)

	assert.Equal(t, "t2 s1", ranked[0].Text)
	assert.Equal(t, "t1 s1", ranked[1].Text)
	assert.Equal(t, "t2 s2", ranked[2].Text)
	assert.Equal(t, "t1 s2", ranked[3].Text)
}

func TestModerator_GenerateUtterance(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	gen := llm.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		require.Contains(t, prompt, "unexplored")
		return "What about storage costs?", nil
	})

	m := NewModerator("Solar Power", gen, embedder, types.DiscourseConfig{}, nil)
	kb := newTestKB(t)

	turn, err := m.GenerateUtterance(context.Background(), kb, NewHistory())
	require.NoError(t, err)
	assert.Equal(t, "Moderator", turn.Role)
	assert.Equal(t, types.UtteranceOriginalQuestion, turn.UtteranceType)
	assert.Equal(t, "What about storage costs?", turn.Utterance)
	assert.Equal(t, turn.Utterance, turn.ClaimToMake)
}
