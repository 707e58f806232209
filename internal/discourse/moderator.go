// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discourse

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/roundtable/internal/embed"
	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/internal/mindmap"
	"github.com/pdiddy/roundtable/pkg/types"
)

// claimGateThreshold is the cosine similarity a candidate snippet must
// have to the turn's claim to be considered on-theme at all.
const claimGateThreshold = 0.25

// Moderator steers the discussion toward retrieved-but-uncited
// information by asking a fresh question grounded in it.
type Moderator struct {
	topic     string
	gen       llm.Generator
	embedder  embed.Embedder
	rankTurns int
	logger    *zap.Logger
}

// NewModerator builds a Moderator. Default: mine the last 2
// non-questioning turns.
func NewModerator(topic string, gen llm.Generator, embedder embed.Embedder, cfg types.DiscourseConfig, logger *zap.Logger) *Moderator {
	rankTurns := cfg.ModeratorRankTurns
	if rankTurns <= 0 {
		rankTurns = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Moderator{
		topic:     topic,
		gen:       gen,
		embedder:  embedder,
		rankTurns: rankTurns,
		logger:    logger,
	}
}

// Role returns the moderator's role name.
func (m *Moderator) Role() string { return "Moderator" }

// UnusedSnippet is one retrieved-but-uncited snippet with its source.
type UnusedSnippet struct {
	Text   string
	Source types.Information
}

// rankedSnippet carries the interleaving score.
type rankedSnippet struct {
	UnusedSnippet
	score float64
}

// RankUnusedSnippets collects every retrieved-but-uncited snippet from
// the last non-questioning turns and orders them by how promising they
// are as seeds for a new question. A snippet scores high when it is
// on-theme for its turn's claim but dissimilar from both the queries
// already asked and the snippets already cited. Per-turn rankings are
// merged round-robin so no single turn dominates.
func (m *Moderator) RankUnusedSnippets(ctx context.Context, history *ConversationHistory) ([]UnusedSnippet, error) {
	turns := lastNonQuestioning(history, m.rankTurns)

	var perTurn [][]rankedSnippet
	for _, turn := range turns {
		ranked, err := m.rankTurnSnippets(ctx, turn)
		if err != nil {
			return nil, err
		}
		if len(ranked) > 0 {
			perTurn = append(perTurn, ranked)
		}
	}

	return interleave(perTurn), nil
}

// rankTurnSnippets scores one turn's uncited snippets.
func (m *Moderator) rankTurnSnippets(ctx context.Context, turn types.ConversationTurn) ([]rankedSnippet, error) {
	candidates := uncitedSnippets(turn)
	if len(candidates) == 0 {
		return nil, nil
	}

	cited := make(map[string]bool)
	var citedTexts []string
	for _, info := range turn.CitedInfo {
		for _, s := range info.Snippets {
			if !cited[s] {
				cited[s] = true
				citedTexts = append(citedTexts, s)
			}
		}
	}

	// One batch covers candidates, queries, cited snippets, and the claim.
	texts := make([]string, 0, len(candidates)+len(turn.Queries)+len(citedTexts)+1)
	for _, c := range candidates {
		texts = append(texts, c.Text)
	}
	texts = append(texts, turn.Queries...)
	texts = append(texts, citedTexts...)
	texts = append(texts, turn.ClaimToMake)

	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding moderator candidates: %w", err)
	}

	candVecs := vectors[:len(candidates)]
	queryVecs := vectors[len(candidates) : len(candidates)+len(turn.Queries)]
	citedVecs := vectors[len(candidates)+len(turn.Queries) : len(vectors)-1]
	claimVec := vectors[len(vectors)-1]

	ranked := make([]rankedSnippet, 0, len(candidates))
	for i, c := range candidates {
		score, err := snippetScore(candVecs[i], queryVecs, citedVecs, claimVec)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, rankedSnippet{UnusedSnippet: c, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return ranked, nil
}

// snippetScore favors candidates on-theme for the claim but dissimilar
// from prior queries and already-cited material:
//
//	sqrt(1 - maxQuerySim) * sqrt(1 - citedSim) * claimGate
func snippetScore(cand []float32, queryVecs, citedVecs [][]float32, claimVec []float32) (float64, error) {
	maxQuerySim := 0.0
	for _, qv := range queryVecs {
		sim, err := embed.CosineSimilarity(cand, qv)
		if err != nil {
			return 0, err
		}
		if sim > maxQuerySim {
			maxQuerySim = sim
		}
	}

	citedSim := 0.0
	for _, cv := range citedVecs {
		sim, err := embed.CosineSimilarity(cand, cv)
		if err != nil {
			return 0, err
		}
		if sim > citedSim {
			citedSim = sim
		}
	}
	citedSim = math.Min(math.Max(citedSim, 0), 1)

	claimSim, err := embed.CosineSimilarity(cand, claimVec)
	if err != nil {
		return 0, err
	}
	if claimSim <= claimGateThreshold {
		return 0, nil
	}

	return math.Sqrt(1-math.Min(maxQuerySim, 1)) * math.Sqrt(1-citedSim), nil
}

// uncitedSnippets returns the turn's retrieved snippets that were not
// cited, each paired with its source record.
func uncitedSnippets(turn types.ConversationTurn) []UnusedSnippet {
	cited := make(map[string]bool)
	for _, info := range turn.CitedInfo {
		for _, s := range info.Snippets {
			cited[s] = true
		}
	}

	var out []UnusedSnippet
	for _, info := range turn.RawRetrievedInfo {
		for _, s := range info.Snippets {
			if !cited[s] {
				out = append(out, UnusedSnippet{Text: s, Source: info})
			}
		}
	}
	return out
}

// lastNonQuestioning returns up to n most recent non-questioning turns,
// newest first.
func lastNonQuestioning(history *ConversationHistory, n int) []types.ConversationTurn {
	turns := history.Turns()
	var out []types.ConversationTurn
	for i := len(turns) - 1; i >= 0 && len(out) < n; i-- {
		if !turns[i].UtteranceType.IsQuestioning() {
			out = append(out, turns[i])
		}
	}
	return out
}

// interleave merges per-turn rankings round-robin, one candidate from
// each turn's list in sequence.
func interleave(perTurn [][]rankedSnippet) []UnusedSnippet {
	var out []UnusedSnippet
	for depth := 0; ; depth++ {
		emitted := false
		for _, list := range perTurn {
			if depth < len(list) {
				out = append(out, list[depth].UnusedSnippet)
				emitted = true
			}
		}
		if !emitted {
			return out
		}
	}
}

// questionPromptTmpl asks for a new discussion question seeded by
// unexplored snippets.
var questionPromptTmpl = template.Must(template.New("question").Parse(`You are moderating a round-table discussion on "{{.Topic}}".

Current outline:
{{.Outline}}
The following retrieved information has not been discussed yet:
{{.Snippets}}
Ask one new question that steers the discussion toward this unexplored information. Reply with the question only.
`))

// moderatorSeedSnippets caps how many ranked snippets seed the question.
const moderatorSeedSnippets = 5

// GenerateUtterance produces an Original Question grounded in the
// highest-ranked unused snippets. With nothing to mine, the question
// falls back to the outline alone.
func (m *Moderator) GenerateUtterance(ctx context.Context, kb *mindmap.KnowledgeBase, history *ConversationHistory) (types.ConversationTurn, error) {
	ranked, err := m.RankUnusedSnippets(ctx, history)
	if err != nil {
		return types.ConversationTurn{}, err
	}
	if len(ranked) > moderatorSeedSnippets {
		ranked = ranked[:moderatorSeedSnippets]
	}

	var snippets strings.Builder
	for _, s := range ranked {
		fmt.Fprintf(&snippets, "- %s\n", s.Text)
	}
	if snippets.Len() == 0 {
		snippets.WriteString("(none)\n")
	}

	var buf bytes.Buffer
	questionPromptTmpl.Execute(&buf, struct {
		Topic, Outline, Snippets string
	}{Topic: m.topic, Outline: kb.StructureOutline(), Snippets: snippets.String()})

	question, err := m.gen.Generate(ctx, buf.String())
	if err != nil {
		return types.ConversationTurn{}, fmt.Errorf("generating moderator question: %w", err)
	}
	question = strings.TrimSpace(question)

	return types.ConversationTurn{
		Role:          m.Role(),
		UtteranceType: types.UtteranceOriginalQuestion,
		RawUtterance:  question,
		Utterance:     question,
		ClaimToMake:   question,
	}, nil
}
