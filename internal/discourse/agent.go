// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discourse

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/internal/mindmap"
	"github.com/pdiddy/roundtable/pkg/types"
)

// Agent is one discussion participant. Agents are stateless across
// turns except for per-instance configuration; the only required
// operation is producing exactly one new turn from the knowledge base
// and the conversation so far.
type Agent interface {
	Role() string
	GenerateUtterance(ctx context.Context, kb *mindmap.KnowledgeBase, history *ConversationHistory) (types.ConversationTurn, error)
}

// recentTurnsForPrompt bounds how much conversation is replayed into
// prompts.
const recentTurnsForPrompt = 6

// renderRecentTurns formats the last few turns for inclusion in a
// prompt, oldest first.
func renderRecentTurns(history *ConversationHistory) string {
	turns := history.LastN(recentTurnsForPrompt)
	if len(turns) == 0 {
		return "(the discussion has not started yet)"
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s (%s): %s\n", t.Role, t.UtteranceType, t.Utterance)
	}
	return b.String()
}

// lastQuestion returns the most recent questioning utterance, or the
// topic when the discussion holds none.
func lastQuestion(history *ConversationHistory, topic string) string {
	turns := history.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].UtteranceType.IsQuestioning() {
			return turns[i].Utterance
		}
	}
	return topic
}

// citedURLs collects every URL already cited in the history, for
// retrieval exclusion.
func citedURLs(history *ConversationHistory) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, t := range history.Turns() {
		for _, info := range t.CitedInfo {
			if !seen[info.URL] {
				seen[info.URL] = true
				urls = append(urls, info.URL)
			}
		}
	}
	return urls
}

// polishPromptTmpl rewrites a raw utterance conversationally.
var polishPromptTmpl = template.Must(template.New("polish").Parse(`Rewrite the following statement from a round-table discussion so it reads as natural speech. Keep the meaning. Keep every citation marker (e.g. [2]) exactly where it is; do not add, remove, or renumber markers.

{{.Raw}}
`))

// Polish rewrites turn.RawUtterance into a conversational register and
// stores the result in turn.Utterance. Citation markers must survive
// the rewrite; a response that loses any marker is discarded and the
// raw utterance is kept.
func Polish(ctx context.Context, gen llm.Generator, turn *types.ConversationTurn) error {
	var buf bytes.Buffer
	polishPromptTmpl.Execute(&buf, struct{ Raw string }{Raw: turn.RawUtterance})

	polished, err := gen.Generate(ctx, buf.String())
	if err != nil {
		return fmt.Errorf("polishing utterance: %w", err)
	}
	polished = strings.TrimSpace(polished)

	for _, marker := range citationMarkers(turn.RawUtterance) {
		if !strings.Contains(polished, marker) {
			turn.Utterance = turn.RawUtterance
			return nil
		}
	}
	turn.Utterance = polished
	return nil
}

// markerRe matches inline citation markers like [3].
var markerRe = regexp.MustCompile(`\[(\d+)\]`)

// citationMarkers returns the distinct [n] markers present in text.
func citationMarkers(text string) []string {
	seen := make(map[string]bool)
	var markers []string
	for _, m := range markerRe.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			markers = append(markers, m)
		}
	}
	return markers
}
