// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discourse

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/internal/mindmap"
	"github.com/pdiddy/roundtable/pkg/types"
)

// SimulatedUser plays a guest whose questions follow one fixed intent.
// Used for offline evaluation runs, not interactive sessions.
type SimulatedUser struct {
	topic  string
	intent string
	gen    llm.Generator
}

// NewSimulatedUser builds a SimulatedUser with a fixed guiding intent.
func NewSimulatedUser(topic, intent string, gen llm.Generator) *SimulatedUser {
	return &SimulatedUser{topic: topic, intent: intent, gen: gen}
}

// Role returns the guest's role name.
func (s *SimulatedUser) Role() string { return "Guest" }

var guestPromptTmpl = template.Must(template.New("guest").Parse(`You are a guest in a round-table discussion on "{{.Topic}}". Your underlying interest is: {{.Intent}}

Recent discussion:
{{.Recent}}
Ask one question, consistent with your interest, that the discussion has not yet answered. Reply with the question only.
`))

// GenerateUtterance produces a guest question guided by the fixed intent.
func (s *SimulatedUser) GenerateUtterance(ctx context.Context, kb *mindmap.KnowledgeBase, history *ConversationHistory) (types.ConversationTurn, error) {
	var buf bytes.Buffer
	guestPromptTmpl.Execute(&buf, struct {
		Topic, Intent, Recent string
	}{Topic: s.topic, Intent: s.intent, Recent: renderRecentTurns(history)})

	question, err := s.gen.Generate(ctx, buf.String())
	if err != nil {
		return types.ConversationTurn{}, fmt.Errorf("generating guest question: %w", err)
	}
	question = strings.TrimSpace(question)

	return types.ConversationTurn{
		Role:          s.Role(),
		UtteranceType: types.UtteranceOriginalQuestion,
		RawUtterance:  question,
		Utterance:     question,
		ClaimToMake:   s.intent,
	}, nil
}
