// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discourse

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/internal/mindmap"
	"github.com/pdiddy/roundtable/internal/retrieval"
	"github.com/pdiddy/roundtable/pkg/types"
)

// PureRAGAgent answers the last question from retrieval grounded on
// the question text alone, ignoring discussion context. Baseline mode.
type PureRAGAgent struct {
	topic     string
	gen       llm.Generator
	retriever retrieval.Retriever
	logger    *zap.Logger
}

// NewPureRAGAgent builds the baseline retrieval-only agent.
func NewPureRAGAgent(topic string, gen llm.Generator, retriever retrieval.Retriever, logger *zap.Logger) *PureRAGAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PureRAGAgent{topic: topic, gen: gen, retriever: retriever, logger: logger}
}

// Role returns the baseline agent's role name.
func (r *PureRAGAgent) Role() string { return "RAG Assistant" }

var ragAnswerPromptTmpl = template.Must(template.New("rag").Parse(`Answer the question below using only the evidence provided. Cite evidence inline with its number, e.g. [2].

Question: {{.Question}}

Evidence:
{{.Evidence}}
`))

// GenerateUtterance retrieves on the question text itself and answers
// from that evidence only.
func (r *PureRAGAgent) GenerateUtterance(ctx context.Context, kb *mindmap.KnowledgeBase, history *ConversationHistory) (types.ConversationTurn, error) {
	question := lastQuestion(history, r.topic)

	retrieved, err := r.retriever.Retrieve(ctx, []string{question}, citedURLs(history))
	if err != nil {
		return types.ConversationTurn{}, fmt.Errorf("retrieving for baseline answer: %w", err)
	}
	for i := range retrieved {
		retrieved[i].Meta.Question = question
	}

	evidence := renderEvidence(retrieved)
	if evidence == "" {
		evidence = "(no evidence retrieved)\n"
	}

	var buf bytes.Buffer
	ragAnswerPromptTmpl.Execute(&buf, struct {
		Question, Evidence string
	}{Question: question, Evidence: evidence})

	answer, err := r.gen.Generate(ctx, buf.String())
	if err != nil {
		return types.ConversationTurn{}, fmt.Errorf("generating baseline answer: %w", err)
	}
	answer = strings.TrimSpace(answer)

	return types.ConversationTurn{
		Role:             r.Role(),
		UtteranceType:    types.UtterancePotentialAnswer,
		RawUtterance:     answer,
		Utterance:        answer,
		ClaimToMake:      question,
		Queries:          []string{question},
		RawRetrievedInfo: retrieved,
		CitedInfo:        citedSubset(answer, retrieved),
	}, nil
}
