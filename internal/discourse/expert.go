// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discourse

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/internal/mindmap"
	"github.com/pdiddy/roundtable/internal/retrieval"
	"github.com/pdiddy/roundtable/pkg/types"
)

// ErrUnknownAction is returned when the planning step produces an
// action label that matches none of the recognized utterance types.
// This is a fatal precondition violation, not a retryable condition.
var ErrUnknownAction = fmt.Errorf("unrecognized action label")

// actionLabels are the utterance types an expert may plan, checked by
// prefix against the model's output. Longest recognized label wins, so
// "Information Request" is never misread as a bare prefix of itself.
var actionLabels = []types.UtteranceType{
	types.UtteranceInformationRequest,
	types.UtteranceOriginalQuestion,
	types.UtteranceFurtherDetails,
	types.UtterancePotentialAnswer,
}

// Expert is a role-played discussion participant. It plans what kind
// of contribution to make next, then either asks or retrieves evidence
// and answers with citations.
type Expert struct {
	topic       string
	roleName    string
	description string
	gen         llm.Generator
	retriever   retrieval.Retriever
	logger      *zap.Logger
}

// NewExpert builds an Expert for one role.
func NewExpert(topic, roleName, description string, gen llm.Generator, retriever retrieval.Retriever, logger *zap.Logger) *Expert {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expert{
		topic:       topic,
		roleName:    roleName,
		description: description,
		gen:         gen,
		retriever:   retriever,
		logger:      logger,
	}
}

// Role returns the expert's role name.
func (e *Expert) Role() string { return e.roleName }

// planPromptTmpl asks the expert to choose its next contribution.
var planPromptTmpl = template.Must(template.New("plan").Parse(`You are {{.Role}} ({{.Description}}) in a round-table discussion on "{{.Topic}}".

Knowledge collected so far:
{{.Outline}}
Recent discussion:
{{.Recent}}
Decide your next contribution. Reply with exactly one line of the form "<type>: <content>", where <type> is one of: Original Question, Information Request, Further Details, Potential Answer.
`))

// GenerateUtterance plans an action and carries it out. Questioning
// actions re-emit the planned content directly; answering actions
// retrieve evidence first and ground the answer in it.
func (e *Expert) GenerateUtterance(ctx context.Context, kb *mindmap.KnowledgeBase, history *ConversationHistory) (types.ConversationTurn, error) {
	var buf bytes.Buffer
	planPromptTmpl.Execute(&buf, struct {
		Role, Description, Topic, Outline, Recent string
	}{
		Role:        e.roleName,
		Description: e.description,
		Topic:       e.topic,
		Outline:     kb.StructureOutline(),
		Recent:      renderRecentTurns(history),
	})

	planned, err := e.gen.Generate(ctx, buf.String())
	if err != nil {
		return types.ConversationTurn{}, fmt.Errorf("planning action for %s: %w", e.roleName, err)
	}

	action, content, err := parseAction(planned)
	if err != nil {
		return types.ConversationTurn{}, err
	}

	if action.IsQuestioning() {
		return types.ConversationTurn{
			Role:          e.roleName,
			UtteranceType: action,
			RawUtterance:  content,
			Utterance:     content,
			ClaimToMake:   content,
		}, nil
	}

	claim := lastQuestion(history, e.topic)
	return e.answerWithEvidence(ctx, action, claim, content, history)
}

// parseAction splits a planned "<type>: <content>" line. The label is
// matched by prefix against the recognized utterance types, longest
// label first; an unmatched label is ErrUnknownAction.
func parseAction(planned string) (types.UtteranceType, string, error) {
	line := strings.TrimSpace(planned)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}

	var best types.UtteranceType
	for _, label := range actionLabels {
		if len(label) <= len(best) {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), strings.ToLower(string(label))) {
			best = label
		}
	}
	if best == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownAction, line)
	}

	content := strings.TrimSpace(line[len(best):])
	content = strings.TrimLeft(content, ":")
	return best, strings.TrimSpace(content), nil
}

// queryPromptTmpl asks for search queries to gather evidence.
var queryPromptTmpl = template.Must(template.New("queries").Parse(`You are researching the question: {{.Claim}}

Topic of discussion: {{.Topic}}

Write 1 to 3 web search queries that would surface evidence for an answer, one per line, nothing else.
`))

// answerPromptTmpl grounds an answer in numbered evidence.
var answerPromptTmpl = template.Must(template.New("answer").Parse(`You are {{.Role}} in a discussion on "{{.Topic}}". Answer the question below using only the evidence provided. Cite evidence inline with its number, e.g. [2]. If the evidence is thin, say what little it supports.

Question: {{.Claim}}

Evidence:
{{.Evidence}}
`))

// answerWithEvidence retrieves for the claim and produces a grounded,
// citation-marked answer. Citation markers in the answer are local to
// the turn (1-based over the retrieved list) and are resolved to
// permanent indices when the engine inserts the cited records.
func (e *Expert) answerWithEvidence(ctx context.Context, action types.UtteranceType, claim, plannedContent string, history *ConversationHistory) (types.ConversationTurn, error) {
	queries, err := e.searchQueries(ctx, claim)
	if err != nil {
		return types.ConversationTurn{}, err
	}

	retrieved, err := e.retriever.Retrieve(ctx, queries, citedURLs(history))
	if err != nil {
		return types.ConversationTurn{}, fmt.Errorf("retrieving evidence for %s: %w", e.roleName, err)
	}
	for i := range retrieved {
		retrieved[i].Meta.Question = claim
	}

	// No single result is not an error; the answer just leans on the
	// planned content.
	evidence := renderEvidence(retrieved)
	if evidence == "" {
		evidence = "(no evidence retrieved)\n"
	}

	var buf bytes.Buffer
	answerPromptTmpl.Execute(&buf, struct {
		Role, Topic, Claim, Evidence string
	}{Role: e.roleName, Topic: e.topic, Claim: claim, Evidence: evidence})

	answer, err := e.gen.Generate(ctx, buf.String())
	if err != nil {
		return types.ConversationTurn{}, fmt.Errorf("answering as %s: %w", e.roleName, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = plannedContent
	}

	return types.ConversationTurn{
		Role:             e.roleName,
		UtteranceType:    action,
		RawUtterance:     answer,
		Utterance:        answer,
		ClaimToMake:      claim,
		Queries:          queries,
		RawRetrievedInfo: retrieved,
		CitedInfo:        citedSubset(answer, retrieved),
	}, nil
}

// searchQueries generates up to 3 search queries for a claim.
func (e *Expert) searchQueries(ctx context.Context, claim string) ([]string, error) {
	var buf bytes.Buffer
	queryPromptTmpl.Execute(&buf, struct{ Claim, Topic string }{Claim: claim, Topic: e.topic})

	out, err := e.gen.Generate(ctx, buf.String())
	if err != nil {
		return nil, fmt.Errorf("generating queries for %s: %w", e.roleName, err)
	}

	var queries []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if line != "" {
			queries = append(queries, line)
		}
		if len(queries) == 3 {
			break
		}
	}
	if len(queries) == 0 {
		queries = []string{claim}
	}
	return queries, nil
}

// renderEvidence numbers retrieved records for the answer prompt.
func renderEvidence(retrieved []types.Information) string {
	var b strings.Builder
	for i, info := range retrieved {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, info.SnippetText())
	}
	return b.String()
}

// citedSubset returns the retrieved records whose local marker appears
// in the answer.
func citedSubset(answer string, retrieved []types.Information) []types.Information {
	var cited []types.Information
	seen := make(map[int]bool)
	for _, m := range markerRe.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(retrieved) || seen[n] {
			continue
		}
		seen[n] = true
		cited = append(cited, retrieved[n-1])
	}
	return cited
}

// NewGeneralKnowledgeProvider builds the expert that answers questions
// directly when the previous turn asked one. It is never part of the
// rotation roster.
func NewGeneralKnowledgeProvider(topic string, gen llm.Generator, retriever retrieval.Retriever, logger *zap.Logger) *GeneralKnowledgeProvider {
	return &GeneralKnowledgeProvider{
		expert: NewExpert(topic, "General Knowledge Provider",
			"a well-read generalist who answers open questions directly", gen, retriever, logger),
	}
}

// GeneralKnowledgeProvider answers the most recent question with
// retrieved evidence, skipping the planning step.
type GeneralKnowledgeProvider struct {
	expert *Expert
}

// Role returns the provider's role name.
func (g *GeneralKnowledgeProvider) Role() string { return g.expert.roleName }

// GenerateUtterance answers the last open question as a Potential Answer.
func (g *GeneralKnowledgeProvider) GenerateUtterance(ctx context.Context, kb *mindmap.KnowledgeBase, history *ConversationHistory) (types.ConversationTurn, error) {
	claim := lastQuestion(history, g.expert.topic)
	return g.expert.answerWithEvidence(ctx, types.UtterancePotentialAnswer, claim, "", history)
}
