// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discourse

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/internal/mindmap"
	"github.com/pdiddy/roundtable/internal/retrieval"
	"github.com/pdiddy/roundtable/pkg/types"
)

// WarmStart bootstraps a session: gather background on the topic,
// generate an expert roster from it, and run parallel interviews whose
// cited findings seed the knowledge base.
type WarmStart struct {
	topic     string
	gen       llm.StructuredGenerator
	retriever retrieval.Retriever
	inserter  *mindmap.Inserter
	experts   int
	rounds    int
	logger    *zap.Logger
}

// NewWarmStart builds a WarmStart. Defaults: 3 experts, 2 interview
// rounds each.
func NewWarmStart(topic string, gen llm.StructuredGenerator, retriever retrieval.Retriever, inserter *mindmap.Inserter, cfg types.DiscourseConfig, logger *zap.Logger) *WarmStart {
	experts := cfg.WarmStartExperts
	if experts <= 0 {
		experts = 3
	}
	rounds := cfg.WarmStartRounds
	if rounds <= 0 {
		rounds = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WarmStart{
		topic:     topic,
		gen:       gen,
		retriever: retriever,
		inserter:  inserter,
		experts:   experts,
		rounds:    rounds,
		logger:    logger,
	}
}

// expertPerspective is one generated roster entry.
type expertPerspective struct {
	Role        string `json:"role"`
	Description string `json:"description"`
}

// perspectivesResponse is the structured output for roster generation.
type perspectivesResponse struct {
	Experts []expertPerspective `json:"experts"`
}

var perspectivesSchema = llm.GenerateSchema[perspectivesResponse]()

var perspectivesPromptTmpl = template.Must(template.New("perspectives").Parse(`A round-table discussion on "{{.Topic}}" needs a panel of {{.Count}} experts with distinct perspectives.

Background found so far:
{{.Background}}
Propose {{.Count}} expert roles. Each needs a short role name and a one-sentence description of the perspective that role brings.
`))

var interviewPromptTmpl = template.Must(template.New("interview").Parse(`You are interviewing {{.Role}} ({{.Description}}) to prepare a discussion on "{{.Topic}}".

Interview so far:
{{.Recent}}
Ask one concrete question this expert is well placed to answer and the interview has not covered. Reply with the question only.
`))

// Run bootstraps the roster and knowledge base. It returns the expert
// agents for the rotation. Interview rounds that fail are logged and
// skipped; the interview continues with the next round.
func (w *WarmStart) Run(ctx context.Context, kb *mindmap.KnowledgeBase, history *ConversationHistory) ([]Agent, error) {
	background, err := w.gatherBackground(ctx)
	if err != nil {
		return nil, err
	}

	perspectives, err := w.generatePerspectives(ctx, background)
	if err != nil {
		return nil, err
	}

	experts := make([]*Expert, len(perspectives))
	for i, p := range perspectives {
		experts[i] = NewExpert(w.topic, p.Role, p.Description, w.gen, w.retriever, w.logger)
	}

	// One worker per expert; the shared history serializes its own
	// read-then-append internally.
	g, gctx := errgroup.WithContext(ctx)
	for _, expert := range experts {
		expert := expert
		g.Go(func() error {
			w.interview(gctx, expert, history)
			return nil
		})
	}
	g.Wait()

	if err := SeedKnowledgeBase(ctx, kb, w.inserter, history); err != nil {
		return nil, err
	}

	roster := make([]Agent, len(experts))
	for i, e := range experts {
		roster[i] = e
	}
	return roster, nil
}

// gatherBackground retrieves general material on the topic.
func (w *WarmStart) gatherBackground(ctx context.Context) ([]types.Information, error) {
	background, err := w.retriever.Retrieve(ctx, []string{w.topic}, nil)
	if err != nil {
		return nil, fmt.Errorf("gathering background on %q: %w", w.topic, err)
	}
	for i := range background {
		background[i].Meta.Question = w.topic
	}
	return background, nil
}

// generatePerspectives asks for the expert roster, bounded by the
// configured count.
func (w *WarmStart) generatePerspectives(ctx context.Context, background []types.Information) ([]expertPerspective, error) {
	var summary strings.Builder
	for _, info := range background {
		fmt.Fprintf(&summary, "- %s\n", info.Title)
	}
	if summary.Len() == 0 {
		summary.WriteString("(nothing retrieved)\n")
	}

	var buf bytes.Buffer
	perspectivesPromptTmpl.Execute(&buf, struct {
		Topic, Background string
		Count             int
	}{Topic: w.topic, Background: summary.String(), Count: w.experts})

	var resp perspectivesResponse
	if err := w.gen.GenerateJSON(ctx, "expert_perspectives", buf.String(), perspectivesSchema, &resp); err != nil {
		return nil, fmt.Errorf("generating expert perspectives: %w", err)
	}

	var perspectives []expertPerspective
	for _, p := range resp.Experts {
		if strings.TrimSpace(p.Role) == "" {
			continue
		}
		perspectives = append(perspectives, p)
		if len(perspectives) == w.experts {
			break
		}
	}
	if len(perspectives) == 0 {
		return nil, fmt.Errorf("no usable expert perspectives generated")
	}
	return perspectives, nil
}

// interview runs the question/answer rounds for one expert, appending
// both sides of each round to the shared history.
func (w *WarmStart) interview(ctx context.Context, expert *Expert, history *ConversationHistory) {
	for round := 0; round < w.rounds; round++ {
		var buf bytes.Buffer
		interviewPromptTmpl.Execute(&buf, struct {
			Role, Description, Topic, Recent string
		}{
			Role:        expert.roleName,
			Description: expert.description,
			Topic:       w.topic,
			Recent:      renderRecentTurns(history),
		})

		question, err := w.gen.Generate(ctx, buf.String())
		if err != nil {
			w.logger.Warn("interview round skipped",
				zap.String("expert", expert.roleName), zap.Int("round", round), zap.Error(err))
			continue
		}
		question = strings.TrimSpace(question)

		answer, err := expert.answerWithEvidence(ctx, types.UtterancePotentialAnswer, question, "", history)
		if err != nil {
			w.logger.Warn("interview round skipped",
				zap.String("expert", expert.roleName), zap.Int("round", round), zap.Error(err))
			continue
		}

		history.Append(types.ConversationTurn{
			Role:          "Interviewer",
			UtteranceType: types.UtteranceOriginalQuestion,
			RawUtterance:  question,
			Utterance:     question,
			ClaimToMake:   question,
		})
		history.Append(answer)
	}
}

// SeedKnowledgeBase places every cited fact from the history into the
// knowledge base, node creation allowed. Facts sharing a retrieval
// intent share one placement decision.
func SeedKnowledgeBase(ctx context.Context, kb *mindmap.KnowledgeBase, inserter *mindmap.Inserter, history *ConversationHistory) error {
	var cited []types.Information
	for _, turn := range history.Turns() {
		cited = append(cited, turn.CitedInfo...)
	}
	return InsertCited(ctx, kb, inserter, cited)
}

// InsertCited places a batch of cited facts into the knowledge base
// with node creation allowed.
func InsertCited(ctx context.Context, kb *mindmap.KnowledgeBase, inserter *mindmap.Inserter, cited []types.Information) error {
	if len(cited) == 0 {
		return nil
	}
	cited = retrieval.Deduplicate(cited)

	// One placement decision per distinct intent.
	var intents []types.Intent
	byIntent := make(map[string]int)
	groups := make([][]types.Information, 0)
	for _, info := range cited {
		key := info.Meta.String()
		pos, ok := byIntent[key]
		if !ok {
			pos = len(intents)
			byIntent[key] = pos
			intents = append(intents, info.Meta)
			groups = append(groups, nil)
		}
		groups[pos] = append(groups[pos], info)
	}

	placements, err := inserter.PlaceAll(ctx, kb, intents, mindmap.PlaceOptions{AllowCreate: true})
	if err != nil {
		return fmt.Errorf("placing cited information: %w", err)
	}
	for i, placement := range placements {
		for _, info := range groups[i] {
			if _, err := kb.InsertInformation(placement.Path, info, true); err != nil {
				return fmt.Errorf("inserting cited information: %w", err)
			}
		}
	}
	return nil
}
