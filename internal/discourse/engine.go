// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discourse

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/pdiddy/roundtable/internal/embed"
	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/internal/mindmap"
	"github.com/pdiddy/roundtable/internal/retrieval"
	"github.com/pdiddy/roundtable/pkg/types"
)

// Engine drives a discussion session: it evaluates the turn policy,
// runs the selected agent, and folds each successful turn's citations
// into the knowledge base.
type Engine struct {
	topic   string
	cfg     types.DiscourseConfig
	gen     llm.StructuredGenerator
	kb      *mindmap.KnowledgeBase
	history *ConversationHistory
	manager *Manager
	state   DiscourseState

	inserter *mindmap.Inserter
	expander *mindmap.Expander
	reporter *mindmap.Reporter
	warm     *WarmStart

	logger *zap.Logger
}

// NewEngine wires a session for one topic. The roster starts empty;
// WarmStart fills it.
func NewEngine(topic string, gen llm.StructuredGenerator, embedder embed.Embedder, retriever retrieval.Retriever, cfg types.DiscourseConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	kb := mindmap.New(topic)
	inserter := mindmap.NewInserter(gen, embedder, cfg, logger)
	moderator := NewModerator(topic, gen, embedder, cfg, logger)
	ragAgent := NewPureRAGAgent(topic, gen, retriever, logger)
	general := NewGeneralKnowledgeProvider(topic, gen, retriever, logger)

	return &Engine{
		topic:    topic,
		cfg:      cfg,
		gen:      gen,
		kb:       kb,
		history:  NewHistory(),
		manager:  NewManager(cfg, moderator, ragAgent, general),
		inserter: inserter,
		expander: mindmap.NewExpander(gen, inserter, cfg, logger),
		reporter: mindmap.NewReporter(gen, cfg, logger),
		warm:     NewWarmStart(topic, gen, retriever, inserter, cfg, logger),
		logger:   logger,
	}
}

// KnowledgeBase returns the session's knowledge base.
func (e *Engine) KnowledgeBase() *mindmap.KnowledgeBase { return e.kb }

// History returns the session's conversation history.
func (e *Engine) History() *ConversationHistory { return e.history }

// WarmStart bootstraps the expert roster and seeds the knowledge base.
func (e *Engine) WarmStart(ctx context.Context) error {
	roster, err := e.warm.Run(ctx, e.kb, e.history)
	if err != nil {
		return fmt.Errorf("warm start: %w", err)
	}
	e.state.Experts = roster
	e.logger.Info("warm start complete",
		zap.Int("experts", len(roster)),
		zap.Int("turns", e.history.Len()),
		zap.Int("citations", e.kb.CitationCount()))
	return nil
}

// SetExperts replaces the rotation roster.
func (e *Engine) SetExperts(experts []Agent) {
	e.state.Experts = experts
}

// RequestModerator sets the one-shot moderator override for the next turn.
func (e *Engine) RequestModerator() {
	e.state.ModeratorOverride = true
}

// Step runs one turn: pick the speaker, produce the utterance, then
// apply the turn's side effects. A guest agent, when non-nil, takes
// the turn. No knowledge-base mutation happens before the utterance is
// fully produced; a failed turn leaves the session as if it never ran.
func (e *Engine) Step(ctx context.Context, guest Agent) (types.ConversationTurn, error) {
	req := PolicyRequest{
		SimulatedGuest: guest,
		LastTurns:      e.history.LastN(e.manager.cfg.ModeratorCheckTurns + 1),
	}

	policy, nextState, err := e.manager.NextTurnPolicy(e.state, req)
	if err != nil {
		return types.ConversationTurn{}, err
	}

	turn, err := policy.Agent.GenerateUtterance(ctx, e.kb, e.history)
	if err != nil {
		return types.ConversationTurn{}, fmt.Errorf("turn by %s: %w", policy.Agent.Role(), err)
	}

	if policy.ShouldPolishUtterance {
		if err := Polish(ctx, e.gen, &turn); err != nil {
			return types.ConversationTurn{}, err
		}
	}

	// The turn succeeded; commit it and fold in its citations.
	e.state = nextState
	e.history.Append(turn)

	if err := InsertCited(ctx, e.kb, e.inserter, turn.CitedInfo); err != nil {
		return turn, err
	}
	if err := e.expander.ExpandAll(ctx, e.kb); err != nil {
		return turn, fmt.Errorf("expanding knowledge base: %w", err)
	}
	if policy.ShouldReorganizeKnowledgeBase {
		if err := e.kb.Reorganize(ctx, e.gen); err != nil {
			return turn, fmt.Errorf("reorganizing knowledge base: %w", err)
		}
	}

	e.logger.Info("turn complete",
		zap.String("role", turn.Role),
		zap.String("type", string(turn.UtteranceType)),
		zap.Int("cited", len(turn.CitedInfo)),
		zap.Int("citations", e.kb.CitationCount()))
	return turn, nil
}

// WriteReport emits the session report.
func (e *Engine) WriteReport(ctx context.Context, w io.Writer) error {
	return e.reporter.WriteReport(ctx, e.kb, w)
}
