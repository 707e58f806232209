// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discourse

import (
	"errors"

	"github.com/pdiddy/roundtable/pkg/types"
)

// ErrEmptyRoster is returned when the rotation path is reached with no
// experts. Callers must guarantee a non-empty roster once RAG-only and
// simulated-guest modes are excluded.
var ErrEmptyRoster = errors.New("expert roster is empty")

// DiscourseState is the explicit turn-policy state threaded through
// each turn call: the ordered expert rotation and the one-shot
// moderator override. NextTurnPolicy never mutates its input; it
// returns the successor state, so a dry run is side-effect free.
type DiscourseState struct {
	// Experts is the rotation roster, head speaks next.
	Experts []Agent

	// ModeratorOverride forces the moderator on the next policy request
	// and is consumed by it.
	ModeratorOverride bool
}

// TurnPolicySpec is the decision record for one turn: who speaks and
// what bookkeeping must follow. Not persisted.
type TurnPolicySpec struct {
	Agent Agent

	ShouldReorganizeKnowledgeBase bool
	ShouldUpdateExpertsList       bool
	ShouldPolishUtterance         bool
}

// PolicyRequest carries the per-call inputs to the turn policy.
type PolicyRequest struct {
	// SimulatedGuest, when set, takes the turn unconditionally.
	SimulatedGuest Agent

	// LastTurns is the recent conversation, oldest first. Only the tail
	// up to the moderator-check window is consulted.
	LastTurns []types.ConversationTurn
}

// Manager evaluates the turn policy. The policy itself is a pure
// function of (state, request); Manager only carries the fixed agents
// and configuration it selects among.
type Manager struct {
	cfg       types.DiscourseConfig
	moderator Agent
	ragAgent  Agent
	general   Agent
}

// NewManager builds a Manager. Default moderator check window: 3 turns.
func NewManager(cfg types.DiscourseConfig, moderator, ragAgent, general Agent) *Manager {
	if cfg.ModeratorCheckTurns <= 0 {
		cfg.ModeratorCheckTurns = 3
	}
	return &Manager{cfg: cfg, moderator: moderator, ragAgent: ragAgent, general: general}
}

// NextTurnPolicy decides who speaks next, in order:
//
//  1. A simulated guest, when the request names one.
//  2. The baseline retrieval-only agent, in RAG-only mode.
//  3. The moderator, when the last N turns were all non-questioning
//     and moderation is enabled; the knowledge base is reorganized
//     after such a turn.
//  4. The moderator, when the one-shot override is set (consumed).
//  5. The general knowledge provider when the previous turn asked a
//     question; otherwise the head of the expert rotation, which moves
//     to the tail.
//
// The returned state is the successor; the input state is never
// modified, so calling twice with the same inputs yields the same
// decision.
func (m *Manager) NextTurnPolicy(state DiscourseState, req PolicyRequest) (TurnPolicySpec, DiscourseState, error) {
	if req.SimulatedGuest != nil {
		return TurnPolicySpec{Agent: req.SimulatedGuest}, state, nil
	}

	if m.cfg.RAGOnly {
		return TurnPolicySpec{Agent: m.ragAgent}, state, nil
	}

	if m.cfg.EnableModerator && m.allRecentNonQuestioning(req.LastTurns) {
		return TurnPolicySpec{
			Agent:                         m.moderator,
			ShouldReorganizeKnowledgeBase: true,
		}, state, nil
	}

	if state.ModeratorOverride {
		next := state
		next.ModeratorOverride = false
		return TurnPolicySpec{Agent: m.moderator}, next, nil
	}

	if n := len(req.LastTurns); n > 0 && req.LastTurns[n-1].UtteranceType.IsQuestioning() {
		return TurnPolicySpec{Agent: m.general}, state, nil
	}

	if len(state.Experts) == 0 {
		return TurnPolicySpec{}, state, ErrEmptyRoster
	}

	next := state
	next.Experts = append(append([]Agent(nil), state.Experts[1:]...), state.Experts[0])
	return TurnPolicySpec{
		Agent:                   state.Experts[0],
		ShouldUpdateExpertsList: true,
		ShouldPolishUtterance:   true,
	}, next, nil
}

// allRecentNonQuestioning reports whether the moderator check window is
// full of non-questioning turns.
func (m *Manager) allRecentNonQuestioning(turns []types.ConversationTurn) bool {
	n := m.cfg.ModeratorCheckTurns
	if len(turns) < n {
		return false
	}
	for _, t := range turns[len(turns)-n:] {
		if t.UtteranceType.IsQuestioning() {
			return false
		}
	}
	return true
}
