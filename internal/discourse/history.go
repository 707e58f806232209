// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package discourse implements the round-table discussion: the agents
// that speak, the turn-policy state machine that decides who speaks
// next, the moderator's unused-snippet ranking, and the warm-start
// bootstrapping phase.
package discourse

import (
	"fmt"
	"sync"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/roundtable/pkg/types"
)

// ConversationHistory is the ordered, append-only record of turns.
// Warm-start interview workers read and append concurrently, so every
// read-then-append is guarded by one lock.
type ConversationHistory struct {
	mu    sync.Mutex
	turns []types.ConversationTurn
}

// NewHistory creates an empty conversation history.
func NewHistory() *ConversationHistory {
	return &ConversationHistory{}
}

// Append adds a completed turn.
func (h *ConversationHistory) Append(turn types.ConversationTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
}

// Len returns the number of turns.
func (h *ConversationHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Turns returns a copy of all turns in order.
func (h *ConversationHistory) Turns() []types.ConversationTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.ConversationTurn(nil), h.turns...)
}

// LastTurn returns the most recent turn, if any.
func (h *ConversationHistory) LastTurn() (types.ConversationTurn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.turns) == 0 {
		return types.ConversationTurn{}, false
	}
	return h.turns[len(h.turns)-1], true
}

// LastN returns copies of the most recent n turns, oldest first.
func (h *ConversationHistory) LastN(n int) []types.ConversationTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > len(h.turns) {
		n = len(h.turns)
	}
	return append([]types.ConversationTurn(nil), h.turns[len(h.turns)-n:]...)
}

// historyDocument is the durable form of a conversation history.
type historyDocument struct {
	Turns []types.ConversationTurn `json:"turns" yaml:"turns"`
}

// MarshalYAML serializes the history to YAML bytes.
func (h *ConversationHistory) MarshalYAML() ([]byte, error) {
	data, err := yaml.Marshal(historyDocument{Turns: h.Turns()})
	if err != nil {
		return nil, fmt.Errorf("marshaling conversation history: %w", err)
	}
	return data, nil
}

// UnmarshalHistoryYAML reconstructs a conversation history from YAML bytes.
func UnmarshalHistoryYAML(data []byte) (*ConversationHistory, error) {
	var doc historyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing conversation history document: %w", err)
	}
	return &ConversationHistory{turns: doc.Turns}, nil
}
