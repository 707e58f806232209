// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// UtteranceType classifies the conversational role of a turn.
type UtteranceType string

const (
	UtteranceOriginalQuestion   UtteranceType = "Original Question"
	UtteranceInformationRequest UtteranceType = "Information Request"
	UtteranceFurtherDetails     UtteranceType = "Further Details"
	UtterancePotentialAnswer    UtteranceType = "Potential Answer"
	UtteranceSupport            UtteranceType = "Support"
	UtteranceQuestioning        UtteranceType = "Questioning"
)

// IsQuestioning reports whether the type asks for information rather
// than providing it.
func (u UtteranceType) IsQuestioning() bool {
	return u == UtteranceOriginalQuestion || u == UtteranceInformationRequest || u == UtteranceQuestioning
}

// ConversationTurn is one utterance in the discussion. A turn is
// created once per speaker invocation and is immutable after the
// polishing step; the conversation history is append-only.
type ConversationTurn struct {
	// Role is the speaker label (e.g. "Moderator", an expert role name).
	Role string `json:"role" yaml:"role"`

	// UtteranceType classifies the turn.
	UtteranceType UtteranceType `json:"utterance_type" yaml:"utterance_type"`

	// RawUtterance is the utterance before style polishing.
	RawUtterance string `json:"raw_utterance" yaml:"raw_utterance"`

	// Utterance is the polished utterance shown to participants. Equal
	// to RawUtterance when no polishing was requested.
	Utterance string `json:"utterance" yaml:"utterance"`

	// ClaimToMake is the question or claim this turn is answering.
	ClaimToMake string `json:"claim_to_make,omitempty" yaml:"claim_to_make,omitempty"`

	// Queries are the search queries issued while producing this turn.
	Queries []string `json:"queries,omitempty" yaml:"queries,omitempty"`

	// RawRetrievedInfo is everything retrieved for this turn, cited or not.
	RawRetrievedInfo []Information `json:"raw_retrieved_info,omitempty" yaml:"raw_retrieved_info,omitempty"`

	// CitedInfo is the subset of RawRetrievedInfo actually cited in the utterance.
	CitedInfo []Information `json:"cited_info,omitempty" yaml:"cited_info,omitempty"`
}
