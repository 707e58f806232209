// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discourse

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/roundtable/pkg/types"
)

func sampleHistory() *ConversationHistory {
	h := NewHistory()
	h.Append(types.ConversationTurn{
		Role:          "Moderator",
		UtteranceType: types.UtteranceOriginalQuestion,
		RawUtterance:  "How did solar power become viable?",
		Utterance:     "How did solar power become viable?",
		ClaimToMake:   "How did solar power become viable?",
	})
	h.Append(types.ConversationTurn{
		Role:          "Economist",
		UtteranceType: types.UtterancePotentialAnswer,
		RawUtterance:  "Panel prices fell sharply [1].",
		Utterance:     "Well, panel prices fell sharply [1].",
		ClaimToMake:   "How did solar power become viable?",
		Queries:       []string{"solar panel price history"},
		RawRetrievedInfo: []types.Information{
			{URL: "http://a", Title: "a", Snippets: []string{"prices fell", "subsidies helped"}},
		},
		CitedInfo: []types.Information{
			{URL: "http://a", Title: "a", Snippets: []string{"prices fell", "subsidies helped"}},
		},
	})
	h.Append(types.ConversationTurn{
		Role:          "Guest",
		UtteranceType: types.UtteranceQuestioning,
		RawUtterance:  "But is it reliable at night?",
		Utterance:     "But is it reliable at night?",
	})
	h.Append(types.ConversationTurn{
		Role:          "Engineer",
		UtteranceType: types.UtteranceFurtherDetails,
		RawUtterance:  "Storage is the bottleneck.",
		Utterance:     "Storage is the bottleneck.",
		Queries:       []string{"grid storage capacity"},
		RawRetrievedInfo: []types.Information{
			{URL: "http://b", Title: "b", Snippets: []string{"batteries are scarce"}},
		},
		// Retrieved but cited nothing.
	})
	h.Append(types.ConversationTurn{
		Role:          "Economist",
		UtteranceType: types.UtteranceSupport,
		RawUtterance:  "Agreed.",
		Utterance:     "Agreed.",
	})
	return h
}

func TestHistoryRoundTripYAML(t *testing.T) {
	h := sampleHistory()
	require.GreaterOrEqual(t, h.Len(), 5)

	data, err := h.MarshalYAML()
	require.NoError(t, err)

	restored, err := UnmarshalHistoryYAML(data)
	require.NoError(t, err)

	assert.Equal(t, h.Turns(), restored.Turns())

	// The turn with retrieved-but-uncited material survives as such.
	turns := restored.Turns()
	assert.NotEmpty(t, turns[3].RawRetrievedInfo)
	assert.Empty(t, turns[3].CitedInfo)
}

func TestHistoryLastN(t *testing.T) {
	h := sampleHistory()

	last2 := h.LastN(2)
	require.Len(t, last2, 2)
	assert.Equal(t, "Engineer", last2[0].Role)
	assert.Equal(t, "Economist", last2[1].Role)

	assert.Len(t, h.LastN(100), h.Len())
	assert.Empty(t, NewHistory().LastN(3))
}

func TestHistoryConcurrentAppend(t *testing.T) {
	h := NewHistory()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Append(types.ConversationTurn{Role: fmt.Sprintf("worker-%d", i)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, h.Len())
}
