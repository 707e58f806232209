// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"context"
	"reflect"
	"testing"

	"github.com/pdiddy/roundtable/internal/mindmap"
	"github.com/pdiddy/roundtable/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(types.SessionConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTurns() []types.ConversationTurn {
	return []types.ConversationTurn{
		{
			Role:          "Moderator",
			UtteranceType: types.UtteranceOriginalQuestion,
			RawUtterance:  "How did solar become cheap?",
			Utterance:     "How did solar become cheap?",
		},
		{
			Role:          "Economist",
			UtteranceType: types.UtterancePotentialAnswer,
			RawUtterance:  "Manufacturing scaled up [1].",
			Utterance:     "Manufacturing scaled up [1].",
			Queries:       []string{"solar manufacturing scale"},
			CitedInfo: []types.Information{
				{URL: "http://a", Title: "a", Snippets: []string{"polysilicon output grew tenfold"}},
			},
		},
	}
}

func TestStore_CreateGetList(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "Solar Power")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" {
		t.Fatal("expected a session ID")
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Topic != "Solar Power" {
		t.Errorf("topic = %q, want %q", got.Topic, "Solar Power")
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != rec.ID {
		t.Errorf("List = %+v, want the one created session", records)
	}
}

func TestStore_GetMissingSession(t *testing.T) {
	store := testStore(t)
	if _, err := store.Get(context.Background(), "no-such-id"); err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestStore_TurnsRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "Solar Power")
	if err != nil {
		t.Fatal(err)
	}

	turns := sampleTurns()
	if err := store.SaveTurns(ctx, rec.ID, turns); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadTurns(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(turns, loaded) {
		t.Errorf("loaded turns differ:\ngot  %+v\nwant %+v", loaded, turns)
	}

	// Saving again replaces, never appends.
	if err := store.SaveTurns(ctx, rec.ID, turns[:1]); err != nil {
		t.Fatal(err)
	}
	loaded, err = store.LoadTurns(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Errorf("after re-save, len = %d, want 1", len(loaded))
	}
}

func TestStore_KnowledgeBaseRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "Solar Power")
	if err != nil {
		t.Fatal(err)
	}

	kb := mindmap.New("Solar Power")
	kb.EnsurePath([]string{"Background"})
	if _, err := kb.InsertInformation([]string{"Background"},
		types.Information{URL: "http://a", Title: "a", Snippets: []string{"s1"}}, false); err != nil {
		t.Fatal(err)
	}

	if err := store.SaveKnowledgeBase(ctx, rec.ID, kb); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadKnowledgeBase(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(kb.ToDocument(), loaded.ToDocument()) {
		t.Error("loaded knowledge base differs from saved")
	}
}

func TestStore_SearchTurns(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "Solar Power")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveTurns(ctx, rec.ID, sampleTurns()); err != nil {
		t.Fatal(err)
	}

	// Matches text that appears only in a cited snippet.
	hits, err := store.SearchTurns(ctx, "polysilicon", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].SessionID != rec.ID || hits[0].Role != "Economist" || hits[0].Seq != 1 {
		t.Errorf("unexpected hit: %+v", hits[0])
	}

	hits, err = store.SearchTurns(ctx, "geothermal", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %d, want 0", len(hits))
	}
}

func TestStore_DeleteCascades(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "Solar Power")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveTurns(ctx, rec.ID, sampleTurns()); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}

	turns, err := store.LoadTurns(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("turns survived session deletion: %d", len(turns))
	}
}
