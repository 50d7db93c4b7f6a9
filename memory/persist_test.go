package memory_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fablemill/reverie/memory"
	"github.com/fablemill/reverie/memory/embedder/mock"
)

func TestPersistLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "saves", "memories.json")
	emb := mock.New()

	store := memory.New(emb, &memory.Config{
		PruneThreshold: 0.1,
		Path:           path,
		Clock:          fixedClock(t0.Add(time.Hour)),
	})

	ep := episodic("mem_rescue", "npc_1", 0.9, 0.05, t0)
	ep.Text = "the player saved me from bandits"
	ep.Location = "forest_road"
	ep.Participants = []string{"player", "npc_1"}
	ep.Emotion = memory.EmotionGratitude
	if err := store.Add(ctx, ep); err != nil {
		t.Fatal(err)
	}

	fact := semantic("mem_thief", memory.OwnerAll, 0.7, t0.Add(time.Minute))
	fact.Text = "the player is known as a thief"
	fact.FactType = memory.FactReputation
	fact.Subject = "player"
	fact.Source = "market gossip"
	if err := store.Add(ctx, fact); err != nil {
		t.Fatal(err)
	}

	if err := store.Persist(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after a successful save")
	}

	reloaded := memory.New(emb, &memory.Config{
		PruneThreshold: 0.1,
		Path:           path,
		Clock:          fixedClock(t0.Add(time.Hour)),
	})
	skipped, err := reloaded.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}

	got, ok := reloaded.Get("mem_rescue")
	if !ok {
		t.Fatal("mem_rescue missing after reload")
	}
	rescue, ok := got.(*memory.Episodic)
	if !ok {
		t.Fatalf("mem_rescue reloaded as %T", got)
	}
	if rescue.Importance != 0.9 || rescue.DecayRate != 0.05 {
		t.Errorf("importance/decay = %v/%v, want 0.9/0.05", rescue.Importance, rescue.DecayRate)
	}
	if rescue.Emotion != memory.EmotionGratitude || rescue.Location != "forest_road" {
		t.Errorf("emotion/location changed across the round trip")
	}
	if !rescue.CreatedAt.Equal(t0) {
		t.Errorf("created_at = %v, want %v", rescue.CreatedAt, t0)
	}
	if len(rescue.Embedding) != emb.Dimensions() {
		t.Errorf("embedding not persisted: %d dims, want %d", len(rescue.Embedding), emb.Dimensions())
	}

	got, ok = reloaded.Get("mem_thief")
	if !ok {
		t.Fatal("mem_thief missing after reload")
	}
	thief := got.(*memory.Semantic)
	if thief.Confidence != 0.7 || thief.FactType != memory.FactReputation || thief.Subject != "player" {
		t.Errorf("semantic fields changed across the round trip")
	}

	// The similarity index is rebuilt too: the shared fact is reachable
	// from any owner's query.
	results, err := reloaded.RetrieveBySimilarity(ctx, "thief reputation", "npc_2", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Record.Head().ID != "mem_thief" {
		t.Errorf("shared record not retrievable after reload: %+v", results)
	}
}

func TestLoad_SkipsMalformedRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memories.json")

	// One good record surrounded by three bad ones: an unknown kind, a
	// missing owner, and a duplicate of the good id.
	data := `{
  "memories": [
    {"id": "mem_ok", "kind": "episodic", "text": "met the blacksmith", "owner_id": "npc_1", "created_at": "2026-03-01T12:00:00Z", "importance": 0.5, "emotion": "neutral", "decay_rate": 0.1},
    {"id": "mem_bad1", "kind": "procedural", "text": "how to fish", "owner_id": "npc_1", "created_at": "2026-03-01T12:00:00Z"},
    {"id": "mem_bad2", "kind": "semantic", "text": "ownerless fact", "created_at": "2026-03-01T12:00:00Z", "confidence": 0.5},
    {"id": "mem_ok", "kind": "episodic", "text": "met the blacksmith again", "owner_id": "npc_1", "created_at": "2026-03-01T13:00:00Z", "importance": 0.5, "emotion": "neutral", "decay_rate": 0.1}
  ]
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	store := memory.New(nil, &memory.Config{Path: path, Clock: fixedClock(t0)})
	skipped, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if skipped != 3 {
		t.Errorf("skipped = %d, want 3", skipped)
	}
	if st := store.Stats(); st.Total != 1 {
		t.Errorf("loaded %d records, want 1", st.Total)
	}
	rec, ok := store.Get("mem_ok")
	if !ok {
		t.Fatal("the valid record was not loaded")
	}
	if !strings.HasSuffix(rec.Head().Text, "blacksmith") {
		t.Error("duplicate id replaced the first occurrence; first wins")
	}
}

func TestLoad_MissingFileLeavesStoreEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nothing-here.json")
	store := memory.New(nil, &memory.Config{Path: path, Clock: fixedClock(t0)})

	skipped, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("a missing save file is not an error: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if st := store.Stats(); st.Total != 0 {
		t.Errorf("store has %d records, want 0", st.Total)
	}
}

func TestLoad_CorruptFilePreservesInMemoryState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memories.json")
	if err := os.WriteFile(path, []byte("{ not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := memory.New(nil, &memory.Config{Path: path, Clock: fixedClock(t0.Add(time.Hour))})
	if err := store.Add(ctx, episodic("mem_live", "npc_1", 0.8, 0.1, t0)); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load(ctx); err == nil {
		t.Fatal("expected an error for a corrupt save file")
	}
	if _, ok := store.Get("mem_live"); !ok {
		t.Error("a failed load must not discard the in-memory state")
	}
}

func TestPersistLoad_RequirePath(t *testing.T) {
	store := memory.New(nil, &memory.Config{Clock: fixedClock(t0)})
	if err := store.Persist(); err == nil {
		t.Error("Persist without a configured path should fail")
	}
	if _, err := store.Load(context.Background()); err == nil {
		t.Error("Load without a configured path should fail")
	}
}

func TestLoad_ReplacesExistingContents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memories.json")

	saved := memory.New(nil, &memory.Config{Path: path, Clock: fixedClock(t0.Add(time.Hour))})
	if err := saved.Add(ctx, episodic("mem_saved", "npc_1", 0.8, 0.1, t0)); err != nil {
		t.Fatal(err)
	}
	if err := saved.Persist(); err != nil {
		t.Fatal(err)
	}

	store := memory.New(nil, &memory.Config{Path: path, Clock: fixedClock(t0.Add(time.Hour))})
	if err := store.Add(ctx, episodic("mem_stale", "npc_1", 0.8, 0.1, t0)); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get("mem_stale"); ok {
		t.Error("pre-load contents survived; Load replaces the session's memory")
	}
	if _, ok := store.Get("mem_saved"); !ok {
		t.Error("saved record missing after load")
	}
}
