package engine

import (
	"context"
	"testing"

	"github.com/lazypower/marginalia/internal/store"
)

// stubEmbedder returns canned vectors keyed by exact text.
type stubEmbedder struct {
	vecs map[string][]float64
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := s.vecs[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 0}, nil
}

func (s *stubEmbedder) Model() string   { return "stub" }
func (s *stubEmbedder) Dimensions() int { return 3 }

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mkMemory(t *testing.T, db *store.DB, content, date string) *store.Memory {
	t.Helper()
	m := &store.Memory{UserID: "u1", Content: content, Source: store.SourceJournal, SourceDate: date}
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	return m
}

func connect(t *testing.T, db *store.DB, a, b int64, weight float64) *store.Connection {
	t.Helper()
	c := &store.Connection{MemoryA: a, MemoryB: b, Type: "thematic", Weight: weight}
	if err := db.CreateConnection(c); err != nil {
		t.Fatalf("CreateConnection: %v", err)
	}
	return c
}

// Graph fixture: query matches A exactly; B and C are only reachable by
// spreading over edges A-B (0.9) and B-C (0.5).
func spreadingFixture(t *testing.T) (*Engine, *store.DB, [3]*store.Memory) {
	db := testDB(t)

	a := mkMemory(t, db, "training for the spring marathon", "2026-06-01")
	b := mkMemory(t, db, "knee started aching after long runs", "2026-07-10")
	c := mkMemory(t, db, "physical therapist recommended rest", "2026-07-20")

	if err := db.SaveVector(a.ID, []float64{1, 0, 0}, "stub"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}
	connect(t, db, a.ID, b.ID, 0.9)
	connect(t, db, b.ID, c.ID, 0.5)

	eng := New(db)
	eng.SetEmbedder(&stubEmbedder{vecs: map[string][]float64{
		"marathon query": {1, 0, 0},
	}})
	return eng, db, [3]*store.Memory{a, b, c}
}

func TestRetrieveSpreadsActivation(t *testing.T) {
	eng, _, mems := spreadingFixture(t)

	result, err := eng.Retrieve(context.Background(), "u1", "marathon query", Options{MaxHops: 2, SkipHebbian: true})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Memories) != 3 {
		t.Fatalf("got %d memories, want 3", len(result.Memories))
	}

	// Seed: sim 1.0 × strength 1.0
	if result.Memories[0].Memory.ID != mems[0].ID {
		t.Errorf("top memory = %d, want seed %d", result.Memories[0].Memory.ID, mems[0].ID)
	}
	assertClose(t, "seed activation", result.Memories[0].Activation, 1.0)
	if result.Memories[0].Hop != 0 {
		t.Errorf("seed hop = %d, want 0", result.Memories[0].Hop)
	}

	// Hop 1: 1.0 × 0.9 × 0.6
	assertClose(t, "hop-1 activation", result.Memories[1].Activation, 0.54)
	if result.Memories[1].Hop != 1 {
		t.Errorf("hop = %d, want 1", result.Memories[1].Hop)
	}

	// Hop 2: 0.54 × 0.5 × 0.6
	assertClose(t, "hop-2 activation", result.Memories[2].Activation, 0.162)
	if result.Memories[2].Hop != 2 {
		t.Errorf("hop = %d, want 2", result.Memories[2].Hop)
	}

	if len(result.Connections) != 2 {
		t.Errorf("traversed %d connections, want 2", len(result.Connections))
	}
}

func TestRetrieveMaxHopsLimitsSpread(t *testing.T) {
	eng, _, _ := spreadingFixture(t)

	result, err := eng.Retrieve(context.Background(), "u1", "marathon query", Options{MaxHops: 1, SkipHebbian: true})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Memories) != 2 {
		t.Errorf("got %d memories with MaxHops 1, want 2", len(result.Memories))
	}
}

func TestRetrieveZeroHopsReturnsSeedsOnly(t *testing.T) {
	eng, _, mems := spreadingFixture(t)

	result, err := eng.Retrieve(context.Background(), "u1", "marathon query", Options{MaxHops: 0, SkipHebbian: true})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Memories) != 1 {
		t.Fatalf("got %d memories with MaxHops 0, want the seed only", len(result.Memories))
	}
	if result.Memories[0].Memory.ID != mems[0].ID {
		t.Errorf("seed = %d, want %d", result.Memories[0].Memory.ID, mems[0].ID)
	}
	if len(result.Connections) != 0 {
		t.Errorf("traversed %d connections without spreading", len(result.Connections))
	}
}

func TestRetrieveEmptyGraph(t *testing.T) {
	db := testDB(t)
	eng := New(db)
	eng.SetEmbedder(&stubEmbedder{vecs: map[string][]float64{}})

	result, err := eng.Retrieve(context.Background(), "u1", "anything at all", Options{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Memories) != 0 {
		t.Errorf("got %d memories, want 0", len(result.Memories))
	}
}

func TestRetrieveHebbianReinforcement(t *testing.T) {
	eng, db, mems := spreadingFixture(t)

	// SkipHebbian leaves the graph untouched.
	if _, err := eng.Retrieve(context.Background(), "u1", "marathon query", Options{MaxHops: 2, SkipHebbian: true}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	got, err := db.GetMemory(mems[0].ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.ActivationCount != 0 {
		t.Fatalf("SkipHebbian wrote reinforcement: count = %d", got.ActivationCount)
	}

	// A normal retrieve reinforces retrieved memories and traversed edges.
	if _, err := eng.Retrieve(context.Background(), "u1", "marathon query", Options{MaxHops: 2}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	got, err = db.GetMemory(mems[0].ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.ActivationCount != 1 {
		t.Errorf("ActivationCount = %d, want 1", got.ActivationCount)
	}
	if got.Strength <= 1.0 {
		t.Errorf("Strength = %v, want > 1.0 after reinforcement", got.Strength)
	}

	conns, err := db.ConnectionsForMemories([]int64{mems[0].ID})
	if err != nil {
		t.Fatalf("ConnectionsForMemories: %v", err)
	}
	if conns[0].Weight <= 0.9 {
		t.Errorf("edge weight = %v, want > 0.9 after reinforcement", conns[0].Weight)
	}
}

func TestRetrieveSurfacesImplications(t *testing.T) {
	eng, db, mems := spreadingFixture(t)

	imp := &store.Implication{
		UserID:          "u1",
		Content:         "pushing mileage without rest leads to injury",
		Type:            "predictive",
		Strength:        0.9,
		SourceMemoryIDs: []int64{mems[1].ID},
	}
	if err := db.CreateImplication(imp); err != nil {
		t.Fatalf("CreateImplication: %v", err)
	}
	unrelated := mkMemory(t, db, "bought new headphones", "2026-08-01")
	other := &store.Implication{
		UserID: "u1", Content: "spending more on gadgets lately",
		Type: "behavioral", Strength: 0.5, SourceMemoryIDs: []int64{unrelated.ID},
	}
	if err := db.CreateImplication(other); err != nil {
		t.Fatalf("CreateImplication: %v", err)
	}

	result, err := eng.Retrieve(context.Background(), "u1", "marathon query", Options{MaxHops: 2, SkipHebbian: true})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Implications) != 1 {
		t.Fatalf("got %d implications, want 1", len(result.Implications))
	}
	if result.Implications[0].Type != "predictive" {
		t.Errorf("surfaced wrong implication: %q", result.Implications[0].Content)
	}
}

func TestRetrieveDiversifySuppressesNearDuplicates(t *testing.T) {
	db := testDB(t)

	a := mkMemory(t, db, "spent the whole afternoon repotting the tomato seedlings", "2026-05-01")
	b := mkMemory(t, db, "spent the whole afternoon repotting the tomato seedling", "2026-05-02")
	if err := db.SaveVector(a.ID, []float64{1, 0, 0}, "stub"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}
	if err := db.SaveVector(b.ID, []float64{0.9, 0.1, 0}, "stub"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	eng := New(db)
	eng.SetEmbedder(&stubEmbedder{vecs: map[string][]float64{
		"garden query": {1, 0, 0},
	}})

	result, err := eng.Retrieve(context.Background(), "u1", "garden query", Options{Diversify: true, SkipHebbian: true})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Memories) != 1 {
		t.Fatalf("got %d memories, want 1 after diversify", len(result.Memories))
	}
	if result.Memories[0].Memory.ID != a.ID {
		t.Error("diversify kept the lower-activation duplicate")
	}

	// Without diversify both come back.
	result, err = eng.Retrieve(context.Background(), "u1", "garden query", Options{SkipHebbian: true})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Memories) != 2 {
		t.Errorf("got %d memories without diversify, want 2", len(result.Memories))
	}
}

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}
