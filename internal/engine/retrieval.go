package engine

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/lazypower/marginalia/internal/store"
)

// hopDecay is the per-hop attenuation for spreading activation. A hop-1
// neighbor inherits 60% of the product of source activation and edge weight;
// hop-2 compounds to 36%. Chosen so a strong seed (0.4+) over a strong edge
// (0.8+) still clears typical strong-memory floors at hop 1, while hop-2
// memories act as context rather than evidence.
const hopDecay = 0.6

// seedCount is how many top-similarity memories seed the spread.
const seedCount = 5

// minSpreadActivation drops neighbors whose propagated activation is noise.
const minSpreadActivation = 0.01

// Reinforcement boosts applied when hebbian updates run.
const (
	memoryBoost     = 0.05
	connectionBoost = 0.02
)

// diversifyOverlap is the bigram-Jaccard threshold above which two retrieved
// memories count as the same topic cluster.
const diversifyOverlap = 0.8

// Options controls retrieval behavior.
type Options struct {
	MaxMemories int    // cap on returned memories (default 10)
	MaxHops     int    // spread depth, 0 through 2; 0 returns seeds only
	ContactID   string // filter to memories associated with a contact (empty = all)
	SkipHebbian bool   // skip reinforcement writes (latency-sensitive callers)
	Diversify   bool   // suppress near-duplicate memories in the result
}

func (o Options) maxMemories() int {
	if o.MaxMemories <= 0 {
		return 10
	}
	return o.MaxMemories
}

func (o Options) maxHops() int {
	if o.MaxHops < 0 {
		return 0
	}
	if o.MaxHops > 2 {
		return 2
	}
	return o.MaxHops
}

// ScoredMemory is a retrieved memory annotated with its activation and the
// smallest hop at which it was reached (0 = direct similarity match).
type ScoredMemory struct {
	Memory     store.Memory `json:"memory"`
	Activation float64      `json:"activation"`
	Hop        int          `json:"hop"`
}

// Result is the ephemeral output of one retrieval.
type Result struct {
	Memories     []ScoredMemory      `json:"memories"`
	Implications []store.Implication `json:"implications"`
	Connections  []store.Connection  `json:"connections"`
}

// TopScores returns the highest and second-highest activation in the result.
func (r *Result) TopScores() (top, second float64) {
	if len(r.Memories) > 0 {
		top = r.Memories[0].Activation
	}
	if len(r.Memories) > 1 {
		second = r.Memories[1].Activation
	}
	return top, second
}

// Retrieve runs activation-based retrieval for one query.
//
// Seed activation scores every embedded memory by cosine similarity to the
// query, weighted by memory strength. The top seeds then spread through
// typed connections up to MaxHops, each hop attenuated by edge weight and
// hopDecay. A memory reachable via multiple paths keeps its maximum
// activation and its smallest hop.
//
// An empty memory graph returns an empty result, not an error.
func (e *Engine) Retrieve(ctx context.Context, userID, query string, opts Options) (*Result, error) {
	if e.Embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}

	queryVec, err := e.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	memories, err := e.DB.ListMemories(userID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	if len(memories) == 0 {
		return &Result{}, nil
	}

	memByID := make(map[int64]store.Memory, len(memories))
	for _, m := range memories {
		if opts.ContactID != "" && !m.HasContact(opts.ContactID) {
			continue
		}
		memByID[m.ID] = m
	}

	vectors, err := e.DB.VectorsForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	// Hop-0 seeding: similarity × strength (strength capped at 1 so
	// activation stays comparable across reinforcement levels).
	type seed struct {
		id         int64
		activation float64
	}
	var seeds []seed
	for _, v := range vectors {
		m, ok := memByID[v.MemoryID]
		if !ok {
			continue
		}
		sim := CosineSimilarity(queryVec, v.Embedding)
		if sim <= 0 {
			continue
		}
		strength := m.Strength
		if strength > 1 {
			strength = 1
		}
		seeds = append(seeds, seed{id: m.ID, activation: sim * strength})
	}
	sort.Slice(seeds, func(i, j int) bool {
		return seeds[i].activation > seeds[j].activation
	})
	if len(seeds) > seedCount {
		seeds = seeds[:seedCount]
	}
	if len(seeds) == 0 {
		return &Result{}, nil
	}

	activation := make(map[int64]float64, len(seeds))
	hop := make(map[int64]int, len(seeds))
	for _, s := range seeds {
		activation[s.id] = s.activation
		hop[s.id] = 0
	}

	// Spreading activation: frontier by frontier, max activation wins,
	// smallest hop wins. Traversed edges are recorded for reinforcement
	// and for the trace.
	var traversed []store.Connection
	traversedIDs := make(map[int64]bool)

	frontier := make([]int64, 0, len(seeds))
	for _, s := range seeds {
		frontier = append(frontier, s.id)
	}

	for h := 1; h <= opts.maxHops(); h++ {
		if len(frontier) == 0 {
			break
		}
		conns, err := e.DB.ConnectionsForMemories(frontier)
		if err != nil {
			return nil, fmt.Errorf("load connections: %w", err)
		}

		var next []int64
		for _, c := range conns {
			for _, from := range []int64{c.MemoryA, c.MemoryB} {
				fromHop, seen := hop[from]
				if !seen || fromHop != h-1 {
					continue
				}
				to := c.Other(from)
				if _, ok := memByID[to]; !ok {
					continue
				}

				propagated := activation[from] * c.Weight * hopDecay
				if propagated < minSpreadActivation {
					continue
				}

				if propagated > activation[to] {
					activation[to] = propagated
				}
				if prev, seen := hop[to]; !seen {
					hop[to] = h
					next = append(next, to)
				} else if h < prev {
					hop[to] = h
				}
				if !traversedIDs[c.ID] {
					traversedIDs[c.ID] = true
					traversed = append(traversed, c)
				}
			}
		}
		frontier = next
	}

	scored := make([]ScoredMemory, 0, len(activation))
	for id, act := range activation {
		scored = append(scored, ScoredMemory{
			Memory:     memByID[id],
			Activation: act,
			Hop:        hop[id],
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Activation != scored[j].Activation {
			return scored[i].Activation > scored[j].Activation
		}
		return scored[i].Hop < scored[j].Hop
	})

	if opts.Diversify {
		scored = diversify(scored)
	}

	if len(scored) > opts.maxMemories() {
		scored = scored[:opts.maxMemories()]
	}

	retrievedIDs := make(map[int64]bool, len(scored))
	for _, s := range scored {
		retrievedIDs[s.Memory.ID] = true
	}

	// Implications whose source memories were retrieved, strongest first
	// (ListImplications already orders by strength).
	imps, err := e.DB.ListImplications(userID)
	if err != nil {
		return nil, fmt.Errorf("list implications: %w", err)
	}
	var surfaced []store.Implication
	for _, imp := range imps {
		if imp.SourcedBy(retrievedIDs) {
			surfaced = append(surfaced, imp)
		}
	}

	result := &Result{
		Memories:     scored,
		Implications: surfaced,
		Connections:  traversed,
	}

	// Hebbian reinforcement: fire together, wire together. Best-effort;
	// failures are logged and the results still return.
	if !opts.SkipHebbian {
		ids := make([]int64, 0, len(scored))
		for _, s := range scored {
			ids = append(ids, s.Memory.ID)
		}
		if err := e.DB.ReinforceMemories(ids, memoryBoost); err != nil {
			log.Printf("retrieve: reinforce memories: %v", err)
		}
		connIDs := make([]int64, 0, len(traversed))
		for _, c := range traversed {
			connIDs = append(connIDs, c.ID)
		}
		if err := e.DB.StrengthenConnections(connIDs, connectionBoost); err != nil {
			log.Printf("retrieve: strengthen connections: %v", err)
		}
	}

	return result, nil
}

// diversify suppresses near-duplicate memories so results span distinct
// topics instead of repeating one cluster. Earlier (higher-activation)
// entries win.
func diversify(scored []ScoredMemory) []ScoredMemory {
	var kept []ScoredMemory
	for _, s := range scored {
		dup := false
		for _, k := range kept {
			if store.NearIdentical(s.Memory.Content, k.Memory.Content, diversifyOverlap) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, s)
		}
	}
	return kept
}
