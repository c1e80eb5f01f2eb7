package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lazypower/marginalia/internal/llm"
	"github.com/lazypower/marginalia/internal/store"
)

const (
	consolidationBatch   = 40
	consolidationTimeout = 60 * time.Second
)

// ConsolidationResult summarizes one consolidation run.
type ConsolidationResult struct {
	MemoriesExamined    int `json:"memories_examined"`
	ConnectionsCreated  int `json:"connections_created"`
	ImplicationsCreated int `json:"implications_created"`
	Rejected            int `json:"rejected"`
}

type proposedConnection struct {
	MemoryA int64   `json:"memory_a"`
	MemoryB int64   `json:"memory_b"`
	Type    string  `json:"type"`
	Weight  float64 `json:"weight"`
	Reason  string  `json:"reason"`
}

type proposedImplication struct {
	Content         string  `json:"content"`
	Type            string  `json:"type"`
	SourceMemoryIDs []int64 `json:"source_memory_ids"`
	Strength        float64 `json:"strength"`
}

// Consolidate asks the oracle to propose typed connections and
// implications over the user's recent memories, validates every
// proposal against the stored graph, and persists what survives.
// Oracle output is untrusted: bad ids, bad types, and out-of-range
// weights are counted and dropped, never stored.
func (in *Ingestor) Consolidate(ctx context.Context, userID string) (*ConsolidationResult, error) {
	memories, err := in.DB.ListRecentMemories(userID, consolidationBatch)
	if err != nil {
		return nil, fmt.Errorf("loading memories: %w", err)
	}
	result := &ConsolidationResult{MemoriesExamined: len(memories)}
	if len(memories) < 2 {
		return result, nil
	}

	known := make(map[int64]bool, len(memories))
	var block strings.Builder
	for _, m := range memories {
		known[m.ID] = true
		fmt.Fprintf(&block, "[id %d] (%s) %s\n", m.ID, m.SourceDate, m.Content)
	}

	cctx, cancel := context.WithTimeout(ctx, consolidationTimeout)
	defer cancel()
	raw, err := in.Oracle.Generate(cctx, llm.ConsolidationPrompt(block.String()))
	if err != nil {
		return nil, fmt.Errorf("consolidation oracle: %w", err)
	}

	var payload struct {
		Connections  []proposedConnection  `json:"connections"`
		Implications []proposedImplication `json:"implications"`
	}
	obj, ok := extractObject(raw)
	if !ok {
		return nil, fmt.Errorf("consolidation response contained no JSON")
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, fmt.Errorf("parsing consolidation response: %w", err)
	}

	for _, pc := range payload.Connections {
		if !known[pc.MemoryA] || !known[pc.MemoryB] || pc.MemoryA == pc.MemoryB {
			result.Rejected++
			continue
		}
		if !store.ValidConnectionTypes[pc.Type] || pc.Weight <= 0 || pc.Weight > 1 {
			result.Rejected++
			continue
		}
		c := store.Connection{
			MemoryA: pc.MemoryA, MemoryB: pc.MemoryB,
			Type: pc.Type, Weight: pc.Weight, Reason: pc.Reason,
		}
		if err := in.DB.CreateConnection(&c); err != nil {
			log.Printf("consolidation connection rejected: %v", err)
			result.Rejected++
			continue
		}
		result.ConnectionsCreated++
	}

	for _, pi := range payload.Implications {
		if !store.ValidImplicationTypes[pi.Type] || strings.TrimSpace(pi.Content) == "" {
			result.Rejected++
			continue
		}
		if pi.Strength <= 0 || pi.Strength > 1 {
			result.Rejected++
			continue
		}
		sources := pi.SourceMemoryIDs[:0]
		for _, id := range pi.SourceMemoryIDs {
			if known[id] {
				sources = append(sources, id)
			}
		}
		if len(sources) == 0 {
			result.Rejected++
			continue
		}
		imp := store.Implication{
			UserID: userID, Content: pi.Content, Type: pi.Type,
			DerivationOrder: 1, Strength: pi.Strength,
			SourceMemoryIDs: sources,
		}
		if err := in.DB.CreateImplication(&imp); err != nil {
			log.Printf("consolidation implication rejected: %v", err)
			result.Rejected++
			continue
		}
		result.ImplicationsCreated++
	}
	return result, nil
}

// extractObject mirrors the nudge parser's fence-tolerant JSON scan.
func extractObject(content string) (string, bool) {
	s := strings.TrimSpace(content)
	if strings.Contains(s, "```") {
		if i := strings.Index(s, "```json"); i >= 0 {
			s = s[i+len("```json"):]
		} else if i := strings.Index(s, "```"); i >= 0 {
			s = s[i+3:]
		}
		if i := strings.Index(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
