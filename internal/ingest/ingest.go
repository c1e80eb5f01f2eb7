// Package ingest turns raw journal entries into stored memories and,
// via consolidation, into typed connections and implications between
// them.
package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/lazypower/marginalia/internal/engine"
	"github.com/lazypower/marginalia/internal/llm"
	"github.com/lazypower/marginalia/internal/store"
)

const (
	// minChunkWords drops fragments too small to be a memory.
	minChunkWords = 4
	// duplicateThreshold is the bigram overlap above which an incoming
	// chunk is considered a restatement of an existing memory.
	duplicateThreshold = 0.85
	// dedupeWindow bounds how many recent memories are compared.
	dedupeWindow = 200
)

// Ingestor writes new memories and their embeddings.
type Ingestor struct {
	DB     *store.DB
	Engine *engine.Engine
	Oracle llm.Oracle
}

func New(db *store.DB, eng *engine.Engine, oracle llm.Oracle) *Ingestor {
	return &Ingestor{DB: db, Engine: eng, Oracle: oracle}
}

// EntryRequest is one raw journal entry (or calendar/interaction note)
// to be split into memories.
type EntryRequest struct {
	UserID     string   `json:"user_id"`
	Content    string   `json:"content"`
	Source     string   `json:"source"`      // journal, calendar, interaction
	SourceDate string   `json:"source_date"` // YYYY-MM-DD
	ContactIDs []string `json:"contact_ids,omitempty"`
}

// IngestEntry chunks an entry into paragraph-level memories, skips
// near-duplicates of recent memories, stores the rest, and embeds
// them. Returns the created memories.
func (in *Ingestor) IngestEntry(ctx context.Context, req EntryRequest) ([]store.Memory, error) {
	if req.Source == "" {
		req.Source = store.SourceJournal
	}
	chunks := Chunk(req.Content)
	if len(chunks) == 0 {
		return nil, nil
	}

	recent, err := in.DB.ListRecentMemories(req.UserID, dedupeWindow)
	if err != nil {
		return nil, fmt.Errorf("loading recent memories: %w", err)
	}

	var created []store.Memory
	for _, chunk := range chunks {
		if isDuplicate(chunk, recent, created) {
			continue
		}
		m := store.Memory{
			UserID:     req.UserID,
			Content:    chunk,
			Source:     req.Source,
			SourceDate: req.SourceDate,
			ContactIDs: req.ContactIDs,
		}
		if err := in.DB.CreateMemory(&m); err != nil {
			return created, fmt.Errorf("storing memory: %w", err)
		}
		// Embedding is best-effort: a memory without a vector is still
		// reachable once EmbedMissing catches up.
		if err := in.Engine.EmbedMemory(ctx, &m); err != nil {
			log.Printf("embed memory %d: %v", m.ID, err)
		}
		created = append(created, m)
	}
	return created, nil
}

// Chunk splits entry text into memory-sized pieces on blank lines,
// dropping fragments too short to carry meaning.
func Chunk(content string) []string {
	var chunks []string
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if len(strings.Fields(block)) < minChunkWords {
			continue
		}
		chunks = append(chunks, block)
	}
	return chunks
}

func isDuplicate(chunk string, recent []store.Memory, created []store.Memory) bool {
	for _, m := range recent {
		if store.NearIdentical(chunk, m.Content, duplicateThreshold) {
			return true
		}
	}
	for _, m := range created {
		if store.NearIdentical(chunk, m.Content, duplicateThreshold) {
			return true
		}
	}
	return false
}
