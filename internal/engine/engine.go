package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lazypower/marginalia/internal/store"
)

// Engine owns retrieval over the memory graph: seed scoring, spreading
// activation, hebbian reinforcement, and strength decay.
type Engine struct {
	DB       *store.DB
	Embedder Embedder
	stopCh   chan struct{}
}

// New creates a new Engine.
func New(db *store.DB) *Engine {
	return &Engine{
		DB:     db,
		stopCh: make(chan struct{}),
	}
}

// SetEmbedder configures the embedding provider.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
}

// EmbedMemory generates and stores an embedding for a single memory.
func (e *Engine) EmbedMemory(ctx context.Context, m *store.Memory) error {
	if e.Embedder == nil {
		return nil
	}
	if m.Content == "" {
		return nil
	}

	vec, err := e.Embedder.Embed(ctx, m.Content)
	if err != nil {
		return fmt.Errorf("embed memory %d: %w", m.ID, err)
	}
	return e.DB.SaveVector(m.ID, vec, e.Embedder.Model())
}

// EmbedMissing embeds all memories that don't have a vector or whose model differs.
func (e *Engine) EmbedMissing(ctx context.Context, userID string) (int, error) {
	if e.Embedder == nil {
		return 0, nil
	}

	memories, err := e.DB.ListMemories(userID)
	if err != nil {
		return 0, fmt.Errorf("list memories: %w", err)
	}

	embedded := 0
	for i := range memories {
		if memories[i].Content == "" {
			continue
		}

		existing, err := e.DB.GetVector(memories[i].ID)
		if err != nil {
			log.Printf("embed missing: get vector for %d: %v", memories[i].ID, err)
			continue
		}
		if existing != nil && existing.Model == e.Embedder.Model() {
			continue
		}

		if err := e.EmbedMemory(ctx, &memories[i]); err != nil {
			log.Printf("embed missing: %v", err)
			continue
		}
		embedded++
	}

	return embedded, nil
}

// StartDecayTimer runs strength decay on startup and then daily.
// Decay is the counterweight to hebbian reinforcement: memories that are
// never retrieved fade toward the floor but are never deleted.
func (e *Engine) StartDecayTimer() {
	if updated, err := e.DB.DecayAllMemories(); err != nil {
		log.Printf("decay error: %v", err)
	} else if updated > 0 {
		log.Printf("decay: updated %d memories", updated)
	}

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if updated, err := e.DB.DecayAllMemories(); err != nil {
					log.Printf("decay error: %v", err)
				} else if updated > 0 {
					log.Printf("decay: updated %d memories", updated)
				}
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	close(e.stopCh)
}
