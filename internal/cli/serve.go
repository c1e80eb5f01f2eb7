package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lazypower/marginalia/internal/config"
	"github.com/lazypower/marginalia/internal/engine"
	"github.com/lazypower/marginalia/internal/ingest"
	"github.com/lazypower/marginalia/internal/llm"
	"github.com/lazypower/marginalia/internal/nudge"
	"github.com/lazypower/marginalia/internal/server"
	"github.com/lazypower/marginalia/internal/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	applyEnvOverrides(&cfg)

	// Resolve database path
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	eng := engine.New(db)
	eng.StartDecayTimer()
	defer eng.Stop()

	// Oracle is required for nudging and consolidation; retrieval and
	// ingestion still work without one.
	var oracle llm.Oracle
	client, err := llm.NewClient(cfg.Oracle)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: oracle not configured (%v), nudging disabled\n", err)
		oracle = nil
	} else {
		oracle = llm.NewOracle(client)
		fmt.Fprintf(os.Stderr, "  oracle: %s (%s)\n", cfg.Oracle.Provider, cfg.Oracle.Model)
	}

	configureEmbedder(db, eng, cfg.Oracle)

	rollout := config.NewRolloutPolicy(cfg.Rollout)
	pipeline := nudge.New(db, eng, oracle, rollout)
	ingestor := ingest.New(db, eng, oracle)

	srv := server.New(db, eng, pipeline, ingestor, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "marginalia serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

// applyEnvOverrides layers environment configuration over the defaults.
func applyEnvOverrides(cfg *config.Config) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.Oracle.Provider = "anthropic"
		cfg.Oracle.AnthropicKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Oracle.AnthropicKey == "" {
		cfg.Oracle.Provider = "openai"
		cfg.Oracle.OpenAIKey = key
	}
	if v := os.Getenv("MARGINALIA_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MARGINALIA_NUDGE_USERS"); v != "" {
		cfg.Rollout.EnabledUsers = splitList(v)
	}
	if v := os.Getenv("MARGINALIA_SHADOW_USERS"); v != "" {
		cfg.Rollout.ShadowUsers = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// configureEmbedder prefers a local ollama embedding model and falls back
// to TF-IDF over the stored corpus.
func configureEmbedder(db *store.DB, eng *engine.Engine, cfg config.OracleConfig) {
	ollamaURL := cfg.OllamaURL
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = "nomic-embed-text"
	}

	if engine.ProbeOllama(ollamaURL, embeddingModel) {
		eng.SetEmbedder(engine.NewOllamaEmbedder(ollamaURL, embeddingModel, 768))
		fmt.Fprintf(os.Stderr, "  embedder: ollama (%s)\n", embeddingModel)
	} else {
		emb, err := engine.NewTFIDFEmbedder(db, 512)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: tfidf embedder init failed: %v\n", err)
			return
		}
		eng.SetEmbedder(emb)
		fmt.Fprintf(os.Stderr, "  embedder: tfidf (fallback)\n")
	}

	// Embed any memories missing vectors
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		users, err := db.ListUserIDs()
		if err != nil {
			fmt.Fprintf(os.Stderr, "embed missing: %v\n", err)
			return
		}
		total := 0
		for _, u := range users {
			n, err := eng.EmbedMissing(ctx, u)
			if err != nil {
				fmt.Fprintf(os.Stderr, "embed missing for %s: %v\n", u, err)
				continue
			}
			total += n
		}
		if total > 0 {
			fmt.Fprintf(os.Stderr, "  embedded %d missing memories\n", total)
		}
	}()
}
