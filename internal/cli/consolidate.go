package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lazypower/marginalia/internal/config"
	"github.com/lazypower/marginalia/internal/engine"
	"github.com/lazypower/marginalia/internal/ingest"
	"github.com/lazypower/marginalia/internal/llm"
	"github.com/spf13/cobra"
)

var consolidateUser string

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Propose connections and implications over recent memories",
	RunE:  runConsolidate,
}

func init() {
	consolidateCmd.Flags().StringVar(&consolidateUser, "user", "default", "user id")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.Oracle.AnthropicKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Oracle.AnthropicKey == "" {
		cfg.Oracle.Provider = "openai"
		cfg.Oracle.OpenAIKey = key
	}

	client, err := llm.NewClient(cfg.Oracle)
	if err != nil {
		return fmt.Errorf("oracle not configured: %w", err)
	}

	db, err := openDefault()
	if err != nil {
		return err
	}
	defer db.Close()

	eng := engine.New(db)
	in := ingest.New(db, eng, llm.NewOracle(client))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := in.Consolidate(ctx, consolidateUser)
	if err != nil {
		return err
	}
	fmt.Printf("examined %d memories: %d connections, %d implications, %d rejected\n",
		result.MemoriesExamined, result.ConnectionsCreated, result.ImplicationsCreated, result.Rejected)
	return nil
}
