package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lazypower/marginalia/internal/engine"
	"github.com/lazypower/marginalia/internal/store"
	"github.com/spf13/cobra"
)

var (
	retrieveUser  string
	retrieveLimit int
	retrieveHops  int
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Retrieve memories by spreading activation",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetrieve,
}

func init() {
	retrieveCmd.Flags().StringVar(&retrieveUser, "user", "default", "user id")
	retrieveCmd.Flags().IntVar(&retrieveLimit, "limit", 10, "max memories")
	retrieveCmd.Flags().IntVar(&retrieveHops, "hops", 2, "spread depth (0 = seeds only)")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	db, err := openDefault()
	if err != nil {
		return err
	}
	defer db.Close()

	eng := engine.New(db)
	emb, err := engine.NewTFIDFEmbedder(db, 512)
	if err != nil {
		return fmt.Errorf("embedder init: %w", err)
	}
	eng.SetEmbedder(emb)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := eng.Retrieve(ctx, retrieveUser, args[0], engine.Options{
		MaxMemories: retrieveLimit,
		MaxHops:     retrieveHops,
		Diversify:   true,
	})
	if err != nil {
		return err
	}

	if len(result.Memories) == 0 {
		fmt.Println("no memories matched")
		return nil
	}
	for _, m := range result.Memories {
		fmt.Printf("%.3f [hop %d] (%s) %s\n", m.Activation, m.Hop, m.Memory.SourceDate, m.Memory.Content)
	}
	for _, imp := range result.Implications {
		fmt.Printf("  implication (%s): %s\n", imp.Type, imp.Content)
	}
	return nil
}

func openDefault() (*store.DB, error) {
	dbPath := os.Getenv("MARGINALIA_DB")
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
