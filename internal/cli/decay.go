package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run memory strength decay once",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDefault()
		if err != nil {
			return err
		}
		defer db.Close()

		updated, err := db.DecayAllMemories()
		if err != nil {
			return err
		}
		fmt.Printf("decayed %d memories\n", updated)
		return nil
	},
}
