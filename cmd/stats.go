package cmd

import (
	"fmt"

	"github.com/ConfabulousDev/recall/pkg/store"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := resolvePaths()
		if err != nil {
			return err
		}

		db, err := store.OpenRead(paths.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats()
		if err != nil {
			return err
		}

		fmt.Printf("Database:     %s (%s)\n", stats.DBPath, stats.FormatSize())
		fmt.Printf("Schema:       v%d\n", stats.Version)
		fmt.Printf("Lines:        %d\n", stats.LineCount)
		fmt.Printf("Sessions:     %d\n", stats.SessionCount)
		fmt.Printf("Hook events:  %d\n", stats.HookEventCount)
		if stats.LastIndexed != "" {
			fmt.Printf("Last indexed: %s\n", stats.LastIndexed)
		} else {
			fmt.Println("Last indexed: never")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
