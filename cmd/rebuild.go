package cmd

import (
	"fmt"

	"github.com/ConfabulousDev/recall/pkg/backup"
	"github.com/ConfabulousDev/recall/pkg/indexer"
	"github.com/ConfabulousDev/recall/pkg/store"
	"github.com/spf13/cobra"
)

var skipBackup bool

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Drop the index and re-ingest everything from scratch",
	Long: `Rebuild snapshots the database to a compressed sibling file, drops all
data and full-text tables (the metadata table is kept), reinitializes the
schema at the current version, and runs a full index plus correlation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := resolvePaths()
		if err != nil {
			return err
		}

		if !skipBackup {
			snapshot, err := backup.Snapshot(paths.DBPath)
			if err != nil {
				return fmt.Errorf("backup before rebuild: %w", err)
			}
			if snapshot != "" {
				fmt.Printf("Backed up database to %s\n", snapshot)
			}
		}

		db, err := store.Open(paths.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Rebuild(); err != nil {
			return err
		}
		fmt.Println("Index cleared, re-ingesting...")

		transcripts, err := indexer.IndexAllTranscripts(db.Conn(), paths.ProjectsDir, nil)
		if err != nil {
			return err
		}
		hooks, err := indexer.IndexAllHookFiles(db.Conn(), paths.HooksDir, nil)
		if err != nil {
			return err
		}
		correlation, err := indexer.CorrelateLinesToTurns(db.Conn())
		if err != nil {
			return err
		}

		fmt.Printf("Rebuilt: %d lines, %d hook events, %d lines correlated\n",
			transcripts.LinesIndexed, hooks.EventsIndexed, correlation.Updated)
		return nil
	},
}

func init() {
	rebuildCmd.Flags().BoolVar(&skipBackup, "no-backup", false, "skip the compressed snapshot before dropping the index")
	rootCmd.AddCommand(rebuildCmd)
}
