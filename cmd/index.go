package cmd

import (
	"fmt"

	"github.com/ConfabulousDev/recall/pkg/indexer"
	"github.com/ConfabulousDev/recall/pkg/store"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Fully index all transcript and hook event files",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := resolvePaths()
		if err != nil {
			return err
		}

		db, err := store.Open(paths.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		transcripts, err := indexer.IndexAllTranscripts(db.Conn(), paths.ProjectsDir,
			func(path string, current, total, entries int) {
				fmt.Printf("[%d/%d] %s: %d lines\n", current, total, path, entries)
			})
		if err != nil {
			return err
		}

		hooks, err := indexer.IndexAllHookFiles(db.Conn(), paths.HooksDir,
			func(path string, current, total, entries int) {
				fmt.Printf("[%d/%d] %s: %d events\n", current, total, path, entries)
			})
		if err != nil {
			return err
		}

		correlation, err := indexer.CorrelateLinesToTurns(db.Conn())
		if err != nil {
			return err
		}

		fmt.Printf("Indexed %d lines from %d files, %d events from %d hook files\n",
			transcripts.LinesIndexed, transcripts.FilesIndexed,
			hooks.EventsIndexed, hooks.FilesIndexed)
		fmt.Printf("Correlated %d lines across %d sessions\n",
			correlation.Updated, correlation.Sessions)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Apply delta indexing to files that have grown",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := resolvePaths()
		if err != nil {
			return err
		}

		db, err := store.Open(paths.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		transcripts, err := indexer.UpdateTranscripts(db.Conn(), paths.ProjectsDir, nil)
		if err != nil {
			return err
		}

		hooks, err := indexer.UpdateHookIndex(db.Conn(), paths.HooksDir, nil)
		if err != nil {
			return err
		}

		if hooks.NewEvents > 0 {
			if _, err := indexer.CorrelateLinesToTurns(db.Conn()); err != nil {
				return err
			}
		}

		fmt.Printf("Checked %d transcript files (%d updated, %d new lines)\n",
			transcripts.FilesChecked, transcripts.FilesUpdated, transcripts.NewLines)
		fmt.Printf("Checked %d hook files (%d updated, %d new events)\n",
			hooks.FilesChecked, hooks.FilesUpdated, hooks.NewEvents)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(updateCmd)
}
