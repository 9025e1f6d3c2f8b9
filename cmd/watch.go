package cmd

import (
	"context"

	"github.com/ConfabulousDev/recall/pkg/indexer"
	"github.com/ConfabulousDev/recall/pkg/logger"
	"github.com/ConfabulousDev/recall/pkg/store"
	"github.com/ConfabulousDev/recall/pkg/watcher"
	"github.com/spf13/cobra"
)

var catchUp bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the indexing daemon",
	Long: `Watch tails the transcript and hook directories, applies delta indexing as
files grow, and re-runs turn correlation whenever new hook events arrive.
Runs until interrupted.`,
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

		logger.Get().SetAlsoStderr(true)

		if catchUp {
			// Bring the index current before tailing
			if _, err := indexer.UpdateTranscripts(db.Conn(), paths.ProjectsDir, nil); err != nil {
				return err
			}
			if _, err := indexer.UpdateHookIndex(db.Conn(), paths.HooksDir, nil); err != nil {
				return err
			}
			if _, err := indexer.CorrelateLinesToTurns(db.Conn()); err != nil {
				return err
			}
		}

		w := watcher.New(db, paths.ProjectsDir, paths.HooksDir)
		return w.Run(context.Background())
	},
}

func init() {
	watchCmd.Flags().BoolVar(&catchUp, "catch-up", true, "run a delta pass before starting to tail")
	rootCmd.AddCommand(watchCmd)
}
