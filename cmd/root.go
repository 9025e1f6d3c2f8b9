package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/ConfabulousDev/recall/pkg/config"
	"github.com/ConfabulousDev/recall/pkg/logger"
	"github.com/ConfabulousDev/recall/pkg/store"
	"github.com/spf13/cobra"
)

var dbPathFlag string

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Index and search your Claude Code sessions",
	Long: `Recall continuously indexes Claude Code transcript and hook event JSONL files
into a local sqlite database with full-text search and turn correlation.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Initialize logger for all commands (except --help which doesn't run this)
		logger.Init()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		// Close logger after all commands
		logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "database file path (default from RECALL_DB_PATH or ~/.recall/transcripts.db)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// resolvePaths applies the --db flag on top of the environment layout.
func resolvePaths() (config.Paths, error) {
	paths, err := config.Resolve()
	if err != nil {
		return paths, err
	}
	if dbPathFlag != "" {
		paths.DBPath = dbPathFlag
	}
	return paths, nil
}

// exitCode translates store error variants into process exit codes.
func exitCode(err error) int {
	var notFound *store.NotFoundError
	var mismatch *store.VersionMismatchError
	switch {
	case errors.As(err, &notFound):
		return 2
	case errors.Is(err, store.ErrNotInitialized):
		return 3
	case errors.As(err, &mismatch):
		return 4
	default:
		return 1
	}
}
