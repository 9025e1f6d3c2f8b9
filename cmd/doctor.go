package cmd

import (
	"fmt"
	"os"

	"github.com/ConfabulousDev/recall/pkg/indexer"
	"github.com/ConfabulousDev/recall/pkg/peek"
	"github.com/ConfabulousDev/recall/pkg/store"
	"github.com/spf13/cobra"
)

type check struct {
	name    string
	passed  bool
	details string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the indexing pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := resolvePaths()
		if err != nil {
			return err
		}

		var checks []check

		// Database file exists
		_, statErr := os.Stat(paths.DBPath)
		dbExists := statErr == nil
		checks = append(checks, check{
			name:    "Database file",
			passed:  dbExists,
			details: locatedAt(dbExists, paths.DBPath),
		})

		// Database can be opened at the expected version
		var db *store.ReadDB
		if dbExists {
			db, err = store.OpenRead(paths.DBPath)
			checks = append(checks, check{
				name:    "Database opens",
				passed:  err == nil,
				details: openDetails(err),
			})
		}
		if db != nil {
			defer db.Close()

			checks = append(checks, check{
				name:    "FTS tables",
				passed:  hasFTSTables(db),
				details: "lines_fts and hook_events_fts",
			})

			if sessions, err := db.GetSessions(7); err == nil {
				checks = append(checks, check{
					name:    "Has data",
					passed:  len(sessions) > 0,
					details: fmt.Sprintf("%d sessions in last 7 days", len(sessions)),
				})
			}

			checks = append(checks, cursorFreshness(db, paths.ProjectsDir))
		}

		// Source directories
		_, err = os.Stat(paths.ProjectsDir)
		checks = append(checks, check{
			name:    "Transcript source",
			passed:  err == nil,
			details: locatedAt(err == nil, paths.ProjectsDir),
		})
		_, err = os.Stat(paths.HooksDir)
		checks = append(checks, check{
			name:    "Hook source",
			passed:  err == nil,
			details: locatedAt(err == nil, paths.HooksDir),
		})

		allPassed := true
		for _, c := range checks {
			status := "ok  "
			if !c.passed {
				status = "FAIL"
				allPassed = false
			}
			fmt.Printf("  %s %s - %s\n", status, c.name, c.details)
		}

		if !allPassed {
			fmt.Println("\nSome checks failed")
			if !dbExists {
				fmt.Println("To fix: run `recall index`")
			} else if db == nil {
				fmt.Println("To fix: run `recall rebuild`")
			}
			os.Exit(1)
		}
		fmt.Println("\nAll checks passed")
		return nil
	},
}

func locatedAt(found bool, path string) string {
	if found {
		return fmt.Sprintf("found at %s", path)
	}
	return fmt.Sprintf("not found at %s", path)
}

func openDetails(err error) string {
	if err == nil {
		return "successfully opened"
	}
	return err.Error()
}

func hasFTSTables(db *store.ReadDB) bool {
	var count int
	db.Conn().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('lines_fts', 'hook_events_fts')",
	).Scan(&count)
	return count == 2
}

// cursorFreshness compares stored cursors against on-disk file sizes and the
// newest tail timestamps, flagging files the daemon has fallen behind on.
func cursorFreshness(db *store.ReadDB, projectsDir string) check {
	stale := 0
	files := indexer.FindTranscriptFiles(projectsDir)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		var offset int64
		if err := db.Conn().QueryRow(
			"SELECT byte_offset FROM sessions WHERE file_path = ?", file,
		).Scan(&offset); err != nil {
			stale++
			continue
		}
		if offset < info.Size() {
			stale++
			if ts := peek.LastTimestamp(file); ts != "" {
				fmt.Printf("       behind: %s (last activity %s)\n", file, ts)
			}
		}
	}
	return check{
		name:    "Cursors current",
		passed:  stale == 0,
		details: fmt.Sprintf("%d of %d files behind", stale, len(files)),
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
