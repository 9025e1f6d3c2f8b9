package cmd

import (
	"fmt"

	"github.com/ConfabulousDev/recall/pkg/store"
	"github.com/spf13/cobra"
)

var (
	sessionsDays  int64
	sessionsHooks bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [pattern]",
	Short: "List indexed sessions",
	Args:  cobra.MaximumNArgs(1),
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

		if sessionsHooks {
			sessions, err := db.GetHookSessions(sessionsDays, false)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				name := ""
				if s.SessionName != nil {
					name = " (" + *s.SessionName + ")"
				}
				last := ""
				if s.LastTimestamp != nil {
					last = *s.LastTimestamp
				}
				fmt.Printf("%s%s  %d events  last %s\n", s.SessionID, name, s.EventCount, last)
			}
			return nil
		}

		var sessions []sessionRow
		if len(args) == 1 {
			found, err := db.FindSessions(args[0])
			if err != nil {
				return err
			}
			for _, s := range found {
				sessions = append(sessions, sessionRow{s.SessionID, s.Slug, s.LineCount, s.LastTimestamp})
			}
		} else {
			all, err := db.GetSessions(sessionsDays)
			if err != nil {
				return err
			}
			for _, s := range all {
				sessions = append(sessions, sessionRow{s.SessionID, s.Slug, s.LineCount, s.LastTimestamp})
			}
		}

		for _, s := range sessions {
			slug := ""
			if s.slug != nil {
				slug = " (" + *s.slug + ")"
			}
			last := ""
			if s.last != nil {
				last = *s.last
			}
			fmt.Printf("%s%s  %d lines  last %s\n", s.id, slug, s.lines, last)
		}
		return nil
	},
}

type sessionRow struct {
	id    string
	slug  *string
	lines int64
	last  *string
}

func init() {
	sessionsCmd.Flags().Int64Var(&sessionsDays, "days", 0, "only sessions active in the last N days")
	sessionsCmd.Flags().BoolVar(&sessionsHooks, "hooks", false, "list hook sessions instead of transcripts")
	rootCmd.AddCommand(sessionsCmd)
}
