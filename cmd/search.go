package cmd

import (
	"fmt"
	"strings"

	"github.com/ConfabulousDev/recall/pkg/store"
	"github.com/spf13/cobra"
)

var (
	searchSession string
	searchLimit   int64
	searchHooks   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over indexed lines or hook events",
	Args:  cobra.MinimumNArgs(1),
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

		query := strings.Join(args, " ")

		if searchHooks {
			events, err := db.SearchHookEvents(query, searchLimit)
			if err != nil {
				return err
			}
			for _, e := range events {
				tool := ""
				if e.ToolName != nil {
					tool = " " + *e.ToolName
				}
				fmt.Printf("%s  %s%s  (session %s, line %d)\n",
					e.Timestamp, e.EventType, tool, e.SessionID, e.LineNumber)
			}
			return nil
		}

		sessionID := ""
		if searchSession != "" {
			resolved, err := db.ResolveSession(searchSession)
			if err != nil {
				return err
			}
			if resolved == nil {
				return fmt.Errorf("no session matching %q", searchSession)
			}
			sessionID = resolved.SessionID
		}

		lines, err := db.SearchLines(query, searchLimit, sessionID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			content := ""
			if l.Content != nil {
				content = *l.Content
			}
			if len(content) > 120 {
				content = content[:120] + "..."
			}
			fmt.Printf("%s  [%s] %s:%d  %s\n", l.Timestamp, l.Type, l.SessionID, l.LineNumber, content)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchSession, "session", "", "restrict to one session (id, slug, or name)")
	searchCmd.Flags().Int64Var(&searchLimit, "limit", 20, "maximum results")
	searchCmd.Flags().BoolVar(&searchHooks, "hooks", false, "search hook events instead of transcript lines")
	rootCmd.AddCommand(searchCmd)
}
