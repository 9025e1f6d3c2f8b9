// Package config resolves the filesystem layout of the indexer: where the
// Claude Code JSONL sources live and where the database file goes. The log
// directory is not resolved here; pkg/logger reads RECALL_LOG_DIR itself.
// Everything is overridable via environment variables so tests and
// non-standard installations can redirect the whole pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Environment variable names for path overrides.
const (
	// DBPathEnv overrides the database file location.
	DBPathEnv = "RECALL_DB_PATH"
	// ClaudeDirEnv overrides the Claude state directory (~/.claude).
	ClaudeDirEnv = "RECALL_CLAUDE_DIR"
	// ProjectsDirEnv overrides the transcript source directory.
	ProjectsDirEnv = "RECALL_PROJECTS_DIR"
	// HooksDirEnv overrides the hook event source directory.
	HooksDirEnv = "RECALL_HOOKS_DIR"
)

// envOverrides holds raw values read from the environment. Empty fields fall
// back to the conventional per-user locations.
type envOverrides struct {
	DBPath      string `env:"RECALL_DB_PATH"`
	ClaudeDir   string `env:"RECALL_CLAUDE_DIR"`
	ProjectsDir string `env:"RECALL_PROJECTS_DIR"`
	HooksDir    string `env:"RECALL_HOOKS_DIR"`
}

// Paths is the resolved filesystem layout used by the indexer and readers.
type Paths struct {
	// DBPath is the sqlite database file.
	DBPath string
	// ProjectsDir holds transcript *.jsonl files (recursively).
	ProjectsDir string
	// HooksDir holds *.hooks.jsonl files (recursively).
	HooksDir string
}

// Resolve builds the path layout from the environment, falling back to
// ~/.claude/projects, ~/.claude/hooks, and ~/.recall/transcripts.db.
func Resolve() (Paths, error) {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return Paths{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	claudeDir := overrides.ClaudeDir
	if claudeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		claudeDir = filepath.Join(home, ".claude")
	}

	p := Paths{
		DBPath:      overrides.DBPath,
		ProjectsDir: overrides.ProjectsDir,
		HooksDir:    overrides.HooksDir,
	}

	if p.ProjectsDir == "" {
		p.ProjectsDir = filepath.Join(claudeDir, "projects")
	}
	if p.HooksDir == "" {
		p.HooksDir = filepath.Join(claudeDir, "hooks")
	}
	if p.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		p.DBPath = filepath.Join(home, ".recall", "transcripts.db")
	}

	return p, nil
}
