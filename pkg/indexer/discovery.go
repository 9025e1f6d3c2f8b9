package indexer

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// hookSuffix distinguishes hook event files from transcripts.
const hookSuffix = ".hooks.jsonl"

// FindTranscriptFiles returns all transcript JSONL files under dir
// (excluding *.hooks.jsonl), sorted for deterministic iteration order.
func FindTranscriptFiles(dir string) []string {
	return findFiles(dir, func(name string) bool {
		return strings.HasSuffix(name, ".jsonl") && !strings.HasSuffix(name, hookSuffix)
	})
}

// FindHookFiles returns all *.hooks.jsonl files under dir, sorted.
func FindHookFiles(dir string) []string {
	return findFiles(dir, func(name string) bool {
		return strings.HasSuffix(name, hookSuffix)
	})
}

func findFiles(dir string, match func(name string) bool) []string {
	var files []string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: skip it, keep walking the rest
			return nil
		}
		if !d.IsDir() && match(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files
}
