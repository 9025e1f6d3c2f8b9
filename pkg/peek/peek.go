// Package peek reads the tail of JSONL files without scanning them from the
// front. The doctor command uses it to compare on-disk freshness against
// stored cursors.
package peek

import (
	"encoding/json"
	"io"
	"os"

	"github.com/icza/backscanner"
)

// maxLinesToSearch bounds how far back we look for a usable timestamp.
const maxLinesToSearch = 10

// LastTimestamp returns the timestamp of the most recent record in a JSONL
// file, scanning backwards from the end. Returns "" when the file is empty,
// unreadable, or its last lines carry no timestamp field.
func LastTimestamp(filePath string) string {
	f, err := os.Open(filePath)
	if err != nil {
		return ""
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.Size() == 0 {
		return ""
	}

	scanner := backscanner.New(f, int(fi.Size()))

	for i := 0; i < maxLinesToSearch; i++ {
		line, _, err := scanner.Line()
		if err != nil {
			// io.EOF means we reached the start of the file
			if err == io.EOF {
				break
			}
			return ""
		}

		var msg map[string]interface{}
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}

		if ts, ok := msg["timestamp"].(string); ok && ts != "" {
			return ts
		}
	}

	return ""
}
