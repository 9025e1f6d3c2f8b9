// Package extract pulls the searchable text out of parsed transcript entries.
// The result feeds the full-text index; everything else in a record stays in
// the trimmed raw column.
package extract

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// maxToolResultBytes limits how much of a tool_result block is indexed.
const maxToolResultBytes = 1000

// maxInputValueChars limits which tool_use input values are indexed.
// Longer values are almost always file contents or payloads, not intent.
const maxInputValueChars = 500

// SearchableText extracts the text that feeds FTS from a parsed transcript
// entry.
//
// Handles:
//   - message.content (string or array of content blocks)
//   - text blocks -> text field
//   - tool_use blocks -> "[Tool: name]" plus short input key/value pairs
//   - tool_result blocks -> first 1000 bytes of content
//   - top-level summary field
//   - data.text field
//
// Parts are joined with newlines.
func SearchableText(parsed map[string]interface{}) string {
	var parts []string

	if message, ok := parsed["message"].(map[string]interface{}); ok {
		switch content := message["content"].(type) {
		case string:
			parts = append(parts, content)
		case []interface{}:
			for _, block := range content {
				blockMap, ok := block.(map[string]interface{})
				if !ok {
					continue
				}
				blockType, _ := blockMap["type"].(string)
				switch blockType {
				case "text":
					if text, ok := blockMap["text"].(string); ok {
						parts = append(parts, text)
					}
				case "tool_use":
					if name, ok := blockMap["name"].(string); ok {
						parts = append(parts, fmt.Sprintf("[Tool: %s]", name))
					}
					if input, ok := blockMap["input"].(map[string]interface{}); ok {
						// Sorted keys keep extraction deterministic
						keys := make([]string, 0, len(input))
						for key := range input {
							keys = append(keys, key)
						}
						sort.Strings(keys)
						for _, key := range keys {
							if s, ok := input[key].(string); ok && len(s) < maxInputValueChars {
								parts = append(parts, fmt.Sprintf("%s: %s", key, s))
							}
						}
					}
				case "tool_result":
					if content, ok := blockMap["content"].(string); ok {
						parts = append(parts, TruncateUTF8(content, maxToolResultBytes))
					}
				}
			}
		}
	}

	if summary, ok := parsed["summary"].(string); ok {
		parts = append(parts, summary)
	}

	if data, ok := parsed["data"].(map[string]interface{}); ok {
		if text, ok := data["text"].(string); ok {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n")
}

// TruncateUTF8 truncates a string to at most maxBytes without splitting a
// multi-byte character. The result is always a valid UTF-8 prefix of s.
func TruncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	end := maxBytes
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}
