// Package trim bounds the stored size of raw JSON columns by deep-walking
// parsed value trees and replacing oversized string leaves with previews.
// Full content remains accessible in the original JSONL files via
// file_path + line_number.
//
// Rules:
//   - TodoWrite and Task tool inputs are preserved in full (they carry semantics)
//   - "prompt" field values are never trimmed (user input must stay searchable)
//   - Trimmed strings get suffix: " [trimmed from N chars]"
//   - JSON structure is always preserved
package trim

import (
	"encoding/json"
	"fmt"

	"github.com/ConfabulousDev/recall/pkg/extract"
)

const (
	// previewLength is the maximum length of a trimmed preview.
	previewLength = 500

	// LargeThreshold marks strings that are candidates for trimming.
	LargeThreshold = 1024

	// HandlerThreshold is the higher limit for handler results
	// (usually small structured data).
	HandlerThreshold = 4096
)

// fullPayloadTools are tools whose input should be preserved in full.
var fullPayloadTools = map[string]bool{
	"TodoWrite": true,
	"Task":      true,
}

// fullPayloadFields are field names whose values are never trimmed.
var fullPayloadFields = map[string]bool{
	"prompt": true,
}

// Value deep-walks a parsed JSON value, trimming string leaves that exceed
// threshold bytes. Field names in fullPayloadFields pass through verbatim at
// any depth. Containers always recurse; numbers, booleans, and null are
// returned unchanged. Strings exactly at the threshold are not trimmed.
func Value(value interface{}, threshold int) interface{} {
	switch v := value.(type) {
	case string:
		if len(v) > threshold {
			preview := extract.TruncateUTF8(v, previewLength)
			return fmt.Sprintf("%s [trimmed from %d chars]", preview, len(v))
		}
		return v
	case map[string]interface{}:
		trimmed := make(map[string]interface{}, len(v))
		for key, val := range v {
			if fullPayloadFields[key] {
				trimmed[key] = val
			} else {
				trimmed[key] = Value(val, threshold)
			}
		}
		return trimmed
	case []interface{}:
		trimmed := make([]interface{}, len(v))
		for i, val := range v {
			trimmed[i] = Value(val, threshold)
		}
		return trimmed
	default:
		return value
	}
}

// InputJSON serializes a hook event input payload. If toolName is a
// full-payload tool the input is serialized untrimmed; otherwise large
// strings are trimmed at LargeThreshold.
func InputJSON(input interface{}, toolName string) string {
	if fullPayloadTools[toolName] {
		return marshal(input)
	}
	return marshal(Value(input, LargeThreshold))
}

// ContextJSON serializes a hook event context payload, always trimming
// large strings.
func ContextJSON(context interface{}) string {
	return marshal(Value(context, LargeThreshold))
}

// HandlerResults serializes handler results at the higher 4KB threshold.
func HandlerResults(results interface{}) string {
	return marshal(Value(results, HandlerThreshold))
}

// RawTranscriptLine serializes a parsed transcript line for the raw column,
// trimming large strings in message content, tool inputs, and the rest.
func RawTranscriptLine(parsed map[string]interface{}) string {
	return marshal(Value(parsed, LargeThreshold))
}

func marshal(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
