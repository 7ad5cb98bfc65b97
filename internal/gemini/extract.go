package gemini

import (
	"encoding/json"
	"regexp"
)

var (
	jsonFencePattern = regexp.MustCompile("(?i)```(?:json)?\\n([\\s\\S]*?)```")
	jsonBracePattern = regexp.MustCompile(`\{[\s\S]*\}`)
)

// ExtractJSONBlock pulls a JSON object out of free-form model output. A
// fenced code block wins; otherwise the first outer {...} span is tried.
// Returns nil on any parse failure — callers fall back to heuristic
// classification instead of treating this as fatal.
func ExtractJSONBlock(raw string) map[string]any {
	jsonText := raw
	if m := jsonFencePattern.FindStringSubmatch(raw); m != nil {
		jsonText = m[1]
	}
	if m := jsonBracePattern.FindString(jsonText); m != "" {
		jsonText = m
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return nil
	}
	return parsed
}
