package engine

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	jsonFencePattern  = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	plainFencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*(.*?)```")
)

// ExtractJSON finds the JSON object in a model response. Candidates are
// tried in this order: ```json fences, any other fences, every balanced
// top-level {...} span, and finally the span from the first '{' to the last
// '}'. The first candidate that decodes to an object wins.
func ExtractJSON(text string) (map[string]any, error) {
	var lastErr error
	for _, candidate := range jsonCandidates(text) {
		var obj map[string]any
		err := json.Unmarshal([]byte(candidate), &obj)
		if err == nil && obj != nil {
			return obj, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("response contains no JSON object")
	}
	return nil, &ResponseParseError{Raw: text, Err: lastErr}
}

func jsonCandidates(text string) []string {
	var out []string
	for _, m := range jsonFencePattern.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	for _, m := range plainFencePattern.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	out = append(out, balancedObjects(text)...)
	if first, last := strings.Index(text, "{"), strings.LastIndex(text, "}"); first >= 0 && last > first {
		out = append(out, text[first:last+1])
	}
	return out
}

// balancedObjects returns every top-level brace-balanced span of text.
// Braces inside JSON string literals are not counted.
func balancedObjects(text string) []string {
	var (
		spans    []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}
	return spans
}
