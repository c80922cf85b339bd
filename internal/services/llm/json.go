package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeJSON decodes the JSON object in a model response into target. Code
// fences and prose around the object are tolerated.
func DecodeJSON(content string, target any) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("empty payload")
	}
	object := ExtractJSONObject(content)
	if !strings.HasPrefix(object, "{") {
		return fmt.Errorf("no json object (payload snippet: %s)", snippet(content))
	}
	if err := json.Unmarshal([]byte(object), target); err != nil {
		return fmt.Errorf("%w (payload snippet: %s)", err, snippet(object))
	}
	return nil
}

// ExtractJSONObject returns the first balanced {...} object in content,
// skipping braces inside JSON strings. Receipts and letters often quote
// braces in the summary, so the first '{' to the last '}' is not enough.
// Content without an object is returned trimmed.
func ExtractJSONObject(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	start := strings.IndexByte(trimmed, '{')
	if start < 0 {
		return trimmed
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(trimmed); i++ {
		ch := trimmed[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return trimmed[start : i+1]
			}
		}
	}
	// Unterminated object; let the decoder report the error.
	return trimmed[start:]
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
