// Package llm - util.go provides shared utilities for LLM response processing.
package llm

import "strings"

// CleanJSONBlock extracts the JSON payload from an LLM response. It removes
// markdown code block wrappers (```json ... ```), which models often add even
// when instructed not to, and strips any conversational preamble or trailing
// text around the first complete JSON value.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	// Handle ```json ... ``` blocks
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	// Handle generic ``` ... ``` blocks
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip potential language identifier on first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	// Already bare JSON, possibly with trailing chatter
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		if extracted := extractJSONValue(text); extracted != "" {
			return extracted
		}
		return text
	}

	// Conversational preamble before the JSON value
	if idx := strings.IndexAny(text, "{["); idx >= 0 {
		if extracted := extractJSONValue(text[idx:]); extracted != "" {
			return extracted
		}
	}

	return text
}

// extractJSONValue returns the first balanced JSON object or array in text,
// or "" if the brackets never balance. String literals and escapes are
// honored so braces inside values do not confuse the scan.
func extractJSONValue(text string) string {
	if text == "" {
		return ""
	}

	open := text[0]
	var closing byte
	switch open {
	case '{':
		closing = '}'
	case '[':
		closing = ']'
	default:
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}

	return ""
}
