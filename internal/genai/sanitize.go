// Package genai: sanitization of raw model output before schema decoding.
package genai

import (
	"regexp"
	"strings"
)

// Models occasionally wrap JSON in markdown fences, prepend thinking tags, or
// append commentary after the closing brace. SanitizeModelOutput strips that
// wrapping and repairs common malformed-JSON artifacts so the result can be
// handed to a schema decoder.
var (
	thinkingTagRe = regexp.MustCompile(`(?s)<(?:think|thinking|reasoning)>.*?</(?:think|thinking|reasoning)>`)
	codeFenceRe   = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
)

// SanitizeModelOutput returns the JSON payload embedded in raw model text.
func SanitizeModelOutput(raw string) string {
	s := strings.TrimSpace(raw)

	s = thinkingTagRe.ReplaceAllString(s, "")

	// Prefer fenced content when present.
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	} else {
		// Drop anything outside the outermost JSON value, e.g. a leading
		// "Here is the analysis:" or trailing commentary.
		s = extractJSON(s)
	}

	s = removeTrailingCommas(s)

	return strings.TrimSpace(s)
}

// removeTrailingCommas drops commas that directly precede a closing brace or
// bracket. Commas inside JSON string values are left untouched, so valid
// free-text fields survive the repair byte for byte.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// extractJSON returns the first balanced JSON object or array in s, or s
// unchanged if none is found. Braces inside JSON strings are ignored.
func extractJSON(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return s
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
