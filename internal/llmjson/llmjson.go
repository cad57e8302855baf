// Package llmjson pulls JSON documents out of free-form model replies.
package llmjson

import (
	"errors"
	"strings"
)

// ErrNoJSON is returned when a reply holds no complete JSON array or object
var ErrNoJSON = errors.New("no JSON found in response")

// Extract returns the first balanced JSON array or object in text. Markdown
// code fences are ignored and brackets inside string literals do not count.
func Extract(text string) (string, error) {
	text = stripFences(text)

	start := strings.IndexAny(text, "[{")
	for start >= 0 {
		if end := matchClose(text, start); end > start {
			return text[start : end+1], nil
		}
		next := strings.IndexAny(text[start+1:], "[{")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoJSON
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	return strings.ReplaceAll(text, "```", "")
}

// matchClose returns the index of the bracket closing the one at start, or -1
func matchClose(text string, start int) int {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := start; i < len(text); i++ {
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
			inString = true
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}
