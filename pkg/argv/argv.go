// Package argv tokenizes a user-supplied command-fragment string into
// argv tokens. Operators sometimes paste JVM-style option strings
// containing quoted values (e.g. -Dfoo="a b"); the JSON-array form is
// the unambiguous escape hatch for anything the quote-aware splitter
// can't express.
package argv

import (
	"encoding/json"
	"strings"
	"unicode"
)

// Tokenize splits s into argv tokens.
//
// Resolution order:
//  1. If s parses as a JSON array of strings, its elements are
//     returned verbatim, in order.
//  2. Otherwise s is split on breaking whitespace, except while inside
//     a double-quoted region; the quote characters are retained in
//     the emitted token. Empty tokens are discarded.
func Tokenize(s string) []string {
	if tokens, ok := tryJSONArray(s); ok {
		return tokens
	}
	return splitQuoted(s)
}

func tryJSONArray(s string) ([]string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var tokens []string
	if err := json.Unmarshal([]byte(trimmed), &tokens); err != nil {
		return nil, false
	}
	return tokens, true
}

func splitQuoted(s string) []string {
	var tokens []string
	var cur strings.Builder
	inQuotes := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case unicode.IsSpace(r) && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}
