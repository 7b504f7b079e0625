// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// internal/refpath/parser.go
package refpath

import (
	"fmt"
	"strconv"
	"strings"
)

// isNameStart and isNameChar follow HCL identifier rules, which is what
// component names are written as.
func isNameStart(r byte) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isNameChar(r byte) bool {
	return isNameStart(r) || r == '-' || (r >= '0' && r <= '9')
}

// Parse creates a new Path by parsing its canonical string representation.
func Parse(raw string) (Path, error) {
	if raw == "" {
		return Path{}, fmt.Errorf("path cannot be empty")
	}

	var p Path
	i := 0
	for i < len(raw) {
		if len(p.Segments) > 0 {
			if raw[i] != '.' {
				return Path{}, fmt.Errorf("expected '.' at offset %d in %q", i, raw)
			}
			i++
		}

		start := i
		if i >= len(raw) || !isNameStart(raw[i]) {
			return Path{}, fmt.Errorf("path contains empty or invalid segment at offset %d in %q", start, raw)
		}
		for i < len(raw) && isNameChar(raw[i]) {
			i++
		}
		p.Segments = append(p.Segments, NewSegment(raw[start:i]))

		first := true
		for i < len(raw) && raw[i] == '[' {
			sel, next, err := parseSelector(raw, i)
			if err != nil {
				return Path{}, err
			}
			i = next
			if first {
				last := &p.Segments[len(p.Segments)-1]
				last.Index, last.Key = sel.Index, sel.Key
				first = false
				continue
			}
			p.Segments = append(p.Segments, sel)
		}
	}
	return p, nil
}

// MustParse is like Parse but panics on malformed input. Intended for tests
// and fixed addresses.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// parseSelector reads `[123]` or `["key"]` starting at the opening bracket.
func parseSelector(raw string, i int) (Segment, int, error) {
	end := strings.IndexByte(raw[i:], ']')
	if raw[i+1:min(i+2, len(raw))] == `"` {
		// The key may itself contain ']', so scan for the closing quote.
		unquoted, rest, err := unquotePrefix(raw[i+1:])
		if err != nil {
			return Segment{}, 0, fmt.Errorf("invalid key selector in %q: %w", raw, err)
		}
		if unquoted == "" {
			return Segment{}, 0, fmt.Errorf("empty key selector in %q", raw)
		}
		if !strings.HasPrefix(rest, "]") {
			return Segment{}, 0, fmt.Errorf("unterminated key selector in %q", raw)
		}
		next := len(raw) - len(rest) + 1
		return Segment{Index: -1, Key: unquoted}, next, nil
	}
	if end < 0 {
		return Segment{}, 0, fmt.Errorf("unterminated index selector in %q", raw)
	}
	digits := raw[i+1 : i+end]
	index, err := strconv.Atoi(digits)
	if err != nil || index < 0 || strings.HasPrefix(digits, "+") {
		return Segment{}, 0, fmt.Errorf("invalid index %q in %q", digits, raw)
	}
	return Segment{Index: index}, i + end + 1, nil
}

// unquotePrefix unquotes the Go-style quoted string at the start of s and
// returns the remainder.
func unquotePrefix(s string) (string, string, error) {
	for j := 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '"':
			v, err := strconv.Unquote(s[:j+1])
			if err != nil {
				return "", "", err
			}
			return v, s[j+1:], nil
		}
	}
	return "", "", fmt.Errorf("missing closing quote")
}
