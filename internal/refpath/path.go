// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// internal/refpath/path.go
package refpath

import (
	"reflect"
	"strconv"
	"strings"
)

// New builds a path from segments.
func New(segments ...Segment) Path {
	return Path{Segments: segments}
}

// String serializes the Path into its canonical string representation.
func (p Path) String() string {
	var sb strings.Builder
	for i, segment := range p.Segments {
		if segment.Name != "" {
			if i > 0 {
				sb.WriteRune('.')
			}
			sb.WriteString(segment.Name)
		}
		switch {
		case segment.HasKey():
			sb.WriteRune('[')
			sb.WriteString(strconv.Quote(segment.Key))
			sb.WriteRune(']')
		case segment.HasIndex():
			sb.WriteString("[" + strconv.Itoa(segment.Index) + "]")
		}
	}
	return sb.String()
}

// Equal checks for deep equality between two paths.
func (p Path) Equal(other Path) bool {
	if len(p.Segments) == 0 && len(other.Segments) == 0 {
		return true
	}
	return reflect.DeepEqual(p.Segments, other.Segments)
}

// IsEmpty reports whether the path has no segments.
func (p Path) IsEmpty() bool {
	return len(p.Segments) == 0
}

// Steps returns the number of hcl traversal steps the path stands for.
func (p Path) Steps() int {
	n := 0
	for _, s := range p.Segments {
		n += s.Steps()
	}
	return n
}

// Tail returns the path without its first n segments.
func (p Path) Tail(n int) Path {
	if n >= len(p.Segments) {
		return Path{}
	}
	return Path{Segments: append([]Segment(nil), p.Segments[n:]...)}
}

// Child returns a new path with a named segment appended.
func (p Path) Child(name string) Path {
	return p.append(NewSegment(name))
}

// Indexed returns a new path whose last segment selects index. When the last
// segment already has a selector, a bare selector is appended instead.
func (p Path) Indexed(index int) Path {
	return p.selector(Segment{Index: index})
}

// Keyed returns a new path whose last segment selects key.
func (p Path) Keyed(key string) Path {
	return p.selector(Segment{Index: -1, Key: key})
}

func (p Path) selector(sel Segment) Path {
	n := len(p.Segments)
	if n == 0 || p.Segments[n-1].HasSelector() {
		return p.append(sel)
	}
	out := p.append()
	last := &out.Segments[n-1]
	last.Index, last.Key = sel.Index, sel.Key
	return out
}

func (p Path) append(segments ...Segment) Path {
	out := make([]Segment, 0, len(p.Segments)+len(segments))
	out = append(out, p.Segments...)
	out = append(out, segments...)
	return Path{Segments: out}
}
