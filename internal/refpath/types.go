// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// internal/refpath/types.go
package refpath

// Segment represents a single component of a path, e.g. `name`, `name[2]`
// or `name["key"]`. A segment with an empty Name is a bare selector that
// follows another selector, as the second bracket in `grid[1][3]`.
type Segment struct {
	Name  string
	Index int    // -1 indicates no index is present.
	Key   string // non-empty when the selector is a string key.
}

// NewSegment creates a new path segment without a selector.
func NewSegment(name string) Segment {
	return Segment{Name: name, Index: -1}
}

// NewIndexedSegment creates a new path segment that includes an index.
func NewIndexedSegment(name string, index int) Segment {
	return Segment{Name: name, Index: index}
}

// NewKeyedSegment creates a new path segment that includes a string key.
func NewKeyedSegment(name, key string) Segment {
	return Segment{Name: name, Index: -1, Key: key}
}

// HasIndex returns true if the path segment has an explicit index.
func (s Segment) HasIndex() bool {
	return s.Index != -1
}

// HasKey returns true if the path segment has a string key selector.
func (s Segment) HasKey() bool {
	return s.Key != ""
}

// HasSelector reports whether the segment carries an index or a key.
func (s Segment) HasSelector() bool {
	return s.HasIndex() || s.HasKey()
}

// Bare reports whether the segment is a selector without a name.
func (s Segment) Bare() bool {
	return s.Name == ""
}

// Steps is the number of hcl traversal steps the segment stands for.
func (s Segment) Steps() int {
	n := 0
	if s.Name != "" {
		n++
	}
	if s.HasSelector() {
		n++
	}
	return n
}

// WithoutSelector returns a copy of the segment with its selector removed.
func (s Segment) WithoutSelector() Segment {
	return Segment{Name: s.Name, Index: -1}
}

// Selector returns the segment's selector as a bare segment.
func (s Segment) Selector() Segment {
	return Segment{Index: s.Index, Key: s.Key}
}

// Path is the structured representation of a reference or a component
// address. It is modeled as an ordered list of segments.
type Path struct {
	Segments []Segment
}

// SearchMode controls where resolution of a path starts looking for its
// first segment.
type SearchMode int

const (
	// AscendThenDescend checks the origin's namespace, then each enclosing
	// namespace, before descending along the remaining segments.
	AscendThenDescend SearchMode = iota
	// DescendOnly looks for the first segment only inside the origin's own
	// namespace.
	DescendOnly
)

func (m SearchMode) String() string {
	switch m {
	case AscendThenDescend:
		return "ascend-then-descend"
	case DescendOnly:
		return "descend-only"
	default:
		return "unknown"
	}
}
