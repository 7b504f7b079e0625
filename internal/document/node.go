// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package document

import (
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// RootType is the node type of the implicit document root.
const RootType = "document"

// Node is one block of the source tree.
type Node struct {
	Type   string
	Name   string
	Labels []string

	// Attrs are ordered by their position in the source.
	Attrs  []*hcl.Attribute
	attrs  map[string]*hcl.Attribute
	Blocks []*Node

	Range       hcl.Range
	DefRange    hcl.Range
	TypeRange   hcl.Range
	LabelRanges []hcl.Range
}

// Attr returns the named attribute, or nil.
func (n *Node) Attr(name string) *hcl.Attribute {
	if n == nil {
		return nil
	}
	return n.attrs[name]
}

// Expr returns the expression of the named attribute, or nil.
func (n *Node) Expr(name string) hcl.Expression {
	if a := n.Attr(name); a != nil {
		return a.Expr
	}
	return nil
}

// BlocksOfType returns the child blocks of the given type in source order.
func (n *Node) BlocksOfType(typ string) []*Node {
	var out []*Node
	for _, b := range n.Blocks {
		if b.Type == typ {
			out = append(out, b)
		}
	}
	return out
}

// Walk calls fn for n and every descendant in source order. Returning false
// from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, b := range n.Blocks {
		b.Walk(fn)
	}
}

func newRoot(filename string) *Node {
	r := hcl.Range{Filename: filename, Start: hcl.InitialPos, End: hcl.InitialPos}
	return &Node{
		Type:      RootType,
		attrs:     make(map[string]*hcl.Attribute),
		Range:     r,
		DefRange:  r,
		TypeRange: r,
	}
}

// appendBody adds the attributes and blocks of body to n.
func (n *Node) appendBody(body *hclsyntax.Body) {
	attrs := make([]*hcl.Attribute, 0, len(body.Attributes))
	for _, a := range body.Attributes {
		attrs = append(attrs, a.AsHCLAttribute())
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].Range.Start.Byte < attrs[j].Range.Start.Byte
	})
	for _, a := range attrs {
		// A later file may not redefine a root attribute; the first wins.
		if _, dup := n.attrs[a.Name]; dup {
			continue
		}
		n.attrs[a.Name] = a
		n.Attrs = append(n.Attrs, a)
	}

	for _, b := range body.Blocks {
		n.Blocks = append(n.Blocks, fromBlock(b))
	}
}

func fromBlock(b *hclsyntax.Block) *Node {
	n := &Node{
		Type:        b.Type,
		Labels:      b.Labels,
		attrs:       make(map[string]*hcl.Attribute),
		Range:       b.Range(),
		DefRange:    b.DefRange(),
		TypeRange:   b.TypeRange,
		LabelRanges: b.LabelRanges,
	}
	if len(b.Labels) > 0 {
		n.Name = b.Labels[0]
	}
	n.appendBody(b.Body)
	return n
}
