// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package session

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/component"
	"github.com/vk/docgrid/internal/exprs"
	"github.com/vk/docgrid/internal/refpath"
	"github.com/vk/docgrid/internal/resolver"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

var (
	functions     = exprs.Functions()
	staticContext = &hcl.EvalContext{Functions: functions}
)

// evaluator returns the compute function of a cell defined by expr.
func (s *Session) evaluator(c *component.Component, expr hcl.Expression) cellgraph.ComputeFunc {
	origin := c.Index
	refs := exprs.Analyze(expr).References
	return func(ctx context.Context, r *cellgraph.Reader) (cty.Value, error) {
		return s.evalRefs(ctx, r, origin, expr, refs, nil)
	}
}

// eval evaluates expr on behalf of origin. Every reference is resolved and
// read through rd; names in extra are bound directly and shadow components.
//
// A reference selects components with 1-based indices (`r[2]`) while the
// expression itself indexes values the HCL way, so `r[i]` with a dynamic i
// indexes the value tuple of r from 0.
func (s *Session) eval(ctx context.Context, rd resolver.Reader, origin component.Index, expr hcl.Expression, extra map[string]cty.Value) (cty.Value, error) {
	return s.evalRefs(ctx, rd, origin, expr, exprs.Analyze(expr).References, extra)
}

func (s *Session) evalRefs(ctx context.Context, rd resolver.Reader, origin component.Index, expr hcl.Expression, refs []hcl.Traversal, extra map[string]cty.Value) (cty.Value, error) {
	tree := &varNode{}
	for _, t := range refs {
		if _, ok := extra[t.RootName()]; ok {
			continue
		}
		v, n, err := s.lookup(ctx, rd, origin, t)
		if err != nil {
			return cty.NilVal, err
		}
		tree.insert(t[:n], v)
	}

	vars, diags := tree.attrs()
	if diags.HasErrors() {
		return cty.NilVal, &cellgraph.DiagnosticsError{Diags: diags}
	}
	for name, v := range extra {
		vars[name] = v
	}
	v, diags := expr.Value(&hcl.EvalContext{Variables: vars, Functions: functions})
	if diags.HasErrors() {
		return cty.NilVal, &cellgraph.DiagnosticsError{Diags: diags}
	}
	return v, nil
}

// lookup resolves a traversal to a cell value. It returns the number of
// traversal steps the value stands for; the expression applies the rest.
func (s *Session) lookup(ctx context.Context, rd resolver.Reader, origin component.Index, t hcl.Traversal) (cty.Value, int, error) {
	path, diags := refpath.FromTraversal(t)
	if diags.HasErrors() {
		return cty.NilVal, 0, &cellgraph.DiagnosticsError{Diags: diags}
	}
	span := t.SourceRange()
	res, err := s.res.Resolve(ctx, rd, resolver.Request{Path: path, Origin: origin, Span: &span})
	if err != nil {
		return cty.NilVal, 0, err
	}

	switch res.Kind {
	case resolver.Deferred:
		return cty.NilVal, 0, cellgraph.Deferred("%s: %s", path, res.Reason)
	case resolver.NotFound:
		return cty.NilVal, 0, unresolved(path, res.Reason, &span)
	case resolver.Inactive:
		return value.Undefined, clampSteps(res.Consumed, t), nil
	}

	consumed := res.Consumed
	id := res.Binding
	if id == 0 {
		target, ok := s.table.Get(res.Target)
		if !ok {
			return cty.NilVal, 0, unresolved(path, "the component no longer exists", &span)
		}
		var found bool
		if len(res.Residual) > 0 && res.Residual[0].Name != "" {
			if id, found = target.Cells[res.Residual[0].Name]; found {
				consumed++
			}
		}
		if !found {
			if id, found = target.Cells[varValue]; !found {
				return cty.NilVal, 0, &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
					Severity: hcl.DiagError,
					Summary:  "Unsupported reference",
					Detail:   fmt.Sprintf("%s has no value; refer to one of its state variables instead.", target.Address),
					Subject:  &span,
				}}}
			}
		}
	}

	v, err := rd.Get(ctx, id)
	if err != nil {
		return cty.NilVal, 0, err
	}
	return value.ForEval(v), clampSteps(consumed, t), nil
}

// passThrough is the inverse of a cell defined by a bare reference: the
// requested value is written to the referenced cell.
func (s *Session) passThrough(c *component.Component, t hcl.Traversal) cellgraph.InverseFunc {
	origin := c.Index
	return func(ctx context.Context, g cellgraph.Getter, desired cty.Value) ([]cellgraph.Write, error) {
		path, diags := refpath.FromTraversal(t)
		if diags.HasErrors() {
			return nil, diags
		}
		res, err := s.res.Resolve(ctx, g, resolver.Request{Path: path, Origin: origin})
		if err != nil {
			return nil, err
		}
		if res.Kind != resolver.Found {
			return nil, fmt.Errorf("the reference %s is %s", path, res.Kind)
		}
		if res.Binding != 0 {
			if len(res.Residual) > 0 {
				return nil, cellgraph.ErrInverseUnavailable
			}
			return []cellgraph.Write{{Cell: res.Binding, Value: desired}}, nil
		}
		target, ok := s.table.Get(res.Target)
		if !ok {
			return nil, fmt.Errorf("the component referenced by %s no longer exists", path)
		}
		switch {
		case len(res.Residual) == 0:
			if id, ok := target.Cells[varValue]; ok {
				return []cellgraph.Write{{Cell: id, Value: desired}}, nil
			}
		case len(res.Residual) == 1 && res.Residual[0].Name != "":
			if id, ok := target.Cells[res.Residual[0].Name]; ok {
				return []cellgraph.Write{{Cell: id, Value: desired}}, nil
			}
		}
		return nil, fmt.Errorf("%s does not name a writable state variable", path)
	}
}

func unresolved(path refpath.Path, reason string, span *hcl.Range) error {
	return &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
		Severity: hcl.DiagError,
		Summary:  "Unresolved reference",
		Detail:   fmt.Sprintf("The reference %s could not be resolved: %s.", path, reason),
		Subject:  span,
	}}}
}

func clampSteps(n int, t hcl.Traversal) int {
	if n > len(t) {
		return len(t)
	}
	if n < 1 {
		return 1
	}
	return n
}

// varNode builds the variables of an evaluation context from resolved
// traversal prefixes. Selectors become object attributes, which HCL indexes
// by their decimal or string key.
type varNode struct {
	leaf     cty.Value
	ref      hcl.Traversal
	children map[string]*varNode
}

func (n *varNode) insert(t hcl.Traversal, v cty.Value) {
	cur := n
	for _, step := range t {
		key, ok := stepKey(step)
		if !ok {
			return
		}
		if cur.children == nil {
			cur.children = make(map[string]*varNode)
		}
		next, ok := cur.children[key]
		if !ok {
			next = &varNode{}
			cur.children[key] = next
		}
		cur = next
	}
	cur.leaf = v
	cur.ref = t
}

func (n *varNode) attrs() (map[string]cty.Value, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	out := make(map[string]cty.Value, len(n.children))
	for k, child := range n.children {
		v, childDiags := child.value()
		diags = append(diags, childDiags...)
		out[k] = v
	}
	return out, diags
}

// value renders the node. When a node is both read whole and selected into,
// the selections are merged into the whole value. Only object and map values
// can take the merge; any other known value is ambiguous.
func (n *varNode) value() (cty.Value, hcl.Diagnostics) {
	if len(n.children) == 0 {
		if n.leaf == cty.NilVal {
			return value.Undefined, nil
		}
		return n.leaf, nil
	}
	attrs := make(map[string]cty.Value)
	if l := n.leaf; l != cty.NilVal && l.IsKnown() && !l.IsNull() {
		ty := l.Type()
		if !ty.IsObjectType() && !ty.IsMapType() {
			span := n.ref.SourceRange()
			return cty.NilVal, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Ambiguous reference",
				Detail:   fmt.Sprintf("%s is read whole as a %s and is also used to select components. Refer to the whole value or to its components, not both.", exprs.TraversalKey(n.ref), ty.FriendlyName()),
				Subject:  &span,
			}}
		}
		for k, v := range l.AsValueMap() {
			attrs[k] = v
		}
	}
	children, diags := n.attrs()
	for k, v := range children {
		attrs[k] = v
	}
	return cty.ObjectVal(attrs), diags
}

func stepKey(step hcl.Traverser) (string, bool) {
	switch s := step.(type) {
	case hcl.TraverseRoot:
		return s.Name, true
	case hcl.TraverseAttr:
		return s.Name, true
	case hcl.TraverseIndex:
		k := s.Key
		if !k.IsKnown() || k.IsNull() {
			return "", false
		}
		switch k.Type() {
		case cty.String:
			return k.AsString(), true
		case cty.Number:
			return k.AsBigFloat().Text('f', -1), true
		}
	}
	return "", false
}
