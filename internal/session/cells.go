// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package session

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/component"
	"github.com/vk/docgrid/internal/document"
	"github.com/vk/docgrid/internal/exprs"
	"github.com/vk/docgrid/internal/resolver"
	"github.com/vk/docgrid/internal/statestore"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Names of the state variables shared by several kinds.
const (
	varValue          = "value"
	varHide           = "hide"
	varReplacements   = resolver.ReplacementsVar
	varImmediateValue = "immediate_value"
	varOpen           = "open"
)

// defineCells registers the state variables of a declared component.
func (s *Session) defineCells(ctx context.Context, c *component.Component) error {
	n := c.Node
	fixed := staticBool(n, "fixed", false)

	switch c.Kind {
	case component.KindNumber:
		return s.attrCell(ctx, c, "value", varValue, cty.Number, value.Undefined, fixed)
	case component.KindText:
		return s.attrCell(ctx, c, "value", varValue, cty.String, value.Undefined, fixed)
	case component.KindBoolean:
		return s.attrCell(ctx, c, "value", varValue, cty.Bool, value.Undefined, fixed)
	case component.KindMath:
		return s.attrCell(ctx, c, "expr", varValue, cty.DynamicPseudoType, value.Undefined, fixed)

	case component.KindTextInput:
		prefill := cty.StringVal(staticString(n, "prefill", ""))
		for _, name := range []string{varImmediateValue, varValue} {
			if err := s.register(ctx, c, name, cellgraph.Definition{
				Type: cty.String, Essential: true, Initial: prefill, Fixed: fixed,
			}); err != nil {
				return err
			}
		}
		return nil

	case component.KindBooleanInput:
		return s.register(ctx, c, varValue, cellgraph.Definition{
			Type: cty.Bool, Essential: true, Initial: cty.BoolVal(staticBool(n, "prefill", false)), Fixed: fixed,
		})

	case component.KindPoint:
		return s.definePoint(ctx, c, fixed)

	case component.KindSolution:
		if err := s.register(ctx, c, varOpen, cellgraph.Definition{Type: cty.Bool, Essential: true, Initial: cty.False}); err != nil {
			return err
		}
		if err := s.attrCell(ctx, c, "hide", varHide, cty.Bool, cty.False, false); err != nil {
			return err
		}
		open := c.Cells[varOpen]
		return s.register(ctx, c, varValue, cellgraph.Definition{
			Type: cty.Bool,
			Deps: []cellgraph.CellID{open},
			Compute: func(ctx context.Context, r *cellgraph.Reader) (cty.Value, error) {
				return r.Get(ctx, open)
			},
			Inverse: func(context.Context, cellgraph.Getter, cty.Value) ([]cellgraph.Write, error) {
				return nil, fmt.Errorf("a solution is opened with the revealSolution action")
			},
		})
	}

	if c.Kind.IsComposite() {
		return s.defineComposite(ctx, c)
	}
	return nil
}

// attrCell registers a cell defined by an attribute. A missing attribute
// gives an essential cell holding dflt, a literal gives an essential cell
// holding the literal, a bare reference gives a derived cell that writes
// through to the referenced cell, and anything else a read-only derived
// cell.
func (s *Session) attrCell(ctx context.Context, c *component.Component, attr, name string, ty cty.Type, dflt cty.Value, fixed bool) error {
	a := c.Node.Attr(attr)
	if a == nil {
		return s.register(ctx, c, name, cellgraph.Definition{Type: ty, Essential: true, Initial: dflt, Fixed: fixed})
	}

	span := a.Expr.Range()
	def := cellgraph.Definition{Span: &span, Type: ty, Fixed: fixed}
	if exprs.IsStatic(a.Expr) {
		v, diags := a.Expr.Value(staticContext)
		if !diags.HasErrors() {
			conv, err := value.Convert(v, ty)
			if err == nil {
				def.Essential, def.Initial = true, conv
				return s.register(ctx, c, name, def)
			}
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Incorrect attribute value type",
				Detail:   fmt.Sprintf("Inappropriate value for attribute %q: %s.", attr, err),
				Subject:  &span,
			})
		}
		def.Compute = failing(diags)
		return s.register(ctx, c, name, def)
	}

	def.Compute = s.evaluator(c, a.Expr)
	if t, ok := exprs.BareReference(a.Expr); ok {
		def.Inverse = s.passThrough(c, t)
	}
	return s.register(ctx, c, name, def)
}

func (s *Session) definePoint(ctx context.Context, c *component.Component, fixed bool) error {
	for _, axis := range []string{"x", "y"} {
		if err := s.attrCell(ctx, c, axis, axis, cty.Number, value.Undefined, fixed); err != nil {
			return err
		}
	}
	x, y := c.Cells["x"], c.Cells["y"]
	return s.register(ctx, c, varValue, cellgraph.Definition{
		Type:  cty.DynamicPseudoType,
		Deps:  []cellgraph.CellID{x, y},
		Fixed: fixed,
		Compute: func(ctx context.Context, r *cellgraph.Reader) (cty.Value, error) {
			vals, err := r.Deps(ctx)
			if err != nil {
				return cty.NilVal, err
			}
			return cty.ObjectVal(map[string]cty.Value{"x": vals[0], "y": vals[1]}), nil
		},
		Inverse: func(_ context.Context, _ cellgraph.Getter, desired cty.Value) ([]cellgraph.Write, error) {
			var writes []cellgraph.Write
			for _, axis := range []struct {
				name string
				id   cellgraph.CellID
			}{{"x", x}, {"y", y}} {
				if v, ok := field(desired, axis.name); ok {
					writes = append(writes, cellgraph.Write{Cell: axis.id, Value: v})
				}
			}
			if len(writes) == 0 {
				return nil, fmt.Errorf("a point value needs an x or y attribute")
			}
			return writes, nil
		},
	})
}

func (s *Session) defineComposite(ctx context.Context, c *component.Component) error {
	switch c.Kind {
	case component.KindRepeat:
		if err := s.attrCell(ctx, c, "length", "length", cty.Number, value.Undefined, false); err != nil {
			return err
		}
	case component.KindMap:
		if err := s.attrCell(ctx, c, "sources", "sources", cty.DynamicPseudoType, value.Undefined, false); err != nil {
			return err
		}
	case component.KindSelect:
		if err := s.attrCell(ctx, c, "number_to_select", "number_to_select", cty.Number, cty.NumberIntVal(1), false); err != nil {
			return err
		}
		if err := s.register(ctx, c, "selected_indices", cellgraph.Definition{
			Type: cty.DynamicPseudoType, Compute: s.selectedIndices(c),
		}); err != nil {
			return err
		}
	case component.KindConditional:
		if err := s.register(ctx, c, "selected_case", cellgraph.Definition{
			Type: cty.Number, Compute: s.selectedCase(c),
		}); err != nil {
			return err
		}
	}

	switch c.Kind {
	case component.KindRepeat, component.KindMap, component.KindSelect, component.KindGroup:
		if err := s.attrCell(ctx, c, "hide", varHide, cty.Bool, cty.False, false); err != nil {
			return err
		}
	}

	if err := s.register(ctx, c, varReplacements, cellgraph.Definition{
		Type: cty.DynamicPseudoType, Compute: s.expand(c),
	}); err != nil {
		return err
	}
	def := cellgraph.Definition{Type: cty.DynamicPseudoType, Compute: s.compositeValue(c)}
	if !listValued(c.Kind) {
		def.Inverse = s.singleInstanceInverse(c)
	}
	return s.register(ctx, c, varValue, def)
}

func (s *Session) register(ctx context.Context, c *component.Component, name string, def cellgraph.Definition) error {
	id, err := s.registerCell(ctx, c, name, def)
	if err != nil {
		return err
	}
	c.Cells[name] = id
	return nil
}

func (s *Session) registerBinding(ctx context.Context, c *component.Component, name string, def cellgraph.Definition) error {
	id, err := s.registerCell(ctx, c, name, def)
	if err != nil {
		return err
	}
	if c.Bindings == nil {
		c.Bindings = make(map[string]cellgraph.CellID)
	}
	c.Bindings[name] = id
	return nil
}

func (s *Session) registerCell(ctx context.Context, c *component.Component, name string, def cellgraph.Definition) (cellgraph.CellID, error) {
	def.Key = statestore.Key{Component: c.Address, Variable: name}
	if def.Span == nil {
		r := c.Node.DefRange
		def.Span = &r
	}
	return s.graph.Register(ctx, def)
}

// failing returns a compute function that always reports diags.
func failing(diags hcl.Diagnostics) cellgraph.ComputeFunc {
	return func(context.Context, *cellgraph.Reader) (cty.Value, error) {
		return cty.NilVal, &cellgraph.DiagnosticsError{Diags: diags}
	}
}

// staticValue evaluates a literal attribute. Attributes that are missing,
// not literal or of the wrong type yield dflt; validation reports them.
func staticValue(n *document.Node, name string, ty cty.Type, dflt cty.Value) cty.Value {
	expr := n.Expr(name)
	if !exprs.IsStatic(expr) {
		return dflt
	}
	v, diags := expr.Value(staticContext)
	if diags.HasErrors() || !v.IsKnown() || v.IsNull() {
		return dflt
	}
	conv, err := convert.Convert(v, ty)
	if err != nil {
		return dflt
	}
	return conv
}

func staticBool(n *document.Node, name string, dflt bool) bool {
	return staticValue(n, name, cty.Bool, cty.BoolVal(dflt)).True()
}

func staticString(n *document.Node, name, dflt string) string {
	return staticValue(n, name, cty.String, cty.StringVal(dflt)).AsString()
}

func staticNumber(n *document.Node, name string, dflt float64) float64 {
	f, _ := staticValue(n, name, cty.Number, cty.NumberFloatVal(dflt)).AsBigFloat().Float64()
	return f
}

// field returns an attribute of an object or an element of a map.
func field(v cty.Value, name string) (cty.Value, bool) {
	if v == cty.NilVal || !v.IsKnown() || v.IsNull() {
		return cty.NilVal, false
	}
	ty := v.Type()
	switch {
	case ty.IsObjectType():
		if ty.HasAttribute(name) {
			return v.GetAttr(name), true
		}
	case ty.IsMapType():
		k := cty.StringVal(name)
		if v.HasIndex(k).True() {
			return v.Index(k), true
		}
	}
	return cty.NilVal, false
}
