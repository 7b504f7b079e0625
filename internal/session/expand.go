// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/component"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/expander"
	"github.com/vk/docgrid/internal/exprs"
	"github.com/vk/docgrid/internal/refpath"
	"github.com/vk/docgrid/internal/resolver"
	"github.com/vk/docgrid/internal/value"
	"github.com/vk/docgrid/internal/variant"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// maxReplacements bounds the number of instances one composite may request.
const maxReplacements = 10000

// expand is the compute function of a composite's replacements cell.
func (s *Session) expand(c *component.Component) cellgraph.ComputeFunc {
	return func(ctx context.Context, r *cellgraph.Reader) (cty.Value, error) {
		slots, err := s.slots(ctx, r, c)
		if err != nil {
			return cty.NilVal, err
		}
		if len(slots) > maxReplacements {
			return cty.NilVal, &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Too many replacements",
				Detail:   fmt.Sprintf("%s asks for %d replacements; at most %d are allowed.", c.Address, len(slots), maxReplacements),
				Subject:  &c.Node.DefRange,
			}}}
		}
		v, _, err := s.exp.Reconcile(ctx, c, slots)
		return v, err
	}
}

func (s *Session) slots(ctx context.Context, r *cellgraph.Reader, c *component.Component) ([]expander.Slot, error) {
	hidden, err := s.readBool(ctx, r, c, varHide)
	if err != nil {
		return nil, err
	}
	switch c.Kind {
	case component.KindRepeat:
		return s.repeatSlots(ctx, r, c, hidden)
	case component.KindMap:
		return s.mapSlots(ctx, r, c, hidden)
	case component.KindSelect:
		return s.selectSlots(ctx, r, c, hidden)
	case component.KindConditional:
		return s.conditionalSlots(ctx, r, c)
	case component.KindGroup:
		return []expander.Slot{{Key: "1", Label: component.PositionLabel(1), Node: c.Node, Active: !hidden}}, nil
	case component.KindCopy:
		return s.copySlots(ctx, r, c)
	case component.KindCollect:
		return s.collectSlots(ctx, r, c)
	}
	return nil, fmt.Errorf("%s is not a composite", c.Kind)
}

func (s *Session) repeatSlots(ctx context.Context, r *cellgraph.Reader, c *component.Component, hidden bool) ([]expander.Slot, error) {
	n, ok, err := s.readCount(ctx, r, c, "length")
	if err != nil || !ok {
		return nil, err
	}
	tmpl := first(c.Node.BlocksOfType("template"))
	if tmpl == nil {
		return nil, nil
	}
	slots := make([]expander.Slot, 0, n)
	for i := 1; i <= n; i++ {
		slots = append(slots, expander.Slot{
			Key:    strconv.Itoa(i),
			Label:  component.PositionLabel(i),
			Node:   tmpl,
			Active: !hidden,
		})
	}
	return slots, nil
}

func (s *Session) mapSlots(ctx context.Context, r *cellgraph.Reader, c *component.Component, hidden bool) ([]expander.Slot, error) {
	src, err := r.Get(ctx, c.Cells["sources"])
	if err != nil {
		return nil, err
	}
	src = value.ForEval(src)
	if !src.IsKnown() || src.IsNull() {
		return nil, nil
	}
	if !iterable(src.Type()) {
		return nil, &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid sources",
			Detail:   fmt.Sprintf("The sources of %s must be a list, tuple, set, map or object, not %s.", c.Address, src.Type().FriendlyName()),
			Subject:  exprRange(c, "sources"),
		}}}
	}
	tmpl := first(c.Node.BlocksOfType("template"))
	if tmpl == nil {
		return nil, nil
	}

	keyExpr := c.Node.Expr("key")
	valueName := staticString(c.Node, "value_name", "v")
	indexName := staticString(c.Node, "index_name", "i")
	keyed := src.Type().IsMapType() || src.Type().IsObjectType()

	var slots []expander.Slot
	pos := 0
	for it := src.ElementIterator(); it.Next(); {
		k, el := it.Element()
		pos++
		slot := expander.Slot{Node: tmpl, Active: !hidden}
		switch {
		case keyExpr != nil:
			idx := cty.NumberIntVal(int64(pos))
			if keyed {
				idx = k
			}
			kv, err := s.eval(ctx, r, c.Index, keyExpr, map[string]cty.Value{valueName: el, indexName: idx})
			if err != nil {
				return nil, err
			}
			key, ok := keyString(kv)
			if !ok {
				return nil, &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
					Severity: hcl.DiagError,
					Summary:  "Invalid key",
					Detail:   fmt.Sprintf("The key of %s must be a known string; element %d produced %s.", c.Address, pos, value.Format(kv)),
					Subject:  exprRange(c, "key"),
				}}}
			}
			slot.Key, slot.Label = key, component.KeyLabel(key)
		case keyed:
			slot.Key = k.AsString()
			slot.Label = component.KeyLabel(slot.Key)
		default:
			slot.Key, slot.Label = strconv.Itoa(pos), component.PositionLabel(pos)
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (s *Session) selectSlots(ctx context.Context, r *cellgraph.Reader, c *component.Component, hidden bool) ([]expander.Slot, error) {
	sel, err := r.Get(ctx, c.Cells["selected_indices"])
	if err != nil {
		return nil, err
	}
	if !sel.IsWhollyKnown() || sel.IsNull() || value.IsError(sel) || !sel.CanIterateElements() {
		return nil, nil
	}
	options := c.Node.BlocksOfType("option")
	occurrences := make(map[int]int)
	var slots []expander.Slot
	for it := sel.ElementIterator(); it.Next(); {
		_, ov := it.Element()
		n, ok := wholeNumber(ov)
		if !ok || n < 1 || n > len(options) {
			continue
		}
		occurrences[n]++
		key := fmt.Sprintf("%d.%d", n, occurrences[n])
		slots = append(slots, expander.Slot{
			Key:    key,
			Label:  component.KeyLabel(key),
			Node:   options[n-1],
			Active: !hidden,
		})
	}
	return slots, nil
}

// selectedIndices draws the chosen options of a select. The draw depends on
// the document seed and the select's address only, so it is reproducible.
func (s *Session) selectedIndices(c *component.Component) cellgraph.ComputeFunc {
	options := c.Node.BlocksOfType("option")
	weights := make([]float64, len(options))
	for i, o := range options {
		weights[i] = staticNumber(o, "weight", 1)
		if weights[i] < 0 {
			weights[i] = 0
		}
	}
	withReplacement := staticBool(c.Node, "with_replacement", false)
	seed := variant.Seed(s.seed, c.Address)

	return func(ctx context.Context, r *cellgraph.Reader) (cty.Value, error) {
		k, ok, err := s.readCount(ctx, r, c, "number_to_select")
		if err != nil || !ok {
			return value.Undefined, err
		}
		picked, err := variant.Select(seed, len(options), k, withReplacement, weights)
		switch {
		case errors.Is(err, variant.ErrNotEnoughOptions):
			s.diags.Add(&diag.Diagnostic{
				Pass:      diag.Structural,
				Severity:  hcl.DiagWarning,
				Summary:   "Not enough options",
				Detail:    fmt.Sprintf("%s selects %d option(s) without replacement but declares %d; every option is selected.", c.Address, k, len(options)),
				Subject:   &c.Node.DefRange,
				Component: c.Address,
			})
		case err != nil:
			return cty.NilVal, fmt.Errorf("selecting options: %w", err)
		}
		if len(picked) == 0 {
			return cty.EmptyTupleVal, nil
		}
		vals := make([]cty.Value, len(picked))
		for i, p := range picked {
			vals[i] = cty.NumberIntVal(int64(p))
		}
		return cty.TupleVal(vals), nil
	}
}

func (s *Session) conditionalSlots(ctx context.Context, r *cellgraph.Reader, c *component.Component) ([]expander.Slot, error) {
	sel, err := r.Get(ctx, c.Cells["selected_case"])
	if err != nil {
		return nil, err
	}
	chosen, _ := wholeNumber(sel)
	cases := c.Node.BlocksOfType("case")
	var slots []expander.Slot
	for i, cs := range cases {
		slots = append(slots, expander.Slot{
			Key:    "case" + strconv.Itoa(i+1),
			Label:  component.PositionLabel(i + 1),
			Node:   cs,
			Active: chosen == i+1,
		})
	}
	if els := first(c.Node.BlocksOfType("else")); els != nil {
		pos := len(cases) + 1
		slots = append(slots, expander.Slot{
			Key:    "else",
			Label:  component.PositionLabel(pos),
			Node:   els,
			Active: chosen == pos,
		})
	}
	return slots, nil
}

// selectedCase is the 1-based position of the first case whose condition
// holds, the position of the else block when none does, or 0. Undefined
// conditions do not hold.
func (s *Session) selectedCase(c *component.Component) cellgraph.ComputeFunc {
	cases := c.Node.BlocksOfType("case")
	hasElse := first(c.Node.BlocksOfType("else")) != nil
	return func(ctx context.Context, r *cellgraph.Reader) (cty.Value, error) {
		for i, cs := range cases {
			expr := cs.Expr("condition")
			if expr == nil {
				continue
			}
			v, err := s.eval(ctx, r, c.Index, expr, nil)
			if err != nil {
				return cty.NilVal, err
			}
			v = value.ForEval(v)
			if !v.IsKnown() || v.IsNull() {
				continue
			}
			b, err := convert.Convert(v, cty.Bool)
			if err != nil {
				rng := expr.Range()
				return cty.NilVal, &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
					Severity: hcl.DiagError,
					Summary:  "Invalid condition",
					Detail:   fmt.Sprintf("A condition must be a boolean: %s.", err),
					Subject:  &rng,
				}}}
			}
			if b.True() {
				return cty.NumberIntVal(int64(i + 1)), nil
			}
		}
		if hasElse {
			return cty.NumberIntVal(int64(len(cases) + 1)), nil
		}
		return cty.Zero, nil
	}
}

func (s *Session) copySlots(ctx context.Context, r *cellgraph.Reader, c *component.Component) ([]expander.Slot, error) {
	target, variable, ok, err := s.sourceTarget(ctx, r, c, refpath.AscendThenDescend)
	if err != nil || !ok {
		return nil, err
	}
	label := target.Address
	if variable != varValue {
		label += "." + variable
	}
	return []expander.Slot{mirrorSlot(target, variable, label, true)}, nil
}

func (s *Session) collectSlots(ctx context.Context, r *cellgraph.Reader, c *component.Component) ([]expander.Slot, error) {
	root, variable, ok, err := s.sourceTarget(ctx, r, c, refpath.DescendOnly)
	if err != nil || !ok {
		return nil, err
	}
	if variable != varValue {
		return nil, &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid collect source",
			Detail:   fmt.Sprintf("The source of %s must name a component, not the state variable %q.", c.Address, variable),
			Subject:  exprRange(c, "source"),
		}}}
	}
	kindName := staticString(c.Node, "component_kind", "")
	want, ok := component.ParseKind(kindName)
	if !ok {
		return nil, &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unknown component kind",
			Detail:   fmt.Sprintf("%q is not a component kind.", kindName),
			Subject:  exprRange(c, "component_kind"),
		}}}
	}

	var slots []expander.Slot
	var walk func(x *component.Component) error
	walk = func(x *component.Component) error {
		if x.Kind.IsComposite() {
			if id, ok := x.Cells[varReplacements]; ok && !s.graph.IsComputing(id) {
				if _, err := r.Get(ctx, id); err != nil {
					return err
				}
			}
		}
		for _, idx := range x.Children {
			ch, ok := s.table.Get(idx)
			if !ok || ch.Index == c.Index || ch.Kind == component.KindMirror {
				continue
			}
			if ch.Kind == want {
				slots = append(slots, mirrorSlot(ch, varValue, ch.Address, s.table.IsActive(ch.Index)))
			}
			if err := walk(ch); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return slots, nil
}

// sourceTarget resolves the source reference of a copy or collect to a
// component and one of its state variables. ok is false when the source is
// inactive.
func (s *Session) sourceTarget(ctx context.Context, r *cellgraph.Reader, c *component.Component, mode refpath.SearchMode) (*component.Component, string, bool, error) {
	expr := c.Node.Expr("source")
	t, isRef := exprs.BareReference(expr)
	if !isRef {
		return nil, "", false, &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid reference",
			Detail:   fmt.Sprintf("The source of %s must be a reference to a component.", c.Address),
			Subject:  exprRange(c, "source"),
		}}}
	}
	path, diags := refpath.FromTraversal(t)
	if diags.HasErrors() {
		return nil, "", false, &cellgraph.DiagnosticsError{Diags: diags}
	}
	span := t.SourceRange()
	res, err := s.res.Resolve(ctx, r, resolver.Request{Path: path, Origin: c.Index, Mode: mode, Span: &span})
	if err != nil {
		return nil, "", false, err
	}
	switch res.Kind {
	case resolver.Deferred:
		return nil, "", false, cellgraph.Deferred("%s: %s", path, res.Reason)
	case resolver.NotFound:
		return nil, "", false, unresolved(path, res.Reason, &span)
	case resolver.Inactive:
		return nil, "", false, nil
	}

	target, ok := s.table.Get(res.Target)
	if !ok {
		return nil, "", false, unresolved(path, "the component no longer exists", &span)
	}
	variable := varValue
	switch {
	case res.Binding != 0 && len(res.Residual) == 0:
		variable = path.Segments[0].Name
	case res.Binding == 0 && len(res.Residual) == 0:
	case res.Binding == 0 && len(res.Residual) == 1 && res.Residual[0].Name != "":
		variable = res.Residual[0].Name
	default:
		return nil, "", false, &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unsupported copy source",
			Detail:   fmt.Sprintf("%s does not name a component or one of its state variables.", path),
			Subject:  &span,
		}}}
	}
	if _, ok := target.Cells[variable]; !ok {
		if _, ok := target.Bindings[variable]; !ok {
			return nil, "", false, &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Unsupported copy source",
				Detail:   fmt.Sprintf("%s has no state variable %q.", target.Address, variable),
				Subject:  &span,
			}}}
		}
	}
	return target, variable, true, nil
}

// mirrorSlot keys a mirror by its target's address and identity, so a
// target that is destroyed and rebuilt gets a fresh mirror.
func mirrorSlot(target *component.Component, variable, label string, active bool) expander.Slot {
	return expander.Slot{
		Key:      fmt.Sprintf("%s#%d", label, target.Index),
		Label:    component.KeyLabel(label),
		Target:   target.Index,
		Variable: variable,
		Active:   active,
	}
}

// readBool reads an optional boolean cell of c. Undefined is false.
func (s *Session) readBool(ctx context.Context, r *cellgraph.Reader, c *component.Component, name string) (bool, error) {
	id, ok := c.Cells[name]
	if !ok {
		return false, nil
	}
	v, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	v = value.ForEval(v)
	if !v.IsKnown() || v.IsNull() {
		return false, nil
	}
	b, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false, nil
	}
	return b.True(), nil
}

// readCount reads a count cell of c, truncated to a non-negative integer.
// ok is false when the count is undefined.
func (s *Session) readCount(ctx context.Context, r *cellgraph.Reader, c *component.Component, name string) (int, bool, error) {
	v, err := r.Get(ctx, c.Cells[name])
	if err != nil {
		return 0, false, err
	}
	v = value.ForEval(v)
	if !v.IsKnown() || v.IsNull() {
		return 0, false, nil
	}
	n, ok := wholeNumber(v)
	if !ok {
		return 0, false, &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid " + name,
			Detail:   fmt.Sprintf("The %s of %s must be a number, not %s.", name, c.Address, value.Format(v)),
			Subject:  exprRange(c, name),
		}}}
	}
	if n < 0 {
		n = 0
	}
	return n, true, nil
}

func wholeNumber(v cty.Value) (int, bool) {
	if v == cty.NilVal || !v.IsKnown() || v.IsNull() || value.IsError(v) {
		return 0, false
	}
	num, err := convert.Convert(v, cty.Number)
	if err != nil {
		return 0, false
	}
	i, _ := num.AsBigFloat().Int64()
	if i > maxReplacements {
		i = maxReplacements + 1
	}
	return int(i), true
}

func keyString(v cty.Value) (string, bool) {
	if v == cty.NilVal || !v.IsKnown() || v.IsNull() || value.IsError(v) {
		return "", false
	}
	sv, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", false
	}
	return sv.AsString(), true
}

func iterable(ty cty.Type) bool {
	return ty.IsListType() || ty.IsTupleType() || ty.IsSetType() || ty.IsMapType() || ty.IsObjectType()
}

func exprRange(c *component.Component, attr string) *hcl.Range {
	if a := c.Node.Attr(attr); a != nil {
		r := a.Expr.Range()
		return &r
	}
	r := c.Node.DefRange
	return &r
}

func first[T any](xs []*T) *T {
	if len(xs) == 0 {
		return nil
	}
	return xs[0]
}
