// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package session

import (
	"context"
	"fmt"

	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/component"
	"github.com/vk/docgrid/internal/expander"
	"github.com/vk/docgrid/internal/resolver"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// defineMirror registers the value of a copy or collect replacement. It
// reads the target cell and writes through to it.
func (s *Session) defineMirror(ctx context.Context, inst *component.Component, slot expander.Slot) error {
	target, ok := s.table.Get(slot.Target)
	if !ok {
		return fmt.Errorf("mirror target %d no longer exists", slot.Target)
	}
	id, ok := target.Cells[slot.Variable]
	if !ok {
		if id, ok = target.Bindings[slot.Variable]; !ok {
			return fmt.Errorf("%s has no state variable %q", target.Address, slot.Variable)
		}
	}
	return s.register(ctx, inst, varValue, cellgraph.Definition{
		Type: cty.DynamicPseudoType,
		Compute: func(ctx context.Context, r *cellgraph.Reader) (cty.Value, error) {
			if !s.graph.Exists(id) {
				return value.Undefined, nil
			}
			return r.Get(ctx, id)
		},
		Inverse: func(_ context.Context, _ cellgraph.Getter, desired cty.Value) ([]cellgraph.Write, error) {
			if !s.graph.Exists(id) {
				return nil, fmt.Errorf("%s no longer exists", target.Address)
			}
			return []cellgraph.Write{{Cell: id, Value: desired}}, nil
		},
	})
}

// defineBindings registers the per-instance names of repeat and map
// instances. Bindings read the composite's replacement list, so an instance
// that moves is updated without being rebuilt.
func (s *Session) defineBindings(ctx context.Context, composite, inst *component.Component) error {
	switch composite.Kind {
	case component.KindRepeat:
		name := staticString(composite.Node, "index_name", "i")
		return s.registerBinding(ctx, inst, name, cellgraph.Definition{
			Type: cty.Number,
			Compute: func(ctx context.Context, r *cellgraph.Reader) (cty.Value, error) {
				pos, err := s.slotPosition(ctx, r, composite, inst)
				if err != nil || pos == 0 {
					return value.Undefined, err
				}
				return cty.NumberIntVal(int64(pos)), nil
			},
		})

	case component.KindMap:
		indexName := staticString(composite.Node, "index_name", "i")
		valueName := staticString(composite.Node, "value_name", "v")
		if err := s.registerBinding(ctx, inst, indexName, cellgraph.Definition{
			Type: cty.DynamicPseudoType,
			Compute: func(ctx context.Context, r *cellgraph.Reader) (cty.Value, error) {
				k, _, err := s.mapElement(ctx, r, composite, inst)
				return k, err
			},
		}); err != nil {
			return err
		}
		return s.registerBinding(ctx, inst, valueName, cellgraph.Definition{
			Type: cty.DynamicPseudoType,
			Compute: func(ctx context.Context, r *cellgraph.Reader) (cty.Value, error) {
				_, v, err := s.mapElement(ctx, r, composite, inst)
				return v, err
			},
		})
	}
	return nil
}

// slotPosition returns the 1-based position of inst among the replacements
// of composite, or 0 when it is no longer one of them.
func (s *Session) slotPosition(ctx context.Context, r *cellgraph.Reader, composite, inst *component.Component) (int, error) {
	v, err := r.Get(ctx, composite.Cells[varReplacements])
	if err != nil {
		return 0, err
	}
	reps, _ := component.DecodeReplacements(v)
	for _, rep := range reps {
		if rep.Key == inst.SlotKey {
			return rep.Position, nil
		}
	}
	return 0, nil
}

// mapElement returns the index binding and the element a map instance
// stands for. Lists, tuples and sets are indexed from 1; maps and objects by
// their keys.
func (s *Session) mapElement(ctx context.Context, r *cellgraph.Reader, composite, inst *component.Component) (cty.Value, cty.Value, error) {
	pos, err := s.slotPosition(ctx, r, composite, inst)
	if err != nil || pos == 0 {
		return value.Undefined, value.Undefined, err
	}
	src, err := r.Get(ctx, composite.Cells["sources"])
	if err != nil {
		return cty.NilVal, cty.NilVal, err
	}
	src = value.ForEval(src)
	if !src.IsKnown() || src.IsNull() || !iterable(src.Type()) {
		return value.Undefined, value.Undefined, nil
	}
	keyed := src.Type().IsMapType() || src.Type().IsObjectType()
	i := 0
	for it := src.ElementIterator(); it.Next(); {
		k, el := it.Element()
		i++
		if i != pos {
			continue
		}
		if keyed {
			return k, el, nil
		}
		return cty.NumberIntVal(int64(pos)), el, nil
	}
	return value.Undefined, value.Undefined, nil
}

// defineInstanceValue registers the value of an instance: the value of its
// only child, or a tuple of its children's values.
func (s *Session) defineInstanceValue(ctx context.Context, inst *component.Component) error {
	return s.register(ctx, inst, varValue, cellgraph.Definition{
		Type: cty.DynamicPseudoType,
		Compute: func(ctx context.Context, r *cellgraph.Reader) (cty.Value, error) {
			var vals []cty.Value
			for _, id := range s.childValues(inst) {
				v, err := r.Get(ctx, id)
				if err != nil {
					return cty.NilVal, err
				}
				vals = append(vals, v)
			}
			switch len(vals) {
			case 0:
				return cty.EmptyTupleVal, nil
			case 1:
				return vals[0], nil
			}
			return cty.TupleVal(vals), nil
		},
		Inverse: func(_ context.Context, _ cellgraph.Getter, desired cty.Value) ([]cellgraph.Write, error) {
			ids := s.childValues(inst)
			if len(ids) != 1 {
				return nil, cellgraph.ErrInverseUnavailable
			}
			return []cellgraph.Write{{Cell: ids[0], Value: desired}}, nil
		},
	})
}

func (s *Session) childValues(inst *component.Component) []cellgraph.CellID {
	var ids []cellgraph.CellID
	for _, idx := range inst.Children {
		if ch, ok := s.table.Get(idx); ok {
			if id, ok := ch.Cells[varValue]; ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// compositeValue is the value of a composite: a tuple of its active
// instances' values for repeat, map, select and collect, and the single
// active instance's value otherwise.
func (s *Session) compositeValue(c *component.Component) cellgraph.ComputeFunc {
	return func(ctx context.Context, r *cellgraph.Reader) (cty.Value, error) {
		ids, err := s.activeInstanceValues(ctx, r, c)
		if err != nil {
			return cty.NilVal, err
		}
		var vals []cty.Value
		for _, id := range ids {
			v, err := r.Get(ctx, id)
			if err != nil {
				return cty.NilVal, err
			}
			vals = append(vals, v)
		}
		if listValued(c.Kind) {
			if len(vals) == 0 {
				return cty.EmptyTupleVal, nil
			}
			return cty.TupleVal(vals), nil
		}
		switch len(vals) {
		case 0:
			return value.Undefined, nil
		case 1:
			return vals[0], nil
		}
		return cty.TupleVal(vals), nil
	}
}

// activeInstanceValues returns the value cells of c's active instances in
// replacement order.
func (s *Session) activeInstanceValues(ctx context.Context, g resolver.Reader, c *component.Component) ([]cellgraph.CellID, error) {
	v, err := g.Get(ctx, c.Cells[varReplacements])
	if err != nil {
		return nil, err
	}
	reps, _ := component.DecodeReplacements(v)
	byKey := make(map[string]*component.Component, len(c.Children))
	for _, idx := range c.Children {
		if inst, ok := s.table.Get(idx); ok {
			byKey[inst.SlotKey] = inst
		}
	}
	var ids []cellgraph.CellID
	for _, rep := range reps {
		if !rep.Active {
			continue
		}
		if inst, ok := byKey[rep.Key]; ok {
			if id, ok := inst.Cells[varValue]; ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// singleInstanceInverse writes a requested value to the only active
// instance of a group, conditional or copy.
func (s *Session) singleInstanceInverse(c *component.Component) cellgraph.InverseFunc {
	return func(ctx context.Context, g cellgraph.Getter, desired cty.Value) ([]cellgraph.Write, error) {
		ids, err := s.activeInstanceValues(ctx, g, c)
		if err != nil {
			return nil, err
		}
		if len(ids) != 1 {
			return nil, cellgraph.ErrInverseUnavailable
		}
		return []cellgraph.Write{{Cell: ids[0], Value: desired}}, nil
	}
}

func listValued(k component.Kind) bool {
	switch k {
	case component.KindRepeat, component.KindMap, component.KindSelect, component.KindCollect:
		return true
	}
	return false
}
