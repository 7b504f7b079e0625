// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/component"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/document"
	"github.com/vk/docgrid/internal/expander"
)

// buildChildren builds a component for every block that declares one.
// Structural sub-blocks and unknown kinds were reported by validation and are
// skipped here.
func (s *Session) buildChildren(ctx context.Context, parent *component.Component, blocks []*document.Node) error {
	pos := 0
	for _, n := range blocks {
		if _, ok := component.ParseKind(n.Type); !ok {
			continue
		}
		pos++
		if _, err := s.buildComponent(ctx, parent, n, pos); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) buildComponent(ctx context.Context, parent *component.Component, n *document.Node, pos int) (*component.Component, error) {
	kind, _ := component.ParseKind(n.Type)
	ns, ok := s.table.EnclosingNamespace(parent.Index)
	if !ok {
		return nil, &cellgraph.InvariantError{Msg: fmt.Sprintf("%q has no enclosing namespace", parent.Address)}
	}

	name := n.Name
	if prev, dup := ns.Names[name]; name != "" && dup {
		if pc, live := s.table.Get(prev); live {
			s.diags.Add(&diag.Diagnostic{
				Pass:      diag.Structural,
				Severity:  hcl.DiagError,
				Summary:   "Duplicate component name",
				Detail:    fmt.Sprintf("The name %q is already declared by %s in this scope.", name, pc.Address),
				Subject:   nameRange(n),
				Component: pc.Address,
			})
			name = ""
		}
	}

	c := &component.Component{
		Kind:    kind,
		Name:    name,
		Address: component.ChildAddress(parent, name, kind, pos),
		Parent:  parent.Index,
		Node:    n,
		Active:  true,
	}
	if _, err := s.table.Add(c); err != nil {
		s.diags.Add(&diag.Diagnostic{
			Pass:     diag.Structural,
			Severity: hcl.DiagError,
			Summary:  "Duplicate component address",
			Detail:   fmt.Sprintf("The component could not be placed: %s.", err),
			Subject:  nameRange(n),
		})
		return nil, nil
	}
	parent.Children = append(parent.Children, c.Index)
	if name != "" {
		ns.Names[name] = c.Index
	}
	if kind.Transparent() {
		ns.Composites = append(ns.Composites, c.Index)
	}

	if err := s.defineCells(ctx, c); err != nil {
		return c, fmt.Errorf("building %s: %w", c.Address, err)
	}
	return c, nil
}

// BuildInstance creates one replacement of composite. It implements
// expander.Builder.
func (s *Session) BuildInstance(ctx context.Context, composite *component.Component, slot expander.Slot) (*component.Component, error) {
	kind := component.KindInstance
	if composite.Kind == component.KindCopy || composite.Kind == component.KindCollect {
		kind = component.KindMirror
	}
	node := slot.Node
	if node == nil {
		node = composite.Node
	}
	inst := &component.Component{
		Kind:      kind,
		Address:   component.InstanceAddress(composite, slot.Label),
		Parent:    composite.Index,
		Node:      node,
		Namespace: composite.Kind.CreatesNamespaces(),
		SlotKey:   slot.Key,
		Active:    slot.Active,
	}
	if _, err := s.table.Add(inst); err != nil {
		return nil, err
	}

	var err error
	if kind == component.KindMirror {
		err = s.defineMirror(ctx, inst, slot)
	} else {
		err = s.defineInstance(ctx, composite, inst)
	}
	if err != nil {
		s.Destroy(ctx, inst.Index)
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("BuildInstance: instance built.", "address", inst.Address, "key", slot.Key, "active", slot.Active)
	return inst, nil
}

func (s *Session) defineInstance(ctx context.Context, composite, inst *component.Component) error {
	if err := s.defineBindings(ctx, composite, inst); err != nil {
		return err
	}
	if err := s.buildChildren(ctx, inst, inst.Node.Blocks); err != nil {
		return err
	}
	return s.defineInstanceValue(ctx, inst)
}

// Destroy removes a component, its descendants and their cells. It
// implements expander.Builder.
func (s *Session) Destroy(ctx context.Context, idx component.Index) {
	c, ok := s.table.Get(idx)
	if !ok {
		return
	}
	for i := len(c.Children) - 1; i >= 0; i-- {
		s.Destroy(ctx, c.Children[i])
	}

	s.graph.Remove(ctx, cellsOf(c)...)
	s.res.Forget(idx)
	if ns, ok := s.table.EnclosingNamespace(c.Parent); ok {
		if c.Name != "" && ns.Names[c.Name] == idx {
			delete(ns.Names, c.Name)
		}
		if c.Kind.Transparent() {
			ns.Composites = slices.DeleteFunc(ns.Composites, func(x component.Index) bool { return x == idx })
		}
	}
	s.table.Remove(idx)
	ctxlog.FromContext(ctx).Debug("Destroy: component removed.", "address", c.Address)
}

func nameRange(n *document.Node) *hcl.Range {
	if len(n.LabelRanges) > 0 {
		r := n.LabelRanges[0]
		return &r
	}
	r := n.DefRange
	return &r
}
