// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package cellgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Reader is handed to a ComputeFunc. Reads through it record dependency
// edges from the cell being computed.
type Reader struct {
	g    *Graph
	cell *cell
}

// Cell returns the id of the cell being computed.
func (r *Reader) Cell() CellID {
	return r.cell.id
}

// Get reads a cell and records it as a dependency. Reading a member of a
// cycle the caller does not belong to yields the error sentinel.
func (r *Reader) Get(ctx context.Context, id CellID) (cty.Value, error) {
	g := r.g
	d, ok := g.cells[id]
	if !ok || d.removed {
		return cty.NilVal, fmt.Errorf("%w: %d", ErrCellNotFound, id)
	}
	r.depend(d)

	if d.computing {
		if d.def.Recursive {
			if d.hasValue {
				return d.value, nil
			}
			return value.Undefined, nil
		}
		return cty.NilVal, g.newCycle(d)
	}

	if err := g.ensure(ctx, d); err != nil {
		var ce *CycleError
		if errors.As(err, &ce) && !ce.Contains(r.cell.id) {
			r.observe(d)
			return d.value, nil
		}
		return cty.NilVal, err
	}
	r.observe(d)
	return d.value, nil
}

// Deps reads the declared dependencies in declaration order.
func (r *Reader) Deps(ctx context.Context) ([]cty.Value, error) {
	out := make([]cty.Value, 0, len(r.cell.def.Deps))
	for _, id := range r.cell.def.Deps {
		v, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Previous returns the cell's own last value, or Undefined.
func (r *Reader) Previous() cty.Value {
	if r.cell.hasValue {
		return r.cell.value
	}
	return value.Undefined
}

func (r *Reader) depend(d *cell) {
	c := r.cell
	if _, ok := c.deps[d.id]; !ok {
		c.deps[d.id] = 0
		c.depOrder = append(c.depOrder, d.id)
	}
	d.dependents[c.id] = struct{}{}
}

func (r *Reader) observe(d *cell) {
	r.cell.deps[d.id] = d.version
}

// ensure brings c to a non-stale state.
func (g *Graph) ensure(ctx context.Context, c *cell) error {
	switch c.status {
	case StatusComputed, StatusFailed:
		return nil
	case StatusDeferred:
		return c.err
	}
	if c.computing {
		return &InvariantError{Msg: fmt.Sprintf("%s was read during its own computation outside of a reader", c.def.Key)}
	}

	c.computing = true
	g.stack = append(g.stack, c.id)
	defer func() {
		c.computing = false
		g.stack = g.stack[:len(g.stack)-1]
		if c.removed {
			g.purge(c)
		}
	}()

	if c.hasValue && g.depsUnchanged(ctx, c) {
		c.status = StatusComputed
		if value.IsError(c.value) {
			c.status = StatusFailed
		}
		g.stats.Cutoffs++
		if c.dirtied {
			c.dirtied = false
			c.status = StatusStale
		}
		return nil
	}
	return g.recompute(ctx, c)
}

// depsUnchanged reports whether every recorded dependency still has the
// version c observed. Dependencies are brought up to date on the way.
func (g *Graph) depsUnchanged(ctx context.Context, c *cell) bool {
	if len(c.depOrder) == 0 {
		return false
	}
	for _, id := range c.depOrder {
		d, ok := g.cells[id]
		if !ok || d.removed || d.computing {
			return false
		}
		if err := g.ensure(ctx, d); err != nil {
			return false
		}
		if d.version != c.deps[id] {
			return false
		}
	}
	return true
}

func (g *Graph) recompute(ctx context.Context, c *cell) error {
	for dep := range c.deps {
		if d, ok := g.cells[dep]; ok {
			delete(d.dependents, c.id)
		}
	}
	c.deps = make(map[CellID]uint64)
	c.depOrder = nil
	c.dirtied = false
	c.err = nil

	g.stats.Computations++
	v, err := c.def.Compute(ctx, &Reader{g: g, cell: c})
	if err == nil && v == cty.NilVal {
		err = &InvariantError{Msg: fmt.Sprintf("definition of %s returned no value", c.def.Key)}
	}
	if err == nil {
		var convErr error
		if v, convErr = value.Convert(v, c.def.Type); convErr != nil {
			err = &DiagnosticsError{Diags: hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Incorrect value type",
				Detail:   fmt.Sprintf("Invalid value for %s: %s.", c.def.Key, convErr),
				Subject:  c.def.Span,
			}}}
		}
	}

	if ce, ok := g.cycles[c.id]; ok {
		delete(g.cycles, c.id)
		g.fail(c, "circular dependency")
		if ce.Members[0] == c.id {
			g.reportCycle(ctx, ce)
		}
		return ce
	}

	var de *DeferredError
	var ie *InvariantError
	switch {
	case err == nil:
		g.setValue(c, v)
		c.status = StatusComputed
	case errors.As(err, &de):
		c.status = StatusDeferred
		c.err = de
		g.deferred[c.id] = struct{}{}
		return de
	case errors.As(err, &ie):
		c.status = StatusStale
		return ie
	default:
		var ce *CycleError
		if errors.As(err, &ce) {
			// A cycle this cell is not part of surfaced as an error; it
			// still only sees the sentinel.
			g.fail(c, "circular dependency")
			break
		}
		g.reportFailure(c, err)
		g.fail(c, err.Error())
	}

	if c.dirtied {
		c.dirtied = false
		c.status = StatusStale
	}
	return nil
}

func (g *Graph) fail(c *cell, reason string) {
	g.setValue(c, value.Error(reason))
	c.status = StatusFailed
}

// newCycle records the cycle closed by re-entering d.
func (g *Graph) newCycle(d *cell) *CycleError {
	start := len(g.stack) - 1
	for start >= 0 && g.stack[start] != d.id {
		start--
	}
	if start < 0 {
		start = 0
	}
	ce := &CycleError{}
	for _, id := range g.stack[start:] {
		ce.Members = append(ce.Members, id)
		ce.Labels = append(ce.Labels, g.label(id))
	}
	for _, id := range ce.Members {
		g.cycles[id] = ce
	}
	g.stats.Cycles++
	return ce
}

func (g *Graph) reportCycle(ctx context.Context, ce *CycleError) {
	ctxlog.FromContext(ctx).Warn("Compute: dependency cycle detected.", "cycle", ce.Path())
	first := g.cells[ce.Members[0]]
	var component, attribute string
	var subject *hcl.Range
	if first != nil {
		component, attribute = first.def.Key.Component, first.def.Key.Variable
		subject = first.def.Span
	}
	g.diags.Add(&diag.Diagnostic{
		Pass:      diag.Structural,
		Severity:  hcl.DiagError,
		Summary:   "Circular dependency",
		Detail:    fmt.Sprintf("The state variables %s depend on each other.", ce.Path()),
		Subject:   subject,
		Component: component,
		Attribute: attribute,
	})
}

func (g *Graph) reportFailure(c *cell, err error) {
	var de *DiagnosticsError
	if errors.As(err, &de) {
		for _, d := range de.Diags {
			subject := d.Subject
			if subject == nil {
				subject = c.def.Span
			}
			g.diags.Add(&diag.Diagnostic{
				Pass:      diag.Definition,
				Severity:  d.Severity,
				Summary:   d.Summary,
				Detail:    d.Detail,
				Subject:   subject,
				Component: c.def.Key.Component,
				Attribute: c.def.Key.Variable,
			})
		}
		return
	}
	g.diags.Add(&diag.Diagnostic{
		Pass:      diag.Definition,
		Severity:  hcl.DiagError,
		Summary:   "Invalid state variable definition",
		Detail:    err.Error(),
		Subject:   c.def.Span,
		Component: c.def.Key.Component,
		Attribute: c.def.Key.Variable,
	})
}
