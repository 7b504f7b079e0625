// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package cellgraph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/statestore"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// New creates and returns an initialized, empty Graph. Essential values are
// read from and written to store; cycles and definition failures are
// reported to diags.
func New(store statestore.Store, diags *diag.Collector) *Graph {
	if diags == nil {
		diags = diag.NewCollector()
	}
	return &Graph{
		cells:    make(map[CellID]*cell),
		store:    store,
		diags:    diags,
		cycles:   make(map[CellID]*CycleError),
		deferred: make(map[CellID]struct{}),
		changed:  make(map[CellID]struct{}),
	}
}

// Register adds a cell. Declared dependencies must already exist. An
// essential cell takes its value from the store when one is saved under its
// key, and from def.Initial otherwise.
func (g *Graph) Register(ctx context.Context, def Definition) (CellID, error) {
	for _, dep := range def.Deps {
		if d, ok := g.cells[dep]; !ok || d.removed {
			return 0, fmt.Errorf("registering %s: %w: declared dependency %d", def.Key, ErrCellNotFound, dep)
		}
	}
	if !def.Essential && def.Compute == nil {
		return 0, fmt.Errorf("registering %s: derived cell has no compute function", def.Key)
	}

	g.nextID++
	c := &cell{
		id:         g.nextID,
		def:        def,
		status:     StatusStale,
		deps:       make(map[CellID]uint64),
		dependents: make(map[CellID]struct{}),
	}

	if def.Essential {
		v := def.Initial
		if v == cty.NilVal {
			v = value.Undefined
		}
		if g.store != nil {
			stored, ok, err := g.store.Get(ctx, def.Key)
			if err != nil {
				return 0, fmt.Errorf("registering %s: reading essential state: %w", def.Key, err)
			}
			if ok {
				if conv, err := value.Convert(stored, def.Type); err == nil {
					v = conv
				} else {
					ctxlog.FromContext(ctx).Warn("Register: ignoring stored value of the wrong type.", "cell", def.Key.String(), "error", err)
				}
			}
		}
		c.value = v
		c.hasValue = true
		c.version = 1
		c.status = StatusComputed
	}

	g.cells[c.id] = c
	return c.id, nil
}

// Get returns the value of a cell, computing it if needed. Members of a
// dependency cycle return the error sentinel with a nil error. A deferred
// cell returns an error matching ErrDeferred.
func (g *Graph) Get(ctx context.Context, id CellID) (cty.Value, error) {
	c, err := g.lookup(id)
	if err != nil {
		return cty.NilVal, err
	}
	if err := g.ensure(ctx, c); err != nil {
		var ce *CycleError
		if !errors.As(err, &ce) {
			return cty.NilVal, err
		}
	}
	return c.value, nil
}

// Status returns the cache status of a cell without computing it.
func (g *Graph) Status(id CellID) (Status, error) {
	c, err := g.lookup(id)
	if err != nil {
		return StatusStale, err
	}
	return c.status, nil
}

// Exists reports whether id names a live cell.
func (g *Graph) Exists(id CellID) bool {
	c, ok := g.cells[id]
	return ok && !c.removed
}

// Key returns the key a cell was registered with.
func (g *Graph) Key(id CellID) (statestore.Key, bool) {
	c, ok := g.cells[id]
	if !ok {
		return statestore.Key{}, false
	}
	return c.def.Key, true
}

// Span returns the source range of a cell's definition.
func (g *Graph) Span(id CellID) *hcl.Range {
	if c, ok := g.cells[id]; ok {
		return c.def.Span
	}
	return nil
}

// HasInverse reports whether a cell accepts writes.
func (g *Graph) HasInverse(id CellID) bool {
	c, ok := g.cells[id]
	return ok && !c.removed && (c.def.Essential || c.def.Inverse != nil)
}

// IsComputing reports whether a cell is on the evaluation stack.
func (g *Graph) IsComputing(id CellID) bool {
	c, ok := g.cells[id]
	return ok && c.computing
}

// Invalidate marks a derived cell and all its transitive dependents stale.
// For an essential cell only the dependents are marked.
func (g *Graph) Invalidate(ctx context.Context, id CellID) {
	c, ok := g.cells[id]
	if !ok {
		return
	}
	if !c.def.Essential {
		g.markStale(c)
	}
	n := g.invalidateDependents(c)
	ctxlog.FromContext(ctx).Debug("Invalidate: dependents marked stale.", "cell", c.def.Key.String(), "count", n)
}

// Remove deletes cells. Their dependents are invalidated and essential
// values stored for them are dropped. A cell that is currently computing is
// purged once its computation unwinds.
func (g *Graph) Remove(ctx context.Context, ids ...CellID) {
	for _, id := range ids {
		c, ok := g.cells[id]
		if !ok || c.removed {
			continue
		}
		c.removed = true
		g.invalidateDependents(c)
		if c.def.Essential && g.store != nil {
			if err := g.store.Delete(ctx, c.def.Key); err != nil {
				ctxlog.FromContext(ctx).Warn("Remove: failed to drop essential state.", "cell", c.def.Key.String(), "error", err)
			}
		}
		if !c.computing {
			g.purge(c)
		}
	}
}

// RetryDeferred marks every deferred cell stale so the next read attempts it
// again. It returns the number of cells affected.
func (g *Graph) RetryDeferred(ctx context.Context) int {
	if len(g.deferred) == 0 {
		return 0
	}
	ids := make([]CellID, 0, len(g.deferred))
	for id := range g.deferred {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if c, ok := g.cells[id]; ok && c.status == StatusDeferred {
			c.status = StatusStale
			g.invalidateDependents(c)
		}
		delete(g.deferred, id)
	}
	ctxlog.FromContext(ctx).Debug("RetryDeferred: deferred cells released.", "count", len(ids))
	return len(ids)
}

// Deferred returns the ids of deferred cells in ascending order.
func (g *Graph) Deferred() []CellID {
	ids := make([]CellID, 0, len(g.deferred))
	for id := range g.deferred {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DrainChanged returns, in ascending order, the cells whose value changed
// since the previous call.
func (g *Graph) DrainChanged() []CellID {
	ids := make([]CellID, 0, len(g.changed))
	for id := range g.changed {
		if c, ok := g.cells[id]; ok && !c.removed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	g.changed = make(map[CellID]struct{})
	return ids
}

// Dependencies returns the ids a cell read during its last computation.
func (g *Graph) Dependencies(id CellID) ([]CellID, error) {
	c, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	return append([]CellID(nil), c.depOrder...), nil
}

// Dependents returns the ids of cells that depend on the given cell.
func (g *Graph) Dependents(id CellID) ([]CellID, error) {
	c, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	return sortedIDs(c.dependents), nil
}

// Stats returns activity counters.
func (g *Graph) Stats() Stats {
	s := g.stats
	s.Cells = len(g.cells)
	return s
}

func (g *Graph) lookup(id CellID) (*cell, error) {
	c, ok := g.cells[id]
	if !ok || c.removed {
		return nil, fmt.Errorf("%w: %d", ErrCellNotFound, id)
	}
	return c, nil
}

func (g *Graph) label(id CellID) string {
	if c, ok := g.cells[id]; ok {
		return c.def.Key.String()
	}
	return fmt.Sprintf("cell %d", id)
}

func (g *Graph) markStale(c *cell) {
	if c.def.Essential {
		return
	}
	if c.computing {
		c.dirtied = true
		return
	}
	delete(g.deferred, c.id)
	if c.status != StatusStale {
		c.status = StatusStale
		g.stats.Invalidations++
	}
}

// invalidateDependents walks the reverse edges breadth-first.
func (g *Graph) invalidateDependents(from *cell) int {
	visited := map[CellID]struct{}{from.id: {}}
	queue := sortedIDs(from.dependents)
	n := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		c, ok := g.cells[id]
		if !ok {
			continue
		}
		g.markStale(c)
		n++
		queue = append(queue, sortedIDs(c.dependents)...)
	}
	return n
}

func (g *Graph) purge(c *cell) {
	for dep := range c.deps {
		if d, ok := g.cells[dep]; ok {
			delete(d.dependents, c.id)
		}
	}
	delete(g.cells, c.id)
	delete(g.deferred, c.id)
	delete(g.changed, c.id)
	delete(g.cycles, c.id)
}

func (g *Graph) setValue(c *cell, v cty.Value) {
	if c.hasValue && value.Equal(c.value, v) {
		return
	}
	c.value = v
	c.hasValue = true
	c.version++
	g.changed[c.id] = struct{}{}
}

func sortedIDs(set map[CellID]struct{}) []CellID {
	ids := make([]CellID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
