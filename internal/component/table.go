// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package component

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/document"
)

// Index identifies a component within a table. Indices are never reused.
type Index int

// NoIndex is the parent of the document root.
const NoIndex Index = -1

// Component is a node of the live document tree.
type Component struct {
	Index Index
	Kind  Kind
	// Name is the declared name, or empty for anonymous components.
	Name string
	// Address is the stable, human-readable path of the component, such as
	// `r[2].item`. Essential state is keyed by it.
	Address string
	// Parent is a weak back-reference.
	Parent   Index
	Children []Index

	// Node is the block the component was built from. For instances it is
	// the template, option, case or else block (or the group itself).
	Node *document.Node

	// Cells maps state variable names to cells.
	Cells map[string]cellgraph.CellID

	// Namespace is set on the document root and on the instances of
	// repeat, map and select.
	Namespace bool
	// Names maps the names declared in this namespace to components.
	Names map[string]Index
	// Bindings are the per-instance names such as `i` and `v`.
	Bindings map[string]cellgraph.CellID
	// Composites are the transparent composites declared in this namespace.
	// Their instances may declare more names, so a failed lookup expands
	// them first.
	Composites []Index

	// SlotKey identifies an instance within its composite's replacements.
	SlotKey string
	// Active is false for instances that are hidden or not chosen.
	Active bool
}

// IsInstance reports whether the component is a replacement slot.
func (c *Component) IsInstance() bool {
	return c.Kind == KindInstance || c.Kind == KindMirror
}

// Table holds the live components of one session.
type Table struct {
	mu         sync.RWMutex
	components map[Index]*Component
	byAddress  map[string]Index
	next       Index
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		components: make(map[Index]*Component),
		byAddress:  make(map[string]Index),
	}
}

// Add stores c, assigning its index. Addresses must be unique.
func (t *Table) Add(c *Component) (Index, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byAddress[c.Address]; exists {
		return NoIndex, fmt.Errorf("component address %q already in use", c.Address)
	}
	c.Index = t.next
	t.next++
	if c.Cells == nil {
		c.Cells = make(map[string]cellgraph.CellID)
	}
	if c.Namespace && c.Names == nil {
		c.Names = make(map[string]Index)
	}
	t.components[c.Index] = c
	t.byAddress[c.Address] = c.Index
	return c.Index, nil
}

// Get returns the component with the given index.
func (t *Table) Get(idx Index) (*Component, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.components[idx]
	return c, ok
}

// MustGet is Get for indices known to be live.
func (t *Table) MustGet(idx Index) *Component {
	c, ok := t.Get(idx)
	if !ok {
		panic(fmt.Sprintf("component %d is not in the table", idx))
	}
	return c
}

// ByAddress looks a component up by its address.
func (t *Table) ByAddress(addr string) (*Component, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.byAddress[addr]
	if !ok {
		return nil, false
	}
	return t.components[idx], true
}

// Remove deletes a single component. Callers remove children first.
func (t *Table) Remove(idx Index) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.components[idx]
	if !ok {
		return
	}
	delete(t.components, idx)
	if t.byAddress[c.Address] == idx {
		delete(t.byAddress, c.Address)
	}
}

// Len returns the number of live components.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.components)
}

// EnclosingNamespace returns the nearest namespace containing idx,
// including idx itself.
func (t *Table) EnclosingNamespace(idx Index) (*Component, bool) {
	for idx != NoIndex {
		c, ok := t.Get(idx)
		if !ok {
			return nil, false
		}
		if c.Namespace {
			return c, true
		}
		idx = c.Parent
	}
	return nil, false
}

// Ancestors returns the chain from idx's parent up to, but excluding, stop.
func (t *Table) Ancestors(idx, stop Index) []*Component {
	var out []*Component
	c, ok := t.Get(idx)
	if !ok {
		return nil
	}
	for p := c.Parent; p != NoIndex && p != stop; {
		pc, ok := t.Get(p)
		if !ok {
			break
		}
		out = append(out, pc)
		p = pc.Parent
	}
	return out
}

// IsActive reports whether idx and every instance above it are active.
func (t *Table) IsActive(idx Index) bool {
	for idx != NoIndex {
		c, ok := t.Get(idx)
		if !ok {
			return false
		}
		if c.IsInstance() && !c.Active {
			return false
		}
		idx = c.Parent
	}
	return true
}

// Walk visits idx and its descendants depth-first in child order.
func (t *Table) Walk(idx Index, fn func(*Component) bool) {
	c, ok := t.Get(idx)
	if !ok || !fn(c) {
		return
	}
	for _, child := range c.Children {
		t.Walk(child, fn)
	}
}

// ChildAddress renders the address of a named or anonymous child of parent.
// pos is the 1-based position of the block among its siblings.
func ChildAddress(parent *Component, name string, kind Kind, pos int) string {
	local := name
	if local == "" {
		local = "_" + kind.String() + strconv.Itoa(pos)
	}
	if parent == nil || parent.Address == "" {
		return local
	}
	return parent.Address + "." + local
}

// InstanceAddress renders the address of an instance of composite.
func InstanceAddress(composite *Component, label string) string {
	return composite.Address + label
}

// PositionLabel is the address suffix of a slot identified by position.
func PositionLabel(pos int) string {
	return "[" + strconv.Itoa(pos) + "]"
}

// KeyLabel is the address suffix of a slot identified by a string key.
func KeyLabel(key string) string {
	return "[" + strconv.Quote(key) + "]"
}
