// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package expander

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/component"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/document"
	"github.com/zclconf/go-cty/cty"
)

// Slot is one requested replacement.
type Slot struct {
	// Key identifies the slot across expansions.
	Key string
	// Label is the address suffix of the instance, such as `[2]`.
	Label string
	// Node is the block the instance's children are built from.
	Node *document.Node
	// Target is the component a mirror slot reflects, and Variable the
	// state variable of Target it reads.
	Target   component.Index
	Variable string
	Active   bool
}

// Builder creates and destroys instances on behalf of the expander.
type Builder interface {
	BuildInstance(ctx context.Context, composite *component.Component, slot Slot) (*component.Component, error)
	Destroy(ctx context.Context, idx component.Index)
}

// Result summarizes one reconciliation.
type Result struct {
	Kept      int
	Built     int
	Destroyed int
}

// Expander reconciles composites of one session.
type Expander struct {
	table     *component.Table
	builder   Builder
	completed int
}

// New creates an expander.
func New(table *component.Table, builder Builder) *Expander {
	return &Expander{table: table, builder: builder}
}

// Reconcile makes the instances of composite match slots and returns the
// value of the composite's replacements cell.
func (e *Expander) Reconcile(ctx context.Context, composite *component.Component, slots []Slot) (cty.Value, Result, error) {
	logger := ctxlog.FromContext(ctx)
	var res Result

	wanted := make(map[string]struct{}, len(slots))
	for _, s := range slots {
		if _, dup := wanted[s.Key]; dup {
			return cty.NilVal, res, &cellgraph.DiagnosticsError{Diags: hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Duplicate replacement key",
				Detail:   fmt.Sprintf("%s produced the key %q more than once; every replacement needs a distinct key.", composite.Address, s.Key),
			}}}
		}
		wanted[s.Key] = struct{}{}
	}

	existing := make(map[string]*component.Component, len(composite.Children))
	for _, idx := range composite.Children {
		inst, ok := e.table.Get(idx)
		if !ok {
			continue
		}
		if _, keep := wanted[inst.SlotKey]; keep {
			existing[inst.SlotKey] = inst
			continue
		}
		e.builder.Destroy(ctx, idx)
		res.Destroyed++
	}

	children := make([]component.Index, 0, len(slots))
	reps := make([]component.Replacement, 0, len(slots))
	var built []component.Index
	for i, s := range slots {
		inst, ok := existing[s.Key]
		if ok {
			res.Kept++
		} else {
			var err error
			inst, err = e.builder.BuildInstance(ctx, composite, s)
			if err != nil {
				for _, idx := range built {
					e.builder.Destroy(ctx, idx)
				}
				// Keep the surviving instances so their state is not lost.
				composite.Children = keptChildren(composite.Children, existing)
				return cty.NilVal, res, fmt.Errorf("expanding %s: %w", composite.Address, err)
			}
			built = append(built, inst.Index)
			res.Built++
		}
		inst.Active = s.Active
		children = append(children, inst.Index)
		reps = append(reps, component.Replacement{Position: i + 1, Key: s.Key, Active: s.Active})
	}
	composite.Children = children
	e.completed++

	logger.Debug("Reconcile: composite expanded.",
		"composite", composite.Address, "slots", len(slots), "kept", res.Kept, "built", res.Built, "destroyed", res.Destroyed)
	return component.EncodeReplacements(reps), res, nil
}

// Completed returns the number of expansions finished since the previous
// call. The session uses it to retry deferred cells.
func (e *Expander) Completed() int {
	n := e.completed
	e.completed = 0
	return n
}

func keptChildren(old []component.Index, kept map[string]*component.Component) []component.Index {
	out := make([]component.Index, 0, len(kept))
	for _, idx := range old {
		for _, c := range kept {
			if c.Index == idx {
				out = append(out, idx)
				break
			}
		}
	}
	return out
}
