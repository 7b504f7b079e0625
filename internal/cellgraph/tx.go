// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package cellgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/statestore"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// maxInverseDepth bounds chains of pass-through inverses.
const maxInverseDepth = 64

// Skip records a write that was ignored because its target is fixed.
type Skip struct {
	Cell CellID
	Key  statestore.Key
}

// Tx groups writes so they can be undone together.
type Tx struct {
	g       *Graph
	undo    []undoEntry
	skipped []Skip
	written []CellID
	done    bool
}

type undoEntry struct {
	c         *cell
	old       cty.Value
	hadStored bool
	stored    cty.Value
}

// Begin starts a transaction.
func (g *Graph) Begin() *Tx {
	return &Tx{g: g}
}

// WriteInverse writes v to id in a transaction of its own.
func (g *Graph) WriteInverse(ctx context.Context, id CellID, v cty.Value) error {
	tx := g.Begin()
	if err := tx.Write(ctx, id, v); err != nil {
		tx.Rollback(ctx)
		return err
	}
	tx.Commit()
	return nil
}

// Write requests that id takes v. Writes to derived cells are translated
// through inverse definitions down to essential cells. If planning fails
// nothing is applied; if applying fails the writes already applied by this
// call stay in the transaction until Commit or Rollback.
func (tx *Tx) Write(ctx context.Context, id CellID, v cty.Value) error {
	if tx.done {
		return errors.New("transaction already finished")
	}
	plan, err := tx.plan(ctx, id, v, 0)
	if err != nil {
		return err
	}
	for _, w := range plan {
		if err := tx.apply(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// Skipped returns the writes ignored because their targets are fixed.
func (tx *Tx) Skipped() []Skip {
	return tx.skipped
}

// Written returns the essential cells whose value changed.
func (tx *Tx) Written() []CellID {
	return tx.written
}

// Commit finalizes the transaction.
func (tx *Tx) Commit() {
	tx.done = true
	tx.undo = nil
}

// Rollback restores every value changed by the transaction, newest first.
func (tx *Tx) Rollback(ctx context.Context) {
	if tx.done {
		return
	}
	tx.done = true
	g := tx.g
	for i := len(tx.undo) - 1; i >= 0; i-- {
		u := tx.undo[i]
		if u.c.removed {
			continue
		}
		g.setValue(u.c, u.old)
		if g.store != nil {
			var err error
			if u.hadStored {
				err = g.store.Set(ctx, u.c.def.Key, u.stored)
			} else {
				err = g.store.Delete(ctx, u.c.def.Key)
			}
			if err != nil {
				ctxlog.FromContext(ctx).Error("Rollback: failed to restore essential state.", "cell", u.c.def.Key.String(), "error", err)
			}
		}
		g.invalidateDependents(u.c)
	}
	tx.undo = nil
	ctxlog.FromContext(ctx).Debug("Rollback: transaction undone.", "writes", len(tx.written))
}

func (tx *Tx) plan(ctx context.Context, id CellID, v cty.Value, depth int) ([]Write, error) {
	g := tx.g
	c, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	if depth > maxInverseDepth {
		return nil, &InverseError{Cell: c.def.Key.String(), Err: fmt.Errorf("inverse chain is deeper than %d", maxInverseDepth)}
	}
	if c.def.Fixed {
		tx.skipped = append(tx.skipped, Skip{Cell: id, Key: c.def.Key})
		return nil, nil
	}
	if c.def.Essential {
		return []Write{{Cell: id, Value: v}}, nil
	}
	if c.def.Inverse == nil {
		return nil, &InverseError{Cell: c.def.Key.String(), Err: ErrInverseUnavailable}
	}

	writes, err := c.def.Inverse(ctx, g, v)
	if err != nil {
		var ie *InverseError
		if errors.As(err, &ie) {
			return nil, err
		}
		return nil, &InverseError{Cell: c.def.Key.String(), Err: err}
	}
	var out []Write
	for _, w := range writes {
		sub, err := tx.plan(ctx, w.Cell, w.Value, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func (tx *Tx) apply(ctx context.Context, w Write) error {
	g := tx.g
	c, err := g.lookup(w.Cell)
	if err != nil {
		return err
	}
	v, err := value.Convert(w.Value, c.def.Type)
	if err != nil {
		return &InverseError{Cell: c.def.Key.String(), Err: fmt.Errorf("invalid value: %w", err)}
	}
	if c.hasValue && value.Equal(c.value, v) {
		return nil
	}

	u := undoEntry{c: c, old: c.value}
	if g.store != nil {
		stored, ok, err := g.store.Get(ctx, c.def.Key)
		if err != nil {
			return fmt.Errorf("writing %s: %w", c.def.Key, err)
		}
		u.hadStored, u.stored = ok, stored
		if err := g.store.Set(ctx, c.def.Key, v); err != nil {
			return fmt.Errorf("writing %s: %w", c.def.Key, err)
		}
	}
	tx.undo = append(tx.undo, u)
	tx.written = append(tx.written, c.id)

	g.setValue(c, v)
	g.invalidateDependents(c)
	return nil
}
