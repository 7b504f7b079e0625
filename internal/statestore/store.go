// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package statestore defines the interface for storing the essential state
// of a document session: the values that cannot be derived from the markup
// and must be persisted to reconstruct the document exactly.
//
// # Why a Separate Store Exists
//
// The dependency graph owns derived values and recomputes them on demand.
// Essential values (a typed answer, a dragged point, a literal that a user
// overwrote) are the only inputs that actions mutate. Keeping them in their
// own store gives two properties:
//   - the essential-state snapshot is simply the store's contents, and
//   - restoring a snapshot before the graph is built makes every essential
//     cell start from the saved value instead of its markup default.
//
// # Keys
//
// Entries are keyed by the stable address of the owning component (see
// package refpath) plus the state-variable name. Addresses survive
// re-expansion of composites, so a restored entry finds its cell again even
// though cell ids are assigned anew in every session.
//
// # Lifecycle and Usage
//
// The store is:
//  1. **Created** once per document session, optionally filled from a snapshot
//  2. **Read** when an essential cell is registered (restoring its value)
//  3. **Written** by committed inverse writes
//  4. **Pruned** when a composite destroys the component owning an entry
//  5. **Exported** by Session.EssentialState
package statestore

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Key identifies one essential value.
type Key struct {
	Component string
	Variable  string
}

// String renders the key as `address.variable`.
func (k Key) String() string {
	if k.Component == "" {
		return k.Variable
	}
	return k.Component + "." + k.Variable
}

// Entry is one stored essential value.
type Entry struct {
	Key   Key
	Value cty.Value
}

// Store is the interface for essential-state storage.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use. A session only mutates
// the store from its action pipeline, but snapshots may be exported from
// other goroutines.
type Store interface {
	// Get returns the stored value for key and whether one exists.
	Get(ctx context.Context, key Key) (cty.Value, bool, error)

	// Set stores v under key, replacing any previous value.
	Set(ctx context.Context, key Key, v cty.Value) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// Entries returns every stored value ordered by component address and
	// then by variable name.
	Entries(ctx context.Context) ([]Entry, error)
}
