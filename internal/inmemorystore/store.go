// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package inmemorystore

import (
	"context"
	"sort"
	"sync"

	"github.com/vk/docgrid/internal/statestore"
	"github.com/zclconf/go-cty/cty"
)

// Store is an in-memory implementation of statestore.Store using sync.Map
// for fine-grained concurrent access without global lock contention.
//
// Keys are statestore.Key values; values are cty.Value. Entries returns a
// sorted copy so that exported snapshots are deterministic.
type Store struct {
	values sync.Map // Key: statestore.Key, Value: cty.Value
}

// New creates a new, empty in-memory essential-state store.
func New() statestore.Store {
	return &Store{}
}

// NewFromSnapshot creates a store pre-filled with the entries of s.
func NewFromSnapshot(s statestore.Snapshot) statestore.Store {
	st := &Store{}
	for _, e := range s.Entries {
		st.values.Store(e.Key, e.Value)
	}
	return st
}

// Get retrieves the stored value for key.
func (s *Store) Get(ctx context.Context, key statestore.Key) (cty.Value, bool, error) {
	v, ok := s.values.Load(key)
	if !ok {
		return cty.NilVal, false, nil
	}
	return v.(cty.Value), true, nil
}

// Set records v under key.
func (s *Store) Set(ctx context.Context, key statestore.Key, v cty.Value) error {
	s.values.Store(key, v)
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key statestore.Key) error {
	s.values.Delete(key)
	return nil
}

// Entries returns all values ordered by component address, then variable.
func (s *Store) Entries(ctx context.Context) ([]statestore.Entry, error) {
	var out []statestore.Entry
	s.values.Range(func(k, v any) bool {
		out = append(out, statestore.Entry{Key: k.(statestore.Key), Value: v.(cty.Value)})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Component != out[j].Key.Component {
			return out[i].Key.Component < out[j].Key.Component
		}
		return out[i].Key.Variable < out[j].Key.Variable
	})
	return out, nil
}
