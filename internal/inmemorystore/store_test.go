// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package inmemorystore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/statestore"
	"github.com/zclconf/go-cty/cty"
)

func TestSetAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := statestore.Key{Component: "answer", Variable: "value"}

	// Get a value that doesn't exist yet
	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, key, cty.StringVal("42")))

	v, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, v.RawEquals(cty.StringVal("42")))
}

func TestDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := statestore.Key{Component: "r[2].item", Variable: "value"}

	require.NoError(t, s.Set(ctx, key, cty.NumberIntVal(4)))
	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key), "deleting twice is fine")

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntries_AreSorted(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, statestore.Key{Component: "b", Variable: "value"}, cty.True))
	require.NoError(t, s.Set(ctx, statestore.Key{Component: "a", Variable: "y"}, cty.NumberIntVal(2)))
	require.NoError(t, s.Set(ctx, statestore.Key{Component: "a", Variable: "x"}, cty.NumberIntVal(1)))

	entries, err := s.Entries(ctx)
	require.NoError(t, err)

	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Key.String())
	}
	assert.Equal(t, []string{"a.x", "a.y", "b.value"}, keys)
}

func TestNewFromSnapshot(t *testing.T) {
	snap := statestore.Snapshot{Entries: []statestore.Entry{
		{Key: statestore.Key{Component: "t", Variable: "value"}, Value: cty.StringVal("typed")},
	}}
	s := NewFromSnapshot(snap)

	v, ok, err := s.Get(context.Background(), statestore.Key{Component: "t", Variable: "value"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "typed", v.AsString())
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	var wg sync.WaitGroup
	numGoroutines := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := statestore.Key{Component: fmt.Sprintf("c%d", i), Variable: "value"}
			_ = s.Set(ctx, key, cty.NumberIntVal(int64(i)))
			_, _, _ = s.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, numGoroutines)
}
