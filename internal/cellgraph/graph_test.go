// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package cellgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/inmemorystore"
	"github.com/vk/docgrid/internal/statestore"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

type fixture struct {
	ctx   context.Context
	g     *Graph
	diags *diag.Collector
	store statestore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	diags := diag.NewCollector()
	store := inmemorystore.New()
	return &fixture{ctx: context.Background(), g: New(store, diags), diags: diags, store: store}
}

func key(name string) statestore.Key {
	return statestore.Key{Component: name, Variable: "value"}
}

func (f *fixture) essential(t *testing.T, name string, v cty.Value) CellID {
	t.Helper()
	id, err := f.g.Register(f.ctx, Definition{Key: key(name), Essential: true, Initial: v, Type: v.Type()})
	require.NoError(t, err)
	return id
}

func (f *fixture) derived(t *testing.T, name string, compute ComputeFunc) CellID {
	t.Helper()
	id, err := f.g.Register(f.ctx, Definition{Key: key(name), Compute: compute})
	require.NoError(t, err)
	return id
}

// plusOne computes src + 1 and counts its invocations.
func plusOne(src *CellID, calls *int) ComputeFunc {
	return func(ctx context.Context, r *Reader) (cty.Value, error) {
		*calls++
		v, err := r.Get(ctx, *src)
		if err != nil {
			return cty.NilVal, err
		}
		v = value.ForEval(v)
		if !v.IsKnown() {
			return value.Undefined, nil
		}
		return v.Add(cty.NumberIntVal(1)), nil
	}
}

func TestGet_ComputesLazilyAndCaches(t *testing.T) {
	f := newFixture(t)
	a := f.essential(t, "a", cty.NumberIntVal(1))
	calls := 0
	b := f.derived(t, "b", plusOne(&a, &calls))

	assert.Zero(t, calls, "registration must not compute")

	v, err := f.g.Get(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, value.Equal(cty.NumberIntVal(2), v))

	_, err = f.g.Get(f.ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	deps, err := f.g.Dependencies(b)
	require.NoError(t, err)
	assert.Equal(t, []CellID{a}, deps)
	dependents, err := f.g.Dependents(a)
	require.NoError(t, err)
	assert.Equal(t, []CellID{b}, dependents)
}

func TestWrite_PropagatesToDependents(t *testing.T) {
	f := newFixture(t)
	a := f.essential(t, "a", cty.NumberIntVal(1))
	calls := 0
	b := f.derived(t, "b", plusOne(&a, &calls))
	_, err := f.g.Get(f.ctx, b)
	require.NoError(t, err)

	require.NoError(t, f.g.WriteInverse(f.ctx, a, cty.NumberIntVal(10)))
	status, err := f.g.Status(b)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, status)

	v, err := f.g.Get(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, value.Equal(cty.NumberIntVal(11), v))
	assert.Equal(t, 2, calls)
}

func TestWrite_EqualValueInvalidatesNothing(t *testing.T) {
	f := newFixture(t)
	a := f.essential(t, "a", cty.NumberIntVal(1))
	calls := 0
	b := f.derived(t, "b", plusOne(&a, &calls))
	_, err := f.g.Get(f.ctx, b)
	require.NoError(t, err)
	before := f.g.Stats().Invalidations

	require.NoError(t, f.g.WriteInverse(f.ctx, a, cty.NumberFloatVal(1.0)))

	status, err := f.g.Status(b)
	require.NoError(t, err)
	assert.Equal(t, StatusComputed, status)
	assert.Equal(t, before, f.g.Stats().Invalidations)
}

func TestRecompute_UnchangedValueStopsCascade(t *testing.T) {
	f := newFixture(t)
	a := f.essential(t, "a", cty.NumberIntVal(3))
	// parity only changes when a's parity changes.
	parity := f.derived(t, "parity", func(ctx context.Context, r *Reader) (cty.Value, error) {
		v, err := r.Get(ctx, a)
		if err != nil {
			return cty.NilVal, err
		}
		n, _ := v.AsBigFloat().Int64()
		return cty.NumberIntVal(n % 2), nil
	})
	calls := 0
	label := f.derived(t, "label", plusOne(&parity, &calls))
	_, err := f.g.Get(f.ctx, label)
	require.NoError(t, err)

	require.NoError(t, f.g.WriteInverse(f.ctx, a, cty.NumberIntVal(5)))
	v, err := f.g.Get(f.ctx, label)
	require.NoError(t, err)
	assert.True(t, value.Equal(cty.NumberIntVal(2), v))
	assert.Equal(t, 1, calls, "label must be revalidated without recomputing")
	assert.Equal(t, uint64(1), f.g.Stats().Cutoffs)
}

func TestCycle_FailsMembersAndReportsOnce(t *testing.T) {
	f := newFixture(t)
	var a, b CellID
	a = f.derived(t, "a", func(ctx context.Context, r *Reader) (cty.Value, error) {
		return r.Get(ctx, b)
	})
	b = f.derived(t, "b", func(ctx context.Context, r *Reader) (cty.Value, error) {
		return r.Get(ctx, a)
	})
	outsideCalls := 0
	c := f.derived(t, "c", plusOne(&a, &outsideCalls))

	v, err := f.g.Get(f.ctx, c)
	require.NoError(t, err)
	assert.True(t, value.IsUndefined(v), "non-members see the sentinel, which degrades to undefined")

	for _, id := range []CellID{a, b} {
		v, err := f.g.Get(f.ctx, id)
		require.NoError(t, err)
		assert.True(t, value.IsError(v))
		status, err := f.g.Status(id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, status)
	}

	list := f.diags.Diagnostics()
	require.Len(t, list, 1)
	assert.Equal(t, diag.Structural, list[0].Pass)
	assert.Equal(t, "The state variables a.value -> b.value -> a.value depend on each other.", list[0].Detail)
}

func TestCycle_SelfReference(t *testing.T) {
	f := newFixture(t)
	var a CellID
	a = f.derived(t, "a", func(ctx context.Context, r *Reader) (cty.Value, error) {
		return r.Get(ctx, a)
	})

	v, err := f.g.Get(f.ctx, a)
	require.NoError(t, err)
	assert.True(t, value.IsError(v))
	require.Equal(t, 1, f.diags.Len())
}

func TestRecursive_ReadsPreviousValue(t *testing.T) {
	f := newFixture(t)
	var counter CellID
	var err error
	counter, err = f.g.Register(f.ctx, Definition{
		Key:       key("counter"),
		Recursive: true,
		Compute: func(ctx context.Context, r *Reader) (cty.Value, error) {
			prev, err := r.Get(ctx, counter)
			if err != nil {
				return cty.NilVal, err
			}
			if !prev.IsKnown() {
				return cty.NumberIntVal(0), nil
			}
			return prev.Add(cty.NumberIntVal(1)), nil
		},
	})
	require.NoError(t, err)

	v, err := f.g.Get(f.ctx, counter)
	require.NoError(t, err)
	assert.True(t, value.Equal(cty.NumberIntVal(0), v))
	assert.Zero(t, f.diags.Len())
}

func TestDeferred_RetriedOnRequest(t *testing.T) {
	f := newFixture(t)
	ready := false
	a := f.derived(t, "a", func(ctx context.Context, r *Reader) (cty.Value, error) {
		if !ready {
			return cty.NilVal, Deferred("waiting for %s", "r")
		}
		return cty.NumberIntVal(7), nil
	})
	calls := 0
	b := f.derived(t, "b", plusOne(&a, &calls))

	_, err := f.g.Get(f.ctx, b)
	require.ErrorIs(t, err, ErrDeferred)
	status, err := f.g.Status(b)
	require.NoError(t, err)
	assert.Equal(t, StatusDeferred, status)
	assert.Equal(t, []CellID{a, b}, f.g.Deferred())

	// Still deferred until a retry is signalled.
	ready = true
	_, err = f.g.Get(f.ctx, b)
	require.ErrorIs(t, err, ErrDeferred)

	assert.Equal(t, 2, f.g.RetryDeferred(f.ctx))
	v, err := f.g.Get(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, value.Equal(cty.NumberIntVal(8), v))
}

func TestRemove_ReadsReturnNotFound(t *testing.T) {
	f := newFixture(t)
	a := f.essential(t, "a", cty.NumberIntVal(1))
	calls := 0
	b := f.derived(t, "b", plusOne(&a, &calls))
	_, err := f.g.Get(f.ctx, b)
	require.NoError(t, err)

	f.g.Remove(f.ctx, a)

	_, err = f.g.Get(f.ctx, a)
	assert.ErrorIs(t, err, ErrCellNotFound)
	assert.False(t, f.g.Exists(a))

	v, err := f.g.Get(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, value.IsError(v), "dependents of removed cells fail instead of reading stale data")
}

func TestRemove_DropsEssentialState(t *testing.T) {
	f := newFixture(t)
	a := f.essential(t, "a", cty.StringVal(""))
	require.NoError(t, f.g.WriteInverse(f.ctx, a, cty.StringVal("typed")))

	_, ok, err := f.store.Get(f.ctx, key("a"))
	require.NoError(t, err)
	require.True(t, ok)

	f.g.Remove(f.ctx, a)
	_, ok, err = f.store.Get(f.ctx, key("a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegister_RestoresStoredEssentialValue(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(f.ctx, key("a"), cty.StringVal("restored")))

	a := f.essential(t, "a", cty.StringVal("default"))
	v, err := f.g.Get(f.ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "restored", v.AsString())
}

func TestRegister_MissingDeclaredDependency(t *testing.T) {
	f := newFixture(t)
	_, err := f.g.Register(f.ctx, Definition{
		Key:     key("a"),
		Deps:    []CellID{99},
		Compute: func(context.Context, *Reader) (cty.Value, error) { return cty.True, nil },
	})
	assert.ErrorIs(t, err, ErrCellNotFound)
}

func TestDeclaredDeps(t *testing.T) {
	f := newFixture(t)
	x := f.essential(t, "x", cty.NumberIntVal(2))
	y := f.essential(t, "y", cty.NumberIntVal(3))
	sum, err := f.g.Register(f.ctx, Definition{
		Key:  key("sum"),
		Deps: []CellID{x, y},
		Compute: func(ctx context.Context, r *Reader) (cty.Value, error) {
			vals, err := r.Deps(ctx)
			if err != nil {
				return cty.NilVal, err
			}
			return vals[0].Add(vals[1]), nil
		},
	})
	require.NoError(t, err)

	v, err := f.g.Get(f.ctx, sum)
	require.NoError(t, err)
	assert.True(t, value.Equal(cty.NumberIntVal(5), v))
}

func TestCompute_ErrorBecomesSentinelAndDiagnostic(t *testing.T) {
	f := newFixture(t)
	a := f.derived(t, "a", func(context.Context, *Reader) (cty.Value, error) {
		return cty.NilVal, errors.New("division by zero")
	})

	v, err := f.g.Get(f.ctx, a)
	require.NoError(t, err)
	assert.True(t, value.IsError(v))

	list := f.diags.Diagnostics()
	require.Len(t, list, 1)
	assert.Equal(t, diag.Definition, list[0].Pass)
	assert.Equal(t, "division by zero", list[0].Detail)
	assert.Equal(t, "a", list[0].Component)
}

func TestCompute_TypeConversion(t *testing.T) {
	f := newFixture(t)
	n, err := f.g.Register(f.ctx, Definition{
		Key:     key("n"),
		Type:    cty.Number,
		Compute: func(context.Context, *Reader) (cty.Value, error) { return cty.StringVal("12"), nil },
	})
	require.NoError(t, err)
	bad, err := f.g.Register(f.ctx, Definition{
		Key:     key("bad"),
		Type:    cty.Number,
		Compute: func(context.Context, *Reader) (cty.Value, error) { return cty.StringVal("twelve"), nil },
	})
	require.NoError(t, err)

	v, err := f.g.Get(f.ctx, n)
	require.NoError(t, err)
	assert.True(t, value.Equal(cty.NumberIntVal(12), v))

	v, err = f.g.Get(f.ctx, bad)
	require.NoError(t, err)
	assert.True(t, value.IsError(v))
	assert.Equal(t, "Incorrect value type", f.diags.Diagnostics()[0].Summary)
}

func TestCompute_NilValueIsInvariantViolation(t *testing.T) {
	f := newFixture(t)
	a := f.derived(t, "a", func(context.Context, *Reader) (cty.Value, error) { return cty.NilVal, nil })

	_, err := f.g.Get(f.ctx, a)
	var ie *InvariantError
	assert.ErrorAs(t, err, &ie)
}

func TestDrainChanged(t *testing.T) {
	f := newFixture(t)
	a := f.essential(t, "a", cty.NumberIntVal(1))
	calls := 0
	b := f.derived(t, "b", plusOne(&a, &calls))
	_, err := f.g.Get(f.ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []CellID{b}, f.g.DrainChanged())

	require.NoError(t, f.g.WriteInverse(f.ctx, a, cty.NumberIntVal(2)))
	_, err = f.g.Get(f.ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []CellID{a, b}, f.g.DrainChanged())
	assert.Empty(t, f.g.DrainChanged())
}

func TestInvalidate_DerivedCell(t *testing.T) {
	f := newFixture(t)
	calls := 0
	a := f.derived(t, "a", func(context.Context, *Reader) (cty.Value, error) {
		calls++
		return cty.NumberIntVal(1), nil
	})
	_, err := f.g.Get(f.ctx, a)
	require.NoError(t, err)

	f.g.Invalidate(f.ctx, a)
	_, err = f.g.Get(f.ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "a cell without dependencies is always recomputed once stale")
}
