// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package cellgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// point registers x, y and a derived object cell whose inverse splits a
// written object into writes on x and y.
func point(t *testing.T, f *fixture) (x, y, p CellID) {
	t.Helper()
	x = f.essential(t, "P.x", cty.NumberIntVal(0))
	y = f.essential(t, "P.y", cty.NumberIntVal(0))
	var err error
	p, err = f.g.Register(f.ctx, Definition{
		Key:  key("P"),
		Deps: []CellID{x, y},
		Compute: func(ctx context.Context, r *Reader) (cty.Value, error) {
			vals, err := r.Deps(ctx)
			if err != nil {
				return cty.NilVal, err
			}
			return cty.ObjectVal(map[string]cty.Value{"x": vals[0], "y": vals[1]}), nil
		},
		Inverse: func(ctx context.Context, g Getter, desired cty.Value) ([]Write, error) {
			return []Write{
				{Cell: x, Value: desired.GetAttr("x")},
				{Cell: y, Value: desired.GetAttr("y")},
			}, nil
		},
	})
	require.NoError(t, err)
	return x, y, p
}

func pt(x, y int64) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{"x": cty.NumberIntVal(x), "y": cty.NumberIntVal(y)})
}

func TestTx_InverseWritesReachEssentialCells(t *testing.T) {
	f := newFixture(t)
	x, y, p := point(t, f)

	tx := f.g.Begin()
	require.NoError(t, tx.Write(f.ctx, p, pt(5, 6)))
	tx.Commit()
	assert.Equal(t, []CellID{x, y}, tx.Written())

	v, err := f.g.Get(f.ctx, p)
	require.NoError(t, err)
	assert.True(t, value.Equal(pt(5, 6), v))
}

func TestTx_RollbackRestoresEverything(t *testing.T) {
	f := newFixture(t)
	x, _, p := point(t, f)
	_, err := f.g.Get(f.ctx, p)
	require.NoError(t, err)

	tx := f.g.Begin()
	require.NoError(t, tx.Write(f.ctx, p, pt(3, 4)))
	tx.Rollback(f.ctx)

	v, err := f.g.Get(f.ctx, p)
	require.NoError(t, err)
	assert.True(t, value.Equal(pt(0, 0), v))

	_, ok, err := f.store.Get(f.ctx, key("P.x"))
	require.NoError(t, err)
	assert.False(t, ok, "essential state written by the transaction must be removed again")

	xv, err := f.g.Get(f.ctx, x)
	require.NoError(t, err)
	assert.True(t, value.Equal(cty.NumberIntVal(0), xv))
}

func TestTx_PartialFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	x, y, _ := point(t, f)

	tx := f.g.Begin()
	require.NoError(t, tx.Write(f.ctx, x, cty.NumberIntVal(9)))
	err := tx.Write(f.ctx, y, cty.StringVal("not a number"))
	require.Error(t, err)
	var ie *InverseError
	require.ErrorAs(t, err, &ie)
	tx.Rollback(f.ctx)

	xv, err := f.g.Get(f.ctx, x)
	require.NoError(t, err)
	assert.True(t, value.Equal(cty.NumberIntVal(0), xv))
}

func TestTx_DerivedWithoutInverseIsRejected(t *testing.T) {
	f := newFixture(t)
	a := f.essential(t, "a", cty.NumberIntVal(1))
	calls := 0
	b := f.derived(t, "b", plusOne(&a, &calls))

	err := f.g.WriteInverse(f.ctx, b, cty.NumberIntVal(5))
	require.ErrorIs(t, err, ErrInverseUnavailable)
	assert.EqualError(t, err, "writing b.value: cannot set this derived value")

	av, err := f.g.Get(f.ctx, a)
	require.NoError(t, err)
	assert.True(t, value.Equal(cty.NumberIntVal(1), av))
}

func TestTx_FixedTargetIsSkipped(t *testing.T) {
	f := newFixture(t)
	fixed, err := f.g.Register(f.ctx, Definition{Key: key("f"), Essential: true, Fixed: true, Initial: cty.NumberIntVal(1)})
	require.NoError(t, err)

	tx := f.g.Begin()
	require.NoError(t, tx.Write(f.ctx, fixed, cty.NumberIntVal(2)))
	tx.Commit()

	require.Len(t, tx.Skipped(), 1)
	assert.Equal(t, key("f"), tx.Skipped()[0].Key)
	v, err := f.g.Get(f.ctx, fixed)
	require.NoError(t, err)
	assert.True(t, value.Equal(cty.NumberIntVal(1), v))
}

func TestTx_WriteAfterFinishFails(t *testing.T) {
	f := newFixture(t)
	a := f.essential(t, "a", cty.NumberIntVal(1))
	tx := f.g.Begin()
	tx.Commit()
	assert.Error(t, tx.Write(f.ctx, a, cty.NumberIntVal(2)))
}
