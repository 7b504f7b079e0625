// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package exprs_test

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/exprs"
	"github.com/zclconf/go-cty/cty"
)

func eval(t *testing.T, src string) (cty.Value, hcl.Diagnostics) {
	t.Helper()
	ctx := &hcl.EvalContext{Functions: exprs.Functions()}
	return parseExpr(t, src).Value(ctx)
}

func TestFunctions_Math(t *testing.T) {
	tests := []struct {
		src  string
		want cty.Value
	}{
		{`sqrt(16)`, cty.NumberIntVal(4)},
		{`round(2.5)`, cty.NumberIntVal(3)},
		{`round(-2.5)`, cty.NumberIntVal(-3)},
		{`round(2.4)`, cty.NumberIntVal(2)},
		{`abs(-7)`, cty.NumberIntVal(7)},
		{`max(1, 9, 4)`, cty.NumberIntVal(9)},
		{`mod(7, 3)`, cty.NumberIntVal(1)},
		{`pow(2, 10)`, cty.NumberIntVal(1024)},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, diags := eval(t, tt.src)
			require.False(t, diags.HasErrors(), diags.Error())
			require.True(t, got.Equals(tt.want).True(), "got %#v", got)
		})
	}
}

func TestFunctions_SqrtNegative(t *testing.T) {
	_, diags := eval(t, `sqrt(-1)`)
	require.True(t, diags.HasErrors())
	require.Contains(t, diags.Error(), "square root")
}

func TestFunctions_UnknownArgumentsPropagate(t *testing.T) {
	ctx := &hcl.EvalContext{
		Functions: exprs.Functions(),
		Variables: map[string]cty.Value{"n": cty.DynamicVal},
	}
	got, diags := parseExpr(t, `sqrt(n) + 1`).Value(ctx)
	require.False(t, diags.HasErrors())
	require.False(t, got.IsKnown())
}

func TestUnknownFunctions(t *testing.T) {
	require.Empty(t, exprs.UnknownFunctions([]string{"sqrt", "upper"}))
	require.Equal(t, []string{"bogus", "file"}, exprs.UnknownFunctions([]string{"sqrt", "file", "bogus"}))
}
