// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package exprs

import (
	"math/big"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// SqrtFunc returns the square root of a non-negative number.
var SqrtFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "num", Type: cty.Number},
	},
	Type: function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		f := args[0].AsBigFloat()
		if f.Sign() < 0 {
			return cty.UnknownVal(cty.Number), function.NewArgErrorf(0, "cannot take the square root of a negative number")
		}
		return cty.NumberVal(new(big.Float).SetPrec(f.Prec()).Sqrt(f)), nil
	},
})

// RoundFunc rounds a number to the nearest whole number, halves away from zero.
var RoundFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "num", Type: cty.Number},
	},
	Type: function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		f := args[0].AsBigFloat()
		half := big.NewFloat(0.5)
		if f.Sign() < 0 {
			half.Neg(half)
		}
		r := new(big.Float).Add(f, half)
		i, _ := r.Int(nil)
		return cty.NumberVal(new(big.Float).SetInt(i)), nil
	},
})

var functions = map[string]function.Function{
	"abs":       stdlib.AbsoluteFunc,
	"ceil":      stdlib.CeilFunc,
	"coalesce":  stdlib.CoalesceFunc,
	"concat":    stdlib.ConcatFunc,
	"contains":  stdlib.ContainsFunc,
	"element":   stdlib.ElementFunc,
	"floor":     stdlib.FloorFunc,
	"format":    stdlib.FormatFunc,
	"int":       stdlib.IntFunc,
	"join":      stdlib.JoinFunc,
	"keys":      stdlib.KeysFunc,
	"length":    stdlib.LengthFunc,
	"log":       stdlib.LogFunc,
	"lookup":    stdlib.LookupFunc,
	"lower":     stdlib.LowerFunc,
	"max":       stdlib.MaxFunc,
	"merge":     stdlib.MergeFunc,
	"min":       stdlib.MinFunc,
	"mod":       stdlib.ModuloFunc,
	"parseint":  stdlib.ParseIntFunc,
	"pow":       stdlib.PowFunc,
	"range":     stdlib.RangeFunc,
	"reverse":   stdlib.ReverseListFunc,
	"round":     RoundFunc,
	"signum":    stdlib.SignumFunc,
	"sort":      stdlib.SortFunc,
	"split":     stdlib.SplitFunc,
	"sqrt":      SqrtFunc,
	"strlen":    stdlib.StrlenFunc,
	"substr":    stdlib.SubstrFunc,
	"title":     stdlib.TitleFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"upper":     stdlib.UpperFunc,
	"values":    stdlib.ValuesFunc,
}

// Functions returns the function table available to document expressions.
// The map is shared; callers must not modify it.
func Functions() map[string]function.Function {
	return functions
}

// UnknownFunctions returns the names in called that are not in the function
// table, sorted.
func UnknownFunctions(called []string) []string {
	var out []string
	for _, name := range called {
		if _, ok := functions[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
