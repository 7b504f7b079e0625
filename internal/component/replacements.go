// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package component

import (
	"github.com/zclconf/go-cty/cty"
)

// Replacement describes one slot of a composite's replacement set as it is
// stored in the composite's replacements cell.
type Replacement struct {
	// Position is the 1-based position in the set.
	Position int
	Key      string
	Active   bool
}

var replacementType = cty.Object(map[string]cty.Type{
	"index":  cty.Number,
	"key":    cty.String,
	"active": cty.Bool,
})

// EncodeReplacements renders a replacement set as a cell value.
func EncodeReplacements(reps []Replacement) cty.Value {
	if len(reps) == 0 {
		return cty.EmptyTupleVal
	}
	vals := make([]cty.Value, 0, len(reps))
	for _, r := range reps {
		vals = append(vals, cty.ObjectVal(map[string]cty.Value{
			"index":  cty.NumberIntVal(int64(r.Position)),
			"key":    cty.StringVal(r.Key),
			"active": cty.BoolVal(r.Active),
		}))
	}
	return cty.TupleVal(vals)
}

// DecodeReplacements reads a value produced by EncodeReplacements. It
// returns false for anything else, including the error sentinel.
func DecodeReplacements(v cty.Value) ([]Replacement, bool) {
	if v == cty.NilVal || !v.IsWhollyKnown() || v.IsNull() || !v.Type().IsTupleType() {
		return nil, false
	}
	out := make([]Replacement, 0, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		if !ev.Type().Equals(replacementType) {
			return nil, false
		}
		pos, _ := ev.GetAttr("index").AsBigFloat().Int64()
		out = append(out, Replacement{
			Position: int(pos),
			Key:      ev.GetAttr("key").AsString(),
			Active:   ev.GetAttr("active").True(),
		})
	}
	return out, true
}
