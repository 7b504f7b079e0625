// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package refpath

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// FromTraversal converts an absolute hcl.Traversal into a Path. Attribute
// steps become named segments; index steps become selectors. Splat and
// non-constant index steps are rejected.
func FromTraversal(t hcl.Traversal) (Path, hcl.Diagnostics) {
	var p Path
	var diags hcl.Diagnostics

	for _, step := range t {
		switch s := step.(type) {
		case hcl.TraverseRoot:
			p = p.Child(s.Name)
		case hcl.TraverseAttr:
			p = p.Child(s.Name)
		case hcl.TraverseIndex:
			sel, err := selectorFromKey(s.Key)
			if err != nil {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid reference index",
					Detail:   err.Error(),
					Subject:  s.SrcRange.Ptr(),
				})
				return Path{}, diags
			}
			if sel.HasKey() {
				p = p.Keyed(sel.Key)
			} else {
				p = p.Indexed(sel.Index)
			}
		default:
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unsupported reference",
				Detail:   "Splat expressions and relative traversals cannot address components.",
				Subject:  step.SourceRange().Ptr(),
			})
			return Path{}, diags
		}
	}
	return p, diags
}

func selectorFromKey(key cty.Value) (Segment, error) {
	if !key.IsKnown() || key.IsNull() {
		return Segment{}, fmt.Errorf("the index must be a known, non-null value")
	}
	switch key.Type() {
	case cty.Number:
		bf := key.AsBigFloat()
		if !bf.IsInt() {
			return Segment{}, fmt.Errorf("the index must be a whole number")
		}
		n, _ := bf.Int64()
		if n < 0 {
			return Segment{}, fmt.Errorf("the index must not be negative")
		}
		return Segment{Index: int(n)}, nil
	case cty.String:
		k := key.AsString()
		if k == "" {
			return Segment{}, fmt.Errorf("the key must not be empty")
		}
		return Segment{Index: -1, Key: k}, nil
	default:
		return Segment{}, fmt.Errorf("the index must be a number or a string, got %s", key.Type().FriendlyName())
	}
}
