// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package value

import (
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Format renders v for display. Undefined and error sentinels are rendered
// distinctly from any computed value.
func Format(v cty.Value) string {
	var sb strings.Builder
	format(&sb, v)
	return sb.String()
}

func format(sb *strings.Builder, v cty.Value) {
	switch {
	case IsUndefined(v):
		sb.WriteString("<undefined>")
		return
	case IsError(v):
		sb.WriteString("<error: " + ErrorReason(v) + ">")
		return
	case v.IsNull():
		sb.WriteString("null")
		return
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		sb.WriteString(v.AsString())
	case ty == cty.Number:
		sb.WriteString(v.AsBigFloat().Text('f', -1))
	case ty == cty.Bool:
		if v.True() {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		sb.WriteRune('(')
		first := true
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			if !first {
				sb.WriteString(", ")
			}
			first = false
			format(sb, ev)
		}
		sb.WriteRune(')')
	case ty.IsObjectType() || ty.IsMapType():
		sb.WriteRune('{')
		first := true
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(k.AsString())
			sb.WriteString(": ")
			format(sb, ev)
		}
		sb.WriteRune('}')
	default:
		sb.WriteString(ty.FriendlyName())
	}
}
