// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package value defines the sentinels and the equality used for cell values.
//
// Every cell holds a cty.Value. Two sentinels exist on top of ordinary
// values:
//   - Undefined is cty.DynamicVal. HCL operations on it produce unknown
//     results instead of errors, which is how dependents of an unresolved
//     reference degrade without failing.
//   - Error values wrap a reason in a capsule. They are produced by cycles
//     and failed definitions and are replaced by Undefined before being fed
//     into an expression.
package value

import (
	"reflect"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Undefined is the sentinel for values that cannot be determined.
var Undefined = cty.DynamicVal

type failure struct {
	Reason string
}

var errorType = cty.CapsuleWithOps("error", reflect.TypeOf(failure{}), &cty.CapsuleOps{
	GoString: func(v interface{}) string {
		return "value.Error(" + v.(*failure).Reason + ")"
	},
	TypeGoString: func(reflect.Type) string {
		return "value.ErrorType"
	},
	RawEquals: func(a, b interface{}) bool {
		return a.(*failure).Reason == b.(*failure).Reason
	},
})

// Error returns an error sentinel carrying reason.
func Error(reason string) cty.Value {
	return cty.CapsuleVal(errorType, &failure{Reason: reason})
}

// IsError reports whether v is an error sentinel.
func IsError(v cty.Value) bool {
	return v != cty.NilVal && v.IsKnown() && !v.IsNull() && v.Type().Equals(errorType)
}

// ErrorReason returns the reason carried by an error sentinel.
func ErrorReason(v cty.Value) string {
	if !IsError(v) {
		return ""
	}
	return v.EncapsulatedValue().(*failure).Reason
}

// IsUndefined reports whether v is unknown, i.e. not yet determinable.
func IsUndefined(v cty.Value) bool {
	return v == cty.NilVal || !v.IsKnown()
}

// ForEval prepares v for use inside an expression.
func ForEval(v cty.Value) cty.Value {
	if v == cty.NilVal || IsError(v) {
		return Undefined
	}
	return v
}

// Equal is the value-level equality that decides whether a recomputed value
// changed. Numbers compare numerically and error sentinels compare by reason.
func Equal(a, b cty.Value) bool {
	if a == cty.NilVal || b == cty.NilVal {
		return a == b
	}
	if IsError(a) || IsError(b) {
		return IsError(a) && IsError(b) && ErrorReason(a) == ErrorReason(b)
	}
	// Unknown results of differing types or refinements are all "undefined".
	if !a.IsKnown() || !b.IsKnown() {
		return !a.IsKnown() && !b.IsKnown()
	}
	return a.RawEquals(b)
}

// Convert converts v to ty. Unknown and error values are returned unchanged
// so that sentinels survive typed cells.
func Convert(v cty.Value, ty cty.Type) (cty.Value, error) {
	if ty == cty.NilType || ty == cty.DynamicPseudoType || !v.IsKnown() || IsError(v) {
		return v, nil
	}
	return convert.Convert(v, ty)
}
