// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package exprs

import (
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// TraversalKey generates a stable, canonical string representation for an hcl.Traversal,
// suitable for use as a map key.
func TraversalKey(t hcl.Traversal) string {
	// e.g., r[2].item.value
	return string(hclwrite.TokensForTraversal(t).Bytes())
}

// IsStatic reports whether expr references nothing and can be evaluated
// without a context.
func IsStatic(expr hcl.Expression) bool {
	return expr != nil && len(expr.Variables()) == 0
}

// BareReference returns the traversal when expr is nothing but a single
// reference, such as `n` or `r[2].item`.
func BareReference(expr hcl.Expression) (hcl.Traversal, bool) {
	if expr == nil {
		return nil, false
	}
	t, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() || len(t) == 0 {
		return nil, false
	}
	return t, true
}

// Call is a function name and where it is first called.
type Call struct {
	Name  string
	Range hcl.Range
}

// Usage is what a group of expressions reads and calls.
type Usage struct {
	// References are unique by TraversalKey and sorted by it.
	References []hcl.Traversal
	// Calls are unique by name and sorted by it.
	Calls []Call
}

// Analyze walks through HCL expressions to find all unique variable
// traversals and function calls. Nil expressions are skipped.
func Analyze(exprs ...hcl.Expression) Usage {
	traversals := make(map[string]hcl.Traversal)
	calls := make(map[string]hcl.Range)

	for _, expr := range exprs {
		if expr == nil {
			continue
		}

		for _, traversal := range expr.Variables() {
			traversals[TraversalKey(traversal)] = traversal
		}

		// Variables() does not report function calls, so walk the syntax tree.
		if syntaxExpr, ok := expr.(hclsyntax.Expression); ok {
			walkForFunctions(syntaxExpr, calls)
		}
	}

	traversalKeys := make([]string, 0, len(traversals))
	for k := range traversals {
		traversalKeys = append(traversalKeys, k)
	}
	sort.Strings(traversalKeys)

	var u Usage
	u.References = make([]hcl.Traversal, 0, len(traversals))
	for _, k := range traversalKeys {
		u.References = append(u.References, traversals[k])
	}

	u.Calls = make([]Call, 0, len(calls))
	for name, rng := range calls {
		u.Calls = append(u.Calls, Call{Name: name, Range: rng})
	}
	sort.Slice(u.Calls, func(i, j int) bool { return u.Calls[i].Name < u.Calls[j].Name })

	return u
}

// CalledFunctions returns the called function names, sorted.
func (u Usage) CalledFunctions() []string {
	out := make([]string, 0, len(u.Calls))
	for _, c := range u.Calls {
		out = append(out, c.Name)
	}
	return out
}

// UnknownCalls returns the calls to functions missing from the function table.
func (u Usage) UnknownCalls() []Call {
	unknown := make(map[string]bool)
	for _, name := range UnknownFunctions(u.CalledFunctions()) {
		unknown[name] = true
	}
	var out []Call
	for _, c := range u.Calls {
		if unknown[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

// walkForFunctions recursively walks the AST, looking only for function calls.
// The earliest call site of each name is kept.
func walkForFunctions(expr hclsyntax.Expression, calls map[string]hcl.Range) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		if prev, ok := calls[e.Name]; !ok || e.NameRange.Start.Byte < prev.Start.Byte {
			calls[e.Name] = e.NameRange
		}
		for _, arg := range e.Args {
			walkForFunctions(arg, calls)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, calls)
		walkForFunctions(e.RHS, calls)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, calls)
		walkForFunctions(e.TrueResult, calls)
		walkForFunctions(e.FalseResult, calls)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, calls)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, calls)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, calls)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, calls)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, calls)
			walkForFunctions(item.ValueExpr, calls)
		}
	case *hclsyntax.ObjectConsKeyExpr:
		walkForFunctions(e.Wrapped, calls)
	case *hclsyntax.ForExpr:
		walkForFunctions(e.CollExpr, calls)
		walkForFunctions(e.KeyExpr, calls)
		walkForFunctions(e.ValExpr, calls)
		walkForFunctions(e.CondExpr, calls)
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, calls)
		walkForFunctions(e.Key, calls)
	case *hclsyntax.RelativeTraversalExpr:
		walkForFunctions(e.Source, calls)
	case *hclsyntax.SplatExpr:
		walkForFunctions(e.Source, calls)
		walkForFunctions(e.Each, calls)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, calls)
	}
}
