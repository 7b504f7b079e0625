// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package component

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/docgrid/internal/document"
	"github.com/vk/docgrid/internal/exprs"
	"github.com/zclconf/go-cty/cty"
)

// attrKind says how an attribute is evaluated.
type attrKind int

const (
	// attrExpr is evaluated as a state variable definition.
	attrExpr attrKind = iota
	// attrStatic must be a constant and is read once at construction.
	attrStatic
	// attrReference must be a single reference and is resolved, not
	// evaluated.
	attrReference
)

type attrRule struct {
	kind     attrKind
	required bool
	// typ is checked for static attributes. cty.NilType skips the check.
	typ cty.Type
}

type blockRule struct {
	min, max int // max < 0 means unlimited
	attrs    map[string]attrRule
}

// Schema describes what a node of some kind may contain.
type Schema struct {
	attrs map[string]attrRule
	// blocks lists the structural sub-blocks.
	blocks map[string]blockRule
	// children allows component blocks directly in the body.
	children bool
}

var (
	fixedRule  = attrRule{kind: attrStatic, typ: cty.Bool}
	hideRule   = attrRule{kind: attrExpr}
	nameRule   = attrRule{kind: attrStatic, typ: cty.String}
	bodyBlock  = blockRule{min: 1, max: 1}
	valueAttrs = func(required bool) map[string]attrRule {
		return map[string]attrRule{
			"value": {kind: attrExpr, required: required},
			"fixed": fixedRule,
		}
	}
)

var schemas = map[Kind]*Schema{
	KindDocument: {
		attrs:    map[string]attrRule{"title": {kind: attrStatic, typ: cty.String}},
		children: true,
	},
	KindNumber:  {attrs: valueAttrs(true)},
	KindText:    {attrs: valueAttrs(true)},
	KindBoolean: {attrs: valueAttrs(true)},
	KindMath: {attrs: map[string]attrRule{
		"expr":  {kind: attrExpr, required: true},
		"fixed": fixedRule,
	}},
	KindTextInput: {attrs: map[string]attrRule{
		"prefill": {kind: attrStatic, typ: cty.String},
		"fixed":   fixedRule,
	}},
	KindBooleanInput: {attrs: map[string]attrRule{
		"prefill": {kind: attrStatic, typ: cty.Bool},
		"fixed":   fixedRule,
	}},
	KindPoint: {attrs: map[string]attrRule{
		"x":     {kind: attrExpr, required: true},
		"y":     {kind: attrExpr, required: true},
		"fixed": fixedRule,
	}},
	KindSolution: {attrs: map[string]attrRule{"hide": hideRule}},
	KindRepeat: {
		attrs: map[string]attrRule{
			"length":     {kind: attrExpr, required: true},
			"index_name": nameRule,
			"hide":       hideRule,
		},
		blocks: map[string]blockRule{"template": bodyBlock},
	},
	KindMap: {
		attrs: map[string]attrRule{
			"sources":    {kind: attrExpr, required: true},
			"value_name": nameRule,
			"index_name": nameRule,
			"key":        {kind: attrExpr},
			"hide":       hideRule,
		},
		blocks: map[string]blockRule{"template": bodyBlock},
	},
	KindSelect: {
		attrs: map[string]attrRule{
			"number_to_select": {kind: attrExpr},
			"with_replacement": {kind: attrStatic, typ: cty.Bool},
			"hide":             hideRule,
		},
		blocks: map[string]blockRule{"option": {
			min: 1, max: -1,
			attrs: map[string]attrRule{"weight": {kind: attrStatic, typ: cty.Number}},
		}},
	},
	KindConditional: {
		blocks: map[string]blockRule{
			"case": {min: 1, max: -1, attrs: map[string]attrRule{"condition": {kind: attrExpr, required: true}}},
			"else": {min: 0, max: 1},
		},
	},
	KindGroup: {attrs: map[string]attrRule{"hide": hideRule}, children: true},
	KindCopy: {attrs: map[string]attrRule{
		"source": {kind: attrReference, required: true},
	}},
	KindCollect: {attrs: map[string]attrRule{
		"source":         {kind: attrReference, required: true},
		"component_kind": {kind: attrStatic, required: true, typ: cty.String},
	}},
}

// SchemaFor returns the schema of a kind, or nil for kinds that are never
// declared in markup.
func SchemaFor(k Kind) *Schema {
	return schemas[k]
}

// IsStatic reports whether the named attribute of the kind is read once at
// construction instead of becoming a state variable.
func (s *Schema) IsStatic(name string) bool {
	r, ok := s.attrs[name]
	return ok && r.kind != attrExpr
}

// Validate checks a whole document tree and returns structural diagnostics
// in document order.
func Validate(root *document.Node) hcl.Diagnostics {
	v := &validator{}
	v.node(root, KindDocument)
	return v.diags
}

type validator struct {
	diags hcl.Diagnostics
}

func (v *validator) errorf(subject hcl.Range, summary, format string, args ...any) {
	v.diags = append(v.diags, &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   fmt.Sprintf(format, args...),
		Subject:  subject.Ptr(),
	})
}

// node validates n as a component of kind k.
func (v *validator) node(n *document.Node, k Kind) {
	s := schemas[k]

	if k != KindDocument {
		switch {
		case len(n.Labels) > 1:
			v.errorf(n.LabelRanges[1], "Extraneous label", "A %s block takes at most one label, its name.", n.Type)
		case len(n.Labels) == 1 && !hclsyntax.ValidIdentifier(n.Name):
			v.errorf(n.LabelRanges[0], "Invalid component name", "%q is not a valid name. Names start with a letter and contain only letters, digits, underscores and dashes.", n.Name)
		}
	}

	v.attributes(n, s.attrs)

	counts := make(map[string]int)
	for _, b := range n.Blocks {
		if rule, ok := s.blocks[b.Type]; ok {
			counts[b.Type]++
			if rule.max >= 0 && counts[b.Type] > rule.max {
				v.errorf(b.DefRange, "Duplicate "+b.Type+" block", "A %s block may contain at most %d %s block(s).", n.Type, rule.max, b.Type)
				continue
			}
			v.structural(b, rule)
			continue
		}
		if !s.children {
			v.errorf(b.TypeRange, "Unsupported block type", "Blocks of type %q are not expected here.", b.Type)
			continue
		}
		v.child(b)
	}

	blockTypes := make([]string, 0, len(s.blocks))
	for typ := range s.blocks {
		blockTypes = append(blockTypes, typ)
	}
	sort.Strings(blockTypes)
	for _, typ := range blockTypes {
		if rule := s.blocks[typ]; counts[typ] < rule.min {
			v.errorf(n.DefRange, "Missing "+typ+" block", "A %s block requires at least %d %s block(s).", n.Type, rule.min, typ)
		}
	}
}

// child validates a component block appearing inside a body that accepts
// components.
func (v *validator) child(b *document.Node) {
	k, ok := ParseKind(b.Type)
	if !ok {
		v.errorf(b.TypeRange, "Unsupported block type", "Blocks of type %q are not expected here.", b.Type)
		return
	}
	v.node(b, k)
}

// structural validates a template, option, case or else block.
func (v *validator) structural(b *document.Node, rule blockRule) {
	if len(b.Labels) > 0 {
		v.errorf(b.LabelRanges[0], "Extraneous label", "A %s block takes no labels.", b.Type)
	}
	v.attributes(b, rule.attrs)
	for _, c := range b.Blocks {
		v.child(c)
	}
}

func (v *validator) attributes(n *document.Node, rules map[string]attrRule) {
	known := make([]hcl.Expression, 0, len(n.Attrs))
	for _, a := range n.Attrs {
		rule, ok := rules[a.Name]
		if !ok {
			v.errorf(a.NameRange, "Unsupported argument", "An argument named %q is not expected here.", a.Name)
			continue
		}
		v.attribute(a, rule)
		known = append(known, a.Expr)
	}

	// One report per function and block, at its first call.
	for _, call := range exprs.Analyze(known...).UnknownCalls() {
		v.errorf(call.Range, "Call to unknown function", "There is no function named %q.", call.Name)
	}

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if rules[name].required && n.Attr(name) == nil {
			v.errorf(n.DefRange, "Missing required argument", "The argument %q is required, but no definition was found.", name)
		}
	}
}

func (v *validator) attribute(a *hcl.Attribute, rule attrRule) {
	switch rule.kind {
	case attrReference:
		if _, ok := exprs.BareReference(a.Expr); !ok {
			v.errorf(a.Expr.Range(), "Invalid reference", "The argument %q must be a reference to a component, such as `p` or `r[2].item`.", a.Name)
		}
	case attrStatic:
		if !exprs.IsStatic(a.Expr) {
			v.errorf(a.Expr.Range(), "Invalid static value", "The argument %q must not reference other values.", a.Name)
			return
		}
		val, diags := a.Expr.Value(&hcl.EvalContext{Functions: exprs.Functions()})
		if diags.HasErrors() {
			v.diags = append(v.diags, diags...)
			return
		}
		v.staticValue(a, rule, val)
	}
}

func (v *validator) staticValue(a *hcl.Attribute, rule attrRule, val cty.Value) {
	if rule.typ == cty.NilType {
		return
	}
	if val.IsNull() || !val.Type().Equals(rule.typ) {
		v.errorf(a.Expr.Range(), "Incorrect attribute value type", "The argument %q must be a %s.", a.Name, rule.typ.FriendlyName())
		return
	}

	switch a.Name {
	case "index_name", "value_name":
		if !hclsyntax.ValidIdentifier(val.AsString()) {
			v.errorf(a.Expr.Range(), "Invalid binding name", "%q is not a valid name.", val.AsString())
		}
	case "component_kind":
		if _, ok := ParseKind(val.AsString()); !ok {
			v.errorf(a.Expr.Range(), "Unknown component kind", "There is no component kind named %q.", val.AsString())
		}
	case "weight":
		if val.AsBigFloat().Sign() < 0 {
			v.errorf(a.Expr.Range(), "Invalid weight", "An option weight must not be negative.")
		}
	}
}
