// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package component

import "fmt"

// Kind is the type tag of a component.
type Kind int

const (
	KindInvalid Kind = iota
	KindDocument
	KindNumber
	KindMath
	KindText
	KindBoolean
	KindTextInput
	KindBooleanInput
	KindPoint
	KindSolution
	KindRepeat
	KindMap
	KindSelect
	KindConditional
	KindGroup
	KindCopy
	KindCollect
	// KindInstance is one replacement slot of a composite.
	KindInstance
	// KindMirror is the replacement produced by copy and collect.
	KindMirror
)

var kindNames = map[Kind]string{
	KindDocument:     "document",
	KindNumber:       "number",
	KindMath:         "math",
	KindText:         "text",
	KindBoolean:      "boolean",
	KindTextInput:    "textinput",
	KindBooleanInput: "booleaninput",
	KindPoint:        "point",
	KindSolution:     "solution",
	KindRepeat:       "repeat",
	KindMap:          "map",
	KindSelect:       "select",
	KindConditional:  "conditional",
	KindGroup:        "group",
	KindCopy:         "copy",
	KindCollect:      "collect",
	KindInstance:     "instance",
	KindMirror:       "mirror",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

// ParseKind returns the kind declared by a markup block type. Internal
// kinds are not declarable and yield false.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	if !ok || !k.Declarable() {
		return KindInvalid, false
	}
	return k, true
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Declarable reports whether the kind may appear as a block in markup.
func (k Kind) Declarable() bool {
	switch k {
	case KindInvalid, KindDocument, KindInstance, KindMirror:
		return false
	}
	_, ok := kindNames[k]
	return ok
}

// IsComposite reports whether components of this kind expand into
// replacement instances.
func (k Kind) IsComposite() bool {
	switch k {
	case KindRepeat, KindMap, KindSelect, KindConditional, KindGroup, KindCopy, KindCollect:
		return true
	}
	return false
}

// CreatesNamespaces reports whether the instances of a composite of this
// kind are namespaces of their own.
func (k Kind) CreatesNamespaces() bool {
	switch k {
	case KindRepeat, KindMap, KindSelect:
		return true
	}
	return false
}

// Transparent reports whether names declared in this composite's instances
// belong to the enclosing namespace.
func (k Kind) Transparent() bool {
	return k == KindGroup || k == KindConditional
}

// Actions returns the action names a component of this kind accepts, not
// counting the generic setStateVariable.
func (k Kind) Actions() []string {
	switch k {
	case KindNumber, KindMath, KindText, KindBoolean:
		return []string{"setValue"}
	case KindTextInput:
		return []string{"updateImmediateValue", "updateValue"}
	case KindBooleanInput:
		return []string{"updateBoolean"}
	case KindPoint:
		return []string{"movePoint"}
	case KindSolution:
		return []string{"revealSolution"}
	}
	return nil
}
