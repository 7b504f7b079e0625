// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/session"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

func TestParseScript(t *testing.T) {
	// --- Arrange ---
	src := []byte(`
allow_permissions: true
steps:
  - action: movePoint
    target: p
    args: {x: 3, y: -1.5}
    transient: true
  - action: updateImmediateValue
    target: answer
    args: {text: "forty two"}
`)

	// --- Act ---
	s, err := ParseScript(src)

	// --- Assert ---
	require.NoError(t, err)
	assert.True(t, s.AllowPermissions)
	require.Len(t, s.Steps, 2)

	move, err := s.Steps[0].Action()
	require.NoError(t, err)
	assert.Equal(t, session.ActionMovePoint, move.Name)
	assert.True(t, move.Transient)
	assert.True(t, value.Equal(cty.NumberIntVal(3), move.Args["x"]))
	assert.True(t, value.Equal(cty.NumberFloatVal(-1.5), move.Args["y"]))

	text, err := s.Steps[1].Action()
	require.NoError(t, err)
	assert.True(t, value.Equal(cty.StringVal("forty two"), text.Args["text"]))
}

func TestParseScript_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{name: "missing target", src: "steps:\n  - action: setValue\n"},
		{name: "unknown key", src: "steps:\n  - action: setValue\n    target: a\n    value: 3\n"},
		{name: "not yaml", src: "steps: [\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScript([]byte(tc.src))
			assert.Error(t, err)
		})
	}
}
