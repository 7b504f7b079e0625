// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGranted(t *testing.T) {
	testCases := []struct {
		name      string
		responses []any
		want      bool
	}{
		{name: "no renderers", responses: nil, want: false},
		{name: "single yes", responses: []any{true}, want: true},
		{name: "nested yes", responses: []any{[]any{true}, []any{true}}, want: true},
		{name: "one renderer says no", responses: []any{[]any{true}, []any{false}}, want: false},
		{name: "empty answer", responses: []any{[]any{}}, want: false},
		{name: "non-boolean answer", responses: []any{"yes"}, want: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, granted(tc.responses))
		})
	}
}
