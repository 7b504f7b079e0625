// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package component

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

func TestReplacements_EncodeDecode(t *testing.T) {
	reps := []Replacement{
		{Position: 1, Key: "1", Active: true},
		{Position: 2, Key: "else", Active: false},
	}
	got, ok := DecodeReplacements(EncodeReplacements(reps))
	require.True(t, ok)
	require.Equal(t, reps, got)

	got, ok = DecodeReplacements(EncodeReplacements(nil))
	require.True(t, ok)
	require.Empty(t, got)
}

func TestReplacements_DecodeRejectsOtherValues(t *testing.T) {
	for _, v := range []cty.Value{
		cty.NilVal,
		value.Undefined,
		value.Error("boom"),
		cty.NumberIntVal(3),
		cty.TupleVal([]cty.Value{cty.StringVal("x")}),
	} {
		_, ok := DecodeReplacements(v)
		require.False(t, ok, "%#v", v)
	}
}
