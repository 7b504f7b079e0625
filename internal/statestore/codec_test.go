// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package statestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zclconf/go-cty/cty"
)

func TestEncodeDecode_PreservesTypesAndValues(t *testing.T) {
	in := Snapshot{
		Seed: 42,
		Entries: []Entry{
			{Key: Key{Component: "answer", Variable: "value"}, Value: cty.StringVal("x^2")},
			{Key: Key{Component: "P", Variable: "x"}, Value: cty.NumberFloatVal(5.25)},
			{Key: Key{Component: "r[2].flag", Variable: "value"}, Value: cty.True},
			{Key: Key{Component: "list", Variable: "value"}, Value: cty.TupleVal([]cty.Value{cty.NumberIntVal(1), cty.StringVal("a")})},
			{Key: Key{Component: "obj", Variable: "value"}, Value: cty.ObjectVal(map[string]cty.Value{"x": cty.NumberIntVal(3)})},
		},
	}

	raw, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, in.Seed, out.Seed)
	require.Len(t, out.Entries, len(in.Entries))
	for i := range in.Entries {
		assert.Equal(t, in.Entries[i].Key, out.Entries[i].Key)
		assert.True(t, in.Entries[i].Value.Type().Equals(out.Entries[i].Value.Type()), "type of %s", in.Entries[i].Key)
		assert.True(t, in.Entries[i].Value.RawEquals(out.Entries[i].Value), "value of %s", in.Entries[i].Key)
	}
}

func TestDecode_RejectsUnknownVersion(t *testing.T) {
	raw, err := msgpack.Marshal(&wireSnapshot{Version: 99})
	require.NoError(t, err)

	_, err = Decode(raw)
	assert.ErrorContains(t, err, "unsupported state snapshot version 99")
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xc1})
	assert.Error(t, err)
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "r[1].item.value", Key{Component: "r[1].item", Variable: "value"}.String())
	assert.Equal(t, "value", Key{Variable: "value"}.String())
}
