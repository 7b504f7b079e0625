// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package statestore

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zclconf/go-cty/cty"
	ctymsgpack "github.com/zclconf/go-cty/cty/msgpack"
)

// FormatVersion is written into every encoded snapshot.
const FormatVersion = 1

// Snapshot is the serializable essential state of a session together with
// the variant seed the session was created with.
type Snapshot struct {
	Seed    uint64
	Entries []Entry
}

type wireSnapshot struct {
	Version int         `msgpack:"version"`
	Seed    uint64      `msgpack:"seed"`
	Entries []wireEntry `msgpack:"entries"`
}

type wireEntry struct {
	Component string `msgpack:"component"`
	Variable  string `msgpack:"variable"`
	// Value is a cty msgpack payload encoded against the dynamic
	// pseudo-type, so it carries its own type.
	Value []byte `msgpack:"value"`
}

// Encode serializes a snapshot.
func Encode(s Snapshot) ([]byte, error) {
	w := wireSnapshot{Version: FormatVersion, Seed: s.Seed, Entries: make([]wireEntry, 0, len(s.Entries))}
	for _, e := range s.Entries {
		raw, err := ctymsgpack.Marshal(e.Value, cty.DynamicPseudoType)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", e.Key, err)
		}
		w.Entries = append(w.Entries, wireEntry{Component: e.Key.Component, Variable: e.Key.Variable, Value: raw})
	}
	return msgpack.Marshal(&w)
}

// Decode parses a snapshot written by Encode.
func Decode(b []byte) (Snapshot, error) {
	var w wireSnapshot
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return Snapshot{}, fmt.Errorf("decoding state snapshot: %w", err)
	}
	if w.Version != FormatVersion {
		return Snapshot{}, fmt.Errorf("unsupported state snapshot version %d", w.Version)
	}
	s := Snapshot{Seed: w.Seed, Entries: make([]Entry, 0, len(w.Entries))}
	for _, e := range w.Entries {
		key := Key{Component: e.Component, Variable: e.Variable}
		v, err := ctymsgpack.Unmarshal(e.Value, cty.DynamicPseudoType)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decoding %s: %w", key, err)
		}
		s.Entries = append(s.Entries, Entry{Key: key, Value: v})
	}
	return s, nil
}
