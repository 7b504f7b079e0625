// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vk/docgrid/internal/session"
	"gopkg.in/yaml.v3"
)

// Script is a recorded sequence of actions, for example:
//
//	allow_permissions: true
//	steps:
//	  - action: setValue
//	    target: a
//	    args: {value: 3}
type Script struct {
	// AllowPermissions answers every permission question.
	AllowPermissions bool   `yaml:"allow_permissions"`
	Steps            []Step `yaml:"steps"`
}

// Step is one scripted action.
type Step struct {
	Action    string         `yaml:"action"`
	Target    string         `yaml:"target"`
	Args      map[string]any `yaml:"args"`
	Transient bool           `yaml:"transient"`
	Skippable bool           `yaml:"skippable"`
}

// LoadScript reads a YAML action script.
func LoadScript(path string) (*Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return ParseScript(raw)
}

// ParseScript decodes a YAML action script.
func ParseScript(raw []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	for i, st := range s.Steps {
		if st.Action == "" || st.Target == "" {
			return nil, fmt.Errorf("step %d: action and target are required", i+1)
		}
	}
	return &s, nil
}

// Action converts the step. Arguments go through JSON so they take the
// types a renderer would send.
func (st Step) Action() (session.Action, error) {
	raw := make(map[string]json.RawMessage, len(st.Args))
	for name, v := range st.Args {
		buf, err := json.Marshal(v)
		if err != nil {
			return session.Action{}, fmt.Errorf("argument %q: %w", name, err)
		}
		raw[name] = buf
	}
	args, err := session.DecodeArgs(raw)
	if err != nil {
		return session.Action{}, err
	}
	return session.Action{
		Name:      st.Action,
		Target:    st.Target,
		Args:      args,
		Transient: st.Transient,
		Skippable: st.Skippable,
	}, nil
}
