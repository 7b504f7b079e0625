// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/component"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Variable is one state variable in a snapshot.
type Variable struct {
	Name    string
	Value   cty.Value
	Display string
	// Status is the cell status, such as "computed" or "deferred".
	Status string
}

// MarshalJSON renders the value in cty's JSON form. Undefined, unknown and
// error values are rendered as null; Display tells them apart.
func (v Variable) MarshalJSON() ([]byte, error) {
	raw, err := v.valueJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Name    string          `json:"name"`
		Value   json.RawMessage `json:"value"`
		Display string          `json:"display"`
		Status  string          `json:"status,omitempty"`
	}{v.Name, raw, v.Display, v.Status})
}

func (v Variable) valueJSON() (json.RawMessage, error) {
	val := v.Value
	if val == cty.NilVal || value.IsError(val) || !val.IsWhollyKnown() {
		return json.RawMessage("null"), nil
	}
	raw, err := ctyjson.SimpleJSONValue{Value: val}.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", v.Name, err)
	}
	return raw, nil
}

// ComponentState is one component in a snapshot.
type ComponentState struct {
	Address   string     `json:"address"`
	Kind      string     `json:"kind"`
	Active    bool       `json:"active"`
	Variables []Variable `json:"variables,omitempty"`
	Actions   []string   `json:"actions,omitempty"`
}

// Snapshot is the renderer's view of a session.
type Snapshot struct {
	Components []ComponentState `json:"components"`
}

// Component returns the state of the component at address.
func (s Snapshot) Component(address string) (ComponentState, bool) {
	for _, c := range s.Components {
		if c.Address == address {
			return c, true
		}
	}
	return ComponentState{}, false
}

// Snapshot lists every component in document order with its state
// variables. Variables of inactive components are not read.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		out     Snapshot
		failure error
	)
	s.table.Walk(s.root.Index, func(c *component.Component) bool {
		if c == s.root {
			return true
		}
		st := ComponentState{
			Address: c.Address,
			Kind:    c.Kind.String(),
			Active:  s.table.IsActive(c.Index),
			Actions: slices.Clone(c.Kind.Actions()),
		}
		if !st.Active {
			out.Components = append(out.Components, st)
			return true
		}

		writable := false
		for _, name := range variableNames(c) {
			id := c.Cells[name]
			if _, ok := c.Cells[name]; !ok {
				id = c.Bindings[name]
			}
			v, err := s.graph.Get(ctx, id)
			status := ""
			if err != nil {
				var ie *cellgraph.InvariantError
				if errors.As(err, &ie) {
					failure = err
					return false
				}
				if errors.Is(err, cellgraph.ErrDeferred) {
					status = cellgraph.StatusDeferred.String()
				}
				v = value.Undefined
			}
			if status == "" {
				if cs, err := s.graph.Status(id); err == nil {
					status = cs.String()
				}
			}
			writable = writable || s.graph.HasInverse(id)
			st.Variables = append(st.Variables, Variable{Name: name, Value: v, Display: value.Format(v), Status: status})
		}
		if writable {
			st.Actions = append(st.Actions, ActionSetStateVariable)
		}
		out.Components = append(out.Components, st)
		return true
	})
	if failure != nil {
		return Snapshot{}, failure
	}
	return out, nil
}

// variableNames returns the names of a component's cells and bindings,
// sorted. A cell shadows a binding of the same name.
func variableNames(c *component.Component) []string {
	names := make([]string, 0, len(c.Cells)+len(c.Bindings))
	for name := range c.Cells {
		names = append(names, name)
	}
	for name := range c.Bindings {
		if _, ok := c.Cells[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DecodeArgs converts JSON action arguments to values. Each argument gets
// the type its JSON form implies.
func DecodeArgs(raw map[string]json.RawMessage) (map[string]cty.Value, error) {
	out := make(map[string]cty.Value, len(raw))
	for name, buf := range raw {
		ty, err := ctyjson.ImpliedType(buf)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		v, err := ctyjson.Unmarshal(buf, ty)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
