// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package renderer

import (
	"encoding/json"
	"fmt"

	"github.com/vk/docgrid/internal/session"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Event names used between the server and renderers.
const (
	EventSnapshot    = "snapshot"
	EventDispatch    = "dispatch"
	EventWait        = "wait"
	EventDiagnostics = "diagnostics"
	EventCellChanged = "cellChanged"
	EventReloaded    = "reloaded"
	EventPermission  = "permission"
)

// ActionMessage is the wire form of an action.
type ActionMessage struct {
	Name      string                     `json:"name"`
	Target    string                     `json:"target"`
	Args      map[string]json.RawMessage `json:"args,omitempty"`
	Transient bool                       `json:"transient,omitempty"`
	Skippable bool                       `json:"skippable,omitempty"`
}

// NewActionMessage encodes a for the wire.
func NewActionMessage(a session.Action) (ActionMessage, error) {
	m := ActionMessage{Name: a.Name, Target: a.Target, Transient: a.Transient, Skippable: a.Skippable}
	if len(a.Args) > 0 {
		m.Args = make(map[string]json.RawMessage, len(a.Args))
		for name, v := range a.Args {
			raw, err := ctyjson.SimpleJSONValue{Value: v}.MarshalJSON()
			if err != nil {
				return ActionMessage{}, fmt.Errorf("argument %q: %w", name, err)
			}
			m.Args[name] = raw
		}
	}
	return m, nil
}

// Action decodes the message.
func (m ActionMessage) Action() (session.Action, error) {
	args, err := session.DecodeArgs(m.Args)
	if err != nil {
		return session.Action{}, err
	}
	return session.Action{
		Name:      m.Name,
		Target:    m.Target,
		Args:      args,
		Transient: m.Transient,
		Skippable: m.Skippable,
	}, nil
}

// OutcomeMessage is the decoded form of session.Outcome.
type OutcomeMessage struct {
	Status      string   `json:"status"`
	Diagnostics []string `json:"diagnostics,omitempty"`
	Token       string   `json:"token,omitempty"`
	Recomputed  int      `json:"recomputed"`
	Error       string   `json:"error,omitempty"`
}

// ChangeMessage is the decoded form of session.Event.
type ChangeMessage struct {
	Address  string          `json:"address"`
	Variable string          `json:"variable"`
	Value    json.RawMessage `json:"value"`
	Display  string          `json:"display"`
}

// SnapshotMessage is the decoded form of session.Snapshot.
type SnapshotMessage struct {
	Components []ComponentMessage `json:"components"`
}

// ComponentMessage is one component of a SnapshotMessage.
type ComponentMessage struct {
	Address   string            `json:"address"`
	Kind      string            `json:"kind"`
	Active    bool              `json:"active"`
	Variables []VariableMessage `json:"variables,omitempty"`
	Actions   []string          `json:"actions,omitempty"`
}

// VariableMessage is one variable of a ComponentMessage.
type VariableMessage struct {
	Name    string          `json:"name"`
	Value   json.RawMessage `json:"value"`
	Display string          `json:"display"`
	Status  string          `json:"status,omitempty"`
}

// Component returns the component with the given address.
func (s SnapshotMessage) Component(address string) (ComponentMessage, bool) {
	for _, c := range s.Components {
		if c.Address == address {
			return c, true
		}
	}
	return ComponentMessage{}, false
}

// Variable returns the variable with the given name.
func (c ComponentMessage) Variable(name string) (VariableMessage, bool) {
	for _, v := range c.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return VariableMessage{}, false
}

// PermissionMessage asks renderers to confirm a suspended action.
type PermissionMessage struct {
	Action string `json:"action"`
	Target string `json:"target"`
}

// toWire turns v into the generic JSON shape socket.io transports.
func toWire(v any) (any, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromWire decodes a generic payload into out.
func fromWire(v any, out any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}
