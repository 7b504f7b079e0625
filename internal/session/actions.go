// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/component"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/refpath"
	"github.com/vk/docgrid/internal/resolver"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Action names.
const (
	ActionSetStateVariable     = "setStateVariable"
	ActionSetValue             = "setValue"
	ActionUpdateImmediateValue = "updateImmediateValue"
	ActionUpdateValue          = "updateValue"
	ActionUpdateBoolean        = "updateBoolean"
	ActionMovePoint            = "movePoint"
	ActionRevealSolution       = "revealSolution"

	// actionCompleteReveal re-enters the pipeline once the permission
	// check of revealSolution has answered.
	actionCompleteReveal = "completeRevealSolution"
)

var errPermissionDenied = errors.New("permission denied")

// Action is a user interaction addressed to one component.
type Action struct {
	Name string
	// Target is the component address, such as `r[2].answer`.
	Target string
	Args   map[string]cty.Value
	// Transient actions are applied without a settle pass.
	Transient bool
	// Skippable actions may be superseded by a later queued action with the
	// same name and target.
	Skippable bool
}

// Status is the result class of an action.
type Status int

const (
	StatusAccepted Status = iota
	StatusNoOp
	StatusRejected
	StatusPending
	StatusSuperseded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusNoOp:
		return "no-op"
	case StatusRejected:
		return "rejected"
	case StatusPending:
		return "pending"
	case StatusSuperseded:
		return "superseded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of an action.
type Outcome struct {
	Status      Status
	Diagnostics []*diag.Diagnostic
	// Token identifies a pending action; the pipeline's Wait returns its
	// final outcome.
	Token string
	// Recomputed is the number of settle passes the action caused.
	Recomputed int
	Err        error
	// Suspension is set on pending outcomes.
	Suspension *Suspension
}

// MarshalJSON renders the outcome for renderers and the command line.
func (o Outcome) MarshalJSON() ([]byte, error) {
	diags := make([]string, 0, len(o.Diagnostics))
	for _, d := range o.Diagnostics {
		diags = append(diags, d.String())
	}
	var errMsg string
	if o.Err != nil {
		errMsg = o.Err.Error()
	}
	return json.Marshal(struct {
		Status      string   `json:"status"`
		Diagnostics []string `json:"diagnostics,omitempty"`
		Token       string   `json:"token,omitempty"`
		Recomputed  int      `json:"recomputed"`
		Error       string   `json:"error,omitempty"`
	}{o.Status.String(), diags, o.Token, o.Recomputed, errMsg})
}

// PermissionRequest asks the environment whether a suspended action may
// complete.
type PermissionRequest struct {
	Action string
	Target string
}

// Suspension describes an action waiting for an external answer.
type Suspension struct {
	Request PermissionRequest
}

// Resume returns the internal action that completes the suspended one.
func (s *Suspension) Resume(allowed bool) Action {
	return Action{
		Name:   actionCompleteReveal,
		Target: s.Request.Target,
		Args:   map[string]cty.Value{"allowed": cty.BoolVal(allowed)},
	}
}

// Apply performs an action in one transaction. A rejected write leaves
// every cell as it was. Apply does not settle; the pipeline does that for
// actions that are not transient.
func (s *Session) Apply(ctx context.Context, a Action) Outcome {
	logger := ctxlog.FromContext(ctx).With("action", a.Name, "target", a.Target)

	c, err := s.actionTarget(ctx, a.Target)
	if err != nil {
		return s.reject(nil, "Invalid action target", err.Error())
	}
	writes, susp, err := s.plan(ctx, c, a)
	switch {
	case errors.Is(err, errPermissionDenied):
		return s.reject(c, "Permission denied", fmt.Sprintf("%s on %s was not permitted.", ActionRevealSolution, c.Address))
	case err != nil:
		return s.reject(c, "Invalid action", err.Error())
	case susp != nil:
		logger.Debug("Apply: action suspended.")
		return Outcome{Status: StatusPending, Suspension: susp}
	case len(writes) == 0:
		return Outcome{Status: StatusNoOp}
	}

	tx := s.graph.Begin()
	committed := false
	defer func() {
		if !committed {
			tx.Rollback(ctx)
		}
	}()
	for _, w := range writes {
		if err := tx.Write(ctx, w.Cell, w.Value); err != nil {
			logger.Debug("Apply: write rejected.", "error", err)
			summary := "Invalid write"
			if errors.Is(err, cellgraph.ErrInverseUnavailable) {
				summary = "Cannot set this derived value"
			}
			return s.reject(c, summary, err.Error())
		}
	}
	tx.Commit()
	committed = true

	var diags []*diag.Diagnostic
	for _, sk := range tx.Skipped() {
		d := &diag.Diagnostic{
			Pass:      diag.Inverse,
			Severity:  hcl.DiagWarning,
			Summary:   "Write ignored",
			Detail:    fmt.Sprintf("%s is fixed; the write had no effect.", sk.Key),
			Subject:   s.graph.Span(sk.Cell),
			Component: sk.Key.Component,
			Attribute: sk.Key.Variable,
		}
		s.diags.Add(d)
		diags = append(diags, d)
	}

	status := StatusAccepted
	if len(tx.Written()) == 0 {
		status = StatusNoOp
	}
	s.publish(ctx)
	logger.Debug("Apply: action applied.", "status", status.String(), "writes", len(tx.Written()))
	return Outcome{Status: status, Diagnostics: diags}
}

func (s *Session) reject(c *component.Component, summary, detail string) Outcome {
	d := &diag.Diagnostic{
		Pass:     diag.Inverse,
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   detail,
	}
	if c != nil {
		d.Component = c.Address
		r := c.Node.DefRange
		d.Subject = &r
	}
	s.diags.Add(d)
	return Outcome{Status: StatusRejected, Diagnostics: []*diag.Diagnostic{d}}
}

// actionTarget finds the component an action names, first by address and
// then by resolving the address from the document root.
func (s *Session) actionTarget(ctx context.Context, addr string) (*component.Component, error) {
	c, ok := s.table.ByAddress(addr)
	if !ok {
		path, err := refpath.Parse(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid target %q: %w", addr, err)
		}
		res, err := s.res.Resolve(ctx, s.graph, resolver.Request{Path: path, Origin: s.root.Index, Mode: refpath.DescendOnly})
		if err != nil {
			return nil, err
		}
		if res.Kind != resolver.Found || len(res.Residual) > 0 || res.Binding != 0 {
			return nil, fmt.Errorf("no component at %q", addr)
		}
		if c, ok = s.table.Get(res.Target); !ok {
			return nil, fmt.Errorf("no component at %q", addr)
		}
	}
	if !s.table.IsActive(c.Index) {
		return nil, fmt.Errorf("%s is not active", c.Address)
	}
	return c, nil
}

// plan translates an action into writes. It returns a suspension instead
// for actions that need permission first.
func (s *Session) plan(ctx context.Context, c *component.Component, a Action) ([]cellgraph.Write, *Suspension, error) {
	if a.Name != ActionSetStateVariable && a.Name != actionCompleteReveal && !slices.Contains(c.Kind.Actions(), a.Name) {
		return nil, nil, fmt.Errorf("%s does not accept the action %q", c.Address, a.Name)
	}

	write := func(variable string, v cty.Value) ([]cellgraph.Write, *Suspension, error) {
		id, ok := c.Cells[variable]
		if !ok {
			return nil, nil, fmt.Errorf("%s has no state variable %q", c.Address, variable)
		}
		return []cellgraph.Write{{Cell: id, Value: v}}, nil, nil
	}

	switch a.Name {
	case ActionSetStateVariable:
		name, err := stringArg(a, "variable")
		if err != nil {
			return nil, nil, err
		}
		v, err := arg(a, "value")
		if err != nil {
			return nil, nil, err
		}
		if _, ok := c.Cells[name]; !ok {
			if id, ok := c.Bindings[name]; ok {
				return []cellgraph.Write{{Cell: id, Value: v}}, nil, nil
			}
		}
		return write(name, v)

	case ActionSetValue:
		v, err := arg(a, "value")
		if err != nil {
			return nil, nil, err
		}
		return write(varValue, v)

	case ActionUpdateImmediateValue:
		v, err := arg(a, "text")
		if err != nil {
			return nil, nil, err
		}
		return write(varImmediateValue, v)

	case ActionUpdateValue:
		if text, ok := a.Args["text"]; ok {
			return []cellgraph.Write{
				{Cell: c.Cells[varImmediateValue], Value: text},
				{Cell: c.Cells[varValue], Value: text},
			}, nil, nil
		}
		cur, err := s.graph.Get(ctx, c.Cells[varImmediateValue])
		if err != nil {
			return nil, nil, err
		}
		return write(varValue, cur)

	case ActionUpdateBoolean:
		v, err := arg(a, "boolean")
		if err != nil {
			return nil, nil, err
		}
		return write(varValue, v)

	case ActionMovePoint:
		x, hasX := a.Args["x"]
		y, hasY := a.Args["y"]
		switch {
		case hasX && hasY:
			return write(varValue, cty.ObjectVal(map[string]cty.Value{"x": x, "y": y}))
		case hasX:
			return write("x", x)
		case hasY:
			return write("y", y)
		}
		return nil, nil, fmt.Errorf("%s needs an x or y argument", a.Name)

	case ActionRevealSolution:
		open, err := s.graph.Get(ctx, c.Cells[varOpen])
		if err != nil {
			return nil, nil, err
		}
		if open.IsKnown() && !open.IsNull() && open.True() {
			return nil, nil, nil
		}
		return nil, &Suspension{Request: PermissionRequest{Action: a.Name, Target: c.Address}}, nil

	case actionCompleteReveal:
		if c.Kind != component.KindSolution {
			return nil, nil, fmt.Errorf("%s is not a solution", c.Address)
		}
		allowed, err := arg(a, "allowed")
		if err != nil {
			return nil, nil, err
		}
		if allowed.IsNull() || !allowed.True() {
			return nil, nil, errPermissionDenied
		}
		return write(varOpen, cty.True)
	}
	return nil, nil, fmt.Errorf("unsupported action %q", a.Name)
}

func arg(a Action, name string) (cty.Value, error) {
	v, ok := a.Args[name]
	if !ok || v == cty.NilVal {
		return cty.NilVal, fmt.Errorf("%s needs the argument %q", a.Name, name)
	}
	return v, nil
}

func stringArg(a Action, name string) (string, error) {
	v, err := arg(a, name)
	if err != nil {
		return "", err
	}
	sv, err := convert.Convert(v, cty.String)
	if err != nil || !sv.IsKnown() || sv.IsNull() {
		return "", fmt.Errorf("the argument %q of %s must be a string", name, a.Name)
	}
	return sv.AsString(), nil
}
