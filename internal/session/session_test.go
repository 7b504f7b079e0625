// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/document"
	"github.com/vk/docgrid/internal/session"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

func newSession(t *testing.T, src string, opts session.Options) *session.Session {
	t.Helper()
	doc, diags := document.Parse([]byte(src), "test.dg.hcl")
	require.False(t, diags.HasErrors(), diags.Error())
	s, err := session.New(context.Background(), doc, opts)
	require.NoError(t, err)
	require.NoError(t, s.Settle(context.Background()))
	return s
}

func requireValue(t *testing.T, s *session.Session, address, variable string, want cty.Value) {
	t.Helper()
	got, err := s.Value(context.Background(), address, variable)
	require.NoError(t, err)
	require.True(t, value.Equal(want, got), "%s.%s: want %s, got %s", address, variable, value.Format(want), value.Format(got))
}

func apply(t *testing.T, s *session.Session, a session.Action) session.Outcome {
	t.Helper()
	ctx := context.Background()
	out := s.Apply(ctx, a)
	require.NoError(t, s.Settle(ctx))
	return out
}

func summaries(list []*diag.Diagnostic) []string {
	out := make([]string, 0, len(list))
	for _, d := range list {
		out = append(out, d.Summary)
	}
	return out
}

const repeatDoc = `
repeat "r" {
  length = 3
  template {
    math "sq" { expr = i * i }
  }
}
math "total" { expr = r[2].sq + 1 }
`

func TestRepeat_ExpandsTemplate(t *testing.T) {
	// --- Arrange & Act ---
	s := newSession(t, repeatDoc, session.Options{})

	// --- Assert ---
	require.False(t, s.HasErrors(), summaries(s.Diagnostics()))
	requireValue(t, s, "r[1].sq", "value", cty.NumberIntVal(1))
	requireValue(t, s, "r[2].sq", "value", cty.NumberIntVal(4))
	requireValue(t, s, "r[3].sq", "value", cty.NumberIntVal(9))
	requireValue(t, s, "total", "value", cty.NumberIntVal(5))
	requireValue(t, s, "r[2]", "i", cty.NumberIntVal(2))
}

func TestRepeat_LengthChangePreservesIdentity(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	s := newSession(t, repeatDoc, session.Options{})
	before, err := s.CellID("r[2].sq", "value")
	require.NoError(t, err)
	diagsBefore := len(s.Diagnostics())

	// --- Act ---
	out := apply(t, s, session.Action{
		Name:   session.ActionSetStateVariable,
		Target: "r",
		Args:   map[string]cty.Value{"variable": cty.StringVal("length"), "value": cty.NumberIntVal(5)},
	})

	// --- Assert ---
	require.Equal(t, session.StatusAccepted, out.Status)
	after, err := s.CellID("r[2].sq", "value")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	requireValue(t, s, "r[5].sq", "value", cty.NumberIntVal(25))
	assert.Len(t, s.Diagnostics(), diagsBefore)

	// --- Act ---
	apply(t, s, session.Action{
		Name:   session.ActionSetStateVariable,
		Target: "r",
		Args:   map[string]cty.Value{"variable": cty.StringVal("length"), "value": cty.NumberIntVal(1)},
	})

	// --- Assert ---
	_, err = s.Graph().Get(ctx, before)
	require.ErrorIs(t, err, cellgraph.ErrCellNotFound)
	_, err = s.CellID("r[2].sq", "value")
	require.ErrorIs(t, err, session.ErrUnknownCell)
	requireValue(t, s, "r[1].sq", "value", cty.NumberIntVal(1))
}

func TestMap_KeysFromObjectSources(t *testing.T) {
	// --- Arrange & Act ---
	s := newSession(t, `
map "m" {
  sources = { x = 1, y = 2 }
  template {
    math "d" { expr = v * 2 }
  }
}
`, session.Options{})

	// --- Assert ---
	require.False(t, s.HasErrors(), summaries(s.Diagnostics()))
	requireValue(t, s, `m["x"].d`, "value", cty.NumberIntVal(2))
	requireValue(t, s, `m["y"].d`, "value", cty.NumberIntVal(4))
	requireValue(t, s, `m["y"]`, "i", cty.StringVal("y"))
}

const selectDoc = `
select "s" {
  number_to_select = 2
  option {
    text "a" { value = "A" }
  }
  option {
    text "b" { value = "B" }
  }
  option {
    text "c" { value = "C" }
  }
}
`

func TestSelect_SameSeedSameSelection(t *testing.T) {
	// --- Arrange ---
	first := newSession(t, selectDoc, session.Options{VariantSeed: 7})
	second := newSession(t, selectDoc, session.Options{VariantSeed: 7})

	// --- Act ---
	a, err := first.Value(context.Background(), "s", "selected_indices")
	require.NoError(t, err)
	b, err := second.Value(context.Background(), "s", "selected_indices")
	require.NoError(t, err)

	// --- Assert ---
	require.True(t, value.Equal(a, b))
	require.Equal(t, 2, a.LengthInt())
	v, err := first.Value(context.Background(), "s", "value")
	require.NoError(t, err)
	assert.Equal(t, 2, v.LengthInt())
}

func TestSelect_NotEnoughOptionsWarns(t *testing.T) {
	// --- Arrange & Act ---
	s := newSession(t, `
select "s" {
  number_to_select = 3
  option {
    text "a" { value = "A" }
  }
}
`, session.Options{})

	// --- Assert ---
	assert.False(t, s.HasErrors())
	assert.Contains(t, summaries(s.Diagnostics()), "Not enough options")
	v, err := s.Value(context.Background(), "s", "selected_indices")
	require.NoError(t, err)
	assert.Equal(t, 1, v.LengthInt())
}

const conditionalDoc = `
booleaninput "flag" {}
conditional "c" {
  case {
    condition = flag
    text "yes" { value = "Y" }
  }
  else {
    text "no" { value = "N" }
  }
}
`

func TestConditional_SwitchesBranchWithoutDestroying(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	s := newSession(t, conditionalDoc, session.Options{})
	requireValue(t, s, "c", "value", cty.StringVal("N"))
	noID, err := s.CellID("c[2].no", "value")
	require.NoError(t, err)

	// --- Act ---
	out := apply(t, s, session.Action{
		Name:   session.ActionUpdateBoolean,
		Target: "flag",
		Args:   map[string]cty.Value{"boolean": cty.True},
	})

	// --- Assert ---
	require.Equal(t, session.StatusAccepted, out.Status)
	requireValue(t, s, "c", "value", cty.StringVal("Y"))
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	yes, ok := snap.Component("c[1].yes")
	require.True(t, ok)
	assert.True(t, yes.Active)
	no, ok := snap.Component("c[2].no")
	require.True(t, ok)
	assert.False(t, no.Active)
	assert.Empty(t, no.Variables)

	again, err := s.CellID("c[2].no", "value")
	require.NoError(t, err)
	assert.Equal(t, noID, again)
}

func TestCopy_ReadsAndWritesThrough(t *testing.T) {
	// --- Arrange ---
	s := newSession(t, `
text "src" { value = "hello" }
copy "cp" { source = src }
`, session.Options{})
	requireValue(t, s, "cp", "value", cty.StringVal("hello"))

	// --- Act ---
	out := apply(t, s, session.Action{
		Name:   session.ActionSetStateVariable,
		Target: "cp",
		Args:   map[string]cty.Value{"variable": cty.StringVal("value"), "value": cty.StringVal("bye")},
	})

	// --- Assert ---
	require.Equal(t, session.StatusAccepted, out.Status, summaries(out.Diagnostics))
	requireValue(t, s, "src", "value", cty.StringVal("bye"))
	requireValue(t, s, "cp", "value", cty.StringVal("bye"))
}

func TestCollect_GathersMatchingDescendants(t *testing.T) {
	// --- Arrange & Act ---
	s := newSession(t, `
group "g" {
  number "a" { value = 1 }
  text "t" { value = "x" }
  number "b" { value = 2 }
}
collect "all" {
  source         = g
  component_kind = "number"
}
`, session.Options{})

	// --- Assert ---
	require.False(t, s.HasErrors(), summaries(s.Diagnostics()))
	requireValue(t, s, "all", "value", cty.TupleVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2)}))
}

func TestPoint_MoveWritesCoordinates(t *testing.T) {
	// --- Arrange ---
	s := newSession(t, `point "p" {
  x = 1
  y = 2
}`, session.Options{})

	// --- Act ---
	out := apply(t, s, session.Action{
		Name:   session.ActionMovePoint,
		Target: "p",
		Args:   map[string]cty.Value{"x": cty.NumberIntVal(3), "y": cty.NumberIntVal(4)},
	})

	// --- Assert ---
	require.Equal(t, session.StatusAccepted, out.Status)
	requireValue(t, s, "p", "x", cty.NumberIntVal(3))
	requireValue(t, s, "p", "y", cty.NumberIntVal(4))

	// --- Act ---
	apply(t, s, session.Action{Name: session.ActionMovePoint, Target: "p", Args: map[string]cty.Value{"y": cty.NumberIntVal(7)}})

	// --- Assert ---
	requireValue(t, s, "p", "value", cty.ObjectVal(map[string]cty.Value{"x": cty.NumberIntVal(3), "y": cty.NumberIntVal(7)}))
}

func TestTextInput_ImmediateValueCommitsOnUpdate(t *testing.T) {
	// --- Arrange ---
	s := newSession(t, `textinput "ti" { prefill = "a" }`, session.Options{})

	// --- Act ---
	apply(t, s, session.Action{Name: session.ActionUpdateImmediateValue, Target: "ti", Args: map[string]cty.Value{"text": cty.StringVal("abc")}})

	// --- Assert ---
	requireValue(t, s, "ti", "immediate_value", cty.StringVal("abc"))
	requireValue(t, s, "ti", "value", cty.StringVal("a"))

	// --- Act ---
	out := apply(t, s, session.Action{Name: session.ActionUpdateValue, Target: "ti"})

	// --- Assert ---
	require.Equal(t, session.StatusAccepted, out.Status)
	requireValue(t, s, "ti", "value", cty.StringVal("abc"))
}

func TestFixed_WriteIsIgnoredWithWarning(t *testing.T) {
	// --- Arrange ---
	s := newSession(t, `number "n" {
  value = 3
  fixed = true
}`, session.Options{})

	// --- Act ---
	out := apply(t, s, session.Action{Name: session.ActionSetValue, Target: "n", Args: map[string]cty.Value{"value": cty.NumberIntVal(9)}})

	// --- Assert ---
	assert.Equal(t, session.StatusNoOp, out.Status)
	assert.Equal(t, []string{"Write ignored"}, summaries(out.Diagnostics))
	requireValue(t, s, "n", "value", cty.NumberIntVal(3))
}

const derivedDoc = `
number "a" { value = 2 }
math "m" { expr = a + 1 }
math "alias" { expr = a }
`

func TestDerived_WriteWithoutInverseIsRejected(t *testing.T) {
	// --- Arrange ---
	s := newSession(t, derivedDoc, session.Options{})

	// --- Act ---
	out := apply(t, s, session.Action{Name: session.ActionSetValue, Target: "m", Args: map[string]cty.Value{"value": cty.NumberIntVal(10)}})

	// --- Assert ---
	require.Equal(t, session.StatusRejected, out.Status)
	assert.Equal(t, []string{"Cannot set this derived value"}, summaries(out.Diagnostics))
	requireValue(t, s, "a", "value", cty.NumberIntVal(2))
	requireValue(t, s, "m", "value", cty.NumberIntVal(3))
}

func TestDerived_BareReferenceWritesThrough(t *testing.T) {
	// --- Arrange ---
	s := newSession(t, derivedDoc, session.Options{})

	// --- Act ---
	out := apply(t, s, session.Action{Name: session.ActionSetValue, Target: "alias", Args: map[string]cty.Value{"value": cty.NumberIntVal(10)}})

	// --- Assert ---
	require.Equal(t, session.StatusAccepted, out.Status)
	requireValue(t, s, "a", "value", cty.NumberIntVal(10))
	requireValue(t, s, "m", "value", cty.NumberIntVal(11))
}

func TestApply_UnknownActionIsRejected(t *testing.T) {
	// --- Arrange ---
	s := newSession(t, derivedDoc, session.Options{})

	// --- Act ---
	out := apply(t, s, session.Action{Name: session.ActionMovePoint, Target: "a"})
	missing := apply(t, s, session.Action{Name: session.ActionSetValue, Target: "nope"})

	// --- Assert ---
	assert.Equal(t, session.StatusRejected, out.Status)
	assert.Equal(t, []string{"Invalid action"}, summaries(out.Diagnostics))
	assert.Equal(t, session.StatusRejected, missing.Status)
	assert.Equal(t, []string{"Invalid action target"}, summaries(missing.Diagnostics))
}

func TestCycle_IsReported(t *testing.T) {
	// --- Arrange & Act ---
	s := newSession(t, `
math "a" { expr = b + 1 }
math "b" { expr = a + 1 }
`, session.Options{})

	// --- Assert ---
	require.True(t, s.HasErrors())
	assert.Contains(t, summaries(s.Diagnostics()), "Circular dependency")
	v, err := s.Value(context.Background(), "a", "value")
	require.NoError(t, err)
	assert.True(t, value.IsError(v))
}

func TestCycle_ConditionReadsNameItDeclares(t *testing.T) {
	// --- Arrange & Act ---
	s := newSession(t, `
conditional "c" {
  case {
    condition = flag
    boolean "flag" { value = true }
  }
}
`, session.Options{})

	// --- Assert ---
	require.True(t, s.HasErrors())
	got := summaries(s.Diagnostics())
	assert.Contains(t, got, "Circular dependency")
	assert.NotContains(t, got, "Unresolved reference")
}

func TestUnresolvedReference_IsReported(t *testing.T) {
	// --- Arrange & Act ---
	s := newSession(t, `math "m" { expr = nothere + 1 }`, session.Options{})

	// --- Assert ---
	require.True(t, s.HasErrors())
	assert.Contains(t, summaries(s.Diagnostics()), "Unresolved reference")
	v, err := s.Value(context.Background(), "m", "value")
	require.NoError(t, err)
	assert.True(t, value.IsError(v))
}

func TestWholeAndSelected_ObjectMergesSelections(t *testing.T) {
	// --- Arrange & Act ---
	s := newSession(t, `
point "p" {
  x = 3
  y = 4
}
math "m" { expr = length(p) + p.x }
`, session.Options{})

	// --- Assert ---
	require.False(t, s.HasErrors(), summaries(s.Diagnostics()))
	requireValue(t, s, "m", "value", cty.NumberIntVal(5))
}

func TestWholeAndSelected_TupleIsAmbiguous(t *testing.T) {
	// --- Arrange & Act ---
	s := newSession(t, repeatDoc+`
math "both" { expr = r[2].sq + length(r) }
`, session.Options{})

	// --- Assert ---
	require.True(t, s.HasErrors())
	assert.Contains(t, summaries(s.Diagnostics()), "Ambiguous reference")
	v, err := s.Value(context.Background(), "both", "value")
	require.NoError(t, err)
	assert.True(t, value.IsError(v))
	requireValue(t, s, "total", "value", cty.NumberIntVal(5))
}

func TestSolution_RevealNeedsPermission(t *testing.T) {
	// --- Arrange ---
	s := newSession(t, `solution "sol" {}`, session.Options{})

	// --- Act ---
	out := apply(t, s, session.Action{Name: session.ActionRevealSolution, Target: "sol"})

	// --- Assert ---
	require.Equal(t, session.StatusPending, out.Status)
	require.NotNil(t, out.Suspension)
	requireValue(t, s, "sol", "open", cty.False)

	// --- Act ---
	denied := apply(t, s, out.Suspension.Resume(false))
	allowed := apply(t, s, out.Suspension.Resume(true))
	again := apply(t, s, session.Action{Name: session.ActionRevealSolution, Target: "sol"})

	// --- Assert ---
	assert.Equal(t, session.StatusRejected, denied.Status)
	assert.Equal(t, session.StatusAccepted, allowed.Status)
	assert.Equal(t, session.StatusNoOp, again.Status)
	requireValue(t, s, "sol", "value", cty.True)
}

func TestRestore_RoundTripsEssentialState(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	src := `
textinput "ti" {}
math "shout" { expr = upper(ti) }
`
	s := newSession(t, src, session.Options{VariantSeed: 42})
	apply(t, s, session.Action{Name: session.ActionUpdateValue, Target: "ti", Args: map[string]cty.Value{"text": cty.StringVal("hey")}})
	snap, err := s.EssentialState(ctx)
	require.NoError(t, err)

	// --- Act ---
	restored := newSession(t, src, session.Options{Restore: &snap})

	// --- Assert ---
	assert.Equal(t, uint64(42), restored.Seed())
	requireValue(t, restored, "ti", "value", cty.StringVal("hey"))
	requireValue(t, restored, "shout", "value", cty.StringVal("HEY"))
}

func TestEvents_PublishedForChangedCells(t *testing.T) {
	// --- Arrange ---
	s := newSession(t, derivedDoc, session.Options{})
	s.Events().Drain()

	// --- Act ---
	apply(t, s, session.Action{Name: session.ActionSetValue, Target: "a", Args: map[string]cty.Value{"value": cty.NumberIntVal(5)}})

	// --- Assert ---
	changed := make(map[string]cty.Value)
	for _, e := range s.Events().Drain() {
		changed[e.Address+"."+e.Variable] = e.Value
	}
	require.Contains(t, changed, "a.value")
	require.Contains(t, changed, "m.value")
	assert.True(t, value.Equal(cty.NumberIntVal(6), changed["m.value"]))
}

func TestSnapshot_ListsActions(t *testing.T) {
	// --- Arrange ---
	s := newSession(t, derivedDoc, session.Options{})

	// --- Act ---
	snap, err := s.Snapshot(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, snap.Components, 3)
	a, ok := snap.Component("a")
	require.True(t, ok)
	assert.Equal(t, []string{session.ActionSetValue, session.ActionSetStateVariable}, a.Actions)
	m, ok := snap.Component("m")
	require.True(t, ok)
	assert.Equal(t, []string{session.ActionSetValue}, m.Actions)
	require.Len(t, m.Variables, 1)
	assert.Equal(t, "3", m.Variables[0].Display)
}
