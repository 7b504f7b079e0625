// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package integration_tests

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/metrics"
	"github.com/vk/docgrid/internal/session"
	"github.com/vk/docgrid/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

// An intermediate cell that recomputes to the same value must not force its
// dependents to recompute.
func TestRecompute_UnchangedIntermediateCutsOff(t *testing.T) {
	// --- Arrange ---
	m := metrics.New(prometheus.NewRegistry())
	s := testutil.NewSession(t, `
		number "a" { value = 3 }
		math "sign" { expr = a > 0 ? 1 : -1 }
		math "big" { expr = sign * 100 }
	`, session.Options{Metrics: m})
	testutil.AssertValue(t, s, "big", "value", cty.NumberIntVal(100))
	before := s.Graph().Stats()

	// --- Act ---
	testutil.Apply(t, s, session.Action{Name: session.ActionSetValue, Target: "a", Args: map[string]cty.Value{"value": cty.NumberIntVal(5)}})

	// --- Assert ---
	after := s.Graph().Stats()
	testutil.AssertValue(t, s, "sign", "value", cty.NumberIntVal(1))
	testutil.AssertValue(t, s, "big", "value", cty.NumberIntVal(100))
	assert.GreaterOrEqual(t, after.Cutoffs-before.Cutoffs, uint64(1), "big should be revalidated without recomputing")
	assert.Equal(t, float64(after.Cutoffs), promtestutil.ToFloat64(m.Cutoffs))
	assert.Equal(t, float64(after.Computations), promtestutil.ToFloat64(m.Computations))
}

// A changed input reaches every transitive dependent.
func TestRecompute_ChangePropagatesThroughChain(t *testing.T) {
	// --- Arrange ---
	s := testutil.NewSession(t, `
		number "a" { value = 1 }
		math "b" { expr = a + 1 }
		math "c" { expr = b * 10 }
		text "label" { value = "c is ${c}" }
	`, session.Options{})
	require.False(t, s.HasErrors(), testutil.Summaries(s))

	// --- Act ---
	testutil.Apply(t, s, session.Action{Name: session.ActionSetValue, Target: "a", Args: map[string]cty.Value{"value": cty.NumberIntVal(4)}})

	// --- Assert ---
	testutil.AssertValue(t, s, "b", "value", cty.NumberIntVal(5))
	testutil.AssertValue(t, s, "c", "value", cty.NumberIntVal(50))
	testutil.AssertValue(t, s, "label", "value", cty.StringVal("c is 50"))
}
