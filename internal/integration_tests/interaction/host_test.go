// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package integration_tests

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/document"
	"github.com/vk/docgrid/internal/host"
	"github.com/vk/docgrid/internal/metrics"
	"github.com/vk/docgrid/internal/pipeline"
	"github.com/vk/docgrid/internal/session"
	"github.com/vk/docgrid/internal/testutil"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const graphDoc = `
	point "p" {
	  x = 0
	  y = 0
	}
	math "area" { expr = p.x * p.y }
`

func openHost(t *testing.T, docs int) (*host.Host, []*host.Entry, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	h := host.New(host.Options{Metrics: m, Permission: pipeline.AllowAll})
	t.Cleanup(h.Shutdown)
	var entries []*host.Entry
	for i := 0; i < docs; i++ {
		doc, diags := document.Parse([]byte(testutil.Unindent(graphDoc)), "graph.dg.hcl")
		require.False(t, diags.HasErrors(), diags.Error())
		e, err := h.Open(context.Background(), doc, nil)
		require.NoError(t, err)
		entries = append(entries, e)
	}
	return h, entries, m
}

func read(t *testing.T, e *host.Entry, address, variable string) cty.Value {
	t.Helper()
	var v cty.Value
	err := e.Pipeline.Do(context.Background(), func(ctx context.Context, s *session.Session) error {
		var err error
		v, err = s.Value(ctx, address, variable)
		return err
	})
	require.NoError(t, err)
	return v
}

func TestInteraction_OneSettlePassPerAction(t *testing.T) {
	// --- Arrange ---
	_, entries, m := openHost(t, 1)
	e := entries[0]
	before := promtestutil.ToFloat64(m.SettlePasses)

	// --- Act ---
	out, err := e.Pipeline.Dispatch(context.Background(), session.Action{
		Name:   session.ActionMovePoint,
		Target: "p",
		Args:   map[string]cty.Value{"x": cty.NumberIntVal(2), "y": cty.NumberIntVal(6)},
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, session.StatusAccepted, out.Status)
	assert.Equal(t, before+1, promtestutil.ToFloat64(m.SettlePasses))
	assert.True(t, value.Equal(cty.NumberIntVal(12), read(t, e, "area", "value")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(m.Actions.WithLabelValues(session.ActionMovePoint, "accepted")))
}

func TestInteraction_SessionsAreIsolated(t *testing.T) {
	// --- Arrange ---
	h, entries, m := openHost(t, 2)
	assert.Equal(t, float64(2), promtestutil.ToFloat64(m.Sessions))
	assert.Len(t, h.IDs(), 2)

	// --- Act ---
	_, err := entries[0].Pipeline.Dispatch(context.Background(), session.Action{
		Name:   session.ActionMovePoint,
		Target: "p",
		Args:   map[string]cty.Value{"x": cty.NumberIntVal(1), "y": cty.NumberIntVal(5)},
	})
	require.NoError(t, err)
	require.NoError(t, h.Close(entries[1].ID))

	// --- Assert ---
	assert.True(t, value.Equal(cty.NumberIntVal(5), read(t, entries[0], "area", "value")))
	_, err = h.Get(entries[1].ID)
	assert.ErrorIs(t, err, host.ErrUnknownSession)
	assert.Equal(t, float64(1), promtestutil.ToFloat64(m.Sessions))
}

func TestInteraction_ChangesAreQueuedForRenderers(t *testing.T) {
	// --- Arrange ---
	_, entries, _ := openHost(t, 1)
	e := entries[0]
	events := e.Session.Events()
	events.Drain()

	// --- Act ---
	_, err := e.Pipeline.Dispatch(context.Background(), session.Action{
		Name:   session.ActionMovePoint,
		Target: "p",
		Args:   map[string]cty.Value{"x": cty.NumberIntVal(4), "y": cty.NumberIntVal(2)},
	})
	require.NoError(t, err)

	// --- Assert ---
	changed := make(map[string]cty.Value)
	for _, ev := range events.Drain() {
		changed[ev.Address+"."+ev.Variable] = ev.Value
	}
	require.Contains(t, changed, "p.x")
	require.Contains(t, changed, "area.value")
	assert.True(t, value.Equal(cty.NumberIntVal(4), changed["p.x"]))
	assert.True(t, value.Equal(cty.NumberIntVal(8), changed["area.value"]))
	assert.Zero(t, events.Dropped())
}
