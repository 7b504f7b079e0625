// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package host_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/document"
	"github.com/vk/docgrid/internal/host"
	"github.com/vk/docgrid/internal/metrics"
	"github.com/vk/docgrid/internal/session"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeDoc(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestHost_SessionsAreIndependent(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	h := host.New(host.Options{Metrics: m})
	defer h.Shutdown()
	doc, diags := document.Parse([]byte(`number "n" { value = 1 }`), "n.dg.hcl")
	require.False(t, diags.HasErrors())

	first, err := h.Open(ctx, doc, nil)
	require.NoError(t, err)
	second, err := h.Open(ctx, doc, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Sessions))

	// --- Act ---
	out, err := first.Pipeline.Dispatch(ctx, session.Action{
		Name:   session.ActionSetValue,
		Target: "n",
		Args:   map[string]cty.Value{"value": cty.NumberIntVal(5)},
	})
	require.NoError(t, err)
	require.Equal(t, session.StatusAccepted, out.Status)

	// --- Assert ---
	var v cty.Value
	require.NoError(t, second.Pipeline.Do(ctx, func(ctx context.Context, s *session.Session) error {
		v, err = s.Value(ctx, "n", "value")
		return err
	}))
	assert.True(t, value.Equal(cty.NumberIntVal(1), v))

	require.NoError(t, h.Close(first.ID))
	_, err = h.Get(first.ID)
	assert.ErrorIs(t, err, host.ErrUnknownSession)
	assert.Equal(t, []string{second.ID}, h.IDs())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Sessions))
}

func TestCheckAll_ReportsPerDocument(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	good := writeDoc(t, dir, "good.dg.hcl", `number "n" { value = 1 }`)
	bad := writeDoc(t, dir, "bad.dg.hcl", `math "m" { expr = missing + 1 }`)
	broken := writeDoc(t, dir, "broken.dg.hcl", `number "n" {`)

	// --- Act ---
	results, err := host.CheckAll(context.Background(), [][]string{{good}, {bad}, {broken}}, session.Options{})

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.False(t, results[0].HasErrors())
	assert.True(t, results[1].HasErrors())
	require.NotEmpty(t, results[1].Diagnostics)
	assert.Equal(t, "Unresolved reference", results[1].Diagnostics[0].Summary)
	assert.True(t, results[2].HasErrors())
}

func TestCheckAll_MissingPathFails(t *testing.T) {
	_, err := host.CheckAll(context.Background(), [][]string{{filepath.Join(t.TempDir(), "absent")}}, session.Options{})
	require.Error(t, err)
}
