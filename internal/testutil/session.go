// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/document"
	"github.com/vk/docgrid/internal/session"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// NewSession parses src, builds a session and settles it. Structural or
// syntax errors fail the test; evaluation diagnostics are left to the caller.
func NewSession(t *testing.T, src string, opts session.Options) *session.Session {
	t.Helper()
	ctx := context.Background()
	doc, diags := document.Parse([]byte(Unindent(src)), t.Name()+".dg.hcl")
	require.False(t, diags.HasErrors(), "document should parse: %s", diags.Error())
	s, err := session.New(ctx, doc, opts)
	require.NoError(t, err)
	require.NoError(t, s.Settle(ctx))
	return s
}

// RequireValue reads a state variable and fails the test on error.
func RequireValue(t *testing.T, s *session.Session, address, variable string) cty.Value {
	t.Helper()
	v, err := s.Value(context.Background(), address, variable)
	require.NoError(t, err, "reading %s.%s", address, variable)
	return v
}

// AssertValue checks a state variable against want.
func AssertValue(t *testing.T, s *session.Session, address, variable string, want cty.Value) bool {
	t.Helper()
	got := RequireValue(t, s, address, variable)
	return assert.True(t, value.Equal(want, got), "%s.%s: want %s, got %s", address, variable, value.Format(want), value.Format(got))
}

// Apply runs an action and settles the session, like a pipeline would.
func Apply(t *testing.T, s *session.Session, a session.Action) session.Outcome {
	t.Helper()
	ctx := context.Background()
	out := s.Apply(ctx, a)
	require.NoError(t, out.Err)
	require.NoError(t, s.Settle(ctx))
	return out
}

// Summaries lists the summaries of every diagnostic of the session.
func Summaries(s *session.Session) []string {
	var out []string
	for _, d := range s.Diagnostics() {
		out = append(out, d.Summary)
	}
	return out
}
