// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package integration_tests

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/app"
	"github.com/vk/docgrid/internal/testutil"
)

type renderOutput struct {
	Components []struct {
		Address   string `json:"address"`
		Kind      string `json:"kind"`
		Active    bool   `json:"active"`
		Variables []struct {
			Name    string `json:"name"`
			Display string `json:"display"`
		} `json:"variables"`
	} `json:"components"`
	Diagnostics []string `json:"diagnostics"`
}

func (r renderOutput) display(address, variable string) (string, bool) {
	for _, c := range r.Components {
		if c.Address != address {
			continue
		}
		for _, v := range c.Variables {
			if v.Name == variable {
				return v.Display, true
			}
		}
	}
	return "", false
}

func TestRender_DocumentSpreadOverFiles(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"doc/inputs.dg.hcl":  `number "a" { value = 4 }`,
		"doc/derived.dg.hcl": `math "half" { expr = a / 2 }`,
		"doc/notes.txt":      `ignored`,
	}

	// --- Act ---
	result := testutil.RunIntegrationTest(t, files, (*app.App).Render)

	// --- Assert ---
	require.NoError(t, result.Err)
	var out renderOutput
	require.NoError(t, json.Unmarshal([]byte(result.Output), &out))
	half, ok := out.display("half", "value")
	require.True(t, ok, "half should be rendered")
	assert.Equal(t, "2", half)
	assert.Empty(t, out.Diagnostics)
}

func TestRender_ScriptRevealNeedsPermission(t *testing.T) {
	testCases := []struct {
		name  string
		allow bool
		want  string
	}{
		{name: "denied", allow: false, want: "false"},
		{name: "allowed", allow: true, want: "true"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			script := "steps:\n  - action: revealSolution\n    target: sol\n"
			if tc.allow {
				script = "allow_permissions: true\n" + script
			}
			files := map[string]string{
				"doc/main.dg.hcl": `solution "sol" {}`,
				"script.yaml":     script,
			}

			// --- Act ---
			result := testutil.RunIntegrationTest(t, files, (*app.App).Render, func(c *app.Config) {
				c.ScriptPath = "script.yaml"
			})

			// --- Assert ---
			require.NoError(t, result.Err)
			var out renderOutput
			require.NoError(t, json.Unmarshal([]byte(result.Output), &out))
			open, ok := out.display("sol", "open")
			require.True(t, ok)
			assert.Equal(t, tc.want, open)
			assert.Contains(t, result.LogOutput, "Script finished.")
		})
	}
}

func TestRender_TextOutputMarksInactiveComponents(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"doc/main.dg.hcl": `
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
		`,
	}

	// --- Act ---
	result := testutil.RunIntegrationTest(t, files, (*app.App).Render, func(c *app.Config) {
		c.OutputFormat = "text"
	})

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.Contains(t, result.Output, "text c[1].yes (inactive)\n")
	assert.Contains(t, result.Output, "text c[2].no\n")
	assert.Contains(t, result.Output, "  value = N\n")
}
