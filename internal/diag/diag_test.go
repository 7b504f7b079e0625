// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package diag

import (
	"bytes"
	"sync"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func span(line int) *hcl.Range {
	return &hcl.Range{
		Filename: "doc.dg.hcl",
		Start:    hcl.Pos{Line: line, Column: 1, Byte: line * 10},
		End:      hcl.Pos{Line: line, Column: 5, Byte: line*10 + 4},
	}
}

func summaries(list []*Diagnostic) []string {
	out := make([]string, 0, len(list))
	for _, d := range list {
		out = append(out, d.Summary)
	}
	return out
}

func TestCollector_OrdersByPassThenReportOrder(t *testing.T) {
	c := NewCollector()
	c.Add(&Diagnostic{Pass: Inverse, Severity: hcl.DiagError, Summary: "inverse 1", Subject: span(1)})
	c.Add(&Diagnostic{Pass: Definition, Severity: hcl.DiagError, Summary: "definition 1", Subject: span(2)})
	c.Add(&Diagnostic{Pass: Structural, Severity: hcl.DiagError, Summary: "structural 1", Subject: span(3)})
	c.Add(&Diagnostic{Pass: Definition, Severity: hcl.DiagWarning, Summary: "definition 2", Subject: span(4)})
	c.Add(&Diagnostic{Pass: Structural, Severity: hcl.DiagError, Summary: "structural 2", Subject: span(5)})

	assert.Equal(t, []string{
		"structural 1", "structural 2",
		"definition 1", "definition 2",
		"inverse 1",
	}, summaries(c.Diagnostics()))
}

func TestCollector_DeduplicatesIdenticalReports(t *testing.T) {
	c := NewCollector()
	assert.True(t, c.Add(&Diagnostic{Pass: Definition, Severity: hcl.DiagError, Summary: "x", Subject: span(1)}))
	assert.False(t, c.Add(&Diagnostic{Pass: Definition, Severity: hcl.DiagError, Summary: "x", Subject: span(1)}))
	assert.True(t, c.Add(&Diagnostic{Pass: Definition, Severity: hcl.DiagError, Summary: "x", Subject: span(2)}))
	assert.Equal(t, 2, c.Len())
}

func TestCollector_ConcurrentReports(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Add(&Diagnostic{Pass: Definition, Severity: hcl.DiagWarning, Summary: "w", Subject: span(i)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, c.Len())
}

func TestDiagnostic_String(t *testing.T) {
	d := &Diagnostic{
		Severity:  hcl.DiagError,
		Summary:   "cannot set this derived value",
		Component: "sq",
		Attribute: "value",
		Subject:   span(2),
	}
	assert.Equal(t, "error: cannot set this derived value [sq.value] at doc.dg.hcl:2,1-5", d.String())
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, nil, []*Diagnostic{{Severity: hcl.DiagError, Summary: "Boom", Detail: "It broke."}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Boom")
}
