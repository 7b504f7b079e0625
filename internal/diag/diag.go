// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package diag collects source-located warnings and errors produced while a
// document is processed.
//
// Diagnostics are grouped by the pass that produced them. Diagnostics
// returns structural diagnostics first, then definition
// diagnostics, then inverse-write diagnostics. Within a pass the order is the
// order of reporting. Reporting the same diagnostic twice is a no-op, so
// recomputing a cell does not grow the list.
package diag

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hashicorp/hcl/v2"
)

// Pass identifies the processing stage that produced a diagnostic.
type Pass int

const (
	// Structural covers document validation, malformed composite control
	// state and dependency cycles.
	Structural Pass = iota
	// Definition covers evaluation of state-variable definitions, including
	// reference resolution.
	Definition
	// Inverse covers rejected or ignored writes.
	Inverse

	passCount
)

func (p Pass) String() string {
	switch p {
	case Structural:
		return "structural"
	case Definition:
		return "definition"
	case Inverse:
		return "inverse"
	default:
		return fmt.Sprintf("pass(%d)", int(p))
	}
}

// Diagnostic is one warning or error tied to a source span and, where known,
// to a component address and attribute.
type Diagnostic struct {
	Pass      Pass
	Severity  hcl.DiagnosticSeverity
	Summary   string
	Detail    string
	Subject   *hcl.Range
	Component string
	Attribute string
}

// HCL converts the diagnostic for use with the hcl diagnostic writers.
func (d *Diagnostic) HCL() *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: d.Severity,
		Summary:  d.Summary,
		Detail:   d.Detail,
		Subject:  d.Subject,
	}
}

// String renders the diagnostic on one line.
func (d *Diagnostic) String() string {
	var sb strings.Builder
	if d.Severity == hcl.DiagWarning {
		sb.WriteString("warning: ")
	} else {
		sb.WriteString("error: ")
	}
	sb.WriteString(d.Summary)
	if d.Detail != "" {
		sb.WriteString("; ")
		sb.WriteString(d.Detail)
	}
	if d.Component != "" {
		sb.WriteString(" [")
		sb.WriteString(d.Component)
		if d.Attribute != "" {
			sb.WriteString(".")
			sb.WriteString(d.Attribute)
		}
		sb.WriteString("]")
	}
	if d.Subject != nil {
		sb.WriteString(" at ")
		sb.WriteString(d.Subject.String())
	}
	return sb.String()
}

func (d *Diagnostic) key() string {
	return fmt.Sprintf("%d|%d|%s|%s|%s|%s|%s", d.Pass, d.Severity, d.Summary, d.Detail, d.Component, d.Attribute, subjectKey(d.Subject))
}

func subjectKey(r *hcl.Range) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d-%d", r.Filename, r.Start.Byte, r.End.Byte)
}

// Collector accumulates diagnostics. It is safe for concurrent use so that
// readers outside the processing pass can take snapshots.
type Collector struct {
	mu     sync.Mutex
	passes [passCount][]*Diagnostic
	seen   map[string]struct{}
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{seen: make(map[string]struct{})}
}

// Add records d and reports whether it was new.
func (c *Collector) Add(d *Diagnostic) bool {
	if d == nil {
		return false
	}
	if d.Pass < 0 || d.Pass >= passCount {
		d.Pass = Definition
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := d.key()
	if _, ok := c.seen[k]; ok {
		return false
	}
	c.seen[k] = struct{}{}
	c.passes[d.Pass] = append(c.passes[d.Pass], d)
	return true
}

// Extend records hcl diagnostics for a component.
func (c *Collector) Extend(pass Pass, component string, diags hcl.Diagnostics) {
	for _, d := range diags {
		c.Add(&Diagnostic{
			Pass:      pass,
			Severity:  d.Severity,
			Summary:   d.Summary,
			Detail:    d.Detail,
			Subject:   d.Subject,
			Component: component,
		})
	}
}

// Diagnostics returns the ordered diagnostics without clearing them.
func (c *Collector) Diagnostics() []*Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ordered()
}

// Len returns the number of recorded diagnostics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.passes {
		n += len(p)
	}
	return n
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (c *Collector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.passes {
		for _, d := range p {
			if d.Severity == hcl.DiagError {
				return true
			}
		}
	}
	return false
}

func (c *Collector) ordered() []*Diagnostic {
	var out []*Diagnostic
	for _, p := range c.passes {
		out = append(out, p...)
	}
	return out
}

// ToHCL converts a list of diagnostics.
func ToHCL(list []*Diagnostic) hcl.Diagnostics {
	out := make(hcl.Diagnostics, 0, len(list))
	for _, d := range list {
		out = append(out, d.HCL())
	}
	return out
}

// Write renders diagnostics with source snippets when files are known.
func Write(w io.Writer, files map[string]*hcl.File, list []*Diagnostic) error {
	writer := hcl.NewDiagnosticTextWriter(w, files, 0, false)
	return writer.WriteDiagnostics(ToHCL(list))
}
