// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package cellgraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

var (
	// ErrCellNotFound is returned for ids that were never registered or that
	// have been removed.
	ErrCellNotFound = errors.New("cell not found")
	// ErrDeferred matches every *DeferredError.
	ErrDeferred = errors.New("value deferred")
	// ErrInverseUnavailable is returned when a write targets a derived cell
	// without an inverse definition.
	ErrInverseUnavailable = errors.New("cannot set this derived value")
)

// DeferredError reports that a value cannot be determined yet.
type DeferredError struct {
	Reason string
}

func (e *DeferredError) Error() string {
	return "deferred: " + e.Reason
}

// Is makes errors.Is(err, ErrDeferred) hold.
func (e *DeferredError) Is(target error) bool {
	return target == ErrDeferred
}

// Deferred returns a *DeferredError with a formatted reason.
func Deferred(format string, args ...any) error {
	return &DeferredError{Reason: fmt.Sprintf(format, args...)}
}

// CycleError reports a dependency cycle. Members are ordered from the cell
// that was re-entered to the cell that re-entered it.
type CycleError struct {
	Members []CellID
	Labels  []string
}

func (e *CycleError) Error() string {
	return "circular dependency: " + e.Path()
}

// Path renders the cycle as `a -> b -> a`.
func (e *CycleError) Path() string {
	if len(e.Labels) == 0 {
		return ""
	}
	return strings.Join(append(append([]string(nil), e.Labels...), e.Labels[0]), " -> ")
}

// Contains reports whether id is a member of the cycle.
func (e *CycleError) Contains(id CellID) bool {
	for _, m := range e.Members {
		if m == id {
			return true
		}
	}
	return false
}

// InverseError reports a rejected write.
type InverseError struct {
	Cell string
	Err  error
}

func (e *InverseError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Cell, e.Err)
}

func (e *InverseError) Unwrap() error {
	return e.Err
}

// InvariantError reports an internal inconsistency. It aborts the pass that
// observed it.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant violated: " + e.Msg
}

// DiagnosticsError carries source-located problems found while evaluating a
// definition. The graph records them as definition diagnostics.
type DiagnosticsError struct {
	Diags hcl.Diagnostics
}

func (e *DiagnosticsError) Error() string {
	return e.Diags.Error()
}
