// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package cellgraph

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/statestore"
	"github.com/zclconf/go-cty/cty"
)

// CellID identifies a cell within one graph. Ids are never reused.
type CellID uint64

// Status is the cache state of a cell.
type Status int

const (
	// StatusStale means the cached value, if any, must be revalidated.
	StatusStale Status = iota
	// StatusComputed means the cached value is valid.
	StatusComputed
	// StatusDeferred means the definition could not produce a value because
	// its inputs are not resolvable yet.
	StatusDeferred
	// StatusFailed means the cell holds the error sentinel.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStale:
		return "stale"
	case StatusComputed:
		return "computed"
	case StatusDeferred:
		return "deferred"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ComputeFunc computes a cell's value. Every cell read through r becomes a
// dependency of the cell being computed.
type ComputeFunc func(ctx context.Context, r *Reader) (cty.Value, error)

// InverseFunc translates a requested value for a derived cell into writes
// on other cells.
type InverseFunc func(ctx context.Context, g Getter, desired cty.Value) ([]Write, error)

// Getter reads cell values.
type Getter interface {
	Get(ctx context.Context, id CellID) (cty.Value, error)
}

// Write requests that Cell takes Value.
type Write struct {
	Cell  CellID
	Value cty.Value
}

// Definition describes a cell at registration time.
type Definition struct {
	// Key names the cell: the owning component's address and the variable.
	// Essential cells are persisted under this key.
	Key statestore.Key
	// Span is the source range the cell's definition came from.
	Span *hcl.Range
	// Type is the type values are converted to. cty.NilType and
	// cty.DynamicPseudoType accept any value.
	Type cty.Type
	// Deps are declared dependencies, available to Compute via Reader.Deps.
	Deps []CellID

	Compute ComputeFunc
	Inverse InverseFunc

	// Essential cells hold Initial (or a restored value) and have no Compute.
	Essential bool
	Initial   cty.Value

	// Fixed cells ignore writes.
	Fixed bool
	// Recursive cells read their own previous value instead of failing with
	// a cycle when they are re-entered.
	Recursive bool
}

// Stats are counters describing graph activity.
type Stats struct {
	Cells         int
	Computations  uint64
	Cutoffs       uint64
	Invalidations uint64
	Cycles        uint64
}

// Graph owns the cells of a document session.
type Graph struct {
	cells  map[CellID]*cell
	nextID CellID

	store statestore.Store
	diags *diag.Collector

	// stack holds the cells currently computing, outermost first.
	stack []CellID
	// cycles maps members of a cycle under evaluation to its error.
	cycles map[CellID]*CycleError

	deferred map[CellID]struct{}
	changed  map[CellID]struct{}

	stats Stats
}

type cell struct {
	id  CellID
	def Definition

	status   Status
	value    cty.Value
	hasValue bool
	version  uint64
	err      error

	// deps maps a dependency to the version observed during the last
	// computation. depOrder keeps first-read order for deterministic checks.
	deps       map[CellID]uint64
	depOrder   []CellID
	dependents map[CellID]struct{}

	computing bool
	// dirtied is set when the cell is invalidated while it is computing.
	dirtied bool
	removed bool
}
