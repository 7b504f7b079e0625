// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

/*
Package cellgraph implements the dependency graph of value cells that backs a
document session.

A cell is one state variable of one component. It either holds an essential
value (set from markup or by a write) or computes its value from other cells
through a definition function. The graph is pull-based:

  - Get ensures a cell is computed, computing its dependencies depth-first
    first. Dependencies are recorded while the definition runs, through the
    Reader it receives.
  - Invalidate marks every transitive dependent stale, breadth-first over the
    reverse edges, without recomputing anything.
  - A stale cell whose dependencies all still have the versions it observed is
    marked computed again without running its definition. A cell's version
    only moves when a recomputation produces a value that is not equal to the
    previous one, so an unchanged result stops the cascade.

Cycles are detected on the evaluation stack. Every member of a cycle fails
with the error sentinel from package value, and a single structural
diagnostic names the cycle. Cells outside the cycle read the sentinel as an
ordinary value.

A definition that cannot produce a value yet returns a *DeferredError. The
cell then stays deferred (neither stale nor computed) until RetryDeferred is
called, which the session does whenever a composite finishes expanding.

Writes go through transactions. A write to a derived cell is translated by
the cell's inverse function into writes on its inputs until essential cells
are reached; all writes of a transaction are undone together on Rollback.

Graph is not safe for concurrent use. A session owns exactly one graph and
drives it from a single goroutine.
*/
package cellgraph
