// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

/*
Package refpath provides a structured, type-safe representation for the
paths used to address components inside a document, based on the canonical
format `path`.

The format is a dot-separated sequence of segments, each optionally followed
by one or more bracketed selectors, e.g. `r[2].item`, `m["a"].value` or
`grid[1][3]`. Indices are 1-based, matching how documents count replacement
slots.

The same type is used for two purposes:
  - stable component addresses (keys of the essential-state snapshot), and
  - references written inside expressions, converted from hcl.Traversal.

This package centralizes all formatting and parsing logic so both uses agree
on the textual form.
*/
package refpath
