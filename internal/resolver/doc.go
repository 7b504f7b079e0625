// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package resolver turns reference paths into components.
//
// A lookup starts in the namespace enclosing the origin and, in
// AscendThenDescend mode, walks outward through enclosing namespaces. The
// first namespace that declares the name wins, so local names shadow outer
// ones. Once the first segment is found the remaining segments descend into
// the target: names select descendants, indices and keys select replacement
// instances of composites. Segments that do not select a component are
// returned as the residual for the caller to apply, typically a state
// variable name.
//
// The resolver never caches. Every structural fact it relies on is read
// from a composite's replacements cell through the caller's reader, so the
// dependency graph re-runs the caller when the structure changes.
package resolver
