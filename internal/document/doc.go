// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package document turns HCL source into the immutable node tree the rest
// of the engine consumes.
//
// Every block becomes a Node whose Type is the block type and whose Name is
// the optional first label. Attributes stay unevaluated hcl.Expressions. The
// tree is built once and never mutated; components created later by
// composite expansion point back at the nodes they were instantiated from.
//
// A document may span several files. Load reads them in lexical path order
// and concatenates their top-level blocks under one implicit root.
package document
