// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package session holds the live state of one document: the component
// table, the cell graph behind every state variable, the resolver and the
// composite expander.
//
// A session is built from a parsed document without computing anything.
// Cells are computed on demand; Settle brings every active cell up to date
// and expands composites until nothing more can be resolved. Apply turns a
// user action into writes on essential cells inside one transaction.
//
// A Session is not safe for concurrent use. The pipeline package owns a
// session and serializes every call to it on one worker goroutine.
package session
