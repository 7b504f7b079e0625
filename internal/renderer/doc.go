// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package renderer connects documents to renderers over socket.io.
//
// The Server side answers snapshot, dispatch, wait and diagnostics requests
// with acknowledgements and pushes cellChanged events as the session
// settles. Every acknowledgement carries two arguments: the payload and an
// error message that is empty on success. Permission questions for
// suspended actions are broadcast as permission events; renderers answer
// with a single boolean.
//
// The Client is the Go side of that protocol, used by the dispatch command
// and by tests.
package renderer
