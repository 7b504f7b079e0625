// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package inmemorystore provides a thread-safe, in-memory implementation
// of the statestore.Store interface. It is suitable for interactive sessions
// and tests, or any scenario where essential state is persisted by exporting
// a snapshot rather than by the store itself.
package inmemorystore
