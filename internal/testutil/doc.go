// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package testutil holds shared helpers for package and integration tests:
// a harness that runs the app against files in a temporary directory and
// small helpers for building and inspecting settled sessions.
package testutil
