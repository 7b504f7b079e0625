// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package pipeline serializes every access to a session through one worker
// goroutine.
//
// # Why Pipeline Exists
//
// A session is a single-threaded structure. Renderers, however, deliver
// actions from many goroutines (one per socket, one per HTTP request). The
// pipeline accepts actions from any goroutine, queues them, and applies them
// one at a time in arrival order.
//
// # How It Works
//
//  1. Dispatch or Submit appends a job to the queue and wakes the worker.
//  2. A queued transient or skippable action is superseded when a later
//     action with the same name and target arrives before it started.
//  3. The worker applies the action and, unless it is transient, settles the
//     session.
//  4. An action that needs permission gets a token. The permission function
//     runs outside the worker; its answer re-enters the queue as a new job
//     and Wait returns the final outcome.
//
// # Thread-Safety
//
// Every exported method of Pipeline is safe for concurrent use. The session
// must not be touched directly while a pipeline owns it.
package pipeline
