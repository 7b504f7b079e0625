// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package component defines the closed set of component kinds, validates
// document nodes against each kind's schema, and keeps the table of live
// components of one session.
//
// Components form a tree. A component owns its children by index; the
// parent link is a plain index back into the table and never owns anything.
// Composite components own instance components, one per replacement slot,
// and the instances own the components instantiated from the composite's
// template.
package component
