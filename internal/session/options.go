// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package session

import (
	"github.com/vk/docgrid/internal/metrics"
	"github.com/vk/docgrid/internal/statestore"
)

const (
	defaultVariantSeed = 1
	defaultEventBuffer = 256
)

// Options configures a session.
type Options struct {
	// VariantSeed seeds select composites. Zero means 1.
	VariantSeed uint64
	// Restore applies a saved essential-state snapshot. A non-zero seed in
	// the snapshot replaces VariantSeed so the same variant is rebuilt.
	Restore *statestore.Snapshot
	// Store persists essential values. Defaults to an in-memory store.
	Store statestore.Store
	// EventBuffer bounds the outbound change-event queue. Zero means 256.
	EventBuffer int
	// Metrics receives session counters. Defaults to a private registry.
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.VariantSeed == 0 {
		o.VariantSeed = defaultVariantSeed
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defaultEventBuffer
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New(nil)
	}
	return o
}
