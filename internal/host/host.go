// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package host keeps several independent document sessions, each behind its
// own pipeline.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/document"
	"github.com/vk/docgrid/internal/metrics"
	"github.com/vk/docgrid/internal/pipeline"
	"github.com/vk/docgrid/internal/session"
	"github.com/vk/docgrid/internal/statestore"
)

// ErrUnknownSession is returned for ids the host does not know.
var ErrUnknownSession = errors.New("unknown session")

// Options configures a Host.
type Options struct {
	Metrics    *metrics.Metrics
	Permission pipeline.PermissionFunc
	// Session is the template for every session the host opens.
	Session session.Options
}

// Entry is one open document.
type Entry struct {
	ID       string
	Session  *session.Session
	Pipeline *pipeline.Pipeline
}

// Host owns open sessions. It is safe for concurrent use.
type Host struct {
	opts Options

	mu      sync.RWMutex
	entries map[string]*Entry
}

// New returns an empty host.
func New(opts Options) *Host {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	opts.Session.Metrics = opts.Metrics
	return &Host{opts: opts, entries: make(map[string]*Entry)}
}

// Open builds and settles a session for doc and starts its pipeline.
// restore, when set, is the essential state to start from.
func (h *Host) Open(ctx context.Context, doc *document.Document, restore *statestore.Snapshot) (*Entry, error) {
	opts := h.opts.Session
	if restore != nil {
		opts.Restore = restore
	}
	s, err := session.New(ctx, doc, opts)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	if err := s.Settle(ctx); err != nil {
		return nil, fmt.Errorf("settling session: %w", err)
	}

	e := &Entry{
		ID:      uuid.NewString(),
		Session: s,
		Pipeline: pipeline.New(ctx, s, pipeline.Options{
			Permission: h.opts.Permission,
			Metrics:    h.opts.Metrics,
		}),
	}
	h.mu.Lock()
	h.entries[e.ID] = e
	h.mu.Unlock()
	h.opts.Metrics.Sessions.Inc()
	ctxlog.FromContext(ctx).Debug("Host opened session.", "session", e.ID)
	return e, nil
}

// Get returns the entry with the given id.
func (h *Host) Get(id string) (*Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	return e, nil
}

// IDs returns the ids of the open sessions, sorted.
func (h *Host) IDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.entries))
	for id := range h.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops the session's pipeline and forgets it.
func (h *Host) Close(id string) error {
	h.mu.Lock()
	e, ok := h.entries[id]
	delete(h.entries, id)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	e.Pipeline.Close()
	h.opts.Metrics.Sessions.Dec()
	return nil
}

// Shutdown closes every session.
func (h *Host) Shutdown() {
	for _, id := range h.IDs() {
		_ = h.Close(id)
	}
}
