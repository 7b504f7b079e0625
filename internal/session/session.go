// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/component"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/document"
	"github.com/vk/docgrid/internal/expander"
	"github.com/vk/docgrid/internal/inmemorystore"
	"github.com/vk/docgrid/internal/metrics"
	"github.com/vk/docgrid/internal/resolver"
	"github.com/vk/docgrid/internal/statestore"
	"github.com/vk/docgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// maxSettleRounds bounds the retry loop of one settle pass.
const maxSettleRounds = 64

// ErrUnknownCell is returned by Value and CellID for addresses or variables
// that do not exist.
var ErrUnknownCell = errors.New("unknown state variable")

// Session is the live state of one document.
type Session struct {
	doc  *document.Document
	seed uint64

	store statestore.Store
	diags *diag.Collector
	graph *cellgraph.Graph
	table *component.Table
	res   *resolver.Resolver
	exp   *expander.Expander
	root  *component.Component

	events  *EventQueue
	metrics *metrics.Metrics
	// exported is the graph activity already added to the metrics.
	exported cellgraph.Stats
}

// New builds a session for doc. Structural problems found in the document
// are recorded as diagnostics; the error result is reserved for failures
// that leave no usable session.
func New(ctx context.Context, doc *document.Document, opts Options) (*Session, error) {
	if doc == nil || doc.Root == nil {
		return nil, errors.New("session: document is empty")
	}
	logger := ctxlog.FromContext(ctx)
	opts = opts.withDefaults()

	store, seed, err := restore(ctx, opts)
	if err != nil {
		return nil, err
	}

	s := &Session{
		doc:     doc,
		seed:    seed,
		store:   store,
		diags:   diag.NewCollector(),
		table:   component.NewTable(),
		events:  NewEventQueue(opts.EventBuffer),
		metrics: opts.Metrics,
	}
	s.events.onDrop = s.metrics.EventsDropped.Inc
	s.graph = cellgraph.New(store, s.diags)
	s.res = resolver.New(s.table, s.graph)
	s.exp = expander.New(s.table, s)

	s.diags.Extend(diag.Structural, "", component.Validate(doc.Root))

	s.root = &component.Component{
		Kind:      component.KindDocument,
		Parent:    component.NoIndex,
		Node:      doc.Root,
		Namespace: true,
		Active:    true,
	}
	if _, err := s.table.Add(s.root); err != nil {
		return nil, fmt.Errorf("session: adding document root: %w", err)
	}
	if err := s.buildChildren(ctx, s.root, doc.Root.Blocks); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	logger.Debug("New: session built.", "components", s.table.Len(), "seed", seed)
	return s, nil
}

func restore(ctx context.Context, opts Options) (statestore.Store, uint64, error) {
	seed := opts.VariantSeed
	store := opts.Store
	if opts.Restore == nil {
		if store == nil {
			store = inmemorystore.New()
		}
		return store, seed, nil
	}
	if opts.Restore.Seed != 0 {
		seed = opts.Restore.Seed
	}
	if store == nil {
		return inmemorystore.NewFromSnapshot(*opts.Restore), seed, nil
	}
	for _, e := range opts.Restore.Entries {
		if err := store.Set(ctx, e.Key, e.Value); err != nil {
			return nil, 0, fmt.Errorf("session: restoring %s: %w", e.Key, err)
		}
	}
	return store, seed, nil
}

// Document returns the document the session was built from.
func (s *Session) Document() *document.Document {
	return s.doc
}

// Seed returns the variant seed in effect.
func (s *Session) Seed() uint64 {
	return s.seed
}

// Graph exposes the cell graph, mainly for inspection in tests.
func (s *Session) Graph() *cellgraph.Graph {
	return s.graph
}

// Events returns the outbound change-event queue.
func (s *Session) Events() *EventQueue {
	return s.events
}

// Diagnostics returns every diagnostic recorded so far, ordered by pass.
func (s *Session) Diagnostics() []*diag.Diagnostic {
	return s.diags.Diagnostics()
}

// HasErrors reports whether an error diagnostic was recorded.
func (s *Session) HasErrors() bool {
	return s.diags.HasErrors()
}

// EssentialState returns the essential values written or restored during the
// session, keyed by component address and variable.
func (s *Session) EssentialState(ctx context.Context) (statestore.Snapshot, error) {
	entries, err := s.store.Entries(ctx)
	if err != nil {
		return statestore.Snapshot{}, fmt.Errorf("reading essential state: %w", err)
	}
	return statestore.Snapshot{Seed: s.seed, Entries: entries}, nil
}

// CellID returns the cell behind a component's state variable.
func (s *Session) CellID(address, variable string) (cellgraph.CellID, error) {
	c, ok := s.table.ByAddress(address)
	if !ok {
		return 0, fmt.Errorf("%w: no component at %q", ErrUnknownCell, address)
	}
	if id, ok := c.Cells[variable]; ok {
		return id, nil
	}
	if id, ok := c.Bindings[variable]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s has no state variable %q", ErrUnknownCell, address, variable)
}

// Value reads a component's state variable, computing it if needed.
func (s *Session) Value(ctx context.Context, address, variable string) (cty.Value, error) {
	id, err := s.CellID(address, variable)
	if err != nil {
		return cty.NilVal, err
	}
	return s.graph.Get(ctx, id)
}

// Settle brings every active cell up to date. Composites are expanded and
// deferred cells retried until a round makes no progress. Resolutions that
// are still pending afterwards are reported as diagnostics.
func (s *Session) Settle(ctx context.Context) error {
	if err := s.settle(ctx); err != nil {
		return err
	}
	s.metrics.SettlePasses.Inc()
	s.publish(ctx)
	return nil
}

func (s *Session) settle(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var prev []cellgraph.CellID
	round := 1
	for ; ; round++ {
		if err := s.touchAll(ctx); err != nil {
			return err
		}
		completed := s.exp.Completed()
		deferred := s.graph.Deferred()
		if len(deferred) == 0 || (completed == 0 && slices.Equal(deferred, prev)) {
			break
		}
		if round >= maxSettleRounds {
			logger.Warn("Settle: giving up on deferred cells.", "rounds", round, "deferred", len(deferred))
			break
		}
		prev = deferred
		s.graph.RetryDeferred(ctx)
	}
	s.reportPending()
	s.exportStats()
	logger.Debug("Settle: pass finished.", "rounds", round, "deferred", len(s.graph.Deferred()), "components", s.table.Len())
	return nil
}

// touchAll reads every cell of every active component in document order.
func (s *Session) touchAll(ctx context.Context) error {
	var failure error
	s.table.Walk(s.root.Index, func(c *component.Component) bool {
		if failure != nil || (c.IsInstance() && !c.Active) {
			return false
		}
		for _, id := range cellsOf(c) {
			if _, err := s.graph.Get(ctx, id); err != nil {
				var ie *cellgraph.InvariantError
				if errors.As(err, &ie) {
					failure = err
					return false
				}
			}
		}
		return true
	})
	return failure
}

// reportPending turns deferred resolutions whose origin still owns a
// deferred cell into diagnostics.
func (s *Session) reportPending() {
	deferred := make(map[cellgraph.CellID]struct{})
	for _, id := range s.graph.Deferred() {
		deferred[id] = struct{}{}
	}
	for _, p := range s.res.Pending() {
		c, ok := s.table.Get(p.Origin)
		if !ok {
			s.res.Forget(p.Origin)
			continue
		}
		stuck := false
		for _, id := range cellsOf(c) {
			if _, ok := deferred[id]; ok {
				stuck = true
				break
			}
		}
		if !stuck {
			continue
		}
		s.diags.Add(&diag.Diagnostic{
			Pass:      diag.Definition,
			Severity:  hcl.DiagError,
			Summary:   "Unresolved reference",
			Detail:    fmt.Sprintf("The reference %s could not be resolved: %s.", p.Path, p.Reason),
			Subject:   p.Span,
			Component: c.Address,
		})
	}
}

func (s *Session) exportStats() {
	st := s.graph.Stats()
	s.metrics.Computations.Add(float64(st.Computations - s.exported.Computations))
	s.metrics.Cutoffs.Add(float64(st.Cutoffs - s.exported.Cutoffs))
	s.exported = st
}

// publish pushes the cells changed since the previous call to the event
// queue.
func (s *Session) publish(ctx context.Context) {
	for _, id := range s.graph.DrainChanged() {
		key, ok := s.graph.Key(id)
		if !ok {
			continue
		}
		v, err := s.graph.Get(ctx, id)
		if err != nil {
			v = value.Undefined
		}
		s.events.Push(Event{Address: key.Component, Variable: key.Variable, Value: v})
	}
}

// cellsOf returns a component's bindings and then its cells, each ordered
// by name.
func cellsOf(c *component.Component) []cellgraph.CellID {
	out := make([]cellgraph.CellID, 0, len(c.Cells)+len(c.Bindings))
	for _, m := range []map[string]cellgraph.CellID{c.Bindings, c.Cells} {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, m[name])
		}
	}
	return out
}
