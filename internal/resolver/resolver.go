// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/component"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/refpath"
)

// ReplacementsVar is the state variable holding a composite's replacement
// set.
const ReplacementsVar = "replacements"

// Resolver resolves references against a component table.
type Resolver struct {
	table   *component.Table
	graph   *cellgraph.Graph
	pending map[string]Pending
}

// New creates a resolver over table. The graph is consulted to skip
// composites whose expansion is in progress.
func New(table *component.Table, graph *cellgraph.Graph) *Resolver {
	return &Resolver{
		table:   table,
		graph:   graph,
		pending: make(map[string]Pending),
	}
}

// Resolve answers req. Replacement sets are read through rd. The error
// result carries failures of those reads other than deferral, such as a
// dependency cycle.
func (r *Resolver) Resolve(ctx context.Context, rd Reader, req Request) (Resolution, error) {
	res, err := r.resolve(ctx, rd, req)
	if err != nil {
		return Resolution{}, err
	}

	key := pendingKey(req)
	if res.Kind == Deferred {
		r.pending[key] = Pending{Request: req, Reason: res.Reason}
	} else {
		delete(r.pending, key)
	}

	ctxlog.FromContext(ctx).Debug("Resolve: reference resolved.",
		"path", req.Path.String(), "origin", int(req.Origin), "mode", req.Mode.String(),
		"result", res.Kind.String(), "target", int(res.Target), "residual", len(res.Residual))
	return res, nil
}

// Pending returns the deferred resolutions not answered since, ordered by
// origin and path.
func (r *Resolver) Pending() []Pending {
	keys := make([]string, 0, len(r.pending))
	for k := range r.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := r.pending[keys[i]], r.pending[keys[j]]
		if a.Origin != b.Origin {
			return a.Origin < b.Origin
		}
		return keys[i] < keys[j]
	})
	out := make([]Pending, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.pending[k])
	}
	return out
}

// Forget drops pending resolutions made on behalf of origin.
func (r *Resolver) Forget(origin component.Index) {
	for k, p := range r.pending {
		if p.Origin == origin {
			delete(r.pending, k)
		}
	}
}

func pendingKey(req Request) string {
	return fmt.Sprintf("%d:%s", req.Origin, req.Path.String())
}

// steps splits every segment into a name step and a selector step.
func steps(p refpath.Path) []refpath.Segment {
	var out []refpath.Segment
	for _, s := range p.Segments {
		if s.Name != "" {
			out = append(out, s.WithoutSelector())
		}
		if s.HasSelector() {
			out = append(out, s.Selector())
		}
	}
	return out
}

func (r *Resolver) resolve(ctx context.Context, rd Reader, req Request) (Resolution, error) {
	path := steps(req.Path)
	if len(path) == 0 || path[0].Name == "" {
		return notFound("a reference must start with a name"), nil
	}
	name := path[0].Name

	ns, ok := r.table.EnclosingNamespace(req.Origin)
	if !ok {
		return notFound("the referring component no longer exists"), nil
	}

	var blocked cellgraph.CellID
	for {
		if id, ok := ns.Bindings[name]; ok {
			return Resolution{
				Kind:     Found,
				Target:   ns.Index,
				Binding:  id,
				Residual: path[1:],
				Consumed: 1,
			}, nil
		}

		target, deferred, skipped, err := r.lookupName(ctx, rd, ns, name)
		if err != nil {
			return Resolution{}, err
		}
		if blocked == 0 {
			blocked = skipped
		}
		if deferred != "" {
			return Resolution{Kind: Deferred, Reason: deferred}, nil
		}
		if target != nil {
			return r.descend(ctx, rd, ns, target, path)
		}

		if req.Mode == refpath.DescendOnly || ns.Parent == component.NoIndex {
			break
		}
		if ns, ok = r.table.EnclosingNamespace(ns.Parent); !ok {
			break
		}
	}
	if blocked != 0 {
		// Only the expanding composite could declare the name, so the
		// reference closes a cycle through its replacements.
		if _, err := rd.Get(ctx, blocked); err != nil {
			return Resolution{}, err
		}
	}
	return notFound(fmt.Sprintf("no component named %q is in scope", name)), nil
}

// lookupName finds a name declared in ns. Names declared in transparent
// composites are only known once those composites expand, so a miss
// expands them. A composite that is expanding right now is skipped and
// its replacements cell returned, so the caller can report the cycle when
// nothing else declares the name.
func (r *Resolver) lookupName(ctx context.Context, rd Reader, ns *component.Component, name string) (*component.Component, string, cellgraph.CellID, error) {
	if c := r.named(ns, name); c != nil {
		return c, "", 0, nil
	}

	var skipped cellgraph.CellID

	// Expansion may append to ns.Composites while we iterate.
	for i := 0; i < len(ns.Composites); i++ {
		comp, ok := r.table.Get(ns.Composites[i])
		if !ok {
			continue
		}
		id, ok := comp.Cells[ReplacementsVar]
		if !ok {
			continue
		}
		if r.graph.IsComputing(id) {
			if skipped == 0 {
				skipped = id
			}
			continue
		}
		if _, err := rd.Get(ctx, id); err != nil {
			if errors.Is(err, cellgraph.ErrDeferred) {
				return nil, fmt.Sprintf("%s has not been expanded yet", comp.Address), 0, nil
			}
			return nil, "", 0, err
		}
		if c := r.named(ns, name); c != nil {
			return c, "", 0, nil
		}
	}
	return nil, "", skipped, nil
}

func (r *Resolver) named(ns *component.Component, name string) *component.Component {
	idx, ok := ns.Names[name]
	if !ok {
		return nil
	}
	c, ok := r.table.Get(idx)
	if !ok {
		return nil
	}
	return c
}

// descend applies the remaining steps to target, found by name in ns.
func (r *Resolver) descend(ctx context.Context, rd Reader, ns, target *component.Component, path []refpath.Segment) (Resolution, error) {
	// Record the replacement sets between ns and the target so the caller
	// is recomputed when one of them changes.
	for _, a := range r.table.Ancestors(target.Index, ns.Index) {
		if !a.IsInstance() {
			continue
		}
		owner, ok := r.table.Get(a.Parent)
		if !ok {
			continue
		}
		if res, err := r.readSet(ctx, rd, owner); err != nil || res != nil {
			return deref(res), err
		}
	}

	cur := target
	i := 1
	for ; i < len(path); i++ {
		s := path[i]
		if s.Name == "" {
			if !cur.Kind.IsComposite() {
				break
			}
			next, res, err := r.index(ctx, rd, cur, s)
			if err != nil || res != nil {
				return deref(res), err
			}
			cur = next
			continue
		}
		next, res, err := r.child(ctx, rd, cur, s.Name)
		if err != nil || res != nil {
			return deref(res), err
		}
		if next == nil {
			break
		}
		cur = next
	}

	res := Resolution{Kind: Found, Target: cur.Index, Residual: path[i:], Consumed: i}
	if !r.activeBelow(cur, ns) {
		res.Kind = Inactive
		res.Reason = fmt.Sprintf("%s is not active", cur.Address)
	}
	return res, nil
}

// activeBelow reports whether every instance from c up to ns is active.
func (r *Resolver) activeBelow(c, ns *component.Component) bool {
	if c.IsInstance() && !c.Active {
		return false
	}
	for _, a := range r.table.Ancestors(c.Index, ns.Index) {
		if a.IsInstance() && !a.Active {
			return false
		}
	}
	return true
}

// readSet reads a composite's replacement set for its dependency edge. It
// returns a non-nil resolution when the set cannot be read yet.
func (r *Resolver) readSet(ctx context.Context, rd Reader, comp *component.Component) (*Resolution, error) {
	_, res, err := r.replacements(ctx, rd, comp)
	return res, err
}

func (r *Resolver) replacements(ctx context.Context, rd Reader, comp *component.Component) ([]component.Replacement, *Resolution, error) {
	id, ok := comp.Cells[ReplacementsVar]
	if !ok {
		return nil, nil, nil
	}
	if r.graph.IsComputing(id) {
		// The composite is being expanded; its instances are already
		// registered and the caller is part of that expansion.
		return nil, nil, nil
	}
	v, err := rd.Get(ctx, id)
	if err != nil {
		if errors.Is(err, cellgraph.ErrDeferred) {
			return nil, &Resolution{Kind: Deferred, Reason: fmt.Sprintf("%s has not been expanded yet", comp.Address)}, nil
		}
		return nil, nil, err
	}
	reps, _ := component.DecodeReplacements(v)
	return reps, nil, nil
}

// index selects a replacement instance of comp. Indices are 1-based.
func (r *Resolver) index(ctx context.Context, rd Reader, comp *component.Component, s refpath.Segment) (*component.Component, *Resolution, error) {
	reps, res, err := r.replacements(ctx, rd, comp)
	if err != nil || res != nil {
		return nil, res, err
	}

	var key string
	switch {
	case s.HasIndex():
		if s.Index < 1 || s.Index > len(reps) {
			nf := notFound(fmt.Sprintf("invalid index %d: %s has %d replacement(s)", s.Index, comp.Address, len(reps)))
			return nil, &nf, nil
		}
		key = reps[s.Index-1].Key
	default:
		found := false
		for _, rep := range reps {
			if rep.Key == s.Key {
				found = true
				break
			}
		}
		if !found {
			nf := notFound(fmt.Sprintf("invalid key %q: %s has no such replacement", s.Key, comp.Address))
			return nil, &nf, nil
		}
		key = s.Key
	}

	for _, idx := range comp.Children {
		if c, ok := r.table.Get(idx); ok && c.SlotKey == key {
			return c, nil, nil
		}
	}
	nf := notFound(fmt.Sprintf("replacement %q of %s no longer exists", key, comp.Address))
	return nil, &nf, nil
}

// child finds the first descendant of from named name, in document order,
// without entering nested namespaces.
func (r *Resolver) child(ctx context.Context, rd Reader, from *component.Component, name string) (*component.Component, *Resolution, error) {
	if from.IsInstance() && from.Namespace {
		if c := r.named(from, name); c != nil {
			return c, nil, nil
		}
	}

	var walk func(c *component.Component) (*component.Component, *Resolution, error)
	walk = func(c *component.Component) (*component.Component, *Resolution, error) {
		if c.Kind.IsComposite() {
			if res, err := r.readSet(ctx, rd, c); err != nil || res != nil {
				return nil, res, err
			}
		}
		for _, idx := range c.Children {
			ch, ok := r.table.Get(idx)
			if !ok {
				continue
			}
			if ch.Name == name && !ch.IsInstance() {
				return ch, nil, nil
			}
			if ch.Namespace {
				continue
			}
			if found, res, err := walk(ch); err != nil || res != nil || found != nil {
				return found, res, err
			}
		}
		return nil, nil, nil
	}
	return walk(from)
}

func notFound(reason string) Resolution {
	return Resolution{Kind: NotFound, Reason: reason}
}

func deref(res *Resolution) Resolution {
	if res == nil {
		return Resolution{}
	}
	return *res
}
