// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package resolver

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/cellgraph"
	"github.com/vk/docgrid/internal/component"
	"github.com/vk/docgrid/internal/refpath"
	"github.com/zclconf/go-cty/cty"
)

// Kind is the outcome class of a resolution.
type Kind int

const (
	// Found means Target (or Binding) was located.
	Found Kind = iota
	// Deferred means the answer depends on a composite that cannot be
	// expanded yet.
	Deferred
	// NotFound means no component matches.
	NotFound
	// Inactive means the target exists inside a hidden or unchosen
	// replacement.
	Inactive
)

func (k Kind) String() string {
	switch k {
	case Found:
		return "found"
	case Deferred:
		return "deferred"
	case NotFound:
		return "not found"
	case Inactive:
		return "inactive"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Request is one resolution query.
type Request struct {
	Path   refpath.Path
	Origin component.Index
	Mode   refpath.SearchMode
	// Span is the source range of the reference, used for diagnostics
	// about pending resolutions.
	Span *hcl.Range
}

// Resolution is the answer to a Request.
type Resolution struct {
	Kind   Kind
	Target component.Index
	// Binding is set when the first segment named an instance binding such
	// as `i`. Target is then the instance.
	Binding cellgraph.CellID
	// Residual holds the steps that did not select a component. Each step
	// is either a bare name or a bare selector.
	Residual []refpath.Segment
	// Consumed is the number of path steps that selected the target.
	Consumed int
	Reason   string
}

// Reader reads cells. A *cellgraph.Reader records the reads as
// dependencies; a *cellgraph.Graph does not.
type Reader interface {
	Get(ctx context.Context, id cellgraph.CellID) (cty.Value, error)
}

// Pending is a resolution that was deferred and has not been answered
// since.
type Pending struct {
	Request
	Reason string
}
