// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package host

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/document"
	"github.com/vk/docgrid/internal/session"
	"golang.org/x/sync/errgroup"
)

// CheckResult is the outcome of checking one document.
type CheckResult struct {
	Paths       []string
	Files       map[string]*hcl.File
	Diagnostics []*diag.Diagnostic
}

// HasErrors reports whether any diagnostic is an error.
func (r CheckResult) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == hcl.DiagError {
			return true
		}
	}
	return false
}

// Check loads the document made of paths, settles a throwaway session and
// returns every diagnostic found.
func Check(ctx context.Context, paths []string, opts session.Options) (CheckResult, error) {
	res := CheckResult{Paths: paths}
	doc, parseDiags, err := document.Load(ctx, paths...)
	if err != nil {
		return res, err
	}
	if doc == nil || parseDiags.HasErrors() {
		c := diag.NewCollector()
		c.Extend(diag.Structural, "", parseDiags)
		res.Diagnostics = c.Diagnostics()
		return res, nil
	}
	res.Files = doc.Files

	s, err := session.New(ctx, doc, opts)
	if err != nil {
		return res, err
	}
	if err := s.Settle(ctx); err != nil {
		return res, err
	}
	res.Diagnostics = s.Diagnostics()
	return res, nil
}

// CheckAll checks independent documents in parallel. Each element of docs
// is the path list of one document. Results keep the input order.
func CheckAll(ctx context.Context, docs [][]string, opts session.Options) ([]CheckResult, error) {
	logger := ctxlog.FromContext(ctx)
	results := make([]CheckResult, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for i, paths := range docs {
		g.Go(func() error {
			res, err := Check(gctx, paths, opts)
			if err != nil {
				return fmt.Errorf("checking %v: %w", paths, err)
			}
			logger.Debug("Document checked.", "paths", paths, "diagnostics", len(res.Diagnostics))
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
