// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package app

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/host"
)

// Check validates every configured path as an independent document and
// prints its diagnostics. It returns ErrInvalidDocument if any document
// has errors.
func (a *App) Check(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Check method started.")

	docs := make([][]string, len(a.config.DocumentPaths))
	for i, p := range a.config.DocumentPaths {
		docs[i] = []string{p}
	}
	results, err := host.CheckAll(ctx, docs, a.sessionOptions())
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if err := diag.Write(a.outW, res.Files, res.Diagnostics); err != nil {
			return err
		}
		errs, warns := count(res.Diagnostics)
		fmt.Fprintf(a.outW, "%s: %d error(s), %d warning(s)\n", res.Paths[0], errs, warns)
		if errs > 0 {
			failed++
		}
	}

	if failed > 0 {
		a.logger.Warn("Check found invalid documents.", "invalid", failed, "total", len(results))
		return ErrInvalidDocument
	}
	a.logger.Info("✅ All documents are valid.", "total", len(results))
	return nil
}

func count(list []*diag.Diagnostic) (errs, warns int) {
	for _, d := range list {
		if d.Severity == hcl.DiagError {
			errs++
		} else {
			warns++
		}
	}
	return errs, warns
}
