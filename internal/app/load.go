// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package app

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/document"
	"github.com/vk/docgrid/internal/statestore"
)

// loadDocument loads the configured paths as one document. Syntax errors
// are written to the output and reported as ErrInvalidDocument.
func (a *App) loadDocument(ctx context.Context) (*document.Document, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading document...", "paths", a.config.DocumentPaths)

	doc, diags, err := document.Load(ctx, a.config.DocumentPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil || diags.HasErrors() {
		c := diag.NewCollector()
		c.Extend(diag.Structural, "", diags)
		if err := diag.Write(a.outW, nil, c.Diagnostics()); err != nil {
			return nil, err
		}
		return nil, ErrInvalidDocument
	}

	logger.Info("Document loaded.", "files", len(doc.Files), "blocks", len(doc.Root.Blocks))
	return doc, nil
}

// readState decodes the configured state file, if any.
func (a *App) readState(ctx context.Context) (*statestore.Snapshot, error) {
	if a.config.StatePath == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(a.config.StatePath)
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	snap, err := statestore.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding state file %s: %w", a.config.StatePath, err)
	}
	ctxlog.FromContext(ctx).Info("Essential state restored.", "path", a.config.StatePath, "entries", len(snap.Entries), "seed", snap.Seed)
	return &snap, nil
}

// writeState encodes snap into the configured save path.
func (a *App) writeState(ctx context.Context, snap statestore.Snapshot) error {
	raw, err := statestore.Encode(snap)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := os.WriteFile(a.config.SaveStatePath, raw, 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	ctxlog.FromContext(ctx).Info("Essential state saved.", "path", a.config.SaveStatePath, "entries", len(snap.Entries))
	return nil
}
