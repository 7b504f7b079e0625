// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package document

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/fsutil"
)

// Extension is the file suffix of document sources.
const Extension = ".dg.hcl"

// Document is a parsed document.
type Document struct {
	Root *Node
	// Files maps file names to parsed files for diagnostic rendering.
	Files map[string]*hcl.File
}

// Parse parses a single in-memory source.
func Parse(src []byte, filename string) (*Document, hcl.Diagnostics) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	root := newRoot(filename)
	root.appendBody(file.Body.(*hclsyntax.Body))
	root.Range = file.Body.(*hclsyntax.Body).Range()
	return &Document{Root: root, Files: parser.Files()}, diags
}

// Load discovers document files under paths and parses them into one
// document. Syntax errors are returned as diagnostics; the error result is
// reserved for file system failures.
func Load(ctx context.Context, paths ...string) (*Document, hcl.Diagnostics, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Document loader started.", "path_count", len(paths))

	files, err := fsutil.CollectFiles(paths, Extension)
	if err != nil {
		return nil, nil, fmt.Errorf("discovering document files: %w", err)
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no %s files found in %v", Extension, paths)
	}
	logger.Debug("Discovered document files.", "count", len(files))

	parser := hclparse.NewParser()
	root := newRoot(files[0])
	var diags hcl.Diagnostics
	for _, name := range files {
		file, fileDiags := parser.ParseHCLFile(name)
		diags = append(diags, fileDiags...)
		if fileDiags.HasErrors() {
			continue
		}
		root.appendBody(file.Body.(*hclsyntax.Body))
	}
	if diags.HasErrors() {
		return nil, diags, nil
	}

	logger.Debug("Document loading complete.", "blocks", len(root.Blocks))
	return &Document{Root: root, Files: parser.Files()}, diags, nil
}
