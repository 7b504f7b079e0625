// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/docgrid/internal/app"
)

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	Output    string
	LogOutput string
	Err       error
	App       *app.App
	// Dir is the temporary directory holding the test files.
	Dir string
}

// Command is an App lifecycle, such as (*app.App).Render.
type Command func(*app.App, context.Context) error

// RunIntegrationTest provides a standardized harness for running integration tests
// using a default background context.
func RunIntegrationTest(t *testing.T, files map[string]string, cmd Command, configure ...func(*app.Config)) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, files, cmd, configure...)
}

// RunIntegrationTestWithContext writes files into a temporary directory,
// points an app at its "doc" subdirectory and runs cmd. Paths in files are
// relative to the temporary directory, so "doc/main.dg.hcl" is a document
// file and "script.yaml" sits next to it.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, files map[string]string, cmd Command, configure ...func(*app.Config)) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	docDir := filepath.Join(tmpDir, "doc")
	require.NoError(t, os.Mkdir(docDir, 0o755))
	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte(Unindent(content)), 0o644))
	}

	cfg := app.Config{DocumentPaths: []string{docDir}}
	for _, fn := range configure {
		fn(&cfg)
	}
	for _, p := range []*string{&cfg.ScriptPath, &cfg.StatePath, &cfg.SaveStatePath} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(tmpDir, *p)
		}
	}

	testApp, out, logs := app.SetupAppTest(t, cfg)

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("application panicked | %v", r)
			}
		}()
		runErr = cmd(testApp, ctx)
	}()

	return &HarnessResult{
		Output:    out.String(),
		LogOutput: logs.String(),
		Err:       runErr,
		App:       testApp,
		Dir:       tmpDir,
	}
}
