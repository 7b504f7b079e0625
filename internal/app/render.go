// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/diag"
	"github.com/vk/docgrid/internal/host"
	"github.com/vk/docgrid/internal/pipeline"
	"github.com/vk/docgrid/internal/session"
	"github.com/vk/docgrid/internal/statestore"
)

// Render settles the document, replays the configured script and prints the
// resulting snapshot. The essential state is saved when a save path is set.
func (a *App) Render(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Render method started.")

	doc, err := a.loadDocument(ctx)
	if err != nil {
		return err
	}
	restore, err := a.readState(ctx)
	if err != nil {
		return err
	}
	var script *Script
	if a.config.ScriptPath != "" {
		if script, err = LoadScript(a.config.ScriptPath); err != nil {
			return err
		}
	}

	permission := func(context.Context, session.PermissionRequest) (bool, error) {
		return script != nil && script.AllowPermissions, nil
	}
	h := host.New(host.Options{Metrics: a.metrics, Permission: permission, Session: a.sessionOptions()})
	defer h.Shutdown()
	entry, err := h.Open(ctx, doc, restore)
	if err != nil {
		return err
	}

	if script != nil {
		a.logger.Info("🚀 Replaying script...", "path", a.config.ScriptPath, "steps", len(script.Steps))
		if err := replay(ctx, entry.Pipeline, script); err != nil {
			return err
		}
		a.logger.Info("🏁 Script finished.")
	}

	var (
		snap  session.Snapshot
		diags []*diag.Diagnostic
		state statestore.Snapshot
	)
	err = entry.Pipeline.Do(ctx, func(ctx context.Context, s *session.Session) error {
		var err error
		if snap, err = s.Snapshot(ctx); err != nil {
			return err
		}
		diags = s.Diagnostics()
		state, err = s.EssentialState(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if err := a.writeSnapshot(snap, diags, doc.Files); err != nil {
		return err
	}
	if a.config.SaveStatePath != "" {
		if err := a.writeState(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

// replay dispatches every step in order and waits for suspended ones.
func replay(ctx context.Context, p *pipeline.Pipeline, script *Script) error {
	logger := ctxlog.FromContext(ctx)
	for i, st := range script.Steps {
		a, err := st.Action()
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		out, err := p.Dispatch(ctx, a)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if out.Status == session.StatusPending {
			if out, err = p.Wait(ctx, out.Token); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		}
		if out.Err != nil {
			return fmt.Errorf("step %d: %w", i+1, out.Err)
		}
		logger.Info("Step applied.", "step", i+1, "action", a.Name, "target", a.Target, "status", out.Status.String())
		for _, d := range out.Diagnostics {
			logger.Warn("Step reported a diagnostic.", "step", i+1, "diagnostic", d.String())
		}
	}
	return nil
}

func (a *App) writeSnapshot(snap session.Snapshot, diags []*diag.Diagnostic, files map[string]*hcl.File) error {
	if a.config.OutputFormat == "json" {
		out := struct {
			Components  []session.ComponentState `json:"components"`
			Diagnostics []string                 `json:"diagnostics,omitempty"`
		}{Components: snap.Components}
		for _, d := range diags {
			out.Diagnostics = append(out.Diagnostics, d.String())
		}
		enc := json.NewEncoder(a.outW)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if err := writeText(a.outW, snap); err != nil {
		return err
	}
	return diag.Write(a.outW, files, diags)
}

func writeText(w io.Writer, snap session.Snapshot) error {
	for _, c := range snap.Components {
		state := ""
		if !c.Active {
			state = " (inactive)"
		}
		if _, err := fmt.Fprintf(w, "%s %s%s\n", c.Kind, c.Address, state); err != nil {
			return err
		}
		for _, v := range c.Variables {
			suffix := ""
			if v.Status != "" && v.Status != "computed" {
				suffix = " [" + v.Status + "]"
			}
			if _, err := fmt.Fprintf(w, "  %s = %s%s\n", v.Name, v.Display, suffix); err != nil {
				return err
			}
		}
	}
	return nil
}
