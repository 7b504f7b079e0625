// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vk/docgrid/internal/app"
	"github.com/vk/docgrid/internal/renderer"
	"github.com/vk/docgrid/internal/session"
	"github.com/zclconf/go-cty/cty"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// flagBindings tracks the values of flags shared by several commands.
type flagBindings struct {
	configPath string
	cfg        app.Config
}

// NewRootCommand builds the docgrid command tree. Results are written to
// outW and logs to errW.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	b := &flagBindings{cfg: app.DefaultConfig()}

	root := &cobra.Command{
		Use:   "docgrid",
		Short: "A reactive state engine for interactive documents",
		Long: `docgrid evaluates interactive documents: components whose state variables
are computed from each other, updated by actions and recomputed on demand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Message: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&b.configPath, "config", "", "Path to a YAML configuration file.")
	pf.StringVar(&b.cfg.LogLevel, "log-level", b.cfg.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&b.cfg.LogFormat, "log-format", b.cfg.LogFormat, "Log output format. Options: 'text' or 'json'.")
	pf.Uint64Var(&b.cfg.VariantSeed, "seed", 0, "Seed for select components. 0 uses the document default.")

	root.AddCommand(
		newCheckCommand(b, outW, errW),
		newRenderCommand(b, outW, errW),
		newServeCommand(b, outW, errW),
		newDispatchCommand(outW),
	)
	return root
}

// Execute runs the command line args.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root := NewRootCommand(outW, errW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	if errors.Is(err, app.ErrInvalidDocument) {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	if strings.HasPrefix(err.Error(), "unknown command") || strings.HasPrefix(err.Error(), "accepts ") {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	return err
}

// resolve merges the configuration file, changed flags and positional
// document paths, in that order of precedence from lowest to highest.
func (b *flagBindings) resolve(cmd *cobra.Command, paths []string) (*app.Config, error) {
	cfg := app.DefaultConfig()
	if b.configPath != "" {
		fileCfg, err := app.LoadConfigFile(b.configPath)
		if err != nil {
			return nil, &ExitError{Code: 2, Message: err.Error()}
		}
		cfg = fileCfg
	}

	flags := cmd.Flags()
	override := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	override("log-level", func() { cfg.LogLevel = b.cfg.LogLevel })
	override("log-format", func() { cfg.LogFormat = b.cfg.LogFormat })
	override("seed", func() { cfg.VariantSeed = b.cfg.VariantSeed })
	override("state", func() { cfg.StatePath = b.cfg.StatePath })
	override("save-state", func() { cfg.SaveStatePath = b.cfg.SaveStatePath })
	override("script", func() { cfg.ScriptPath = b.cfg.ScriptPath })
	override("output", func() { cfg.OutputFormat = b.cfg.OutputFormat })
	override("listen", func() { cfg.ListenAddr = b.cfg.ListenAddr })
	override("watch", func() { cfg.Watch = b.cfg.Watch })
	override("healthcheck-port", func() { cfg.HealthcheckPort = b.cfg.HealthcheckPort })
	override("permission-timeout", func() { cfg.PermissionTimeout = b.cfg.PermissionTimeout })
	override("event-buffer", func() { cfg.EventBuffer = b.cfg.EventBuffer })
	if len(paths) > 0 {
		cfg.DocumentPaths = paths
	}

	validated, err := app.NewConfig(cfg)
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return validated, nil
}

func newCheckCommand(b *flagBindings, outW, errW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "check [DOCUMENT_PATH...]",
		Short: "Validate documents and print their diagnostics",
		Long: `Validate documents and print their diagnostics. Each path is a document
file or a directory of *.dg.hcl files, checked independently.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := b.resolve(cmd, args)
			if err != nil {
				return err
			}
			return app.NewApp(outW, errW, cfg).Check(cmd.Context())
		},
	}
}

func newRenderCommand(b *flagBindings, outW, errW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render [DOCUMENT_PATH...]",
		Short: "Settle a document, replay a script and print every state variable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := b.resolve(cmd, args)
			if err != nil {
				return err
			}
			return app.NewApp(outW, errW, cfg).Render(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.StringVar(&b.cfg.StatePath, "state", "", "Restore essential state from this file.")
	f.StringVar(&b.cfg.SaveStatePath, "save-state", "", "Write the essential state to this file after rendering.")
	f.StringVar(&b.cfg.ScriptPath, "script", "", "YAML action script to replay before printing.")
	f.StringVarP(&b.cfg.OutputFormat, "output", "o", b.cfg.OutputFormat, "Output format. Options: 'json' or 'text'.")
	return cmd
}

func newServeCommand(b *flagBindings, outW, errW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [DOCUMENT_PATH...]",
		Short: "Serve a document to socket.io renderers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := b.resolve(cmd, args)
			if err != nil {
				return err
			}
			return app.NewApp(outW, errW, cfg).Serve(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.StringVar(&b.cfg.StatePath, "state", "", "Restore essential state from this file.")
	f.StringVar(&b.cfg.ListenAddr, "listen", b.cfg.ListenAddr, "Address for renderer connections.")
	f.BoolVar(&b.cfg.Watch, "watch", false, "Reload the document when its files change.")
	f.IntVar(&b.cfg.HealthcheckPort, "healthcheck-port", 0, "Port for the /health and /metrics server. 0 is disabled.")
	f.DurationVar(&b.cfg.PermissionTimeout, "permission-timeout", b.cfg.PermissionTimeout, "How long to wait for renderers to answer a permission question.")
	f.IntVar(&b.cfg.EventBuffer, "event-buffer", 0, "Bound of the outbound change-event queue. 0 uses the default.")
	return cmd
}

func newDispatchCommand(outW io.Writer) *cobra.Command {
	var (
		url       string
		target    string
		rawArgs   []string
		transient bool
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "dispatch ACTION",
		Short: "Send one action to a running server and print the outcome",
		Example: `  docgrid dispatch setValue --target a --arg value=3
  docgrid dispatch movePoint --target p --arg x=1 --arg y=2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actionArgs, err := parseActionArgs(rawArgs)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c, err := renderer.Dial(ctx, url, renderer.ClientOptions{Timeout: timeout})
			if err != nil {
				return err
			}
			defer c.Close()

			out, err := c.Dispatch(ctx, session.Action{Name: args[0], Target: target, Args: actionArgs, Transient: transient})
			if err != nil {
				return err
			}
			if out.Status == "pending" {
				if out, err = c.Wait(ctx, out.Token); err != nil {
					return err
				}
			}
			enc := json.NewEncoder(outW)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if out.Status == "rejected" || out.Status == "failed" {
				return &ExitError{Code: 1, Message: fmt.Sprintf("action %s", out.Status)}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&url, "url", "http://localhost:8080/socket.io/", "socket.io endpoint of the server.")
	f.StringVarP(&target, "target", "t", "", "Address of the target component.")
	f.StringArrayVar(&rawArgs, "arg", nil, "Action argument as name=value. Values are JSON; anything else is a string.")
	f.BoolVar(&transient, "transient", false, "Mark the action as transient.")
	f.DurationVar(&timeout, "timeout", 10*time.Second, "Overall timeout.")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

// parseActionArgs turns name=value pairs into argument values.
func parseActionArgs(pairs []string) (map[string]cty.Value, error) {
	raw := make(map[string]json.RawMessage, len(pairs))
	for _, p := range pairs {
		name, val, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --arg %q: want name=value", p)
		}
		if !json.Valid([]byte(val)) {
			quoted, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			val = string(quoted)
		}
		raw[name] = json.RawMessage(val)
	}
	return session.DecodeArgs(raw)
}
