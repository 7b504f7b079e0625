// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/host"
	"github.com/vk/docgrid/internal/renderer"
	"github.com/vk/docgrid/internal/session"
	"github.com/vk/docgrid/internal/statestore"
)

// Serve exposes the document to socket.io renderers until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Serve method started.")

	doc, err := a.loadDocument(ctx)
	if err != nil {
		return err
	}
	restore, err := a.readState(ctx)
	if err != nil {
		return err
	}

	srv := renderer.NewServer(ctx, renderer.ServerOptions{PermissionTimeout: a.config.PermissionTimeout})
	defer srv.Close()
	h := host.New(host.Options{Metrics: a.metrics, Permission: srv.Permission, Session: a.sessionOptions()})
	defer h.Shutdown()

	entry, err := h.Open(ctx, doc, restore)
	if err != nil {
		return err
	}
	srv.Attach(entry)

	a.healthCheckServer()
	defer func() { _ = a.closeHealthCheckServer() }()

	if a.config.Watch {
		w, err := watchDocuments(ctx, a.config.DocumentPaths, func(ctx context.Context) {
			a.reload(ctx, h, srv)
		})
		if err != nil {
			return err
		}
		defer w.Close()
		a.logger.Info("👀 Watching document files.", "paths", a.config.DocumentPaths)
	}

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", srv.Handler())
	httpServer := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", a.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.config.ListenAddr, err)
	}
	a.addr = ln.Addr()
	close(a.listening)

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("🚀 Renderer server starting", "address", fmt.Sprintf("http://%s/socket.io/", ln.Addr()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("renderer server failed: %w", err)
		}
	}

	a.logger.Info("🏁 Shutting down renderer server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("renderer server shutdown: %w", err)
	}
	return nil
}

// reload rebuilds the session from the changed files, carrying essential
// state over. A document that no longer loads keeps the old session.
func (a *App) reload(ctx context.Context, h *host.Host, srv *renderer.Server) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("🔄 Reloading document...")

	doc, err := a.loadDocument(ctx)
	if err != nil {
		logger.Error("Reload failed, keeping the previous document.", "error", err)
		return
	}

	var restore *statestore.Snapshot
	if prevIDs := h.IDs(); len(prevIDs) > 0 {
		if prev, err := h.Get(prevIDs[0]); err == nil {
			err := prev.Pipeline.Do(ctx, func(ctx context.Context, s *session.Session) error {
				snap, err := s.EssentialState(ctx)
				restore = &snap
				return err
			})
			if err != nil {
				logger.Warn("Could not carry state over, starting fresh.", "error", err)
				restore = nil
			}
		}
	}

	entry, err := h.Open(ctx, doc, restore)
	if err != nil {
		logger.Error("Reload failed, keeping the previous document.", "error", err)
		return
	}
	if prev := srv.Attach(entry); prev != nil {
		if err := h.Close(prev.ID); err != nil {
			logger.Warn("Closing the previous session failed.", "error", err)
		}
	}
}
