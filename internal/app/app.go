// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/metrics"
	"github.com/vk/docgrid/internal/session"
)

// ErrInvalidDocument is returned when a document has error diagnostics.
// The diagnostics themselves have already been written to the output.
var ErrInvalidDocument = errors.New("document has errors")

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	ctx    context.Context
	config *Config

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	httpServer *http.Server

	// listening is closed once serve accepts connections on addr.
	listening chan struct{}
	addr      net.Addr
}

// NewApp is the constructor for the main application. Results go to outW
// and logs to logW, each App with its own logger and metrics registry.
func NewApp(outW, logW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &App{
		outW:      outW,
		logger:    logger,
		ctx:       ctx,
		config:    cfg,
		registry:  reg,
		metrics:   metrics.New(reg),
		listening: make(chan struct{}),
	}
}

// Metrics returns the application's collectors. This is primarily for testing.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Addr blocks until serve is listening and returns its address.
func (a *App) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-a.listening:
		return a.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *App) sessionOptions() session.Options {
	return session.Options{
		VariantSeed: a.config.VariantSeed,
		EventBuffer: a.config.EventBuffer,
		Metrics:     a.metrics,
	}
}
